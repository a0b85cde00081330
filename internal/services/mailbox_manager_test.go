package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/welldanyogia/webrana-mailstore/internal/acl"
	coreerrors "github.com/welldanyogia/webrana-mailstore/internal/errors"
	"github.com/welldanyogia/webrana-mailstore/internal/models"
	"github.com/welldanyogia/webrana-mailstore/internal/repository"
	"github.com/welldanyogia/webrana-mailstore/internal/storage"
)

// MailboxManagerTestSuite exercises session and mailbox lifecycle over the
// in-memory backend.
type MailboxManagerTestSuite struct {
	suite.Suite
	manager *MailboxManager
	alice   *Session
	bob     *Session
}

func (s *MailboxManagerTestSuite) SetupTest() {
	auth := NewStaticAuthenticator(map[string]string{
		"alice": "secret",
		"bob":   "hunter2",
	})
	groups := NewStaticGroups()
	groups.AddMember("staff", "bob")

	s.manager = NewMailboxManager(MailboxManagerConfig{
		Factory:       repository.NewMemoryFactory(repository.NewMemoryStore()),
		Authenticator: auth,
		Groups:        groups,
		ContentStore:  storage.NewMemoryContentStore(),
	})

	ctx := context.Background()
	var err error
	s.alice, err = s.manager.Login(ctx, "alice", "secret")
	require.NoError(s.T(), err)
	s.bob, err = s.manager.Login(ctx, "bob", "hunter2")
	require.NoError(s.T(), err)
}

func TestMailboxManagerTestSuite(t *testing.T) {
	suite.Run(t, new(MailboxManagerTestSuite))
}

func (s *MailboxManagerTestSuite) TestLogin_ProvisionsInbox() {
	paths, err := s.manager.List(context.Background(), s.alice)
	require.NoError(s.T(), err)
	require.Len(s.T(), paths, 1)
	assert.True(s.T(), paths[0].IsInbox())
	assert.Equal(s.T(), "alice", paths[0].User)
}

func (s *MailboxManagerTestSuite) TestLogin_SecondLoginReusesInbox() {
	ctx := context.Background()

	again, err := s.manager.Login(ctx, "alice", "secret")
	require.NoError(s.T(), err)
	assert.NotEqual(s.T(), s.alice.ID, again.ID)

	paths, err := s.manager.List(ctx, again)
	require.NoError(s.T(), err)
	assert.Len(s.T(), paths, 1)
}

func (s *MailboxManagerTestSuite) TestLogin_RejectionsAreIndistinguishable() {
	ctx := context.Background()

	_, errUnknown := s.manager.Login(ctx, "mallory", "whatever")
	_, errWrong := s.manager.Login(ctx, "alice", "wrong")

	require.ErrorIs(s.T(), errUnknown, coreerrors.ErrAuthenticationFailed)
	require.ErrorIs(s.T(), errWrong, coreerrors.ErrAuthenticationFailed)
	// same error text so a caller cannot enumerate valid usernames
	assert.Equal(s.T(), errUnknown.Error(), errWrong.Error())
}

func (s *MailboxManagerTestSuite) TestSystemSession_ProvisionsInbox() {
	ctx := context.Background()

	session, err := s.manager.SystemSession(ctx, "carol")
	require.NoError(s.T(), err)

	paths, err := s.manager.List(ctx, session)
	require.NoError(s.T(), err)
	require.Len(s.T(), paths, 1)
	assert.True(s.T(), paths[0].IsInbox())
}

func (s *MailboxManagerTestSuite) TestSystemSession_InvalidUsername() {
	_, err := s.manager.SystemSession(context.Background(), "not a user!")
	assert.ErrorIs(s.T(), err, coreerrors.ErrInvalidInput)
}

func (s *MailboxManagerTestSuite) TestCreateMailbox() {
	ctx := context.Background()
	path := models.PersonalPath("alice", "work")

	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, path))

	paths, err := s.manager.List(ctx, s.alice)
	require.NoError(s.T(), err)
	assert.Len(s.T(), paths, 2)
}

func (s *MailboxManagerTestSuite) TestCreateMailbox_Duplicate() {
	ctx := context.Background()
	path := models.PersonalPath("alice", "work")

	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, path))
	err := s.manager.CreateMailbox(ctx, s.alice, path)
	assert.ErrorIs(s.T(), err, coreerrors.ErrMailboxExists)
}

func (s *MailboxManagerTestSuite) TestCreateMailbox_InvalidName() {
	err := s.manager.CreateMailbox(context.Background(), s.alice, models.PersonalPath("alice", "bad..name"))
	assert.ErrorIs(s.T(), err, coreerrors.ErrInvalidInput)
}

func (s *MailboxManagerTestSuite) TestCreateMailbox_TopLevelInForeignNamespace() {
	err := s.manager.CreateMailbox(context.Background(), s.bob, models.PersonalPath("alice", "intruder"))
	assert.ErrorIs(s.T(), err, coreerrors.ErrInsufficientRights)
}

func (s *MailboxManagerTestSuite) TestCreateMailbox_ChildUnderForeignParentHidesExistence() {
	ctx := context.Background()
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, models.PersonalPath("alice", "work")))

	// bob cannot even see alice's mailbox, so the denial reads as not found
	err := s.manager.CreateMailbox(ctx, s.bob, models.PersonalPath("alice", "work.sub"))
	assert.ErrorIs(s.T(), err, coreerrors.ErrMailboxNotFound)
}

func (s *MailboxManagerTestSuite) TestCreateMailbox_ChildWithGrantedRight() {
	ctx := context.Background()
	parent := models.PersonalPath("alice", "shared")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, parent))
	require.NoError(s.T(), s.manager.SetACL(ctx, s.alice, parent, "bob", acl.Lookup|acl.CreateMailbox))

	err := s.manager.CreateMailbox(ctx, s.bob, models.PersonalPath("alice", "shared.drafts"))
	assert.NoError(s.T(), err)
}

func (s *MailboxManagerTestSuite) TestGetMailbox_ForeignWithoutLookupReadsAsNotFound() {
	ctx := context.Background()
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, models.PersonalPath("alice", "private")))

	_, err := s.manager.GetMailbox(ctx, s.bob, models.PersonalPath("alice", "private"))
	assert.ErrorIs(s.T(), err, coreerrors.ErrMailboxNotFound)
}

func (s *MailboxManagerTestSuite) TestGetMailbox_LookupGrantMakesVisible() {
	ctx := context.Background()
	path := models.PersonalPath("alice", "reports")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, path))
	require.NoError(s.T(), s.manager.SetACL(ctx, s.alice, path, "bob", acl.Lookup))

	mailbox, err := s.manager.GetMailbox(ctx, s.bob, path)
	require.NoError(s.T(), err)
	assert.NotNil(s.T(), mailbox)
}

func (s *MailboxManagerTestSuite) TestList_FiltersByLookup() {
	ctx := context.Background()
	visible := models.PersonalPath("alice", "announce")
	hidden := models.PersonalPath("alice", "private")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, visible))
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, hidden))
	require.NoError(s.T(), s.manager.SetACL(ctx, s.alice, visible, "bob", acl.Lookup|acl.Read))

	paths, err := s.manager.List(ctx, s.bob)
	require.NoError(s.T(), err)

	names := make(map[string]bool)
	for _, p := range paths {
		names[p.User+"/"+p.Name] = true
	}
	assert.True(s.T(), names["bob/INBOX"])
	assert.True(s.T(), names["alice/announce"])
	assert.False(s.T(), names["alice/private"])
}

func (s *MailboxManagerTestSuite) TestList_RevocationTakesEffect() {
	ctx := context.Background()
	path := models.PersonalPath("alice", "announce")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, path))
	require.NoError(s.T(), s.manager.SetACL(ctx, s.alice, path, "bob", acl.Lookup))

	paths, err := s.manager.List(ctx, s.bob)
	require.NoError(s.T(), err)
	require.Len(s.T(), paths, 2)

	// removing the grant hides the mailbox on the next call
	require.NoError(s.T(), s.manager.SetACL(ctx, s.alice, path, "bob", acl.None))
	paths, err = s.manager.List(ctx, s.bob)
	require.NoError(s.T(), err)
	assert.Len(s.T(), paths, 1)
}

func (s *MailboxManagerTestSuite) TestList_GroupGrant() {
	ctx := context.Background()
	path := models.PersonalPath("alice", "teamspace")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, path))
	require.NoError(s.T(), s.manager.SetACL(ctx, s.alice, path, "group:staff", acl.Lookup|acl.Read))

	paths, err := s.manager.List(ctx, s.bob)
	require.NoError(s.T(), err)
	assert.Len(s.T(), paths, 2)
}

func (s *MailboxManagerTestSuite) TestDeleteMailbox() {
	ctx := context.Background()
	path := models.PersonalPath("alice", "scratch")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, path))

	require.NoError(s.T(), s.manager.DeleteMailbox(ctx, s.alice, path))
	err := s.manager.DeleteMailbox(ctx, s.alice, path)
	assert.ErrorIs(s.T(), err, coreerrors.ErrMailboxNotFound)
}

func (s *MailboxManagerTestSuite) TestDeleteMailbox_RequiresRight() {
	ctx := context.Background()
	path := models.PersonalPath("alice", "keep")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, path))
	require.NoError(s.T(), s.manager.SetACL(ctx, s.alice, path, "bob", acl.Lookup|acl.Read))

	err := s.manager.DeleteMailbox(ctx, s.bob, path)
	assert.ErrorIs(s.T(), err, coreerrors.ErrInsufficientRights)
}

func (s *MailboxManagerTestSuite) TestRenameMailbox() {
	ctx := context.Background()
	oldPath := models.PersonalPath("alice", "work")
	newPath := models.PersonalPath("alice", "archive")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, oldPath))

	require.NoError(s.T(), s.manager.RenameMailbox(ctx, s.alice, oldPath, newPath))

	_, err := s.manager.GetMailbox(ctx, s.alice, oldPath)
	assert.ErrorIs(s.T(), err, coreerrors.ErrMailboxNotFound)
	_, err = s.manager.GetMailbox(ctx, s.alice, newPath)
	assert.NoError(s.T(), err)
}

func (s *MailboxManagerTestSuite) TestRenameMailbox_TargetOccupied() {
	ctx := context.Background()
	a := models.PersonalPath("alice", "one")
	b := models.PersonalPath("alice", "two")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, a))
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, b))

	err := s.manager.RenameMailbox(ctx, s.alice, a, b)
	assert.ErrorIs(s.T(), err, coreerrors.ErrMailboxExists)
}

func (s *MailboxManagerTestSuite) mailboxID(session *Session, path models.MailboxPath) uint {
	mm, err := s.manager.GetMailbox(context.Background(), session, path)
	s.Require().NoError(err)
	return mm.MailboxID()
}

func (s *MailboxManagerTestSuite) TestWatchMailbox_Owner() {
	id := s.mailboxID(s.alice, models.InboxPath("alice"))
	assert.NoError(s.T(), s.manager.WatchMailbox(context.Background(), s.alice, id))
}

func (s *MailboxManagerTestSuite) TestWatchMailbox_ForeignWithoutLookupReadsAsNotFound() {
	id := s.mailboxID(s.alice, models.InboxPath("alice"))

	err := s.manager.WatchMailbox(context.Background(), s.bob, id)
	assert.ErrorIs(s.T(), err, coreerrors.ErrMailboxNotFound)
}

func (s *MailboxManagerTestSuite) TestWatchMailbox_LookupGrantAllows() {
	ctx := context.Background()
	path := models.PersonalPath("alice", "shared")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, path))
	require.NoError(s.T(), s.manager.SetACL(ctx, s.alice, path, "bob", acl.Lookup))

	assert.NoError(s.T(), s.manager.WatchMailbox(ctx, s.bob, s.mailboxID(s.alice, path)))
}

func (s *MailboxManagerTestSuite) TestWatchMailbox_UnknownMailbox() {
	err := s.manager.WatchMailbox(context.Background(), s.alice, 9999)
	assert.ErrorIs(s.T(), err, coreerrors.ErrMailboxNotFound)
}

func (s *MailboxManagerTestSuite) deliveryContent() string {
	return "From: sender@example.com\r\n" +
		"Subject: hello\r\n" +
		"\r\n" +
		"body\r\n"
}

func (s *MailboxManagerTestSuite) TestDeliver_AppendsRecentMessage() {
	ctx := context.Background()

	uid, err := s.manager.Deliver(ctx, "alice", strings.NewReader(s.deliveryContent()), time.Now().UTC())
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uint32(1), uid)

	inbox, err := s.manager.GetMailbox(ctx, s.alice, models.InboxPath("alice"))
	require.NoError(s.T(), err)
	views, err := inbox.GetMessages(ctx, s.alice, UIDSetOf(uid), nil)
	require.NoError(s.T(), err)
	require.Len(s.T(), views, 1)
	assert.Equal(s.T(), "hello", views[0].Subject)
	assert.Contains(s.T(), views[0].Flags, models.FlagRecent)
}

func (s *MailboxManagerTestSuite) TestDeliver_ProvisionsInbox() {
	// carol never logged in; delivery creates her INBOX on the fly
	_, err := s.manager.Deliver(context.Background(), "carol", strings.NewReader(s.deliveryContent()), time.Now().UTC())
	assert.NoError(s.T(), err)
}

func (s *MailboxManagerTestSuite) TestDeliver_DeniedAfterRevokingPostGrant() {
	ctx := context.Background()
	require.NoError(s.T(), s.manager.SetACL(ctx, s.alice, models.InboxPath("alice"), acl.Anyone, acl.None))

	_, err := s.manager.Deliver(ctx, "alice", strings.NewReader(s.deliveryContent()), time.Now().UTC())
	// without the grant the delivery principal cannot even see the mailbox
	assert.ErrorIs(s.T(), err, coreerrors.ErrMailboxNotFound)
}

func (s *MailboxManagerTestSuite) TestSetACL_RequiresAdminister() {
	ctx := context.Background()
	path := models.PersonalPath("alice", "guarded")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, path))
	require.NoError(s.T(), s.manager.SetACL(ctx, s.alice, path, "bob", acl.Lookup|acl.Read))

	err := s.manager.SetACL(ctx, s.bob, path, "bob", acl.Full)
	assert.ErrorIs(s.T(), err, coreerrors.ErrInsufficientRights)
}
