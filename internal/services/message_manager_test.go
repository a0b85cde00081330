package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
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

// MessageManagerTestSuite exercises per-mailbox message operations over the
// in-memory backend.
type MessageManagerTestSuite struct {
	suite.Suite
	manager *MailboxManager
	alice   *Session
	bob     *Session
	inbox   *MessageManager
}

func (s *MessageManagerTestSuite) SetupTest() {
	auth := NewStaticAuthenticator(map[string]string{
		"alice": "secret",
		"bob":   "hunter2",
	})

	s.manager = NewMailboxManager(MailboxManagerConfig{
		Factory:       repository.NewMemoryFactory(repository.NewMemoryStore()),
		Authenticator: auth,
		Groups:        NewStaticGroups(),
		ContentStore:  storage.NewMemoryContentStore(),
	})

	ctx := context.Background()
	var err error
	s.alice, err = s.manager.Login(ctx, "alice", "secret")
	require.NoError(s.T(), err)
	s.bob, err = s.manager.Login(ctx, "bob", "hunter2")
	require.NoError(s.T(), err)

	s.inbox, err = s.manager.GetMailbox(ctx, s.alice, models.InboxPath("alice"))
	require.NoError(s.T(), err)
}

func TestMessageManagerTestSuite(t *testing.T) {
	suite.Run(t, new(MessageManagerTestSuite))
}

func rawMessage(subject, body string) io.Reader {
	var b strings.Builder
	if subject != "" {
		fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	}
	b.WriteString("From: sender@example.com\r\n")
	b.WriteString("Content-Type: text/plain\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return strings.NewReader(b.String())
}

func (s *MessageManagerTestSuite) append(subject, body string, flags ...string) uint32 {
	uid, err := s.inbox.Append(context.Background(), s.alice, rawMessage(subject, body), time.Now().UTC(), false, flags)
	require.NoError(s.T(), err)
	return uid
}

func (s *MessageManagerTestSuite) TestAppend_SequentialUIDs() {
	uid1 := s.append("first", "hello")
	uid2 := s.append("second", "world")

	assert.Equal(s.T(), uint32(1), uid1)
	assert.Equal(s.T(), uint32(2), uid2)
}

func (s *MessageManagerTestSuite) TestAppend_ConcurrentUIDsUniqueAndContiguous() {
	ctx := context.Background()
	const writers = 10

	var wg sync.WaitGroup
	uids := make(chan uint32, writers)
	for i := 0; i < writers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			uid, err := s.inbox.Append(ctx, s.alice, rawMessage(fmt.Sprintf("msg %d", i), "body"), time.Now().UTC(), false, nil)
			require.NoError(s.T(), err)
			uids <- uid
		}()
	}
	wg.Wait()
	close(uids)

	seen := make(map[uint32]bool)
	for uid := range uids {
		assert.False(s.T(), seen[uid])
		seen[uid] = true
	}
	for uid := uint32(1); uid <= writers; uid++ {
		assert.True(s.T(), seen[uid], "uid %d missing", uid)
	}
}

func (s *MessageManagerTestSuite) TestAppend_RecentFlag() {
	ctx := context.Background()
	uid, err := s.inbox.Append(ctx, s.alice, rawMessage("x", "y"), time.Now().UTC(), true, []string{models.FlagSeen})
	require.NoError(s.T(), err)

	views, err := s.inbox.GetMessages(ctx, s.alice, UIDSetOf(uid), []Property{PropertyFlags})
	require.NoError(s.T(), err)
	require.Len(s.T(), views, 1)
	assert.ElementsMatch(s.T(), []string{models.FlagSeen, models.FlagRecent}, views[0].Flags)
}

func (s *MessageManagerTestSuite) TestAppend_UnreadableContent() {
	_, err := s.inbox.Append(context.Background(), s.alice, iotest{}, time.Now().UTC(), false, nil)
	assert.ErrorIs(s.T(), err, coreerrors.ErrContentFault)
}

// iotest always fails mid-read.
type iotest struct{}

func (iotest) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func (s *MessageManagerTestSuite) TestGetMessages_SubjectPlaceholder() {
	ctx := context.Background()
	withSubject := s.append("greetings", "hi")
	uid2, err := s.inbox.Append(ctx, s.alice, rawMessage("", "no subject header"), time.Now().UTC(), false, nil)
	require.NoError(s.T(), err)

	views, err := s.inbox.GetMessages(ctx, s.alice, UIDSetOf(withSubject, uid2), []Property{PropertySubject})
	require.NoError(s.T(), err)
	require.Len(s.T(), views, 2)
	assert.Equal(s.T(), "greetings", views[0].Subject)
	assert.Equal(s.T(), NoSubjectPlaceholder, views[1].Subject)
}

func (s *MessageManagerTestSuite) TestGetMessages_NilSelectorFillsAllFields() {
	uid := s.append("full view", "body text")

	views, err := s.inbox.GetMessages(context.Background(), s.alice, UIDSetOf(uid), nil)
	require.NoError(s.T(), err)
	require.Len(s.T(), views, 1)

	view := views[0]
	assert.Equal(s.T(), "full view", view.Subject)
	assert.NotZero(s.T(), view.Size)
	assert.NotNil(s.T(), view.ReceivedAt)
	assert.NotZero(s.T(), view.ModSeq)
	assert.Equal(s.T(), "text/plain", view.ContentType)
}

func (s *MessageManagerTestSuite) TestGetMessages_EmptySelectorIdentifiersOnly() {
	uid := s.append("hidden", "body")

	views, err := s.inbox.GetMessages(context.Background(), s.alice, UIDSetOf(uid), []Property{})
	require.NoError(s.T(), err)
	require.Len(s.T(), views, 1)

	view := views[0]
	assert.Equal(s.T(), uid, view.UID)
	assert.Empty(s.T(), view.Subject)
	assert.Nil(s.T(), view.Flags)
	assert.Zero(s.T(), view.Size)
	assert.Nil(s.T(), view.ReceivedAt)
}

func (s *MessageManagerTestSuite) TestGetMessages_UnknownUIDsSkipped() {
	uid := s.append("only one", "body")

	views, err := s.inbox.GetMessages(context.Background(), s.alice, UIDSetOf(uid, 500, 900), nil)
	require.NoError(s.T(), err)
	assert.Len(s.T(), views, 1)
}

func (s *MessageManagerTestSuite) TestGetMessages_RangeSet() {
	for i := 0; i < 5; i++ {
		s.append(fmt.Sprintf("msg %d", i), "body")
	}

	views, err := s.inbox.GetMessages(context.Background(), s.alice, UIDSet{{From: 2, To: 4}}, []Property{})
	require.NoError(s.T(), err)
	require.Len(s.T(), views, 3)
	assert.Equal(s.T(), uint32(2), views[0].UID)
	assert.Equal(s.T(), uint32(4), views[2].UID)
}

func (s *MessageManagerTestSuite) TestGetContent_RoundTrip() {
	uid := s.append("content", "the full body")

	reader, err := s.inbox.GetContent(context.Background(), s.alice, uid)
	require.NoError(s.T(), err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(s.T(), err)
	assert.Contains(s.T(), string(data), "the full body")
	assert.Contains(s.T(), string(data), "Subject: content")
}

func (s *MessageManagerTestSuite) TestSetFlags_StampsIncreasingModSeq() {
	ctx := context.Background()
	uid := s.append("flagme", "body")

	views, err := s.inbox.GetMessages(ctx, s.alice, UIDSetOf(uid), []Property{PropertyModSeq})
	require.NoError(s.T(), err)
	appendSeq := views[0].ModSeq

	first, err := s.inbox.SetFlags(ctx, s.alice, UIDSetOf(uid), FlagDelta{Add: []string{models.FlagSeen}})
	require.NoError(s.T(), err)
	require.Contains(s.T(), first, uid)
	assert.Greater(s.T(), first[uid], appendSeq)

	second, err := s.inbox.SetFlags(ctx, s.alice, UIDSetOf(uid), FlagDelta{Remove: []string{models.FlagSeen}})
	require.NoError(s.T(), err)
	assert.Greater(s.T(), second[uid], first[uid])
}

func (s *MessageManagerTestSuite) TestSetFlags_DeltaIsApplied() {
	ctx := context.Background()
	uid := s.append("flags", "body", models.FlagSeen, "keyword")

	_, err := s.inbox.SetFlags(ctx, s.alice, UIDSetOf(uid), FlagDelta{
		Add:    []string{models.FlagFlagged},
		Remove: []string{models.FlagSeen},
	})
	require.NoError(s.T(), err)

	views, err := s.inbox.GetMessages(ctx, s.alice, UIDSetOf(uid), []Property{PropertyFlags})
	require.NoError(s.T(), err)
	require.Len(s.T(), views, 1)
	assert.ElementsMatch(s.T(), []string{"keyword", models.FlagFlagged}, views[0].Flags)
}

func (s *MessageManagerTestSuite) TestSetFlags_RecentNotSettable() {
	uid := s.append("recent", "body")

	_, err := s.inbox.SetFlags(context.Background(), s.alice, UIDSetOf(uid), FlagDelta{Add: []string{models.FlagRecent}})
	assert.ErrorIs(s.T(), err, coreerrors.ErrInvalidInput)
}

func (s *MessageManagerTestSuite) TestSetFlags_EmptyDeltaRejected() {
	uid := s.append("noop", "body")

	_, err := s.inbox.SetFlags(context.Background(), s.alice, UIDSetOf(uid), FlagDelta{})
	assert.ErrorIs(s.T(), err, coreerrors.ErrInvalidInput)
}

func (s *MessageManagerTestSuite) TestSetFlags_DeletedNeedsDeleteMessagesRight() {
	ctx := context.Background()
	uid := s.append("guard", "body")
	path := models.InboxPath("alice")

	// write access alone does not allow marking for deletion
	require.NoError(s.T(), s.manager.SetACL(ctx, s.alice, path, "bob", acl.Lookup|acl.Read|acl.Write))
	shared, err := s.manager.GetMailbox(ctx, s.bob, path)
	require.NoError(s.T(), err)

	_, err = shared.SetFlags(ctx, s.bob, UIDSetOf(uid), FlagDelta{Add: []string{models.FlagDeleted}})
	assert.ErrorIs(s.T(), err, coreerrors.ErrInsufficientRights)

	_, err = shared.SetFlags(ctx, s.bob, UIDSetOf(uid), FlagDelta{Add: []string{models.FlagSeen}})
	assert.NoError(s.T(), err)

	require.NoError(s.T(), s.manager.SetACL(ctx, s.alice, path, "bob", acl.Lookup|acl.Read|acl.DeleteMessages))
	_, err = shared.SetFlags(ctx, s.bob, UIDSetOf(uid), FlagDelta{Add: []string{models.FlagDeleted}})
	assert.NoError(s.T(), err)
}

func (s *MessageManagerTestSuite) TestExpunge() {
	ctx := context.Background()
	doomed := s.append("bye", "body", models.FlagDeleted)
	kept := s.append("stay", "body")

	removed, err := s.inbox.Expunge(ctx, s.alice)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []uint32{doomed}, removed)

	views, err := s.inbox.GetMessages(ctx, s.alice, UIDSet{{From: 1, To: 100}}, []Property{})
	require.NoError(s.T(), err)
	require.Len(s.T(), views, 1)
	assert.Equal(s.T(), kept, views[0].UID)

	// expunged UIDs stay retired
	next := s.append("later", "body")
	assert.Greater(s.T(), next, kept)
}

func (s *MessageManagerTestSuite) TestCopy() {
	ctx := context.Background()
	dest := models.PersonalPath("alice", "archive")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, dest))

	src := s.append("keeper", "precious bytes", models.FlagSeen)

	copied, err := s.inbox.Copy(ctx, s.alice, UIDSetOf(src), dest)
	require.NoError(s.T(), err)
	require.Len(s.T(), copied, 1)
	assert.Equal(s.T(), uint32(1), copied[0])

	archive, err := s.manager.GetMailbox(ctx, s.alice, dest)
	require.NoError(s.T(), err)

	views, err := archive.GetMessages(ctx, s.alice, UIDSetOf(copied[0]), nil)
	require.NoError(s.T(), err)
	require.Len(s.T(), views, 1)
	assert.Equal(s.T(), "keeper", views[0].Subject)
	assert.Contains(s.T(), views[0].Flags, models.FlagSeen)

	// the copy has its own content
	reader, err := archive.GetContent(ctx, s.alice, copied[0])
	require.NoError(s.T(), err)
	data, err := io.ReadAll(reader)
	reader.Close()
	require.NoError(s.T(), err)
	assert.Contains(s.T(), string(data), "precious bytes")

	// source untouched
	srcViews, err := s.inbox.GetMessages(ctx, s.alice, UIDSetOf(src), []Property{})
	require.NoError(s.T(), err)
	assert.Len(s.T(), srcViews, 1)
}

func (s *MessageManagerTestSuite) TestCopy_NeedsInsertOnDestination() {
	ctx := context.Background()
	src := s.append("copy me", "body")
	require.NoError(s.T(), s.manager.SetACL(ctx, s.alice, models.InboxPath("alice"), "bob", acl.Lookup|acl.Read))

	shared, err := s.manager.GetMailbox(ctx, s.bob, models.InboxPath("alice"))
	require.NoError(s.T(), err)

	// bob owns his INBOX so copying into it works
	copied, err := shared.Copy(ctx, s.bob, UIDSetOf(src), models.InboxPath("bob"))
	require.NoError(s.T(), err)
	assert.Len(s.T(), copied, 1)

	// but copying into alice's archive without Insert is refused
	archive := models.PersonalPath("alice", "archive")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, archive))
	_, err = shared.Copy(ctx, s.bob, UIDSetOf(src), archive)
	assert.ErrorIs(s.T(), err, coreerrors.ErrMailboxNotFound)
}

func (s *MessageManagerTestSuite) TestAppend_NeedsInsertRight() {
	ctx := context.Background()
	require.NoError(s.T(), s.manager.SetACL(ctx, s.alice, models.InboxPath("alice"), "bob", acl.Lookup|acl.Read))

	shared, err := s.manager.GetMailbox(ctx, s.bob, models.InboxPath("alice"))
	require.NoError(s.T(), err)

	_, err = shared.Append(ctx, s.bob, rawMessage("nope", "body"), time.Now().UTC(), false, nil)
	assert.ErrorIs(s.T(), err, coreerrors.ErrInsufficientRights)
}

func (s *MessageManagerTestSuite) TestStaleManagerAfterDelete() {
	ctx := context.Background()
	path := models.PersonalPath("alice", "doomed")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, path))

	doomed, err := s.manager.GetMailbox(ctx, s.alice, path)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.manager.DeleteMailbox(ctx, s.alice, path))

	_, err = doomed.Append(ctx, s.alice, rawMessage("late", "body"), time.Now().UTC(), false, nil)
	assert.ErrorIs(s.T(), err, coreerrors.ErrMailboxNotFound)

	_, err = doomed.GetMessages(ctx, s.alice, UIDSet{{From: 1, To: 10}}, nil)
	assert.ErrorIs(s.T(), err, coreerrors.ErrMailboxNotFound)
}

func (s *MessageManagerTestSuite) TestManagerSurvivesRename() {
	ctx := context.Background()
	oldPath := models.PersonalPath("alice", "work")
	newPath := models.PersonalPath("alice", "archive")
	require.NoError(s.T(), s.manager.CreateMailbox(ctx, s.alice, oldPath))

	mailbox, err := s.manager.GetMailbox(ctx, s.alice, oldPath)
	require.NoError(s.T(), err)

	uid, err := mailbox.Append(ctx, s.alice, rawMessage("before", "body"), time.Now().UTC(), false, nil)
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.manager.RenameMailbox(ctx, s.alice, oldPath, newPath))

	// the bound manager keeps working across the rename
	views, err := mailbox.GetMessages(ctx, s.alice, UIDSetOf(uid), []Property{PropertySubject})
	require.NoError(s.T(), err)
	require.Len(s.T(), views, 1)
	assert.Equal(s.T(), "before", views[0].Subject)
}
