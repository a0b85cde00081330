package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/welldanyogia/webrana-mailstore/internal/models"
)

// MemoryStoreTestSuite exercises the mapper contract against the in-memory
// backend.
type MemoryStoreTestSuite struct {
	suite.Suite
	factory   Factory
	mailboxes MailboxMapper
	messages  MessageMapper
}

func (s *MemoryStoreTestSuite) SetupTest() {
	s.factory = NewMemoryFactory(NewMemoryStore())
	s.mailboxes = s.factory.MailboxMapper("test-session")
	s.messages = s.factory.MessageMapper("test-session")
}

func TestMemoryStoreTestSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreTestSuite))
}

func (s *MemoryStoreTestSuite) newMailbox(owner, name string) *models.Mailbox {
	mailbox := &models.Mailbox{
		Namespace:   models.PersonalNamespace,
		Owner:       owner,
		Name:        name,
		UIDValidity: s.factory.NextUIDValidity(),
		UIDNext:     1,
		NextModSeq:  1,
	}
	require.NoError(s.T(), s.mailboxes.Create(context.Background(), mailbox))
	return mailbox
}

func (s *MemoryStoreTestSuite) TestCreate_AssignsID() {
	mailbox := s.newMailbox("alice", "INBOX")
	assert.NotZero(s.T(), mailbox.ID)
}

func (s *MemoryStoreTestSuite) TestCreate_DuplicatePath() {
	s.newMailbox("alice", "INBOX")

	dup := &models.Mailbox{
		Namespace: models.PersonalNamespace,
		Owner:     "alice",
		Name:      "INBOX",
	}
	err := s.mailboxes.Create(context.Background(), dup)
	assert.ErrorIs(s.T(), err, ErrDuplicateEntry)
}

func (s *MemoryStoreTestSuite) TestGetByPath() {
	created := s.newMailbox("alice", "work")

	got, err := s.mailboxes.GetByPath(context.Background(), models.PersonalPath("alice", "work"))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), created.ID, got.ID)

	_, err = s.mailboxes.GetByPath(context.Background(), models.PersonalPath("alice", "missing"))
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *MemoryStoreTestSuite) TestAllocateUIDs_Monotonic() {
	mailbox := s.newMailbox("alice", "INBOX")
	ctx := context.Background()

	uid1, seq1, err := s.mailboxes.AllocateUIDs(ctx, mailbox.ID, 1)
	require.NoError(s.T(), err)
	uid2, seq2, err := s.mailboxes.AllocateUIDs(ctx, mailbox.ID, 3)
	require.NoError(s.T(), err)
	uid3, seq3, err := s.mailboxes.AllocateUIDs(ctx, mailbox.ID, 1)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), uint32(1), uid1)
	assert.Equal(s.T(), uint32(2), uid2)
	assert.Equal(s.T(), uint32(5), uid3)
	assert.Less(s.T(), seq1, seq2)
	assert.Less(s.T(), seq2, seq3)
}

func (s *MemoryStoreTestSuite) TestAllocateUIDs_ConcurrentRangesNeverOverlap() {
	mailbox := s.newMailbox("alice", "INBOX")
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan uint32, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uid, _, err := s.mailboxes.AllocateUIDs(ctx, mailbox.ID, 1)
			require.NoError(s.T(), err)
			results <- uid
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint32]bool)
	for uid := range results {
		assert.False(s.T(), seen[uid], "uid %d allocated twice", uid)
		seen[uid] = true
	}
	assert.Len(s.T(), seen, workers)
}

func (s *MemoryStoreTestSuite) TestAllocateModSeqs_DoesNotConsumeUIDs() {
	mailbox := s.newMailbox("alice", "INBOX")
	ctx := context.Background()

	_, err := s.mailboxes.AllocateModSeqs(ctx, mailbox.ID, 5)
	require.NoError(s.T(), err)

	uid, _, err := s.mailboxes.AllocateUIDs(ctx, mailbox.ID, 1)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uint32(1), uid)
}

func (s *MemoryStoreTestSuite) TestRename_KeepsIdentityAndCounters() {
	mailbox := s.newMailbox("alice", "work")
	ctx := context.Background()

	_, _, err := s.mailboxes.AllocateUIDs(ctx, mailbox.ID, 4)
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.mailboxes.Rename(ctx, mailbox.ID, models.PersonalPath("alice", "archive")))

	renamed, err := s.mailboxes.GetByID(ctx, mailbox.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "archive", renamed.Name)
	assert.Equal(s.T(), mailbox.UIDValidity, renamed.UIDValidity)
	assert.Equal(s.T(), uint32(5), renamed.UIDNext)

	_, err = s.mailboxes.GetByPath(ctx, models.PersonalPath("alice", "work"))
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *MemoryStoreTestSuite) TestRename_TargetOccupied() {
	a := s.newMailbox("alice", "work")
	s.newMailbox("alice", "archive")

	err := s.mailboxes.Rename(context.Background(), a.ID, models.PersonalPath("alice", "archive"))
	assert.ErrorIs(s.T(), err, ErrDuplicateEntry)
}

func (s *MemoryStoreTestSuite) TestDelete_Cascades() {
	mailbox := s.newMailbox("alice", "INBOX")
	ctx := context.Background()

	uid, seq, err := s.mailboxes.AllocateUIDs(ctx, mailbox.ID, 1)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.messages.Create(ctx, &models.Message{
		MailboxID: mailbox.ID,
		UID:       uid,
		ModSeq:    seq,
	}))

	require.NoError(s.T(), s.mailboxes.Delete(ctx, mailbox.ID))

	_, err = s.mailboxes.GetByID(ctx, mailbox.ID)
	assert.ErrorIs(s.T(), err, ErrNotFound)
	err = s.mailboxes.Delete(ctx, mailbox.ID)
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *MemoryStoreTestSuite) TestSetACLEntry_UpsertAndRemove() {
	mailbox := s.newMailbox("alice", "INBOX")
	ctx := context.Background()

	require.NoError(s.T(), s.mailboxes.SetACLEntry(ctx, mailbox.ID, "bob", "lr"))
	require.NoError(s.T(), s.mailboxes.SetACLEntry(ctx, mailbox.ID, "bob", "lrwi"))

	entries, err := s.mailboxes.GetACL(ctx, mailbox.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), entries, 1)
	assert.Equal(s.T(), "lrwi", entries[0].Rights)

	// empty rights remove the entry
	require.NoError(s.T(), s.mailboxes.SetACLEntry(ctx, mailbox.ID, "bob", ""))
	entries, err = s.mailboxes.GetACL(ctx, mailbox.ID)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), entries)
}

func (s *MemoryStoreTestSuite) TestGetACL_SnapshotIsDecoupled() {
	mailbox := s.newMailbox("alice", "INBOX")
	ctx := context.Background()

	require.NoError(s.T(), s.mailboxes.SetACLEntry(ctx, mailbox.ID, "bob", "lr"))
	snapshot, err := s.mailboxes.GetACL(ctx, mailbox.ID)
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.mailboxes.SetACLEntry(ctx, mailbox.ID, "bob", "a"))

	require.Len(s.T(), snapshot, 1)
	assert.Equal(s.T(), "lr", snapshot[0].Rights)
}

func (s *MemoryStoreTestSuite) addMessage(mailboxID uint, flags ...string) uint32 {
	ctx := context.Background()
	uid, seq, err := s.mailboxes.AllocateUIDs(ctx, mailboxID, 1)
	require.NoError(s.T(), err)

	message := &models.Message{MailboxID: mailboxID, UID: uid, ModSeq: seq}
	for _, name := range flags {
		message.Flags = append(message.Flags, models.MessageFlag{Name: name})
	}
	require.NoError(s.T(), s.messages.Create(ctx, message))
	return uid
}

func (s *MemoryStoreTestSuite) TestGetByUIDs_SkipsUnknownAndSorts() {
	mailbox := s.newMailbox("alice", "INBOX")
	uid1 := s.addMessage(mailbox.ID)
	uid2 := s.addMessage(mailbox.ID)

	got, err := s.messages.GetByUIDs(context.Background(), mailbox.ID, []uint32{uid2, 99, uid1})
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 2)
	assert.Equal(s.T(), uid1, got[0].UID)
	assert.Equal(s.T(), uid2, got[1].UID)
}

func (s *MemoryStoreTestSuite) TestUpdateFlags_ReplacesSetAndStampsModSeq() {
	mailbox := s.newMailbox("alice", "INBOX")
	uid := s.addMessage(mailbox.ID, models.FlagSeen)
	ctx := context.Background()

	seq, err := s.mailboxes.AllocateModSeqs(ctx, mailbox.ID, 1)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.messages.UpdateFlags(ctx, mailbox.ID, uid, []string{models.FlagFlagged}, seq))

	got, err := s.messages.GetByUIDs(ctx, mailbox.ID, []uint32{uid})
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), []string{models.FlagFlagged}, got[0].FlagNames())
	assert.Equal(s.T(), seq, got[0].ModSeq)
}

func (s *MemoryStoreTestSuite) TestDeleteFlagged_RemovesOnlyDeleted() {
	mailbox := s.newMailbox("alice", "INBOX")
	doomed := s.addMessage(mailbox.ID, models.FlagDeleted)
	kept := s.addMessage(mailbox.ID, models.FlagSeen)
	ctx := context.Background()

	removed, err := s.messages.DeleteFlagged(ctx, mailbox.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), removed, 1)
	assert.Equal(s.T(), doomed, removed[0].UID)

	remaining, err := s.messages.ListByMailbox(ctx, mailbox.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), remaining, 1)
	assert.Equal(s.T(), kept, remaining[0].UID)

	// retired UIDs are never reissued
	next := s.addMessage(mailbox.ID)
	assert.Greater(s.T(), next, kept)
}
