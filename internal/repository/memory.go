package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/welldanyogia/webrana-mailstore/internal/models"
)

// MemoryStore is the in-memory reference backend. One store instance is the
// unit of sharing: factories created over the same store observe each
// other's writes immediately, which mirrors the acknowledged-write
// visibility of the persistent backends.
type MemoryStore struct {
	mu            sync.RWMutex
	nextMailboxID uint
	mailboxes     map[uint]*memMailbox
	byPath        map[models.MailboxPath]uint
}

type memMailbox struct {
	rec      models.Mailbox
	acl      []models.ACLEntry
	messages map[uint32]*models.Message
}

// NewMemoryStore creates an empty in-memory backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mailboxes: make(map[uint]*memMailbox),
		byPath:    make(map[models.MailboxPath]uint),
	}
}

// memoryFactory binds mappers to one MemoryStore.
type memoryFactory struct {
	store *MemoryStore
}

// NewMemoryFactory creates a Factory over the given store.
func NewMemoryFactory(store *MemoryStore) Factory {
	return &memoryFactory{store: store}
}

// MailboxMapper returns a mailbox mapper for the given session.
func (f *memoryFactory) MailboxMapper(sessionID string) MailboxMapper {
	return &memoryMailboxMapper{store: f.store, sessionID: sessionID}
}

// MessageMapper returns a message mapper for the given session.
func (f *memoryFactory) MessageMapper(sessionID string) MessageMapper {
	return &memoryMessageMapper{store: f.store, sessionID: sessionID}
}

// NextUIDValidity returns a fresh UID-validity marker.
func (f *memoryFactory) NextUIDValidity() uint32 {
	return NextUIDValidity()
}

// Close releases backend resources. The in-memory store holds none.
func (f *memoryFactory) Close() error {
	return nil
}

// memoryMailboxMapper implements MailboxMapper over a MemoryStore
type memoryMailboxMapper struct {
	store     *MemoryStore
	sessionID string
}

// Create stores a new mailbox
func (m *memoryMailboxMapper) Create(ctx context.Context, mailbox *models.Mailbox) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	path := mailbox.Path()
	if _, occupied := s.byPath[path]; occupied {
		return ErrDuplicateEntry
	}

	s.nextMailboxID++
	mailbox.ID = s.nextMailboxID
	if mailbox.UIDNext == 0 {
		mailbox.UIDNext = 1
	}
	if mailbox.NextModSeq == 0 {
		mailbox.NextModSeq = 1
	}

	rec := *mailbox
	rec.ACL = nil
	s.mailboxes[mailbox.ID] = &memMailbox{
		rec:      rec,
		acl:      append([]models.ACLEntry(nil), mailbox.ACL...),
		messages: make(map[uint32]*models.Message),
	}
	s.byPath[path] = mailbox.ID
	return nil
}

// GetByID retrieves a mailbox by ID
func (m *memoryMailboxMapper) GetByID(ctx context.Context, id uint) (*models.Mailbox, error) {
	s := m.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMailbox(mb), nil
}

// GetByPath retrieves a mailbox by its path tuple
func (m *memoryMailboxMapper) GetByPath(ctx context.Context, path models.MailboxPath) (*models.Mailbox, error) {
	s := m.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPath[path]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMailbox(s.mailboxes[id]), nil
}

// List returns every mailbox with its ACL
func (m *memoryMailboxMapper) List(ctx context.Context) ([]models.Mailbox, error) {
	s := m.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Mailbox, 0, len(s.mailboxes))
	for _, mb := range s.mailboxes {
		out = append(out, *copyMailbox(mb))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Rename moves the mailbox to a new path
func (m *memoryMailboxMapper) Rename(ctx context.Context, id uint, newPath models.MailboxPath) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return ErrNotFound
	}
	if existing, occupied := s.byPath[newPath]; occupied && existing != id {
		return ErrDuplicateEntry
	}

	delete(s.byPath, mb.rec.Path())
	mb.rec.Namespace = newPath.Namespace
	mb.rec.Owner = newPath.User
	mb.rec.Name = newPath.Name
	s.byPath[newPath] = id
	return nil
}

// Delete removes the mailbox and its messages
func (m *memoryMailboxMapper) Delete(ctx context.Context, id uint) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byPath, mb.rec.Path())
	delete(s.mailboxes, id)
	return nil
}

// GetACL returns a snapshot copy of the mailbox's ACL entries
func (m *memoryMailboxMapper) GetACL(ctx context.Context, mailboxID uint) ([]models.ACLEntry, error) {
	s := m.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	mb, ok := s.mailboxes[mailboxID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]models.ACLEntry(nil), mb.acl...), nil
}

// SetACLEntry upserts the entry for one identifier
func (m *memoryMailboxMapper) SetACLEntry(ctx context.Context, mailboxID uint, identifier, rights string) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[mailboxID]
	if !ok {
		return ErrNotFound
	}

	for i, entry := range mb.acl {
		if entry.Identifier == identifier {
			if rights == "" {
				mb.acl = append(mb.acl[:i], mb.acl[i+1:]...)
			} else {
				mb.acl[i].Rights = rights
			}
			return nil
		}
	}
	if rights == "" {
		return nil
	}
	mb.acl = append(mb.acl, models.ACLEntry{MailboxID: mailboxID, Identifier: identifier, Rights: rights})
	return nil
}

// AllocateUIDs atomically reserves n consecutive UIDs and MODSEQs
func (m *memoryMailboxMapper) AllocateUIDs(ctx context.Context, mailboxID uint, n int) (uint32, uint64, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[mailboxID]
	if !ok {
		return 0, 0, ErrNotFound
	}
	firstUID := mb.rec.UIDNext
	firstModSeq := mb.rec.NextModSeq
	mb.rec.UIDNext += uint32(n)
	mb.rec.NextModSeq += uint64(n)
	return firstUID, firstModSeq, nil
}

// AllocateModSeqs atomically reserves n consecutive MODSEQs
func (m *memoryMailboxMapper) AllocateModSeqs(ctx context.Context, mailboxID uint, n int) (uint64, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[mailboxID]
	if !ok {
		return 0, ErrNotFound
	}
	firstModSeq := mb.rec.NextModSeq
	mb.rec.NextModSeq += uint64(n)
	return firstModSeq, nil
}

// memoryMessageMapper implements MessageMapper over a MemoryStore
type memoryMessageMapper struct {
	store     *MemoryStore
	sessionID string
}

// Create stores a new message record
func (m *memoryMessageMapper) Create(ctx context.Context, message *models.Message) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[message.MailboxID]
	if !ok {
		return ErrNotFound
	}
	if _, exists := mb.messages[message.UID]; exists {
		return ErrDuplicateEntry
	}
	mb.messages[message.UID] = copyMessage(message)
	return nil
}

// GetByUIDs returns messages by UID, skipping unknown UIDs
func (m *memoryMessageMapper) GetByUIDs(ctx context.Context, mailboxID uint, uids []uint32) ([]models.Message, error) {
	s := m.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	mb, ok := s.mailboxes[mailboxID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]models.Message, 0, len(uids))
	for _, uid := range uids {
		if msg, exists := mb.messages[uid]; exists {
			out = append(out, *copyMessage(msg))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

// ListByMailbox returns all messages in ascending UID order
func (m *memoryMessageMapper) ListByMailbox(ctx context.Context, mailboxID uint) ([]models.Message, error) {
	s := m.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	mb, ok := s.mailboxes[mailboxID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]models.Message, 0, len(mb.messages))
	for _, msg := range mb.messages {
		out = append(out, *copyMessage(msg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

// UpdateFlags replaces the flag set of one message
func (m *memoryMessageMapper) UpdateFlags(ctx context.Context, mailboxID uint, uid uint32, flags []string, modSeq uint64) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[mailboxID]
	if !ok {
		return ErrNotFound
	}
	msg, exists := mb.messages[uid]
	if !exists {
		return ErrNotFound
	}
	msg.Flags = msg.Flags[:0]
	for _, name := range flags {
		msg.Flags = append(msg.Flags, models.MessageFlag{MessageID: msg.ID, Name: name})
	}
	msg.ModSeq = modSeq
	return nil
}

// DeleteFlagged removes every message carrying \Deleted
func (m *memoryMessageMapper) DeleteFlagged(ctx context.Context, mailboxID uint) ([]models.Message, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[mailboxID]
	if !ok {
		return nil, ErrNotFound
	}
	var removed []models.Message
	for uid, msg := range mb.messages {
		if msg.HasFlag(models.FlagDeleted) {
			removed = append(removed, *copyMessage(msg))
			delete(mb.messages, uid)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].UID < removed[j].UID })
	return removed, nil
}

func copyMailbox(mb *memMailbox) *models.Mailbox {
	out := mb.rec
	out.ACL = append([]models.ACLEntry(nil), mb.acl...)
	return &out
}

func copyMessage(msg *models.Message) *models.Message {
	out := *msg
	out.Flags = append([]models.MessageFlag(nil), msg.Flags...)
	return &out
}
