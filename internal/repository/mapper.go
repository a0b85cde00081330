// Package repository defines the persistence seam of the mailstore core:
// mapper interfaces for mailbox and message records plus the per-session
// factory that binds them to one storage backend. Swapping backends behind
// the Factory must not change any observable contract.
package repository

import (
	"context"
	"sync"
	"time"

	"github.com/welldanyogia/webrana-mailstore/internal/models"
)

// MailboxMapper provides CRUD over mailbox records for one backend.
//
// The UID/MODSEQ counters live on the mailbox record and move only through
// the allocate operations, which are atomic with respect to concurrent
// allocations on the same mailbox: two sessions can never be handed
// overlapping ranges.
type MailboxMapper interface {
	// Create stores a new mailbox. Returns ErrDuplicateEntry when the path
	// is already occupied.
	Create(ctx context.Context, mailbox *models.Mailbox) error

	// GetByID retrieves a mailbox by its backend-assigned identifier.
	GetByID(ctx context.Context, id uint) (*models.Mailbox, error)

	// GetByPath retrieves a mailbox by its path tuple, ACL included.
	GetByPath(ctx context.Context, path models.MailboxPath) (*models.Mailbox, error)

	// List returns every mailbox with its ACL. Visibility filtering is the
	// caller's concern.
	List(ctx context.Context) ([]models.Mailbox, error)

	// Rename moves the mailbox to newPath. UID validity, counters and
	// message identities are untouched. Returns ErrDuplicateEntry when
	// newPath is occupied.
	Rename(ctx context.Context, id uint, newPath models.MailboxPath) error

	// Delete removes the mailbox and cascades to its messages and ACL.
	Delete(ctx context.Context, id uint) error

	// GetACL returns a snapshot copy of the mailbox's ACL entries. The
	// returned slice is decoupled from later ACL writes.
	GetACL(ctx context.Context, mailboxID uint) ([]models.ACLEntry, error)

	// SetACLEntry upserts the entry for one identifier. Empty rights remove
	// the entry. ACL writes on one mailbox are serialized with each other.
	SetACLEntry(ctx context.Context, mailboxID uint, identifier, rights string) error

	// AllocateUIDs atomically reserves n consecutive UIDs and n consecutive
	// MODSEQs on the mailbox, returning the first of each range.
	AllocateUIDs(ctx context.Context, mailboxID uint, n int) (firstUID uint32, firstModSeq uint64, err error)

	// AllocateModSeqs atomically reserves n consecutive MODSEQs without
	// consuming UIDs, for flag mutations.
	AllocateModSeqs(ctx context.Context, mailboxID uint, n int) (firstModSeq uint64, err error)
}

// MessageMapper provides CRUD over message records for one backend.
// Messages are keyed by (mailbox ID, UID) so the contract holds for
// backends without a global row identifier.
type MessageMapper interface {
	// Create stores a new message record with its flags. The caller has
	// already allocated the UID and MODSEQ.
	Create(ctx context.Context, message *models.Message) error

	// GetByUIDs returns the messages with the given UIDs, flags included,
	// in ascending UID order. Unknown UIDs are skipped, never an error.
	GetByUIDs(ctx context.Context, mailboxID uint, uids []uint32) ([]models.Message, error)

	// ListByMailbox returns all messages of a mailbox in ascending UID order.
	ListByMailbox(ctx context.Context, mailboxID uint) ([]models.Message, error)

	// UpdateFlags replaces the flag set of one message and stamps the
	// freshly allocated MODSEQ.
	UpdateFlags(ctx context.Context, mailboxID uint, uid uint32, flags []string, modSeq uint64) error

	// DeleteFlagged removes every message carrying \Deleted and returns the
	// removed records. Their UIDs are permanently retired.
	DeleteFlagged(ctx context.Context, mailboxID uint) ([]models.Message, error)
}

// Factory produces mappers bound to one backend instance, scoped to one
// session. Mappers from factories over the same backend observe each
// other's acknowledged writes.
type Factory interface {
	// MailboxMapper returns a mailbox mapper for the given session.
	MailboxMapper(sessionID string) MailboxMapper

	// MessageMapper returns a message mapper for the given session.
	MessageMapper(sessionID string) MessageMapper

	// NextUIDValidity returns a fresh UID-validity marker, monotonically
	// non-decreasing across the deployment.
	NextUIDValidity() uint32

	// Close releases backend resources.
	Close() error
}

// uidValidity hands out UID-validity markers derived from the clock but
// guarded so restarts or clock steps can never move them backwards within
// a process.
var uidValidity struct {
	mu   sync.Mutex
	last uint32
}

// NextUIDValidity returns the next UID-validity marker.
func NextUIDValidity() uint32 {
	uidValidity.mu.Lock()
	defer uidValidity.mu.Unlock()

	v := uint32(time.Now().Unix())
	if v <= uidValidity.last {
		v = uidValidity.last + 1
	}
	uidValidity.last = v
	return v
}
