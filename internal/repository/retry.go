package repository

import (
	"context"
	"errors"
	"time"

	"github.com/welldanyogia/webrana-mailstore/internal/models"
)

// RetryConfig tunes the bounded retry applied at the factory boundary for
// transient backend failures.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the wait before the second try; later waits grow linearly.
	Backoff time.Duration
}

// DefaultRetryConfig is used when the caller passes a zero config.
var DefaultRetryConfig = RetryConfig{Attempts: 3, Backoff: 100 * time.Millisecond}

// NewRetryingFactory decorates a Factory so that operations failing with
// ErrUnavailable are retried with backoff before the error surfaces.
// All other errors pass through on the first occurrence.
func NewRetryingFactory(inner Factory, cfg RetryConfig) Factory {
	if cfg.Attempts <= 0 {
		cfg = DefaultRetryConfig
	}
	return &retryFactory{inner: inner, cfg: cfg}
}

type retryFactory struct {
	inner Factory
	cfg   RetryConfig
}

func (f *retryFactory) MailboxMapper(sessionID string) MailboxMapper {
	return &retryMailboxMapper{inner: f.inner.MailboxMapper(sessionID), cfg: f.cfg}
}

func (f *retryFactory) MessageMapper(sessionID string) MessageMapper {
	return &retryMessageMapper{inner: f.inner.MessageMapper(sessionID), cfg: f.cfg}
}

func (f *retryFactory) NextUIDValidity() uint32 {
	return f.inner.NextUIDValidity()
}

func (f *retryFactory) Close() error {
	return f.inner.Close()
}

// withRetry runs op up to cfg.Attempts times while it keeps failing with
// ErrUnavailable, waiting between tries and honoring context cancellation.
func withRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, ErrUnavailable) || attempt >= cfg.Attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Backoff * time.Duration(attempt)):
		}
	}
}

type retryMailboxMapper struct {
	inner MailboxMapper
	cfg   RetryConfig
}

func (m *retryMailboxMapper) Create(ctx context.Context, mailbox *models.Mailbox) error {
	return withRetry(ctx, m.cfg, func() error { return m.inner.Create(ctx, mailbox) })
}

func (m *retryMailboxMapper) GetByID(ctx context.Context, id uint) (*models.Mailbox, error) {
	var out *models.Mailbox
	err := withRetry(ctx, m.cfg, func() (err error) {
		out, err = m.inner.GetByID(ctx, id)
		return err
	})
	return out, err
}

func (m *retryMailboxMapper) GetByPath(ctx context.Context, path models.MailboxPath) (*models.Mailbox, error) {
	var out *models.Mailbox
	err := withRetry(ctx, m.cfg, func() (err error) {
		out, err = m.inner.GetByPath(ctx, path)
		return err
	})
	return out, err
}

func (m *retryMailboxMapper) List(ctx context.Context) ([]models.Mailbox, error) {
	var out []models.Mailbox
	err := withRetry(ctx, m.cfg, func() (err error) {
		out, err = m.inner.List(ctx)
		return err
	})
	return out, err
}

func (m *retryMailboxMapper) Rename(ctx context.Context, id uint, newPath models.MailboxPath) error {
	return withRetry(ctx, m.cfg, func() error { return m.inner.Rename(ctx, id, newPath) })
}

func (m *retryMailboxMapper) Delete(ctx context.Context, id uint) error {
	return withRetry(ctx, m.cfg, func() error { return m.inner.Delete(ctx, id) })
}

func (m *retryMailboxMapper) GetACL(ctx context.Context, mailboxID uint) ([]models.ACLEntry, error) {
	var out []models.ACLEntry
	err := withRetry(ctx, m.cfg, func() (err error) {
		out, err = m.inner.GetACL(ctx, mailboxID)
		return err
	})
	return out, err
}

func (m *retryMailboxMapper) SetACLEntry(ctx context.Context, mailboxID uint, identifier, rights string) error {
	return withRetry(ctx, m.cfg, func() error { return m.inner.SetACLEntry(ctx, mailboxID, identifier, rights) })
}

func (m *retryMailboxMapper) AllocateUIDs(ctx context.Context, mailboxID uint, n int) (uint32, uint64, error) {
	var uid uint32
	var modSeq uint64
	err := withRetry(ctx, m.cfg, func() (err error) {
		uid, modSeq, err = m.inner.AllocateUIDs(ctx, mailboxID, n)
		return err
	})
	return uid, modSeq, err
}

func (m *retryMailboxMapper) AllocateModSeqs(ctx context.Context, mailboxID uint, n int) (uint64, error) {
	var modSeq uint64
	err := withRetry(ctx, m.cfg, func() (err error) {
		modSeq, err = m.inner.AllocateModSeqs(ctx, mailboxID, n)
		return err
	})
	return modSeq, err
}

type retryMessageMapper struct {
	inner MessageMapper
	cfg   RetryConfig
}

func (m *retryMessageMapper) Create(ctx context.Context, message *models.Message) error {
	return withRetry(ctx, m.cfg, func() error { return m.inner.Create(ctx, message) })
}

func (m *retryMessageMapper) GetByUIDs(ctx context.Context, mailboxID uint, uids []uint32) ([]models.Message, error) {
	var out []models.Message
	err := withRetry(ctx, m.cfg, func() (err error) {
		out, err = m.inner.GetByUIDs(ctx, mailboxID, uids)
		return err
	})
	return out, err
}

func (m *retryMessageMapper) ListByMailbox(ctx context.Context, mailboxID uint) ([]models.Message, error) {
	var out []models.Message
	err := withRetry(ctx, m.cfg, func() (err error) {
		out, err = m.inner.ListByMailbox(ctx, mailboxID)
		return err
	})
	return out, err
}

func (m *retryMessageMapper) UpdateFlags(ctx context.Context, mailboxID uint, uid uint32, flags []string, modSeq uint64) error {
	return withRetry(ctx, m.cfg, func() error { return m.inner.UpdateFlags(ctx, mailboxID, uid, flags, modSeq) })
}

func (m *retryMessageMapper) DeleteFlagged(ctx context.Context, mailboxID uint) ([]models.Message, error) {
	var out []models.Message
	err := withRetry(ctx, m.cfg, func() (err error) {
		out, err = m.inner.DeleteFlagged(ctx, mailboxID)
		return err
	})
	return out, err
}
