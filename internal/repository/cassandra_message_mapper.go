package repository

import (
	"context"
	"time"

	"github.com/gocql/gocql"
	"github.com/welldanyogia/webrana-mailstore/internal/models"
)

// cassandraMessageMapper implements MessageMapper over a Cassandra session.
// Messages live in one partition per mailbox, clustered by UID, so UID-range
// reads stay on a single replica set.
type cassandraMessageMapper struct {
	session   *gocql.Session
	sessionID string
}

// Create stores a new message record
func (m *cassandraMessageMapper) Create(ctx context.Context, message *models.Message) error {
	applied, err := m.session.Query(
		`INSERT INTO messages (mailbox_id, uid, mod_seq, size, received_at, subject, content_type, content_ref, flags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		int64(message.MailboxID), int64(message.UID), int64(message.ModSeq), message.Size,
		message.ReceivedAt, message.Subject, message.ContentType, message.ContentRef,
		message.FlagNames(),
	).WithContext(ctx).ScanCAS()
	if err != nil {
		return translateCassandraError(err)
	}
	if !applied {
		return ErrDuplicateEntry
	}
	return nil
}

func scanCassandraMessage(iter *gocql.Iter, mailboxID uint) ([]models.Message, error) {
	var out []models.Message
	var uid, modSeq, size int64
	var receivedAt time.Time
	var subject, contentType, contentRef string
	var flags []string
	for iter.Scan(&uid, &modSeq, &size, &receivedAt, &subject, &contentType, &contentRef, &flags) {
		msg := models.Message{
			MailboxID:   mailboxID,
			UID:         uint32(uid),
			ModSeq:      uint64(modSeq),
			Size:        size,
			ReceivedAt:  receivedAt,
			Subject:     subject,
			ContentType: contentType,
			ContentRef:  contentRef,
		}
		for _, name := range flags {
			msg.Flags = append(msg.Flags, models.MessageFlag{Name: name})
		}
		out = append(out, msg)
		flags = nil
	}
	if err := iter.Close(); err != nil {
		return nil, translateCassandraError(err)
	}
	return out, nil
}

// GetByUIDs returns messages by UID, skipping unknown UIDs
func (m *cassandraMessageMapper) GetByUIDs(ctx context.Context, mailboxID uint, uids []uint32) ([]models.Message, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, int64(uid))
	}
	iter := m.session.Query(
		`SELECT uid, mod_seq, size, received_at, subject, content_type, content_ref, flags
		 FROM messages WHERE mailbox_id = ? AND uid IN ?`,
		int64(mailboxID), ids,
	).WithContext(ctx).Iter()
	return scanCassandraMessage(iter, mailboxID)
}

// ListByMailbox returns all messages in ascending UID order
func (m *cassandraMessageMapper) ListByMailbox(ctx context.Context, mailboxID uint) ([]models.Message, error) {
	iter := m.session.Query(
		`SELECT uid, mod_seq, size, received_at, subject, content_type, content_ref, flags
		 FROM messages WHERE mailbox_id = ?`,
		int64(mailboxID),
	).WithContext(ctx).Iter()
	return scanCassandraMessage(iter, mailboxID)
}

// UpdateFlags replaces the flag set of one message and stamps the new MODSEQ
func (m *cassandraMessageMapper) UpdateFlags(ctx context.Context, mailboxID uint, uid uint32, flags []string, modSeq uint64) error {
	applied, err := m.session.Query(
		`UPDATE messages SET flags = ?, mod_seq = ? WHERE mailbox_id = ? AND uid = ? IF EXISTS`,
		flags, int64(modSeq), int64(mailboxID), int64(uid),
	).WithContext(ctx).ScanCAS()
	if err != nil {
		return translateCassandraError(err)
	}
	if !applied {
		return ErrNotFound
	}
	return nil
}

// DeleteFlagged removes every message carrying \Deleted
func (m *cassandraMessageMapper) DeleteFlagged(ctx context.Context, mailboxID uint) ([]models.Message, error) {
	all, err := m.ListByMailbox(ctx, mailboxID)
	if err != nil {
		return nil, err
	}

	var removed []models.Message
	for _, msg := range all {
		if !msg.HasFlag(models.FlagDeleted) {
			continue
		}
		if err := m.session.Query(
			`DELETE FROM messages WHERE mailbox_id = ? AND uid = ?`,
			int64(mailboxID), int64(msg.UID),
		).WithContext(ctx).Exec(); err != nil {
			return nil, translateCassandraError(err)
		}
		removed = append(removed, msg)
	}
	return removed, nil
}
