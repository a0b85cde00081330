package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"
	"github.com/welldanyogia/webrana-mailstore/internal/models"
)

const mailboxSequence = "mailbox_id"

// cassandraMailboxMapper implements MailboxMapper over a Cassandra session
type cassandraMailboxMapper struct {
	session   *gocql.Session
	sessionID string
}

// nextMailboxID advances the mailbox id sequence with a CAS loop.
func (m *cassandraMailboxMapper) nextMailboxID(ctx context.Context) (uint, error) {
	for {
		var next int64
		err := m.session.Query(
			`SELECT next FROM mailstore_sequences WHERE name = ?`, mailboxSequence,
		).WithContext(ctx).Scan(&next)
		if errors.Is(err, gocql.ErrNotFound) {
			applied, err := m.session.Query(
				`INSERT INTO mailstore_sequences (name, next) VALUES (?, 2) IF NOT EXISTS`, mailboxSequence,
			).WithContext(ctx).ScanCAS()
			if err != nil {
				return 0, translateCassandraError(err)
			}
			if applied {
				return 1, nil
			}
			continue
		}
		if err != nil {
			return 0, translateCassandraError(err)
		}

		applied, err := m.session.Query(
			`UPDATE mailstore_sequences SET next = ? WHERE name = ? IF next = ?`,
			next+1, mailboxSequence, next,
		).WithContext(ctx).ScanCAS()
		if err != nil {
			return 0, translateCassandraError(err)
		}
		if applied {
			return uint(next), nil
		}
	}
}

// Create stores a new mailbox, claiming its path with a lightweight
// transaction so two sessions cannot create the same path.
func (m *cassandraMailboxMapper) Create(ctx context.Context, mailbox *models.Mailbox) error {
	id, err := m.nextMailboxID(ctx)
	if err != nil {
		return fmt.Errorf("failed to allocate mailbox id: %w", err)
	}

	applied, err := m.session.Query(
		`INSERT INTO mailbox_by_path (namespace, owner, name, id) VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		mailbox.Namespace, mailbox.Owner, mailbox.Name, int64(id),
	).WithContext(ctx).ScanCAS()
	if err != nil {
		return translateCassandraError(err)
	}
	if !applied {
		return fmt.Errorf("mailbox %q already exists: %w", mailbox.Path().String(), ErrDuplicateEntry)
	}

	mailbox.ID = id
	if mailbox.UIDNext == 0 {
		mailbox.UIDNext = 1
	}
	if mailbox.NextModSeq == 0 {
		mailbox.NextModSeq = 1
	}

	if err := m.session.Query(
		`INSERT INTO mailboxes (id, namespace, owner, name, uid_validity, uid_next, next_mod_seq) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(mailbox.ID), mailbox.Namespace, mailbox.Owner, mailbox.Name,
		int(mailbox.UIDValidity), int64(mailbox.UIDNext), int64(mailbox.NextModSeq),
	).WithContext(ctx).Exec(); err != nil {
		return translateCassandraError(err)
	}

	for _, entry := range mailbox.ACL {
		if err := m.SetACLEntry(ctx, mailbox.ID, entry.Identifier, entry.Rights); err != nil {
			return err
		}
	}
	return nil
}

func (m *cassandraMailboxMapper) scanMailbox(ctx context.Context, id int64) (*models.Mailbox, error) {
	var mailbox models.Mailbox
	var uidValidity int
	var uidNext, nextModSeq int64
	err := m.session.Query(
		`SELECT id, namespace, owner, name, uid_validity, uid_next, next_mod_seq FROM mailboxes WHERE id = ?`, id,
	).WithContext(ctx).Scan(&id, &mailbox.Namespace, &mailbox.Owner, &mailbox.Name, &uidValidity, &uidNext, &nextModSeq)
	if err != nil {
		return nil, translateCassandraError(err)
	}
	mailbox.ID = uint(id)
	mailbox.UIDValidity = uint32(uidValidity)
	mailbox.UIDNext = uint32(uidNext)
	mailbox.NextModSeq = uint64(nextModSeq)

	acl, err := m.GetACL(ctx, mailbox.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	mailbox.ACL = acl
	return &mailbox, nil
}

// GetByID retrieves a mailbox by ID
func (m *cassandraMailboxMapper) GetByID(ctx context.Context, id uint) (*models.Mailbox, error) {
	return m.scanMailbox(ctx, int64(id))
}

// GetByPath retrieves a mailbox by its path tuple
func (m *cassandraMailboxMapper) GetByPath(ctx context.Context, path models.MailboxPath) (*models.Mailbox, error) {
	var id int64
	err := m.session.Query(
		`SELECT id FROM mailbox_by_path WHERE namespace = ? AND owner = ? AND name = ?`,
		path.Namespace, path.User, path.Name,
	).WithContext(ctx).Scan(&id)
	if err != nil {
		return nil, translateCassandraError(err)
	}
	return m.scanMailbox(ctx, id)
}

// List returns every mailbox with its ACL
func (m *cassandraMailboxMapper) List(ctx context.Context) ([]models.Mailbox, error) {
	iter := m.session.Query(
		`SELECT id, namespace, owner, name, uid_validity, uid_next, next_mod_seq FROM mailboxes`,
	).WithContext(ctx).Iter()

	var out []models.Mailbox
	var id int64
	var uidValidity int
	var uidNext, nextModSeq int64
	var mailbox models.Mailbox
	for iter.Scan(&id, &mailbox.Namespace, &mailbox.Owner, &mailbox.Name, &uidValidity, &uidNext, &nextModSeq) {
		mailbox.ID = uint(id)
		mailbox.UIDValidity = uint32(uidValidity)
		mailbox.UIDNext = uint32(uidNext)
		mailbox.NextModSeq = uint64(nextModSeq)
		out = append(out, mailbox)
		mailbox = models.Mailbox{}
	}
	if err := iter.Close(); err != nil {
		return nil, translateCassandraError(err)
	}

	for i := range out {
		acl, err := m.GetACL(ctx, out[i].ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		out[i].ACL = acl
	}
	return out, nil
}

// Rename moves the mailbox to a new path
func (m *cassandraMailboxMapper) Rename(ctx context.Context, id uint, newPath models.MailboxPath) error {
	mailbox, err := m.GetByID(ctx, id)
	if err != nil {
		return err
	}

	applied, err := m.session.Query(
		`INSERT INTO mailbox_by_path (namespace, owner, name, id) VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		newPath.Namespace, newPath.User, newPath.Name, int64(id),
	).WithContext(ctx).ScanCAS()
	if err != nil {
		return translateCassandraError(err)
	}
	if !applied {
		return fmt.Errorf("mailbox %q already exists: %w", newPath.String(), ErrDuplicateEntry)
	}

	if err := m.session.Query(
		`DELETE FROM mailbox_by_path WHERE namespace = ? AND owner = ? AND name = ?`,
		mailbox.Namespace, mailbox.Owner, mailbox.Name,
	).WithContext(ctx).Exec(); err != nil {
		return translateCassandraError(err)
	}
	if err := m.session.Query(
		`UPDATE mailboxes SET namespace = ?, owner = ?, name = ? WHERE id = ?`,
		newPath.Namespace, newPath.User, newPath.Name, int64(id),
	).WithContext(ctx).Exec(); err != nil {
		return translateCassandraError(err)
	}
	return nil
}

// Delete removes the mailbox, its messages, its ACL and its path claim
func (m *cassandraMailboxMapper) Delete(ctx context.Context, id uint) error {
	mailbox, err := m.GetByID(ctx, id)
	if err != nil {
		return err
	}

	queries := []struct {
		stmt string
		args []interface{}
	}{
		{`DELETE FROM messages WHERE mailbox_id = ?`, []interface{}{int64(id)}},
		{`DELETE FROM mailbox_acl WHERE mailbox_id = ?`, []interface{}{int64(id)}},
		{`DELETE FROM mailbox_by_path WHERE namespace = ? AND owner = ? AND name = ?`,
			[]interface{}{mailbox.Namespace, mailbox.Owner, mailbox.Name}},
		{`DELETE FROM mailboxes WHERE id = ?`, []interface{}{int64(id)}},
	}
	for _, q := range queries {
		if err := m.session.Query(q.stmt, q.args...).WithContext(ctx).Exec(); err != nil {
			return translateCassandraError(err)
		}
	}
	return nil
}

// GetACL returns a snapshot of the mailbox's ACL entries
func (m *cassandraMailboxMapper) GetACL(ctx context.Context, mailboxID uint) ([]models.ACLEntry, error) {
	iter := m.session.Query(
		`SELECT identifier, rights FROM mailbox_acl WHERE mailbox_id = ?`, int64(mailboxID),
	).WithContext(ctx).Iter()

	var entries []models.ACLEntry
	var identifier, rights string
	for iter.Scan(&identifier, &rights) {
		entries = append(entries, models.ACLEntry{MailboxID: mailboxID, Identifier: identifier, Rights: rights})
	}
	if err := iter.Close(); err != nil {
		return nil, translateCassandraError(err)
	}
	return entries, nil
}

// SetACLEntry upserts the entry for one identifier
func (m *cassandraMailboxMapper) SetACLEntry(ctx context.Context, mailboxID uint, identifier, rights string) error {
	if rights == "" {
		return translateCassandraError(m.session.Query(
			`DELETE FROM mailbox_acl WHERE mailbox_id = ? AND identifier = ?`,
			int64(mailboxID), identifier,
		).WithContext(ctx).Exec())
	}
	return translateCassandraError(m.session.Query(
		`INSERT INTO mailbox_acl (mailbox_id, identifier, rights) VALUES (?, ?, ?)`,
		int64(mailboxID), identifier, rights,
	).WithContext(ctx).Exec())
}

// AllocateUIDs reserves n consecutive UIDs and MODSEQs with a CAS loop
func (m *cassandraMailboxMapper) AllocateUIDs(ctx context.Context, mailboxID uint, n int) (uint32, uint64, error) {
	for {
		var uidNext, nextModSeq int64
		err := m.session.Query(
			`SELECT uid_next, next_mod_seq FROM mailboxes WHERE id = ?`, int64(mailboxID),
		).WithContext(ctx).Scan(&uidNext, &nextModSeq)
		if err != nil {
			return 0, 0, translateCassandraError(err)
		}

		applied, err := m.session.Query(
			`UPDATE mailboxes SET uid_next = ?, next_mod_seq = ? WHERE id = ? IF uid_next = ? AND next_mod_seq = ?`,
			uidNext+int64(n), nextModSeq+int64(n), int64(mailboxID), uidNext, nextModSeq,
		).WithContext(ctx).ScanCAS()
		if err != nil {
			return 0, 0, translateCassandraError(err)
		}
		if applied {
			return uint32(uidNext), uint64(nextModSeq), nil
		}
	}
}

// AllocateModSeqs reserves n consecutive MODSEQs with a CAS loop
func (m *cassandraMailboxMapper) AllocateModSeqs(ctx context.Context, mailboxID uint, n int) (uint64, error) {
	for {
		var nextModSeq int64
		err := m.session.Query(
			`SELECT next_mod_seq FROM mailboxes WHERE id = ?`, int64(mailboxID),
		).WithContext(ctx).Scan(&nextModSeq)
		if err != nil {
			return 0, translateCassandraError(err)
		}

		applied, err := m.session.Query(
			`UPDATE mailboxes SET next_mod_seq = ? WHERE id = ? IF next_mod_seq = ?`,
			nextModSeq+int64(n), int64(mailboxID), nextModSeq,
		).WithContext(ctx).ScanCAS()
		if err != nil {
			return 0, translateCassandraError(err)
		}
		if applied {
			return uint64(nextModSeq), nil
		}
	}
}
