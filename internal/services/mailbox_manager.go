package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/welldanyogia/webrana-mailstore/internal/acl"
	coreerrors "github.com/welldanyogia/webrana-mailstore/internal/errors"
	"github.com/welldanyogia/webrana-mailstore/internal/events"
	"github.com/welldanyogia/webrana-mailstore/internal/models"
	"github.com/welldanyogia/webrana-mailstore/internal/repository"
	"github.com/welldanyogia/webrana-mailstore/internal/storage"
	"github.com/welldanyogia/webrana-mailstore/internal/validator"
)

// MailboxManagerConfig holds the collaborators of a MailboxManager.
type MailboxManagerConfig struct {
	Factory       repository.Factory
	Authenticator Authenticator
	Groups        GroupLookup
	ContentStore  storage.ContentStore
	Publisher     events.Publisher
	Delimiter     string
}

// MailboxManager is the top-level entry point of the core: it opens
// sessions, resolves mailbox paths, manages mailbox lifecycle and hands out
// per-mailbox MessageManagers. All access decisions go through the ACL
// resolver on a snapshot of the mailbox's ACL.
type MailboxManager struct {
	factory   repository.Factory
	auth      Authenticator
	groups    GroupLookup
	content   storage.ContentStore
	resolver  *acl.Resolver
	publisher events.Publisher
	delimiter string
	locks     *mailboxLocks
}

// NewMailboxManager creates a MailboxManager.
func NewMailboxManager(cfg MailboxManagerConfig) *MailboxManager {
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	delimiter := cfg.Delimiter
	if delimiter == "" {
		delimiter = models.DefaultDelimiter
	}
	content := cfg.ContentStore
	if content == nil {
		content = storage.NewMemoryContentStore()
	}
	return &MailboxManager{
		factory:   cfg.Factory,
		auth:      cfg.Authenticator,
		groups:    cfg.Groups,
		content:   content,
		resolver:  acl.NewResolver(),
		publisher: publisher,
		delimiter: delimiter,
		locks:     newMailboxLocks(),
	}
}

// Delimiter returns the hierarchy delimiter in use.
func (m *MailboxManager) Delimiter() string {
	return m.delimiter
}

// membership adapts the group boundary for the resolver.
func (m *MailboxManager) membership(ctx context.Context, username, group string) (bool, error) {
	if m.groups == nil {
		return false, nil
	}
	return m.groups.IsMember(ctx, username, group)
}

// Login validates the credentials through the external authenticator and
// opens a session. The user's INBOX is provisioned here on first login; no
// mailbox lock is held while the authenticator runs.
func (m *MailboxManager) Login(ctx context.Context, username, credential string) (*Session, error) {
	user, err := m.auth.Authenticate(ctx, username, credential)
	if err != nil {
		m.publish(events.Event{Type: events.LoginFailed, Username: username})
		if errors.Is(err, coreerrors.ErrAuthenticationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", coreerrors.ErrAuthenticationFailed, err)
	}

	session := NewSession(user)
	if err := m.provisionInbox(ctx, session); err != nil {
		return nil, err
	}

	m.publish(events.Event{Type: events.LoginSucceeded, SessionID: session.ID, Username: username})
	return session, nil
}

// SystemSession opens a session for a user on behalf of a trusted internal
// component, bypassing the credential boundary. The delivery pipeline uses
// this to post into recipient mailboxes.
func (m *MailboxManager) SystemSession(ctx context.Context, username string) (*Session, error) {
	if err := validator.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerrors.ErrInvalidInput, err)
	}
	session := NewSession(models.User{Username: username})
	if err := m.provisionInbox(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// provisionInbox lazily creates the user's INBOX.
func (m *MailboxManager) provisionInbox(ctx context.Context, session *Session) error {
	mapper := m.factory.MailboxMapper(session.ID)
	inbox := models.InboxPath(session.Username())

	_, err := mapper.GetByPath(ctx, inbox)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return coreerrors.Wrap(err, "failed to look up INBOX")
	}

	mailbox := &models.Mailbox{
		Namespace:   inbox.Namespace,
		Owner:       inbox.User,
		Name:        inbox.Name,
		UIDValidity: m.factory.NextUIDValidity(),
	}
	if err := mapper.Create(ctx, mailbox); err != nil {
		// A concurrent login may have provisioned it first.
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil
		}
		return coreerrors.Wrap(err, "failed to provision INBOX")
	}

	// New INBOXes accept delivery out of the box; the owner can revoke the
	// grant to refuse inbound mail.
	if err := mapper.SetACLEntry(ctx, mailbox.ID, acl.Anyone, acl.Post.String()); err != nil {
		return coreerrors.Wrap(err, "failed to seed INBOX delivery grant")
	}

	m.publish(events.Event{
		Type:      events.MailboxCreated,
		SessionID: session.ID,
		Username:  session.Username(),
		Mailbox:   inbox.String(),
		MailboxID: mailbox.ID,
	})
	return nil
}

// effectiveRights resolves the session user's rights over a mailbox, using
// the ACL snapshot carried on the record.
func (m *MailboxManager) effectiveRights(ctx context.Context, session *Session, mailbox *models.Mailbox) (acl.Right, error) {
	return m.resolver.Resolve(ctx, session.Username(), mailbox.Owner, mailbox.ACL, m.membership)
}

// accessError shapes a denial: mailboxes in another user's personal
// namespace that the caller cannot even look up are reported as not found
// so their existence does not leak; everything else surfaces the denial
// plainly.
func (m *MailboxManager) accessError(session *Session, mailbox *models.Mailbox, rights acl.Right) error {
	if mailbox.Namespace == models.PersonalNamespace &&
		mailbox.Owner != session.Username() &&
		!rights.Contains(acl.Lookup) {
		return coreerrors.ErrMailboxNotFound
	}
	return coreerrors.ErrInsufficientRights
}

// denied publishes an ACL denial event and returns the shaped error.
func (m *MailboxManager) denied(session *Session, mailbox *models.Mailbox, rights acl.Right, op string) error {
	m.publish(events.Event{
		Type:      events.ACLDenied,
		SessionID: session.ID,
		Username:  session.Username(),
		Mailbox:   mailbox.Path().String(),
		MailboxID: mailbox.ID,
		Detail:    op,
	})
	return m.accessError(session, mailbox, rights)
}

// CreateMailbox creates a mailbox at the given path. The session's user
// needs CreateMailbox rights on the parent when one exists; top-level
// mailboxes can only be created in the user's own namespace.
func (m *MailboxManager) CreateMailbox(ctx context.Context, session *Session, path models.MailboxPath) error {
	if err := validator.ValidateMailboxName(path.Name, m.delimiter); err != nil {
		return fmt.Errorf("%w: %v", coreerrors.ErrInvalidInput, err)
	}

	mapper := m.factory.MailboxMapper(session.ID)

	if parentPath, ok := path.Parent(m.delimiter); ok {
		parent, err := mapper.GetByPath(ctx, parentPath)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return coreerrors.ErrMailboxNotFound
			}
			return coreerrors.Wrap(err, "failed to look up parent mailbox")
		}
		rights, err := m.effectiveRights(ctx, session, parent)
		if err != nil {
			return err
		}
		if !rights.Contains(acl.CreateMailbox) {
			return m.denied(session, parent, rights, "create")
		}
	} else if path.User != session.Username() {
		return coreerrors.ErrInsufficientRights
	}

	mailbox := &models.Mailbox{
		Namespace:   path.Namespace,
		Owner:       path.User,
		Name:        path.Name,
		UIDValidity: m.factory.NextUIDValidity(),
	}
	if err := mapper.Create(ctx, mailbox); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return coreerrors.ErrMailboxExists
		}
		return coreerrors.Wrap(err, "failed to create mailbox")
	}

	m.publish(events.Event{
		Type:      events.MailboxCreated,
		SessionID: session.ID,
		Username:  session.Username(),
		Mailbox:   path.String(),
		MailboxID: mailbox.ID,
	})
	return nil
}

// GetMailbox resolves a path and returns a MessageManager bound to the
// mailbox. Requires at least Lookup.
func (m *MailboxManager) GetMailbox(ctx context.Context, session *Session, path models.MailboxPath) (*MessageManager, error) {
	mailbox, rights, err := m.fetchWithRights(ctx, session, path)
	if err != nil {
		return nil, err
	}
	if !rights.Contains(acl.Lookup) {
		return nil, m.denied(session, mailbox, rights, "lookup")
	}
	return newMessageManager(m, mailbox.ID), nil
}

// WatchMailbox authorizes an event subscription on a mailbox, addressed by
// its backend identifier. The same visibility rule as GetMailbox applies:
// without Lookup a foreign personal mailbox reads as not found.
func (m *MailboxManager) WatchMailbox(ctx context.Context, session *Session, mailboxID uint) error {
	mailbox, err := m.factory.MailboxMapper(session.ID).GetByID(ctx, mailboxID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return coreerrors.ErrMailboxNotFound
		}
		if errors.Is(err, repository.ErrUnavailable) {
			return fmt.Errorf("%w: %v", coreerrors.ErrBackendUnavailable, err)
		}
		return coreerrors.Wrap(err, "failed to load mailbox")
	}
	rights, err := m.effectiveRights(ctx, session, mailbox)
	if err != nil {
		return err
	}
	if !rights.Contains(acl.Lookup) {
		return m.denied(session, mailbox, rights, "watch")
	}
	return nil
}

// DeleteMailbox deletes a mailbox, cascading to its messages and their
// stored content. A second delete of the same path reports not found.
func (m *MailboxManager) DeleteMailbox(ctx context.Context, session *Session, path models.MailboxPath) error {
	mailbox, rights, err := m.fetchWithRights(ctx, session, path)
	if err != nil {
		return err
	}
	if !rights.Contains(acl.DeleteMailbox) {
		return m.denied(session, mailbox, rights, "delete")
	}

	unlock := m.locks.lock(mailbox.ID)
	defer unlock()

	messages, err := m.factory.MessageMapper(session.ID).ListByMailbox(ctx, mailbox.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return coreerrors.Wrap(err, "failed to enumerate messages")
	}

	if err := m.factory.MailboxMapper(session.ID).Delete(ctx, mailbox.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return coreerrors.ErrMailboxNotFound
		}
		return coreerrors.Wrap(err, "failed to delete mailbox")
	}
	m.locks.forget(mailbox.ID)

	if m.content != nil {
		for _, msg := range messages {
			_ = m.content.Delete(msg.ContentRef)
		}
	}

	m.publish(events.Event{
		Type:      events.MailboxDeleted,
		SessionID: session.ID,
		Username:  session.Username(),
		Mailbox:   path.String(),
		MailboxID: mailbox.ID,
	})
	return nil
}

// RenameMailbox moves a mailbox to a new path. Rename is not recreate: UID
// validity, counters and message identities are preserved. Requires
// Administer (the owner holds it implicitly).
func (m *MailboxManager) RenameMailbox(ctx context.Context, session *Session, oldPath, newPath models.MailboxPath) error {
	if err := validator.ValidateMailboxName(newPath.Name, m.delimiter); err != nil {
		return fmt.Errorf("%w: %v", coreerrors.ErrInvalidInput, err)
	}

	mailbox, rights, err := m.fetchWithRights(ctx, session, oldPath)
	if err != nil {
		return err
	}
	if !rights.Contains(acl.Administer) {
		return m.denied(session, mailbox, rights, "rename")
	}

	if err := m.factory.MailboxMapper(session.ID).Rename(ctx, mailbox.ID, newPath); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return coreerrors.ErrMailboxExists
		}
		if errors.Is(err, repository.ErrNotFound) {
			return coreerrors.ErrMailboxNotFound
		}
		return coreerrors.Wrap(err, "failed to rename mailbox")
	}

	m.publish(events.Event{
		Type:      events.MailboxRenamed,
		SessionID: session.ID,
		Username:  session.Username(),
		Mailbox:   newPath.String(),
		MailboxID: mailbox.ID,
		Detail:    "from " + oldPath.String(),
	})
	return nil
}

// List enumerates the paths of every mailbox the session's user holds at
// least Lookup on. Order is unspecified but stable within one call; each
// call re-evaluates visibility.
func (m *MailboxManager) List(ctx context.Context, session *Session) ([]models.MailboxPath, error) {
	mailboxes, err := m.factory.MailboxMapper(session.ID).List(ctx)
	if err != nil {
		return nil, coreerrors.Wrap(err, "failed to list mailboxes")
	}

	var visible []models.MailboxPath
	for i := range mailboxes {
		rights, err := m.effectiveRights(ctx, session, &mailboxes[i])
		if err != nil {
			return nil, err
		}
		if rights.Contains(acl.Lookup) {
			visible = append(visible, mailboxes[i].Path())
		}
	}
	return visible, nil
}

// SetACL upserts one ACL entry on a mailbox. Requires Administer. Empty
// rights remove the identifier's entry; removal can only shrink what that
// entry contributed, resolution itself stays a pure union.
func (m *MailboxManager) SetACL(ctx context.Context, session *Session, path models.MailboxPath, identifier string, rights acl.Right) error {
	mailbox, held, err := m.fetchWithRights(ctx, session, path)
	if err != nil {
		return err
	}
	if !held.Contains(acl.Administer) {
		return m.denied(session, mailbox, held, "setacl")
	}

	if err := m.factory.MailboxMapper(session.ID).SetACLEntry(ctx, mailbox.ID, identifier, rights.String()); err != nil {
		return coreerrors.Wrap(err, "failed to update ACL")
	}

	m.publish(events.Event{
		Type:      events.ACLUpdated,
		SessionID: session.ID,
		Username:  session.Username(),
		Mailbox:   path.String(),
		MailboxID: mailbox.ID,
		Detail:    identifier + "=" + rights.String(),
	})
	return nil
}

// DeliveryPrincipal is the identity the delivery pipeline posts as. It holds
// only what mailbox ACLs grant it; provisioning seeds every INBOX with an
// anyone entry carrying Post, which the owner can revoke.
const DeliveryPrincipal = "postmaster"

// Deliver appends an inbound message to the recipient's INBOX, provisioning
// it when needed. The append happens only when the delivery principal holds
// Post on the INBOX; the message is stored with the Recent flag.
func (m *MailboxManager) Deliver(ctx context.Context, username string, content io.Reader, receivedAt time.Time) (uint32, error) {
	owner, err := m.SystemSession(ctx, username)
	if err != nil {
		return 0, err
	}

	inbox, err := m.factory.MailboxMapper(owner.ID).GetByPath(ctx, models.InboxPath(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, coreerrors.ErrMailboxNotFound
		}
		if errors.Is(err, repository.ErrUnavailable) {
			return 0, fmt.Errorf("%w: %v", coreerrors.ErrBackendUnavailable, err)
		}
		return 0, coreerrors.Wrap(err, "failed to look up INBOX")
	}

	deliverer := NewSession(models.User{Username: DeliveryPrincipal})
	rights, err := m.effectiveRights(ctx, deliverer, inbox)
	if err != nil {
		return 0, err
	}
	if !rights.Contains(acl.Post) {
		return 0, m.denied(deliverer, inbox, rights, "deliver")
	}

	return newMessageManager(m, inbox.ID).Append(ctx, owner, content, receivedAt, true, nil)
}

// fetchWithRights loads a mailbox and resolves the session's rights on it.
func (m *MailboxManager) fetchWithRights(ctx context.Context, session *Session, path models.MailboxPath) (*models.Mailbox, acl.Right, error) {
	mailbox, err := m.factory.MailboxMapper(session.ID).GetByPath(ctx, path)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, acl.None, coreerrors.ErrMailboxNotFound
		}
		if errors.Is(err, repository.ErrUnavailable) {
			return nil, acl.None, fmt.Errorf("%w: %v", coreerrors.ErrBackendUnavailable, err)
		}
		return nil, acl.None, coreerrors.Wrap(err, "failed to look up mailbox")
	}
	rights, err := m.effectiveRights(ctx, session, mailbox)
	if err != nil {
		return nil, acl.None, err
	}
	return mailbox, rights, nil
}

func (m *MailboxManager) publish(event events.Event) {
	event.Time = time.Now().UTC()
	m.publisher.Publish(event)
}
