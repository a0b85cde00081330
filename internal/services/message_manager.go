package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/welldanyogia/webrana-mailstore/internal/acl"
	coreerrors "github.com/welldanyogia/webrana-mailstore/internal/errors"
	"github.com/welldanyogia/webrana-mailstore/internal/events"
	"github.com/welldanyogia/webrana-mailstore/internal/models"
	"github.com/welldanyogia/webrana-mailstore/internal/repository"
)

// NoSubjectPlaceholder is returned as the subject of messages whose content
// carried no Subject header.
const NoSubjectPlaceholder = "(No subject)"

// UIDRange is an inclusive range of message UIDs.
type UIDRange struct {
	From uint32
	To   uint32
}

// UIDSet is a set of UID ranges.
type UIDSet []UIDRange

// UIDSetOf builds a set from explicit UIDs.
func UIDSetOf(uids ...uint32) UIDSet {
	set := make(UIDSet, 0, len(uids))
	for _, uid := range uids {
		set = append(set, UIDRange{From: uid, To: uid})
	}
	return set
}

// Expand lists the UIDs of the set clamped to [1, highest]. UIDs outside
// that window are simply absent from the result, matching the "treat as not
// found" policy for out-of-range requests.
func (s UIDSet) Expand(highest uint32) []uint32 {
	seen := make(map[uint32]bool)
	var out []uint32
	for _, r := range s {
		from, to := r.From, r.To
		if to == 0 {
			to = from
		}
		if from < 1 {
			from = 1
		}
		if to > highest {
			to = highest
		}
		for uid := from; uid <= to && uid != 0; uid++ {
			if !seen[uid] {
				seen[uid] = true
				out = append(out, uid)
			}
		}
	}
	return out
}

// Property selects a message field for retrieval.
type Property string

// Retrievable message properties.
const (
	PropertySubject     Property = "subject"
	PropertyFlags       Property = "flags"
	PropertySize        Property = "size"
	PropertyReceivedAt  Property = "receivedAt"
	PropertyModSeq      Property = "modSeq"
	PropertyContentType Property = "contentType"
)

// MessageView is the caller-facing projection of a message. The UID is
// always present; other fields are filled according to the property
// selector of the call that produced the view.
type MessageView struct {
	UID         uint32     `json:"uid"`
	Subject     string     `json:"subject,omitempty"`
	Flags       []string   `json:"flags,omitempty"`
	Size        int64      `json:"size,omitempty"`
	ReceivedAt  *time.Time `json:"received_at,omitempty"`
	ModSeq      uint64     `json:"mod_seq,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
}

// FlagDelta describes a flag mutation: flags to add and flags to clear.
type FlagDelta struct {
	Add    []string
	Remove []string
}

// MessageManager exposes the per-mailbox operations. It is bound to one
// mailbox identifier; the identifier stays valid across renames and goes
// stale only when the mailbox is deleted, at which point every operation
// reports the mailbox as not found.
type MessageManager struct {
	mgr       *MailboxManager
	mailboxID uint
}

func newMessageManager(mgr *MailboxManager, mailboxID uint) *MessageManager {
	return &MessageManager{mgr: mgr, mailboxID: mailboxID}
}

// MailboxID returns the backend identifier of the bound mailbox.
func (mm *MessageManager) MailboxID() uint {
	return mm.mailboxID
}

// mailbox loads the current mailbox record and the session's rights on it.
func (mm *MessageManager) mailbox(ctx context.Context, session *Session) (*models.Mailbox, acl.Right, error) {
	mailbox, err := mm.mgr.factory.MailboxMapper(session.ID).GetByID(ctx, mm.mailboxID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, acl.None, coreerrors.ErrMailboxNotFound
		}
		if errors.Is(err, repository.ErrUnavailable) {
			return nil, acl.None, fmt.Errorf("%w: %v", coreerrors.ErrBackendUnavailable, err)
		}
		return nil, acl.None, coreerrors.Wrap(err, "failed to load mailbox")
	}
	rights, err := mm.mgr.effectiveRights(ctx, session, mailbox)
	if err != nil {
		return nil, acl.None, err
	}
	return mailbox, rights, nil
}

// Append stores a new message and returns its UID. The content stream is
// consumed before the mailbox lock is taken so a stalled client cannot
// wedge the mailbox; a stream that cannot be fully read is a content fault.
// Requires Insert.
func (mm *MessageManager) Append(ctx context.Context, session *Session, content io.Reader, receivedAt time.Time, isRecent bool, flags []string) (uint32, error) {
	mailbox, rights, err := mm.mailbox(ctx, session)
	if err != nil {
		return 0, err
	}
	if !rights.Contains(acl.Insert) {
		return 0, mm.mgr.denied(session, mailbox, rights, "append")
	}

	data, err := io.ReadAll(content)
	if err != nil {
		mm.appendFailed(session, mailbox, err)
		return 0, fmt.Errorf("%w: %v", coreerrors.ErrContentFault, err)
	}

	subject, contentType := extractHeaders(data)

	ref, size, err := mm.mgr.content.Save(bytes.NewReader(data))
	if err != nil {
		mm.appendFailed(session, mailbox, err)
		return 0, fmt.Errorf("%w: %v", coreerrors.ErrContentFault, err)
	}

	flagSet := normalizeFlags(flags)
	if isRecent {
		flagSet = appendFlag(flagSet, models.FlagRecent)
	}

	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	unlock := mm.mgr.locks.lock(mailbox.ID)
	defer unlock()

	mailboxMapper := mm.mgr.factory.MailboxMapper(session.ID)
	uid, modSeq, err := mailboxMapper.AllocateUIDs(ctx, mailbox.ID, 1)
	if err != nil {
		mm.mgr.content.Delete(ref)
		if errors.Is(err, repository.ErrNotFound) {
			return 0, coreerrors.ErrMailboxNotFound
		}
		mm.appendFailed(session, mailbox, err)
		return 0, coreerrors.Wrap(err, "failed to allocate UID")
	}

	message := &models.Message{
		MailboxID:   mailbox.ID,
		UID:         uid,
		ModSeq:      modSeq,
		Size:        size,
		ReceivedAt:  receivedAt,
		Subject:     subject,
		ContentType: contentType,
		ContentRef:  ref,
	}
	for _, name := range flagSet {
		message.Flags = append(message.Flags, models.MessageFlag{Name: name})
	}

	if err := mm.mgr.factory.MessageMapper(session.ID).Create(ctx, message); err != nil {
		// The allocated UID stays retired; nothing half-applied is visible.
		mm.mgr.content.Delete(ref)
		mm.appendFailed(session, mailbox, err)
		return 0, coreerrors.Wrap(err, "failed to store message")
	}

	mm.mgr.publish(events.Event{
		Type:      events.MessageAppended,
		SessionID: session.ID,
		Username:  session.Username(),
		Mailbox:   mailbox.Path().String(),
		MailboxID: mailbox.ID,
		UID:       uid,
		ModSeq:    modSeq,
	})
	return uid, nil
}

func (mm *MessageManager) appendFailed(session *Session, mailbox *models.Mailbox, cause error) {
	mm.mgr.publish(events.Event{
		Type:      events.AppendFailed,
		SessionID: session.ID,
		Username:  session.Username(),
		Mailbox:   mailbox.Path().String(),
		MailboxID: mailbox.ID,
		Detail:    cause.Error(),
	})
}

// GetMessages returns views of the messages in the given UID set. Unknown
// UIDs are skipped, never an error: adapters routinely race appends and
// expunges. A nil property selector fills all fields; an empty non-nil
// selector returns identifier-only views. Requires Read.
func (mm *MessageManager) GetMessages(ctx context.Context, session *Session, set UIDSet, properties []Property) ([]MessageView, error) {
	mailbox, rights, err := mm.mailbox(ctx, session)
	if err != nil {
		return nil, err
	}
	if !rights.Contains(acl.Read) {
		return nil, mm.mgr.denied(session, mailbox, rights, "fetch")
	}

	uids := set.Expand(mailbox.UIDNext - 1)
	messages, err := mm.mgr.factory.MessageMapper(session.ID).GetByUIDs(ctx, mailbox.ID, uids)
	if err != nil {
		return nil, coreerrors.Wrap(err, "failed to fetch messages")
	}

	wants := func(p Property) bool {
		if properties == nil {
			return true
		}
		for _, have := range properties {
			if have == p {
				return true
			}
		}
		return false
	}

	views := make([]MessageView, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		view := MessageView{UID: msg.UID}
		if wants(PropertySubject) {
			view.Subject = msg.Subject
			if view.Subject == "" {
				view.Subject = NoSubjectPlaceholder
			}
		}
		if wants(PropertyFlags) {
			view.Flags = msg.FlagNames()
		}
		if wants(PropertySize) {
			view.Size = msg.Size
		}
		if wants(PropertyReceivedAt) {
			received := msg.ReceivedAt
			view.ReceivedAt = &received
		}
		if wants(PropertyModSeq) {
			view.ModSeq = msg.ModSeq
		}
		if wants(PropertyContentType) {
			view.ContentType = msg.ContentType
		}
		views = append(views, view)
	}
	return views, nil
}

// GetContent opens the raw content of one message. Requires Read.
func (mm *MessageManager) GetContent(ctx context.Context, session *Session, uid uint32) (io.ReadCloser, error) {
	mailbox, rights, err := mm.mailbox(ctx, session)
	if err != nil {
		return nil, err
	}
	if !rights.Contains(acl.Read) {
		return nil, mm.mgr.denied(session, mailbox, rights, "fetch")
	}

	messages, err := mm.mgr.factory.MessageMapper(session.ID).GetByUIDs(ctx, mailbox.ID, []uint32{uid})
	if err != nil {
		return nil, coreerrors.Wrap(err, "failed to fetch message")
	}
	if len(messages) == 0 {
		return nil, coreerrors.ErrMessageNotFound
	}
	return mm.mgr.content.Get(messages[0].ContentRef)
}

// SetFlags applies a flag delta to every message in the set and returns the
// fresh MODSEQ assigned to each affected UID. User-settable flags require
// Write; \Deleted requires DeleteMessages; \Recent is never settable.
func (mm *MessageManager) SetFlags(ctx context.Context, session *Session, set UIDSet, delta FlagDelta) (map[uint32]uint64, error) {
	mailbox, rights, err := mm.mailbox(ctx, session)
	if err != nil {
		return nil, err
	}

	required, err := requiredFlagRights(delta)
	if err != nil {
		return nil, err
	}
	if !rights.Contains(required) {
		return nil, mm.mgr.denied(session, mailbox, rights, "store")
	}

	unlock := mm.mgr.locks.lock(mailbox.ID)
	defer unlock()

	mapper := mm.mgr.factory.MessageMapper(session.ID)
	messages, err := mapper.GetByUIDs(ctx, mailbox.ID, set.Expand(mailbox.UIDNext-1))
	if err != nil {
		return nil, coreerrors.Wrap(err, "failed to fetch messages")
	}
	if len(messages) == 0 {
		return map[uint32]uint64{}, nil
	}

	firstModSeq, err := mm.mgr.factory.MailboxMapper(session.ID).AllocateModSeqs(ctx, mailbox.ID, len(messages))
	if err != nil {
		return nil, coreerrors.Wrap(err, "failed to allocate modseq")
	}

	updated := make(map[uint32]uint64, len(messages))
	for i := range messages {
		msg := &messages[i]
		flags := applyDelta(msg.FlagNames(), delta)
		modSeq := firstModSeq + uint64(i)
		if err := mapper.UpdateFlags(ctx, mailbox.ID, msg.UID, flags, modSeq); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue // expunged underneath us
			}
			return nil, coreerrors.Wrap(err, "failed to update flags")
		}
		updated[msg.UID] = modSeq
	}

	mm.mgr.publish(events.Event{
		Type:      events.FlagsUpdated,
		SessionID: session.ID,
		Username:  session.Username(),
		Mailbox:   mailbox.Path().String(),
		MailboxID: mailbox.ID,
		Detail:    fmt.Sprintf("%d messages", len(updated)),
	})
	return updated, nil
}

// Expunge permanently removes every message flagged \Deleted and returns
// their UIDs. The UIDs are never reassigned. Requires DeleteMessages.
func (mm *MessageManager) Expunge(ctx context.Context, session *Session) ([]uint32, error) {
	mailbox, rights, err := mm.mailbox(ctx, session)
	if err != nil {
		return nil, err
	}
	if !rights.Contains(acl.DeleteMessages) {
		return nil, mm.mgr.denied(session, mailbox, rights, "expunge")
	}

	unlock := mm.mgr.locks.lock(mailbox.ID)
	defer unlock()

	removed, err := mm.mgr.factory.MessageMapper(session.ID).DeleteFlagged(ctx, mailbox.ID)
	if err != nil {
		return nil, coreerrors.Wrap(err, "failed to expunge")
	}

	uids := make([]uint32, 0, len(removed))
	for _, msg := range removed {
		uids = append(uids, msg.UID)
		_ = mm.mgr.content.Delete(msg.ContentRef)
		mm.mgr.publish(events.Event{
			Type:      events.MessageExpunged,
			SessionID: session.ID,
			Username:  session.Username(),
			Mailbox:   mailbox.Path().String(),
			MailboxID: mailbox.ID,
			UID:       msg.UID,
		})
	}
	return uids, nil
}

// Copy copies the messages in the set into the destination mailbox. Each
// copy is a new message with a fresh UID and its own stored content; the
// sources are untouched. Requires Read here and Insert on the destination.
func (mm *MessageManager) Copy(ctx context.Context, session *Session, set UIDSet, destination models.MailboxPath) ([]uint32, error) {
	mailbox, rights, err := mm.mailbox(ctx, session)
	if err != nil {
		return nil, err
	}
	if !rights.Contains(acl.Read) {
		return nil, mm.mgr.denied(session, mailbox, rights, "copy")
	}

	dest, destRights, err := mm.mgr.fetchWithRights(ctx, session, destination)
	if err != nil {
		return nil, err
	}
	if !destRights.Contains(acl.Insert) {
		return nil, mm.mgr.denied(session, dest, destRights, "copy")
	}

	messages, err := mm.mgr.factory.MessageMapper(session.ID).GetByUIDs(ctx, mailbox.ID, set.Expand(mailbox.UIDNext-1))
	if err != nil {
		return nil, coreerrors.Wrap(err, "failed to fetch messages")
	}
	if len(messages) == 0 {
		return nil, nil
	}

	unlock := mm.mgr.locks.lock(dest.ID)
	defer unlock()

	firstUID, firstModSeq, err := mm.mgr.factory.MailboxMapper(session.ID).AllocateUIDs(ctx, dest.ID, len(messages))
	if err != nil {
		return nil, coreerrors.Wrap(err, "failed to allocate UIDs")
	}

	mapper := mm.mgr.factory.MessageMapper(session.ID)
	uids := make([]uint32, 0, len(messages))
	for i := range messages {
		src := &messages[i]

		reader, err := mm.mgr.content.Get(src.ContentRef)
		if err != nil {
			return uids, coreerrors.Wrap(err, "failed to read source content")
		}
		ref, _, err := mm.mgr.content.Save(reader)
		reader.Close()
		if err != nil {
			return uids, coreerrors.Wrap(err, "failed to copy content")
		}

		copied := &models.Message{
			MailboxID:   dest.ID,
			UID:         firstUID + uint32(i),
			ModSeq:      firstModSeq + uint64(i),
			Size:        src.Size,
			ReceivedAt:  src.ReceivedAt,
			Subject:     src.Subject,
			ContentType: src.ContentType,
			ContentRef:  ref,
		}
		for _, name := range src.FlagNames() {
			if name == models.FlagRecent {
				continue
			}
			copied.Flags = append(copied.Flags, models.MessageFlag{Name: name})
		}
		if err := mapper.Create(ctx, copied); err != nil {
			return uids, coreerrors.Wrap(err, "failed to store copy")
		}
		uids = append(uids, copied.UID)
	}
	return uids, nil
}

// requiredFlagRights computes the rights a delta demands.
func requiredFlagRights(delta FlagDelta) (acl.Right, error) {
	var required acl.Right
	for _, name := range append(append([]string(nil), delta.Add...), delta.Remove...) {
		canonical := models.CanonicalFlag(name)
		switch canonical {
		case models.FlagRecent:
			return acl.None, fmt.Errorf("%w: %s is not settable", coreerrors.ErrInvalidInput, models.FlagRecent)
		case models.FlagDeleted:
			required = required.Union(acl.DeleteMessages)
		default:
			required = required.Union(acl.Write)
		}
	}
	if required == acl.None {
		return acl.None, fmt.Errorf("%w: empty flag delta", coreerrors.ErrInvalidInput)
	}
	return required, nil
}

// applyDelta applies adds and removes to an existing flag list.
func applyDelta(current []string, delta FlagDelta) []string {
	out := append([]string(nil), current...)
	for _, name := range delta.Add {
		out = appendFlag(out, models.CanonicalFlag(name))
	}
	for _, name := range delta.Remove {
		canonical := models.CanonicalFlag(name)
		for i := 0; i < len(out); i++ {
			if out[i] == canonical {
				out = append(out[:i], out[i+1:]...)
				i--
			}
		}
	}
	return out
}

// normalizeFlags canonicalizes and deduplicates a flag list.
func normalizeFlags(flags []string) []string {
	var out []string
	for _, name := range flags {
		if name == "" {
			continue
		}
		out = appendFlag(out, models.CanonicalFlag(name))
	}
	return out
}

func appendFlag(flags []string, name string) []string {
	for _, have := range flags {
		if have == name {
			return flags
		}
	}
	return append(flags, name)
}

// extractHeaders pulls the header-derived fields the core stores alongside
// a message. Anything beyond Subject and Content-Type is the message-model
// collaborator's business, not ours.
func extractHeaders(data []byte) (subject, contentType string) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(data))
	if err != nil {
		return "", ""
	}
	subject = env.GetHeader("Subject")
	contentType = env.GetHeader("Content-Type")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return subject, contentType
}
