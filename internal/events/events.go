// Package events defines the structured event sink the core emits into.
// The core never formats human-readable log lines; sinks decide rendering.
package events

import (
	"log/slog"
	"time"
)

// Type identifies an event kind.
type Type string

// Event types emitted by the core.
const (
	MailboxCreated  Type = "mailbox_created"
	MailboxDeleted  Type = "mailbox_deleted"
	MailboxRenamed  Type = "mailbox_renamed"
	MessageAppended Type = "message_appended"
	AppendFailed    Type = "append_failed"
	FlagsUpdated    Type = "flags_updated"
	MessageExpunged Type = "message_expunged"
	ACLDenied       Type = "acl_denied"
	ACLUpdated      Type = "acl_updated"
	LoginSucceeded  Type = "login_succeeded"
	LoginFailed     Type = "login_failed"
)

// Event is one structured occurrence inside the core.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Mailbox   string    `json:"mailbox,omitempty"`
	MailboxID uint      `json:"mailbox_id,omitempty"`
	UID       uint32    `json:"uid,omitempty"`
	ModSeq    uint64    `json:"mod_seq,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Time      time.Time `json:"time"`
}

// Publisher receives core events. Implementations must be safe for
// concurrent use and must not block the emitting operation for long.
type Publisher interface {
	Publish(event Event)
}

// NopPublisher discards all events.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(Event) {}

// SlogPublisher renders events as structured log records.
type SlogPublisher struct {
	logger *slog.Logger
}

// NewSlogPublisher creates a publisher over the given logger.
func NewSlogPublisher(logger *slog.Logger) *SlogPublisher {
	return &SlogPublisher{logger: logger}
}

// Publish logs the event with its fields as attributes.
func (p *SlogPublisher) Publish(event Event) {
	attrs := []any{
		slog.String("event_type", string(event.Type)),
		slog.Time("time", event.Time),
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.Username != "" {
		attrs = append(attrs, slog.String("username", event.Username))
	}
	if event.Mailbox != "" {
		attrs = append(attrs, slog.String("mailbox", event.Mailbox))
	}
	if event.MailboxID != 0 {
		attrs = append(attrs, slog.Uint64("mailbox_id", uint64(event.MailboxID)))
	}
	if event.UID != 0 {
		attrs = append(attrs, slog.Uint64("uid", uint64(event.UID)))
	}
	if event.ModSeq != 0 {
		attrs = append(attrs, slog.Uint64("mod_seq", event.ModSeq))
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}

	switch event.Type {
	case AppendFailed, ACLDenied, LoginFailed:
		p.logger.Warn(string(event.Type), attrs...)
	default:
		p.logger.Info(string(event.Type), attrs...)
	}
}

// MultiPublisher fans events out to several sinks.
type MultiPublisher struct {
	sinks []Publisher
}

// NewMultiPublisher creates a fan-out over the given sinks.
func NewMultiPublisher(sinks ...Publisher) *MultiPublisher {
	return &MultiPublisher{sinks: sinks}
}

// Publish forwards the event to every sink.
func (p *MultiPublisher) Publish(event Event) {
	for _, sink := range p.sinks {
		sink.Publish(event)
	}
}
