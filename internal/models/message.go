package models

import (
	"time"
)

// Message is a stored message record. A message belongs to exactly one
// mailbox; copying to another mailbox creates a new record with a new UID.
// UID and ModSeq are unique within the owning mailbox, assigned in strictly
// increasing order and never reused, even after expunge.
type Message struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MailboxID   uint      `gorm:"not null;index;uniqueIndex:idx_message_uid" json:"mailbox_id"`
	UID         uint32    `gorm:"not null;uniqueIndex:idx_message_uid" json:"uid"`
	ModSeq      uint64    `gorm:"not null;index" json:"mod_seq"`
	Size        int64     `gorm:"not null" json:"size"`
	ReceivedAt  time.Time `gorm:"not null" json:"received_at"`
	Subject     string    `json:"subject,omitempty"`
	ContentType string    `gorm:"size:255" json:"content_type,omitempty"`
	ContentRef  string    `gorm:"not null;size:255" json:"-"`

	// Relationships
	Mailbox Mailbox       `gorm:"foreignKey:MailboxID;constraint:OnDelete:CASCADE" json:"-"`
	Flags   []MessageFlag `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"flags,omitempty"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// FlagNames returns the message's flag names in stored order.
func (m *Message) FlagNames() []string {
	names := make([]string, 0, len(m.Flags))
	for _, f := range m.Flags {
		names = append(names, f.Name)
	}
	return names
}

// HasFlag reports whether the message carries the named flag.
func (m *Message) HasFlag(name string) bool {
	for _, f := range m.Flags {
		if f.Name == name {
			return true
		}
	}
	return false
}

// MessageFlag is one flag on one message. Names include the system flags
// (backslash-prefixed) and arbitrary user-defined keywords.
type MessageFlag struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	MessageID uint   `gorm:"not null;index;uniqueIndex:idx_flag_name" json:"-"`
	Name      string `gorm:"not null;size:255;uniqueIndex:idx_flag_name" json:"name"`
}

// TableName returns the table name for MessageFlag
func (MessageFlag) TableName() string {
	return "message_flags"
}
