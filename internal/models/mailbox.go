package models

import (
	"time"
)

// Mailbox is a stored mailbox record. The backend assigns the numeric ID;
// it is opaque and stable for the mailbox's lifetime. UIDNext and NextModSeq
// are the allocation counters owned by the mailbox record: they only move
// through the mapper's allocate operation, never by direct writes.
type Mailbox struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Namespace   string    `gorm:"not null;size:64;uniqueIndex:idx_mailbox_path" json:"namespace"`
	Owner       string    `gorm:"size:255;uniqueIndex:idx_mailbox_path" json:"owner,omitempty"`
	Name        string    `gorm:"not null;size:255;uniqueIndex:idx_mailbox_path" json:"name"`
	UIDValidity uint32    `gorm:"not null" json:"uid_validity"`
	UIDNext     uint32    `gorm:"not null;default:1" json:"uid_next"`
	NextModSeq  uint64    `gorm:"not null;default:1" json:"next_mod_seq"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relationships
	ACL      []ACLEntry `gorm:"foreignKey:MailboxID;constraint:OnDelete:CASCADE" json:"acl,omitempty"`
	Messages []Message  `gorm:"foreignKey:MailboxID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for Mailbox
func (Mailbox) TableName() string {
	return "mailboxes"
}

// Path returns the mailbox's path tuple.
func (m *Mailbox) Path() MailboxPath {
	return MailboxPath{Namespace: m.Namespace, User: m.Owner, Name: m.Name}
}

// ACLEntry maps a principal identifier to a right-set on one mailbox.
// The identifier is a username, one of the pseudo-principals ("anyone",
// "authenticated"), or "group:<name>". Rights holds the letter form of the
// right-set. Entry order is the insertion order (ascending ID).
type ACLEntry struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	MailboxID  uint   `gorm:"not null;index;uniqueIndex:idx_acl_principal" json:"mailbox_id"`
	Identifier string `gorm:"not null;size:255;uniqueIndex:idx_acl_principal" json:"identifier"`
	Rights     string `gorm:"not null;size:16" json:"rights"`
}

// TableName returns the table name for ACLEntry
func (ACLEntry) TableName() string {
	return "mailbox_acl"
}
