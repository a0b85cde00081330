package models

import (
	"strings"
)

// Inbox is the mailbox name that always exists for a user once they have
// logged in at least once. Comparison is exact; the name is stored upper-case.
const Inbox = "INBOX"

// PersonalNamespace is the namespace holding per-user mailboxes.
const PersonalNamespace = "#private"

// DefaultDelimiter separates hierarchy levels in a mailbox name.
const DefaultDelimiter = "."

// MailboxPath identifies a mailbox uniquely within a deployment:
// a namespace, the owning user (empty for namespace-global mailboxes) and a
// delimiter-separated hierarchical name. Equality is exact tuple equality.
type MailboxPath struct {
	Namespace string `json:"namespace"`
	User      string `json:"user,omitempty"`
	Name      string `json:"name"`
}

// NewMailboxPath creates a MailboxPath in the given namespace.
func NewMailboxPath(namespace, user, name string) MailboxPath {
	return MailboxPath{Namespace: namespace, User: user, Name: name}
}

// PersonalPath creates a path in the user's personal namespace.
func PersonalPath(user, name string) MailboxPath {
	return MailboxPath{Namespace: PersonalNamespace, User: user, Name: name}
}

// InboxPath returns the INBOX path for a user.
func InboxPath(user string) MailboxPath {
	return PersonalPath(user, Inbox)
}

// IsInbox reports whether the path names the user's INBOX.
func (p MailboxPath) IsInbox() bool {
	return p.Namespace == PersonalNamespace && p.Name == Inbox
}

// Parent returns the path one hierarchy level up and true, or the zero path
// and false when the path is already a top-level name.
func (p MailboxPath) Parent(delimiter string) (MailboxPath, bool) {
	idx := strings.LastIndex(p.Name, delimiter)
	if idx < 0 {
		return MailboxPath{}, false
	}
	return MailboxPath{Namespace: p.Namespace, User: p.User, Name: p.Name[:idx]}, true
}

// Child returns the path one hierarchy level below this one.
func (p MailboxPath) Child(delimiter, name string) MailboxPath {
	return MailboxPath{Namespace: p.Namespace, User: p.User, Name: p.Name + delimiter + name}
}

// String renders the path for logs and adapter responses.
func (p MailboxPath) String() string {
	var b strings.Builder
	b.WriteString(p.Namespace)
	b.WriteString(":")
	b.WriteString(p.User)
	b.WriteString(":")
	b.WriteString(p.Name)
	return b.String()
}
