// Package acl implements mailbox access-control rights and their resolution.
package acl

import (
	"fmt"
	"strings"
)

// Right is a set of mailbox rights encoded as a bitmask.
type Right uint16

// Individual rights. The letters follow the IMAP ACL convention so right
// sets round-trip through a compact string form.
const (
	// Lookup lets the mailbox be seen in list results and opened for status.
	Lookup Right = 1 << iota
	// Read lets messages be fetched.
	Read
	// Write lets user-settable flags be changed.
	Write
	// Insert lets messages be appended.
	Insert
	// Post lets messages be delivered by the delivery pipeline.
	Post
	// CreateMailbox lets child mailboxes be created under this one.
	CreateMailbox
	// DeleteMailbox lets the mailbox itself be deleted or renamed away.
	DeleteMailbox
	// DeleteMessages lets the \Deleted flag be set and expunge be run.
	DeleteMessages
	// Administer lets the ACL itself be changed.
	Administer
)

// None is the empty right set.
const None Right = 0

// Full is every right. The mailbox owner implicitly holds Full regardless
// of explicit entries.
const Full = Lookup | Read | Write | Insert | Post | CreateMailbox | DeleteMailbox | DeleteMessages | Administer

// rightLetters pairs each right with its letter, in canonical output order.
var rightLetters = []struct {
	right  Right
	letter byte
}{
	{Lookup, 'l'},
	{Read, 'r'},
	{Write, 'w'},
	{Insert, 'i'},
	{Post, 'p'},
	{CreateMailbox, 'k'},
	{DeleteMailbox, 'x'},
	{DeleteMessages, 't'},
	{Administer, 'a'},
}

// Contains reports whether r includes every right in want.
func (r Right) Contains(want Right) bool {
	return r&want == want
}

// Union returns the combination of r and other. Resolution is a pure union
// of grants; nothing ever removes a right.
func (r Right) Union(other Right) Right {
	return r | other
}

// String returns the letter form of the right set, e.g. "lrwi".
func (r Right) String() string {
	var b strings.Builder
	for _, rl := range rightLetters {
		if r&rl.right != 0 {
			b.WriteByte(rl.letter)
		}
	}
	return b.String()
}

// ParseRights parses the letter form of a right set.
func ParseRights(s string) (Right, error) {
	var r Right
outer:
	for i := 0; i < len(s); i++ {
		for _, rl := range rightLetters {
			if s[i] == rl.letter {
				r |= rl.right
				continue outer
			}
		}
		return None, fmt.Errorf("unknown right %q", s[i])
	}
	return r, nil
}
