package services

import "sync"

// mailboxLocks serializes mutations per mailbox. UID/MODSEQ allocation and
// the write that consumes it happen under the mailbox's lock so concurrent
// sessions interleave at operation granularity, never mid-append. Reads do
// not take the lock.
type mailboxLocks struct {
	locks sync.Map // mailbox ID -> *sync.Mutex
}

func newMailboxLocks() *mailboxLocks {
	return &mailboxLocks{}
}

// lock acquires the mailbox's mutex and returns the unlock func.
func (l *mailboxLocks) lock(mailboxID uint) func() {
	actual, _ := l.locks.LoadOrStore(mailboxID, &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// forget drops the lock entry of a deleted mailbox.
func (l *mailboxLocks) forget(mailboxID uint) {
	l.locks.Delete(mailboxID)
}
