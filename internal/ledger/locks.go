package ledger

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Locks serializes balance mutations per user. Different users' balances are
// independent and may be adjusted fully in parallel; two adjustments against
// the same user never interleave, which keeps the non-negative check race-free.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

// NewLocks creates an empty per-user lock registry.
func NewLocks() *Locks {
	return &Locks{
		entries: make(map[string]*lockEntry),
	}
}

// Acquire blocks until the caller holds the lock for userID and returns the
// release function. Entries are reference counted so the registry does not
// grow with the user population.
func (l *Locks) Acquire(userID string) func() {
	l.mu.Lock()
	e, ok := l.entries[userID]
	if !ok {
		e = &lockEntry{}
		l.entries[userID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, userID)
		}
		l.mu.Unlock()
	}
}
