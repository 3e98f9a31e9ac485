package ledger

import (
	"sort"
	"sync"
)

// identityLocks hands out one mutex per identity so ledger mutations for a
// single identity serialize while different identities proceed independently.
// Locks are never released back to the map; the population is bounded by the
// user base.
type identityLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// get returns the mutex for an identity, creating it on first use
func (l *identityLocks) get(identity string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, exists := l.locks[identity]
	if !exists {
		lock = &sync.Mutex{}
		l.locks[identity] = lock
	}
	return lock
}

// lock acquires the mutex for a single identity
func (l *identityLocks) lock(identity string) func() {
	lock := l.get(identity)
	lock.Lock()
	return lock.Unlock
}

// lockPair acquires both identities' mutexes in lexicographic order, so two
// opposing transfers cannot deadlock
func (l *identityLocks) lockPair(a, b string) func() {
	ordered := []string{a, b}
	sort.Strings(ordered)

	first := l.get(ordered[0])
	second := l.get(ordered[1])

	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}
