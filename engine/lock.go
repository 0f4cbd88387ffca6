package engine

import "sync"

// threadLocks serializes all state-mutating operations per thread ID.
// Contention is strictly per instance: unrelated threads never block each
// other. Entries are not reaped; the map is bounded by the number of
// distinct threads this process has touched.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for threadID and returns its unlock function.
func (l *threadLocks) Lock(threadID string) func() {
	l.mu.Lock()
	m, ok := l.locks[threadID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[threadID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
