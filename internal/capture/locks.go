package capture

import "sync"

// keyedLocks is a set of non-blocking per-key locks. A second acquisition
// of a held key fails immediately instead of queueing.
type keyedLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{held: make(map[string]bool)}
}

// TryLock acquires the lock for key, reporting whether it succeeded.
func (l *keyedLocks) TryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false
	}
	l.held[key] = true
	return true
}

// Unlock releases the lock for key.
func (l *keyedLocks) Unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
