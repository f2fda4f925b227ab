package gateway

import "sync"

// sessionLocks serializes work per session key. Entries are dropped once no caller
// holds or waits on them, so idle sessions cost nothing.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// lock blocks until the caller owns sessionKey and returns the matching unlock.
func (l *sessionLocks) lock(sessionKey string) func() {
	l.mu.Lock()
	entry, ok := l.locks[sessionKey]
	if !ok {
		entry = &sessionLock{}
		l.locks[sessionKey] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()

			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, sessionKey)
			}
			l.mu.Unlock()
		})
	}
}

// active reports how many session keys are currently held or awaited.
func (l *sessionLocks) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
