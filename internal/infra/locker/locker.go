// Package locker provides non-blocking shared/exclusive locks keyed by string.
package locker

import (
	"sync"
)

// Locker holds one reader/writer state per key. The zero value is ready to use.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*state
}

type state struct {
	readers int
	writer  bool
}

// New returns an empty Locker.
func New() *Locker {
	return &Locker{}
}

// TryLock takes the exclusive lock for key. It reports false when any reader
// or writer holds key.
func (l *Locker) TryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.get(key)
	if s.writer || s.readers > 0 {
		return false
	}
	s.writer = true
	return true
}

// Unlock releases the exclusive lock for key.
func (l *Locker) Unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.locks[key]
	if !ok || !s.writer {
		panic("locker: unlock of unlocked key " + key)
	}
	s.writer = false
	l.release(key, s)
}

// TryRLock takes a shared lock for key. It reports false when a writer holds key.
func (l *Locker) TryRLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.get(key)
	if s.writer {
		return false
	}
	s.readers++
	return true
}

// RUnlock releases one shared lock for key.
func (l *Locker) RUnlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.locks[key]
	if !ok || s.readers == 0 {
		panic("locker: runlock of unlocked key " + key)
	}
	s.readers--
	l.release(key, s)
}

// Locked reports whether any lock is held on key.
func (l *Locker) Locked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.locks[key]
	return ok
}

func (l *Locker) get(key string) *state {
	if l.locks == nil {
		l.locks = make(map[string]*state)
	}
	s, ok := l.locks[key]
	if !ok {
		s = &state{}
		l.locks[key] = s
	}
	return s
}

func (l *Locker) release(key string, s *state) {
	if !s.writer && s.readers == 0 {
		delete(l.locks, key)
	}
}
