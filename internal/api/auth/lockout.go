package auth

import (
	"sync"
	"time"
)

type lockoutEntry struct {
	failures  int
	expiresAt time.Time // zero while not locked
}

// LockoutTracker locks an account after too many failed logins.
// State is in memory only; a restart clears every lockout.
type LockoutTracker struct {
	mu        sync.Mutex
	entries   map[string]*lockoutEntry
	threshold int
	duration  time.Duration
	now       func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLockoutTracker locks a key for duration after threshold failures.
func NewLockoutTracker(threshold int, duration time.Duration) *LockoutTracker {
	t := &LockoutTracker{
		entries:   make(map[string]*lockoutEntry),
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
	go t.cleanupLoop(5 * time.Minute)
	return t
}

// RecordFailure counts a failed attempt and reports whether key is now locked.
func (t *LockoutTracker) RecordFailure(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e, ok := t.entries[key]
	if !ok {
		e = &lockoutEntry{}
		t.entries[key] = e
	}
	if !e.expiresAt.IsZero() {
		if now.Before(e.expiresAt) {
			return true
		}
		*e = lockoutEntry{}
	}

	e.failures++
	if e.failures >= t.threshold {
		e.expiresAt = now.Add(t.duration)
		return true
	}
	return false
}

// IsLocked reports whether key is locked right now.
func (t *LockoutTracker) IsLocked(key string) bool {
	return t.Remaining(key) > 0
}

// Remaining returns how long key stays locked.
func (t *LockoutTracker) Remaining(key string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok || e.expiresAt.IsZero() {
		return 0
	}
	if d := e.expiresAt.Sub(t.now()); d > 0 {
		return d
	}
	return 0
}

// ClearFailures forgets key after a successful login.
func (t *LockoutTracker) ClearFailures(key string) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

// Close stops the background cleanup.
func (t *LockoutTracker) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *LockoutTracker) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.cleanup()
		case <-t.stop:
			return
		}
	}
}

func (t *LockoutTracker) cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for key, e := range t.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(t.entries, key)
		}
	}
}
