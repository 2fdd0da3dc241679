package ratelimit

import (
	"sync"
	"time"
)

// Limiter is the single rate-limit state shared by the delivery queue and the
// status endpoints. All methods are safe for concurrent use.
type Limiter struct {
	mu    sync.Mutex
	until time.Time        // zero means no limit was ever set
	now   func() time.Time // injectable for deterministic tests
}

// New returns a Limiter backed by the wall clock.
func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock returns a Limiter that reads the current time from now.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{now: now}
}

// IsLimited reports whether a limit has been set and has not yet expired.
func (l *Limiter) IsLimited() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.until.IsZero() {
		return false
	}
	return l.now().Before(l.until)
}

// SetLimit blocks delivery for d starting now, replacing any existing limit.
// A zero or negative d clears the limit immediately.
func (l *Limiter) SetLimit(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.until = l.now().Add(d)
}

// Until returns the instant delivery resumes and whether that instant is
// still in the future.
func (l *Limiter) Until() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.until.IsZero() {
		return time.Time{}, false
	}
	return l.until, l.now().Before(l.until)
}
