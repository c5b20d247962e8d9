// Package testutil provides common testing utilities shared across packages.
package testutil

import (
	"sync"
	"time"
)

// Clock is a settable clock for deterministic tests.
type Clock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewClock creates a clock frozen at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// DayOffset formats base shifted by days as a YYYY-MM-DD date.
func DayOffset(base time.Time, days int) string {
	return base.UTC().AddDate(0, 0, days).Format("2006-01-02")
}

// Instant formats t as an RFC3339 timestamp with millisecond precision.
func Instant(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// FailN returns err for the first n calls of Next and nil afterwards.
type FailN struct {
	mu        sync.Mutex
	remaining int
	calls     int
	err       error
}

// NewFailN creates a FailN.
func NewFailN(n int, err error) *FailN {
	return &FailN{remaining: n, err: err}
}

// Next records a call and returns the scripted error.
func (f *FailN) Next() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.remaining > 0 {
		f.remaining--
		return f.err
	}
	return nil
}

// Calls returns how many times Next was called.
func (f *FailN) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
