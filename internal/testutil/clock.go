package testutil

import (
	"sync"
	"time"
)

// StubClock is a test clock that only moves when told to, or by a fixed
// step on every read when built with NewSteppingClock. Safe for concurrent use.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStubClock creates a StubClock frozen at t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// NewSteppingClock creates a clock that advances by step after every Now,
// so consecutive readings (start and finish of an operation) differ.
func NewSteppingClock(t time.Time, step time.Duration) *StubClock {
	return &StubClock{now: t, step: step}
}

// FixedClock returns a StubClock frozen at 2026-03-02 09:00:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
