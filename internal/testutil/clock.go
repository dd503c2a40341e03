package testutil

import (
	"sync"
	"time"
)

// DeterministicClock provides thread-safe, reproducible wall-clock
// timestamps for tests.
//
// Every call to Now() advances by Step from Base, so journal rows and
// golden traces carry identical timestamps on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	base  time.Time
	step  time.Duration
	ticks int64
}

// DefaultBase is the first timestamp a DeterministicClock hands out.
var DefaultBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewDeterministicClock creates a clock starting at DefaultBase that
// advances one second per call.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{base: DefaultBase, step: time.Second}
}

// Now returns the next timestamp. The first call returns the base.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.base.Add(time.Duration(c.ticks) * c.step)
	c.ticks++
	return t
}

// Ticks returns how many timestamps were handed out.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock to its base.
//
// Used for test reuse. After Reset(), the next call to Now() returns the
// base again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
