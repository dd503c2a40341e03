package engine

import "sync/atomic"

// Clock is a monotonic logical clock stamping transition jobs.
//
// Job sequence numbers come from this clock, never from wall time, so
// traces of the same scenario are identical across runs. A dispatcher
// shares one clock across all of its managers, making seq a total order
// of jobs within that dispatcher.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
// Used to continue numbering after jobs already recorded in a journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
