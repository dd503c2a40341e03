package testutil

import (
	"fmt"
	"slices"
	"sync"
)

// Recorder collects side-effect descriptions from fake collaborators.
//
// Side effects of one job run concurrently, so tests compare either the
// sorted log or the log split at a Mark.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

// Record appends one event.
func (r *Recorder) Record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

// Events returns the events in recording order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Sorted returns the events in lexical order.
func (r *Recorder) Sorted() []string {
	events := r.Events()
	slices.Sort(events)
	return events
}

// Take returns the events in recording order and clears the log.
func (r *Recorder) Take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.events
	r.events = nil
	return events
}

// TakeSorted is Take with the events in lexical order.
func (r *Recorder) TakeSorted() []string {
	events := r.Take()
	slices.Sort(events)
	return events
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
