package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/stagehand/internal/ir"
)

// Job is one transition application handed to a manager variant.
type Job struct {
	// Seq is the job's position in the logical clock, unique per dispatcher.
	Seq int64

	// Manager names the manager that owns the job.
	Manager string

	// Transition is the payload picked for this job.
	Transition ir.Transition
}

// ApplyFunc performs a job's side effects.
type ApplyFunc func(ctx context.Context, job Job) error

// SettleFunc observes every job settlement, including supersession.
type SettleFunc func(ctx context.Context, job Job, err error)

// Pending is the settlement handle of a pushed job.
//
// It settles exactly once: nil when the job was applied, an error matching
// ErrSuperseded when it was discarded before starting, or the apply error.
type Pending struct {
	seq  int64
	done chan struct{}
	err  error
}

func newPending(seq int64) *Pending {
	return &Pending{seq: seq, done: make(chan struct{})}
}

// settledPending returns a handle that is already settled with err.
func settledPending(seq int64, err error) *Pending {
	p := newPending(seq)
	p.settle(err)
	return p
}

func (p *Pending) settle(err error) {
	p.err = err
	close(p.done)
}

// Seq returns the job's sequence number.
func (p *Pending) Seq() int64 { return p.seq }

// Done is closed once the job settles.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err returns the settlement error. Only meaningful after Done is closed.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the job settles or ctx is done. Cancelling ctx stops
// the wait, never the job.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type queueItem struct {
	ctx     context.Context
	job     Job
	pending *Pending
}

// TransitionQueue serializes the application of transitions for one
// manager with latest-wins supersession.
//
// A push onto an idle queue starts immediately on a worker goroutine. Pushes
// made while a job runs wait. When the running job finishes, the worker
// jumps straight to the newest waiting job and settles every job it
// skipped with ErrSuperseded. A started job is never aborted: it runs on a
// context detached from the caller's cancellation.
//
// Jobs therefore settle in start order; a later job only settles before an
// earlier one when the earlier one was discarded.
//
// Thread-safety: Push is safe from any goroutine.
type TransitionQueue struct {
	name   string
	apply  ApplyFunc
	settle SettleFunc
	clock  *Clock

	mu      sync.Mutex
	running bool
	waiting []queueItem
	idle    chan struct{}
}

// QueueOption configures a TransitionQueue.
type QueueOption func(*TransitionQueue)

// WithQueueName labels the queue's errors with a manager name.
func WithQueueName(name string) QueueOption {
	return func(q *TransitionQueue) {
		q.name = name
	}
}

// WithQueueClock shares a logical clock for job sequence numbers.
func WithQueueClock(c *Clock) QueueOption {
	return func(q *TransitionQueue) {
		q.clock = c
	}
}

// WithSettleFunc observes every settlement.
func WithSettleFunc(fn SettleFunc) QueueOption {
	return func(q *TransitionQueue) {
		q.settle = fn
	}
}

// NewTransitionQueue creates an idle queue that applies jobs with apply.
func NewTransitionQueue(apply ApplyFunc, opts ...QueueOption) *TransitionQueue {
	q := &TransitionQueue{apply: apply}
	for _, opt := range opts {
		opt(q)
	}
	if q.clock == nil {
		q.clock = NewClock()
	}
	return q
}

// Push enqueues t and returns its settlement handle.
func (q *TransitionQueue) Push(ctx context.Context, t ir.Transition) *Pending {
	item := queueItem{
		ctx: context.WithoutCancel(ctx),
		job: Job{Seq: q.clock.Next(), Manager: q.name, Transition: t},
	}
	item.pending = newPending(item.job.Seq)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		q.waiting = append(q.waiting, item)
		return item.pending
	}
	q.running = true
	q.idle = make(chan struct{})
	go q.run(item)
	return item.pending
}

// Len returns the number of jobs waiting to start.
func (q *TransitionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Idle returns a channel closed once no job is running or waiting. It is
// already closed for an idle queue.
func (q *TransitionQueue) Idle() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return q.idle
}

func (q *TransitionQueue) run(item queueItem) {
	for {
		err := q.applySafely(item)
		q.finish(item, err)

		q.mu.Lock()
		if len(q.waiting) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		last := len(q.waiting) - 1
		next := q.waiting[last]
		skipped := q.waiting[:last]
		q.waiting = nil
		q.mu.Unlock()

		for _, s := range skipped {
			q.finish(s, newSupersededError(q.name, s.job.Seq, next.job.Seq))
		}
		item = next
	}
}

func (q *TransitionQueue) applySafely(item queueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeError{
				Code:    ErrCodeApplyPanic,
				Message: fmt.Sprintf("transition panicked: %v", r),
				Manager: q.name,
				Details: map[string]string{"seq": fmt.Sprintf("%d", item.job.Seq)},
			}
		}
	}()
	return q.apply(item.ctx, item.job)
}

func (q *TransitionQueue) finish(item queueItem, err error) {
	if q.settle != nil {
		q.settle(item.ctx, item.job, err)
	}
	item.pending.settle(err)
}
