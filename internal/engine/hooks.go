package engine

import (
	"context"

	"github.com/roach88/stagehand/internal/ir"
)

// Outcome is how a job settled.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeSuperseded Outcome = "superseded"
	OutcomeFailed     Outcome = "failed"
)

// OutcomeOf classifies a settlement error.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeApplied
	case IsSuperseded(err):
		return OutcomeSuperseded
	default:
		return OutcomeFailed
	}
}

// PickEvent describes one evaluation of a manager's rules.
type PickEvent struct {
	Manager    string
	Kind       ir.ManagerKind
	Enter      []ir.Rule
	Exit       []ir.Rule
	Transition ir.Transition
}

// SettleEvent describes one job settlement.
type SettleEvent struct {
	Job     Job
	Outcome Outcome
	Err     error
}

// Hooks defines callbacks for engine observability. Either field may be
// nil. OnSettle runs on the queue's worker goroutine.
type Hooks struct {
	OnPick   func(context.Context, *PickEvent)
	OnSettle func(context.Context, *SettleEvent)
}

// ChainHooks calls every set of hooks in order.
func ChainHooks(all ...Hooks) Hooks {
	return Hooks{
		OnPick: func(ctx context.Context, e *PickEvent) {
			for _, h := range all {
				if h.OnPick != nil {
					h.OnPick(ctx, e)
				}
			}
		},
		OnSettle: func(ctx context.Context, e *SettleEvent) {
			for _, h := range all {
				if h.OnSettle != nil {
					h.OnSettle(ctx, e)
				}
			}
		},
	}
}
