package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/stagehand/internal/engine"
	"github.com/roach88/stagehand/internal/ir"
)

// Journal writes one run's engine activity to a Store through engine
// hooks.
//
// Picks that neither enter nor exit a rule are not recorded. Write
// failures never reach the engine: the first one is kept (Err) and every
// one is logged.
//
// Thread-safety: the hooks are safe to call from any goroutine.
type Journal struct {
	store  *Store
	runID  string
	logger *slog.Logger

	mu   sync.Mutex
	ord  int64
	step int64
	err  error
}

// StartRun writes run and returns a journal recording into it. Empty
// version fields default to the current engine and IR versions.
func (s *Store) StartRun(ctx context.Context, run Run, logger *slog.Logger) (*Journal, error) {
	if run.ID == "" {
		return nil, fmt.Errorf("start run: run id is required")
	}
	if run.EngineVersion == "" {
		run.EngineVersion = ir.EngineVersion
	}
	if run.IRVersion == "" {
		run.IRVersion = ir.IRVersion
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := s.WriteRun(ctx, run); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	return &Journal{store: s, runID: run.ID, logger: logger.With("run_id", run.ID)}, nil
}

// RunID returns the id of the run being recorded.
func (j *Journal) RunID() string { return j.runID }

// SetStep labels subsequent picks with a scenario step number.
func (j *Journal) SetStep(step int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.step = step
}

// Err returns the first write failure, if any.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Hooks returns engine hooks that record picks and settlements.
func (j *Journal) Hooks() engine.Hooks {
	return engine.Hooks{
		OnPick:   j.onPick,
		OnSettle: j.onSettle,
	}
}

func (j *Journal) onPick(ctx context.Context, e *engine.PickEvent) {
	if len(e.Enter) == 0 && len(e.Exit) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.ord++
	err := j.store.WritePick(ctx, Pick{
		RunID:   j.runID,
		Ord:     j.ord,
		Step:    j.step,
		Manager: e.Manager,
		Enter:   describeRules(e.Enter),
		Exit:    describeRules(e.Exit),
		Current: ir.ItemRefs(e.Transition.Current),
		In:      ir.ItemRefs(e.Transition.In),
		Out:     ir.ItemRefs(e.Transition.Out),
	})
	j.recordLocked(err)
}

func (j *Journal) onSettle(ctx context.Context, e *engine.SettleEvent) {
	st := Settlement{
		RunID:   j.runID,
		Seq:     e.Job.Seq,
		Manager: e.Job.Manager,
		Outcome: string(e.Outcome),
		In:      ir.ItemRefs(e.Job.Transition.In),
		Out:     ir.ItemRefs(e.Job.Transition.Out),
	}
	if e.Err != nil && e.Outcome == engine.OutcomeFailed {
		st.Error = e.Err.Error()
	}
	err := j.store.WriteSettlement(ctx, st)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.recordLocked(err)
}

func (j *Journal) recordLocked(err error) {
	if err == nil {
		return
	}
	j.logger.Warn("journal write failed", "error", err)
	if j.err == nil {
		j.err = err
	}
}

func describeRules(rules []ir.Rule) [][]string {
	out := make([][]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Conditions.Keys())
	}
	return out
}
