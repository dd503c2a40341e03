package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/stagehand/internal/compiler"
	"github.com/roach88/stagehand/internal/engine"
	"github.com/roach88/stagehand/internal/ir"
	"github.com/roach88/stagehand/internal/store"
	"github.com/roach88/stagehand/internal/testutil"
)

// Option configures a simulation run.
type Option func(*runConfig)

type runConfig struct {
	store    *store.Store
	runIDs   engine.RunIDGenerator
	hooks    []engine.Hooks
	logger   *slog.Logger
	registry *engine.Registry
}

// WithStore records the run into s instead of a fresh in-memory journal.
func WithStore(s *store.Store) Option {
	return func(c *runConfig) {
		c.store = s
	}
}

// WithRunIDs sets the journal run id generator. Default: a fixed id taken
// from the scenario.
func WithRunIDs(g engine.RunIDGenerator) Option {
	return func(c *runConfig) {
		c.runIDs = g
	}
}

// WithHooks adds engine hooks, called after the journal's and the trace's.
func WithHooks(h engine.Hooks) Option {
	return func(c *runConfig) {
		c.hooks = append(c.hooks, h)
	}
}

// WithLogger sets the engine logger. Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithRegistry sets the manager factories. Default: engine.NewRegistry().
func WithRegistry(r *engine.Registry) Option {
	return func(c *runConfig) {
		c.registry = r
	}
}

// Harness executes one scenario against the real engine.
type Harness struct {
	dispatcher *engine.Dispatcher
	subject    *simSubject
	journal    *store.Journal
	rec        *testutil.Recorder
	result     *Result

	mu   sync.Mutex
	step int
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Compile and validate the state configuration
//  2. Start a journal run and build the simulated subject
//  3. Build the dispatcher (construction calls are step 0)
//  4. Execute steps, checking each step's expectations
//  5. Evaluate assertions against the calls and the journal
//
// Returned errors mean the scenario could not run; expectation and
// assertion failures are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	c := runConfig{}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.registry == nil {
		c.registry = engine.NewRegistry()
	}
	if c.runIDs == nil {
		c.runIDs = engine.NewFixedGenerator(defaultRunID(scenario))
	}

	filename, src, err := scenarioSource(scenario)
	if err != nil {
		return nil, err
	}
	cfg, err := compiler.CompileSource(filename, src)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", filename, err)
	}
	if verrs := compiler.Validate(cfg, c.registry.Kinds()...); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, ve := range verrs {
			msgs[i] = ve.Error()
		}
		return nil, fmt.Errorf("validate %s: %s", filename, strings.Join(msgs, "; "))
	}

	st := c.store
	if st == nil {
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}

	journal, err := st.StartRun(ctx, store.Run{
		ID:         c.runIDs.Generate(),
		Name:       scenario.Name,
		SourceHash: ir.SourceHash(src),
	}, c.logger)
	if err != nil {
		return nil, err
	}

	rec := &testutil.Recorder{}
	subject, err := newSimSubject(scenario.Subject, rec)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		subject: subject,
		journal: journal,
		rec:     rec,
		result:  NewResult(),
	}
	h.result.RunID = journal.RunID()

	hooks := append([]engine.Hooks{journal.Hooks(), h.traceHooks()}, c.hooks...)
	h.dispatcher, err = engine.NewDispatcher(ctx, subject, *cfg,
		engine.WithHooks(engine.ChainHooks(hooks...)),
		engine.WithLogger(c.logger),
		engine.WithRegistry(c.registry),
	)
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}
	h.flushCalls(0)

	if scenario.Watch {
		if err := h.dispatcher.Watch(ctx); err != nil {
			return nil, fmt.Errorf("watch: %w", err)
		}
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i+1, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	if err := journal.Err(); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	h.result.Outcomes, err = st.OutcomeCounts(ctx, journal.RunID())
	if err != nil {
		return nil, fmt.Errorf("read outcomes: %w", err)
	}

	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(errMsg)
	}
	return h.result, nil
}

func defaultRunID(s *Scenario) string {
	if s.RunID != "" {
		return s.RunID
	}
	return "run-" + s.Name
}

func scenarioSource(s *Scenario) (string, []byte, error) {
	if s.Config == "" {
		return s.Name + ".cue", []byte(s.Source), nil
	}
	src, err := os.ReadFile(s.Config)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read config: %w", err)
	}
	return s.Config, src, nil
}

// executeStep applies one step's mutations and action, then checks its
// expectations. Only failures that stop the scenario are returned.
func (h *Harness) executeStep(ctx context.Context, n int, step Step) error {
	h.mu.Lock()
	h.step = n
	h.mu.Unlock()
	h.journal.SetStep(int64(n))

	if step.Set != nil {
		if _, err := h.subject.update(step.Set); err != nil {
			return fmt.Errorf("set: %w", err)
		}
	}

	var child *simSubject
	var changed []string
	if step.Child != nil {
		var ok bool
		child, ok = h.subject.child(step.Child.Role, step.Child.Name)
		if !ok {
			return fmt.Errorf("no child with role %q and name %q", step.Child.Role, step.Child.Name)
		}
		var err error
		changed, err = child.update(step.Child.Set)
		if err != nil {
			return fmt.Errorf("child set: %w", err)
		}
	}

	var dispatchErr error
	switch step.Do {
	case "", DoApply:
		dispatchErr = h.dispatcher.Apply(ctx)
	case DoApplyAll:
		dispatchErr = h.dispatcher.ApplyAll(ctx)
	case DoEmit:
		child.emit(changed)
		h.dispatcher.Wait()
	case DoLock:
		h.dispatcher.Lock()
	case DoUnlock:
		h.dispatcher.Unlock()
	case DoNone:
	}
	h.flushCalls(n)

	h.checkStep(n, step.Expect, dispatchErr)
	return nil
}

func (h *Harness) checkStep(n int, expect *StepExpect, dispatchErr error) {
	switch {
	case expect != nil && expect.Error != "":
		if dispatchErr == nil {
			h.result.AddError(fmt.Sprintf("step %d: expected error containing %q, got none", n, expect.Error))
		} else if !strings.Contains(dispatchErr.Error(), expect.Error) {
			h.result.AddError(fmt.Sprintf("step %d: expected error containing %q, got %q", n, expect.Error, dispatchErr))
		}
	case dispatchErr != nil:
		h.result.AddError(fmt.Sprintf("step %d: dispatch failed: %v", n, dispatchErr))
	}

	if expect == nil || expect.Calls == nil {
		return
	}
	want := slices.Sorted(slices.Values(expect.Calls))
	got := h.result.CallsAt(n)
	if !slices.Equal(want, got) {
		h.result.AddError(fmt.Sprintf("step %d: expected calls %v, got %v", n, want, got))
	}
}

// flushCalls moves the recorded calls into the result under step n.
func (h *Harness) flushCalls(n int) {
	calls := h.rec.Take()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Calls = append(h.result.Calls, calls...)
	slices.Sort(calls)
	for _, c := range calls {
		h.result.Trace = append(h.result.Trace, TraceEvent{Step: n, Type: EventCall, Target: c})
	}
}

// traceHooks records picks that enter or exit rules and every settlement.
func (h *Harness) traceHooks() engine.Hooks {
	return engine.Hooks{
		OnPick: func(_ context.Context, e *engine.PickEvent) {
			if len(e.Enter) == 0 && len(e.Exit) == 0 {
				return
			}
			h.mu.Lock()
			defer h.mu.Unlock()
			h.result.Trace = append(h.result.Trace, TraceEvent{
				Step:    h.step,
				Type:    EventPick,
				Manager: e.Manager,
				In:      ir.ItemRefs(e.Transition.In),
				Out:     ir.ItemRefs(e.Transition.Out),
			})
		},
		OnSettle: func(_ context.Context, e *engine.SettleEvent) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.result.Trace = append(h.result.Trace, TraceEvent{
				Step:    h.step,
				Type:    EventSettle,
				Manager: e.Job.Manager,
				Outcome: string(e.Outcome),
				Seq:     e.Job.Seq,
			})
		},
	}
}
