package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/stagehand/internal/ir"
)

// Variant turns a picked transition into side effects. ActionManager and
// DisplayManager are the built-in variants; custom manager kinds supply
// their own.
type Variant interface {
	ApplyNow(ctx context.Context, job Job) error
}

// Shaper is implemented by variants that rewrite each declaration's
// transition before it is folded into rules.
type Shaper interface {
	ShapeTransition(spec ir.TransitionSpec) ir.TransitionSpec
}

// Gate is implemented by variants that decide which picked transitions
// are worth enqueuing. Without a Gate, empty transitions are skipped.
type Gate interface {
	ShouldApply(t ir.Transition) bool
}

// Manager is what a dispatcher drives. *StateManager implements it, and so
// does every manager embedding one.
type Manager interface {
	Name() string
	Kind() ir.ManagerKind
	Rules() []ir.Rule
	State() MatchState
	Pick(ctx context.Context) ir.Transition
	PickAll(ctx context.Context) ir.Transition
	Apply(ctx context.Context, t ir.Transition) *Pending
	Idle() <-chan struct{}
}

// StateManager evaluates one bucket of declarations against a subject.
//
// Declarations are expanded once, at construction. Every Pick evaluates
// the rules, resolves specificity and advances the manager's MatchState;
// every Apply pushes the picked transition onto the manager's own
// TransitionQueue, whose worker hands it to the variant.
//
// Thread-safety: Pick and Apply are safe from any goroutine. The
// MatchState is guarded by a mutex; evaluation happens outside it.
type StateManager struct {
	name      string
	kind      ir.ManagerKind
	subject   Subject
	rules     []ir.Rule
	settings  Settings
	variant   Variant
	evaluator *Evaluator
	queue     *TransitionQueue
	logger    *slog.Logger
	hooks     Hooks

	mu    sync.Mutex
	state MatchState
}

// NewStateManager builds a manager for cfg. A nil variant fails with
// ErrNoVariant; undefined aliases fail with ErrUnknownAlias; settings that
// do not decode fail with ErrInvalidSettings.
func NewStateManager(subject Subject, cfg ir.ManagerConfig, aliases *AliasManager, variant Variant, opts ...Option) (*StateManager, error) {
	name := cfg.ManagerName()
	if variant == nil {
		return nil, &RuntimeError{Code: ErrCodeNoVariant, Message: ErrNoVariant.Message, Manager: name}
	}

	settings, err := DecodeSettings(cfg.Settings)
	if err != nil {
		return nil, &RuntimeError{Code: ErrCodeInvalidSettings, Message: err.Error(), Manager: name}
	}

	var shape ShapeFunc
	if s, ok := variant.(Shaper); ok {
		shape = s.ShapeTransition
	}
	rules, err := ExpandShaped(cfg.Declarations, aliases, shape)
	if err != nil {
		return nil, fmt.Errorf("manager %q: %w", name, err)
	}

	o := buildOptions(opts)
	m := &StateManager{
		name:      name,
		kind:      cfg.Kind,
		subject:   subject,
		rules:     rules,
		settings:  settings,
		variant:   variant,
		evaluator: o.evaluator,
		logger:    o.logger.With("manager", name),
		hooks:     o.hooks,
	}
	m.queue = NewTransitionQueue(variant.ApplyNow,
		WithQueueName(name),
		WithQueueClock(o.clock),
		WithSettleFunc(m.settled),
	)

	if settings.Debug {
		m.logger.Debug("debug mode is on", "rules", len(rules))
	}
	return m, nil
}

// Name returns the manager's name (its kind unless configured otherwise).
func (m *StateManager) Name() string { return m.name }

// Kind returns the manager's kind.
func (m *StateManager) Kind() ir.ManagerKind { return m.kind }

// Rules returns the expanded rules in declaration order.
func (m *StateManager) Rules() []ir.Rule { return m.rules }

// Settings returns the decoded settings.
func (m *StateManager) Settings() Settings { return m.settings }

// Subject returns the subject the manager reads.
func (m *StateManager) Subject() Subject { return m.subject }

// Logger returns the manager's logger.
func (m *StateManager) Logger() *slog.Logger { return m.logger }

// State returns the current MatchState.
func (m *StateManager) State() MatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Idle returns a channel closed once the manager's queue has drained.
func (m *StateManager) Idle() <-chan struct{} {
	return m.queue.Idle()
}

// Pick evaluates the rules against the subject's current attributes and
// returns what entered and exited since the previous pick.
func (m *StateManager) Pick(ctx context.Context) ir.Transition {
	return m.pick(ctx, false)
}

// PickAll is Pick with every matched rule treated as entering, used to
// drive entities to a known state regardless of history.
func (m *StateManager) PickAll(ctx context.Context) ir.Transition {
	return m.pick(ctx, true)
}

func (m *StateManager) pick(ctx context.Context, includeCurrent bool) ir.Transition {
	matches := Pick(m.rules, func(r ir.Rule) bool {
		return m.evaluator.Matches(m.subject, r.Conditions)
	}, m.settings.PickStatesWithLongestDefinitionOnly)

	m.mu.Lock()
	next, diff := m.state.Advance(matches, includeCurrent)
	m.state = next
	m.mu.Unlock()

	t := Collect(diff, matches)

	if m.settings.Debug {
		m.logger.Debug("picked transitions",
			"enter_states", describeRules(diff.Enter),
			"exit_states", describeRules(diff.Exit),
			"current_states", describeRules(next.Rules()),
			"in", ir.ItemRefs(t.In),
			"out", ir.ItemRefs(t.Out),
		)
	}
	if m.hooks.OnPick != nil {
		m.hooks.OnPick(ctx, &PickEvent{
			Manager:    m.name,
			Kind:       m.kind,
			Enter:      diff.Enter,
			Exit:       diff.Exit,
			Transition: t,
		})
	}
	return t
}

// Apply enqueues t and returns its settlement handle. Transitions the
// variant has no use for settle immediately with nil.
func (m *StateManager) Apply(ctx context.Context, t ir.Transition) *Pending {
	if gate, ok := m.variant.(Gate); ok {
		if !gate.ShouldApply(t) {
			return settledPending(0, nil)
		}
	} else if t.Empty() {
		return settledPending(0, nil)
	}
	return m.queue.Push(ctx, t)
}

func (m *StateManager) settled(ctx context.Context, job Job, err error) {
	outcome := OutcomeOf(err)
	if outcome == OutcomeFailed {
		m.logger.Warn("transition failed", "seq", job.Seq, "error", err)
	}
	if m.hooks.OnSettle != nil {
		m.hooks.OnSettle(ctx, &SettleEvent{Job: job, Outcome: outcome, Err: err})
	}
}

func describeRules(rules []ir.Rule) [][]string {
	out := make([][]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Conditions.Keys())
	}
	return out
}
