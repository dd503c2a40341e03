package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/roach88/stagehand/internal/ir"
)

// ChangeEvent is the event a subject emits for attribute mutations.
const ChangeEvent = "change"

// Dispatcher owns the managers of one subject and drives them together.
//
// All managers share one AliasManager and one logical clock. Each Apply
// cycle picks on every manager, orders the managers from the run_before /
// run_after hints of the rules that entered, then applies them one at a
// time, waiting for each to settle before starting the next.
//
// Thread-safety: Apply may be called from any goroutine. Picks of
// concurrent cycles are serialized; their applications overlap, which is
// what lets a manager's queue supersede stale jobs.
type Dispatcher struct {
	subject  Subject
	aliases  *AliasManager
	managers []Manager
	byName   map[string]Manager
	deps     map[string][]string
	clock    *Clock
	logger   *slog.Logger

	pickMu   sync.Mutex
	locked   atomic.Bool
	inflight sync.WaitGroup
}

// NewDispatcher builds one manager per cfg.Managers entry, in order,
// through the registry (WithRegistry, default NewRegistry()).
func NewDispatcher(ctx context.Context, subject Subject, cfg ir.Config, opts ...Option) (*Dispatcher, error) {
	o := buildOptions(opts)

	aliases, err := NewAliasManager(cfg.Aliases)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		subject: subject,
		aliases: aliases,
		byName:  make(map[string]Manager, len(cfg.Managers)),
		clock:   o.clock,
		logger:  o.logger,
	}

	// Managers share the dispatcher's clock, logger and hooks.
	managerOpts := append(slices.Clone(opts), WithClock(o.clock), WithLogger(o.logger), WithEvaluator(o.evaluator))

	for _, mc := range cfg.Managers {
		name := mc.ManagerName()
		if _, dup := d.byName[name]; dup {
			return nil, &RuntimeError{Code: ErrCodeDuplicateManager, Message: ErrDuplicateManager.Message, Manager: name}
		}
		factory, ok := o.registry.Lookup(mc.Kind)
		if !ok {
			return nil, &RuntimeError{
				Code:    ErrCodeUnknownManagerKind,
				Message: fmt.Sprintf("no factory registered for kind %q", mc.Kind),
				Manager: name,
				Details: map[string]string{"kind": string(mc.Kind)},
			}
		}
		m, err := factory(ctx, subject, mc, aliases, managerOpts...)
		if err != nil {
			return nil, err
		}
		d.managers = append(d.managers, m)
		d.byName[name] = m
	}

	d.deps = collectDependencies(aliases, d.managers)
	d.logger.Debug("dispatcher ready", "managers", d.Names(), "child_roles", len(d.deps))
	return d, nil
}

// Names returns the manager names in configuration order.
func (d *Dispatcher) Names() []string {
	names := make([]string, len(d.managers))
	for i, m := range d.managers {
		names[i] = m.Name()
	}
	return names
}

// Manager returns the manager called name.
func (d *Dispatcher) Manager(name string) (Manager, bool) {
	m, ok := d.byName[name]
	return m, ok
}

// Clock returns the logical clock shared by every manager.
func (d *Dispatcher) Clock() *Clock {
	return d.clock
}

// Aliases returns the shared alias table.
func (d *Dispatcher) Aliases() *AliasManager {
	return d.aliases
}

// Dependencies returns, per child role, the attributes conditions read
// from the first child with that role.
func (d *Dispatcher) Dependencies() map[string][]string {
	out := make(map[string][]string, len(d.deps))
	for role, attrs := range d.deps {
		out[role] = slices.Clone(attrs)
	}
	return out
}

// Lock suspends dispatching: Apply returns immediately until Unlock.
func (d *Dispatcher) Lock() { d.locked.Store(true) }

// Unlock resumes dispatching.
func (d *Dispatcher) Unlock() { d.locked.Store(false) }

// Locked reports whether dispatching is suspended.
func (d *Dispatcher) Locked() bool { return d.locked.Load() }

// Apply runs one dispatch cycle.
//
// A manager whose job was superseded is not an error: a newer cycle
// already carries its state. The first manager failure stops the cycle.
func (d *Dispatcher) Apply(ctx context.Context) error {
	return d.cycle(ctx, false)
}

// ApplyAll runs one cycle treating every matched rule as entering, driving
// every manager to the state its current matches describe.
func (d *Dispatcher) ApplyAll(ctx context.Context) error {
	return d.cycle(ctx, true)
}

func (d *Dispatcher) cycle(ctx context.Context, includeCurrent bool) error {
	if d.Locked() {
		return nil
	}

	d.pickMu.Lock()
	planned := make([]plannedTransition, 0, len(d.managers))
	for _, m := range d.managers {
		var t ir.Transition
		if includeCurrent {
			t = m.PickAll(ctx)
		} else {
			t = m.Pick(ctx)
		}
		planned = append(planned, plannedTransition{manager: m, transition: t})
	}
	ordered, err := orderByHints(planned)
	d.pickMu.Unlock()
	if err != nil {
		return err
	}

	for _, p := range ordered {
		err := p.manager.Apply(ctx, p.transition).Wait(ctx)
		switch {
		case err == nil:
		case IsSuperseded(err):
			d.logger.Debug("transition superseded", "manager", p.name())
		default:
			return fmt.Errorf("manager %q: %w", p.name(), err)
		}
	}
	return nil
}

// Watch subscribes the dispatcher to "change" events of every child role
// that conditions depend on. Children implementing ChangePublisher are
// asked to publish the watched attributes. Each event triggers an Apply
// on its own goroutine; Wait blocks until those have finished.
func (d *Dispatcher) Watch(ctx context.Context) error {
	if len(d.deps) == 0 {
		return nil
	}
	events, ok := d.subject.(EventSource)
	if !ok {
		return &RuntimeError{
			Code:    ErrCodeNoEventSource,
			Message: ErrNoEventSource.Message,
			Details: map[string]string{"roles": strings.Join(slices.Sorted(maps.Keys(d.deps)), ",")},
		}
	}

	for _, role := range slices.Sorted(maps.Keys(d.deps)) {
		attrs := d.deps[role]
		for _, child := range d.subject.FindChildrenByRole(role) {
			if pub, ok := child.(ChangePublisher); ok {
				pub.PublishChangesFor(attrs...)
			}
		}
		events.Subscribe(ChangeEvent, role, func() { d.trigger(ctx) })
	}
	return nil
}

// Wait blocks until every cycle triggered by Watch has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) trigger(ctx context.Context) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		if err := d.Apply(ctx); err != nil {
			d.logger.Error("dispatch failed", "error", err)
		}
	}()
}

// collectDependencies maps child roles to the attributes read through
// "role.attr" conditions, in rules and alias definitions alike.
func collectDependencies(aliases *AliasManager, managers []Manager) map[string][]string {
	deps := make(map[string][]string)
	add := func(cs ir.ConditionSet) {
		for _, attr := range cs.Keys() {
			role, rest, ok := strings.Cut(attr, ".")
			if !ok {
				continue
			}
			rest = strings.TrimPrefix(rest, previousPrefix)
			if !slices.Contains(deps[role], rest) {
				deps[role] = append(deps[role], rest)
			}
		}
	}
	for _, cs := range aliases.Definitions() {
		add(cs)
	}
	for _, m := range managers {
		for _, r := range m.Rules() {
			add(r.Conditions)
		}
	}
	return deps
}
