package engine

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/stagehand/internal/ir"
)

// splitPrefix marks an action shorthand that runs "name.in" on enter and
// "name.out" on exit.
const splitPrefix = "*"

// ActionManager invokes subject operations on state changes.
//
// Items resolve to operations in this order: inline ops, "scope.sub"
// through the subject's ScopeHost, plain names through its OperationHost.
// A job runs the exit operations to completion before starting the enter
// operations; the operations of one phase run concurrently and the first
// error fails the job.
type ActionManager struct {
	*StateManager
}

// NewActionManager builds an action manager for cfg.
func NewActionManager(subject Subject, cfg ir.ManagerConfig, aliases *AliasManager, opts ...Option) (*ActionManager, error) {
	am := &ActionManager{}
	sm, err := NewStateManager(subject, cfg, aliases, am, opts...)
	if err != nil {
		return nil, err
	}
	am.StateManager = sm
	return am, nil
}

// ShapeTransition splits "*name" entries of a plain transition into
// "name.in" (enter) and "name.out" (exit).
func (am *ActionManager) ShapeTransition(spec ir.TransitionSpec) ir.TransitionSpec {
	if spec.Split {
		return spec
	}
	shaped := ir.TransitionSpec{RunBefore: spec.RunBefore, RunAfter: spec.RunAfter}
	for _, it := range spec.In {
		if name, ok := strings.CutPrefix(it.Ref, splitPrefix); ok && it.Op == nil {
			shaped.In = append(shaped.In, ir.Ref(name+".in"))
			shaped.Out = append(shaped.Out, ir.Ref(name+".out"))
			continue
		}
		shaped.In = append(shaped.In, it)
	}
	shaped.Out = append(shaped.Out, spec.Out...)
	return shaped
}

// ApplyNow resolves every item first, so an unknown operation fails the
// job before any side effect runs.
func (am *ActionManager) ApplyNow(ctx context.Context, job Job) error {
	exitOps, err := am.resolveAll(job.Transition.Out)
	if err != nil {
		return err
	}
	enterOps, err := am.resolveAll(job.Transition.In)
	if err != nil {
		return err
	}
	if err := runConcurrently(ctx, exitOps); err != nil {
		return err
	}
	return runConcurrently(ctx, enterOps)
}

func (am *ActionManager) resolveAll(items []ir.Item) ([]Operation, error) {
	ops := make([]Operation, 0, len(items))
	for _, it := range items {
		op, ok := am.resolve(it)
		if !ok {
			return nil, newUnknownOperationError(am.Name(), it.Ref)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (am *ActionManager) resolve(it ir.Item) (Operation, bool) {
	if it.Op != nil {
		return Operation(it.Op), true
	}
	subject := am.Subject()

	if scopeName, sub, ok := strings.Cut(it.Ref, "."); ok {
		scopes, isScoped := subject.(ScopeHost)
		if !isScoped {
			return nil, false
		}
		host, found := scopes.Scope(scopeName)
		if !found || host == nil {
			return nil, false
		}
		return lookupOperation(host, sub)
	}

	host, ok := subject.(OperationHost)
	if !ok {
		return nil, false
	}
	return lookupOperation(host, it.Ref)
}

func lookupOperation(host OperationHost, name string) (Operation, bool) {
	op, ok := host.Operation(name)
	if !ok || op == nil {
		return nil, false
	}
	return op, true
}

func runConcurrently(ctx context.Context, ops []Operation) error {
	if len(ops) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, op := range ops {
		g.Go(func() error {
			return op(gctx)
		})
	}
	return g.Wait()
}
