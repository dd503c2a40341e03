package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/stagehand/internal/ir"
)

// Entity reference prefixes.
const (
	rolePrefix = "#"
	partPrefix = "."
)

// DisplayManager shows and hides entities on state changes.
//
// Every job applies the default state action to the entities of all
// matched states and the clear action to every other known entity, in
// parallel. Entities are "#role" (every child with that role), ".part"
// (a subject part) or a bare name (part first, then role). References
// that resolve to nothing are skipped.
type DisplayManager struct {
	*StateManager

	// entities lists every reference used by any rule, in first-use order.
	entities []string

	mu      sync.Mutex
	lastKey string
}

// NewDisplayManager builds a display manager for cfg and, unless
// apply_clear_state_on_init is off, drives every entity to the clear
// action at speed zero.
func NewDisplayManager(ctx context.Context, subject Subject, cfg ir.ManagerConfig, aliases *AliasManager, opts ...Option) (*DisplayManager, error) {
	dm := &DisplayManager{}
	sm, err := NewStateManager(subject, cfg, aliases, dm, opts...)
	if err != nil {
		return nil, err
	}
	dm.StateManager = sm

	var all []ir.Item
	for _, r := range sm.Rules() {
		all = append(all, r.Then.In...)
	}
	dm.entities = ir.ItemRefs(ir.UniqItems(all))

	if sm.Settings().ApplyClearStateOnInit {
		if err := dm.Clear(ctx); err != nil {
			return nil, err
		}
	}
	return dm, nil
}

// Entities returns every entity reference the manager controls.
func (dm *DisplayManager) Entities() []string {
	return dm.entities
}

// Clear applies the clear action to every entity at speed zero.
func (dm *DisplayManager) Clear(ctx context.Context) error {
	return dm.applyAction(ctx, dm.Settings().ClearAction(), dm.entities, 0)
}

// ShapeTransition makes exiting a plain display rule exit its entities.
func (dm *DisplayManager) ShapeTransition(spec ir.TransitionSpec) ir.TransitionSpec {
	if spec.Split {
		return spec
	}
	spec.Out = spec.In
	return spec
}

// ShouldApply skips a transition whose visible set equals the last one
// enqueued when nothing entered or exited, or while that job is still
// pending. Once the queue drains, a re-entering pick (PickAll) applies
// again.
func (dm *DisplayManager) ShouldApply(t ir.Transition) bool {
	key := ir.TransitionKey(ir.ItemRefs(t.Current))
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if key == dm.lastKey && (t.Empty() || dm.busy()) {
		return false
	}
	dm.lastKey = key
	return true
}

func (dm *DisplayManager) busy() bool {
	select {
	case <-dm.Idle():
		return false
	default:
		return true
	}
}

// ApplyNow shows the entities of the current states and hides the rest.
func (dm *DisplayManager) ApplyNow(ctx context.Context, job Job) error {
	visible := ir.ItemRefs(job.Transition.Current)
	inView := make(map[string]bool, len(visible))
	for _, ref := range visible {
		inView[ref] = true
	}
	var others []string
	for _, ref := range dm.entities {
		if !inView[ref] {
			others = append(others, ref)
		}
	}

	settings := dm.Settings()
	clearAction := settings.ClearAction()
	action := settings.DefaultStateAction

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dm.applyAction(gctx, clearAction, others, settings.Speed(clearAction))
	})
	g.Go(func() error {
		return dm.applyAction(gctx, action, visible, settings.Speed(action))
	})
	return g.Wait()
}

// applyAction shows or hides every resolvable entity of refs concurrently.
func (dm *DisplayManager) applyAction(ctx context.Context, action string, refs []string, speed time.Duration) error {
	if len(refs) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		target, ok := dm.findEntity(ref)
		if !ok {
			continue
		}
		g.Go(func() error {
			return target.apply(gctx, action, speed)
		})
	}
	return g.Wait()
}

// entityTarget is a resolved entity reference: a part name or a list of
// role children.
type entityTarget struct {
	host     PartHost
	part     string
	children []Displayable
}

func (e entityTarget) apply(ctx context.Context, action string, speed time.Duration) error {
	if e.host != nil {
		if action == ActionHide {
			return e.host.HidePart(ctx, e.part, speed)
		}
		return e.host.ShowPart(ctx, e.part, speed)
	}
	for _, c := range e.children {
		var err error
		if action == ActionHide {
			err = c.Hide(ctx, speed)
		} else {
			err = c.Show(ctx, speed)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (dm *DisplayManager) findEntity(ref string) (entityTarget, bool) {
	if role, ok := strings.CutPrefix(ref, rolePrefix); ok {
		return dm.findRole(role)
	}
	if part, ok := strings.CutPrefix(ref, partPrefix); ok {
		return dm.findPart(part)
	}
	if target, ok := dm.findPart(ref); ok {
		return target, true
	}
	return dm.findRole(ref)
}

func (dm *DisplayManager) findPart(name string) (entityTarget, bool) {
	host, ok := dm.Subject().(PartHost)
	if !ok || !host.FindPart(name) {
		return entityTarget{}, false
	}
	return entityTarget{host: host, part: name}, true
}

func (dm *DisplayManager) findRole(role string) (entityTarget, bool) {
	var children []Displayable
	for _, c := range dm.Subject().FindChildrenByRole(role) {
		if d, ok := c.(Displayable); ok {
			children = append(children, d)
		}
	}
	if len(children) == 0 {
		return entityTarget{}, false
	}
	return entityTarget{children: children}, true
}
