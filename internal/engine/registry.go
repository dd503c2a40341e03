package engine

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/stagehand/internal/ir"
)

// Factory builds a manager of one kind.
type Factory func(ctx context.Context, subject Subject, cfg ir.ManagerConfig, aliases *AliasManager, opts ...Option) (Manager, error)

// Registry maps manager kinds to factories.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[ir.ManagerKind]Factory
}

// NewRegistry returns a registry holding the built-in action and display
// kinds.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[ir.ManagerKind]Factory)}
	r.Register(ir.KindAction, func(_ context.Context, s Subject, cfg ir.ManagerConfig, a *AliasManager, opts ...Option) (Manager, error) {
		return NewActionManager(s, cfg, a, opts...)
	})
	r.Register(ir.KindDisplay, func(ctx context.Context, s Subject, cfg ir.ManagerConfig, a *AliasManager, opts ...Option) (Manager, error) {
		return NewDisplayManager(ctx, s, cfg, a, opts...)
	})
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind ir.ManagerKind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// RegisterVariant registers a custom kind backed by a plain StateManager
// and the variant newVariant returns.
func (r *Registry) RegisterVariant(kind ir.ManagerKind, newVariant func(subject Subject) Variant) {
	r.Register(kind, func(_ context.Context, s Subject, cfg ir.ManagerConfig, a *AliasManager, opts ...Option) (Manager, error) {
		return NewStateManager(s, cfg, a, newVariant(s), opts...)
	})
}

// Lookup returns the factory for kind.
func (r *Registry) Lookup(kind ir.ManagerKind) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []ir.ManagerKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]ir.ManagerKind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
