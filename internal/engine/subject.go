package engine

import (
	"context"
	"time"

	"github.com/roach88/stagehand/internal/ir"
)

// The engine never touches rendering, storage or the component tree
// directly. Everything it needs from the stateful object it drives comes
// through the narrow interfaces below.

// AttributeReader exposes the subject's current attribute values and the
// previous-value shadow ("old_<name>"). Missing attributes read as ir.Null.
type AttributeReader interface {
	Get(name string) ir.IRValue
	Previous(name string) ir.IRValue
}

// ChildFinder navigates to role-addressed children.
type ChildFinder interface {
	FindChildrenByRole(role string) []Subject
	FindFirstChildByRole(role string) (Subject, bool)
}

// Subject is the minimum contract every manager needs.
type Subject interface {
	AttributeReader
	ChildFinder
}

// PartHost is implemented by subjects that own named parts which the
// display manager can show and hide.
type PartHost interface {
	FindPart(name string) bool
	ShowPart(ctx context.Context, name string, speed time.Duration) error
	HidePart(ctx context.Context, name string, speed time.Duration) error
}

// Displayable is implemented by children that can be shown and hidden as a
// whole (entities addressed with "#role").
type Displayable interface {
	Show(ctx context.Context, speed time.Duration) error
	Hide(ctx context.Context, speed time.Duration) error
}

// Operation is a bound, zero-argument side effect invoked by the action
// manager.
type Operation func(ctx context.Context) error

// OperationHost resolves operation names ("ship", "reset_form").
type OperationHost interface {
	Operation(name string) (Operation, bool)
}

// ScopeHost resolves the first half of a two-level reference
// ("tooltip.in").
type ScopeHost interface {
	Scope(name string) (OperationHost, bool)
}

// EventSource lets the dispatcher subscribe to events emitted by children
// with a given role.
type EventSource interface {
	Subscribe(event, role string, handler func())
}

// ChangePublisher is implemented by children that only emit "change" for
// attributes they were asked to publish.
type ChangePublisher interface {
	PublishChangesFor(attrs ...string)
}
