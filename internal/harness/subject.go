package harness

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/roach88/stagehand/internal/engine"
	"github.com/roach88/stagehand/internal/ir"
	"github.com/roach88/stagehand/internal/testutil"
)

// errOperationFailed is returned by operations a scenario marks as failing.
var errOperationFailed = errors.New("operation failed")

// simSubject is the simulated subject a scenario drives. It implements
// every collaborator interface the engine probes for and records each
// side effect as a call string:
//
//	show .part / hide .part
//	show #role/name / hide #role/name
//	call name / call scope.name
type simSubject struct {
	name   string
	role   string
	parent *simSubject
	rec    *testutil.Recorder

	mu        sync.Mutex
	attrs     map[string]ir.IRValue
	prev      map[string]ir.IRValue
	parts     map[string]bool
	children  []*simSubject
	ops       map[string]engine.Operation
	scopes    map[string]*simSubject
	handlers  map[string][]func()
	published []string
}

func newSimSubject(spec SubjectSpec, rec *testutil.Recorder) (*simSubject, error) {
	s := newSimNode("subject", "", rec)
	if err := s.setAll(spec.Attributes); err != nil {
		return nil, fmt.Errorf("subject.attributes: %w", err)
	}
	s.resetPrevious()

	for _, p := range spec.Parts {
		s.parts[p] = true
	}
	failing := make(map[string]bool, len(spec.Failing))
	for _, f := range spec.Failing {
		failing[f] = true
	}
	for _, op := range spec.Operations {
		s.ops[op] = s.operation(op, failing[op])
	}
	for _, scope := range slices.Sorted(maps.Keys(spec.Scopes)) {
		host := newSimNode(scope, "", rec)
		for _, op := range spec.Scopes[scope] {
			ref := scope + "." + op
			host.ops[op] = s.operation(ref, failing[ref])
		}
		s.scopes[scope] = host
	}
	for i, cs := range spec.Children {
		child := newSimNode(cs.Name, cs.Role, rec)
		child.parent = s
		if err := child.setAll(cs.Attributes); err != nil {
			return nil, fmt.Errorf("subject.children[%d].attributes: %w", i, err)
		}
		child.resetPrevious()
		s.children = append(s.children, child)
	}
	return s, nil
}

func newSimNode(name, role string, rec *testutil.Recorder) *simSubject {
	return &simSubject{
		name:     name,
		role:     role,
		rec:      rec,
		attrs:    map[string]ir.IRValue{},
		prev:     map[string]ir.IRValue{},
		parts:    map[string]bool{},
		ops:      map[string]engine.Operation{},
		scopes:   map[string]*simSubject{},
		handlers: map[string][]func(){},
	}
}

func (s *simSubject) operation(ref string, fails bool) engine.Operation {
	return func(context.Context) error {
		s.rec.Record("call %s", ref)
		if fails {
			return fmt.Errorf("%s: %w", ref, errOperationFailed)
		}
		return nil
	}
}

// setAll assigns every attribute of values.
func (s *simSubject) setAll(values map[string]any) error {
	_, err := s.update(values)
	return err
}

// update assigns values, shifting changed values into the previous-value
// shadow, and returns the names that changed.
func (s *simSubject) update(values map[string]any) ([]string, error) {
	converted := make(map[string]ir.IRValue, len(values))
	for k, v := range values {
		iv, err := ir.FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		converted[k] = iv
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []string
	for _, k := range slices.Sorted(maps.Keys(converted)) {
		old, had := s.attrs[k]
		if had && ir.Equal(old, converted[k]) {
			continue
		}
		if had {
			s.prev[k] = old
		} else {
			s.prev[k] = ir.Null
		}
		s.attrs[k] = converted[k]
		changed = append(changed, k)
	}
	return changed, nil
}

func (s *simSubject) resetPrevious() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prev = map[string]ir.IRValue{}
}

// child returns the child with role and, when name is set, that name.
func (s *simSubject) child(role, name string) (*simSubject, bool) {
	for _, c := range s.children {
		if c.role == role && (name == "" || c.name == name) {
			return c, true
		}
	}
	return nil, false
}

// emit delivers a change event for changed to the parent's subscribers
// of this child's role, if any watched attribute changed.
func (s *simSubject) emit(changed []string) bool {
	s.mu.Lock()
	watched := slices.ContainsFunc(changed, func(a string) bool { return slices.Contains(s.published, a) })
	s.mu.Unlock()
	if !watched || s.parent == nil {
		return false
	}

	s.parent.mu.Lock()
	handlers := slices.Clone(s.parent.handlers[subscriptionKey(engine.ChangeEvent, s.role)])
	s.parent.mu.Unlock()
	for _, h := range handlers {
		h()
	}
	return len(handlers) > 0
}

func subscriptionKey(event, role string) string {
	return event + "/" + role
}

func (s *simSubject) Get(name string) ir.IRValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.attrs[name]; ok {
		return v
	}
	return ir.Null
}

func (s *simSubject) Previous(name string) ir.IRValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.prev[name]; ok {
		return v
	}
	return ir.Null
}

func (s *simSubject) FindChildrenByRole(role string) []engine.Subject {
	var out []engine.Subject
	for _, c := range s.children {
		if c.role == role {
			out = append(out, c)
		}
	}
	return out
}

func (s *simSubject) FindFirstChildByRole(role string) (engine.Subject, bool) {
	c, ok := s.child(role, "")
	if !ok {
		return nil, false
	}
	return c, true
}

func (s *simSubject) FindPart(name string) bool {
	return s.parts[name]
}

func (s *simSubject) ShowPart(_ context.Context, name string, _ time.Duration) error {
	s.rec.Record("show .%s", name)
	return nil
}

func (s *simSubject) HidePart(_ context.Context, name string, _ time.Duration) error {
	s.rec.Record("hide .%s", name)
	return nil
}

func (s *simSubject) Show(_ context.Context, _ time.Duration) error {
	s.rec.Record("show #%s/%s", s.role, s.name)
	return nil
}

func (s *simSubject) Hide(_ context.Context, _ time.Duration) error {
	s.rec.Record("hide #%s/%s", s.role, s.name)
	return nil
}

func (s *simSubject) Operation(name string) (engine.Operation, bool) {
	op, ok := s.ops[name]
	return op, ok
}

func (s *simSubject) Scope(name string) (engine.OperationHost, bool) {
	host, ok := s.scopes[name]
	if !ok {
		return nil, false
	}
	return host, true
}

func (s *simSubject) Subscribe(event, role string, handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := subscriptionKey(event, role)
	s.handlers[key] = append(s.handlers[key], handler)
}

func (s *simSubject) PublishChangesFor(attrs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range attrs {
		if !slices.Contains(s.published, a) {
			s.published = append(s.published, a)
		}
	}
}
