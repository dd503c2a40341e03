package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/stagehand/internal/ir"
	"github.com/roach88/stagehand/internal/testutil"
)

// fakeSubject implements every collaborator interface and records side
// effects into a shared recorder.
type fakeSubject struct {
	name string
	rec  *testutil.Recorder

	mu        sync.Mutex
	attrs     map[string]ir.IRValue
	prev      map[string]ir.IRValue
	parts     map[string]bool
	children  map[string][]*fakeSubject
	ops       map[string]Operation
	scopes    map[string]*fakeSubject
	handlers  map[string][]func()
	published []string
}

func newFakeSubject() *fakeSubject {
	return newFakeChild("subject", &testutil.Recorder{})
}

func newFakeChild(name string, rec *testutil.Recorder) *fakeSubject {
	return &fakeSubject{
		name:     name,
		rec:      rec,
		attrs:    map[string]ir.IRValue{},
		prev:     map[string]ir.IRValue{},
		parts:    map[string]bool{},
		children: map[string][]*fakeSubject{},
		ops:      map[string]Operation{},
		scopes:   map[string]*fakeSubject{},
		handlers: map[string][]func(){},
	}
}

// set stores v and shifts the old value into the previous-value shadow.
func (s *fakeSubject) set(name string, v any) *fakeSubject {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.attrs[name]; ok {
		s.prev[name] = old
	}
	s.attrs[name] = ir.MustFromGo(v)
	return s
}

func (s *fakeSubject) withParts(names ...string) *fakeSubject {
	for _, n := range names {
		s.parts[n] = true
	}
	return s
}

func (s *fakeSubject) addChild(role, name string) *fakeSubject {
	child := newFakeChild(name, s.rec)
	s.children[role] = append(s.children[role], child)
	return child
}

// withOps registers operations that record "call <name>".
func (s *fakeSubject) withOps(names ...string) *fakeSubject {
	for _, n := range names {
		s.ops[n] = func(context.Context) error {
			s.rec.Record("call %s", n)
			return nil
		}
	}
	return s
}

func (s *fakeSubject) withScope(name string, ops ...string) *fakeSubject {
	scope := newFakeChild(name, s.rec)
	for _, op := range ops {
		scope.ops[op] = func(context.Context) error {
			s.rec.Record("call %s.%s", name, op)
			return nil
		}
	}
	s.scopes[name] = scope
	return s
}

func (s *fakeSubject) emit(event, role string) {
	s.mu.Lock()
	handlers := append([]func(){}, s.handlers[event+"/"+role]...)
	s.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

func (s *fakeSubject) Get(name string) ir.IRValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.attrs[name]; ok {
		return v
	}
	return ir.Null
}

func (s *fakeSubject) Previous(name string) ir.IRValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.prev[name]; ok {
		return v
	}
	return ir.Null
}

func (s *fakeSubject) FindChildrenByRole(role string) []Subject {
	var out []Subject
	for _, c := range s.children[role] {
		out = append(out, c)
	}
	return out
}

func (s *fakeSubject) FindFirstChildByRole(role string) (Subject, bool) {
	if cs := s.children[role]; len(cs) > 0 {
		return cs[0], true
	}
	return nil, false
}

func (s *fakeSubject) FindPart(name string) bool { return s.parts[name] }

func (s *fakeSubject) ShowPart(_ context.Context, name string, speed time.Duration) error {
	s.rec.Record("show .%s %s", name, speed)
	return nil
}

func (s *fakeSubject) HidePart(_ context.Context, name string, speed time.Duration) error {
	s.rec.Record("hide .%s %s", name, speed)
	return nil
}

func (s *fakeSubject) Show(_ context.Context, speed time.Duration) error {
	s.rec.Record("show %s %s", s.name, speed)
	return nil
}

func (s *fakeSubject) Hide(_ context.Context, speed time.Duration) error {
	s.rec.Record("hide %s %s", s.name, speed)
	return nil
}

func (s *fakeSubject) Operation(name string) (Operation, bool) {
	op, ok := s.ops[name]
	return op, ok
}

func (s *fakeSubject) Scope(name string) (OperationHost, bool) {
	scope, ok := s.scopes[name]
	if !ok {
		return nil, false
	}
	return scope, true
}

func (s *fakeSubject) Subscribe(event, role string, handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event+"/"+role] = append(s.handlers[event+"/"+role], handler)
}

func (s *fakeSubject) PublishChangesFor(attrs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, attrs...)
}

// oneOf builds a membership condition over string values.
func oneOf(vals ...string) ir.OneOf {
	out := make(ir.OneOf, len(vals))
	for i, v := range vals {
		out[i] = ir.Str(v)
	}
	return out
}

func refsOf(items []ir.Item) []string {
	return ir.ItemRefs(items)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
