package engine

import (
	"strings"

	"github.com/roach88/stagehand/internal/ir"
)

// previousPrefix marks an attribute name that reads the previous value.
const previousPrefix = "old_"

// Evaluator decides whether a subject satisfies a condition.
//
// Evaluation is pure: the evaluator only reads the subject. Unknown
// assertion names evaluate to false.
//
// Thread-safety: Evaluator is immutable after construction and safe for
// concurrent use.
type Evaluator struct {
	assertions map[string]AssertionFunc
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithAssertion adds (or replaces) a named assertion.
func WithAssertion(name string, fn AssertionFunc) EvaluatorOption {
	return func(e *Evaluator) {
		e.assertions[name] = fn
	}
}

// NewEvaluator creates an evaluator with the standard assertion registry.
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{assertions: make(map[string]AssertionFunc, len(standardAssertions))}
	for name, fn := range standardAssertions {
		e.assertions[name] = fn
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Matches reports whether every condition of cs holds for subject.
// Attributes are checked in sorted order and evaluation stops at the first
// failure.
func (e *Evaluator) Matches(subject Subject, cs ir.ConditionSet) bool {
	for _, attr := range cs.Keys() {
		if !e.Evaluate(subject, attr, cs[attr]) {
			return false
		}
	}
	return true
}

// Evaluate tests one attribute/condition pair.
//
// Resolution order:
//  1. "role.attr" reads attr from the first child with that role; a missing
//     child fails the condition
//  2. "old_attr" reads the previous value of attr
//  3. the condition variant decides: OneOf is membership, Assertions must
//     all pass, Predicate and Func are called with the value, Equals is
//     strict equality
func (e *Evaluator) Evaluate(subject Subject, attr string, cond ir.Condition) bool {
	if role, rest, ok := strings.Cut(attr, "."); ok {
		child, found := subject.FindFirstChildByRole(role)
		if !found || child == nil {
			return false
		}
		return e.Evaluate(child, rest, cond)
	}

	var value ir.IRValue
	if name, ok := strings.CutPrefix(attr, previousPrefix); ok {
		value = subject.Previous(name)
	} else {
		value = subject.Get(attr)
	}

	switch c := cond.(type) {
	case ir.OneOf:
		return isIn(value, ir.IRArray(c))
	case ir.Assertions:
		for _, chk := range c {
			fn, ok := e.assertions[chk.Name]
			if !ok {
				return false
			}
			operand := chk.Operand
			if chk.Dynamic != nil {
				operand = chk.Dynamic()
			}
			if !fn(value, operand) {
				return false
			}
		}
		return true
	case ir.Predicate:
		fn, ok := e.assertions[string(c)]
		return ok && fn(value, ir.Null)
	case ir.Func:
		return c != nil && c(value)
	case ir.Equals:
		return ir.Equal(value, c.Value)
	default:
		return false
	}
}
