package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/stagehand/internal/ir"
)

func TestEvaluate_ConditionVariants(t *testing.T) {
	s := newFakeSubject().
		set("status", "new").
		set("age", 18).
		set("nickname", nil)
	e := NewEvaluator()

	tests := []struct {
		name string
		attr string
		cond ir.Condition
		want bool
	}{
		{"one of hit", "status", oneOf("new", "returning"), true},
		{"one of miss", "status", oneOf("returning"), false},
		{"equals", "age", ir.Equals{Value: ir.Int(18)}, true},
		{"equals is strict", "age", ir.Equals{Value: ir.Str("18")}, false},
		{"more than", "age", ir.Assertions{{Name: "more_than", Operand: ir.Int(17)}}, true},
		{"more than fails on equal", "age", ir.Assertions{{Name: "more_than", Operand: ir.Int(18)}}, false},
		{"less than", "age", ir.Assertions{{Name: "less_than", Operand: ir.Int(21)}}, true},
		{"assertions are and-ed", "age", ir.Assertions{
			{Name: "more_than", Operand: ir.Int(10)},
			{Name: "less_than", Operand: ir.Int(15)},
		}, false},
		{"not in", "status", ir.Assertions{{Name: "not_in", Operand: ir.Array(ir.Str("returning"))}}, true},
		{"is in scalar operand", "status", ir.Assertions{{Name: "is_in", Operand: ir.Str("new")}}, true},
		{"is not", "status", ir.Assertions{{Name: "is_not", Operand: ir.Str("new")}}, false},
		{"not", "status", ir.Assertions{{Name: "not", Operand: ir.Str("old")}}, true},
		{"eq", "status", ir.Assertions{{Name: "eq", Operand: ir.Str("new")}}, true},
		{"any", "missing", ir.Assertions{{Name: "any"}}, true},
		{"predicate is null", "nickname", ir.Predicate("is_null"), true},
		{"predicate not null", "status", ir.Predicate("not_null"), true},
		{"missing attribute is null", "missing", ir.Predicate("is_null"), true},
		{"func", "age", ir.Func(func(v ir.IRValue) bool { return ir.Equal(v, ir.Int(18)) }), true},
		{"unknown assertion is false", "status", ir.Assertions{{Name: "looks_like"}}, false},
		{"unknown predicate is false", "status", ir.Predicate("looks_like"), false},
		{"nil func is false", "status", ir.Func(nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Evaluate(s, tt.attr, tt.cond))
		})
	}
}

func TestEvaluate_PreviousValue(t *testing.T) {
	s := newFakeSubject().set("status", "new").set("status", "returning")
	e := NewEvaluator()

	assert.True(t, e.Evaluate(s, "old_status", oneOf("new")))
	assert.True(t, e.Evaluate(s, "status", oneOf("returning")))
	assert.True(t, e.Evaluate(s, "old_never_set", ir.Predicate("is_null")))
}

func TestEvaluate_ChildRole(t *testing.T) {
	s := newFakeSubject()
	first := s.addChild("item", "item-1").set("price", 10)
	first.set("price", 12)
	s.addChild("item", "item-2").set("price", 99)
	e := NewEvaluator()

	assert.True(t, e.Evaluate(s, "item.price", ir.Equals{Value: ir.Int(12)}), "reads the first child")
	assert.True(t, e.Evaluate(s, "item.old_price", ir.Equals{Value: ir.Int(10)}), "previous value of the child")
	assert.False(t, e.Evaluate(s, "cart.total", ir.Predicate("is_null")), "missing child fails")
}

func TestEvaluate_DynamicOperand(t *testing.T) {
	s := newFakeSubject().set("age", 18)
	limit := ir.IRValue(ir.Int(21))
	cond := ir.Assertions{{Name: "more_than", Dynamic: func() ir.IRValue { return limit }}}
	e := NewEvaluator()

	assert.False(t, e.Evaluate(s, "age", cond))
	limit = ir.Int(16)
	assert.True(t, e.Evaluate(s, "age", cond), "operand is read at evaluation time")
}

func TestEvaluator_WithAssertion(t *testing.T) {
	s := newFakeSubject().set("name", "ada")
	e := NewEvaluator(WithAssertion("short", func(v, _ ir.IRValue) bool {
		str, ok := v.(ir.IRString)
		return ok && len(str) < 4
	}))

	assert.True(t, e.Evaluate(s, "name", ir.Predicate("short")))
	assert.False(t, NewEvaluator().Evaluate(s, "name", ir.Predicate("short")), "custom assertions are per evaluator")
}

func TestMatches_AllConditionsMustHold(t *testing.T) {
	s := newFakeSubject().set("a", 1).set("b", 2)
	e := NewEvaluator()

	assert.True(t, e.Matches(s, ir.ConditionSet{"a": ir.Equals{Value: ir.Int(1)}, "b": ir.Equals{Value: ir.Int(2)}}))
	assert.False(t, e.Matches(s, ir.ConditionSet{"a": ir.Equals{Value: ir.Int(1)}, "b": ir.Equals{Value: ir.Int(3)}}))
	assert.True(t, e.Matches(s, ir.ConditionSet{}), "empty set always matches")
}

func TestScenarioB_AliasAlternativeMatches(t *testing.T) {
	aliases, err := NewAliasManager(map[string][]ir.ConditionSet{
		"can_drink": {
			{"country": oneOf("US"), "age": ir.Assertions{{Name: "more_than", Operand: ir.Int(20)}}},
			{"country": ir.Assertions{{Name: "not_in", Operand: ir.Array(ir.Str("US"))}}, "age": ir.Assertions{{Name: "more_than", Operand: ir.Int(17)}}},
		},
	})
	assert.NoError(t, err)

	rules, err := Expand([]ir.Declaration{ir.Declare(ir.Alias("can_drink"), ir.Then(".bar"))}, aliases)
	assert.NoError(t, err)
	assert.Len(t, rules, 2)

	s := newFakeSubject().set("country", "FR").set("age", 18)
	e := NewEvaluator()

	assert.False(t, e.Matches(s, rules[0].Conditions), "US alternative")
	assert.True(t, e.Matches(s, rules[1].Conditions), "non-US alternative")
}
