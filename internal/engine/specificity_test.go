package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/stagehand/internal/ir"
)

func rule(keys []string, refs ...string) ir.Rule {
	cs := ir.ConditionSet{}
	for _, k := range keys {
		cs[k] = ir.Predicate("any")
	}
	return ir.Rule{Conditions: cs, Then: ir.Then(refs...)}
}

func matchAll(ir.Rule) bool { return true }

func pickedRefs(rules []ir.Rule) []string {
	var refs []string
	for _, r := range rules {
		refs = append(refs, refsOf(r.Then.In)...)
	}
	return refs
}

func TestPick_Dominance(t *testing.T) {
	tests := []struct {
		name  string
		rules []ir.Rule
		want  []string
	}{
		{
			name:  "independent attributes coexist",
			rules: []ir.Rule{rule([]string{"attr1"}, "t1"), rule([]string{"attr2"}, "t2")},
			want:  []string{"t1", "t2"},
		},
		{
			name:  "superset wins",
			rules: []ir.Rule{rule([]string{"attr1"}, "t1"), rule([]string{"attr1", "attr2"}, "t12")},
			want:  []string{"t12"},
		},
		{
			name: "longest chain wins",
			rules: []ir.Rule{
				rule([]string{"attr1", "attr2"}, "t12"),
				rule([]string{"attr1", "attr2", "attr3"}, "t123"),
			},
			want: []string{"t123"},
		},
		{
			name:  "incomparable sets both survive",
			rules: []ir.Rule{rule([]string{"attr1", "attr2"}, "t12"), rule([]string{"attr2", "attr3"}, "t23")},
			want:  []string{"t12", "t23"},
		},
		{
			name:  "equal key sets both survive",
			rules: []ir.Rule{rule([]string{"attr1"}, "a"), rule([]string{"attr1"}, "b")},
			want:  []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickedRefs(Pick(tt.rules, matchAll, true)))
		})
	}
}

func TestPick_LongestOnlyOff(t *testing.T) {
	rules := []ir.Rule{rule([]string{"attr1"}, "t1"), rule([]string{"attr1", "attr2"}, "t12")}
	assert.Equal(t, []string{"t1", "t12"}, pickedRefs(Pick(rules, matchAll, false)))
}

func TestPick_OnlyMatchesCompete(t *testing.T) {
	rules := []ir.Rule{rule([]string{"attr1"}, "t1"), rule([]string{"attr1", "attr2"}, "t12")}
	onlyFirst := func(r ir.Rule) bool { return len(r.Conditions) == 1 }

	assert.Equal(t, []string{"t1"}, pickedRefs(Pick(rules, onlyFirst, true)), "an unmatched superset does not dominate")
}

func TestScenarioC_MoreSpecificRuleWins(t *testing.T) {
	rules, err := Expand([]ir.Declaration{
		ir.Declare(ir.Match(ir.ConditionSet{"a": ir.Equals{Value: ir.Int(1)}}), ir.Then("T1")),
		ir.Declare(ir.Match(ir.ConditionSet{"a": ir.Equals{Value: ir.Int(1)}, "b": ir.Equals{Value: ir.Int(2)}}), ir.Then("T2")),
	}, nil)
	assert.NoError(t, err)

	s := newFakeSubject().set("a", 1).set("b", 2)
	e := NewEvaluator()
	matched := Pick(rules, func(r ir.Rule) bool { return e.Matches(s, r.Conditions) }, true)

	assert.Equal(t, []string{"T2"}, pickedRefs(matched))
}
