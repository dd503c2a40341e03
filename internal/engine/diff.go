package engine

import (
	"github.com/roach88/stagehand/internal/ir"
)

// MatchState is the set of rules a manager currently considers entered,
// keyed by condition-set identity. Rules sharing a condition set enter and
// exit together. It is an immutable value: Advance returns the next state
// instead of mutating the receiver. The zero value is the empty state.
type MatchState struct {
	keys  []string
	rules map[string][]ir.Rule
}

// Diff is the outcome of one Advance: rules entered and rules exited.
type Diff struct {
	Enter []ir.Rule
	Exit  []ir.Rule
}

// Len returns the number of entered rules.
func (s MatchState) Len() int {
	n := 0
	for _, k := range s.keys {
		n += len(s.rules[k])
	}
	return n
}

// Rules returns the entered rules in the order they were entered.
func (s MatchState) Rules() []ir.Rule {
	out := make([]ir.Rule, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.rules[k]...)
	}
	return out
}

// Contains reports whether a rule with the same conditions is entered.
func (s MatchState) Contains(r ir.Rule) bool {
	_, ok := s.rules[ir.MustConditionSetKey(r.Conditions)]
	return ok
}

// Advance diffs matches against s.
//
//	enter = matches - s   (every match when includeCurrent is set)
//	exit  = s - matches
//	next  = (s - exit) + enter
//
// Set operations compare condition sets by deep equality. Rules passed in
// must have keyable conditions, which Expand guarantees.
func (s MatchState) Advance(matches []ir.Rule, includeCurrent bool) (MatchState, Diff) {
	incoming := make(map[string][]ir.Rule, len(matches))
	var order []string
	for _, r := range matches {
		k := ir.MustConditionSetKey(r.Conditions)
		if _, seen := incoming[k]; !seen {
			order = append(order, k)
		}
		incoming[k] = append(incoming[k], r)
	}

	var d Diff
	next := MatchState{rules: make(map[string][]ir.Rule, len(order))}

	for _, k := range s.keys {
		if _, still := incoming[k]; !still {
			d.Exit = append(d.Exit, s.rules[k]...)
			continue
		}
		next.keys = append(next.keys, k)
		next.rules[k] = s.rules[k]
	}

	for _, k := range order {
		_, already := s.rules[k]
		if already && !includeCurrent {
			continue
		}
		d.Enter = append(d.Enter, incoming[k]...)
		if !already {
			next.keys = append(next.keys, k)
			next.rules[k] = incoming[k]
		}
	}

	return next, d
}

// ShapeFunc rewrites a declaration's transition before it is folded into a
// rule. The action manager uses it to split "*name" shorthands.
type ShapeFunc func(ir.TransitionSpec) ir.TransitionSpec

// Collect builds the transition payload of one evaluation. Current lists
// the In entries of every match; In, RunBefore and RunAfter come from
// entered rules; Out comes from exited rules. Every list is deduplicated.
func Collect(d Diff, matches []ir.Rule) ir.Transition {
	var t ir.Transition
	for _, r := range matches {
		t.Current = append(t.Current, r.Then.In...)
	}
	for _, r := range d.Enter {
		t.In = append(t.In, r.Then.In...)
		t.RunBefore = append(t.RunBefore, r.Then.RunBefore...)
		t.RunAfter = append(t.RunAfter, r.Then.RunAfter...)
	}
	for _, r := range d.Exit {
		t.Out = append(t.Out, r.Then.Out...)
	}

	t.Current = ir.UniqItems(t.Current)
	t.In = ir.UniqItems(t.In)
	t.Out = ir.UniqItems(t.Out)
	t.RunBefore = ir.UniqStrings(t.RunBefore)
	t.RunAfter = ir.UniqStrings(t.RunAfter)
	return t
}
