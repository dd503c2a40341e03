package engine

import (
	"github.com/roach88/stagehand/internal/ir"
)

// Pick returns the rules for which match holds, in rule order.
//
// When longestOnly is set a matched rule is dropped if another matched
// rule's attribute names strictly contain its own: {a} loses to {a, b}.
// Rules with incomparable attribute names ({a, b} and {b, c}) both
// survive.
func Pick(rules []ir.Rule, match func(ir.Rule) bool, longestOnly bool) []ir.Rule {
	var matched []ir.Rule
	for _, r := range rules {
		if match(r) {
			matched = append(matched, r)
		}
	}
	if !longestOnly || len(matched) < 2 {
		return matched
	}

	kept := make([]ir.Rule, 0, len(matched))
	for _, r := range matched {
		dominated := false
		for _, other := range matched {
			if strictSubset(r.Conditions, other.Conditions) {
				dominated = true
				break
			}
		}
		if !dominated {
			kept = append(kept, r)
		}
	}
	return kept
}

// strictSubset reports whether the attribute names of a are a strict
// subset of those of b. Only names count, never the conditions.
func strictSubset(a, b ir.ConditionSet) bool {
	if len(a) >= len(b) {
		return false
	}
	for name := range a {
		if _, ok := b[name]; !ok {
			return false
		}
	}
	return true
}
