package engine

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/stagehand/internal/ir"
)

// aliasCombinator joins alias names into a cross product ("a + b").
const aliasCombinator = "+"

// AliasManager holds named, reusable condition sets. Each alias has one or
// more alternatives (OR).
//
// Contents are immutable after construction, so one AliasManager is shared
// read-only by every manager of a dispatcher.
type AliasManager struct {
	defs map[string][]ir.ConditionSet
}

// NewAliasManager copies defs into a new alias table. Every condition set
// must be keyable (no nil conditions).
func NewAliasManager(defs map[string][]ir.ConditionSet) (*AliasManager, error) {
	a := &AliasManager{defs: make(map[string][]ir.ConditionSet, len(defs))}
	for name, alts := range defs {
		if strings.Contains(name, aliasCombinator) {
			return nil, &RuntimeError{
				Code:    ErrCodeInvalidDeclaration,
				Message: fmt.Sprintf("alias name %q must not contain %q", name, aliasCombinator),
				Details: map[string]string{"alias": name},
			}
		}
		copied := make([]ir.ConditionSet, 0, len(alts))
		for i, cs := range alts {
			if _, err := ir.ConditionSetKey(cs); err != nil {
				return nil, &RuntimeError{
					Code:    ErrCodeInvalidDeclaration,
					Message: fmt.Sprintf("alias %q alternative %d: %v", name, i, err),
					Details: map[string]string{"alias": name},
				}
			}
			copied = append(copied, maps.Clone(cs))
		}
		a.defs[strings.TrimSpace(name)] = copied
	}
	return a, nil
}

// Get returns the alternatives for name. name may combine aliases with
// "+": "a + b" yields, for every alternative of a and every alternative of
// b, the union of both sets (b wins on shared attributes). Results are
// deduplicated by deep equality. Unknown names return (nil, false).
func (a *AliasManager) Get(name string) ([]ir.ConditionSet, bool) {
	if a == nil {
		return nil, false
	}
	parts := strings.Split(name, aliasCombinator)
	var result []ir.ConditionSet
	for i, part := range parts {
		alts, ok := a.defs[strings.TrimSpace(part)]
		if !ok {
			return nil, false
		}
		if i == 0 {
			result = make([]ir.ConditionSet, len(alts))
			for j, cs := range alts {
				result[j] = maps.Clone(cs)
			}
			continue
		}
		combined := make([]ir.ConditionSet, 0, len(result)*len(alts))
		for _, left := range result {
			for _, right := range alts {
				combined = append(combined, left.Merge(right))
			}
		}
		result = combined
	}
	return dedupeSets(result), true
}

// Names returns every defined alias in sorted order.
func (a *AliasManager) Names() []string {
	if a == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(a.defs))
}

// Definitions returns every alternative of every alias in name order. The
// dispatcher uses it to discover child attribute dependencies.
func (a *AliasManager) Definitions() []ir.ConditionSet {
	var all []ir.ConditionSet
	for _, name := range a.Names() {
		all = append(all, a.defs[name]...)
	}
	return all
}

func dedupeSets(sets []ir.ConditionSet) []ir.ConditionSet {
	seen := make(map[string]bool, len(sets))
	out := make([]ir.ConditionSet, 0, len(sets))
	for _, cs := range sets {
		key := ir.MustConditionSetKey(cs)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, cs)
	}
	return out
}
