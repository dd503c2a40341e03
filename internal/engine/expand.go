package engine

import (
	"fmt"

	"github.com/roach88/stagehand/internal/ir"
)

// aliasScopeSep joins an enclosing alias name with a nested alias name.
// A nested declaration inside an aliased parent "order" that refers to
// "paid" first looks up "order/paid", then "paid".
const aliasScopeSep = "/"

// Expand flattens authored declarations into rules.
//
// The walk is depth-first and preserves authoring order:
//  1. an OR list of condition sets fans out into one rule per alternative,
//     each carrying the same transition and nested declarations
//  2. alias references resolve through aliases ("a + b" combinations
//     included); an undefined alias is an error
//  3. nested declarations inherit their parent's conditions (child keys
//     override) and append their transition entries to the parent's,
//     dropping repeats
//
// A declaration with neither sets nor an alias matches unconditionally.
// The output contains no aliases and no nesting.
func Expand(decls []ir.Declaration, aliases *AliasManager) ([]ir.Rule, error) {
	return ExpandShaped(decls, aliases, nil)
}

// ExpandShaped is Expand with each declaration's own transition passed
// through shape before it is appended to its parent's. Shaped transitions
// are marked Split, so a folded rule keeps the shape of every level.
func ExpandShaped(decls []ir.Declaration, aliases *AliasManager, shape ShapeFunc) ([]ir.Rule, error) {
	w := expander{aliases: aliases, shape: shape}
	var rules []ir.Rule
	for i, d := range decls {
		if err := w.expandInto(&rules, d, nil, ir.TransitionSpec{}, ""); err != nil {
			return nil, fmt.Errorf("declaration %d: %w", i, err)
		}
	}
	return rules, nil
}

type expander struct {
	aliases *AliasManager
	shape   ShapeFunc
}

func (w expander) expandInto(rules *[]ir.Rule, d ir.Declaration, parent ir.ConditionSet, parentThen ir.TransitionSpec, scope string) error {
	sets, childScope, err := resolveWhen(d.When, scope, w.aliases)
	if err != nil {
		return err
	}

	then := d.Then
	if w.shape != nil {
		then = w.shape(then)
		then.Split = true
	}

	for _, set := range sets {
		rule := ir.Rule{
			Conditions: parent.Merge(set),
			Then:       parentThen.Concat(then),
		}
		if _, err := ir.ConditionSetKey(rule.Conditions); err != nil {
			return &RuntimeError{
				Code:    ErrCodeInvalidDeclaration,
				Message: err.Error(),
			}
		}
		*rules = append(*rules, rule)

		for j, nested := range d.Nested {
			if err := w.expandInto(rules, nested, rule.Conditions, rule.Then, childScope); err != nil {
				return fmt.Errorf("nested %d: %w", j, err)
			}
		}
	}
	return nil
}

// resolveWhen returns the alternatives of w and the alias scope its nested
// declarations resolve in.
func resolveWhen(w ir.When, scope string, aliases *AliasManager) ([]ir.ConditionSet, string, error) {
	if w.Alias == "" {
		if len(w.Sets) == 0 {
			return []ir.ConditionSet{{}}, scope, nil
		}
		return w.Sets, scope, nil
	}

	if scope != "" {
		scoped := scope + aliasScopeSep + w.Alias
		if sets, ok := aliases.Get(scoped); ok {
			return sets, scoped, nil
		}
	}
	sets, ok := aliases.Get(w.Alias)
	if !ok {
		return nil, "", newUnknownAliasError(w.Alias)
	}
	return sets, w.Alias, nil
}
