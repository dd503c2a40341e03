package ir

import (
	"context"
	"slices"
	"strings"
)

// Condition is one attribute's acceptance test inside a ConditionSet.
// Implemented by Equals, OneOf, Assertions, Predicate and Func.
type Condition interface {
	condition()
}

// Equals accepts exactly one value (strict equality).
type Equals struct {
	Value IRValue
}

// OneOf accepts any of the listed values (implicit is_in).
type OneOf []IRValue

// Assertions accepts a value when every check passes.
type Assertions []Check

// Check calls the named registry assertion with the attribute value and the
// operand. Dynamic, when set, supplies the operand at evaluation time.
type Check struct {
	Name    string
	Operand IRValue
	Dynamic func() IRValue
}

// Predicate names a registry assertion called with the value alone,
// authored as "is_null()".
type Predicate string

// Func is an inline acceptance test.
type Func func(IRValue) bool

func (Equals) condition()     {}
func (OneOf) condition()      {}
func (Assertions) condition() {}
func (Predicate) condition()  {}
func (Func) condition()       {}

// ConditionSet maps attribute names to conditions. Attribute names may carry
// an "old_" prefix (previous value) and a "role." prefix (first child with
// that role).
type ConditionSet map[string]Condition

// Keys returns the attribute names in sorted order.
func (cs ConditionSet) Keys() []string {
	keys := make([]string, 0, len(cs))
	for k := range cs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Merge returns a new set holding cs overlaid with other. other wins on
// shared keys.
func (cs ConditionSet) Merge(other ConditionSet) ConditionSet {
	merged := make(ConditionSet, len(cs)+len(other))
	for k, c := range cs {
		merged[k] = c
	}
	for k, c := range other {
		merged[k] = c
	}
	return merged
}

// When is the authored left-hand side of a declaration: one condition set,
// a list of alternative sets (OR), or an alias reference ("a + b").
type When struct {
	Sets  []ConditionSet
	Alias string
}

// Match builds a When from one or more alternative condition sets.
func Match(sets ...ConditionSet) When {
	return When{Sets: sets}
}

// Alias builds a When that refers to a named alias.
func Alias(name string) When {
	return When{Alias: name}
}

// Op is an inline operation attached to an action transition.
type Op func(ctx context.Context) error

// Item is one transition entry: a string reference (entity or operation
// name) or an inline Op.
type Item struct {
	Ref string
	Op  Op
}

// Ref builds a reference item.
func Ref(ref string) Item {
	return Item{Ref: ref}
}

// Inline builds an inline operation item. name only labels it in traces.
func Inline(name string, op Op) Item {
	return Item{Ref: name, Op: op}
}

// ParseItems splits a comma-separated reference list ("a, #b, .c").
func ParseItems(s string) []Item {
	var items []Item
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, Item{Ref: part})
		}
	}
	return items
}

// Refs builds reference items from names.
func Refs(names ...string) []Item {
	items := make([]Item, 0, len(names))
	for _, n := range names {
		items = append(items, Item{Ref: n})
	}
	return items
}

// TransitionSpec is the right-hand side of a declaration. A plain list of
// items fills In only; Split marks the explicit {in, out, run_before,
// run_after} form.
type TransitionSpec struct {
	In        []Item
	Out       []Item
	RunBefore []string
	RunAfter  []string
	Split     bool
}

// Then builds a plain transition from comma-separated references.
func Then(refs ...string) TransitionSpec {
	var items []Item
	for _, r := range refs {
		items = append(items, ParseItems(r)...)
	}
	return TransitionSpec{In: items}
}

// Concat appends child's entries to t, dropping repeated references.
func (t TransitionSpec) Concat(child TransitionSpec) TransitionSpec {
	return TransitionSpec{
		In:        UniqItems(append(slices.Clone(t.In), child.In...)),
		Out:       UniqItems(append(slices.Clone(t.Out), child.Out...)),
		RunBefore: UniqStrings(append(slices.Clone(t.RunBefore), child.RunBefore...)),
		RunAfter:  UniqStrings(append(slices.Clone(t.RunAfter), child.RunAfter...)),
		Split:     t.Split || child.Split,
	}
}

// Declaration is the authored rule: conditions, transition, and folded
// declarations that inherit both.
type Declaration struct {
	When   When
	Then   TransitionSpec
	Nested []Declaration
}

// Declare is a shorthand constructor.
func Declare(when When, then TransitionSpec, nested ...Declaration) Declaration {
	return Declaration{When: when, Then: then, Nested: nested}
}

// Rule is an expanded declaration: flat, aliases resolved.
type Rule struct {
	Conditions ConditionSet
	Then       TransitionSpec
}

// Transition is what one evaluation produced for a manager.
type Transition struct {
	Current   []Item
	In        []Item
	Out       []Item
	RunBefore []string
	RunAfter  []string
}

// Empty reports whether nothing enters or exits.
func (t Transition) Empty() bool {
	return len(t.In) == 0 && len(t.Out) == 0
}

// ManagerKind selects the manager variant.
type ManagerKind string

const (
	KindAction  ManagerKind = "action"
	KindDisplay ManagerKind = "display"
)

// ManagerConfig is one tagged manager bucket. Name defaults to Kind.
// Settings holds loosely typed options, decoded by the engine.
type ManagerConfig struct {
	Kind         ManagerKind    `json:"kind"`
	Name         string         `json:"name,omitempty"`
	Settings     map[string]any `json:"settings,omitempty"`
	Declarations []Declaration  `json:"-"`
}

// ManagerName returns Name, falling back to Kind.
func (m ManagerConfig) ManagerName() string {
	if m.Name != "" {
		return m.Name
	}
	return string(m.Kind)
}

// Config is a complete state configuration for one subject.
type Config struct {
	Aliases  map[string][]ConditionSet
	Managers []ManagerConfig
}

// UniqItems drops repeated references, keeping first occurrences.
// Inline ops are always kept.
func UniqItems(items []Item) []Item {
	seen := make(map[string]bool, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Op == nil {
			if seen[it.Ref] {
				continue
			}
			seen[it.Ref] = true
		}
		out = append(out, it)
	}
	return out
}

// UniqStrings drops repeated and empty strings, keeping first occurrences.
func UniqStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ItemRefs returns the references of items, in order.
func ItemRefs(items []Item) []string {
	refs := make([]string, 0, len(items))
	for _, it := range items {
		refs = append(refs, it.Ref)
	}
	return refs
}
