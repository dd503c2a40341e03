package engine

import (
	"slices"

	"github.com/roach88/stagehand/internal/ir"
)

// AssertionFunc tests an attribute value against an operand. Predicates
// ("is_null()") are called with ir.Null as the operand.
type AssertionFunc func(value, operand ir.IRValue) bool

// standardAssertions is the built-in registry referenced by name from
// assertion conditions.
var standardAssertions = map[string]AssertionFunc{
	"any":       func(ir.IRValue, ir.IRValue) bool { return true },
	"is_null":   func(v, _ ir.IRValue) bool { return ir.IsNull(v) },
	"not_null":  func(v, _ ir.IRValue) bool { return !ir.IsNull(v) },
	"eq":        ir.Equal,
	"not":       notEqual,
	"is_not":    notEqual,
	"more_than": func(v, operand ir.IRValue) bool { return compareIs(v, operand, 1) },
	"less_than": func(v, operand ir.IRValue) bool { return compareIs(v, operand, -1) },
	"is_in":     isIn,
	"not_in":    func(v, operand ir.IRValue) bool { return !isIn(v, operand) },
}

func notEqual(v, operand ir.IRValue) bool {
	return !ir.Equal(v, operand)
}

// compareIs reports whether v compares to operand with the wanted sign.
// Values of different kinds never compare.
func compareIs(v, operand ir.IRValue, want int) bool {
	cmp, ok := ir.Compare(v, operand)
	return ok && cmp == want
}

// isIn tests membership. A scalar operand is treated as a one-element list.
func isIn(v, operand ir.IRValue) bool {
	list, ok := operand.(ir.IRArray)
	if !ok {
		return ir.Equal(v, operand)
	}
	for _, candidate := range list {
		if ir.Equal(v, candidate) {
			return true
		}
	}
	return false
}

// StandardAssertionNames returns the sorted names known to every
// evaluator, used by the compiler to reject typos.
func StandardAssertionNames() []string {
	names := make([]string, 0, len(standardAssertions))
	for name := range standardAssertions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
