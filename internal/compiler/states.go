package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/stagehand/internal/ir"
)

// predicateSuffix marks a string condition as a value-only assertion:
// "is_null()".
const predicateSuffix = "()"

// listOperands are assertions whose string operand is a comma-separated
// list.
var listOperands = map[string]bool{
	"is_in":  true,
	"not_in": true,
}

// parseDeclarations parses a list of state declarations.
func parseDeclarations(v cue.Value, field string) ([]ir.Declaration, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: "states must be a list",
			Pos:     v.Pos(),
		}
	}

	var decls []ir.Declaration
	for i := 0; iter.Next(); i++ {
		d, err := parseDeclaration(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	return decls, nil
}

// parseDeclaration parses one {when, then, nested} declaration. A
// declaration without "when" matches unconditionally; one without "then"
// must fold nested declarations.
func parseDeclaration(v cue.Value, field string) (ir.Declaration, error) {
	var d ir.Declaration

	var err error
	d.When, err = parseWhen(v.LookupPath(cue.ParsePath("when")), field+".when")
	if err != nil {
		return d, err
	}

	if nestedVal := v.LookupPath(cue.ParsePath("nested")); nestedVal.Exists() {
		d.Nested, err = parseDeclarations(nestedVal, field+".nested")
		if err != nil {
			return d, err
		}
	}

	thenVal := v.LookupPath(cue.ParsePath("then"))
	if !thenVal.Exists() {
		if len(d.Nested) == 0 {
			return d, &CompileError{
				Field:   field + ".then",
				Message: "then is required unless nested declarations are given",
				Pos:     v.Pos(),
			}
		}
		return d, nil
	}
	d.Then, err = parseThen(thenVal, field+".then")
	if err != nil {
		return d, err
	}

	return d, nil
}

// parseWhen parses the left-hand side: an alias expression ("a + b"), one
// condition set, or a list of alternative sets.
func parseWhen(v cue.Value, field string) (ir.When, error) {
	if !v.Exists() {
		return ir.When{}, nil
	}

	if v.Kind() == cue.StringKind {
		name, err := v.String()
		if err != nil {
			return ir.When{}, formatCUEError(err)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return ir.When{}, &CompileError{
				Field:   field,
				Message: "alias reference must be non-empty",
				Pos:     v.Pos(),
			}
		}
		return ir.Alias(name), nil
	}

	sets, err := parseConditionSets(v, field)
	if err != nil {
		return ir.When{}, err
	}
	return ir.Match(sets...), nil
}

// parseConditionSets parses one condition set or a list of them.
func parseConditionSets(v cue.Value, field string) ([]ir.ConditionSet, error) {
	switch v.Kind() {
	case cue.StructKind:
		cs, err := parseConditionSet(v, field)
		if err != nil {
			return nil, err
		}
		return []ir.ConditionSet{cs}, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var sets []ir.ConditionSet
		for i := 0; iter.Next(); i++ {
			elemField := fmt.Sprintf("%s[%d]", field, i)
			if iter.Value().Kind() != cue.StructKind {
				return nil, &CompileError{
					Field:   elemField,
					Message: "condition set must be a struct",
					Pos:     iter.Value().Pos(),
				}
			}
			cs, err := parseConditionSet(iter.Value(), elemField)
			if err != nil {
				return nil, err
			}
			sets = append(sets, cs)
		}
		return sets, nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: "must be a condition set, a list of condition sets or an alias name",
			Pos:     v.Pos(),
		}
	}
}

// parseConditionSet parses attribute name -> condition pairs.
func parseConditionSet(v cue.Value, field string) (ir.ConditionSet, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	cs := make(ir.ConditionSet)
	for iter.Next() {
		attr := iter.Label()
		cond, err := parseCondition(iter.Value(), field+"."+attr)
		if err != nil {
			return nil, err
		}
		cs[attr] = cond
	}
	return cs, nil
}

// parseCondition maps one authored value onto a condition variant:
//
//	"is_null()"        -> Predicate
//	"new, returning"   -> OneOf (comma-separated strings)
//	[1, 2]             -> OneOf
//	{more_than: 17}    -> Assertions
//	18, true, null     -> Equals
func parseCondition(v cue.Value, field string) (ir.Condition, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		s = strings.TrimSpace(s)
		if name, ok := strings.CutSuffix(s, predicateSuffix); ok {
			return ir.Predicate(name), nil
		}
		parts := splitList(s)
		if len(parts) == 0 {
			return ir.Equals{Value: ir.Str(s)}, nil
		}
		var values ir.OneOf
		for _, part := range parts {
			values = append(values, ir.Str(part))
		}
		return values, nil

	case cue.ListKind:
		raw, err := cueToGo(v, field)
		if err != nil {
			return nil, err
		}
		var values ir.OneOf
		for i, elem := range raw.([]any) {
			iv, err := ir.FromGo(elem)
			if err != nil {
				return nil, &CompileError{Field: fmt.Sprintf("%s[%d]", field, i), Message: err.Error(), Pos: v.Pos()}
			}
			values = append(values, iv)
		}
		return values, nil

	case cue.StructKind:
		return parseAssertions(v, field)

	default:
		raw, err := cueToGo(v, field)
		if err != nil {
			return nil, err
		}
		iv, err := ir.FromGo(raw)
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return ir.Equals{Value: iv}, nil
	}
}

// parseAssertions parses {name: operand} checks, in authored order.
func parseAssertions(v cue.Value, field string) (ir.Condition, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var checks ir.Assertions
	for iter.Next() {
		name := iter.Label()
		raw, err := cueToGo(iter.Value(), field+"."+name)
		if err != nil {
			return nil, err
		}
		if s, ok := raw.(string); ok && listOperands[name] {
			var elems []any
			for _, part := range splitList(s) {
				elems = append(elems, part)
			}
			raw = elems
		}
		operand, err := ir.FromGo(raw)
		if err != nil {
			return nil, &CompileError{Field: field + "." + name, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		checks = append(checks, ir.Check{Name: name, Operand: operand})
	}
	if len(checks) == 0 {
		return nil, &CompileError{
			Field:   field,
			Message: "assertion struct must name at least one assertion",
			Pos:     v.Pos(),
		}
	}
	return checks, nil
}

// parseThen parses the right-hand side: a reference list (string or list of
// strings) or the explicit {in, out, run_before, run_after} form.
func parseThen(v cue.Value, field string) (ir.TransitionSpec, error) {
	if v.Kind() != cue.StructKind {
		items, err := parseRefList(v, field)
		if err != nil {
			return ir.TransitionSpec{}, err
		}
		return ir.TransitionSpec{In: items}, nil
	}

	spec := ir.TransitionSpec{Split: true}
	iter, err := v.Fields()
	if err != nil {
		return spec, formatCUEError(err)
	}
	for iter.Next() {
		key := iter.Label()
		items, err := parseRefList(iter.Value(), field+"."+key)
		if err != nil {
			return spec, err
		}
		switch key {
		case "in":
			spec.In = items
		case "out":
			spec.Out = items
		case "run_before":
			spec.RunBefore = ir.ItemRefs(items)
		case "run_after":
			spec.RunAfter = ir.ItemRefs(items)
		default:
			return spec, &CompileError{
				Field:   field + "." + key,
				Message: fmt.Sprintf("unknown transition field %q, must be in, out, run_before or run_after", key),
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return spec, nil
}

// parseRefList accepts "a, #b, .c" or ["a", "#b, .c"].
func parseRefList(v cue.Value, field string) ([]ir.Item, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.ParseItems(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var items []ir.Item
		for i := 0; iter.Next(); i++ {
			s, err := iter.Value().String()
			if err != nil {
				return nil, &CompileError{
					Field:   fmt.Sprintf("%s[%d]", field, i),
					Message: "reference must be a string",
					Pos:     iter.Value().Pos(),
				}
			}
			items = append(items, ir.ParseItems(s)...)
		}
		return items, nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: "must be a string or a list of strings",
			Pos:     v.Pos(),
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
