package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/stagehand/internal/ir"
)

// CompileConfig parses a CUE value into a state configuration.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value is the configuration root:
//
//	aliases: can_drink: [{country: "US", age: more_than: 20}]
//	managers: [{kind: "display", states: [{when: "can_drink", then: ".bar"}]}]
func CompileConfig(v cue.Value) (*ir.Config, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	cfg := &ir.Config{}

	var err error
	cfg.Aliases, err = parseAliases(v)
	if err != nil {
		return nil, err
	}

	managersVal := v.LookupPath(cue.ParsePath("managers"))
	if !managersVal.Exists() {
		return nil, &CompileError{
			Field:   "managers",
			Message: "managers is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := managersVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		mc, err := parseManager(iter.Value(), fmt.Sprintf("managers[%d]", i))
		if err != nil {
			return nil, err
		}
		cfg.Managers = append(cfg.Managers, mc)
	}

	return cfg, nil
}

// CompileSource compiles CUE source text. filename only labels positions.
func CompileSource(filename string, src []byte) (*ir.Config, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	return CompileConfig(v)
}

// parseAliases extracts the alias table. Each alias is one condition set
// or a list of alternative sets. A quoted "parent/child" label defines an
// alias that nested declarations under the "parent" alias see as "child".
func parseAliases(v cue.Value) (map[string][]ir.ConditionSet, error) {
	aliasesVal := v.LookupPath(cue.ParsePath("aliases"))
	if !aliasesVal.Exists() {
		return nil, nil
	}

	iter, err := aliasesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	aliases := make(map[string][]ir.ConditionSet)
	for iter.Next() {
		name := iter.Label()
		sets, err := parseConditionSets(iter.Value(), "aliases."+name)
		if err != nil {
			return nil, err
		}
		aliases[name] = sets
	}
	return aliases, nil
}

// parseManager extracts one tagged manager bucket.
func parseManager(v cue.Value, field string) (ir.ManagerConfig, error) {
	var mc ir.ManagerConfig

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return mc, &CompileError{
			Field:   field + ".kind",
			Message: "manager kind is required",
			Pos:     v.Pos(),
		}
	}
	kind, err := kindVal.String()
	if err != nil {
		return mc, &CompileError{
			Field:   field + ".kind",
			Message: "kind must be a string",
			Pos:     kindVal.Pos(),
		}
	}
	mc.Kind = ir.ManagerKind(kind)

	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return mc, &CompileError{
				Field:   field + ".name",
				Message: "name must be a string",
				Pos:     nameVal.Pos(),
			}
		}
		mc.Name = name
	}

	if settingsVal := v.LookupPath(cue.ParsePath("settings")); settingsVal.Exists() {
		raw, err := cueToGo(settingsVal, field+".settings")
		if err != nil {
			return mc, err
		}
		settings, ok := raw.(map[string]any)
		if !ok {
			return mc, &CompileError{
				Field:   field + ".settings",
				Message: "settings must be a struct",
				Pos:     settingsVal.Pos(),
			}
		}
		mc.Settings = settings
	}

	if statesVal := v.LookupPath(cue.ParsePath("states")); statesVal.Exists() {
		mc.Declarations, err = parseDeclarations(statesVal, field+".states")
		if err != nil {
			return mc, err
		}
	}

	return mc, nil
}

// cueToGo converts a concrete CUE value into plain Go values: string,
// int64, bool, nil, []any and map[string]any. Floats are forbidden.
func cueToGo(v cue.Value, field string) (any, error) {
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return b, nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return n, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return s, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var out []any
		for i := 0; iter.Next(); i++ {
			elem, err := cueToGo(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := make(map[string]any)
		for iter.Next() {
			elem, err := cueToGo(iter.Value(), field+"."+iter.Label())
			if err != nil {
				return nil, err
			}
			out[iter.Label()] = elem
		}
		return out, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: "floats are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		if err := v.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
