package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/stagehand/internal/engine"
	"github.com/roach88/stagehand/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrNoManagers          = "E101" // at least one manager required
	ErrDuplicateManager    = "E102" // two managers share a name
	ErrUnknownManagerKind  = "E103" // kind with no factory
	ErrInvalidSettings     = "E104" // settings fail to decode or validate
	ErrInvalidAlias        = "E110" // alias table rejected
	ErrUndefinedAlias      = "E111" // declaration refers to a missing alias
	ErrInvalidDeclaration  = "E112" // declaration cannot be expanded
	ErrUnknownAssertion    = "E113" // assertion or predicate name not registered
	ErrUnknownOrderingHint = "E114" // run_before/run_after names no manager
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled configuration the way a dispatcher would
// build it. Returns all errors found (does not fail-fast).
//
// kinds lists the manager kinds that have a factory; empty means only the
// built-in action and display kinds.
func Validate(cfg *ir.Config, kinds ...ir.ManagerKind) []ValidationError {
	var errs []ValidationError

	if len(kinds) == 0 {
		kinds = []ir.ManagerKind{ir.KindAction, ir.KindDisplay}
	}

	if len(cfg.Managers) == 0 {
		errs = append(errs, ValidationError{
			Field:   "managers",
			Message: "at least one manager is required",
			Code:    ErrNoManagers,
		})
	}

	aliases, err := engine.NewAliasManager(cfg.Aliases)
	if err != nil {
		errs = append(errs, ValidationError{
			Field:   "aliases",
			Message: err.Error(),
			Code:    ErrInvalidAlias,
		})
	}

	known := engine.StandardAssertionNames()
	if aliases != nil {
		for _, name := range aliases.Names() {
			sets, _ := aliases.Get(name)
			for _, cs := range sets {
				errs = append(errs, validateAssertions(cs, "aliases."+name, known)...)
			}
		}
	}

	names := make(map[string]bool, len(cfg.Managers))
	for _, mc := range cfg.Managers {
		names[mc.ManagerName()] = true
	}

	seen := make(map[string]bool, len(cfg.Managers))
	for i, mc := range cfg.Managers {
		field := fmt.Sprintf("managers[%d]", i)
		name := mc.ManagerName()

		if seen[name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate manager name: %q", name),
				Code:    ErrDuplicateManager,
			})
		}
		seen[name] = true

		if !slices.Contains(kinds, mc.Kind) {
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("unknown manager kind %q, must be one of %v", mc.Kind, kinds),
				Code:    ErrUnknownManagerKind,
			})
		}

		if _, err := engine.DecodeSettings(mc.Settings); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".settings",
				Message: err.Error(),
				Code:    ErrInvalidSettings,
			})
		}

		if aliases == nil {
			continue
		}
		rules, err := engine.Expand(mc.Declarations, aliases)
		if err != nil {
			code := ErrInvalidDeclaration
			if engine.IsUnknownAlias(err) {
				code = ErrUndefinedAlias
			}
			errs = append(errs, ValidationError{
				Field:   field + ".states",
				Message: err.Error(),
				Code:    code,
			})
			continue
		}
		for j, r := range rules {
			ruleField := fmt.Sprintf("%s.rules[%d]", field, j)
			errs = append(errs, validateAssertions(r.Conditions, ruleField, known)...)
			errs = append(errs, validateHints(r.Then, ruleField, name, names)...)
		}
	}

	return errs
}

// validateAssertions reports assertion and predicate names the standard
// registry does not know.
func validateAssertions(cs ir.ConditionSet, field string, known []string) []ValidationError {
	var errs []ValidationError
	for _, attr := range cs.Keys() {
		var used []string
		switch c := cs[attr].(type) {
		case ir.Predicate:
			used = append(used, string(c))
		case ir.Assertions:
			for _, chk := range c {
				used = append(used, chk.Name)
			}
		}
		for _, name := range used {
			if !slices.Contains(known, name) {
				errs = append(errs, ValidationError{
					Field:   field + "." + attr,
					Message: fmt.Sprintf("unknown assertion %q, must be one of %v", name, known),
					Code:    ErrUnknownAssertion,
				})
			}
		}
	}
	return errs
}

// validateHints reports ordering hints naming no configured manager.
func validateHints(then ir.TransitionSpec, field, self string, managers map[string]bool) []ValidationError {
	var errs []ValidationError
	check := func(key string, targets []string) {
		for _, target := range targets {
			if !managers[target] {
				errs = append(errs, ValidationError{
					Field:   field + ".then." + key,
					Message: fmt.Sprintf("manager %q orders itself against unknown manager %q", self, target),
					Code:    ErrUnknownOrderingHint,
				})
			}
		}
	}
	check("run_before", then.RunBefore)
	check("run_after", then.RunAfter)
	return errs
}
