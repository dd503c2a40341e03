package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while building or running
// state managers.
//
// Runtime errors include:
//   - Configuration errors: unknown alias, unknown manager kind, bad settings
//   - Ordering cycles: run_before/run_after hints that never converge
//   - Application errors: unknown operation, panicking side effect
//   - Supersession: a queued job discarded in favour of a newer one
//
// RuntimeError includes structured fields for diagnostics. Two runtime
// errors match under errors.Is when their codes are equal, so the package
// level sentinels (ErrSuperseded, ErrOrderingCycle, ...) can be used as
// errors.Is targets.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Manager names the affected state manager, if any.
	Manager string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeSuperseded marks a job discarded before it started.
	ErrCodeSuperseded RuntimeErrorCode = "SUPERSEDED"

	// ErrCodeOrderingCycle indicates run_before/run_after hints that cannot
	// be satisfied together.
	ErrCodeOrderingCycle RuntimeErrorCode = "ORDERING_CYCLE"

	// ErrCodeUnknownAlias indicates a declaration referring to an alias that
	// was never defined.
	ErrCodeUnknownAlias RuntimeErrorCode = "UNKNOWN_ALIAS"

	// ErrCodeUnknownOperation indicates an action item that resolves to no
	// operation on the subject.
	ErrCodeUnknownOperation RuntimeErrorCode = "UNKNOWN_OPERATION"

	// ErrCodeNoVariant indicates a state manager built without a way to
	// apply its transitions.
	ErrCodeNoVariant RuntimeErrorCode = "NO_VARIANT"

	// ErrCodeUnknownManagerKind indicates a manager kind with no registered
	// factory.
	ErrCodeUnknownManagerKind RuntimeErrorCode = "UNKNOWN_MANAGER_KIND"

	// ErrCodeDuplicateManager indicates two managers sharing one name.
	ErrCodeDuplicateManager RuntimeErrorCode = "DUPLICATE_MANAGER"

	// ErrCodeInvalidSettings indicates manager settings that failed to
	// decode or validate.
	ErrCodeInvalidSettings RuntimeErrorCode = "INVALID_SETTINGS"

	// ErrCodeInvalidDeclaration indicates a declaration whose conditions
	// cannot be keyed (nil condition).
	ErrCodeInvalidDeclaration RuntimeErrorCode = "INVALID_DECLARATION"

	// ErrCodeNoEventSource indicates child dependencies on a subject that
	// cannot deliver change events.
	ErrCodeNoEventSource RuntimeErrorCode = "NO_EVENT_SOURCE"

	// ErrCodeApplyPanic indicates a side effect that panicked.
	ErrCodeApplyPanic RuntimeErrorCode = "APPLY_PANIC"
)

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrSuperseded         = &RuntimeError{Code: ErrCodeSuperseded, Message: "job superseded by a newer transition"}
	ErrOrderingCycle      = &RuntimeError{Code: ErrCodeOrderingCycle, Message: "cannot order managers by run_before/run_after"}
	ErrUnknownAlias       = &RuntimeError{Code: ErrCodeUnknownAlias, Message: "unknown alias"}
	ErrUnknownOperation   = &RuntimeError{Code: ErrCodeUnknownOperation, Message: "unknown operation"}
	ErrNoVariant          = &RuntimeError{Code: ErrCodeNoVariant, Message: "state manager has no variant"}
	ErrUnknownManagerKind = &RuntimeError{Code: ErrCodeUnknownManagerKind, Message: "unknown manager kind"}
	ErrDuplicateManager   = &RuntimeError{Code: ErrCodeDuplicateManager, Message: "duplicate manager name"}
	ErrInvalidSettings    = &RuntimeError{Code: ErrCodeInvalidSettings, Message: "invalid manager settings"}
	ErrInvalidDeclaration = &RuntimeError{Code: ErrCodeInvalidDeclaration, Message: "invalid declaration"}
	ErrNoEventSource      = &RuntimeError{Code: ErrCodeNoEventSource, Message: "subject cannot deliver change events"}
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Manager != "" {
		return fmt.Sprintf("%s: %s (manager=%s)", e.Code, e.Message, e.Manager)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is a RuntimeError with the same code.
func (e *RuntimeError) Is(target error) bool {
	var re *RuntimeError
	if errors.As(target, &re) {
		return re.Code == e.Code
	}
	return false
}

// IsSuperseded returns true if the job behind err was discarded rather than
// failed. Callers must treat it as "nothing to do".
// Uses errors.As to handle wrapped errors.
func IsSuperseded(err error) bool {
	return hasCode(err, ErrCodeSuperseded)
}

// IsOrderingCycle returns true if the error is an ordering cycle error.
func IsOrderingCycle(err error) bool {
	return hasCode(err, ErrCodeOrderingCycle)
}

// IsUnknownAlias returns true if a declaration referred to an undefined
// alias.
func IsUnknownAlias(err error) bool {
	return hasCode(err, ErrCodeUnknownAlias)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func newSupersededError(manager string, seq, by int64) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeSuperseded,
		Message: ErrSuperseded.Message,
		Manager: manager,
		Details: map[string]string{
			"seq": fmt.Sprintf("%d", seq),
			"by":  fmt.Sprintf("%d", by),
		},
	}
}

func newOrderingCycleError(attempts int, order []string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeOrderingCycle,
		Message: fmt.Sprintf("sort attempts limit reached (%d times)", attempts),
		Details: map[string]string{
			"attempts": fmt.Sprintf("%d", attempts),
			"order":    fmt.Sprintf("%v", order),
		},
	}
}

func newUnknownAliasError(name string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownAlias,
		Message: fmt.Sprintf("alias %q is not defined", name),
		Details: map[string]string{"alias": name},
	}
}

func newUnknownOperationError(manager, ref string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownOperation,
		Message: fmt.Sprintf("no operation matches %q", ref),
		Manager: manager,
		Details: map[string]string{"ref": ref},
	}
}
