package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Calls    []string // Full call log for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Calls) > 0 {
		fmt.Fprintf(&buf, "\nAll calls:\n")
		for i, c := range e.Calls {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, c)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCalled:
			err = assertCalled(result.Calls, a)
		case AssertNotCalled:
			err = assertNotCalled(result.Calls, a)
		case AssertCallOrder:
			err = assertCallOrder(result.Calls, a)
		case AssertOutcome:
			err = assertOutcome(result.Outcomes, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertCalled checks the target was called at least once, or exactly
// Count times when Count is set.
func assertCalled(calls []string, a Assertion) error {
	count := countCalls(calls, a.Target)
	switch {
	case a.Count > 0 && count != a.Count:
		return &AssertionError{
			Type:     AssertCalled,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Target),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Calls:    calls,
		}
	case count == 0:
		return &AssertionError{
			Type:     AssertCalled,
			Expected: fmt.Sprintf("call %s", a.Target),
			Actual:   "not found in calls",
			Calls:    calls,
		}
	}
	return nil
}

func assertNotCalled(calls []string, a Assertion) error {
	if count := countCalls(calls, a.Target); count > 0 {
		return &AssertionError{
			Type:     AssertNotCalled,
			Expected: fmt.Sprintf("no call %s", a.Target),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Calls:    calls,
		}
	}
	return nil
}

// assertCallOrder checks that calls first occur in the given order.
// Calls don't need to be consecutive.
func assertCallOrder(calls []string, a Assertion) error {
	positions := make(map[string]int, len(a.Calls))
	for i, c := range calls {
		if _, seen := positions[c]; !seen {
			positions[c] = i + 1 // 1-indexed for readability
		}
	}

	for _, c := range a.Calls {
		if positions[c] == 0 {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("all calls present: %v", a.Calls),
				Actual:   fmt.Sprintf("missing call: %s", c),
				Calls:    calls,
			}
		}
	}

	for i := 1; i < len(a.Calls); i++ {
		prev, curr := a.Calls[i-1], a.Calls[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("calls in order: %v", a.Calls),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Calls: calls,
			}
		}
	}
	return nil
}

// assertOutcome checks the journal's settlement count for one manager and
// outcome.
func assertOutcome(outcomes map[string]map[string]int, a Assertion) error {
	got := outcomes[a.Manager][a.Outcome]
	if got != a.Count {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("%d %s jobs for %s", a.Count, a.Outcome, a.Manager),
			Actual:   fmt.Sprintf("%d %s jobs", got, a.Outcome),
		}
	}
	return nil
}

func countCalls(calls []string, target string) int {
	n := 0
	for _, c := range calls {
		if c == target {
			n++
		}
	}
	return n
}
