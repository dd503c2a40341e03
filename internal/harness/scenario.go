package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a simulation: a state configuration, a simulated subject,
// and a sequence of steps that mutate the subject and drive the dispatcher.
// Assertions run against the recorded calls and the journal afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description"`

	// Config is the path to a CUE state configuration.
	// Relative paths resolve against the scenario file location.
	Config string `yaml:"config,omitempty"`

	// Source is an inline CUE state configuration, used when Config is empty.
	Source string `yaml:"source,omitempty"`

	// Subject describes the simulated subject.
	Subject SubjectSpec `yaml:"subject"`

	// Watch subscribes the dispatcher to child change events before the
	// first step.
	Watch bool `yaml:"watch,omitempty"`

	// Steps run in order. Each mutates the subject, then performs its Do
	// action.
	Steps []Step `yaml:"steps"`

	// Assertions validate the recorded calls and journal outcomes.
	// Supported types: called, not_called, call_order, outcome
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// RunID is an optional fixed journal run id for golden comparison.
	// Defaults to "run-<name>".
	RunID string `yaml:"run_id,omitempty"`
}

// SubjectSpec describes the simulated subject's initial shape.
type SubjectSpec struct {
	// Attributes are the initial attribute values. They carry no previous
	// values.
	Attributes map[string]any `yaml:"attributes,omitempty"`

	// Parts are the part names the display manager can show and hide.
	Parts []string `yaml:"parts,omitempty"`

	// Operations are the operation names the action manager can call.
	Operations []string `yaml:"operations,omitempty"`

	// Scopes maps a scope name to its operations ("tooltip": ["in", "out"]).
	Scopes map[string][]string `yaml:"scopes,omitempty"`

	// Failing lists operations ("ship", "tooltip.in") that return an error.
	Failing []string `yaml:"failing,omitempty"`

	// Children are role-addressed children.
	Children []ChildSpec `yaml:"children,omitempty"`
}

// ChildSpec describes one child of the simulated subject.
type ChildSpec struct {
	Role       string         `yaml:"role"`
	Name       string         `yaml:"name"`
	Attributes map[string]any `yaml:"attributes,omitempty"`
}

// Step is one simulation step.
type Step struct {
	// Set assigns subject attributes before Do runs.
	Set map[string]any `yaml:"set,omitempty"`

	// Child assigns attributes of one child before Do runs.
	Child *ChildStep `yaml:"child,omitempty"`

	// Do is the dispatcher action: apply (default), apply_all, emit, lock,
	// unlock or none. emit delivers the child's change event to watchers.
	Do string `yaml:"do,omitempty"`

	// Expect validates the step's calls and error.
	// If nil, no validation is performed.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// ChildStep targets one child by role and, optionally, name.
type ChildStep struct {
	Role string         `yaml:"role"`
	Name string         `yaml:"name,omitempty"`
	Set  map[string]any `yaml:"set"`
}

// StepExpect specifies the expected outcome of a step.
type StepExpect struct {
	// Calls is the exact set of calls the step makes, in any order.
	// A nil list is not checked; an empty list expects no calls.
	Calls []string `yaml:"calls"`

	// Error is a substring of the expected dispatch error. When empty the
	// step must not fail.
	Error string `yaml:"error,omitempty"`
}

// Step actions.
const (
	DoApply    = "apply"
	DoApplyAll = "apply_all"
	DoEmit     = "emit"
	DoLock     = "lock"
	DoUnlock   = "unlock"
	DoNone     = "none"
)

// Assertion validates the whole run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "called": Target was called (Count times, when Count > 0)
	// - "not_called": Target was never called
	// - "call_order": Calls appear in order by first occurrence
	// - "outcome": Manager settled Count jobs with Outcome
	Type string `yaml:"type"`

	// Target is a call string such as "show .bar" or "call ship".
	Target string `yaml:"target,omitempty"`

	// Calls is the expected call order (used by call_order).
	Calls []string `yaml:"calls,omitempty"`

	// Manager and Outcome select journal settlements (used by outcome).
	Manager string `yaml:"manager,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertCalled    = "called"
	AssertNotCalled = "not_called"
	AssertCallOrder = "call_order"
	AssertOutcome   = "outcome"
)

// LoadScenario reads and parses a scenario YAML file. A relative Config
// path resolves against the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the config path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Config != "" && !filepath.IsAbs(scenario.Config) && basePath != "" {
		scenario.Config = filepath.Join(basePath, scenario.Config)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML without validating file references.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Config == "" && s.Source == "":
		return fmt.Errorf("one of config or source is required")
	case s.Config != "" && s.Source != "":
		return fmt.Errorf("config and source are mutually exclusive")
	case s.Config != "":
		if _, err := os.Stat(s.Config); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", s.Config)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, c := range s.Subject.Children {
		if c.Role == "" {
			return fmt.Errorf("subject.children[%d]: role is required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *Step) error {
	switch step.Do {
	case "", DoApply, DoApplyAll, DoLock, DoUnlock, DoNone:
	case DoEmit:
		if step.Child == nil {
			return fmt.Errorf("steps[%d]: emit requires a child", index)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, step.Do)
	}
	if step.Child != nil && step.Child.Role == "" {
		return fmt.Errorf("steps[%d].child: role is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCalled, AssertNotCalled:
		if a.Target == "" {
			return fmt.Errorf("assertions[%d]: target is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertCallOrder:
		if len(a.Calls) < 2 {
			return fmt.Errorf("assertions[%d]: call_order needs at least two calls", index)
		}
	case AssertOutcome:
		if a.Manager == "" {
			return fmt.Errorf("assertions[%d]: manager is required for outcome", index)
		}
		switch a.Outcome {
		case "applied", "superseded", "failed":
		default:
			return fmt.Errorf("assertions[%d]: outcome must be applied, superseded or failed", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
