package harness

// Trace event types.
const (
	EventCall   = "call"
	EventPick   = "pick"
	EventSettle = "settle"
)

// TraceEvent is one entry of a simulation trace: a picked transition, a
// job settlement, or a call the subject received.
type TraceEvent struct {
	Step    int      `json:"step"`
	Type    string   `json:"type"`
	Manager string   `json:"manager,omitempty"`
	Target  string   `json:"target,omitempty"`
	In      []string `json:"in,omitempty"`
	Out     []string `json:"out,omitempty"`
	Outcome string   `json:"outcome,omitempty"`
	Seq     int64    `json:"seq,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success.
	// True if every step expectation and assertion matched.
	Pass bool `json:"pass"`

	// RunID is the journal run the scenario was recorded under.
	RunID string `json:"run_id"`

	// Trace contains picks and settlements in engine order, followed per
	// step by that step's calls in lexical order. Step 0 is construction.
	Trace []TraceEvent `json:"trace"`

	// Calls contains every call in recording order.
	Calls []string `json:"calls"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Outcomes counts journal settlements per manager and outcome.
	Outcomes map[string]map[string]int `json:"outcomes,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Calls:    []string{},
		Errors:   []string{},
		Outcomes: map[string]map[string]int{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// CallsAt returns the calls of one step, in lexical order.
func (r *Result) CallsAt(step int) []string {
	calls := []string{}
	for _, e := range r.Trace {
		if e.Step == step && e.Type == EventCall {
			calls = append(calls, e.Target)
		}
	}
	return calls
}
