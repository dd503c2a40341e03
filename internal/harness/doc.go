// Package harness simulates state configurations against a scripted
// subject.
//
// The harness compiles a CUE state configuration, builds the real engine
// dispatcher over a simulated subject, executes scenario steps, and
// records every pick, settlement and side effect into a trace and a
// journal run.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario demonstrates"
//	config: path/to/states.cue      # or source: |  <inline CUE>
//	subject:
//	  attributes: { status: guest }
//	  parts: [welcome, menu]
//	  operations: [greet]
//	  scopes: { tooltip: [in, out] }
//	  failing: [charge]
//	  children:
//	    - { role: cart, name: main, attributes: { count: 0 } }
//	watch: true
//	steps:
//	  - set: { status: member }
//	    expect:
//	      calls: [call greet, show .menu, hide .welcome]
//	  - child: { role: cart, set: { count: 2 } }
//	    do: emit
//	assertions:
//	  - type: called
//	    target: call greet
//	  - type: outcome
//	    manager: display
//	    outcome: applied
//	    count: 2
//
// # Calls
//
// The simulated subject records side effects as call strings:
//
//   - show .part, hide .part: a subject part
//   - show #role/name, hide #role/name: a displayable child
//   - call name, call scope.name: an operation
//
// Calls of one job run concurrently, so step expectations compare the set
// of calls, and the trace lists each step's calls in lexical order.
//
// # Assertion Types
//
//   - called: the target was called (exactly count times when count is set)
//   - not_called: the target was never called
//   - call_order: calls first occur in the given order
//   - outcome: the journal holds count settlements of a manager with outcome
//
// # Deterministic Testing
//
// The engine's logical clock and fixed run ids make traces identical across
// runs, for golden file comparison. Each scenario records into a fresh
// in-memory journal unless WithStore is given.
package harness
