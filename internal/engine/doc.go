// Package engine implements the stagehand state-transition engine.
//
// A subject (any stateful object exposing attributes) is described by
// declarations: condition sets paired with transitions. The engine decides,
// every time the subject's attributes change, which declarations hold and
// what must happen as a result.
//
// ARCHITECTURE:
//
// Evaluation (synchronous, pure):
//  1. Expand flattens folded and aliased declarations into rules, once,
//     at manager construction
//  2. Evaluator tests every rule's conditions against the subject
//  3. Pick drops matches dominated by a more specific match
//  4. MatchState.Advance diffs the matches against the previous pick,
//     producing entered and exited rules
//  5. Collect turns the diff into an ir.Transition
//
// Application (asynchronous):
// Each manager owns a TransitionQueue. A push onto an idle queue starts at
// once; pushes made while a job runs wait, and when the job finishes only
// the newest waiting job runs. Skipped jobs settle with ErrSuperseded,
// which callers treat as "discarded", never as "failed".
//
// Managers:
//   - ActionManager invokes subject operations (exit ops, then enter ops)
//   - DisplayManager shows and hides parts and role children
//   - custom kinds plug in through a Registry and the Variant interface
//
// The Dispatcher owns every manager of one subject, orders them per cycle
// from run_before/run_after hints and applies them one after another. It
// also watches child roles that conditions read through "role.attr".
//
// The engine never writes subject attributes and never touches rendering
// directly; everything goes through the interfaces in subject.go.
package engine
