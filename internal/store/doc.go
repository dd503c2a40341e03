// Package store provides the SQLite trace journal for stagehand runs.
//
// The journal is an append-only diagnostic log of what the engine did:
//   - Runs: one row per simulation or session, keyed by a UUIDv7 run id
//   - Picks: every manager evaluation (entered, exited and current rules)
//   - Settlements: every queued job and how it settled (applied,
//     superseded or failed)
//
// The journal never feeds state back into evaluation.
//
// # Ordering
//
//   - Picks are ordered by a per-run ordinal assigned by the Journal
//   - Settlements are ordered by job seq (the dispatcher's logical clock)
//   - Runs are ordered by id; UUIDv7 ids sort in creation order
//
// Wall-clock time is never stored, so journals of the same scenario are
// identical apart from run ids.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Reference lists and rule descriptions are stored as RFC 8785 canonical
// JSON (internal/ir).
package store
