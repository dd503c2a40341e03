// Package ir provides the value and declaration model shared by every
// stagehand package.
//
// This package contains type definitions and serialization only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere; attribute numbers are int64
//   - Condition-set identity is the canonical JSON hash (ConditionSetKey),
//     which is what "deep equality" means for matched-state diffing
//   - Declarations are authored once and never mutated after expansion
package ir
