// Package model defines the records driftwatch evaluates and persists.
//
// The package has three concerns:
//   - Domain records: Decision, Assumption, Constraint, DependencyHealth and
//     the Snapshot that bundles them for one evaluation
//   - Evaluation output: TraceStep and the append-only EvaluationRecord
//   - Integrity: canonical JSON and domain-separated SHA-256 content hashes
//     so an audit row can be checked against what was written
//
// # Lifecycle
//
// Decisions move between STABLE, UNDER_REVIEW and AT_RISK automatically.
// INVALIDATED is terminal for automatic transitions except that each fresh
// evaluation provisionally reopens it. RETIRED is permanent.
//
// # Health Signal
//
// HealthSignal is an internal 0-100 heuristic. It is never authoritative and
// never the sole cause of INVALIDATED.
package model
