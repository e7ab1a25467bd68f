// Package store provides SQLite-backed durable storage for decisions,
// their assumptions, constraints and dependencies, and the append-only
// evaluation audit trail.
//
// # Tables
//
//   - decisions: current state plus scheduling bookkeeping (dirty flag,
//     last evaluation time, optimistic version column)
//   - assumptions, constraints: reusable inputs
//   - decision_assumptions, decision_constraints: links; the constraint
//     link carries the externally computed violated flag
//   - dependencies: directed acyclic edges between decisions
//   - evaluations: one immutable row per persisted evaluation
//
// # Conventions
//
//   - Timestamps are stored as Unix milliseconds in UTC.
//   - Every list query has a total ORDER BY so results are deterministic.
//   - State writes bump decisions.version; SaveEvaluation only succeeds
//     when the version it read is still current.
//   - Snapshot assembly for a batch uses a fixed number of queries
//     regardless of batch size (see LoadSnapshots).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
