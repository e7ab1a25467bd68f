// Package engine implements the deterministic decision evaluation engine.
//
// The engine is a pure function from a model.Snapshot and a timestamp to a
// new health signal, lifecycle and a five-entry trace. It performs no I/O,
// holds no mutable state after construction and never returns an error for
// a snapshot that passes model.Snapshot.Validate.
//
// EVALUATION STEPS (always five trace entries, in this order):
//
//  1. Constraint validation: any violated constraint invalidates.
//  2. Dependency evaluation: health is floored at the weakest dependency.
//  3. Assumption check: a broken UNIVERSAL assumption, or a broken share of
//     decision-specific assumptions at or above the threshold, invalidates;
//     otherwise a proportional penalty applies.
//  4. Health decay: retirement after the expiry grace period, otherwise
//     expiry-driven or review-age decay.
//  5. Lifecycle determination: health bands map to STABLE, UNDER_REVIEW or
//     AT_RISK. Health alone never produces INVALIDATED.
//
// A step that forces a terminal outcome halts the run; later steps are
// still recorded, with status skipped.
//
// TERMINAL STATES:
//
// Every evaluation recomputes health from Params.BaselineHealth. An incoming
// INVALIDATED decision is provisionally treated as STABLE, so a fresh
// evaluation recovers it when nothing re-triggers invalidation. RETIRED is
// permanent: the engine records five skipped steps and returns the input
// unchanged.
package engine
