// Package harness runs evaluation scenarios against the engine.
//
// A scenario pins a complete snapshot and an evaluation time in YAML,
// states the expected outcome, and optionally asserts on individual trace
// steps:
//
//	name: dependency_floor
//	description: "A healthy decision is floored by an invalidated dependency"
//	now: 2026-06-01T12:00:00Z
//	decision:
//	  id: A
//	  created_at: 2026-05-22T12:00:00Z
//	dependencies:
//	  - id: B
//	    health_signal: 0
//	    lifecycle: INVALIDATED
//	expect:
//	  health_signal: 0
//	  lifecycle: AT_RISK
//	  invalidated_reason: ""
//	assertions:
//	  - type: step_status
//	    step: dependency_evaluation
//	    status: adjusted
//
// # Assertion Types
//
//   - step_status: the named step finished with status
//   - step_health: health after the named step equals value
//   - step_detail: details[key] of the named step equals equals
//   - step_message: the message of the named step contains contains
//
// Every run also checks the engine's structural properties (see
// CheckProperties) and that a second evaluation of the same snapshot is
// identical. Traces can be compared against golden files with
// RunWithGolden.
package harness
