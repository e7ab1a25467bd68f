package engine

import (
	"time"

	"github.com/roach88/driftwatch/internal/model"
)

// Engine evaluates decision snapshots.
//
// Thread-safety: an Engine is immutable after New and safe for concurrent
// use. Evaluate allocates all per-run state on the stack of the call.
type Engine struct {
	params Params
}

// Result is the output of one evaluation.
type Result struct {
	NewHealthSignal   int
	NewLifecycle      model.Lifecycle
	InvalidatedReason *model.Reason
	Trace             []model.TraceStep
	ChangesDetected   bool
}

// New creates an Engine with DefaultParams modified by opts.
//
// Out-of-range parameters are replaced by their defaults; callers that
// need to reject bad configuration should call Params.Validate first.
func New(opts ...Option) *Engine {
	p := DefaultParams()
	for _, opt := range opts {
		opt(&p)
	}
	return &Engine{params: p.sanitized()}
}

// Params returns the parameters the engine evaluates with.
func (e *Engine) Params() Params {
	return e.params
}

// Evaluate runs the five evaluation steps against snap at time now.
//
// Evaluate is pure: identical snapshots and timestamps always produce
// identical results. It never panics for a snapshot that passes
// model.Snapshot.Validate.
func (e *Engine) Evaluate(snap model.Snapshot, now time.Time) Result {
	in := snap.Decision

	if in.Lifecycle == model.LifecycleRetired {
		return retiredResult(in)
	}

	r := &run{
		params:    e.params,
		snap:      snap,
		now:       now,
		health:    e.params.BaselineHealth,
		lifecycle: in.Lifecycle,
	}

	// A fresh evaluation may recover an INVALIDATED decision; the
	// invalidation only survives if one of the hard-fail steps fires again.
	if r.lifecycle == model.LifecycleInvalidated {
		r.lifecycle = model.LifecycleStable
	}

	r.checkConstraints()
	r.evaluateDependencies()
	r.checkAssumptions()
	r.applyDecay()
	r.determineLifecycle()

	return Result{
		NewHealthSignal:   r.health,
		NewLifecycle:      r.lifecycle,
		InvalidatedReason: r.reason,
		Trace:             r.trace,
		ChangesDetected:   r.health != in.HealthSignal || r.lifecycle != in.Lifecycle,
	}
}

// retiredResult records five skipped steps and returns the decision as is.
func retiredResult(in model.Decision) Result {
	trace := make([]model.TraceStep, 0, len(stepOrder))
	for i, name := range stepOrder {
		trace = append(trace, model.TraceStep{
			Step:         i + 1,
			Name:         name,
			Status:       model.StepSkipped,
			HealthBefore: in.HealthSignal,
			HealthAfter:  in.HealthSignal,
			Message:      "decision is retired",
		})
	}

	var reason *model.Reason
	if in.InvalidatedReason != nil {
		reason = model.ReasonPtr(*in.InvalidatedReason)
	}

	return Result{
		NewHealthSignal:   in.HealthSignal,
		NewLifecycle:      model.LifecycleRetired,
		InvalidatedReason: reason,
		Trace:             trace,
		ChangesDetected:   false,
	}
}

// LifecycleForHealth maps a health signal to a non-terminal lifecycle.
func LifecycleForHealth(health int) model.Lifecycle {
	switch {
	case health >= 80:
		return model.LifecycleStable
	case health >= 60:
		return model.LifecycleUnderReview
	default:
		return model.LifecycleAtRisk
	}
}
