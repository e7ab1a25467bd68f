package harness

import (
	"fmt"

	"github.com/roach88/driftwatch/internal/engine"
	"github.com/roach88/driftwatch/internal/model"
)

// stepNames is the order every trace must follow.
var stepNames = []model.StepName{
	model.StepConstraintValidation,
	model.StepDependencyEvaluation,
	model.StepAssumptionCheck,
	model.StepHealthDecay,
	model.StepLifecycleDetermination,
}

// CheckProperties verifies the structural guarantees every evaluation
// must meet, independent of the scenario's expectations. It returns one
// message per violated property.
func CheckProperties(snap model.Snapshot, out engine.Result) []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if out.NewHealthSignal < 0 || out.NewHealthSignal > 100 {
		add("health %d outside 0..100", out.NewHealthSignal)
	}

	if len(out.Trace) != len(stepNames) {
		add("trace has %d steps, want %d", len(out.Trace), len(stepNames))
	} else {
		for i, s := range out.Trace {
			if s.Step != i+1 || s.Name != stepNames[i] {
				add("trace[%d] is %d %s, want %d %s", i, s.Step, s.Name, i+1, stepNames[i])
			}
			if i > 0 && s.HealthBefore != out.Trace[i-1].HealthAfter {
				add("trace[%d] starts at %d but trace[%d] ended at %d", i, s.HealthBefore, i-1, out.Trace[i-1].HealthAfter)
			}
		}
		if last := out.Trace[len(out.Trace)-1]; last.HealthAfter != out.NewHealthSignal {
			add("trace ends at %d but result health is %d", last.HealthAfter, out.NewHealthSignal)
		}
	}

	in := snap.Decision
	if in.Lifecycle == model.LifecycleRetired {
		if out.NewLifecycle != model.LifecycleRetired {
			add("retired decision left RETIRED for %s", out.NewLifecycle)
		}
		return problems
	}

	// Health alone never invalidates.
	if out.NewLifecycle == model.LifecycleInvalidated {
		constraintFailed := stepFailed(out.Trace, model.StepConstraintValidation)
		assumptionsFailed := stepFailed(out.Trace, model.StepAssumptionCheck)
		if !constraintFailed && !assumptionsFailed {
			add("INVALIDATED without a failed constraint or assumption step")
		}
	}

	violated := false
	for _, c := range snap.Constraints {
		violated = violated || c.Violated
	}
	if violated {
		if out.NewLifecycle != model.LifecycleInvalidated || out.InvalidatedReason == nil ||
			*out.InvalidatedReason != model.ReasonConstraintViolation {
			add("violated constraint did not invalidate with constraint_violation")
		}
	}

	if out.InvalidatedReason != nil && !out.NewLifecycle.IsTerminal() {
		add("reason %s set on %s", *out.InvalidatedReason, out.NewLifecycle)
	}

	changed := out.NewHealthSignal != in.HealthSignal || out.NewLifecycle != in.Lifecycle
	if changed != out.ChangesDetected {
		add("changes_detected=%t but health %d->%d lifecycle %s->%s",
			out.ChangesDetected, in.HealthSignal, out.NewHealthSignal, in.Lifecycle, out.NewLifecycle)
	}
	return problems
}

func stepFailed(trace []model.TraceStep, name model.StepName) bool {
	s, ok := findStep(trace, name)
	return ok && s.Status == model.StepFailed
}
