package harness

import (
	"fmt"
	"reflect"

	"github.com/roach88/driftwatch/internal/engine"
	"github.com/roach88/driftwatch/internal/model"
)

// Result is the outcome of one scenario run.
type Result struct {
	Name string `json:"name"`

	// Pass is true when every expectation, assertion and property held.
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`

	Outcome engine.Result `json:"-"`
}

// AddError records a failure.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Run evaluates the scenario and checks it. The returned error is only
// non-nil when the scenario could not be evaluated at all.
func Run(s *Scenario) (*Result, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	params := s.EngineParams()
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: params: %w", s.Name, err)
	}

	eng := engine.New(engine.WithParams(params))
	out := eng.Evaluate(snap, s.Now.UTC())

	result := &Result{Name: s.Name, Pass: true, Outcome: out}
	checkExpectation(s.Expect, out, result)

	for _, msg := range CheckProperties(snap, out) {
		result.AddError("property: " + msg)
	}
	if again := eng.Evaluate(snap, s.Now.UTC()); !reflect.DeepEqual(again, out) {
		result.AddError("property: second evaluation of the same snapshot differs")
	}
	for _, msg := range EvaluateAssertions(out.Trace, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func checkExpectation(e Expectation, out engine.Result, result *Result) {
	if e.HealthSignal != nil && *e.HealthSignal != out.NewHealthSignal {
		result.AddError(fmt.Sprintf("health_signal: expected %d, got %d", *e.HealthSignal, out.NewHealthSignal))
	}
	if e.Lifecycle != "" && model.Lifecycle(e.Lifecycle) != out.NewLifecycle {
		result.AddError(fmt.Sprintf("lifecycle: expected %s, got %s", e.Lifecycle, out.NewLifecycle))
	}
	if e.InvalidatedReason != nil {
		got := ""
		if out.InvalidatedReason != nil {
			got = string(*out.InvalidatedReason)
		}
		if got != *e.InvalidatedReason {
			result.AddError(fmt.Sprintf("invalidated_reason: expected %q, got %q", *e.InvalidatedReason, got))
		}
	}
	if e.ChangesDetected != nil && *e.ChangesDetected != out.ChangesDetected {
		result.AddError(fmt.Sprintf("changes_detected: expected %t, got %t", *e.ChangesDetected, out.ChangesDetected))
	}
}
