package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/driftwatch/internal/model"
)

// Assertion type constants.
const (
	AssertStepStatus  = "step_status"
	AssertStepHealth  = "step_health"
	AssertStepDetail  = "step_detail"
	AssertStepMessage = "step_message"
)

// Assertion checks one trace step.
type Assertion struct {
	Type string `yaml:"type"`

	// Step is the step name, e.g. "assumption_check".
	Step string `yaml:"step"`

	Status   string `yaml:"status,omitempty"`   // step_status
	Value    *int   `yaml:"value,omitempty"`    // step_health
	Key      string `yaml:"key,omitempty"`      // step_detail
	Equals   string `yaml:"equals,omitempty"`   // step_detail
	Contains string `yaml:"contains,omitempty"` // step_message
}

func (a Assertion) validate() error {
	if !knownStep(model.StepName(a.Step)) {
		return fmt.Errorf("unknown step %q", a.Step)
	}
	switch a.Type {
	case AssertStepStatus:
		if a.Status == "" {
			return fmt.Errorf("%s requires status", a.Type)
		}
	case AssertStepHealth:
		if a.Value == nil {
			return fmt.Errorf("%s requires value", a.Type)
		}
	case AssertStepDetail:
		if a.Key == "" {
			return fmt.Errorf("%s requires key", a.Type)
		}
	case AssertStepMessage:
		if a.Contains == "" {
			return fmt.Errorf("%s requires contains", a.Type)
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func knownStep(name model.StepName) bool {
	for _, s := range stepNames {
		if s == name {
			return true
		}
	}
	return false
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Step     string
	Expected string
	Actual   string
	Trace    []model.TraceStep
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s on %s\n", e.Type, e.Step)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, s := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %d->%d %s\n", s.Step, s.Name, s.Status, s.HealthBefore, s.HealthAfter, s.Message)
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion against trace and returns the
// failure messages.
func EvaluateAssertions(trace []model.TraceStep, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluateAssertion(trace, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluateAssertion(trace []model.TraceStep, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Step: a.Step, Expected: expected, Actual: actual, Trace: trace}
	}

	step, ok := findStep(trace, model.StepName(a.Step))
	if !ok {
		return fail("step present in trace", "missing")
	}

	switch a.Type {
	case AssertStepStatus:
		if string(step.Status) != a.Status {
			return fail("status "+a.Status, "status "+string(step.Status))
		}
	case AssertStepHealth:
		if step.HealthAfter != *a.Value {
			return fail(fmt.Sprintf("health after %d", *a.Value), fmt.Sprintf("health after %d", step.HealthAfter))
		}
	case AssertStepDetail:
		got, ok := step.Details[a.Key]
		if !ok {
			return fail(fmt.Sprintf("detail %s=%q", a.Key, a.Equals), "detail absent")
		}
		if got != a.Equals {
			return fail(fmt.Sprintf("detail %s=%q", a.Key, a.Equals), fmt.Sprintf("detail %s=%q", a.Key, got))
		}
	case AssertStepMessage:
		if !strings.Contains(step.Message, a.Contains) {
			return fail(fmt.Sprintf("message containing %q", a.Contains), fmt.Sprintf("message %q", step.Message))
		}
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
	return nil
}

func findStep(trace []model.TraceStep, name model.StepName) (model.TraceStep, bool) {
	for _, s := range trace {
		if s.Name == name {
			return s, true
		}
	}
	return model.TraceStep{}, false
}
