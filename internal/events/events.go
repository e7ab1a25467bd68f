package events

import (
	"fmt"
	"time"

	"github.com/roach88/driftwatch/internal/model"
)

// Type distinguishes between event kinds.
type Type int

const (
	// TypeAssumptionStatusChanged means an assumption moved between
	// HOLDING, SHAKY and BROKEN.
	TypeAssumptionStatusChanged Type = iota + 1
	// TypeConstraintLinkChanged means a decision-constraint link was
	// created or its violated flag changed.
	TypeConstraintLinkChanged
	// TypeDependencyEvaluated means a decision's health or lifecycle
	// changed during evaluation.
	TypeDependencyEvaluated
)

func (t Type) String() string {
	switch t {
	case TypeAssumptionStatusChanged:
		return "assumption_status_changed"
	case TypeConstraintLinkChanged:
		return "constraint_link_changed"
	case TypeDependencyEvaluated:
		return "dependency_evaluated"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Event is a single input change. Which fields are set depends on Type.
type Event struct {
	Type Type
	At   time.Time

	// AssumptionID is set for TypeAssumptionStatusChanged.
	AssumptionID string
	Status       model.AssumptionStatus

	// DecisionID is the linked decision for TypeConstraintLinkChanged and
	// the evaluated decision for TypeDependencyEvaluated.
	DecisionID string

	// ConstraintID is set for TypeConstraintLinkChanged.
	ConstraintID string

	// HealthSignal and Lifecycle are the new outcome for
	// TypeDependencyEvaluated.
	HealthSignal int
	Lifecycle    model.Lifecycle
}

// AssumptionStatusChanged builds an assumption status event.
func AssumptionStatusChanged(assumptionID string, status model.AssumptionStatus, at time.Time) Event {
	return Event{Type: TypeAssumptionStatusChanged, At: at, AssumptionID: assumptionID, Status: status}
}

// ConstraintLinkChanged builds a constraint link event.
func ConstraintLinkChanged(decisionID, constraintID string, at time.Time) Event {
	return Event{Type: TypeConstraintLinkChanged, At: at, DecisionID: decisionID, ConstraintID: constraintID}
}

// DependencyEvaluated builds a dependency outcome event.
func DependencyEvaluated(decisionID string, health int, lifecycle model.Lifecycle, at time.Time) Event {
	return Event{Type: TypeDependencyEvaluated, At: at, DecisionID: decisionID, HealthSignal: health, Lifecycle: lifecycle}
}
