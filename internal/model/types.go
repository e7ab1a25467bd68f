package model

import "time"

// Lifecycle is the externally visible state of a decision.
type Lifecycle string

const (
	LifecycleStable      Lifecycle = "STABLE"
	LifecycleUnderReview Lifecycle = "UNDER_REVIEW"
	LifecycleAtRisk      Lifecycle = "AT_RISK"
	LifecycleInvalidated Lifecycle = "INVALIDATED"
	LifecycleRetired     Lifecycle = "RETIRED"
)

// Lifecycles lists every lifecycle value in severity order.
var Lifecycles = []Lifecycle{
	LifecycleStable,
	LifecycleUnderReview,
	LifecycleAtRisk,
	LifecycleInvalidated,
	LifecycleRetired,
}

// IsTerminal reports whether automatic evaluation cannot exit the state
// without an explicit external action.
func (l Lifecycle) IsTerminal() bool {
	return l == LifecycleInvalidated || l == LifecycleRetired
}

// Valid reports whether l is a known lifecycle value.
func (l Lifecycle) Valid() bool {
	for _, v := range Lifecycles {
		if v == l {
			return true
		}
	}
	return false
}

// Reason tags why a decision became INVALIDATED or RETIRED.
type Reason string

const (
	ReasonConstraintViolation Reason = "constraint_violation"
	ReasonBrokenAssumptions   Reason = "broken_assumptions"
	ReasonExpired             Reason = "expired"
	ReasonManual              Reason = "manual"
)

// ReasonPtr returns a pointer to r, for optional reason fields.
func ReasonPtr(r Reason) *Reason {
	return &r
}

// AssumptionStatus is a drift model, not a truth model.
type AssumptionStatus string

const (
	StatusHolding AssumptionStatus = "HOLDING"
	StatusShaky   AssumptionStatus = "SHAKY"
	StatusBroken  AssumptionStatus = "BROKEN"
)

// Scope controls which decisions an assumption applies to.
type Scope string

const (
	// ScopeUniversal assumptions apply to every decision without a link.
	ScopeUniversal Scope = "UNIVERSAL"
	// ScopeDecisionSpecific assumptions apply only to linked decisions.
	ScopeDecisionSpecific Scope = "DECISION_SPECIFIC"
)

// ConstraintCategory classifies an organizational fact.
type ConstraintCategory string

const (
	CategoryLegal      ConstraintCategory = "LEGAL"
	CategoryBudget     ConstraintCategory = "BUDGET"
	CategoryPolicy     ConstraintCategory = "POLICY"
	CategoryTechnical  ConstraintCategory = "TECHNICAL"
	CategoryCompliance ConstraintCategory = "COMPLIANCE"
	CategoryOther      ConstraintCategory = "OTHER"
)

// Decision is the unit under monitoring.
//
// LastEvaluatedAt, NeedsEvaluation and EvaluationReason are scheduling
// bookkeeping and are only written by the scheduler. Version is bumped on
// every state write and checked by conditional updates.
type Decision struct {
	ID                string     `json:"id" validate:"required"`
	Title             string     `json:"title"`
	Lifecycle         Lifecycle  `json:"lifecycle" validate:"required,oneof=STABLE UNDER_REVIEW AT_RISK INVALIDATED RETIRED"`
	HealthSignal      int        `json:"health_signal" validate:"min=0,max=100"`
	InvalidatedReason *Reason    `json:"invalidated_reason,omitempty" validate:"omitempty,oneof=constraint_violation broken_assumptions expired manual"`
	CreatedAt         time.Time  `json:"created_at"`
	LastReviewedAt    *time.Time `json:"last_reviewed_at,omitempty"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	LastEvaluatedAt   *time.Time `json:"last_evaluated_at,omitempty"`
	NeedsEvaluation   bool       `json:"needs_evaluation"`
	EvaluationReason  string     `json:"evaluation_reason,omitempty"`
	Version           int64      `json:"version" validate:"min=0"`
}

// Assumption is a globally reusable belief a decision rests on.
type Assumption struct {
	ID          string           `json:"id" validate:"required"`
	Description string           `json:"description"`
	Status      AssumptionStatus `json:"status" validate:"required,oneof=HOLDING SHAKY BROKEN"`
	Scope       Scope            `json:"scope" validate:"required,oneof=UNIVERSAL DECISION_SPECIFIC"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Constraint is an immutable organizational fact.
type Constraint struct {
	ID          string             `json:"id" validate:"required"`
	Description string             `json:"description"`
	Category    ConstraintCategory `json:"category" validate:"required,oneof=LEGAL BUDGET POLICY TECHNICAL COMPLIANCE OTHER"`
	CreatedAt   time.Time          `json:"created_at"`
}

// LinkedConstraint is a constraint as seen from one decision. Violated is
// supplied by the collaborator that owns constraint evaluation.
type LinkedConstraint struct {
	Constraint
	Violated bool `json:"violated"`
}

// DependencyHealth is the slice of a dependency target the engine needs.
type DependencyHealth struct {
	DecisionID   string    `json:"decision_id" validate:"required"`
	HealthSignal int       `json:"health_signal" validate:"min=0,max=100"`
	Lifecycle    Lifecycle `json:"lifecycle" validate:"required,oneof=STABLE UNDER_REVIEW AT_RISK INVALIDATED RETIRED"`
}

// Snapshot is the complete, read-only input for one evaluation.
//
// Assumptions holds the decision-specific assumptions linked to the
// decision plus every UNIVERSAL assumption.
type Snapshot struct {
	Decision     Decision           `json:"decision"`
	Assumptions  []Assumption       `json:"assumptions" validate:"dive"`
	Constraints  []LinkedConstraint `json:"constraints" validate:"dive"`
	Dependencies []DependencyHealth `json:"dependencies" validate:"dive"`
}

// StepName identifies one of the five evaluation steps.
type StepName string

const (
	StepConstraintValidation   StepName = "constraint_validation"
	StepDependencyEvaluation   StepName = "dependency_evaluation"
	StepAssumptionCheck        StepName = "assumption_check"
	StepHealthDecay            StepName = "health_decay"
	StepLifecycleDetermination StepName = "lifecycle_determination"
)

// StepStatus is the outcome of a single evaluation step.
type StepStatus string

const (
	StepPassed   StepStatus = "passed"
	StepAdjusted StepStatus = "adjusted"
	StepFailed   StepStatus = "failed"
	StepSkipped  StepStatus = "skipped"
)

// TraceStep records what one evaluation step decided.
type TraceStep struct {
	Step         int               `json:"step"`
	Name         StepName          `json:"name"`
	Status       StepStatus        `json:"status"`
	HealthBefore int               `json:"health_before"`
	HealthAfter  int               `json:"health_after"`
	Message      string            `json:"message"`
	Details      map[string]string `json:"details,omitempty"`
}

// EvaluationRecord is the immutable audit row written for every persisted
// evaluation. ContentHash covers every other field.
type EvaluationRecord struct {
	ID                string      `json:"id"`
	DecisionID        string      `json:"decision_id"`
	EvaluatedAt       time.Time   `json:"evaluated_at"`
	Trigger           string      `json:"trigger"`
	PreviousHealth    int         `json:"previous_health"`
	NewHealth         int         `json:"new_health"`
	PreviousLifecycle Lifecycle   `json:"previous_lifecycle"`
	NewLifecycle      Lifecycle   `json:"new_lifecycle"`
	InvalidatedReason *Reason     `json:"invalidated_reason,omitempty"`
	ChangesDetected   bool        `json:"changes_detected"`
	Trace             []TraceStep `json:"trace"`
	ContentHash       string      `json:"content_hash"`
}
