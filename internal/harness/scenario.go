package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/driftwatch/internal/engine"
	"github.com/roach88/driftwatch/internal/model"
)

// Scenario is one pinned evaluation with its expected outcome.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Now is the evaluation time.
	Now time.Time `yaml:"now"`

	// Params overrides engine parameters. Unset fields keep defaults.
	Params *ParamsOverride `yaml:"params,omitempty"`

	Decision     DecisionInput     `yaml:"decision"`
	Assumptions  []AssumptionInput `yaml:"assumptions,omitempty"`
	Constraints  []ConstraintInput `yaml:"constraints,omitempty"`
	Dependencies []DependencyInput `yaml:"dependencies,omitempty"`

	Expect     Expectation `yaml:"expect"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// DecisionInput is the decision under evaluation. Lifecycle defaults to
// STABLE and health to 100.
type DecisionInput struct {
	ID                string     `yaml:"id"`
	Lifecycle         string     `yaml:"lifecycle,omitempty"`
	HealthSignal      *int       `yaml:"health_signal,omitempty"`
	InvalidatedReason string     `yaml:"invalidated_reason,omitempty"`
	CreatedAt         time.Time  `yaml:"created_at"`
	LastReviewedAt    *time.Time `yaml:"last_reviewed_at,omitempty"`
	ExpiryDate        *time.Time `yaml:"expiry_date,omitempty"`
}

// AssumptionInput defaults to DECISION_SPECIFIC scope.
type AssumptionInput struct {
	ID     string `yaml:"id"`
	Status string `yaml:"status"`
	Scope  string `yaml:"scope,omitempty"`
}

// ConstraintInput defaults to category OTHER.
type ConstraintInput struct {
	ID       string `yaml:"id"`
	Category string `yaml:"category,omitempty"`
	Violated bool   `yaml:"violated"`
}

// DependencyInput defaults its lifecycle from its health.
type DependencyInput struct {
	ID           string `yaml:"id"`
	HealthSignal int    `yaml:"health_signal"`
	Lifecycle    string `yaml:"lifecycle,omitempty"`
}

type ParamsOverride struct {
	ShakyWeight          *float64 `yaml:"shaky_weight,omitempty"`
	BrokenThreshold      *float64 `yaml:"broken_threshold,omitempty"`
	MaxAssumptionPenalty *int     `yaml:"max_assumption_penalty,omitempty"`
	ExpiryGraceDays      *int     `yaml:"expiry_grace_days,omitempty"`
	ExpiryWarningDays    *int     `yaml:"expiry_warning_days,omitempty"`
	ExpiryMaxDecay       *int     `yaml:"expiry_max_decay,omitempty"`
	ReviewDecayDays      *int     `yaml:"review_decay_days,omitempty"`
}

// Expectation lists outcome fields to check. Nil fields are not checked.
// An empty InvalidatedReason expects no reason.
type Expectation struct {
	HealthSignal      *int    `yaml:"health_signal,omitempty"`
	Lifecycle         string  `yaml:"lifecycle,omitempty"`
	InvalidatedReason *string `yaml:"invalidated_reason,omitempty"`
	ChangesDetected   *bool   `yaml:"changes_detected,omitempty"`
}

func (e Expectation) empty() bool {
	return e.HealthSignal == nil && e.Lifecycle == "" && e.InvalidatedReason == nil && e.ChangesDetected == nil
}

// LoadScenario reads and validates a scenario file. Unknown keys are
// rejected so typos do not silently disable a check.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	switch {
	case s.Name == "":
		return fmt.Errorf("name is required")
	case s.Description == "":
		return fmt.Errorf("description is required")
	case s.Now.IsZero():
		return fmt.Errorf("now is required")
	case s.Decision.ID == "":
		return fmt.Errorf("decision.id is required")
	case s.Decision.CreatedAt.IsZero():
		return fmt.Errorf("decision.created_at is required")
	case s.Expect.empty() && len(s.Assertions) == 0:
		return fmt.Errorf("expect or assertions is required")
	}

	for i, a := range s.Assertions {
		if err := a.validate(); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

// Snapshot builds the engine input.
func (s *Scenario) Snapshot() (model.Snapshot, error) {
	d := s.Decision
	health := 100
	if d.HealthSignal != nil {
		health = *d.HealthSignal
	}
	lifecycle := model.LifecycleStable
	if d.Lifecycle != "" {
		lifecycle = model.Lifecycle(d.Lifecycle)
	}

	snap := model.Snapshot{
		Decision: model.Decision{
			ID:             d.ID,
			Lifecycle:      lifecycle,
			HealthSignal:   health,
			CreatedAt:      d.CreatedAt.UTC(),
			LastReviewedAt: utcPtr(d.LastReviewedAt),
			ExpiryDate:     utcPtr(d.ExpiryDate),
		},
		Assumptions:  make([]model.Assumption, 0, len(s.Assumptions)),
		Constraints:  make([]model.LinkedConstraint, 0, len(s.Constraints)),
		Dependencies: make([]model.DependencyHealth, 0, len(s.Dependencies)),
	}
	if d.InvalidatedReason != "" {
		snap.Decision.InvalidatedReason = model.ReasonPtr(model.Reason(d.InvalidatedReason))
	}

	for _, a := range s.Assumptions {
		scope := model.ScopeDecisionSpecific
		if a.Scope != "" {
			scope = model.Scope(a.Scope)
		}
		snap.Assumptions = append(snap.Assumptions, model.Assumption{
			ID: a.ID, Status: model.AssumptionStatus(a.Status), Scope: scope,
		})
	}
	for _, c := range s.Constraints {
		category := model.CategoryOther
		if c.Category != "" {
			category = model.ConstraintCategory(c.Category)
		}
		snap.Constraints = append(snap.Constraints, model.LinkedConstraint{
			Constraint: model.Constraint{ID: c.ID, Category: category},
			Violated:   c.Violated,
		})
	}
	for _, dep := range s.Dependencies {
		lc := engine.LifecycleForHealth(dep.HealthSignal)
		if dep.Lifecycle != "" {
			lc = model.Lifecycle(dep.Lifecycle)
		}
		snap.Dependencies = append(snap.Dependencies, model.DependencyHealth{
			DecisionID: dep.ID, HealthSignal: dep.HealthSignal, Lifecycle: lc,
		})
	}

	if err := snap.Validate(); err != nil {
		return model.Snapshot{}, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return snap, nil
}

// EngineParams applies the overrides to the defaults.
func (s *Scenario) EngineParams() engine.Params {
	p := engine.DefaultParams()
	o := s.Params
	if o == nil {
		return p
	}
	if o.ShakyWeight != nil {
		p.ShakyWeight = *o.ShakyWeight
	}
	if o.BrokenThreshold != nil {
		p.BrokenThreshold = *o.BrokenThreshold
	}
	if o.MaxAssumptionPenalty != nil {
		p.MaxAssumptionPenalty = *o.MaxAssumptionPenalty
	}
	if o.ExpiryGraceDays != nil {
		p.ExpiryGraceDays = *o.ExpiryGraceDays
	}
	if o.ExpiryWarningDays != nil {
		p.ExpiryWarningDays = *o.ExpiryWarningDays
	}
	if o.ExpiryMaxDecay != nil {
		p.ExpiryMaxDecay = *o.ExpiryMaxDecay
	}
	if o.ReviewDecayDays != nil {
		p.ReviewDecayDays = *o.ReviewDecayDays
	}
	return p
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
