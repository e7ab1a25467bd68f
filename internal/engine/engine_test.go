package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/driftwatch/internal/model"
)

var evalTime = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := evalTime.Add(-time.Duration(n) * day)
	return &t
}

func daysAhead(n int) *time.Time {
	t := evalTime.Add(time.Duration(n) * day)
	return &t
}

// cleanSnapshot is a healthy decision evaluated on the day it was created.
func cleanSnapshot() model.Snapshot {
	return model.Snapshot{
		Decision: model.Decision{
			ID:           "dec-1",
			Title:        "Use SQLite for the audit store",
			Lifecycle:    model.LifecycleStable,
			HealthSignal: 100,
			CreatedAt:    evalTime,
		},
	}
}

func specific(id string, status model.AssumptionStatus) model.Assumption {
	return model.Assumption{ID: id, Status: status, Scope: model.ScopeDecisionSpecific}
}

func universal(id string, status model.AssumptionStatus) model.Assumption {
	return model.Assumption{ID: id, Status: status, Scope: model.ScopeUniversal}
}

func specificSet(broken, shaky, holding int) []model.Assumption {
	var out []model.Assumption
	n := 0
	add := func(count int, status model.AssumptionStatus) {
		for i := 0; i < count; i++ {
			n++
			out = append(out, specific(fmt.Sprintf("a-%02d", n), status))
		}
	}
	add(broken, model.StatusBroken)
	add(shaky, model.StatusShaky)
	add(holding, model.StatusHolding)
	return out
}

func statuses(trace []model.TraceStep) []model.StepStatus {
	out := make([]model.StepStatus, len(trace))
	for i, s := range trace {
		out[i] = s.Status
	}
	return out
}

// =============================================================================
// Clean and ordering
// =============================================================================

func TestEvaluate_CleanDecision(t *testing.T) {
	res := New().Evaluate(cleanSnapshot(), evalTime)

	assert.Equal(t, 100, res.NewHealthSignal)
	assert.Equal(t, model.LifecycleStable, res.NewLifecycle)
	assert.Nil(t, res.InvalidatedReason)
	assert.False(t, res.ChangesDetected)
	assert.Equal(t, []model.StepStatus{
		model.StepPassed, model.StepPassed, model.StepPassed, model.StepPassed, model.StepPassed,
	}, statuses(res.Trace))
}

func TestEvaluate_TraceOrder(t *testing.T) {
	res := New().Evaluate(cleanSnapshot(), evalTime)

	require.Len(t, res.Trace, 5)
	for i, name := range []model.StepName{
		model.StepConstraintValidation,
		model.StepDependencyEvaluation,
		model.StepAssumptionCheck,
		model.StepHealthDecay,
		model.StepLifecycleDetermination,
	} {
		assert.Equal(t, i+1, res.Trace[i].Step)
		assert.Equal(t, name, res.Trace[i].Name)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	snap := cleanSnapshot()
	snap.Decision.ExpiryDate = daysAhead(20)
	snap.Assumptions = append(specificSet(1, 2, 3), universal("u-1", model.StatusShaky))
	snap.Dependencies = []model.DependencyHealth{
		{DecisionID: "dec-9", HealthSignal: 85, Lifecycle: model.LifecycleStable},
		{DecisionID: "dec-3", HealthSignal: 85, Lifecycle: model.LifecycleStable},
	}

	eng := New()
	first := eng.Evaluate(snap, evalTime)
	for i := 0; i < 20; i++ {
		again := eng.Evaluate(snap, evalTime)
		require.Equal(t, first, again, "run %d differs", i)
	}
	assert.Len(t, first.Trace, 5)
}

func TestEvaluate_InputOrderDoesNotMatter(t *testing.T) {
	a := cleanSnapshot()
	a.Constraints = []model.LinkedConstraint{
		{Constraint: model.Constraint{ID: "c-2"}, Violated: true},
		{Constraint: model.Constraint{ID: "c-1"}, Violated: true},
	}
	b := cleanSnapshot()
	b.Constraints = []model.LinkedConstraint{a.Constraints[1], a.Constraints[0]}

	eng := New()
	assert.Equal(t, eng.Evaluate(a, evalTime), eng.Evaluate(b, evalTime))
}

func TestEvaluate_DoesNotMutateInput(t *testing.T) {
	snap := cleanSnapshot()
	snap.Dependencies = []model.DependencyHealth{
		{DecisionID: "dec-z", HealthSignal: 50, Lifecycle: model.LifecycleAtRisk},
		{DecisionID: "dec-a", HealthSignal: 90, Lifecycle: model.LifecycleStable},
	}

	New().Evaluate(snap, evalTime)

	assert.Equal(t, "dec-z", snap.Dependencies[0].DecisionID)
	assert.Equal(t, "dec-a", snap.Dependencies[1].DecisionID)
}

// =============================================================================
// Step 1: constraints
// =============================================================================

func TestEvaluate_ConstraintViolationDominates(t *testing.T) {
	snap := cleanSnapshot()
	snap.Constraints = []model.LinkedConstraint{
		{Constraint: model.Constraint{ID: "c-1", Category: model.CategoryLegal}, Violated: false},
		{Constraint: model.Constraint{ID: "c-2", Category: model.CategoryBudget}, Violated: true},
	}
	snap.Assumptions = []model.Assumption{universal("u-1", model.StatusBroken)}
	snap.Dependencies = []model.DependencyHealth{{DecisionID: "dec-2", HealthSignal: 10, Lifecycle: model.LifecycleAtRisk}}
	snap.Decision.ExpiryDate = daysAgo(90)

	res := New().Evaluate(snap, evalTime)

	assert.Equal(t, 0, res.NewHealthSignal)
	assert.Equal(t, model.LifecycleInvalidated, res.NewLifecycle)
	require.NotNil(t, res.InvalidatedReason)
	assert.Equal(t, model.ReasonConstraintViolation, *res.InvalidatedReason)
	assert.True(t, res.ChangesDetected)
	assert.Equal(t, []model.StepStatus{
		model.StepFailed, model.StepSkipped, model.StepSkipped, model.StepSkipped, model.StepSkipped,
	}, statuses(res.Trace))
	assert.Equal(t, "c-2", res.Trace[0].Details["violated"])
	assert.Equal(t, "2", res.Trace[0].Details["linked"])
}

func TestEvaluate_UnviolatedConstraintsPass(t *testing.T) {
	snap := cleanSnapshot()
	snap.Constraints = []model.LinkedConstraint{
		{Constraint: model.Constraint{ID: "c-1", Category: model.CategoryPolicy}},
	}

	res := New().Evaluate(snap, evalTime)

	assert.Equal(t, model.StepPassed, res.Trace[0].Status)
	assert.Equal(t, 100, res.NewHealthSignal)
}

// =============================================================================
// Step 2: dependencies
// =============================================================================

func TestEvaluate_DependencyAtThirty(t *testing.T) {
	snap := cleanSnapshot()
	snap.Dependencies = []model.DependencyHealth{
		{DecisionID: "dec-2", HealthSignal: 30, Lifecycle: model.LifecycleAtRisk},
	}

	res := New().Evaluate(snap, evalTime)

	assert.LessOrEqual(t, res.NewHealthSignal, 30)
	assert.Equal(t, model.LifecycleAtRisk, res.NewLifecycle)
	assert.Nil(t, res.InvalidatedReason)
	assert.Equal(t, model.StepAdjusted, res.Trace[1].Status)
	assert.Equal(t, "dec-2", res.Trace[1].Details["weakest"])
}

func TestEvaluate_DependencyFloorNeverInvalidates(t *testing.T) {
	eng := New()
	for _, depHealth := range []int{0, 1, 25, 39, 40, 59, 60, 79, 80, 100} {
		t.Run(fmt.Sprintf("dep=%d", depHealth), func(t *testing.T) {
			snap := cleanSnapshot()
			snap.Dependencies = []model.DependencyHealth{
				{DecisionID: "dec-2", HealthSignal: depHealth, Lifecycle: model.LifecycleInvalidated},
				{DecisionID: "dec-3", HealthSignal: 100, Lifecycle: model.LifecycleStable},
			}

			res := eng.Evaluate(snap, evalTime)

			assert.Equal(t, min(100, depHealth), res.NewHealthSignal)
			assert.Equal(t, LifecycleForHealth(depHealth), res.NewLifecycle)
			assert.NotEqual(t, model.LifecycleInvalidated, res.NewLifecycle)
			assert.Nil(t, res.InvalidatedReason)
		})
	}
}

func TestEvaluate_HealthierDependenciesPass(t *testing.T) {
	snap := cleanSnapshot()
	snap.Dependencies = []model.DependencyHealth{
		{DecisionID: "dec-2", HealthSignal: 100, Lifecycle: model.LifecycleStable},
	}

	res := New().Evaluate(snap, evalTime)

	assert.Equal(t, model.StepPassed, res.Trace[1].Status)
	assert.Equal(t, 100, res.NewHealthSignal)
}

func TestEvaluate_WeakestDependencyTieBreaksById(t *testing.T) {
	snap := cleanSnapshot()
	snap.Dependencies = []model.DependencyHealth{
		{DecisionID: "dec-b", HealthSignal: 50, Lifecycle: model.LifecycleAtRisk},
		{DecisionID: "dec-a", HealthSignal: 50, Lifecycle: model.LifecycleAtRisk},
	}

	res := New().Evaluate(snap, evalTime)

	assert.Equal(t, "dec-a", res.Trace[1].Details["weakest"])
}

// =============================================================================
// Step 3: assumptions
// =============================================================================

func TestEvaluate_UniversalBrokenAssumption(t *testing.T) {
	snap := cleanSnapshot()
	snap.Assumptions = []model.Assumption{
		universal("u-1", model.StatusBroken),
		specific("a-1", model.StatusHolding),
	}

	res := New().Evaluate(snap, evalTime)

	assert.Equal(t, 0, res.NewHealthSignal)
	assert.Equal(t, model.LifecycleInvalidated, res.NewLifecycle)
	require.NotNil(t, res.InvalidatedReason)
	assert.Equal(t, model.ReasonBrokenAssumptions, *res.InvalidatedReason)
	assert.Equal(t, []model.StepStatus{
		model.StepPassed, model.StepPassed, model.StepFailed, model.StepSkipped, model.StepSkipped,
	}, statuses(res.Trace))
	assert.Equal(t, "u-1", res.Trace[2].Details["universal_broken"])
}

func TestEvaluate_UniversalShakyDoesNotCount(t *testing.T) {
	snap := cleanSnapshot()
	snap.Assumptions = []model.Assumption{universal("u-1", model.StatusShaky)}

	res := New().Evaluate(snap, evalTime)

	assert.Equal(t, 100, res.NewHealthSignal)
	assert.Equal(t, model.StepPassed, res.Trace[2].Status)
}

func TestEvaluate_OneOfThreeBroken(t *testing.T) {
	snap := cleanSnapshot()
	snap.Assumptions = specificSet(1, 0, 2)

	res := New().Evaluate(snap, evalTime)

	assert.Equal(t, 80, res.NewHealthSignal)
	assert.Equal(t, model.LifecycleStable, res.NewLifecycle)
	assert.Equal(t, "20", res.Trace[2].Details["penalty"])
	assert.Equal(t, "0.3333", res.Trace[2].Details["broken_fraction"])
	assert.Equal(t, model.StepAdjusted, res.Trace[2].Status)
}

func TestEvaluate_BrokenThreshold(t *testing.T) {
	tests := []struct {
		name        string
		broken      int
		shaky       int
		holding     int
		wantHealth  int
		invalidated bool
	}{
		{name: "7 of 10 broken", broken: 7, holding: 3, wantHealth: 0, invalidated: true},
		{name: "all broken", broken: 4, wantHealth: 0, invalidated: true},
		{name: "6 of 10 broken", broken: 6, holding: 4, wantHealth: 64},
		{name: "6 broken 4 shaky", broken: 6, shaky: 4, wantHealth: 52},
		{name: "2 of 3 broken", broken: 2, holding: 1, wantHealth: 60},
	}

	eng := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := cleanSnapshot()
			snap.Assumptions = specificSet(tt.broken, tt.shaky, tt.holding)

			res := eng.Evaluate(snap, evalTime)

			assert.Equal(t, tt.wantHealth, res.NewHealthSignal)
			if tt.invalidated {
				assert.Equal(t, model.LifecycleInvalidated, res.NewLifecycle)
				require.NotNil(t, res.InvalidatedReason)
				assert.Equal(t, model.ReasonBrokenAssumptions, *res.InvalidatedReason)
			} else {
				assert.NotEqual(t, model.LifecycleInvalidated, res.NewLifecycle)
				assert.Nil(t, res.InvalidatedReason)
			}
		})
	}
}

func TestEvaluate_ShakyWeightIsTunable(t *testing.T) {
	tests := []struct {
		weight     float64
		wantHealth int
		want       model.Lifecycle
	}{
		{weight: 0, wantHealth: 100, want: model.LifecycleStable},
		{weight: 0.5, wantHealth: 70, want: model.LifecycleUnderReview},
		{weight: 1, wantHealth: 40, want: model.LifecycleAtRisk},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("weight=%v", tt.weight), func(t *testing.T) {
			snap := cleanSnapshot()
			snap.Assumptions = specificSet(0, 2, 0)

			res := New(WithShakyWeight(tt.weight)).Evaluate(snap, evalTime)

			assert.Equal(t, tt.wantHealth, res.NewHealthSignal)
			assert.Equal(t, tt.want, res.NewLifecycle)
		})
	}
}

func TestEvaluate_CustomBrokenThreshold(t *testing.T) {
	snap := cleanSnapshot()
	snap.Assumptions = specificSet(1, 0, 1)

	res := New(WithBrokenThreshold(0.5)).Evaluate(snap, evalTime)

	assert.Equal(t, model.LifecycleInvalidated, res.NewLifecycle)
}

// =============================================================================
// Step 4: decay and expiry
// =============================================================================

func TestEvaluate_ExpiryBoundary(t *testing.T) {
	tests := []struct {
		name    string
		expiry  *time.Time
		retired bool
	}{
		{name: "exactly 30 days past", expiry: daysAgo(30), retired: false},
		{name: "30 days and 23 hours past", expiry: ptr(evalTime.Add(-30*day - 23*time.Hour)), retired: false},
		{name: "31 days past", expiry: daysAgo(31), retired: true},
		{name: "400 days past", expiry: daysAgo(400), retired: true},
	}

	eng := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := cleanSnapshot()
			snap.Decision.ExpiryDate = tt.expiry

			res := eng.Evaluate(snap, evalTime)

			if tt.retired {
				assert.Equal(t, model.LifecycleRetired, res.NewLifecycle)
				assert.Equal(t, 0, res.NewHealthSignal)
				require.NotNil(t, res.InvalidatedReason)
				assert.Equal(t, model.ReasonExpired, *res.InvalidatedReason)
				assert.Equal(t, model.StepFailed, res.Trace[3].Status)
				assert.Equal(t, model.StepSkipped, res.Trace[4].Status)
				return
			}
			assert.NotEqual(t, model.LifecycleRetired, res.NewLifecycle)
			assert.Nil(t, res.InvalidatedReason)
		})
	}
}

func TestEvaluate_GraceWindowDecay(t *testing.T) {
	snap := cleanSnapshot()
	snap.Decision.ExpiryDate = daysAgo(30)

	res := New().Evaluate(snap, evalTime)

	// max decay 30 plus 30 days past expiry.
	assert.Equal(t, 40, res.NewHealthSignal)
	assert.Equal(t, model.LifecycleAtRisk, res.NewLifecycle)
}

func TestEvaluate_ExpiryDecayAccelerates(t *testing.T) {
	tests := []struct {
		daysUntil  int
		wantHealth int
	}{
		{daysUntil: 120, wantHealth: 100},
		{daysUntil: 90, wantHealth: 100},
		{daysUntil: 60, wantHealth: 97},
		{daysUntil: 45, wantHealth: 93},
		{daysUntil: 30, wantHealth: 87},
		{daysUntil: 10, wantHealth: 77},
		{daysUntil: 0, wantHealth: 70},
	}

	eng := New()
	prevDecay := -1
	for _, tt := range tests {
		t.Run(fmt.Sprintf("until=%d", tt.daysUntil), func(t *testing.T) {
			snap := cleanSnapshot()
			snap.Decision.ExpiryDate = daysAhead(tt.daysUntil)

			res := eng.Evaluate(snap, evalTime)

			assert.Equal(t, tt.wantHealth, res.NewHealthSignal)
			decay := 100 - res.NewHealthSignal
			assert.GreaterOrEqual(t, decay, prevDecay)
			prevDecay = decay
		})
	}
}

func TestEvaluate_ReviewAgeDecay(t *testing.T) {
	tests := []struct {
		name       string
		created    *time.Time
		reviewed   *time.Time
		wantHealth int
	}{
		{name: "created today", created: daysAgo(0), wantHealth: 100},
		{name: "29 days unreviewed", created: daysAgo(29), wantHealth: 100},
		{name: "95 days unreviewed", created: daysAgo(95), wantHealth: 97},
		{name: "reviewed recently", created: daysAgo(400), reviewed: daysAgo(10), wantHealth: 100},
		{name: "reviewed long ago", created: daysAgo(900), reviewed: daysAgo(600), wantHealth: 80},
		{name: "created in the future", created: daysAhead(5), wantHealth: 100},
	}

	eng := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := cleanSnapshot()
			snap.Decision.CreatedAt = *tt.created
			snap.Decision.LastReviewedAt = tt.reviewed

			res := eng.Evaluate(snap, evalTime)

			assert.Equal(t, tt.wantHealth, res.NewHealthSignal)
			assert.Equal(t, "review_age", res.Trace[3].Details["mode"])
		})
	}
}

func TestEvaluate_DecayFloorsAtZero(t *testing.T) {
	snap := cleanSnapshot()
	snap.Decision.CreatedAt = *daysAgo(30 * 500)
	snap.Dependencies = []model.DependencyHealth{{DecisionID: "dec-2", HealthSignal: 5, Lifecycle: model.LifecycleAtRisk}}

	res := New().Evaluate(snap, evalTime)

	assert.Equal(t, 0, res.NewHealthSignal)
	assert.Equal(t, model.LifecycleAtRisk, res.NewLifecycle)
}

// =============================================================================
// Step 5 and terminal states
// =============================================================================

func TestLifecycleForHealth(t *testing.T) {
	tests := []struct {
		health int
		want   model.Lifecycle
	}{
		{100, model.LifecycleStable},
		{80, model.LifecycleStable},
		{79, model.LifecycleUnderReview},
		{60, model.LifecycleUnderReview},
		{59, model.LifecycleAtRisk},
		{40, model.LifecycleAtRisk},
		{39, model.LifecycleAtRisk},
		{0, model.LifecycleAtRisk},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LifecycleForHealth(tt.health), "health %d", tt.health)
	}
}

func TestEvaluate_InvalidatedRecovers(t *testing.T) {
	snap := cleanSnapshot()
	snap.Decision.Lifecycle = model.LifecycleInvalidated
	snap.Decision.HealthSignal = 0
	snap.Decision.InvalidatedReason = model.ReasonPtr(model.ReasonConstraintViolation)
	snap.Constraints = []model.LinkedConstraint{{Constraint: model.Constraint{ID: "c-1"}, Violated: false}}

	res := New().Evaluate(snap, evalTime)

	assert.Equal(t, 100, res.NewHealthSignal)
	assert.Equal(t, model.LifecycleStable, res.NewLifecycle)
	assert.Nil(t, res.InvalidatedReason)
	assert.True(t, res.ChangesDetected)
	assert.Equal(t, model.StepAdjusted, res.Trace[4].Status)
	assert.Equal(t, "INVALIDATED", res.Trace[4].Details["from"])
}

func TestEvaluate_InvalidatedStaysWhenRetriggered(t *testing.T) {
	snap := cleanSnapshot()
	snap.Decision.Lifecycle = model.LifecycleInvalidated
	snap.Decision.HealthSignal = 0
	snap.Decision.InvalidatedReason = model.ReasonPtr(model.ReasonConstraintViolation)
	snap.Constraints = []model.LinkedConstraint{{Constraint: model.Constraint{ID: "c-1"}, Violated: true}}

	res := New().Evaluate(snap, evalTime)

	assert.Equal(t, model.LifecycleInvalidated, res.NewLifecycle)
	assert.False(t, res.ChangesDetected)
}

func TestEvaluate_RetiredIsPermanent(t *testing.T) {
	snap := cleanSnapshot()
	snap.Decision.Lifecycle = model.LifecycleRetired
	snap.Decision.HealthSignal = 40
	snap.Decision.InvalidatedReason = model.ReasonPtr(model.ReasonManual)
	snap.Constraints = []model.LinkedConstraint{{Constraint: model.Constraint{ID: "c-1"}, Violated: true}}

	res := New().Evaluate(snap, evalTime)

	assert.Equal(t, model.LifecycleRetired, res.NewLifecycle)
	assert.Equal(t, 40, res.NewHealthSignal)
	require.NotNil(t, res.InvalidatedReason)
	assert.Equal(t, model.ReasonManual, *res.InvalidatedReason)
	assert.False(t, res.ChangesDetected)
	require.Len(t, res.Trace, 5)
	for _, step := range res.Trace {
		assert.Equal(t, model.StepSkipped, step.Status)
	}
}

func TestEvaluate_ChangesDetected(t *testing.T) {
	tests := []struct {
		name      string
		health    int
		lifecycle model.Lifecycle
		want      bool
	}{
		{name: "unchanged", health: 100, lifecycle: model.LifecycleStable, want: false},
		{name: "health differs", health: 90, lifecycle: model.LifecycleStable, want: true},
		{name: "lifecycle differs", health: 100, lifecycle: model.LifecycleAtRisk, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := cleanSnapshot()
			snap.Decision.HealthSignal = tt.health
			snap.Decision.Lifecycle = tt.lifecycle

			assert.Equal(t, tt.want, New().Evaluate(snap, evalTime).ChangesDetected)
		})
	}
}

// TestEvaluate_HealthNeverSolelyInvalidates sweeps the non-hard-fail input
// space and checks that no combination yields INVALIDATED.
func TestEvaluate_HealthNeverSolelyInvalidates(t *testing.T) {
	eng := New()
	for _, depHealth := range []int{0, 20, 50, 100} {
		for broken := 0; broken <= 6; broken += 2 {
			for _, shaky := range []int{0, 4} {
				for _, age := range []int{0, 400, 3000} {
					snap := cleanSnapshot()
					snap.Decision.CreatedAt = *daysAgo(age)
					snap.Decision.Lifecycle = model.LifecycleInvalidated
					snap.Decision.InvalidatedReason = model.ReasonPtr(model.ReasonManual)
					snap.Assumptions = specificSet(broken, shaky, 10-broken-shaky)
					snap.Dependencies = []model.DependencyHealth{
						{DecisionID: "dec-2", HealthSignal: depHealth, Lifecycle: model.LifecycleAtRisk},
					}

					res := eng.Evaluate(snap, evalTime)

					require.NotEqual(t, model.LifecycleInvalidated, res.NewLifecycle,
						"dep=%d broken=%d shaky=%d age=%d health=%d", depHealth, broken, shaky, age, res.NewHealthSignal)
				}
			}
		}
	}
}

// =============================================================================
// Params
// =============================================================================

func TestParams_DefaultsValid(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())
}

func TestParams_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"baseline", func(p *Params) { p.BaselineHealth = 101 }},
		{"shaky weight", func(p *Params) { p.ShakyWeight = 1.5 }},
		{"threshold zero", func(p *Params) { p.BrokenThreshold = 0 }},
		{"penalty", func(p *Params) { p.MaxAssumptionPenalty = -1 }},
		{"grace", func(p *Params) { p.ExpiryGraceDays = -1 }},
		{"warning", func(p *Params) { p.ExpiryWarningDays = -1 }},
		{"max decay", func(p *Params) { p.ExpiryMaxDecay = 500 }},
		{"review decay", func(p *Params) { p.ReviewDecayDays = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestNew_SanitizesParams(t *testing.T) {
	eng := New(WithShakyWeight(7), WithReviewDecayDays(0), WithBrokenThreshold(0.9))

	p := eng.Params()
	assert.Equal(t, 0.5, p.ShakyWeight)
	assert.Equal(t, 30, p.ReviewDecayDays)
	assert.Equal(t, 0.9, p.BrokenThreshold)
}

func TestNew_WithParams(t *testing.T) {
	p := DefaultParams()
	p.MaxAssumptionPenalty = 30
	eng := New(WithParams(p))

	snap := cleanSnapshot()
	snap.Assumptions = specificSet(1, 0, 1)

	assert.Equal(t, 85, eng.Evaluate(snap, evalTime).NewHealthSignal)
}

func TestExpiryDecay_ZeroWindow(t *testing.T) {
	assert.Equal(t, 0, expiryDecay(5, 0, 30))
	assert.Equal(t, 30, expiryDecay(0, 0, 30))
}

func ptr[T any](v T) *T {
	return &v
}
