package engine

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/driftwatch/internal/model"
)

const day = 24 * time.Hour

// stepOrder is the fixed order of trace entries.
var stepOrder = []model.StepName{
	model.StepConstraintValidation,
	model.StepDependencyEvaluation,
	model.StepAssumptionCheck,
	model.StepHealthDecay,
	model.StepLifecycleDetermination,
}

// run holds the mutable state of a single evaluation.
type run struct {
	params Params
	snap   model.Snapshot
	now    time.Time

	health    int
	lifecycle model.Lifecycle
	reason    *model.Reason

	// haltedBy is the step that forced a terminal outcome, or "".
	haltedBy model.StepName

	trace []model.TraceStep
}

func (r *run) record(status model.StepStatus, before int, msg string, details map[string]string) {
	step := len(r.trace) + 1
	r.trace = append(r.trace, model.TraceStep{
		Step:         step,
		Name:         stepOrder[step-1],
		Status:       status,
		HealthBefore: before,
		HealthAfter:  r.health,
		Message:      msg,
		Details:      details,
	})
}

// skipIfHalted records a skipped step and returns true when an earlier
// step already fixed the outcome.
func (r *run) skipIfHalted() bool {
	if r.haltedBy == "" {
		return false
	}
	r.record(model.StepSkipped, r.health, fmt.Sprintf("outcome fixed by %s", r.haltedBy), nil)
	return true
}

// halt forces a terminal outcome.
func (r *run) halt(step model.StepName, lifecycle model.Lifecycle, reason model.Reason) {
	r.health = 0
	r.lifecycle = lifecycle
	r.reason = model.ReasonPtr(reason)
	r.haltedBy = step
}

// checkConstraints is step 1.
func (r *run) checkConstraints() {
	if r.skipIfHalted() {
		return
	}
	before := r.health

	var violated []string
	for _, c := range r.snap.Constraints {
		if c.Violated {
			violated = append(violated, c.ID)
		}
	}
	sort.Strings(violated)

	details := map[string]string{"linked": strconv.Itoa(len(r.snap.Constraints))}
	if len(violated) == 0 {
		r.record(model.StepPassed, before, "no linked constraint is violated", details)
		return
	}

	details["violated"] = strings.Join(violated, ",")
	r.halt(model.StepConstraintValidation, model.LifecycleInvalidated, model.ReasonConstraintViolation)
	r.record(model.StepFailed, before, fmt.Sprintf("%d linked constraint(s) violated", len(violated)), details)
}

// evaluateDependencies is step 2. Dependencies lower health but never
// invalidate on their own.
func (r *run) evaluateDependencies() {
	if r.skipIfHalted() {
		return
	}
	before := r.health

	deps := r.snap.Dependencies
	if len(deps) == 0 {
		r.record(model.StepPassed, before, "no dependencies", map[string]string{"count": "0"})
		return
	}

	sorted := make([]model.DependencyHealth, len(deps))
	copy(sorted, deps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DecisionID < sorted[j].DecisionID })

	weakest := sorted[0]
	for _, d := range sorted[1:] {
		if d.HealthSignal < weakest.HealthSignal {
			weakest = d
		}
	}

	details := map[string]string{
		"count":   strconv.Itoa(len(deps)),
		"weakest": weakest.DecisionID,
		"floor":   strconv.Itoa(weakest.HealthSignal),
	}
	if weakest.HealthSignal >= r.health {
		r.record(model.StepPassed, before, "dependencies are at least as healthy", details)
		return
	}

	r.health = weakest.HealthSignal
	r.record(model.StepAdjusted, before, fmt.Sprintf("health floored at dependency %s", weakest.DecisionID), details)
}

// checkAssumptions is step 3.
func (r *run) checkAssumptions() {
	if r.skipIfHalted() {
		return
	}
	before := r.health

	var universalBroken []string
	var total, broken, shaky int
	for _, a := range r.snap.Assumptions {
		if a.Scope == model.ScopeUniversal {
			if a.Status == model.StatusBroken {
				universalBroken = append(universalBroken, a.ID)
			}
			continue
		}
		total++
		switch a.Status {
		case model.StatusBroken:
			broken++
		case model.StatusShaky:
			shaky++
		}
	}
	sort.Strings(universalBroken)

	details := map[string]string{
		"specific": strconv.Itoa(total),
		"broken":   strconv.Itoa(broken),
		"shaky":    strconv.Itoa(shaky),
	}

	if len(universalBroken) > 0 {
		details["universal_broken"] = strings.Join(universalBroken, ",")
		r.halt(model.StepAssumptionCheck, model.LifecycleInvalidated, model.ReasonBrokenAssumptions)
		r.record(model.StepFailed, before, "universal assumption broken", details)
		return
	}

	if total == 0 {
		r.record(model.StepPassed, before, "no decision-specific assumptions", details)
		return
	}

	brokenFraction := float64(broken) / float64(total)
	details["broken_fraction"] = strconv.FormatFloat(brokenFraction, 'f', 4, 64)
	if brokenFraction >= r.params.BrokenThreshold {
		r.halt(model.StepAssumptionCheck, model.LifecycleInvalidated, model.ReasonBrokenAssumptions)
		r.record(model.StepFailed, before, "broken share reached threshold", details)
		return
	}

	weighted := (float64(broken) + r.params.ShakyWeight*float64(shaky)) / float64(total)
	penalty := int(math.Round(weighted * float64(r.params.MaxAssumptionPenalty)))
	details["penalty"] = strconv.Itoa(penalty)
	if penalty == 0 {
		r.record(model.StepPassed, before, "assumptions holding", details)
		return
	}

	r.health = max(0, r.health-penalty)
	r.record(model.StepAdjusted, before, fmt.Sprintf("assumption penalty %d", penalty), details)
}

// applyDecay is step 4.
func (r *run) applyDecay() {
	if r.skipIfHalted() {
		return
	}
	before := r.health
	d := r.snap.Decision

	var decay int
	details := map[string]string{}

	if d.ExpiryDate != nil {
		expiry := *d.ExpiryDate
		details["mode"] = "expiry"
		if r.now.After(expiry) {
			daysPast := int(r.now.Sub(expiry) / day)
			details["days_past_expiry"] = strconv.Itoa(daysPast)
			if daysPast > r.params.ExpiryGraceDays {
				r.halt(model.StepHealthDecay, model.LifecycleRetired, model.ReasonExpired)
				r.record(model.StepFailed, before, fmt.Sprintf("expired %d days ago", daysPast), details)
				return
			}
			decay = r.params.ExpiryMaxDecay + daysPast
		} else {
			daysUntil := int(expiry.Sub(r.now) / day)
			details["days_until_expiry"] = strconv.Itoa(daysUntil)
			decay = expiryDecay(daysUntil, r.params.ExpiryWarningDays, r.params.ExpiryMaxDecay)
		}
	} else {
		ref := d.CreatedAt
		if d.LastReviewedAt != nil {
			ref = *d.LastReviewedAt
		}
		days := max(0, int(r.now.Sub(ref)/day))
		details["mode"] = "review_age"
		details["days_since_review"] = strconv.Itoa(days)
		decay = days / r.params.ReviewDecayDays
	}

	details["decay"] = strconv.Itoa(decay)
	if decay == 0 {
		r.record(model.StepPassed, before, "no decay", details)
		return
	}

	r.health = max(0, r.health-decay)
	r.record(model.StepAdjusted, before, fmt.Sprintf("decayed by %d", decay), details)
}

// expiryDecay grows quadratically from 0 at the start of the warning
// window to maxDecay on the expiry date.
func expiryDecay(daysUntil, window, maxDecay int) int {
	if window <= 0 {
		if daysUntil <= 0 {
			return maxDecay
		}
		return 0
	}
	if daysUntil >= window {
		return 0
	}
	elapsed := window - daysUntil
	return maxDecay * elapsed * elapsed / (window * window)
}

// determineLifecycle is step 5.
func (r *run) determineLifecycle() {
	if r.skipIfHalted() {
		return
	}
	before := r.health

	incoming := r.snap.Decision.Lifecycle
	r.lifecycle = LifecycleForHealth(r.health)
	r.reason = nil

	details := map[string]string{
		"from": string(incoming),
		"to":   string(r.lifecycle),
	}
	if r.lifecycle == incoming {
		r.record(model.StepPassed, before, fmt.Sprintf("remains %s", r.lifecycle), details)
		return
	}
	r.record(model.StepAdjusted, before, fmt.Sprintf("%s -> %s", incoming, r.lifecycle), details)
}
