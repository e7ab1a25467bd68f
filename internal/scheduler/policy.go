package scheduler

import (
	"time"

	"github.com/roach88/driftwatch/internal/model"
	"github.com/roach88/driftwatch/internal/store"
)

// Reason explains a staleness verdict.
type Reason string

const (
	ReasonFlagged        Reason = "flagged"
	ReasonNeverEvaluated Reason = "never_evaluated"
	ReasonStale          Reason = "stale"
	ReasonExpiryWindow   Reason = "expiry_window"
	ReasonFresh          Reason = "fresh"
	ReasonRetired        Reason = "retired"
	ReasonHeld           Reason = "manually_invalidated"
	ReasonForced         Reason = "forced"
)

// Staleness is the verdict of Policy.Check.
type Staleness struct {
	Needed bool
	Reason Reason
	// Detail is the stored evaluation reason for flagged decisions.
	Detail string
}

// Trigger is the value recorded in the audit trail for an evaluation
// started because of this verdict.
func (s Staleness) Trigger() string {
	if s.Reason == ReasonFlagged && s.Detail != "" {
		return string(s.Reason) + ":" + s.Detail
	}
	return string(s.Reason)
}

// Policy holds the staleness thresholds.
type Policy struct {
	// StaleAfter is the evaluation age after which a decision is stale.
	StaleAfter time.Duration
	// ExpiryWindow is the distance from the expiry date, on either side,
	// inside which decisions are re-checked more often.
	ExpiryWindow time.Duration
}

// DefaultPolicy returns 24 hours staleness and a 30 day expiry window.
func DefaultPolicy() Policy {
	return Policy{
		StaleAfter:   24 * time.Hour,
		ExpiryWindow: 30 * 24 * time.Hour,
	}
}

// ExpiryRecheck is the minimum evaluation age for the expiry window rule.
func (p Policy) ExpiryRecheck() time.Duration {
	return min(p.StaleAfter, 24*time.Hour)
}

// Check decides whether d needs evaluation at now. Reasons are tried in
// priority order: flagged, never evaluated, stale, expiry window.
func (p Policy) Check(d model.Decision, now time.Time) Staleness {
	switch {
	case d.Lifecycle == model.LifecycleRetired:
		return Staleness{Reason: ReasonRetired}
	case d.Lifecycle == model.LifecycleInvalidated && d.InvalidatedReason != nil && *d.InvalidatedReason == model.ReasonManual:
		return Staleness{Reason: ReasonHeld}
	case d.NeedsEvaluation:
		return Staleness{Needed: true, Reason: ReasonFlagged, Detail: d.EvaluationReason}
	case d.LastEvaluatedAt == nil:
		return Staleness{Needed: true, Reason: ReasonNeverEvaluated}
	}

	age := now.Sub(*d.LastEvaluatedAt)
	if age > p.StaleAfter {
		return Staleness{Needed: true, Reason: ReasonStale}
	}

	if d.ExpiryDate != nil && age > p.ExpiryRecheck() {
		dist := d.ExpiryDate.Sub(now)
		if dist < 0 {
			dist = -dist
		}
		if dist <= p.ExpiryWindow {
			return Staleness{Needed: true, Reason: ReasonExpiryWindow}
		}
	}

	return Staleness{Reason: ReasonFresh}
}

// query expresses the policy as a store query.
func (p Policy) query(now time.Time, limit int) store.NeedingQuery {
	return store.NeedingQuery{
		Now:           now,
		StaleAfter:    p.StaleAfter,
		ExpiryWindow:  p.ExpiryWindow,
		ExpiryRecheck: p.ExpiryRecheck(),
		Limit:         limit,
	}
}
