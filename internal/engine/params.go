package engine

import (
	"fmt"
	"math"
)

// Params are the tunable constants of an evaluation.
type Params struct {
	// BaselineHealth is the health every evaluation starts from.
	BaselineHealth int

	// ShakyWeight is the share of a BROKEN assumption a SHAKY one counts
	// for in the assumption penalty. Range 0..1.
	ShakyWeight float64

	// BrokenThreshold is the broken share of decision-specific assumptions
	// at or above which the decision is invalidated.
	BrokenThreshold float64

	// MaxAssumptionPenalty is the penalty when every decision-specific
	// assumption is broken.
	MaxAssumptionPenalty int

	// ExpiryGraceDays is how many whole days past expiry a decision may be
	// before it is retired.
	ExpiryGraceDays int

	// ExpiryWarningDays is the window before expiry in which decay
	// accelerates towards ExpiryMaxDecay.
	ExpiryWarningDays int

	// ExpiryMaxDecay is the decay applied on the expiry date itself.
	ExpiryMaxDecay int

	// ReviewDecayDays is how many days without review cost one point when
	// no expiry is set.
	ReviewDecayDays int
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		BaselineHealth:       100,
		ShakyWeight:          0.5,
		BrokenThreshold:      0.70,
		MaxAssumptionPenalty: 60,
		ExpiryGraceDays:      30,
		ExpiryWarningDays:    90,
		ExpiryMaxDecay:       30,
		ReviewDecayDays:      30,
	}
}

// Validate reports parameters outside their meaningful range.
func (p Params) Validate() error {
	switch {
	case p.BaselineHealth < 0 || p.BaselineHealth > 100:
		return fmt.Errorf("baseline health %d outside 0..100", p.BaselineHealth)
	case math.IsNaN(p.ShakyWeight) || p.ShakyWeight < 0 || p.ShakyWeight > 1:
		return fmt.Errorf("shaky weight %v outside 0..1", p.ShakyWeight)
	case math.IsNaN(p.BrokenThreshold) || p.BrokenThreshold <= 0 || p.BrokenThreshold > 1:
		return fmt.Errorf("broken threshold %v outside (0, 1]", p.BrokenThreshold)
	case p.MaxAssumptionPenalty < 0 || p.MaxAssumptionPenalty > 100:
		return fmt.Errorf("max assumption penalty %d outside 0..100", p.MaxAssumptionPenalty)
	case p.ExpiryGraceDays < 0:
		return fmt.Errorf("expiry grace days %d is negative", p.ExpiryGraceDays)
	case p.ExpiryWarningDays < 0:
		return fmt.Errorf("expiry warning days %d is negative", p.ExpiryWarningDays)
	case p.ExpiryMaxDecay < 0 || p.ExpiryMaxDecay > 100:
		return fmt.Errorf("expiry max decay %d outside 0..100", p.ExpiryMaxDecay)
	case p.ReviewDecayDays <= 0:
		return fmt.Errorf("review decay days must be positive, got %d", p.ReviewDecayDays)
	}
	return nil
}

// sanitized replaces out-of-range values with defaults so Evaluate never
// divides by zero or compares against NaN.
func (p Params) sanitized() Params {
	d := DefaultParams()
	if p.BaselineHealth < 0 || p.BaselineHealth > 100 {
		p.BaselineHealth = d.BaselineHealth
	}
	if math.IsNaN(p.ShakyWeight) || p.ShakyWeight < 0 || p.ShakyWeight > 1 {
		p.ShakyWeight = d.ShakyWeight
	}
	if math.IsNaN(p.BrokenThreshold) || p.BrokenThreshold <= 0 || p.BrokenThreshold > 1 {
		p.BrokenThreshold = d.BrokenThreshold
	}
	if p.MaxAssumptionPenalty < 0 || p.MaxAssumptionPenalty > 100 {
		p.MaxAssumptionPenalty = d.MaxAssumptionPenalty
	}
	if p.ExpiryGraceDays < 0 {
		p.ExpiryGraceDays = d.ExpiryGraceDays
	}
	if p.ExpiryWarningDays < 0 {
		p.ExpiryWarningDays = d.ExpiryWarningDays
	}
	if p.ExpiryMaxDecay < 0 || p.ExpiryMaxDecay > 100 {
		p.ExpiryMaxDecay = d.ExpiryMaxDecay
	}
	if p.ReviewDecayDays <= 0 {
		p.ReviewDecayDays = d.ReviewDecayDays
	}
	return p
}

// Option configures an Engine.
type Option func(*Params)

// WithParams replaces every parameter at once.
func WithParams(p Params) Option {
	return func(dst *Params) {
		*dst = p
	}
}

// WithShakyWeight sets how much a SHAKY assumption counts towards the
// assumption penalty relative to a BROKEN one.
//
// Default: 0.5. Use WithShakyWeight(0) to ignore SHAKY entirely.
func WithShakyWeight(w float64) Option {
	return func(p *Params) {
		p.ShakyWeight = w
	}
}

// WithBrokenThreshold sets the broken share that invalidates a decision.
func WithBrokenThreshold(t float64) Option {
	return func(p *Params) {
		p.BrokenThreshold = t
	}
}

// WithMaxAssumptionPenalty sets the penalty for a fully broken assumption set.
func WithMaxAssumptionPenalty(n int) Option {
	return func(p *Params) {
		p.MaxAssumptionPenalty = n
	}
}

// WithExpiryGraceDays sets how long past expiry a decision survives.
func WithExpiryGraceDays(days int) Option {
	return func(p *Params) {
		p.ExpiryGraceDays = days
	}
}

// WithExpiryWarningDays sets the accelerating-decay window before expiry.
func WithExpiryWarningDays(days int) Option {
	return func(p *Params) {
		p.ExpiryWarningDays = days
	}
}

// WithExpiryMaxDecay sets the decay reached on the expiry date.
func WithExpiryMaxDecay(n int) Option {
	return func(p *Params) {
		p.ExpiryMaxDecay = n
	}
}

// WithReviewDecayDays sets how many unreviewed days cost one health point.
func WithReviewDecayDays(days int) Option {
	return func(p *Params) {
		p.ReviewDecayDays = days
	}
}
