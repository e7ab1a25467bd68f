package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainEvaluation separates evaluation record hashes from any other
// content hash. The version suffix allows the algorithm to change.
const DomainEvaluation = "driftwatch/evaluation/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ComputeContentHash hashes every field of the record except ContentHash.
// Timestamps are hashed as Unix milliseconds, matching storage precision.
func (r EvaluationRecord) ComputeContentHash() (string, error) {
	canonical, err := MarshalCanonical(r.canonicalMap())
	if err != nil {
		return "", fmt.Errorf("evaluation content hash: %w", err)
	}
	return hashWithDomain(DomainEvaluation, canonical), nil
}

// Seal sets ContentHash from the current field values.
func (r *EvaluationRecord) Seal() error {
	h, err := r.ComputeContentHash()
	if err != nil {
		return err
	}
	r.ContentHash = h
	return nil
}

// Verify reports whether ContentHash still matches the record's fields.
func (r EvaluationRecord) Verify() (bool, error) {
	h, err := r.ComputeContentHash()
	if err != nil {
		return false, err
	}
	return h == r.ContentHash, nil
}

func (r EvaluationRecord) canonicalMap() map[string]any {
	trace := make([]any, len(r.Trace))
	for i, step := range r.Trace {
		trace[i] = step.canonicalMap()
	}

	m := map[string]any{
		"id":                 r.ID,
		"decision_id":        r.DecisionID,
		"evaluated_at":       r.EvaluatedAt.UnixMilli(),
		"trigger":            r.Trigger,
		"previous_health":    r.PreviousHealth,
		"new_health":         r.NewHealth,
		"previous_lifecycle": string(r.PreviousLifecycle),
		"new_lifecycle":      string(r.NewLifecycle),
		"changes_detected":   r.ChangesDetected,
		"trace":              trace,
	}
	if r.InvalidatedReason != nil {
		m["invalidated_reason"] = string(*r.InvalidatedReason)
	}
	return m
}

// CanonicalTrace returns the canonical JSON encoding of a trace. Used for
// golden comparisons and for storage.
func CanonicalTrace(trace []TraceStep) ([]byte, error) {
	steps := make([]any, len(trace))
	for i, step := range trace {
		steps[i] = step.canonicalMap()
	}
	return MarshalCanonical(steps)
}

func (s TraceStep) canonicalMap() map[string]any {
	m := map[string]any{
		"step":          s.Step,
		"name":          string(s.Name),
		"status":        string(s.Status),
		"health_before": s.HealthBefore,
		"health_after":  s.HealthAfter,
		"message":       s.Message,
	}
	if len(s.Details) > 0 {
		details := make(map[string]any, len(s.Details))
		for k, v := range s.Details {
			details[k] = v
		}
		m["details"] = details
	}
	return m
}
