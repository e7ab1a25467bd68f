package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/driftwatch/internal/model"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateDecision(t *testing.T, s *Store, id string) model.Decision {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateDecision(ctx, model.Decision{ID: id, Title: "decision " + id, CreatedAt: testNow}); err != nil {
		t.Fatalf("CreateDecision(%s) failed: %v", id, err)
	}
	d, err := s.GetDecision(ctx, id)
	if err != nil {
		t.Fatalf("GetDecision(%s) failed: %v", id, err)
	}
	return d
}

func mustCreateAssumption(t *testing.T, s *Store, id string, status model.AssumptionStatus, scope model.Scope) {
	t.Helper()
	err := s.CreateAssumption(context.Background(), model.Assumption{
		ID: id, Description: "assumption " + id, Status: status, Scope: scope, CreatedAt: testNow,
	})
	if err != nil {
		t.Fatalf("CreateAssumption(%s) failed: %v", id, err)
	}
}

func mustCreateConstraint(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.CreateConstraint(context.Background(), model.Constraint{
		ID: id, Description: "constraint " + id, Category: model.CategoryPolicy, CreatedAt: testNow,
	})
	if err != nil {
		t.Fatalf("CreateConstraint(%s) failed: %v", id, err)
	}
}

// testRecord builds a sealed evaluation record moving a decision to the
// given state.
func testRecord(t *testing.T, id string, d model.Decision, health int, lifecycle model.Lifecycle) model.EvaluationRecord {
	t.Helper()
	rec := model.EvaluationRecord{
		ID:                id,
		DecisionID:        d.ID,
		EvaluatedAt:       testNow.Add(time.Hour),
		Trigger:           "test",
		PreviousHealth:    d.HealthSignal,
		NewHealth:         health,
		PreviousLifecycle: d.Lifecycle,
		NewLifecycle:      lifecycle,
		ChangesDetected:   health != d.HealthSignal || lifecycle != d.Lifecycle,
		Trace: []model.TraceStep{
			{Step: 1, Name: model.StepConstraintValidation, Status: model.StepPassed, HealthBefore: 100, HealthAfter: 100, Message: "ok", Details: map[string]string{"linked": "0"}},
			{Step: 2, Name: model.StepDependencyEvaluation, Status: model.StepPassed, HealthBefore: 100, HealthAfter: 100, Message: "ok"},
			{Step: 3, Name: model.StepAssumptionCheck, Status: model.StepPassed, HealthBefore: 100, HealthAfter: 100, Message: "ok"},
			{Step: 4, Name: model.StepHealthDecay, Status: model.StepAdjusted, HealthBefore: 100, HealthAfter: health, Message: "decayed"},
			{Step: 5, Name: model.StepLifecycleDetermination, Status: model.StepPassed, HealthBefore: health, HealthAfter: health, Message: "ok"},
		},
	}
	if err := rec.Seal(); err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	return rec
}
