package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/driftwatch/internal/model"
)

func TestCreateDecision_Defaults(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	expiry := testNow.Add(90 * 24 * time.Hour)

	require.NoError(t, s.CreateDecision(ctx, model.Decision{
		ID:         "dec-1",
		Title:      "Adopt SQLite",
		Lifecycle:  model.LifecycleAtRisk,
		CreatedAt:  testNow,
		ExpiryDate: &expiry,
	}))

	d, err := s.GetDecision(ctx, "dec-1")
	require.NoError(t, err)
	assert.Equal(t, "Adopt SQLite", d.Title)
	assert.Equal(t, model.LifecycleStable, d.Lifecycle)
	assert.Equal(t, 100, d.HealthSignal)
	assert.True(t, d.NeedsEvaluation)
	assert.Equal(t, ReasonCreated, d.EvaluationReason)
	assert.Nil(t, d.LastEvaluatedAt)
	assert.Equal(t, int64(0), d.Version)
	assert.True(t, testNow.Equal(d.CreatedAt))
	require.NotNil(t, d.ExpiryDate)
	assert.True(t, expiry.Equal(*d.ExpiryDate))
}

func TestCreateDecision_Duplicate(t *testing.T) {
	s := createTestStore(t)
	mustCreateDecision(t, s, "dec-1")

	err := s.CreateDecision(context.Background(), model.Decision{ID: "dec-1", CreatedAt: testNow})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreateDecision_EmptyID(t *testing.T) {
	s := createTestStore(t)
	assert.Error(t, s.CreateDecision(context.Background(), model.Decision{CreatedAt: testNow}))
}

func TestSaveEvaluation_WritesStateAndRecord(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	d := mustCreateDecision(t, s, "dec-1")

	rec := testRecord(t, "eval-1", d, 72, model.LifecycleUnderReview)
	version, err := s.SaveEvaluation(ctx, rec, d.Version)
	require.NoError(t, err)
	assert.Equal(t, d.Version+1, version)

	got, err := s.GetDecision(ctx, "dec-1")
	require.NoError(t, err)
	assert.Equal(t, 72, got.HealthSignal)
	assert.Equal(t, model.LifecycleUnderReview, got.Lifecycle)
	assert.False(t, got.NeedsEvaluation)
	assert.Empty(t, got.EvaluationReason)
	require.NotNil(t, got.LastEvaluatedAt)
	assert.True(t, rec.EvaluatedAt.Equal(*got.LastEvaluatedAt))
	assert.Equal(t, version, got.Version)

	stored, err := s.GetEvaluation(ctx, "eval-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ContentHash, stored.ContentHash)
	assert.Equal(t, rec.Trace, stored.Trace)
	ok, err := stored.Verify()
	require.NoError(t, err)
	assert.True(t, ok, "stored record must verify against its content hash")
}

func TestSaveEvaluation_VersionConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	d := mustCreateDecision(t, s, "dec-1")

	// Another writer flags the decision after it was loaded.
	_, err := s.MarkForEvaluation(ctx, []string{"dec-1"}, "assumption_changed", testNow)
	require.NoError(t, err)

	_, err = s.SaveEvaluation(ctx, testRecord(t, "eval-1", d, 50, model.LifecycleAtRisk), d.Version)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := s.GetDecision(ctx, "dec-1")
	require.NoError(t, err)
	assert.Equal(t, 100, got.HealthSignal, "conflicting write must not apply")
	assert.True(t, got.NeedsEvaluation)

	records, err := s.ListEvaluations(ctx, "dec-1", 0)
	require.NoError(t, err)
	assert.Empty(t, records, "no audit record on conflict")
}

func TestSaveEvaluation_MissingDecision(t *testing.T) {
	s := createTestStore(t)
	d := model.Decision{ID: "ghost", Lifecycle: model.LifecycleStable, HealthSignal: 100}

	_, err := s.SaveEvaluation(context.Background(), testRecord(t, "eval-1", d, 90, model.LifecycleStable), 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveEvaluation_DuplicateRecordRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	d := mustCreateDecision(t, s, "dec-1")

	v, err := s.SaveEvaluation(ctx, testRecord(t, "eval-1", d, 90, model.LifecycleStable), d.Version)
	require.NoError(t, err)

	_, err = s.SaveEvaluation(ctx, testRecord(t, "eval-1", d, 40, model.LifecycleAtRisk), v)
	require.ErrorIs(t, err, ErrAlreadyExists)

	got, err := s.GetDecision(ctx, "dec-1")
	require.NoError(t, err)
	assert.Equal(t, 90, got.HealthSignal, "decision update must roll back with the record insert")
	assert.Equal(t, v, got.Version)
}

func TestMarkForEvaluation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	d1 := mustCreateDecision(t, s, "dec-1")
	mustCreateDecision(t, s, "dec-2")
	mustCreateDecision(t, s, "dec-3")

	_, err := s.SaveEvaluation(ctx, testRecord(t, "eval-1", d1, 100, model.LifecycleStable), d1.Version)
	require.NoError(t, err)
	require.NoError(t, s.Retire(ctx, "dec-3"))

	n, err := s.MarkForEvaluation(ctx, []string{"dec-1", "dec-2", "dec-3", "missing"}, "constraint_changed", testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "retired and unknown ids are ignored")

	got, err := s.GetDecision(ctx, "dec-1")
	require.NoError(t, err)
	assert.True(t, got.NeedsEvaluation)
	assert.Equal(t, "constraint_changed", got.EvaluationReason)

	retired, err := s.GetDecision(ctx, "dec-3")
	require.NoError(t, err)
	assert.False(t, retired.NeedsEvaluation)
}

func TestMarkForEvaluation_ManyIDs(t *testing.T) {
	s := createTestStore(t)
	ids := make([]string, 0, maxIDsPerQuery+20)
	for i := 0; i < maxIDsPerQuery+20; i++ {
		ids = append(ids, fmt.Sprintf("missing-%04d", i))
	}

	n, err := s.MarkForEvaluation(context.Background(), ids, "bulk", testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMarkReviewed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	d := mustCreateDecision(t, s, "dec-1")
	require.NoError(t, s.Invalidate(ctx, "dec-1"))

	reviewedAt := testNow.Add(48 * time.Hour)
	require.NoError(t, s.MarkReviewed(ctx, "dec-1", reviewedAt))

	got, err := s.GetDecision(ctx, "dec-1")
	require.NoError(t, err)
	assert.Equal(t, model.LifecycleStable, got.Lifecycle)
	assert.Equal(t, 100, got.HealthSignal)
	assert.Nil(t, got.InvalidatedReason)
	assert.True(t, got.NeedsEvaluation)
	assert.Equal(t, ReasonReviewed, got.EvaluationReason)
	require.NotNil(t, got.LastReviewedAt)
	assert.True(t, reviewedAt.Equal(*got.LastReviewedAt))
	assert.Greater(t, got.Version, d.Version)
}

func TestMarkReviewed_KeepsNonTerminalState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	d := mustCreateDecision(t, s, "dec-1")
	_, err := s.SaveEvaluation(ctx, testRecord(t, "eval-1", d, 65, model.LifecycleUnderReview), d.Version)
	require.NoError(t, err)

	require.NoError(t, s.MarkReviewed(ctx, "dec-1", testNow))

	got, err := s.GetDecision(ctx, "dec-1")
	require.NoError(t, err)
	assert.Equal(t, model.LifecycleUnderReview, got.Lifecycle)
	assert.Equal(t, 65, got.HealthSignal)
}

func TestHumanActions_Retired(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustCreateDecision(t, s, "dec-1")
	require.NoError(t, s.Retire(ctx, "dec-1"))

	got, err := s.GetDecision(ctx, "dec-1")
	require.NoError(t, err)
	assert.Equal(t, model.LifecycleRetired, got.Lifecycle)
	require.NotNil(t, got.InvalidatedReason)
	assert.Equal(t, model.ReasonManual, *got.InvalidatedReason)

	assert.ErrorIs(t, s.Retire(ctx, "dec-1"), ErrRetired)
	assert.ErrorIs(t, s.Invalidate(ctx, "dec-1"), ErrRetired)
	assert.ErrorIs(t, s.MarkReviewed(ctx, "dec-1", testNow), ErrRetired)
	assert.ErrorIs(t, s.SetExpiry(ctx, "dec-1", nil, testNow), ErrRetired)
}

func TestHumanActions_NotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Retire(ctx, "ghost"), ErrNotFound)
	assert.ErrorIs(t, s.Invalidate(ctx, "ghost"), ErrNotFound)
	assert.ErrorIs(t, s.MarkReviewed(ctx, "ghost", testNow), ErrNotFound)
}

func TestSetExpiry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustCreateDecision(t, s, "dec-1")
	expiry := testNow.Add(10 * 24 * time.Hour)

	require.NoError(t, s.SetExpiry(ctx, "dec-1", &expiry, testNow))
	got, err := s.GetDecision(ctx, "dec-1")
	require.NoError(t, err)
	require.NotNil(t, got.ExpiryDate)
	assert.True(t, expiry.Equal(*got.ExpiryDate))
	assert.Equal(t, "expiry_changed", got.EvaluationReason)

	require.NoError(t, s.SetExpiry(ctx, "dec-1", nil, testNow))
	got, err = s.GetDecision(ctx, "dec-1")
	require.NoError(t, err)
	assert.Nil(t, got.ExpiryDate)
}

func TestSetAssumptionStatus(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustCreateAssumption(t, s, "a-1", model.StatusHolding, model.ScopeDecisionSpecific)

	changed, err := s.SetAssumptionStatus(ctx, "a-1", model.StatusShaky, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.SetAssumptionStatus(ctx, "a-1", model.StatusShaky, testNow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	a, err := s.GetAssumption(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusShaky, a.Status)
	assert.True(t, testNow.Add(time.Hour).Equal(a.UpdatedAt))

	_, err = s.SetAssumptionStatus(ctx, "ghost", model.StatusBroken, testNow)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLinkAssumption(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustCreateDecision(t, s, "dec-1")
	mustCreateAssumption(t, s, "a-1", model.StatusHolding, model.ScopeDecisionSpecific)
	mustCreateAssumption(t, s, "u-1", model.StatusHolding, model.ScopeUniversal)

	require.NoError(t, s.LinkAssumption(ctx, "dec-1", "a-1"))
	require.NoError(t, s.LinkAssumption(ctx, "dec-1", "a-1"), "linking twice is a no-op")

	assert.ErrorIs(t, s.LinkAssumption(ctx, "dec-1", "u-1"), ErrInvalidLink)
	assert.ErrorIs(t, s.LinkAssumption(ctx, "dec-1", "ghost"), ErrNotFound)
	assert.ErrorIs(t, s.LinkAssumption(ctx, "ghost", "a-1"), ErrNotFound)
}

func TestLinkConstraint(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustCreateDecision(t, s, "dec-1")
	mustCreateConstraint(t, s, "c-1")

	changed, err := s.LinkConstraint(ctx, "dec-1", "c-1", false)
	require.NoError(t, err)
	assert.True(t, changed, "new link")

	changed, err = s.LinkConstraint(ctx, "dec-1", "c-1", false)
	require.NoError(t, err)
	assert.False(t, changed, "same flag")

	changed, err = s.LinkConstraint(ctx, "dec-1", "c-1", true)
	require.NoError(t, err)
	assert.True(t, changed, "flag flipped")

	snap, err := s.LoadSnapshot(ctx, "dec-1")
	require.NoError(t, err)
	require.Len(t, snap.Constraints, 1)
	assert.True(t, snap.Constraints[0].Violated)

	_, err = s.LinkConstraint(ctx, "dec-1", "ghost", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateConstraint_Duplicate(t *testing.T) {
	s := createTestStore(t)
	mustCreateConstraint(t, s, "c-1")

	err := s.CreateConstraint(context.Background(), model.Constraint{ID: "c-1", Category: model.CategoryLegal, CreatedAt: testNow})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestChunkIDs(t *testing.T) {
	ids := make([]string, 1001)
	chunks := chunkIDs(ids)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 500)
	assert.Len(t, chunks[2], 1)
	assert.Empty(t, chunkIDs(nil))
	assert.Equal(t, "?,?,?", placeholders(3))
	assert.Equal(t, "", placeholders(0))
}
