package scheduler

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/driftwatch/internal/engine"
	"github.com/roach88/driftwatch/internal/model"
	"github.com/roach88/driftwatch/internal/store"
	"github.com/roach88/driftwatch/internal/testutil"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *store.Store
	clock *testutil.FakeClock
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := openStore(t)
	return newFixtureWithStore(t, st, st, opts...)
}

// newFixtureWithStore lets tests wrap the real store in the Store the
// service sees.
func newFixtureWithStore(t *testing.T, real *store.Store, seen Store, opts ...Option) *fixture {
	t.Helper()
	clock := testutil.NewFakeClock(t0)
	base := []Option{
		WithClock(clock),
		WithIDGenerator(testutil.NewSequenceGenerator("eval")),
		WithLogger(quietLogger()),
	}
	svc := New(seen, engine.New(), append(base, opts...)...)
	return &fixture{svc: svc, store: real, clock: clock}
}

func (f *fixture) decision(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.CreateDecision(context.Background(), model.Decision{
		ID: id, Title: "decision " + id, CreatedAt: f.clock.Now(),
	}))
}

func (f *fixture) assumption(t *testing.T, id string, status model.AssumptionStatus, scope model.Scope) {
	t.Helper()
	require.NoError(t, f.store.CreateAssumption(context.Background(), model.Assumption{
		ID: id, Status: status, Scope: scope, CreatedAt: f.clock.Now(),
	}))
}

func (f *fixture) constraint(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.CreateConstraint(context.Background(), model.Constraint{
		ID: id, Category: model.CategoryCompliance, CreatedAt: f.clock.Now(),
	}))
}

func (f *fixture) get(t *testing.T, id string) model.Decision {
	t.Helper()
	d, err := f.store.GetDecision(context.Background(), id)
	require.NoError(t, err)
	return d
}

func (f *fixture) records(t *testing.T, id string) []model.EvaluationRecord {
	t.Helper()
	recs, err := f.store.ListEvaluations(context.Background(), id, 0)
	require.NoError(t, err)
	return recs
}

// evaluate forces an evaluation and requires it to persist.
func (f *fixture) evaluate(t *testing.T, id string) *EvaluationResult {
	t.Helper()
	res, err := f.svc.EvaluateIfNeeded(context.Background(), id, true)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.True(t, res.Persisted)
	return res
}
