package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_SweepOnce(t *testing.T) {
	f := newFixture(t)
	f.decision(t, "dec-1")
	f.decision(t, "dec-2")

	sw := NewSweeper(f.svc, time.Minute, time.Minute)
	res, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Evaluated)

	f.clock.Advance(25 * time.Hour)
	res, err = sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Evaluated)
	for _, r := range res.Results {
		assert.Equal(t, "stale", r.Record.Trigger)
	}
}

func TestSweeper_DefaultInterval(t *testing.T) {
	f := newFixture(t)
	sw := NewSweeper(f.svc, 0, 0)
	assert.Equal(t, 5*time.Minute, sw.interval)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.decision(t, "dec-1")

	ctx, cancel := context.WithCancel(context.Background())
	sw := NewSweeper(f.svc, time.Hour, 0)

	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	require.Eventually(t, func() bool {
		d, err := f.store.GetDecision(context.Background(), "dec-1")
		return err == nil && !d.NeedsEvaluation
	}, 5*time.Second, 10*time.Millisecond, "first sweep runs immediately")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
