package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDependency(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		mustCreateDecision(t, s, id)
	}

	require.NoError(t, s.AddDependency(ctx, "a", "b"))
	require.NoError(t, s.AddDependency(ctx, "b", "c"))
	require.NoError(t, s.AddDependency(ctx, "a", "c"), "diamond edges are fine")
	require.NoError(t, s.AddDependency(ctx, "a", "b"), "existing edge is a no-op")

	deps, err := s.ListDependencies(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, deps)

	dependents, err := s.ListDependents(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, dependents)
}

func TestAddDependency_RejectsCycles(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		mustCreateDecision(t, s, id)
	}
	require.NoError(t, s.AddDependency(ctx, "a", "b"))
	require.NoError(t, s.AddDependency(ctx, "b", "c"))

	tests := []struct {
		name     string
		from, to string
	}{
		{"self", "a", "a"},
		{"direct", "b", "a"},
		{"transitive", "c", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.AddDependency(ctx, tt.from, tt.to)
			assert.ErrorIs(t, err, ErrDependencyCycle)
		})
	}

	deps, err := s.ListDependencies(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, deps, "rejected edges are not written")
}

func TestAddDependency_MissingDecision(t *testing.T) {
	s := createTestStore(t)
	mustCreateDecision(t, s, "a")

	assert.ErrorIs(t, s.AddDependency(context.Background(), "a", "ghost"), ErrNotFound)
	assert.ErrorIs(t, s.AddDependency(context.Background(), "ghost", "a"), ErrNotFound)
}

func TestAddDependency_DepthBound(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), WithMaxDependencyDepth(3))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	// chain: n0 -> n1 -> n2 -> n3
	for i := 0; i <= 3; i++ {
		mustCreateDecision(t, s, fmt.Sprintf("n%d", i))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AddDependency(ctx, fmt.Sprintf("n%d", i), fmt.Sprintf("n%d", i+1)))
	}

	// Walking from n0 needs more than three levels.
	mustCreateDecision(t, s, "top")
	err = s.AddDependency(ctx, "top", "n0")
	assert.ErrorIs(t, err, ErrDependencyCycle)
	assert.Contains(t, err.Error(), "deeper than 3")

	// Shallow targets are still accepted.
	require.NoError(t, s.AddDependency(ctx, "top", "n2"))
}

func TestRemoveDependency(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustCreateDecision(t, s, "a")
	mustCreateDecision(t, s, "b")
	require.NoError(t, s.AddDependency(ctx, "a", "b"))

	require.NoError(t, s.RemoveDependency(ctx, "a", "b"))
	require.NoError(t, s.RemoveDependency(ctx, "a", "b"))

	deps, err := s.ListDependencies(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, deps)
	require.NoError(t, s.AddDependency(ctx, "b", "a"), "reverse edge allowed once removed")
}
