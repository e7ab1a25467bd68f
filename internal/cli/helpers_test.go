package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/driftwatch/internal/testutil"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// pinClock fixes the time seen by commands for the rest of the test.
func pinClock(t *testing.T) *testutil.FakeClock {
	t.Helper()
	clock := testutil.NewFakeClock(testStart)
	clockOverride = clock
	t.Cleanup(func() { clockOverride = nil })
	return clock
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "driftwatch.db")
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

// executeJSON runs a command against db with --format json, requires it
// to succeed and returns the decoded data payload.
func executeJSON(t *testing.T, db string, args ...string) map[string]any {
	t.Helper()
	out, err := execute(t, append([]string{"--db", db, "--format", "json"}, args...)...)
	require.NoError(t, err, out)
	return decodeData(t, out)
}

func decodeData(t *testing.T, out string) map[string]any {
	t.Helper()
	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	return resp.Data
}

func mustExec(t *testing.T, db string, args ...string) string {
	t.Helper()
	out, err := execute(t, append([]string{"--db", db}, args...)...)
	require.NoError(t, err, out)
	return out
}
