package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/driftwatch/internal/engine"
	"github.com/roach88/driftwatch/internal/model"
)

// MarshalGolden renders an outcome as indented canonical JSON: keys
// sorted, one trailing newline.
func MarshalGolden(name string, out engine.Result) ([]byte, error) {
	head := map[string]any{
		"scenario":         name,
		"health_signal":    out.NewHealthSignal,
		"lifecycle":        string(out.NewLifecycle),
		"changes_detected": out.ChangesDetected,
	}
	if out.InvalidatedReason != nil {
		head["invalidated_reason"] = string(*out.InvalidatedReason)
	}
	headJSON, err := model.MarshalCanonical(head)
	if err != nil {
		return nil, fmt.Errorf("marshal golden %s: %w", name, err)
	}
	traceJSON, err := model.CanonicalTrace(out.Trace)
	if err != nil {
		return nil, fmt.Errorf("marshal golden %s: %w", name, err)
	}

	// "trace" sorts after every head key, so appending keeps the
	// document canonical.
	var doc bytes.Buffer
	doc.Write(headJSON[:len(headJSON)-1])
	doc.WriteString(`,"trace":`)
	doc.Write(traceJSON)
	doc.WriteByte('}')

	var buf bytes.Buffer
	if err := json.Indent(&buf, doc.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indent golden %s: %w", name, err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// RunWithGolden runs a scenario, requires it to pass, and compares its
// outcome with testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) *Result {
	t.Helper()

	result, err := Run(s)
	if err != nil {
		t.Fatalf("run scenario %s: %v", s.Name, err)
	}
	if !result.Pass {
		t.Errorf("scenario %s failed:\n%v", s.Name, result.Errors)
	}
	AssertGolden(t, s.Name, result)
	return result
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	data, err := MarshalGolden(name, result.Outcome)
	if err != nil {
		t.Fatal(err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
