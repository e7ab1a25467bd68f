package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/driftwatch/internal/model"
)

// toMillis converts a timestamp to its stored form.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// fromMillis converts a stored timestamp back to UTC.
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// nullMillis converts an optional timestamp to a nullable column value.
func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

// timePtr converts a nullable column value to an optional timestamp.
func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullReason(r *model.Reason) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*r), Valid: true}
}

func reasonPtr(v sql.NullString) *model.Reason {
	if !v.Valid || v.String == "" {
		return nil
	}
	return model.ReasonPtr(model.Reason(v.String))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// marshalTrace converts a trace to canonical JSON TEXT for storage.
func marshalTrace(trace []model.TraceStep) (string, error) {
	data, err := model.CanonicalTrace(trace)
	if err != nil {
		return "", fmt.Errorf("marshal trace: %w", err)
	}
	return string(data), nil
}

// unmarshalTrace parses stored trace JSON.
func unmarshalTrace(data string) ([]model.TraceStep, error) {
	if data == "" || data == "[]" {
		return []model.TraceStep{}, nil
	}
	var trace []model.TraceStep
	if err := json.Unmarshal([]byte(data), &trace); err != nil {
		return nil, fmt.Errorf("unmarshal trace: %w", err)
	}
	return trace, nil
}
