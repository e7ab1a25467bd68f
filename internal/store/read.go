package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/driftwatch/internal/model"
)

const decisionColumns = `
	id, title, lifecycle, health_signal, invalidated_reason, created_at,
	last_reviewed_at, expiry_date, last_evaluated_at, needs_evaluation,
	evaluation_reason, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (model.Decision, error) {
	var (
		d                                 model.Decision
		lifecycle                         string
		reason                            sql.NullString
		createdAt                         int64
		reviewedAt, expiry, lastEvaluated sql.NullInt64
		needs                             int
	)
	err := row.Scan(
		&d.ID, &d.Title, &lifecycle, &d.HealthSignal, &reason, &createdAt,
		&reviewedAt, &expiry, &lastEvaluated, &needs,
		&d.EvaluationReason, &d.Version,
	)
	if err != nil {
		return model.Decision{}, err
	}
	d.Lifecycle = model.Lifecycle(lifecycle)
	d.InvalidatedReason = reasonPtr(reason)
	d.CreatedAt = fromMillis(createdAt)
	d.LastReviewedAt = timePtr(reviewedAt)
	d.ExpiryDate = timePtr(expiry)
	d.LastEvaluatedAt = timePtr(lastEvaluated)
	d.NeedsEvaluation = needs != 0
	return d, nil
}

// GetDecision retrieves a decision by ID. Returns ErrNotFound if missing.
func (s *Store) GetDecision(ctx context.Context, id string) (model.Decision, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE id = ?`, id)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Decision{}, fmt.Errorf("decision %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Decision{}, fmt.Errorf("get decision %s: %w", id, err)
	}
	return d, nil
}

// ListDecisions returns decisions ordered by id, optionally filtered by
// lifecycle. Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListDecisions(ctx context.Context, lifecycle model.Lifecycle) ([]model.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions`
	var args []any
	if lifecycle != "" {
		query += ` WHERE lifecycle = ?`
		args = append(args, string(lifecycle))
	}
	query += ` ORDER BY id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	decisions := []model.Decision{}
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return decisions, nil
}

// GetAssumption retrieves an assumption by ID. Returns ErrNotFound if missing.
func (s *Store) GetAssumption(ctx context.Context, id string) (model.Assumption, error) {
	var (
		a                    model.Assumption
		status, scope        string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, description, status, scope, created_at, updated_at
		FROM assumptions WHERE id = ?
	`, id).Scan(&a.ID, &a.Description, &status, &scope, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assumption{}, fmt.Errorf("assumption %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Assumption{}, fmt.Errorf("get assumption %s: %w", id, err)
	}
	a.Status = model.AssumptionStatus(status)
	a.Scope = model.Scope(scope)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return a, nil
}

// GetConstraint retrieves a constraint by ID. Returns ErrNotFound if missing.
func (s *Store) GetConstraint(ctx context.Context, id string) (model.Constraint, error) {
	var (
		c         model.Constraint
		category  string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, description, category, created_at FROM constraints WHERE id = ?
	`, id).Scan(&c.ID, &c.Description, &category, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Constraint{}, fmt.Errorf("constraint %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Constraint{}, fmt.Errorf("get constraint %s: %w", id, err)
	}
	c.Category = model.ConstraintCategory(category)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

// DecisionsForAssumption returns the non-retired decisions an assumption
// applies to: every decision for a UNIVERSAL assumption, the linked ones
// otherwise.
func (s *Store) DecisionsForAssumption(ctx context.Context, assumptionID string) ([]string, error) {
	a, err := s.GetAssumption(ctx, assumptionID)
	if err != nil {
		return nil, fmt.Errorf("decisions for assumption: %w", err)
	}
	if a.Scope == model.ScopeUniversal {
		return s.queryIDs(ctx, `
			SELECT id FROM decisions WHERE lifecycle <> 'RETIRED'
			ORDER BY id COLLATE BINARY ASC
		`)
	}
	return s.queryIDs(ctx, `
		SELECT d.id FROM decision_assumptions da
		JOIN decisions d ON d.id = da.decision_id
		WHERE da.assumption_id = ? AND d.lifecycle <> 'RETIRED'
		ORDER BY d.id COLLATE BINARY ASC
	`, assumptionID)
}

// ListDependents returns the decisions that directly depend on id.
func (s *Store) ListDependents(ctx context.Context, id string) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT decision_id FROM dependencies WHERE depends_on_id = ?
		ORDER BY decision_id COLLATE BINARY ASC
	`, id)
}

// ListDependencies returns the decisions id directly depends on.
func (s *Store) ListDependencies(ctx context.Context, id string) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT depends_on_id FROM dependencies WHERE decision_id = ?
		ORDER BY depends_on_id COLLATE BINARY ASC
	`, id)
}

// NeedingQuery mirrors the scheduler's staleness policy in SQL.
type NeedingQuery struct {
	Now time.Time
	// StaleAfter is the age after which an evaluation is stale.
	StaleAfter time.Duration
	// ExpiryWindow is the distance from expiry inside which decisions are
	// re-checked more often.
	ExpiryWindow time.Duration
	// ExpiryRecheck is the minimum evaluation age inside the window.
	ExpiryRecheck time.Duration
	// Limit caps the number of ids returned. Zero means no cap.
	Limit int
}

// ListNeedingEvaluation returns the ids of decisions the staleness policy
// would evaluate. Flagged decisions come first, never-evaluated ones first
// among those, then the oldest evaluations. RETIRED and manually invalidated decisions
// are never returned.
func (s *Store) ListNeedingEvaluation(ctx context.Context, q NeedingQuery) ([]string, error) {
	now := toMillis(q.Now)
	query := `
		SELECT id FROM decisions
		WHERE lifecycle <> 'RETIRED'
		  AND NOT (lifecycle = 'INVALIDATED' AND invalidated_reason = 'manual')
		  AND (needs_evaluation = 1
		       OR last_evaluated_at IS NULL
		       OR last_evaluated_at < ?
		       OR (expiry_date IS NOT NULL
		           AND expiry_date BETWEEN ? AND ?
		           AND last_evaluated_at < ?))
		ORDER BY needs_evaluation DESC,
		         last_evaluated_at IS NOT NULL,
		         last_evaluated_at ASC,
		         id COLLATE BINARY ASC`
	args := []any{
		now - q.StaleAfter.Milliseconds(),
		now - q.ExpiryWindow.Milliseconds(),
		now + q.ExpiryWindow.Milliseconds(),
		now - q.ExpiryRecheck.Milliseconds(),
	}
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	ids, err := s.queryIDs(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list needing evaluation: %w", err)
	}
	return ids, nil
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

const evaluationColumns = `
	id, decision_id, evaluated_at, trigger, previous_health, new_health,
	previous_lifecycle, new_lifecycle, invalidated_reason, changes_detected,
	trace, content_hash`

func scanEvaluation(row rowScanner) (model.EvaluationRecord, error) {
	var (
		rec               model.EvaluationRecord
		evaluatedAt       int64
		prevLife, newLife string
		reason            sql.NullString
		changes           int
		traceJSON         string
	)
	err := row.Scan(
		&rec.ID, &rec.DecisionID, &evaluatedAt, &rec.Trigger, &rec.PreviousHealth, &rec.NewHealth,
		&prevLife, &newLife, &reason, &changes,
		&traceJSON, &rec.ContentHash,
	)
	if err != nil {
		return model.EvaluationRecord{}, err
	}
	rec.EvaluatedAt = fromMillis(evaluatedAt)
	rec.PreviousLifecycle = model.Lifecycle(prevLife)
	rec.NewLifecycle = model.Lifecycle(newLife)
	rec.InvalidatedReason = reasonPtr(reason)
	rec.ChangesDetected = changes != 0
	rec.Trace, err = unmarshalTrace(traceJSON)
	if err != nil {
		return model.EvaluationRecord{}, err
	}
	return rec, nil
}

// GetEvaluation retrieves one audit record by ID.
func (s *Store) GetEvaluation(ctx context.Context, id string) (model.EvaluationRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+evaluationColumns+` FROM evaluations WHERE id = ?`, id)
	rec, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.EvaluationRecord{}, fmt.Errorf("evaluation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.EvaluationRecord{}, fmt.Errorf("get evaluation %s: %w", id, err)
	}
	return rec, nil
}

// ListEvaluations returns the audit trail of a decision in the order the
// records were written. With limit > 0 only the latest limit records are
// returned, still oldest first.
func (s *Store) ListEvaluations(ctx context.Context, decisionID string, limit int) ([]model.EvaluationRecord, error) {
	query := `
		SELECT ` + evaluationColumns + ` FROM (
			SELECT * FROM evaluations WHERE decision_id = ?
			ORDER BY seq DESC`
	args := []any{decisionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	query += `) ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	records := []model.EvaluationRecord{}
	for rows.Next() {
		rec, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}
	return records, nil
}
