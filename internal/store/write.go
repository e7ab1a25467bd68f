package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/driftwatch/internal/model"
)

// ErrAlreadyExists is returned when a create collides with an existing id.
var ErrAlreadyExists = errors.New("already exists")

// ErrRetired is returned by human actions that make no sense on a
// RETIRED decision.
var ErrRetired = errors.New("decision is retired")

// Evaluation reasons set by the store itself.
const (
	ReasonCreated  = "created"
	ReasonReviewed = "reviewed"
)

// CreateDecision inserts a new decision. New decisions start STABLE with
// full health and are flagged for their first evaluation.
func (s *Store) CreateDecision(ctx context.Context, d model.Decision) error {
	if d.ID == "" {
		return fmt.Errorf("create decision: empty id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions
		(id, title, lifecycle, health_signal, created_at, expiry_date,
		 needs_evaluation, evaluation_reason, marked_at, version)
		VALUES (?, ?, 'STABLE', 100, ?, ?, 1, ?, ?, 0)
	`,
		d.ID,
		d.Title,
		toMillis(d.CreatedAt),
		nullMillis(d.ExpiryDate),
		ReasonCreated,
		toMillis(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create decision %s: %w", d.ID, mapConstraintErr(err))
	}
	return nil
}

// SetExpiry changes or clears a decision's expiry date and flags it.
func (s *Store) SetExpiry(ctx context.Context, id string, expiry *time.Time, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE decisions
		SET expiry_date = ?, needs_evaluation = 1, evaluation_reason = 'expiry_changed',
		    marked_at = ?, version = version + 1
		WHERE id = ? AND lifecycle <> 'RETIRED'
	`, nullMillis(expiry), toMillis(now), id)
	if err != nil {
		return fmt.Errorf("set expiry %s: %w", id, err)
	}
	return s.expectOneRow(ctx, res, id, "set expiry")
}

// MarkReviewed records an explicit human review. An INVALIDATED decision
// is reopened as STABLE with full health; any decision is flagged so the
// next evaluation reflects the new review date.
func (s *Store) MarkReviewed(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE decisions
		SET last_reviewed_at = ?,
		    lifecycle = CASE WHEN lifecycle = 'INVALIDATED' THEN 'STABLE' ELSE lifecycle END,
		    health_signal = CASE WHEN lifecycle = 'INVALIDATED' THEN 100 ELSE health_signal END,
		    invalidated_reason = NULL,
		    needs_evaluation = 1,
		    evaluation_reason = ?,
		    marked_at = ?,
		    version = version + 1
		WHERE id = ? AND lifecycle <> 'RETIRED'
	`, toMillis(now), ReasonReviewed, toMillis(now), id)
	if err != nil {
		return fmt.Errorf("mark reviewed %s: %w", id, err)
	}
	return s.expectOneRow(ctx, res, id, "mark reviewed")
}

// Retire permanently retires a decision with reason manual.
func (s *Store) Retire(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE decisions
		SET lifecycle = 'RETIRED', invalidated_reason = 'manual',
		    needs_evaluation = 0, evaluation_reason = '', marked_at = NULL,
		    version = version + 1
		WHERE id = ? AND lifecycle <> 'RETIRED'
	`, id)
	if err != nil {
		return fmt.Errorf("retire %s: %w", id, err)
	}
	return s.expectOneRow(ctx, res, id, "retire")
}

// Invalidate marks a decision INVALIDATED with reason manual. The
// scheduler leaves manually invalidated decisions alone until they are
// reviewed.
func (s *Store) Invalidate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE decisions
		SET lifecycle = 'INVALIDATED', health_signal = 0, invalidated_reason = 'manual',
		    needs_evaluation = 0, evaluation_reason = '', marked_at = NULL,
		    version = version + 1
		WHERE id = ? AND lifecycle <> 'RETIRED'
	`, id)
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", id, err)
	}
	return s.expectOneRow(ctx, res, id, "invalidate")
}

// CreateAssumption inserts a new assumption.
func (s *Store) CreateAssumption(ctx context.Context, a model.Assumption) error {
	if a.ID == "" {
		return fmt.Errorf("create assumption: empty id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assumptions (id, description, status, scope, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.Description,
		string(a.Status),
		string(a.Scope),
		toMillis(a.CreatedAt),
		toMillis(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create assumption %s: %w", a.ID, mapConstraintErr(err))
	}
	return nil
}

// SetAssumptionStatus changes an assumption's status. Returns whether the
// stored status actually changed.
func (s *Store) SetAssumptionStatus(ctx context.Context, id string, status model.AssumptionStatus, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE assumptions SET status = ?, updated_at = ?
		WHERE id = ? AND status <> ?
	`, string(status), toMillis(now), id, string(status))
	if err != nil {
		return false, fmt.Errorf("set assumption status %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set assumption status %s: rows affected: %w", id, err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetAssumption(ctx, id); err != nil {
		return false, fmt.Errorf("set assumption status: %w", err)
	}
	return false, nil
}

// LinkAssumption links a DECISION_SPECIFIC assumption to a decision.
// Linking twice is a no-op. UNIVERSAL assumptions apply everywhere and
// cannot be linked.
func (s *Store) LinkAssumption(ctx context.Context, decisionID, assumptionID string) error {
	if _, err := s.GetDecision(ctx, decisionID); err != nil {
		return fmt.Errorf("link assumption: %w", err)
	}
	a, err := s.GetAssumption(ctx, assumptionID)
	if err != nil {
		return fmt.Errorf("link assumption: %w", err)
	}
	if a.Scope == model.ScopeUniversal {
		return fmt.Errorf("link assumption %s: universal assumptions apply to every decision: %w", assumptionID, ErrInvalidLink)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decision_assumptions (decision_id, assumption_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, decisionID, assumptionID)
	if err != nil {
		return fmt.Errorf("link assumption: %w", err)
	}
	return nil
}

// CreateConstraint inserts a new constraint. Constraints are immutable.
func (s *Store) CreateConstraint(ctx context.Context, c model.Constraint) error {
	if c.ID == "" {
		return fmt.Errorf("create constraint: empty id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO constraints (id, description, category, created_at)
		VALUES (?, ?, ?, ?)
	`, c.ID, c.Description, string(c.Category), toMillis(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("create constraint %s: %w", c.ID, mapConstraintErr(err))
	}
	return nil
}

// LinkConstraint links a constraint to a decision, or updates the
// violated flag of an existing link. Returns whether anything changed.
func (s *Store) LinkConstraint(ctx context.Context, decisionID, constraintID string, violated bool) (bool, error) {
	if _, err := s.GetDecision(ctx, decisionID); err != nil {
		return false, fmt.Errorf("link constraint: %w", err)
	}
	if _, err := s.GetConstraint(ctx, constraintID); err != nil {
		return false, fmt.Errorf("link constraint: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_constraints (decision_id, constraint_id, violated)
		VALUES (?, ?, ?)
		ON CONFLICT(decision_id, constraint_id) DO UPDATE SET violated = excluded.violated
		WHERE decision_constraints.violated <> excluded.violated
	`, decisionID, constraintID, boolToInt(violated))
	if err != nil {
		return false, fmt.Errorf("link constraint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link constraint: rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkForEvaluation flags decisions for re-evaluation with a reason.
// RETIRED and unknown ids are ignored. Returns the number of decisions
// flagged. Flagging bumps the version so an evaluation that started from
// older inputs cannot clear the flag.
func (s *Store) MarkForEvaluation(ctx context.Context, ids []string, reason string, now time.Time) (int, error) {
	var total int64
	for _, chunk := range chunkIDs(ids) {
		args := make([]any, 0, len(chunk)+2)
		args = append(args, reason, toMillis(now))
		for _, id := range chunk {
			args = append(args, id)
		}
		res, err := s.db.ExecContext(ctx, `
			UPDATE decisions
			SET needs_evaluation = 1, evaluation_reason = ?, marked_at = ?, version = version + 1
			WHERE lifecycle <> 'RETIRED' AND id IN (`+placeholders(len(chunk))+`)
		`, args...)
		if err != nil {
			return int(total), fmt.Errorf("mark for evaluation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return int(total), fmt.Errorf("mark for evaluation: rows affected: %w", err)
		}
		total += n
	}
	return int(total), nil
}

// SaveEvaluation persists the outcome of an evaluation atomically: the
// decision's new state, the cleared dirty flag and the audit record.
//
// The write only applies when the decision is still at expectedVersion;
// otherwise ErrVersionConflict is returned and nothing is written.
// Returns the decision's new version.
func (s *Store) SaveEvaluation(ctx context.Context, rec model.EvaluationRecord, expectedVersion int64) (int64, error) {
	traceJSON, err := marshalTrace(rec.Trace)
	if err != nil {
		return 0, fmt.Errorf("save evaluation: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("save evaluation: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		UPDATE decisions
		SET health_signal = ?, lifecycle = ?, invalidated_reason = ?,
		    last_evaluated_at = ?, needs_evaluation = 0, evaluation_reason = '',
		    marked_at = NULL, version = version + 1
		WHERE id = ? AND version = ?
	`,
		rec.NewHealth,
		string(rec.NewLifecycle),
		nullReason(rec.InvalidatedReason),
		toMillis(rec.EvaluatedAt),
		rec.DecisionID,
		expectedVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("save evaluation: update decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("save evaluation: rows affected: %w", err)
	}
	if n == 0 {
		var current int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM decisions WHERE id = ?`, rec.DecisionID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("save evaluation: decision %s: %w", rec.DecisionID, ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("save evaluation: read version: %w", err)
		}
		return 0, fmt.Errorf("save evaluation: decision %s at version %d, expected %d: %w",
			rec.DecisionID, current, expectedVersion, ErrVersionConflict)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO evaluations
		(id, decision_id, evaluated_at, trigger, previous_health, new_health,
		 previous_lifecycle, new_lifecycle, invalidated_reason, changes_detected,
		 trace, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.DecisionID,
		toMillis(rec.EvaluatedAt),
		rec.Trigger,
		rec.PreviousHealth,
		rec.NewHealth,
		string(rec.PreviousLifecycle),
		string(rec.NewLifecycle),
		nullReason(rec.InvalidatedReason),
		boolToInt(rec.ChangesDetected),
		traceJSON,
		rec.ContentHash,
	)
	if err != nil {
		return 0, fmt.Errorf("save evaluation: insert record: %w", mapConstraintErr(err))
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("save evaluation: commit: %w", err)
	}
	return expectedVersion + 1, nil
}

// expectOneRow turns a zero-row update into ErrNotFound or ErrRetired.
func (s *Store) expectOneRow(ctx context.Context, res sql.Result, id, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: rows affected: %w", op, id, err)
	}
	if n > 0 {
		return nil
	}
	d, err := s.GetDecision(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if d.Lifecycle == model.LifecycleRetired {
		return fmt.Errorf("%s %s: %w", op, id, ErrRetired)
	}
	return fmt.Errorf("%s %s: no rows updated", op, id)
}

// mapConstraintErr maps SQLite key collisions to ErrAlreadyExists.
func mapConstraintErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
		}
	}
	return err
}

// maxIDsPerQuery keeps IN lists well below SQLite's variable limit.
const maxIDsPerQuery = 500

func chunkIDs(ids []string) [][]string {
	var chunks [][]string
	for len(ids) > maxIDsPerQuery {
		chunks = append(chunks, ids[:maxIDsPerQuery])
		ids = ids[maxIDsPerQuery:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
