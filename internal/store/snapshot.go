package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/driftwatch/internal/model"
)

// Snapshots is the result of a batch snapshot load.
type Snapshots struct {
	// Found holds a complete snapshot per decision id.
	Found map[string]model.Snapshot
	// Failed holds an error per decision id that could not be assembled,
	// either because the decision is missing or because a linked record
	// is. Errors wrap ErrNotFound.
	Failed map[string]error
}

// LoadSnapshot assembles the evaluation input for one decision.
func (s *Store) LoadSnapshot(ctx context.Context, id string) (model.Snapshot, error) {
	set, err := s.LoadSnapshots(ctx, []string{id})
	if err != nil {
		return model.Snapshot{}, err
	}
	if err, ok := set.Failed[id]; ok {
		return model.Snapshot{}, err
	}
	return set.Found[id], nil
}

// LoadSnapshots assembles evaluation inputs for many decisions.
//
// The number of queries is fixed per chunk of maxIDsPerQuery ids: one for
// decisions, one for linked assumptions, one for linked constraints, one
// for dependency targets, plus a single query for UNIVERSAL assumptions.
// Collections inside each snapshot are ordered by id.
func (s *Store) LoadSnapshots(ctx context.Context, ids []string) (Snapshots, error) {
	set := Snapshots{
		Found:  make(map[string]model.Snapshot, len(ids)),
		Failed: make(map[string]error),
	}
	if len(ids) == 0 {
		return set, nil
	}

	universal, err := s.universalAssumptions(ctx)
	if err != nil {
		return Snapshots{}, fmt.Errorf("load snapshots: %w", err)
	}

	for _, chunk := range chunkIDs(dedupe(ids)) {
		if err := s.loadSnapshotChunk(ctx, chunk, universal, set); err != nil {
			return Snapshots{}, fmt.Errorf("load snapshots: %w", err)
		}
	}
	return set, nil
}

func (s *Store) loadSnapshotChunk(ctx context.Context, ids []string, universal []model.Assumption, set Snapshots) error {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	in := placeholders(len(ids))

	snaps := make(map[string]*model.Snapshot, len(ids))
	rows, err := s.db.QueryContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return fmt.Errorf("query decisions: %w", err)
	}
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("scan decision: %w", err)
		}
		snaps[d.ID] = &model.Snapshot{
			Decision:     d,
			Assumptions:  []model.Assumption{},
			Constraints:  []model.LinkedConstraint{},
			Dependencies: []model.DependencyHealth{},
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate decisions: %w", err)
	}

	fail := func(id string, err error) {
		if _, already := set.Failed[id]; !already {
			set.Failed[id] = err
		}
	}

	// Linked assumptions. A link whose assumption row is missing fails the
	// decision rather than silently dropping an input.
	rows, err = s.db.QueryContext(ctx, `
		SELECT da.decision_id, da.assumption_id, a.description, a.status, a.scope, a.created_at, a.updated_at
		FROM decision_assumptions da
		LEFT JOIN assumptions a ON a.id = da.assumption_id
		WHERE da.decision_id IN (`+in+`)
		ORDER BY da.decision_id, da.assumption_id COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return fmt.Errorf("query linked assumptions: %w", err)
	}
	for rows.Next() {
		var (
			decisionID, assumptionID string
			desc, status, scope      sql.NullString
			createdAt, updatedAt     sql.NullInt64
		)
		if err := rows.Scan(&decisionID, &assumptionID, &desc, &status, &scope, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan linked assumption: %w", err)
		}
		if !status.Valid {
			fail(decisionID, fmt.Errorf("decision %s: linked assumption %s: %w", decisionID, assumptionID, ErrNotFound))
			continue
		}
		if model.Scope(scope.String) == model.ScopeUniversal {
			// Universal assumptions are appended below for every decision.
			continue
		}
		if snap := snaps[decisionID]; snap != nil {
			snap.Assumptions = append(snap.Assumptions, model.Assumption{
				ID:          assumptionID,
				Description: desc.String,
				Status:      model.AssumptionStatus(status.String),
				Scope:       model.Scope(scope.String),
				CreatedAt:   fromMillis(createdAt.Int64),
				UpdatedAt:   fromMillis(updatedAt.Int64),
			})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate linked assumptions: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT dc.decision_id, dc.constraint_id, dc.violated, c.description, c.category, c.created_at
		FROM decision_constraints dc
		LEFT JOIN constraints c ON c.id = dc.constraint_id
		WHERE dc.decision_id IN (`+in+`)
		ORDER BY dc.decision_id, dc.constraint_id COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return fmt.Errorf("query linked constraints: %w", err)
	}
	for rows.Next() {
		var (
			decisionID, constraintID string
			violated                 int
			desc, category           sql.NullString
			createdAt                sql.NullInt64
		)
		if err := rows.Scan(&decisionID, &constraintID, &violated, &desc, &category, &createdAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan linked constraint: %w", err)
		}
		if !category.Valid {
			fail(decisionID, fmt.Errorf("decision %s: linked constraint %s: %w", decisionID, constraintID, ErrNotFound))
			continue
		}
		if snap := snaps[decisionID]; snap != nil {
			snap.Constraints = append(snap.Constraints, model.LinkedConstraint{
				Constraint: model.Constraint{
					ID:          constraintID,
					Description: desc.String,
					Category:    model.ConstraintCategory(category.String),
					CreatedAt:   fromMillis(createdAt.Int64),
				},
				Violated: violated != 0,
			})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate linked constraints: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT dep.decision_id, dep.depends_on_id, t.health_signal, t.lifecycle
		FROM dependencies dep
		LEFT JOIN decisions t ON t.id = dep.depends_on_id
		WHERE dep.decision_id IN (`+in+`)
		ORDER BY dep.decision_id, dep.depends_on_id COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return fmt.Errorf("query dependencies: %w", err)
	}
	for rows.Next() {
		var (
			decisionID, targetID string
			health               sql.NullInt64
			lifecycle            sql.NullString
		)
		if err := rows.Scan(&decisionID, &targetID, &health, &lifecycle); err != nil {
			rows.Close()
			return fmt.Errorf("scan dependency: %w", err)
		}
		if !lifecycle.Valid {
			fail(decisionID, fmt.Errorf("decision %s: dependency %s: %w", decisionID, targetID, ErrNotFound))
			continue
		}
		if snap := snaps[decisionID]; snap != nil {
			snap.Dependencies = append(snap.Dependencies, model.DependencyHealth{
				DecisionID:   targetID,
				HealthSignal: int(health.Int64),
				Lifecycle:    model.Lifecycle(lifecycle.String),
			})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate dependencies: %w", err)
	}

	for _, id := range ids {
		snap, ok := snaps[id]
		if !ok {
			fail(id, fmt.Errorf("decision %s: %w", id, ErrNotFound))
			continue
		}
		if _, failed := set.Failed[id]; failed {
			continue
		}
		snap.Assumptions = append(snap.Assumptions, universal...)
		set.Found[id] = *snap
	}
	return nil
}

func (s *Store) universalAssumptions(ctx context.Context) ([]model.Assumption, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, status, scope, created_at, updated_at
		FROM assumptions WHERE scope = 'UNIVERSAL'
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query universal assumptions: %w", err)
	}
	defer rows.Close()

	var out []model.Assumption
	for rows.Next() {
		var (
			a                    model.Assumption
			status, scope        string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&a.ID, &a.Description, &status, &scope, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan universal assumption: %w", err)
		}
		a.Status = model.AssumptionStatus(status)
		a.Scope = model.Scope(scope)
		a.CreatedAt = fromMillis(createdAt)
		a.UpdatedAt = fromMillis(updatedAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate universal assumptions: %w", err)
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
