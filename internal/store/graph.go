package store

import (
	"context"
	"fmt"
)

// AddDependency records that decisionID depends on dependsOnID.
//
// Self edges and edges that would close a cycle are rejected with
// ErrDependencyCycle. The cycle check walks dependencies breadth first from
// dependsOnID; if the walk goes deeper than the configured maximum depth
// the edge is rejected as well. Adding an existing edge is a no-op.
func (s *Store) AddDependency(ctx context.Context, decisionID, dependsOnID string) error {
	if decisionID == dependsOnID {
		return fmt.Errorf("add dependency %s -> %s: self dependency: %w", decisionID, dependsOnID, ErrDependencyCycle)
	}
	if _, err := s.GetDecision(ctx, decisionID); err != nil {
		return fmt.Errorf("add dependency: %w", err)
	}
	if _, err := s.GetDecision(ctx, dependsOnID); err != nil {
		return fmt.Errorf("add dependency: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add dependency: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	// The new edge closes a cycle iff decisionID is reachable from
	// dependsOnID along existing edges.
	visited := map[string]bool{dependsOnID: true}
	frontier := []string{dependsOnID}
	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= s.maxDepth {
			return fmt.Errorf("add dependency %s -> %s: graph deeper than %d: %w",
				decisionID, dependsOnID, s.maxDepth, ErrDependencyCycle)
		}

		args := make([]any, len(frontier))
		for i, id := range frontier {
			args[i] = id
		}
		rows, err := tx.QueryContext(ctx, `
			SELECT depends_on_id FROM dependencies
			WHERE decision_id IN (`+placeholders(len(frontier))+`)
			ORDER BY depends_on_id COLLATE BINARY ASC
		`, args...)
		if err != nil {
			return fmt.Errorf("add dependency: walk: %w", err)
		}

		var next []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("add dependency: scan: %w", err)
			}
			if id == decisionID {
				rows.Close()
				return fmt.Errorf("add dependency %s -> %s: %s already depends on %s: %w",
					decisionID, dependsOnID, dependsOnID, decisionID, ErrDependencyCycle)
			}
			if !visited[id] {
				visited[id] = true
				next = append(next, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("add dependency: iterate: %w", err)
		}
		frontier = next
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dependencies (decision_id, depends_on_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, decisionID, dependsOnID)
	if err != nil {
		return fmt.Errorf("add dependency: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add dependency: commit: %w", err)
	}
	return nil
}

// RemoveDependency deletes an edge. Removing a missing edge is a no-op.
func (s *Store) RemoveDependency(ctx context.Context, decisionID, dependsOnID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM dependencies WHERE decision_id = ? AND depends_on_id = ?
	`, decisionID, dependsOnID)
	if err != nil {
		return fmt.Errorf("remove dependency: %w", err)
	}
	return nil
}
