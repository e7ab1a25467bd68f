package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/driftwatch/internal/model"
)

// BatchResult summarizes one EvaluateBatch run.
type BatchResult struct {
	Evaluated int
	Skipped   int
	Failed    int
	Deferred  int

	// Results holds every computed evaluation ordered by decision id,
	// including ones that failed to persist.
	Results []*EvaluationResult
	// Errors holds the failure per decision id.
	Errors map[string]error
	// DeferredIDs lists the ids not started because of the deadline or
	// the item cap, in candidate order.
	DeferredIDs []string
}

// EvaluateBatch evaluates many decisions.
//
// With no ids the candidates are the store's decisions needing evaluation,
// capped at the batch limit. All snapshots are loaded up front in a fixed
// number of queries. Evaluations run concurrently up to the configured
// concurrency, one at a time per decision. A failing item is logged,
// counted and never aborts the batch; items committed before the deadline
// stay committed.
//
// The returned error is only non-nil when the batch could not start.
func (s *Service) EvaluateBatch(ctx context.Context, ids []string, force bool) (*BatchResult, error) {
	ctx, span := startBatchSpan(ctx, len(ids), force)
	defer span.End()

	if s.batchDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.batchDeadline)
		defer cancel()
	}

	now := s.clock.Now()
	if len(ids) == 0 {
		var err error
		ids, err = s.store.ListNeedingEvaluation(ctx, s.policy.query(now, s.batchLimit))
		if err != nil {
			span.SetStatus(codes.Error, "list candidates")
			return nil, fmt.Errorf("evaluate batch: %w", err)
		}
	}
	ids = dedupe(ids)

	result := &BatchResult{Errors: make(map[string]error)}
	if s.maxItems > 0 && len(ids) > s.maxItems {
		result.DeferredIDs = append(result.DeferredIDs, ids[s.maxItems:]...)
		ids = ids[:s.maxItems]
	}

	set, err := s.store.LoadSnapshots(ctx, ids)
	if err != nil {
		span.SetStatus(codes.Error, "load snapshots")
		return nil, fmt.Errorf("evaluate batch: %w", err)
	}

	var mu sync.Mutex
	fail := func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		result.Failed++
		result.Errors[id] = err
		s.logger.Error("evaluation failed", "decision_id", id, "error", err)
	}
	deferItem := func(id string) {
		mu.Lock()
		defer mu.Unlock()
		result.DeferredIDs = append(result.DeferredIDs, id)
	}

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		if err, ok := set.Failed[id]; ok {
			fail(id, inputError(id, err))
			continue
		}
		if ctx.Err() != nil {
			deferItem(id)
			continue
		}

		snap := set.Found[id]
		g.Go(func() error {
			if ctx.Err() != nil {
				deferItem(id)
				return nil
			}
			res, evaluated, err := s.evaluateBatchItem(ctx, snap, force)

			mu.Lock()
			if res != nil {
				result.Results = append(result.Results, res)
			}
			mu.Unlock()

			switch {
			case err != nil && ctx.Err() != nil && res == nil:
				deferItem(id)
			case err != nil:
				fail(id, err)
			case evaluated:
				mu.Lock()
				result.Evaluated++
				mu.Unlock()
			default:
				mu.Lock()
				result.Skipped++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Deferred = len(result.DeferredIDs)
	sort.Slice(result.Results, func(i, j int) bool {
		return result.Results[i].Record.DecisionID < result.Results[j].Record.DecisionID
	})

	recordOutcome(ctx, outcomeEvaluated, result.Evaluated)
	recordOutcome(ctx, outcomeSkipped, result.Skipped)
	recordOutcome(ctx, outcomeFailed, result.Failed)
	recordOutcome(ctx, outcomeDeferred, result.Deferred)
	setBatchSpanResult(span, result)

	s.logger.Info("batch complete",
		"evaluated", result.Evaluated,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"deferred", result.Deferred,
	)
	return result, nil
}

// evaluateBatchItem evaluates one preloaded snapshot under its lease.
// Returns whether an evaluation ran.
func (s *Service) evaluateBatchItem(ctx context.Context, snap model.Snapshot, force bool) (*EvaluationResult, bool, error) {
	id := snap.Decision.ID
	release, err := s.leases.acquire(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("evaluate %s: %w", id, err)
	}
	defer release()

	st, ok := s.verdict(snap.Decision, s.clock.Now(), force)
	if !ok {
		return nil, false, nil
	}

	res, err := s.evaluateLocked(ctx, snap, st, force, true)
	return res, err == nil && res != nil, err
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
