package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/roach88/driftwatch/internal/engine"
	"github.com/roach88/driftwatch/internal/events"
	"github.com/roach88/driftwatch/internal/model"
	"github.com/roach88/driftwatch/internal/store"
)

// Store is the persistence the scheduler needs. Implemented by
// *store.Store.
type Store interface {
	GetDecision(ctx context.Context, id string) (model.Decision, error)
	LoadSnapshot(ctx context.Context, id string) (model.Snapshot, error)
	LoadSnapshots(ctx context.Context, ids []string) (store.Snapshots, error)
	SaveEvaluation(ctx context.Context, rec model.EvaluationRecord, expectedVersion int64) (int64, error)
	MarkForEvaluation(ctx context.Context, ids []string, reason string, now time.Time) (int, error)
	ListNeedingEvaluation(ctx context.Context, q store.NeedingQuery) ([]string, error)
	ListDependents(ctx context.Context, id string) ([]string, error)
}

// Publisher receives DependencyEvaluated events. Implemented by
// *events.Bus.
type Publisher interface {
	Publish(ev events.Event) bool
}

// ReasonDependencyChanged prefixes the evaluation reason of dependents
// flagged inline.
const ReasonDependencyChanged = "dependency_changed"

// EvaluationResult is the outcome of one evaluation.
type EvaluationResult struct {
	// Record is the audit record, sealed. When Persisted is false it was
	// computed but not written.
	Record    model.EvaluationRecord
	Persisted bool
	// Staleness is the verdict that led to the evaluation.
	Staleness Staleness
}

// Service schedules and runs evaluations.
//
// Thread-safety: all methods are safe for concurrent use.
type Service struct {
	store     Store
	engine    *engine.Engine
	clock     engine.Clock
	ids       engine.IDGenerator
	publisher Publisher
	logger    *slog.Logger
	policy    Policy
	leases    *leases

	batchLimit    int
	concurrency   int
	maxItems      int
	batchDeadline time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source. Default: engine.SystemClock.
func WithClock(c engine.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDGenerator sets the audit record id source. Default: UUIDv7.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithPublisher routes dependency cascades through p instead of flagging
// dependents inline.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPolicy replaces the staleness policy.
func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithStaleAfter sets the staleness limit.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.policy.StaleAfter = d
		}
	}
}

// WithBatchLimit caps how many candidates EvaluateBatch resolves when
// called without ids. Default: 500.
func WithBatchLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchLimit = n
		}
	}
}

// WithConcurrency bounds concurrent evaluations in a batch. Default: 4.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMaxItems caps the number of items one batch evaluates; the rest are
// deferred. Zero means no cap.
func WithMaxItems(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxItems = n
		}
	}
}

// WithBatchDeadline bounds the wall time of one batch. Items not started
// by then are deferred. Zero means no deadline.
func WithBatchDeadline(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.batchDeadline = d
		}
	}
}

// New creates a Service.
func New(st Store, eng *engine.Engine, opts ...Option) *Service {
	s := &Service{
		store:       st,
		engine:      eng,
		clock:       engine.SystemClock{},
		ids:         engine.UUIDv7Generator{},
		logger:      slog.Default(),
		policy:      DefaultPolicy(),
		leases:      newLeases(),
		batchLimit:  500,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the staleness policy in use.
func (s *Service) Policy() Policy {
	return s.policy
}

// NeedsEvaluation reports whether the decision needs evaluation now.
func (s *Service) NeedsEvaluation(ctx context.Context, id string) (Staleness, error) {
	d, err := s.store.GetDecision(ctx, id)
	if err != nil {
		return Staleness{}, inputError(id, err)
	}
	return s.policy.Check(d, s.clock.Now()), nil
}

// MarkForEvaluation flags decisions dirty. The flag lives in the store, so
// every process sees it. Returns the number of decisions flagged.
func (s *Service) MarkForEvaluation(ctx context.Context, ids []string, reason string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.store.MarkForEvaluation(ctx, ids, reason, s.clock.Now())
	if err != nil {
		return n, fmt.Errorf("mark for evaluation: %w", err)
	}
	s.logger.Debug("marked for evaluation", "count", n, "reason", reason)
	return n, nil
}

// EvaluateIfNeeded evaluates the decision when the policy says so, or
// always when force is set.
//
// Returns (nil, nil) without touching the store when no evaluation is
// needed. When the result was computed but could not be persisted, both a
// result with Persisted=false and a PERSISTENCE error are returned.
func (s *Service) EvaluateIfNeeded(ctx context.Context, id string, force bool) (*EvaluationResult, error) {
	ctx, span := startEvaluateSpan(ctx, id, force)
	defer span.End()

	release, err := s.leases.acquire(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", id, err)
	}
	defer release()

	d, err := s.store.GetDecision(ctx, id)
	if err != nil {
		recordOutcome(ctx, outcomeFailed, 1)
		span.SetStatus(codes.Error, "input assembly")
		return nil, inputError(id, err)
	}

	now := s.clock.Now()
	st, ok := s.verdict(d, now, force)
	span.SetAttributes(attribute.String("evaluation.reason", string(st.Reason)))
	if !ok {
		recordOutcome(ctx, outcomeSkipped, 1)
		return nil, nil
	}

	snap, err := s.store.LoadSnapshot(ctx, id)
	if err != nil {
		recordOutcome(ctx, outcomeFailed, 1)
		span.SetStatus(codes.Error, "input assembly")
		return nil, inputError(id, err)
	}

	res, err := s.evaluateLocked(ctx, snap, st, force, true)
	switch {
	case err != nil:
		recordOutcome(ctx, outcomeFailed, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(CodeOf(err)))
		return res, err
	case res == nil:
		recordOutcome(ctx, outcomeSkipped, 1)
		return nil, nil
	}
	recordOutcome(ctx, outcomeEvaluated, 1)
	return res, nil
}

// verdict applies the policy, overriding it when force is set. A manual
// invalidation is held even under force; only a review reopens it.
func (s *Service) verdict(d model.Decision, now time.Time, force bool) (Staleness, bool) {
	st := s.policy.Check(d, now)
	if st.Needed {
		return st, true
	}
	if force && st.Reason != ReasonHeld {
		return Staleness{Needed: true, Reason: ReasonForced}, true
	}
	return st, false
}

// evaluateLocked runs the engine on snap and persists the outcome. The
// caller holds the lease for the decision. On a version conflict the
// snapshot is reloaded and the evaluation retried once when retry is set,
// unless the reloaded decision no longer needs evaluation and force is
// unset, in which case (nil, nil) is returned.
func (s *Service) evaluateLocked(ctx context.Context, snap model.Snapshot, st Staleness, force, retry bool) (*EvaluationResult, error) {
	id := snap.Decision.ID
	start := time.Now()
	defer func() { recordDuration(ctx, time.Since(start)) }()

	if err := snap.Validate(); err != nil {
		return nil, inputError(id, err)
	}

	now := s.clock.Now()
	res, err := s.runEngine(snap, now)
	if err != nil {
		return nil, err
	}

	in := snap.Decision
	rec := model.EvaluationRecord{
		ID:                s.ids.Generate(),
		DecisionID:        id,
		EvaluatedAt:       now,
		Trigger:           st.Trigger(),
		PreviousHealth:    in.HealthSignal,
		NewHealth:         res.NewHealthSignal,
		PreviousLifecycle: in.Lifecycle,
		NewLifecycle:      res.NewLifecycle,
		InvalidatedReason: res.InvalidatedReason,
		ChangesDetected:   res.ChangesDetected,
		Trace:             res.Trace,
	}
	out := &EvaluationResult{Record: rec, Staleness: st}
	if err := rec.Seal(); err != nil {
		return out, newError(ErrCodePersistence, id, "seal evaluation record", err)
	}
	out.Record = rec

	_, err = s.store.SaveEvaluation(ctx, rec, in.Version)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrVersionConflict) && retry:
		s.logger.Debug("version conflict, reloading", "decision_id", id, "version", in.Version)
		fresh, lerr := s.store.LoadSnapshot(ctx, id)
		if lerr != nil {
			return nil, inputError(id, lerr)
		}
		// Another writer may have evaluated it meanwhile.
		fst, ok := s.verdict(fresh.Decision, s.clock.Now(), force)
		if !ok {
			return nil, nil
		}
		return s.evaluateLocked(ctx, fresh, fst, force, false)
	case errors.Is(err, store.ErrVersionConflict):
		return out, newError(ErrCodeConcurrentUpdate, id, "decision changed during evaluation", err)
	case errors.Is(err, store.ErrNotFound):
		return out, inputError(id, err)
	default:
		return out, newError(ErrCodePersistence, id, "save evaluation", err)
	}

	out.Persisted = true
	recordTransition(ctx, string(in.Lifecycle), string(res.NewLifecycle))
	s.logger.Debug("decision evaluated",
		"decision_id", id,
		"trigger", rec.Trigger,
		"health", rec.NewHealth,
		"lifecycle", rec.NewLifecycle,
		"changed", rec.ChangesDetected,
	)

	if rec.ChangesDetected {
		s.cascade(ctx, rec)
	}
	return out, nil
}

// runEngine evaluates with panic recovery.
func (s *Service) runEngine(snap model.Snapshot, now time.Time) (res engine.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(ErrCodeEngineFailure, snap.Decision.ID, fmt.Sprintf("engine panic: %v", r), nil)
		}
	}()
	return s.engine.Evaluate(snap, now), nil
}

// cascade flags the direct dependents of a decision whose outcome changed.
// Failures are logged; the evaluation itself is already committed.
func (s *Service) cascade(ctx context.Context, rec model.EvaluationRecord) {
	if s.publisher != nil {
		ev := events.DependencyEvaluated(rec.DecisionID, rec.NewHealth, rec.NewLifecycle, rec.EvaluatedAt)
		if s.publisher.Publish(ev) {
			return
		}
		// Bus closed. Flag inline; the caller may be shutting down.
		s.logger.Debug("publisher closed, cascading inline", "decision_id", rec.DecisionID)
		ctx = context.WithoutCancel(ctx)
	}

	dependents, err := s.store.ListDependents(ctx, rec.DecisionID)
	if err != nil {
		s.logger.Warn("cascade failed", "decision_id", rec.DecisionID, "error", err)
		return
	}
	if len(dependents) == 0 {
		return
	}
	if _, err := s.store.MarkForEvaluation(ctx, dependents, ReasonDependencyChanged+":"+rec.DecisionID, rec.EvaluatedAt); err != nil {
		s.logger.Warn("cascade failed", "decision_id", rec.DecisionID, "dependents", len(dependents), "error", err)
	}
}

func inputError(id string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	msg := "load evaluation input"
	switch {
	case errors.Is(err, store.ErrNotFound):
		msg = "decision or referenced record not found"
	case model.IsValidationError(err):
		msg = "invalid snapshot"
	}
	return newError(ErrCodeInputAssembly, id, msg, err)
}
