package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Marker flags decisions for re-evaluation. Implemented by the scheduler.
type Marker interface {
	MarkForEvaluation(ctx context.Context, ids []string, reason string) (int, error)
}

// Resolver finds the decisions affected by an input change. Implemented by
// the store.
type Resolver interface {
	DecisionsForAssumption(ctx context.Context, assumptionID string) ([]string, error)
	ListDependents(ctx context.Context, decisionID string) ([]string, error)
}

// Handler turns events into dirty flags.
type Handler struct {
	marker   Marker
	resolver Resolver
}

// NewHandler creates a handler.
func NewHandler(marker Marker, resolver Resolver) *Handler {
	return &Handler{marker: marker, resolver: resolver}
}

// Handle flags every decision affected by ev and returns how many were
// flagged.
//
//   - AssumptionStatusChanged flags the linked decisions, or every decision
//     for a UNIVERSAL assumption.
//   - ConstraintLinkChanged flags the linked decision.
//   - DependencyEvaluated flags the direct dependents only. Dependents of
//     dependents are flagged when those are evaluated in turn.
func (h *Handler) Handle(ctx context.Context, ev Event) (int, error) {
	var (
		ids    []string
		reason string
		err    error
	)

	switch ev.Type {
	case TypeAssumptionStatusChanged:
		ids, err = h.resolver.DecisionsForAssumption(ctx, ev.AssumptionID)
		reason = "assumption_changed:" + ev.AssumptionID
	case TypeConstraintLinkChanged:
		ids = []string{ev.DecisionID}
		reason = "constraint_changed:" + ev.ConstraintID
	case TypeDependencyEvaluated:
		ids, err = h.resolver.ListDependents(ctx, ev.DecisionID)
		reason = "dependency_changed:" + ev.DecisionID
	default:
		return 0, fmt.Errorf("handle event: unknown type %s", ev.Type)
	}
	if err != nil {
		return 0, fmt.Errorf("handle %s: %w", ev.Type, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := h.marker.MarkForEvaluation(ctx, ids, reason)
	if err != nil {
		return n, fmt.Errorf("handle %s: %w", ev.Type, err)
	}
	return n, nil
}

// Bus queues events and dispatches them to a Handler in FIFO order.
//
// Thread-safety: Publish may be called from any goroutine. Run must be
// called from exactly one goroutine.
type Bus struct {
	queue   *queue
	handler *Handler
	logger  *slog.Logger
}

// NewBus creates a bus. A nil logger uses slog.Default.
func NewBus(handler *Handler, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{queue: newQueue(), handler: handler, logger: logger}
}

// Publish enqueues an event. Returns false once the bus is closed.
func (b *Bus) Publish(ev Event) bool {
	return b.queue.Enqueue(ev)
}

// Pending returns the number of queued events.
func (b *Bus) Pending() int {
	return b.queue.Len()
}

// Close stops accepting events. Run dispatches what is already queued and
// then returns. Publishers should fall back to handling events themselves
// once Publish reports false.
func (b *Bus) Close() {
	b.queue.Close()
}

// Run dispatches events until ctx is cancelled or the bus is closed and
// drained. Handler errors are logged and do not stop the loop.
//
// On cancellation Run closes the bus and dispatches whatever is still
// queued before returning ctx.Err(). Queued events describe changes that
// are already committed.
func (b *Bus) Run(ctx context.Context) error {
	for {
		b.Drain(ctx)

		if b.queue.Closed() {
			// Pick up anything enqueued between Drain and Close.
			b.Drain(ctx)
			return nil
		}

		select {
		case <-ctx.Done():
			b.shutdown(ctx)
			return ctx.Err()
		case <-b.queue.Wait():
		}
	}
}

func (b *Bus) shutdown(ctx context.Context) {
	b.Close()
	if n := b.Drain(context.WithoutCancel(ctx)); n > 0 {
		b.logger.Info("dispatched queued events on shutdown", "events", n)
	}
}

// Drain synchronously dispatches every queued event and returns how many
// were handled. It stops early if ctx is cancelled.
func (b *Bus) Drain(ctx context.Context) int {
	handled := 0
	for ctx.Err() == nil {
		ev, ok := b.queue.TryDequeue()
		if !ok {
			return handled
		}
		handled++

		n, err := b.handler.Handle(ctx, ev)
		if err != nil {
			b.logger.Error("event dispatch failed",
				"event", ev.Type.String(),
				"subject", subject(ev),
				"error", err,
			)
			continue
		}
		b.logger.Debug("event dispatched",
			"event", ev.Type.String(),
			"subject", subject(ev),
			"flagged", n,
		)
	}
	return handled
}

func subject(ev Event) string {
	parts := make([]string, 0, 2)
	for _, s := range []string{ev.AssumptionID, ev.DecisionID, ev.ConstraintID} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}
