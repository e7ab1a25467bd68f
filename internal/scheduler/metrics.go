package scheduler

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for scheduling operations. They resolve
// against the global providers, which internal/telemetry installs.
var (
	tracer = otel.Tracer("driftwatch.scheduler")
	meter  = otel.Meter("driftwatch.scheduler")
)

// Outcomes recorded on driftwatch_evaluations_total.
const (
	outcomeEvaluated = "evaluated"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
	outcomeDeferred  = "deferred"
)

var (
	evaluationsTotal     metric.Int64Counter
	evaluationDuration   metric.Float64Histogram
	lifecycleTransitions metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		evaluationsTotal, err = meter.Int64Counter(
			"driftwatch_evaluations_total",
			metric.WithDescription("Evaluation attempts by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evaluationDuration, err = meter.Float64Histogram(
			"driftwatch_evaluation_duration_seconds",
			metric.WithDescription("Duration of a single decision evaluation including persistence"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		lifecycleTransitions, err = meter.Int64Counter(
			"driftwatch_lifecycle_transitions_total",
			metric.WithDescription("Persisted lifecycle changes by from and to state"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startEvaluateSpan(ctx context.Context, decisionID string, force bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Scheduler.EvaluateIfNeeded",
		trace.WithAttributes(
			attribute.String("decision.id", decisionID),
			attribute.Bool("evaluation.force", force),
		),
	)
}

func startBatchSpan(ctx context.Context, requested int, force bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Scheduler.EvaluateBatch",
		trace.WithAttributes(
			attribute.Int("batch.requested", requested),
			attribute.Bool("evaluation.force", force),
		),
	)
}

func setBatchSpanResult(span trace.Span, r *BatchResult) {
	span.SetAttributes(
		attribute.Int("batch.evaluated", r.Evaluated),
		attribute.Int("batch.skipped", r.Skipped),
		attribute.Int("batch.failed", r.Failed),
		attribute.Int("batch.deferred", r.Deferred),
	)
}

func recordOutcome(ctx context.Context, outcome string, n int) {
	if n == 0 || initMetrics() != nil {
		return
	}
	evaluationsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
}

func recordDuration(ctx context.Context, d time.Duration) {
	if initMetrics() != nil {
		return
	}
	evaluationDuration.Record(ctx, d.Seconds())
}

func recordTransition(ctx context.Context, from, to string) {
	if from == to || initMetrics() != nil {
		return
	}
	lifecycleTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}
