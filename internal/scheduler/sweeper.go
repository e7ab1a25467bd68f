package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically evaluates every decision the policy reports as
// needing evaluation.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	deadline time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper that runs a batch every interval. Each
// batch is bounded by deadline when it is positive.
func NewSweeper(svc *Service, interval, deadline time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{svc: svc, interval: interval, deadline: deadline, logger: svc.logger}
}

// SweepOnce runs a single batch over the pending candidates.
func (sw *Sweeper) SweepOnce(ctx context.Context) (*BatchResult, error) {
	if sw.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sw.deadline)
		defer cancel()
	}
	return sw.svc.EvaluateBatch(ctx, nil, false)
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
// Sweep errors are logged and do not stop the loop. Returns nil on
// cancellation.
func (sw *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		if _, err := sw.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			sw.logger.Error("sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
