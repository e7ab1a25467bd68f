package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/driftwatch/internal/scheduler"
	"github.com/roach88/driftwatch/internal/telemetry"
)

// shutdownTimeout bounds telemetry flushing and HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MetricsAddr string

	// ready is closed once every component has started (for testing).
	ready chan struct{}

	// boundMetricsAddr is the listener address, set before ready closes.
	boundMetricsAddr string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the evaluation scheduler",
		Long: `Run the scheduler daemon.

The daemon sweeps pending decisions every scheduler.sweep_interval and
dispatches change events, flagging dependents of every decision it
evaluates. With telemetry.metric_exporter set to prometheus, metrics are
served on /metrics at telemetry.prometheus_addr.

Example:
  driftwatch run --db ./driftwatch.db
  driftwatch run --config ./driftwatch.yaml --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "override telemetry.prometheus_addr")
	return cmd
}

func runDaemon(opts *RunOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Use command's context if available (for testing), otherwise create one
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	e, closeEnv, err := openEnv(opts.RootOptions, cmd, withCascadeOnBus(), withLogger(logger))
	if err != nil {
		return err
	}
	defer closeEnv()

	shutdownTelemetry, err := telemetry.Init(ctx, e.cfg.ExporterConfig(Version))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize telemetry", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer flushCancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if h := telemetry.MetricsHandler(); h != nil {
		addr := e.cfg.Telemetry.PrometheusAddr
		if opts.MetricsAddr != "" {
			addr = opts.MetricsAddr
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen for metrics", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", h)
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		opts.boundMetricsAddr = ln.Addr().String()
		slog.Info("serving metrics", "addr", opts.boundMetricsAddr)
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			return srv.Shutdown(stopCtx)
		})
	}

	g.Go(func() error {
		if err := e.bus.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("event bus: %w", err)
		}
		return nil
	})

	sweeper := scheduler.NewSweeper(e.svc, e.cfg.SweepInterval(), e.cfg.SweepDeadline())
	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	slog.Info("scheduler started",
		"db", e.cfg.Database.Path,
		"sweep_interval", e.cfg.SweepInterval().String(),
		"concurrency", e.cfg.Scheduler.Concurrency,
	)
	fmt.Fprintln(cmd.OutOrStdout(), "Scheduler started. Press Ctrl-C to stop.")
	if opts.ready != nil {
		close(opts.ready)
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "scheduler error", err)
	}
	slog.Info("scheduler stopped gracefully")
	return nil
}
