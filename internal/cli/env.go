package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/driftwatch/internal/config"
	"github.com/roach88/driftwatch/internal/engine"
	"github.com/roach88/driftwatch/internal/events"
	"github.com/roach88/driftwatch/internal/scheduler"
	"github.com/roach88/driftwatch/internal/store"
)

// env is everything a command that touches the database needs.
type env struct {
	cfg    config.Config
	store  *store.Store
	svc    *scheduler.Service
	bus    *events.Bus // nil unless withCascadeOnBus
	events *events.Handler
	clock  engine.Clock
	logger *slog.Logger
	out    *OutputFormatter
}

// envOption adjusts how openEnv wires the scheduler.
type envOption func(*envSettings)

type envSettings struct {
	clock  engine.Clock
	logger *slog.Logger

	// busCascade routes dependency cascades through the event bus.
	busCascade bool
}

// withCascadeOnBus makes the scheduler publish DependencyEvaluated events
// instead of flagging dependents inline.
func withCascadeOnBus() envOption {
	return func(s *envSettings) { s.busCascade = true }
}

// withLogger replaces the command logger.
func withLogger(l *slog.Logger) envOption {
	return func(s *envSettings) { s.logger = l }
}

// clockOverride lets tests pin the time used by commands.
var clockOverride engine.Clock

func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}
	return cfg, nil
}

func newLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openEnv loads config, opens the store and wires the scheduler and the
// event bus. The caller must call close.
func openEnv(opts *RootOptions, cmd *cobra.Command, eopts ...envOption) (*env, func(), error) {
	settings := envSettings{clock: engine.SystemClock{}}
	if clockOverride != nil {
		settings.clock = clockOverride
	}
	for _, o := range eopts {
		o(&settings)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	logger := settings.logger
	if logger == nil {
		logger = newLogger(opts, cmd)
	}

	st, err := store.Open(cfg.Database.Path, cfg.StoreOptions()...)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	svcOpts := append(cfg.SchedulerOptions(),
		scheduler.WithClock(settings.clock),
		scheduler.WithLogger(logger),
	)

	// The handler needs the service as its Marker and the service may need
	// the bus as its Publisher, so the handler gets a late-bound marker.
	marker := &lateMarker{}
	handler := events.NewHandler(marker, st)
	var bus *events.Bus
	if settings.busCascade {
		bus = events.NewBus(handler, logger)
		svcOpts = append(svcOpts, scheduler.WithPublisher(bus))
	}
	svc := scheduler.New(st, engine.New(cfg.EngineOptions()...), svcOpts...)
	marker.svc = svc

	e := &env{
		cfg:    cfg,
		store:  st,
		svc:    svc,
		bus:    bus,
		events: handler,
		clock:  settings.clock,
		logger: logger,
		out:    newFormatter(opts, cmd),
	}
	closeFn := func() {
		if bus != nil {
			bus.Close()
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing database", "error", err)
		}
	}
	return e, closeFn, nil
}

type lateMarker struct {
	svc *scheduler.Service
}

func (m *lateMarker) MarkForEvaluation(ctx context.Context, ids []string, reason string) (int, error) {
	return m.svc.MarkForEvaluation(ctx, ids, reason)
}

// dispatch handles one change event synchronously and returns the number
// of decisions it flagged.
func (e *env) dispatch(ctx context.Context, ev events.Event) (int, error) {
	n, err := e.events.Handle(ctx, ev)
	if err != nil {
		return n, WrapExitError(ExitFailure, "failed to flag affected decisions", err)
	}
	e.logger.Debug("event dispatched", "event", ev.Type.String(), "flagged", n)
	return n, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// storeError maps store sentinels to exit codes.
func storeError(msg string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrInvalidLink),
		errors.Is(err, store.ErrDependencyCycle),
		errors.Is(err, store.ErrRetired):
		return WrapExitError(ExitCommandError, msg, err)
	default:
		return WrapExitError(ExitFailure, msg, err)
	}
}

// parseTime accepts a date (2006-01-02, midnight UTC) or RFC 3339.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t.UTC().Truncate(time.Millisecond), nil
}
