// Package config loads driftwatch configuration from YAML.
//
// Values may reference environment variables as ${NAME}. After decoding,
// the configuration is checked against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/driftwatch/internal/engine"
	"github.com/roach88/driftwatch/internal/scheduler"
	"github.com/roach88/driftwatch/internal/store"
	"github.com/roach88/driftwatch/internal/telemetry"
)

//go:embed schema.cue
var schemaSource string

// Config is the driftwatch configuration file.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Engine    EngineConfig    `yaml:"engine" json:"engine"`
	Graph     GraphConfig     `yaml:"graph" json:"graph"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// SchedulerConfig durations use time.ParseDuration syntax. An empty or
// zero deadline means none.
type SchedulerConfig struct {
	StaleHours       int    `yaml:"stale_hours" json:"stale_hours"`
	ExpiryWindowDays int    `yaml:"expiry_window_days" json:"expiry_window_days"`
	BatchLimit       int    `yaml:"batch_limit" json:"batch_limit"`
	Concurrency      int    `yaml:"concurrency" json:"concurrency"`
	MaxItems         int    `yaml:"max_items" json:"max_items"`
	BatchDeadline    string `yaml:"batch_deadline" json:"batch_deadline"`
	SweepInterval    string `yaml:"sweep_interval" json:"sweep_interval"`
	SweepDeadline    string `yaml:"sweep_deadline" json:"sweep_deadline"`
}

// EngineConfig tunes the health scoring of the evaluation engine.
type EngineConfig struct {
	ShakyWeight          float64 `yaml:"shaky_weight" json:"shaky_weight"`
	BrokenThreshold      float64 `yaml:"broken_threshold" json:"broken_threshold"`
	MaxAssumptionPenalty int     `yaml:"max_assumption_penalty" json:"max_assumption_penalty"`
	ExpiryGraceDays      int     `yaml:"expiry_grace_days" json:"expiry_grace_days"`
	ExpiryWarningDays    int     `yaml:"expiry_warning_days" json:"expiry_warning_days"`
	ExpiryMaxDecay       int     `yaml:"expiry_max_decay" json:"expiry_max_decay"`
	ReviewDecayDays      int     `yaml:"review_decay_days" json:"review_decay_days"`
}

// GraphConfig bounds the dependency graph.
type GraphConfig struct {
	MaxDependencyDepth int `yaml:"max_dependency_depth" json:"max_dependency_depth"`
}

// TelemetryConfig selects the trace and metric exporters.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" json:"service_name"`
	TraceExporter  string `yaml:"trace_exporter" json:"trace_exporter"`
	MetricExporter string `yaml:"metric_exporter" json:"metric_exporter"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	// PrometheusAddr is where `driftwatch run` serves /metrics when the
	// metric exporter is prometheus.
	PrometheusAddr string `yaml:"prometheus_addr" json:"prometheus_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	p := engine.DefaultParams()
	return Config{
		Database: DatabaseConfig{Path: "driftwatch.db"},
		Scheduler: SchedulerConfig{
			StaleHours:       24,
			ExpiryWindowDays: 30,
			BatchLimit:       500,
			Concurrency:      4,
			BatchDeadline:    "30s",
			SweepInterval:    "5m",
			SweepDeadline:    "2m",
		},
		Engine: EngineConfig{
			ShakyWeight:          p.ShakyWeight,
			BrokenThreshold:      p.BrokenThreshold,
			MaxAssumptionPenalty: p.MaxAssumptionPenalty,
			ExpiryGraceDays:      p.ExpiryGraceDays,
			ExpiryWarningDays:    p.ExpiryWarningDays,
			ExpiryMaxDecay:       p.ExpiryMaxDecay,
			ReviewDecayDays:      p.ReviewDecayDays,
		},
		Graph: GraphConfig{MaxDependencyDepth: store.DefaultMaxDependencyDepth},
		Telemetry: TelemetryConfig{
			ServiceName:    "driftwatch",
			TraceExporter:  telemetry.ExporterNone,
			MetricExporter: telemetry.ExporterNone,
			OTLPEndpoint:   "localhost:4317",
			PrometheusAddr: ":9464",
		},
	}
}

// Load reads the file at path over the defaults. Keys absent from the
// file keep their default; unknown keys are an error. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks c against the schema and parses its durations.
func (c Config) Validate() error {
	cuectx := cuecontext.New()
	schema := cuectx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := cuectx.Encode(c)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", strings.Join(details(err), "; "))
	}

	for name, s := range map[string]string{
		"scheduler.batch_deadline": c.Scheduler.BatchDeadline,
		"scheduler.sweep_interval": c.Scheduler.SweepInterval,
		"scheduler.sweep_deadline": c.Scheduler.SweepDeadline,
	} {
		if _, err := parseDuration(s); err != nil {
			return fmt.Errorf("invalid config: %s: %w", name, err)
		}
	}
	if c.Scheduler.SweepInterval != "" {
		if d, _ := parseDuration(c.Scheduler.SweepInterval); d <= 0 {
			return fmt.Errorf("invalid config: scheduler.sweep_interval must be positive")
		}
	}

	if c.Telemetry.TraceExporter == telemetry.ExporterOTLP && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("invalid config: telemetry.otlp_endpoint is required when trace_exporter=otlp")
	}
	if c.Telemetry.MetricExporter == telemetry.ExporterPrometheus && c.Telemetry.PrometheusAddr == "" {
		return fmt.Errorf("invalid config: telemetry.prometheus_addr is required when metric_exporter=prometheus")
	}
	return nil
}

func details(err error) []string {
	var out []string
	for _, e := range cueerrors.Errors(err) {
		out = append(out, strings.TrimSpace(e.Error()))
	}
	if len(out) == 0 {
		out = append(out, err.Error())
	}
	return out
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// mustDuration is for durations Validate has already accepted.
func mustDuration(s string) time.Duration {
	d, err := parseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// Params returns the engine parameters.
func (c Config) Params() engine.Params {
	p := engine.DefaultParams()
	p.ShakyWeight = c.Engine.ShakyWeight
	p.BrokenThreshold = c.Engine.BrokenThreshold
	p.MaxAssumptionPenalty = c.Engine.MaxAssumptionPenalty
	p.ExpiryGraceDays = c.Engine.ExpiryGraceDays
	p.ExpiryWarningDays = c.Engine.ExpiryWarningDays
	p.ExpiryMaxDecay = c.Engine.ExpiryMaxDecay
	p.ReviewDecayDays = c.Engine.ReviewDecayDays
	return p
}

// EngineOptions configures an engine.Engine.
func (c Config) EngineOptions() []engine.Option {
	return []engine.Option{engine.WithParams(c.Params())}
}

// StoreOptions configures store.Open.
func (c Config) StoreOptions() []store.Option {
	return []store.Option{store.WithMaxDependencyDepth(c.Graph.MaxDependencyDepth)}
}

// Policy returns the staleness policy.
func (c Config) Policy() scheduler.Policy {
	return scheduler.Policy{
		StaleAfter:   time.Duration(c.Scheduler.StaleHours) * time.Hour,
		ExpiryWindow: time.Duration(c.Scheduler.ExpiryWindowDays) * 24 * time.Hour,
	}
}

// SchedulerOptions configures scheduler.New. Callers add clock, logger
// and publisher options themselves.
func (c Config) SchedulerOptions() []scheduler.Option {
	return []scheduler.Option{
		scheduler.WithPolicy(c.Policy()),
		scheduler.WithBatchLimit(c.Scheduler.BatchLimit),
		scheduler.WithConcurrency(c.Scheduler.Concurrency),
		scheduler.WithMaxItems(c.Scheduler.MaxItems),
		scheduler.WithBatchDeadline(mustDuration(c.Scheduler.BatchDeadline)),
	}
}

// SweepInterval is the period of the sweeper in `driftwatch run`.
func (c Config) SweepInterval() time.Duration {
	return mustDuration(c.Scheduler.SweepInterval)
}

// SweepDeadline bounds one sweep; zero means none.
func (c Config) SweepDeadline() time.Duration {
	return mustDuration(c.Scheduler.SweepDeadline)
}

// ExporterConfig converts the telemetry section.
func (c Config) ExporterConfig(version string) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceName = c.Telemetry.ServiceName
	tc.TraceExporter = c.Telemetry.TraceExporter
	tc.MetricExporter = c.Telemetry.MetricExporter
	tc.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	if version != "" {
		tc.ServiceVersion = version
	}
	return tc
}
