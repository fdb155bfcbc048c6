// Package config provides configuration loading for remedyd.
//
// Configuration is loaded from a YAML file and overridden by
// environment variables, with hardcoded defaults filling the gaps.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/remedyd/internal/capability"
	"github.com/fyrsmithlabs/remedyd/internal/risk"
)

// Config holds the complete remedyd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	NATS          NATSConfig          `koanf:"nats"`
	Storage       StorageConfig       `koanf:"storage"`
	Engine        EngineConfig        `koanf:"engine"`
	Executor      ExecutorConfig      `koanf:"executor"`
	Learning      LearningConfig      `koanf:"learning"`
	Risk          RiskConfig          `koanf:"risk"`
	Policy        PolicyConfig        `koanf:"policy"`
	Pattern       PatternConfig       `koanf:"pattern"`

	// sourcePath is the file the config was loaded from, if any.
	sourcePath string
}

// SourcePath returns the path of the loaded config file, or "" when
// the configuration came from defaults and environment only.
func (c *Config) SourcePath() string { return c.sourcePath }

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
}

// NATSConfig holds lifecycle notification configuration.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

// StorageConfig holds the embedded database configuration.
type StorageConfig struct {
	Path       string   `koanf:"path"`
	InMemory   bool     `koanf:"in_memory"`
	SyncWrites bool     `koanf:"sync_writes"`
	GCInterval Duration `koanf:"gc_interval"`
}

// EngineConfig holds orchestration configuration.
type EngineConfig struct {
	SweepInterval Duration `koanf:"sweep_interval"`
}

// ExecutorConfig holds execution configuration. When Runbooks is
// empty the daemon starts with a dry-run capability.
type ExecutorConfig struct {
	TimeoutFloor Duration                      `koanf:"timeout_floor"`
	MaxRetries   int                           `koanf:"max_retries"`
	Runbooks     map[string]capability.Runbook `koanf:"runbooks"`
}

// LearningConfig holds learning service configuration.
type LearningConfig struct {
	RetryInterval     Duration `koanf:"retry_interval"`
	MaxPending        int      `koanf:"max_pending"`
	MinSamplesForBest int      `koanf:"min_samples_for_best"`
}

// RiskConfig holds classifier configuration.
type RiskConfig struct {
	HistoryAdjustmentBound float64 `koanf:"history_adjustment_bound"`
	MinHistorySamples      int     `koanf:"min_history_samples"`
}

// PolicyConfig holds the declarative approval policy. Keys of the maps
// are risk tier names (SAFE, LOW, MEDIUM, HIGH, CRITICAL).
type PolicyConfig struct {
	Dispositions     map[string]string   `koanf:"dispositions"`
	ApprovalTimeouts map[string]Duration `koanf:"approval_timeouts"`
	TargetBusy       string              `koanf:"target_busy"`
}

// PatternConfig holds detection configuration.
type PatternConfig struct {
	Enabled               bool     `koanf:"enabled"`
	AnalysisInterval      Duration `koanf:"analysis_interval"`
	MinFailures           int      `koanf:"min_failures"`
	MaxIntervalCV         float64  `koanf:"max_interval_cv"`
	MinTrendSamples       int      `koanf:"min_trend_samples"`
	DefaultSlopeThreshold float64  `koanf:"default_slope_threshold"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8484
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "remedyd"
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}

	if cfg.Storage.GCInterval == 0 {
		cfg.Storage.GCInterval = Duration(5 * time.Minute)
	}
	// No data directory means nothing can persist; fall back to the
	// ephemeral store rather than refusing to start.
	if cfg.Storage.Path == "" {
		cfg.Storage.InMemory = true
	}

	if cfg.Engine.SweepInterval == 0 {
		cfg.Engine.SweepInterval = Duration(30 * time.Second)
	}

	if cfg.Executor.TimeoutFloor == 0 {
		cfg.Executor.TimeoutFloor = Duration(30 * time.Second)
	}
	if cfg.Executor.MaxRetries == 0 {
		cfg.Executor.MaxRetries = 1
	}

	if cfg.Learning.RetryInterval == 0 {
		cfg.Learning.RetryInterval = Duration(30 * time.Second)
	}
	if cfg.Learning.MaxPending == 0 {
		cfg.Learning.MaxPending = 1024
	}
	if cfg.Learning.MinSamplesForBest == 0 {
		cfg.Learning.MinSamplesForBest = 3
	}

	if cfg.Risk.HistoryAdjustmentBound == 0 {
		cfg.Risk.HistoryAdjustmentBound = 0.15
	}
	if cfg.Risk.MinHistorySamples == 0 {
		cfg.Risk.MinHistorySamples = 5
	}

	if cfg.Pattern.AnalysisInterval == 0 {
		cfg.Pattern.AnalysisInterval = Duration(time.Minute)
	}
	if cfg.Pattern.MinFailures == 0 {
		cfg.Pattern.MinFailures = 3
	}
	if cfg.Pattern.MaxIntervalCV == 0 {
		cfg.Pattern.MaxIntervalCV = 0.2
	}
	if cfg.Pattern.MinTrendSamples == 0 {
		cfg.Pattern.MinTrendSamples = 10
	}
	if cfg.Pattern.DefaultSlopeThreshold == 0 {
		cfg.Pattern.DefaultSlopeThreshold = 1.0
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Executor.MaxRetries < 0 {
		return fmt.Errorf("executor max retries cannot be negative")
	}
	for kind, rb := range c.Executor.Runbooks {
		if len(rb.Command) == 0 {
			return fmt.Errorf("runbook %q has no command", kind)
		}
	}
	if c.Risk.HistoryAdjustmentBound < 0 || c.Risk.HistoryAdjustmentBound > 0.5 {
		return fmt.Errorf("risk history adjustment bound must be in [0, 0.5]")
	}
	if _, err := c.RiskPolicy(); err != nil {
		return err
	}
	return nil
}

// RiskPolicy materializes the policy section into a validated
// risk.Policy. Sections left empty inherit the default table.
func (c *Config) RiskPolicy() (*risk.Policy, error) {
	pol := risk.DefaultPolicy()

	for tier, disposition := range c.Policy.Dispositions {
		pol.Dispositions[risk.Tier(tier)] = risk.Disposition(disposition)
	}
	for tier, timeout := range c.Policy.ApprovalTimeouts {
		pol.ApprovalTimeouts[risk.Tier(tier)] = timeout.Duration()
	}
	if c.Policy.TargetBusy != "" {
		pol.TargetBusy = risk.TargetBusyMode(c.Policy.TargetBusy)
	}

	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy config: %w", err)
	}
	return pol, nil
}
