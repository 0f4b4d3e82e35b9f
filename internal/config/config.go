// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults, Load(ctx) to layer file and env on top.
// - External errors must be wrapped with this package's sentinels.
package config

import (
	"fmt"
	"runtime"
)

// Storage drivers accepted by StorageDriver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the async rescore queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of rescore workers.
	WorkerCount int `koanf:"worker_count"`

	// StorageDriver selects memory, postgres or sqlite.
	StorageDriver string `koanf:"storage_driver"`

	// StorageDSN is passed to the driver. Ignored for memory.
	StorageDSN string `koanf:"storage_dsn"`

	// RuleSetsFile optionally names a YAML file of extra rule sets to publish at start.
	RuleSetsFile string `koanf:"rule_sets_file"`

	// DefaultRuleSetVersion is used when a score request omits the version.
	DefaultRuleSetVersion int `koanf:"default_rule_set_version"`

	// LockMode is wait or reject for concurrent runs on one game.
	LockMode string `koanf:"lock_mode"`

	// ScoreRateLimit and ScoreRateBurst bound POST /score per second.
	ScoreRateLimit float64 `koanf:"score_rate_limit"`
	ScoreRateBurst int     `koanf:"score_rate_burst"`

	// NotifyTopic is the pub/sub topic for game.scored events.
	NotifyTopic string `koanf:"notify_topic"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		QueueSize:             1024,
		WorkerCount:           runtime.NumCPU(),
		StorageDriver:         DriverMemory,
		DefaultRuleSetVersion: 1,
		LockMode:              "wait",
		ScoreRateLimit:        20,
		ScoreRateBurst:        40,
		NotifyTopic:           "game.scored",
	}
}

// Validate checks the invariants Load enforces.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.StorageDriver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.StorageDSN == "" {
			return fmt.Errorf("%w: storage_dsn is required for %s", ErrInvalidConfig, c.StorageDriver)
		}
	default:
		return fmt.Errorf("%w: unknown storage_driver %q", ErrInvalidConfig, c.StorageDriver)
	}
	switch c.LockMode {
	case "wait", "reject":
	default:
		return fmt.Errorf("%w: unknown lock_mode %q", ErrInvalidConfig, c.LockMode)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.DefaultRuleSetVersion <= 0 {
		return fmt.Errorf("%w: default_rule_set_version must be positive", ErrInvalidConfig)
	}
	if c.QueueSize <= 0 || c.WorkerCount <= 0 {
		return fmt.Errorf("%w: queue_size and worker_count must be positive", ErrInvalidConfig)
	}
	if c.ScoreRateLimit < 0 || c.ScoreRateBurst < 0 {
		return fmt.Errorf("%w: negative rate limit", ErrInvalidConfig)
	}
	return nil
}
