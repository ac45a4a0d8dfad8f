// Package config loads arbicore's enumerated configuration surface from
// YAML with environment-variable overrides and sane defaults, grounded on
// AlejandroRuiz99-polybot/config/config.go's Load/applyEnvOverrides/
// setDefaults structure.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is arbicore's full configuration surface, matching the
// enumerated list in SPEC_FULL.md §6.
type Config struct {
	Quoting QuotingConfig `yaml:"quoting"`
	Pruning PruningConfig `yaml:"pruning"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// QuotingConfig controls C3/C4/C5 thresholds.
type QuotingConfig struct {
	MaxSwapFractionBps   uint32 `yaml:"max_swap_fraction_bps"`
	RebuildIntervalBlocks int   `yaml:"rebuild_interval_blocks"`
	QuoteBudgetMs        int    `yaml:"quote_budget_ms"`
}

// PruningConfig controls C6 thresholds.
type PruningConfig struct {
	MaxCycleLength   int     `yaml:"max_cycle_length"`
	MinPoolReserveRef float64 `yaml:"min_pool_reserve_ref"`
}

// StorageConfig points at the cycle store's backing database file.
type StorageConfig struct {
	DSN string `yaml:"dsn"`
}

// MetricsConfig controls the Prometheus HTTP listener.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig controls log/slog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// QuoteBudget returns the quoting phase's wall-clock budget as a
// time.Duration, per SPEC_FULL.md §5's per-invocation timeout.
func (c *Config) QuoteBudget() time.Duration {
	return time.Duration(c.Quoting.QuoteBudgetMs) * time.Millisecond
}

// Load reads path as YAML, applies ARBICORE_* environment overrides, and
// fills in defaults for any field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ARBICORE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ARBICORE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("ARBICORE_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("ARBICORE_METRICS_LISTEN_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	if v := os.Getenv("ARBICORE_QUOTE_BUDGET_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Quoting.QuoteBudgetMs = ms
		}
	}
}

func setDefaults(cfg *Config) {
	if cfg.Quoting.MaxSwapFractionBps == 0 {
		cfg.Quoting.MaxSwapFractionBps = 100
	}
	if cfg.Quoting.RebuildIntervalBlocks <= 0 {
		cfg.Quoting.RebuildIntervalBlocks = 1024
	}
	if cfg.Quoting.QuoteBudgetMs <= 0 {
		cfg.Quoting.QuoteBudgetMs = 1600
	}
	if cfg.Pruning.MaxCycleLength <= 0 {
		cfg.Pruning.MaxCycleLength = 3
	}
	if cfg.Pruning.MinPoolReserveRef <= 0 {
		cfg.Pruning.MinPoolReserveRef = 1000
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "arbicore.db"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9464"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
