// Package config defines service configuration and its loading.
//
// Conventions:
// - New(ctx) returns a Config holding every default.
// - Load(ctx) layers a YAML file and SPC_ environment variables on top.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory measurement queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ingest workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many measurement event IDs are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// ShardCount configures the number of lock shards in the column store.
	ShardCount int `koanf:"shard_count"`

	// MaxPoints is the rolling window kept per column; 0 keeps everything.
	MaxPoints int `koanf:"max_points"`

	// CacheSize bounds the in-process result cache; 0 disables it.
	CacheSize int `koanf:"cache_size"`

	// CacheTTLSeconds expires cached results; 0 keeps them until evicted.
	CacheTTLSeconds int `koanf:"cache_ttl_seconds"`

	// RedisAddr enables the shared Redis result cache when set.
	RedisAddr string `koanf:"redis_addr"`

	// HistogramPadSigma widens capability histograms to mean ± k·sigma.
	HistogramPadSigma float64 `koanf:"histogram_pad_sigma"`

	// MaxRequestValues caps the number of values accepted in one request.
	MaxRequestValues int `koanf:"max_request_values"`

	// MonitorRules re-evaluates control rules after every measurement.
	MonitorRules bool `koanf:"monitor_rules"`
}

// New creates a Config holding the defaults. The context is accepted to
// keep the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		QueueSize:         10_000,
		WorkerCount:       runtime.NumCPU(),
		DedupeSize:        100_000,
		ShardCount:        16,
		MaxPoints:         1000,
		CacheSize:         4096,
		CacheTTLSeconds:   300,
		RedisAddr:         "",
		HistogramPadSigma: 0,
		MaxRequestValues:  100_000,
		MonitorRules:      true,
	}
}

// CacheTTL returns CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	case c.WorkerCount < 0:
		return fmt.Errorf("%w: worker_count must not be negative, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.ShardCount < 1:
		return fmt.Errorf("%w: shard_count must be positive, got %d", ErrInvalidConfig, c.ShardCount)
	case c.MaxPoints < 0, c.CacheSize < 0, c.CacheTTLSeconds < 0, c.DedupeSize < 0:
		return fmt.Errorf("%w: sizes and ttl must not be negative", ErrInvalidConfig)
	case c.HistogramPadSigma < 0:
		return fmt.Errorf("%w: histogram_pad_sigma must not be negative", ErrInvalidConfig)
	case c.MaxRequestValues < 1:
		return fmt.Errorf("%w: max_request_values must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
