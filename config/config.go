package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	apperrors "github.com/novacare/authsync/errors"
)

// Config is the complete client configuration. All sections have working
// defaults; only service.base_url must be supplied.
type Config struct {
	Service ServiceConfig `json:"service"`
	Store   StoreConfig   `json:"store"`
	Search  SearchConfig  `json:"search"`
	Retry   RetryConfig   `json:"retry"`
	Stream  StreamConfig  `json:"stream"`
	Metrics MetricsConfig `json:"metrics"`
	Log     LogConfig     `json:"log"`
}

// ServiceConfig locates the remote authorization service.
type ServiceConfig struct {
	BaseURL        string        `json:"base_url"`
	StreamURL      string        `json:"stream_url,omitempty"`
	TokenEnv       string        `json:"token_env,omitempty"` // env var holding the bearer token
	RequestTimeout time.Duration `json:"request_timeout,omitempty"`
}

// StoreConfig controls the local record store windows.
type StoreConfig struct {
	TTL           time.Duration `json:"ttl,omitempty"`
	Retention     time.Duration `json:"retention,omitempty"`
	SweepInterval time.Duration `json:"sweep_interval,omitempty"`
	SnapshotPath  string        `json:"snapshot_path,omitempty"` // empty disables warm starts
}

// SearchConfig controls search request coalescing.
type SearchConfig struct {
	DebounceWindow time.Duration `json:"debounce_window,omitempty"`
}

// RetryConfig controls backoff for transient remote failures.
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts,omitempty"`
	InitialDelay time.Duration `json:"initial_delay,omitempty"`
	MaxDelay     time.Duration `json:"max_delay,omitempty"`
	Multiplier   float64       `json:"multiplier,omitempty"`
	Jitter       bool          `json:"jitter"`
}

// StreamConfig controls the live metrics stream connection.
type StreamConfig struct {
	Enabled            bool          `json:"enabled"`
	MaxReconnects      int           `json:"max_reconnects,omitempty"`
	StalenessThreshold time.Duration `json:"staleness_threshold,omitempty"`
	HandshakeTimeout   time.Duration `json:"handshake_timeout,omitempty"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // text, json
}

// Default returns the configuration used when no file or overrides are given.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			TokenEnv:       "AUTHSYNC_TOKEN",
			RequestTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			TTL:           5 * time.Minute,
			Retention:     30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Search: SearchConfig{
			DebounceWindow: 300 * time.Millisecond,
		},
		Retry: RetryConfig{
			MaxAttempts:  4,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		Stream: StreamConfig{
			Enabled:            true,
			MaxReconnects:      3,
			StalenessThreshold: 30 * time.Second,
			HandshakeTimeout:   10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var logFormats = map[string]bool{"text": true, "json": true}

// Validate checks the configuration for missing or contradictory settings.
func (c *Config) Validate() error {
	if c.Service.BaseURL == "" {
		return fmt.Errorf("config: service.base_url is required: %w", apperrors.ErrMissingConfig)
	}
	u, err := url.Parse(c.Service.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("config: service.base_url %q is not an http(s) URL: %w", c.Service.BaseURL, apperrors.ErrInvalidConfig)
	}
	if c.Service.StreamURL != "" {
		su, err := url.Parse(c.Service.StreamURL)
		if err != nil || su.Host == "" || (su.Scheme != "ws" && su.Scheme != "wss") {
			return fmt.Errorf("config: service.stream_url %q is not a ws(s) URL: %w", c.Service.StreamURL, apperrors.ErrInvalidConfig)
		}
	}
	if c.Service.RequestTimeout < 0 {
		return fmt.Errorf("config: service.request_timeout must not be negative: %w", apperrors.ErrInvalidConfig)
	}

	if c.Store.TTL <= 0 {
		return fmt.Errorf("config: store.ttl must be positive: %w", apperrors.ErrInvalidConfig)
	}
	if c.Store.Retention < c.Store.TTL {
		return fmt.Errorf("config: store.retention %s is shorter than store.ttl %s: %w",
			c.Store.Retention, c.Store.TTL, apperrors.ErrInvalidConfig)
	}
	if c.Store.SweepInterval <= 0 {
		return fmt.Errorf("config: store.sweep_interval must be positive: %w", apperrors.ErrInvalidConfig)
	}

	if c.Search.DebounceWindow < 0 {
		return fmt.Errorf("config: search.debounce_window must not be negative: %w", apperrors.ErrInvalidConfig)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry.max_attempts must be at least 1: %w", apperrors.ErrInvalidConfig)
	}
	if c.Retry.InitialDelay <= 0 || c.Retry.MaxDelay < c.Retry.InitialDelay {
		return fmt.Errorf("config: retry delays must satisfy 0 < initial_delay <= max_delay: %w", apperrors.ErrInvalidConfig)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("config: retry.multiplier must be at least 1: %w", apperrors.ErrInvalidConfig)
	}

	if c.Stream.MaxReconnects < 0 {
		return fmt.Errorf("config: stream.max_reconnects must not be negative: %w", apperrors.ErrInvalidConfig)
	}
	if c.Stream.StalenessThreshold <= 0 {
		return fmt.Errorf("config: stream.staleness_threshold must be positive: %w", apperrors.ErrInvalidConfig)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("config: metrics.port %d out of range: %w", c.Metrics.Port, apperrors.ErrInvalidConfig)
	}

	if c.Log.Level != "" && !logLevels[c.Log.Level] {
		return fmt.Errorf("config: unknown log.level %q: %w", c.Log.Level, apperrors.ErrInvalidConfig)
	}
	if c.Log.Format != "" && !logFormats[c.Log.Format] {
		return fmt.Errorf("config: unknown log.format %q: %w", c.Log.Format, apperrors.ErrInvalidConfig)
	}

	return nil
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
