package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/novacare/authsync/errors"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Service.BaseURL = "https://epa.example.com"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5*time.Minute, cfg.Store.TTL)
	assert.Equal(t, 30*time.Minute, cfg.Store.Retention)
	assert.Equal(t, time.Minute, cfg.Store.SweepInterval)
	assert.Equal(t, 300*time.Millisecond, cfg.Search.DebounceWindow)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 3, cfg.Stream.MaxReconnects)
	assert.Equal(t, 30*time.Second, cfg.Stream.StalenessThreshold)
	assert.Equal(t, "AUTHSYNC_TOKEN", cfg.Service.TokenEnv)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Metrics.Enabled)

	// Defaults alone are not a runnable config.
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMissingConfig)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "valid config passes",
			mutate:  func(c *Config) {},
			wantErr: nil,
		},
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.Service.BaseURL = "" },
			wantErr: apperrors.ErrMissingConfig,
		},
		{
			name:    "base url wrong scheme",
			mutate:  func(c *Config) { c.Service.BaseURL = "ftp://epa.example.com" },
			wantErr: apperrors.ErrInvalidConfig,
		},
		{
			name:    "stream url must be websocket",
			mutate:  func(c *Config) { c.Service.StreamURL = "https://epa.example.com/stream" },
			wantErr: apperrors.ErrInvalidConfig,
		},
		{
			name:    "stream url websocket accepted",
			mutate:  func(c *Config) { c.Service.StreamURL = "wss://epa.example.com/stream" },
			wantErr: nil,
		},
		{
			name:    "zero ttl",
			mutate:  func(c *Config) { c.Store.TTL = 0 },
			wantErr: apperrors.ErrInvalidConfig,
		},
		{
			name: "retention shorter than ttl",
			mutate: func(c *Config) {
				c.Store.TTL = 10 * time.Minute
				c.Store.Retention = 5 * time.Minute
			},
			wantErr: apperrors.ErrInvalidConfig,
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *Config) { c.Retry.MaxAttempts = 0 },
			wantErr: apperrors.ErrInvalidConfig,
		},
		{
			name: "max delay below initial delay",
			mutate: func(c *Config) {
				c.Retry.InitialDelay = 5 * time.Second
				c.Retry.MaxDelay = time.Second
			},
			wantErr: apperrors.ErrInvalidConfig,
		},
		{
			name:    "multiplier below one",
			mutate:  func(c *Config) { c.Retry.Multiplier = 0.5 },
			wantErr: apperrors.ErrInvalidConfig,
		},
		{
			name:    "negative reconnects",
			mutate:  func(c *Config) { c.Stream.MaxReconnects = -1 },
			wantErr: apperrors.ErrInvalidConfig,
		},
		{
			name: "metrics port out of range",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 70000
			},
			wantErr: apperrors.ErrInvalidConfig,
		},
		{
			name:    "metrics port ignored when disabled",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: nil,
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: apperrors.ErrInvalidConfig,
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Log.Format = "logfmt" },
			wantErr: apperrors.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfig_SaveToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authsync.json")

	cfg := validConfig()
	cfg.Store.TTL = 2 * time.Minute
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Service.BaseURL, loaded.Service.BaseURL)
	assert.Equal(t, 2*time.Minute, loaded.Store.TTL)
}

func TestConfig_SaveToFileRejectsOtherExtensions(t *testing.T) {
	err := validConfig().SaveToFile(filepath.Join(t.TempDir(), "authsync.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only JSON config files")
}
