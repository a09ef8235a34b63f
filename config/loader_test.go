package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/novacare/authsync/errors"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfigFile(t, "authsync.jsonc", `{
		// staging environment
		"service": {
			"base_url": "https://epa.staging.example.com",
			"stream_url": "wss://epa.staging.example.com/api/v1/authorizations/stream",
			"request_timeout": "15s",
		},
		"store": {
			"ttl": "2m"
		},
		"search": {
			"debounce_window": "150ms"
		},
		"log": { "level": "debug" }
	}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	// Overridden values.
	assert.Equal(t, "https://epa.staging.example.com", cfg.Service.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Service.RequestTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Store.TTL)
	assert.Equal(t, 150*time.Millisecond, cfg.Search.DebounceWindow)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Siblings keep their defaults.
	assert.Equal(t, 30*time.Minute, cfg.Store.Retention)
	assert.Equal(t, time.Minute, cfg.Store.SweepInterval)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoader_LayersMergeInOrder(t *testing.T) {
	base := writeConfigFile(t, "base.json", `{
		"service": {"base_url": "https://epa.example.com"},
		"store": {"ttl": "2m", "retention": "20m"}
	}`)
	override := writeConfigFile(t, "override.json", `{
		"store": {"ttl": "3m"}
	}`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://epa.example.com", cfg.Service.BaseURL)
	assert.Equal(t, 3*time.Minute, cfg.Store.TTL)
	assert.Equal(t, 20*time.Minute, cfg.Store.Retention)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("AUTHSYNC_BASE_URL", "https://epa.prod.example.com")
	t.Setenv("AUTHSYNC_TOKEN_ENV", "EPA_BEARER")
	t.Setenv("AUTHSYNC_LOG_LEVEL", "warn")
	t.Setenv("AUTHSYNC_METRICS_PORT", "9191")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "https://epa.prod.example.com", cfg.Service.BaseURL)
	assert.Equal(t, "EPA_BEARER", cfg.Service.TokenEnv)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 9191, cfg.Metrics.Port)
}

func TestLoader_EnvOverridesBeatFileLayers(t *testing.T) {
	path := writeConfigFile(t, "authsync.json", `{
		"service": {"base_url": "https://file.example.com"}
	}`)
	t.Setenv("AUTHSYNC_BASE_URL", "https://env.example.com")

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Service.BaseURL)
}

func TestLoader_ValidationEnabled(t *testing.T) {
	path := writeConfigFile(t, "authsync.json", `{
		"store": {"ttl": "10m", "retention": "1m"}
	}`)

	loader := NewLoader()
	loader.EnableValidation(true)

	_, err := loader.LoadFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMissingConfig) // base_url check fires first
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot stat config file")
}

func TestLoader_RejectsNonJSONPath(t *testing.T) {
	path := writeConfigFile(t, "authsync.toml", `base_url = "x"`)
	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only JSON config files")
}

func TestLoader_MalformedJSON(t *testing.T) {
	path := writeConfigFile(t, "authsync.json", `{"service": {`)
	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
}

func TestDeepMergeMaps(t *testing.T) {
	base := map[string]any{
		"a": map[string]any{"x": 1, "y": 2},
		"b": "keep",
	}
	override := map[string]any{
		"a": map[string]any{"y": 3},
		"c": "new",
	}

	merged := deepMergeMaps(base, override)

	inner, ok := merged["a"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, inner["x"])
	assert.Equal(t, 3, inner["y"])
	assert.Equal(t, "keep", merged["b"])
	assert.Equal(t, "new", merged["c"])

	// Base map is untouched.
	assert.Equal(t, 2, base["a"].(map[string]any)["y"])
}
