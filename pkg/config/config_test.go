package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "DIFY_API_URL", "DIFY_API_KEY", "COMPREFACE_URL", "COMPREFACE_API_KEY",
		"DEBOUNCE_WINDOW_MS", "DETECTION_LOG_CAPACITY", "ALLOWED_ORIGINS", "REDIS_ENABLED",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, "https://api.dify.ai/v1", cfg.Dify.BaseURL)
	assert.Equal(t, "http://localhost:8000", cfg.CompreFace.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Relay.DebounceWindow)
	assert.Equal(t, 0, cfg.Relay.DetectionLogCapacity)
	assert.Equal(t, time.Duration(0), cfg.Dify.Timeout)
	assert.False(t, cfg.Redis.Enabled)
	assert.Len(t, cfg.Server.AllowedOrigins, 4)
	assert.Contains(t, cfg.Server.AllowedOrigins, "http://localhost:3000")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DIFY_API_URL", "http://dify.internal/v1/")
	t.Setenv("DIFY_API_KEY", "app-secret")
	t.Setenv("COMPREFACE_API_KEY", "cf-secret")
	t.Setenv("DEBOUNCE_WINDOW_MS", "500")
	t.Setenv("DIFY_TIMEOUT", "45s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, "http://dify.internal/v1", cfg.Dify.BaseURL)
	assert.Equal(t, "app-secret", cfg.Dify.APIKey)
	assert.Equal(t, "cf-secret", cfg.CompreFace.APIKey)
	assert.Equal(t, 500*time.Millisecond, cfg.Relay.DebounceWindow)
	assert.Equal(t, 45*time.Second, cfg.Dify.Timeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("DIFY_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, time.Duration(0), cfg.Dify.Timeout)
}

func TestLoad_RejectsNegativeCapacity(t *testing.T) {
	t.Setenv("DETECTION_LOG_CAPACITY", "-1")

	_, err := Load()
	assert.Error(t, err)
}
