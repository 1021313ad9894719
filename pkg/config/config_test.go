package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Registry.MaxConnections)
	assert.Equal(t, 30*time.Second, cfg.Registry.IdleTimeout)
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
signaling:
  base_url: "wss://signal.example.com"
registry:
  max_connections: 3
  reconnect_interval: 5s
logging:
  level: "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://signal.example.com", cfg.Signaling.BaseURL)
	assert.Equal(t, 3, cfg.Registry.MaxConnections)
	assert.Equal(t, 5*time.Second, cfg.Registry.ReconnectInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Unset sections keep their defaults.
	assert.Equal(t, 5, cfg.Registry.MaxReconnectAttempts)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SAFESPACE_SIGNALING_URL", "wss://override.example.com")
	t.Setenv("SAFESPACE_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "wss://override.example.com", cfg.Signaling.BaseURL)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty http address", func(c *Config) { c.HTTP.Address = "" }, "http.address"},
		{"bad signaling scheme", func(c *Config) { c.Signaling.BaseURL = "http://x" }, "signaling.base_url"},
		{"zero max connections", func(c *Config) { c.Registry.MaxConnections = 0 }, "registry.max_connections"},
		{"negative reconnect attempts", func(c *Config) { c.Registry.MaxReconnectAttempts = -1 }, "registry.max_reconnect_attempts"},
		{"zero reconnect interval", func(c *Config) { c.Registry.ReconnectInterval = 0 }, "registry.reconnect_interval"},
		{"half port range", func(c *Config) { c.WebRTC.PortRange.Min = 10000 }, "webrtc.port_range"},
		{"inverted port range", func(c *Config) {
			c.WebRTC.PortRange.Min = 20000
			c.WebRTC.PortRange.Max = 10000
		}, "webrtc.port_range"},
		{"empty token secret", func(c *Config) { c.Auth.TokenSecret = "" }, "auth.token_secret"},
		{"rate limit without rps", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.RequestsPerSecond = 0
		}, "rate_limiting.requests_per_second"},
		{"tracing without jaeger url", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.JaegerURL = ""
		}, "tracing.jaeger_url"},
		{"bad sample rate", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 2.0
		}, "tracing.sample_rate"},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
