package config

import (
	"fmt"
	"os"
	"time"

	"safespace/pkg/validation"

	"gopkg.in/yaml.v2"
)

type Config struct {
	HTTP struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"http"`

	Signaling struct {
		BaseURL           string        `yaml:"base_url"`
		HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
		MessagesPerSecond float64       `yaml:"messages_per_second"`
		Burst             int           `yaml:"burst"`
	} `yaml:"signaling"`

	Registry struct {
		MaxConnections       int           `yaml:"max_connections"`
		MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
		ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
		IdleTimeout          time.Duration `yaml:"idle_timeout"`
		SweepInterval        time.Duration `yaml:"sweep_interval"`
	} `yaml:"registry"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		PortRange struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
	} `yaml:"webrtc"`

	Auth struct {
		TokenSecret string        `yaml:"token_secret"`
		TokenTTL    time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		MaxConcurrent     int     `yaml:"max_concurrent"`
	} `yaml:"rate_limiting"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		SampleRate  float64 `yaml:"sample_rate"`
		Environment string  `yaml:"environment"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// HTTP
	if c.HTTP.Address == "" {
		return fmt.Errorf("http.address must not be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("http.read_timeout must be > 0")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http.write_timeout must be > 0")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("http.shutdown_timeout must be > 0")
	}

	// Signaling
	if err := validation.ValidateSignalingURL(c.Signaling.BaseURL); err != nil {
		return fmt.Errorf("signaling.base_url: %w", err)
	}
	if c.Signaling.HandshakeTimeout <= 0 {
		return fmt.Errorf("signaling.handshake_timeout must be > 0")
	}
	if c.Signaling.MessagesPerSecond <= 0 {
		return fmt.Errorf("signaling.messages_per_second must be > 0")
	}
	if c.Signaling.Burst <= 0 {
		return fmt.Errorf("signaling.burst must be > 0")
	}

	// Registry
	if c.Registry.MaxConnections <= 0 {
		return fmt.Errorf("registry.max_connections must be > 0")
	}
	if c.Registry.MaxReconnectAttempts < 0 {
		return fmt.Errorf("registry.max_reconnect_attempts must be >= 0")
	}
	if c.Registry.ReconnectInterval <= 0 {
		return fmt.Errorf("registry.reconnect_interval must be > 0")
	}
	if c.Registry.IdleTimeout <= 0 {
		return fmt.Errorf("registry.idle_timeout must be > 0")
	}
	if c.Registry.SweepInterval <= 0 {
		return fmt.Errorf("registry.sweep_interval must be > 0")
	}

	// WebRTC
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}

	// Auth
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_secret must not be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.HTTP.Address = ":8082"
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.ShutdownTimeout = 30 * time.Second

	cfg.Signaling.BaseURL = "ws://localhost:8081"
	cfg.Signaling.HandshakeTimeout = 10 * time.Second
	cfg.Signaling.MessagesPerSecond = 100
	cfg.Signaling.Burst = 200

	cfg.Registry.MaxConnections = 10
	cfg.Registry.MaxReconnectAttempts = 5
	cfg.Registry.ReconnectInterval = 3 * time.Second
	cfg.Registry.IdleTimeout = 30 * time.Second
	cfg.Registry.SweepInterval = 10 * time.Second

	cfg.Auth.TokenSecret = "change-me-in-production"
	cfg.Auth.TokenTTL = 15 * time.Minute

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 50
	cfg.RateLimiting.Burst = 100
	cfg.RateLimiting.MaxConcurrent = 0

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0
	cfg.Tracing.Environment = "development"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if url := os.Getenv("SAFESPACE_SIGNALING_URL"); url != "" {
		c.Signaling.BaseURL = url
	}
	if addr := os.Getenv("SAFESPACE_HTTP_ADDRESS"); addr != "" {
		c.HTTP.Address = addr
	}
	if level := os.Getenv("SAFESPACE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("SAFESPACE_TOKEN_SECRET"); secret != "" {
		c.Auth.TokenSecret = secret
	}
}
