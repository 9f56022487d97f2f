// Package config loads and validates the assistant client configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig points the client at the Helm backend.
type ServerConfig struct {
	// BaseURL is the backend root, e.g. "https://helm.example.com/api".
	BaseURL string `yaml:"base_url"`
	// Token is the bearer token attached to every request. The
	// HELM_TOKEN environment variable overrides it.
	Token string `yaml:"token"`
	// Timeout bounds non-streaming requests (duration string, default "30s").
	// Streaming requests are unbounded; the transport's own failure ends them.
	Timeout string `yaml:"timeout"`
	// RequestsPerSecond rate-limits outbound requests (default 10).
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// LoggerConfig controls slog construction.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default info)
	Format string `yaml:"format"` // text or json (default text)
	Output string `yaml:"output"` // stdout, stderr, or a file path (default stderr)
}

// TracerConfig controls OpenTelemetry setup.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// CatalogConfig tunes the reference entity cache.
type CatalogConfig struct {
	TTL              string `yaml:"ttl"`                // duration string, default "5m"
	RefreshPerMinute int    `yaml:"refresh_per_minute"` // default 6
	RefreshSchedule  string `yaml:"refresh_schedule"`   // cron expression, empty = off
}

// BreakerConfig tunes the circuit breaker protecting conversation operations.
type BreakerConfig struct {
	MaxFailures uint32 `yaml:"max_failures"` // consecutive failures before opening, default 5
	Timeout     string `yaml:"timeout"`      // open duration, default "30s"
	Interval    string `yaml:"interval"`     // closed-state reset period, default "60s"
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
	Catalog CatalogConfig `yaml:"catalog"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// Load reads the YAML config at path, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HELM_SERVER_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("HELM_TOKEN"); v != "" {
		c.Server.Token = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Timeout == "" {
		c.Server.Timeout = "30s"
	}
	if c.Server.RequestsPerSecond <= 0 {
		c.Server.RequestsPerSecond = 10
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Catalog.TTL == "" {
		c.Catalog.TTL = "5m"
	}
	if c.Catalog.RefreshPerMinute <= 0 {
		c.Catalog.RefreshPerMinute = 6
	}
	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = 5
	}
	if c.Breaker.Timeout == "" {
		c.Breaker.Timeout = "30s"
	}
	if c.Breaker.Interval == "" {
		c.Breaker.Interval = "60s"
	}
}

// Validate checks the configuration for errors a typo would cause.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("config: server.base_url is required")
	}
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return fmt.Errorf("config: server.base_url must start with http:// or https://, got %q", c.Server.BaseURL)
	}
	for name, v := range map[string]string{
		"server.timeout":   c.Server.Timeout,
		"catalog.ttl":      c.Catalog.TTL,
		"breaker.timeout":  c.Breaker.Timeout,
		"breaker.interval": c.Breaker.Interval,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	switch strings.ToLower(c.Logger.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: logger.format must be text or json, got %q", c.Logger.Format)
	}
	if c.Tracer.Enabled {
		switch c.Tracer.Exporter {
		case "stdout", "noop", "":
		default:
			return fmt.Errorf("config: tracer.exporter must be stdout or noop, got %q", c.Tracer.Exporter)
		}
	}
	return nil
}

// RequestTimeout returns the parsed server timeout.
func (c *Config) RequestTimeout() time.Duration {
	return mustDuration(c.Server.Timeout, 30*time.Second)
}

// CatalogTTL returns the parsed catalog TTL.
func (c *Config) CatalogTTL() time.Duration {
	return mustDuration(c.Catalog.TTL, 5*time.Minute)
}

// BreakerTimeout returns the parsed breaker open duration.
func (c *Config) BreakerTimeout() time.Duration {
	return mustDuration(c.Breaker.Timeout, 30*time.Second)
}

// BreakerInterval returns the parsed breaker reset period.
func (c *Config) BreakerInterval() time.Duration {
	return mustDuration(c.Breaker.Interval, 60*time.Second)
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
