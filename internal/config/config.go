package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration.
// Precedence: in-code defaults, the config file, environment variables,
// then flags the user set explicitly.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Newsletter NewsletterConfig `mapstructure:"newsletter"`
	Ghost      GhostConfig      `mapstructure:"ghost"`
	ConvertKit ConvertKitConfig `mapstructure:"convertkit"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Health     HealthConfig     `mapstructure:"health"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// NewsletterConfig controls the intake pipeline.
type NewsletterConfig struct {
	// Provider forces a backend (ghost, convertkit). Empty or unknown values
	// fall back to auto-detection.
	Provider           string        `mapstructure:"provider"`
	RateLimitPerIP     int           `mapstructure:"rate_limit_per_ip"`
	RateLimitWindowSec int           `mapstructure:"rate_limit_window_sec"`
	TestMode           bool          `mapstructure:"test_mode"`
	ProviderTimeout    time.Duration `mapstructure:"provider_timeout"`
	Breaker            BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig configures the per-backend circuit breaker.
type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures int           `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// GhostConfig holds Ghost credentials.
type GhostConfig struct {
	APIURL        string `mapstructure:"api_url"`
	ContentAPIKey string `mapstructure:"content_api_key"`
	AdminAPIKey   string `mapstructure:"admin_api_key"`
	NewsletterID  string `mapstructure:"newsletter_id"`
}

// ConvertKitConfig holds ConvertKit credentials.
type ConvertKitConfig struct {
	APIKey  string `mapstructure:"api_key"`
	FormID  string `mapstructure:"form_id"`
	APIBase string `mapstructure:"api_base"`
}

// JournalConfig contains the outcome journal (libsql) configuration.
type JournalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Validate checks the decoded durations. Numeric ranges and types are
// enforced on the merged layers by config.schema.json.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	var problems []string
	if c.Newsletter.ProviderTimeout <= 0 {
		problems = append(problems, "newsletter.provider_timeout must be positive")
	}
	if c.Newsletter.Breaker.Enabled && c.Newsletter.Breaker.OpenTimeout <= 0 {
		problems = append(problems, "newsletter.breaker.open_timeout must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
