package client

import (
	"time"

	"github.com/kbukum/gowizard/security"
	"github.com/kbukum/gowizard/util"
	"github.com/kbukum/gowizard/validation"
)

// Config is the HTTP client section of an application configuration.
type Config struct {
	// Timeout bounds a whole request including retries and reading the body.
	Timeout util.Duration `yaml:"timeout" mapstructure:"timeout"`
	// ConnectionTimeout bounds dialing and the TLS handshake.
	ConnectionTimeout util.Duration `yaml:"connectionTimeout" mapstructure:"connectionTimeout"`
	// KeepAlive is the TCP keep-alive period. Zero uses the OS default.
	KeepAlive util.Duration `yaml:"keepAlive" mapstructure:"keepAlive"`
	// TimeToLive closes pooled connections idle for longer.
	TimeToLive             util.Duration `yaml:"timeToLive" mapstructure:"timeToLive"`
	MaxConnections         int           `yaml:"maxConnections" mapstructure:"maxConnections" validate:"min=0"`
	MaxConnectionsPerRoute int           `yaml:"maxConnectionsPerRoute" mapstructure:"maxConnectionsPerRoute" validate:"min=0"`
	// Retries is the number of retries after a failed idempotent request.
	Retries      int           `yaml:"retries" mapstructure:"retries" validate:"min=0"`
	RetryBackoff util.Duration `yaml:"retryBackoff" mapstructure:"retryBackoff"`
	UserAgent    string        `yaml:"userAgent" mapstructure:"userAgent"`
	// GzipEnabled accepts gzip encoded responses.
	GzipEnabled *bool `yaml:"gzipEnabled" mapstructure:"gzipEnabled"`
	// GzipEnabledForRequests compresses request bodies.
	GzipEnabledForRequests bool                 `yaml:"gzipEnabledForRequests" mapstructure:"gzipEnabledForRequests"`
	CircuitBreaker         CircuitBreakerConfig `yaml:"circuitBreaker" mapstructure:"circuitBreaker"`
	TLS                    *security.TLSConfig  `yaml:"tls" mapstructure:"tls"`
}

// CircuitBreakerConfig configures failing fast after repeated failures.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// MaxFailures consecutive failures open the circuit.
	MaxFailures int `yaml:"maxFailures" mapstructure:"maxFailures" validate:"min=0"`
	// ResetTimeout is how long the circuit stays open before a trial request.
	ResetTimeout util.Duration `yaml:"resetTimeout" mapstructure:"resetTimeout"`
}

// ApplyDefaults fills in unset values.
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = util.Duration(500 * time.Millisecond)
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = util.Duration(500 * time.Millisecond)
	}
	if c.TimeToLive == 0 {
		c.TimeToLive = util.Duration(time.Hour)
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 1024
	}
	if c.MaxConnectionsPerRoute == 0 {
		c.MaxConnectionsPerRoute = 1024
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = util.Duration(100 * time.Millisecond)
	}
	if c.GzipEnabled == nil {
		enabled := true
		c.GzipEnabled = &enabled
	}
	if c.CircuitBreaker.MaxFailures == 0 {
		c.CircuitBreaker.MaxFailures = 5
	}
	if c.CircuitBreaker.ResetTimeout == 0 {
		c.CircuitBreaker.ResetTimeout = util.Duration(30 * time.Second)
	}
}

// ValidateSelf bounds the per-route pool by the whole pool and keeps the
// breaker's reset timeout positive when it is enabled.
func (c *Config) ValidateSelf(v *validation.Validator) {
	if c.MaxConnections > 0 {
		v.AtMost("maxConnectionsPerRoute", c.MaxConnectionsPerRoute, "maxConnections", c.MaxConnections)
	}
	if c.CircuitBreaker.Enabled {
		v.DurationBetween("circuitBreaker.resetTimeout", c.CircuitBreaker.ResetTimeout.Std(), time.Millisecond, 0)
	}
}
