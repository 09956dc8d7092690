package websockets

import (
	"time"

	"github.com/kbukum/gowizard/util"
)

// Config holds the defaults of every endpoint.
type Config struct {
	// MaxMessageSize is the read limit of a session. Larger messages close
	// the session with 1009.
	MaxMessageSize util.Size `yaml:"maxMessageSize" mapstructure:"maxMessageSize" validate:"size_min=0B"`
	// PingInterval is how often the server pings idle clients. A client that
	// misses a pong for PingInterval plus PongTimeout is disconnected.
	PingInterval      util.Duration `yaml:"pingInterval" mapstructure:"pingInterval"`
	PongTimeout       util.Duration `yaml:"pongTimeout" mapstructure:"pongTimeout"`
	WriteTimeout      util.Duration `yaml:"writeTimeout" mapstructure:"writeTimeout"`
	SendBufferSize    int           `yaml:"sendBufferSize" mapstructure:"sendBufferSize" validate:"min=0"`
	AllowedOrigins    []string      `yaml:"allowedOrigins" mapstructure:"allowedOrigins"`
	Subprotocols      []string      `yaml:"subprotocols" mapstructure:"subprotocols"`
	EnableCompression bool          `yaml:"enableCompression" mapstructure:"enableCompression"`
}

// ApplyDefaults fills in unset values.
func (c *Config) ApplyDefaults() {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 64 * util.Kibibyte
	}
	if c.PingInterval == 0 {
		c.PingInterval = util.Duration(30 * time.Second)
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = util.Duration(10 * time.Second)
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = util.Duration(10 * time.Second)
	}
	if c.SendBufferSize == 0 {
		c.SendBufferSize = 64
	}
}

// EndpointOption overrides Config for one endpoint.
type EndpointOption func(*Config)

// WithOrigins sets the accepted Origin headers. "*" accepts any origin; no
// origins accepts only requests whose Origin host matches the Host header.
func WithOrigins(origins ...string) EndpointOption {
	return func(c *Config) { c.AllowedOrigins = origins }
}

// WithReadLimit sets the maximum message size in bytes.
func WithReadLimit(n int64) EndpointOption {
	return func(c *Config) { c.MaxMessageSize = util.Size(n) }
}

// WithPingInterval sets the ping interval. Negative disables pings and the
// idle read deadline.
func WithPingInterval(d time.Duration) EndpointOption {
	return func(c *Config) { c.PingInterval = util.Duration(d) }
}

// WithSubprotocols sets the subprotocols offered during the handshake.
func WithSubprotocols(protocols ...string) EndpointOption {
	return func(c *Config) { c.Subprotocols = protocols }
}
