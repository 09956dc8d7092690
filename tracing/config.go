package tracing

import (
	"time"

	"github.com/kbukum/gowizard/util"
)

// Config is the tracing section of an application configuration.
type Config struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// ServiceName defaults to the application name.
	ServiceName    string `yaml:"serviceName" mapstructure:"serviceName"`
	ServiceVersion string `yaml:"serviceVersion" mapstructure:"serviceVersion"`
	Environment    string `yaml:"environment" mapstructure:"environment"`
	// Endpoint is the OTLP HTTP collector host:port.
	Endpoint string            `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure bool              `yaml:"insecure" mapstructure:"insecure"`
	Headers  map[string]string `yaml:"headers" mapstructure:"headers"`
	// SampleRate is the ratio of new traces sampled; unset samples all.
	SampleRate *float64      `yaml:"sampleRate" mapstructure:"sampleRate" validate:"omitempty,gte=0,lte=1"`
	Metrics    MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// MetricsConfig enables the OTLP metrics exporter alongside traces.
type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval util.Duration `yaml:"interval" mapstructure:"interval"`
}

// DefaultConfig returns defaults for a local collector.
func DefaultConfig(serviceName string) Config {
	cfg := Config{ServiceName: serviceName, Insecure: true}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in unset values.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = util.Duration(15 * time.Second)
	}
}

// Ratio returns the sample rate.
func (c *Config) Ratio() float64 {
	if c.SampleRate == nil {
		return 1
	}
	return *c.SampleRate
}
