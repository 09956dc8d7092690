package health

import (
	"time"

	"github.com/kbukum/gowizard/util"
)

// Config is the health section of the application configuration.
type Config struct {
	// DelayedShutdownHandlerEnabled makes health checks fail for
	// ShutdownWaitPeriod before the server stops accepting requests.
	DelayedShutdownHandlerEnabled bool          `yaml:"delayedShutdownHandlerEnabled" mapstructure:"delayedShutdownHandlerEnabled"`
	ShutdownWaitPeriod            util.Duration `yaml:"shutdownWaitPeriod" mapstructure:"shutdownWaitPeriod" validate:"duration_min=0s"`
	// MaxGoroutines is the threshold of the built-in goroutines check; zero
	// disables it.
	MaxGoroutines int `yaml:"maxGoroutines" mapstructure:"maxGoroutines" validate:"min=0"`
	// Concurrent runs checks in parallel on a dedicated executor.
	Concurrent bool `yaml:"concurrent" mapstructure:"concurrent"`
	// Workers bounds the number of checks running at once when Concurrent.
	Workers int `yaml:"workers" mapstructure:"workers" validate:"min=1"`
}

// ApplyDefaults fills in unset values.
func (c *Config) ApplyDefaults() {
	if c.ShutdownWaitPeriod == 0 {
		c.ShutdownWaitPeriod = util.Duration(15 * time.Second)
	}
	if c.MaxGoroutines == 0 {
		c.MaxGoroutines = 10000
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
}
