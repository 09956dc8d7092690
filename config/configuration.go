package config

import (
	"github.com/kbukum/gowizard/health"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/metrics"
	"github.com/kbukum/gowizard/server"
)

// Configuration holds the sections every application has. Applications
// embed it in their own configuration type:
//
//	type AppConfig struct {
//	    config.Configuration `yaml:",inline" mapstructure:",squash"`
//	    Template string      `yaml:"template" mapstructure:"template"`
//	}
type Configuration struct {
	Server  server.Factory `yaml:"server" mapstructure:"server"`
	Logging logger.Config  `yaml:"logging" mapstructure:"logging"`
	Metrics metrics.Config `yaml:"metrics" mapstructure:"metrics"`
	Health  health.Config  `yaml:"health" mapstructure:"health"`
}

// GetConfiguration returns the base Configuration. When embedded in a larger
// config struct, this method is promoted so the embedding struct satisfies
// the application's configuration constraint.
func (c *Configuration) GetConfiguration() *Configuration {
	return c
}

// ApplyDefaults applies default values to every section. Embedding types
// that define their own ApplyDefaults should call this first.
func (c *Configuration) ApplyDefaults() {
	c.Server.ApplyDefaults()
	c.Logging.ApplyDefaults()
	c.Metrics.ApplyDefaults()
	c.Health.ApplyDefaults()
}
