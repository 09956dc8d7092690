package bootstrap

import (
	"context"

	"github.com/kbukum/gowizard/config"
)

// Config is the interface constraint for application configuration types.
// Any struct that embeds config.Configuration satisfies it through the
// promoted method.
//
//	type HelloConfig struct {
//	    config.Configuration `yaml:",inline" mapstructure:",squash"`
//	    Template string      `yaml:"template" mapstructure:"template" validate:"required"`
//	}
type Config interface {
	GetConfiguration() *config.Configuration
}

// Application is implemented by every service built on the framework.
type Application[C Config] interface {
	// Name identifies the application in logs, the CLI and the admin menu.
	Name() string
	// NewConfiguration returns an empty configuration value to bind into.
	NewConfiguration() C
	// Initialize registers bundles and commands.
	Initialize(b *Bootstrap[C])
	// Run registers resources, tasks, health checks and managed objects.
	Run(ctx context.Context, cfg C, env *Environment) error
}
