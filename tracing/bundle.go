package tracing

import (
	"context"

	"github.com/kbukum/gowizard/bootstrap"
)

// Bundle traces every REST request when its configuration is enabled.
type Bundle[C bootstrap.Config] struct {
	config   func(C) *Config
	opts     []Option
	provider *Provider
}

// NewBundle creates a bundle reading its configuration with config.
func NewBundle[C bootstrap.Config](config func(C) *Config, opts ...Option) *Bundle[C] {
	return &Bundle[C]{config: config, opts: opts}
}

// Provider returns the provider built by Run, or nil when tracing is disabled.
func (b *Bundle[C]) Provider() *Provider { return b.provider }

func (b *Bundle[C]) Initialize(*bootstrap.Bootstrap[C]) {}

func (b *Bundle[C]) Run(cfg C, env *bootstrap.Environment) error {
	tc := b.config(cfg)
	if tc == nil || !tc.Enabled {
		env.Logger().Debug("Tracing disabled")
		return nil
	}
	settings := *tc
	if settings.ServiceName == "" {
		settings.ServiceName = env.Name()
	}

	p, err := NewProvider(context.Background(), settings, env.Logger().WithComponent("tracing"), b.opts...)
	if err != nil {
		return err
	}
	b.provider = p
	env.Lifecycle().Manage(p)
	env.Rest().Wrap(Middleware(p))
	return nil
}
