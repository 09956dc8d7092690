package bootstrap

import (
	"github.com/kbukum/gowizard/config"
	"github.com/kbukum/gowizard/health"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/metrics"
	"github.com/kbukum/gowizard/validation"
)

// BootstrapView is the configuration-independent part of a Bootstrap,
// handed to bundles that do not need the application's configuration type.
type BootstrapView interface {
	Name() string
	AddBundle(b Bundle)
	Logger() *logger.Logger
	Metrics() *metrics.Registry
	RegisterMetrics()
	Health() *health.Registry
	Validator() *validation.StructValidator
	SetValidator(v *validation.StructValidator)
	ConfigurationSourceProvider() config.SourceProvider
	SetConfigurationSourceProvider(p config.SourceProvider)
}

// Bundle is a reusable group of functionality that does not depend on the
// application's configuration.
type Bundle interface {
	Initialize(b BootstrapView)
	Run(env *Environment) error
}

// ConfiguredBundle is a reusable group of functionality that reads its
// settings from the application's configuration.
type ConfiguredBundle[C Config] interface {
	Initialize(b *Bootstrap[C])
	Run(cfg C, env *Environment) error
}

// BundleFuncs adapts functions to Bundle. Nil functions are skipped.
type BundleFuncs struct {
	OnInitialize func(b BootstrapView)
	OnRun        func(env *Environment) error
}

func (f BundleFuncs) Initialize(b BootstrapView) {
	if f.OnInitialize != nil {
		f.OnInitialize(b)
	}
}

func (f BundleFuncs) Run(env *Environment) error {
	if f.OnRun != nil {
		return f.OnRun(env)
	}
	return nil
}

// bundleEntry holds exactly one of plain or configured.
type bundleEntry[C Config] struct {
	plain      Bundle
	configured ConfiguredBundle[C]
}

func (e bundleEntry[C]) initialize(b *Bootstrap[C]) {
	if e.plain != nil {
		e.plain.Initialize(b)
		return
	}
	e.configured.Initialize(b)
}

func (e bundleEntry[C]) run(cfg C, env *Environment) error {
	if e.plain != nil {
		return e.plain.Run(env)
	}
	return e.configured.Run(cfg, env)
}

func (e bundleEntry[C]) value() any {
	if e.plain != nil {
		return e.plain
	}
	return e.configured
}
