package bootstrap

import (
	"fmt"
	"sync"

	"github.com/kbukum/gowizard/config"
	"github.com/kbukum/gowizard/health"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/metrics"
	"github.com/kbukum/gowizard/validation"
)

// Bootstrap collects bundles and commands before the configuration is
// loaded, and owns the registries shared with the Environment.
type Bootstrap[C Config] struct {
	app Application[C]
	log *logger.Logger

	metrics   *metrics.Registry
	health    *health.Registry
	validator *validation.StructValidator
	source    config.SourceProvider
	factory   *config.Factory[C]

	bundles  []bundleEntry[C]
	next     int
	sealed   bool
	commands []Command[C]

	registerMetrics sync.Once
}

func newBootstrap[C Config](app Application[C], log *logger.Logger) *Bootstrap[C] {
	return &Bootstrap[C]{
		app:       app,
		log:       log,
		metrics:   metrics.NewRegistry(),
		health:    health.NewRegistry(log.WithComponent("health")),
		validator: validation.NewStructValidator(),
		source:    config.NewFileSourceProvider(),
	}
}

// Name returns the application name.
func (b *Bootstrap[C]) Name() string { return b.app.Name() }

// Application returns the application being bootstrapped.
func (b *Bootstrap[C]) Application() Application[C] { return b.app }

// Logger returns the bootstrap logger. Until the configuration is applied
// it only reports warnings and errors.
func (b *Bootstrap[C]) Logger() *logger.Logger { return b.log }

// Metrics returns the metrics registry shared with the Environment.
func (b *Bootstrap[C]) Metrics() *metrics.Registry { return b.metrics }

// RegisterMetrics registers the Go runtime and process collectors. Calling
// it more than once has no further effect.
func (b *Bootstrap[C]) RegisterMetrics() {
	b.registerMetrics.Do(b.metrics.RegisterRuntime)
}

// Health returns the health check registry shared with the Environment.
func (b *Bootstrap[C]) Health() *health.Registry { return b.health }

// Validator returns the validator used for configuration and request bodies.
func (b *Bootstrap[C]) Validator() *validation.StructValidator { return b.validator }

// SetValidator replaces the validator. Nil disables configuration validation.
func (b *Bootstrap[C]) SetValidator(v *validation.StructValidator) {
	b.validator = v
}

// ConfigurationSourceProvider returns the provider configuration files are
// opened with.
func (b *Bootstrap[C]) ConfigurationSourceProvider() config.SourceProvider { return b.source }

// SetConfigurationSourceProvider replaces the configuration source, for
// example with a config.SubstitutingSourceProvider.
func (b *Bootstrap[C]) SetConfigurationSourceProvider(p config.SourceProvider) {
	b.source = p
}

// ConfigurationFactory returns the factory that builds the configuration.
// Unless one was set, a factory using the bootstrap validator is created.
func (b *Bootstrap[C]) ConfigurationFactory() *config.Factory[C] {
	if b.factory == nil {
		b.factory = config.NewFactory(b.app.NewConfiguration,
			config.WithValidator(b.validator),
			config.WithLogger(b.log),
		)
	}
	return b.factory
}

// SetConfigurationFactory replaces the configuration factory.
func (b *Bootstrap[C]) SetConfigurationFactory(f *config.Factory[C]) {
	b.factory = f
}

// LoadConfiguration builds the configuration from path, or from defaults
// alone when path is empty.
func (b *Bootstrap[C]) LoadConfiguration(path string, overrides config.Overrides) (C, error) {
	factory := b.ConfigurationFactory()
	if path == "" {
		return factory.BuildDefault(overrides)
	}
	return factory.Build(b.source, path, overrides)
}

// AddBundle adds a bundle. Bundles added while the bootstrap initializes
// are initialized in turn; adding one afterwards panics with a *StateError.
func (b *Bootstrap[C]) AddBundle(bundle Bundle) {
	b.add(bundleEntry[C]{plain: bundle})
}

// AddConfiguredBundle adds a bundle that reads the configuration.
func (b *Bootstrap[C]) AddConfiguredBundle(bundle ConfiguredBundle[C]) {
	b.add(bundleEntry[C]{configured: bundle})
}

func (b *Bootstrap[C]) add(e bundleEntry[C]) {
	if b.sealed {
		panic(&StateError{Op: "add bundle", State: StateInitialized, Expected: StateInitializing})
	}
	b.bundles = append(b.bundles, e)
}

// Bundles returns every registered bundle in registration order.
func (b *Bootstrap[C]) Bundles() []any {
	out := make([]any, len(b.bundles))
	for i, e := range b.bundles {
		out[i] = e.value()
	}
	return out
}

// drain initializes bundles until none is left waiting, including those
// added by bundles initialized in this call.
func (b *Bootstrap[C]) drain() {
	for b.next < len(b.bundles) {
		e := b.bundles[b.next]
		b.next++
		e.initialize(b)
	}
}

func (b *Bootstrap[C]) seal() { b.sealed = true }

func (b *Bootstrap[C]) run(cfg C, env *Environment) error {
	for _, e := range b.bundles {
		if err := e.run(cfg, env); err != nil {
			return fmt.Errorf("bundle %T: %w", e.value(), err)
		}
	}
	return nil
}

// AddCommand adds a CLI command. A command with the same name replaces the
// existing one in place.
func (b *Bootstrap[C]) AddCommand(cmd Command[C]) {
	for i, existing := range b.commands {
		if existing.Name() == cmd.Name() {
			b.log.Warn("Command already registered, overwriting", map[string]interface{}{
				logger.FieldName: cmd.Name(),
			})
			b.commands[i] = cmd
			return
		}
	}
	b.commands = append(b.commands, cmd)
}

// Commands returns the registered commands in registration order.
func (b *Bootstrap[C]) Commands() []Command[C] {
	return append([]Command[C](nil), b.commands...)
}

// Command looks up a command by name.
func (b *Bootstrap[C]) Command(name string) (Command[C], bool) {
	for _, c := range b.commands {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}
