package bootstrap

import (
	"github.com/kbukum/gowizard/admin"
	"github.com/kbukum/gowizard/config"
	"github.com/kbukum/gowizard/health"
	"github.com/kbukum/gowizard/lifecycle"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/metrics"
	"github.com/kbukum/gowizard/rest"
	"github.com/kbukum/gowizard/server"
	"github.com/kbukum/gowizard/servlets"
	"github.com/kbukum/gowizard/validation"
)

// Environment is everything an application registers while running:
// resources, servlets, admin tasks, health checks and managed objects.
type Environment struct {
	name      string
	config    *config.Configuration
	rest      *rest.Environment
	servlets  *servlets.Environment
	admin     *admin.Environment
	health    *health.Registry
	lifecycle *lifecycle.Environment
	metrics   *metrics.Registry
	validator *validation.StructValidator
	log       *logger.Logger
	server    *server.Server
}

// NewEnvironment creates an Environment sharing the registries of b.
func NewEnvironment[C Config](b *Bootstrap[C], base *config.Configuration, log *logger.Logger) *Environment {
	reg := b.Metrics()
	adminEnv := admin.NewEnvironment(admin.Options{
		Name:    b.Name(),
		Health:  b.Health(),
		Metrics: reg,
		Levels:  log.Levels(),
		Log:     log.WithComponent("admin"),
	})
	lc := lifecycle.NewEnvironment(
		lifecycle.WithLogger(log.WithComponent("lifecycle")),
		lifecycle.WithRegisterer(reg.Registerer()),
	)
	return &Environment{
		name:      b.Name(),
		config:    base,
		rest:      rest.NewEnvironment(log.WithComponent("rest"), b.Validator()),
		servlets:  servlets.NewEnvironment(log.WithComponent("servlets")),
		admin:     adminEnv,
		health:    b.Health(),
		lifecycle: lc,
		metrics:   reg,
		validator: b.Validator(),
		log:       log,
	}
}

// Name returns the application name.
func (e *Environment) Name() string { return e.name }

// Config returns the base configuration sections.
func (e *Environment) Config() *config.Configuration { return e.config }

// Rest returns the REST resource environment.
func (e *Environment) Rest() *rest.Environment { return e.rest }

// Servlets returns the application handler and filter environment.
func (e *Environment) Servlets() *servlets.Environment { return e.servlets }

// Admin returns the admin environment.
func (e *Environment) Admin() *admin.Environment { return e.admin }

// Health returns the health check registry.
func (e *Environment) Health() *health.Registry { return e.health }

// Lifecycle returns the managed object environment.
func (e *Environment) Lifecycle() *lifecycle.Environment { return e.lifecycle }

// Metrics returns the metrics registry.
func (e *Environment) Metrics() *metrics.Registry { return e.metrics }

// Validator returns the validator.
func (e *Environment) Validator() *validation.StructValidator { return e.validator }

// Logger returns the application logger.
func (e *Environment) Logger() *logger.Logger { return e.log }

// Server returns the HTTP server, or nil before the application has run.
func (e *Environment) Server() *server.Server { return e.server }

// buildServer builds the HTTP server from the server section and registers
// it as the last managed object, so it starts last and stops first.
func (e *Environment) buildServer() error {
	factory := &e.config.Server
	opts := []server.Option{
		server.WithLogger(e.log.WithComponent("server")),
		server.WithMetrics(e.metrics),
	}
	if e.config.Health.DelayedShutdownHandlerEnabled {
		opts = append(opts, server.WithDelayedShutdown(e.health, e.config.Health.ShutdownWaitPeriod.Std()))
	}
	srv, err := factory.Build(e.servlets.Handler(e.rest), e.admin.Handler(), opts...)
	if err != nil {
		return err
	}
	e.server = srv
	e.lifecycle.Manage(srv)
	return nil
}
