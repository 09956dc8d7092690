package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/kbukum/gowizard/health"
	"github.com/kbukum/gowizard/lifecycle"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/rest"
	"github.com/kbukum/gowizard/version"
)

const goroutinesCheck = "goroutines"

// App drives an Application through its lifecycle.
//
// Example:
//
//	app := bootstrap.NewApp[*HelloConfig](HelloApp{})
//	if err := app.Initialize(); err != nil { ... }
//	cfg, err := app.Bootstrap().LoadConfiguration("hello.yml", nil)
//	if err := app.Run(ctx, cfg); err != nil { ... }
//	if err := app.Start(ctx); err != nil { ... }
//	app.WaitForSignal(ctx)
//	app.Stop(context.Background())
type App[C Config] struct {
	app       Application[C]
	bootstrap *Bootstrap[C]
	log       *logger.Logger

	gracefulTimeout time.Duration
	summary         io.Writer
	onReady         []Hook
	onStop          []Hook

	mu        sync.Mutex
	state     State
	cfg       C
	env       *Environment
	runStart  time.Time
	startedIn time.Duration
}

// NewApp creates an App in the CREATED state.
func NewApp[C Config](app Application[C], opts ...Option) *App[C] {
	o := resolveOptions(opts)
	log := o.logger
	if log == nil {
		log = logger.NewBootstrap(app.Name())
	}
	a := &App[C]{
		app:             app,
		bootstrap:       newBootstrap(app, log),
		log:             log,
		gracefulTimeout: o.gracefulTimeout,
		summary:         o.summary,
	}
	for _, b := range o.bundles {
		a.bootstrap.AddBundle(b)
	}
	return a
}

// Name returns the application name.
func (a *App[C]) Name() string { return a.app.Name() }

// Bootstrap returns the application's bootstrap.
func (a *App[C]) Bootstrap() *Bootstrap[C] { return a.bootstrap }

// State returns the current lifecycle state.
func (a *App[C]) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Environment returns the environment, or nil before Run.
func (a *App[C]) Environment() *Environment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.env
}

// Configuration returns the configuration passed to Run.
func (a *App[C]) Configuration() C {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Logger returns the application logger: the bootstrap logger before Run,
// the configured one afterwards.
func (a *App[C]) Logger() *logger.Logger {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.log
}

func (a *App[C]) transition(op string, from, to State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != from {
		return &StateError{Op: op, State: a.state, Expected: from}
	}
	a.state = to
	return nil
}

func (a *App[C]) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Initialize initializes the pre-registered bundles, then the application,
// then any bundle added along the way. Afterwards no bundle may be added.
func (a *App[C]) Initialize() error {
	if err := a.transition("initialize", StateCreated, StateInitializing); err != nil {
		return err
	}
	b := a.bootstrap
	b.drain()
	a.app.Initialize(b)
	b.drain()
	b.seal()
	a.setState(StateInitialized)
	return nil
}

// Run applies the logging configuration, builds the environment, runs every
// bundle and then the application, and registers the HTTP server.
func (a *App[C]) Run(ctx context.Context, cfg C) error {
	if err := a.transition("run", StateInitialized, StateRunning); err != nil {
		return err
	}
	a.runStart = time.Now()
	base := cfg.GetConfiguration()

	log := logger.New(&base.Logging, a.app.Name())
	logger.SetGlobalLogger(log)
	a.bootstrap.RegisterMetrics()

	env := NewEnvironment(a.bootstrap, base, log)
	a.mu.Lock()
	a.log = log
	a.cfg = cfg
	a.env = env
	a.mu.Unlock()

	log.Info("Starting application", map[string]interface{}{
		logger.FieldName: a.app.Name(),
		"version":        version.Get().Short(),
	})

	if base.Server.RegisterDefaultExceptionMappers {
		env.Rest().RegisterDefaultExceptionMappers()
	}
	if err := a.configureHealth(env); err != nil {
		return err
	}
	if _, err := base.Metrics.ScheduleReporters(env.Lifecycle(), env.Metrics(), log.WithComponent("metrics")); err != nil {
		return fmt.Errorf("metrics reporters: %w", err)
	}

	if err := a.bootstrap.run(cfg, env); err != nil {
		return err
	}
	if err := a.app.Run(ctx, cfg, env); err != nil {
		return fmt.Errorf("application run failed: %w", err)
	}

	if err := env.buildServer(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	env.Lifecycle().AddLifecycleListener(lifecycle.ListenerFuncs{
		OnStarted: func(context.Context) { logEndpoints(env) },
	})

	checks := env.Health().Names()
	if len(checks) == 0 || (len(checks) == 1 && checks[0] == goroutinesCheck) {
		log.Warn("The application has no health checks. Your application will not be monitored properly.")
	}
	return nil
}

// configureHealth registers the goroutines check and, when configured, the
// executor health checks run on concurrently.
func (a *App[C]) configureHealth(env *Environment) error {
	cfg := env.Config().Health
	if cfg.MaxGoroutines > 0 {
		env.Health().Register(goroutinesCheck, health.GoroutineCheck(cfg.MaxGoroutines))
	}
	if !cfg.Concurrent {
		return nil
	}
	executor, err := env.Lifecycle().ExecutorService("health-check-%d").
		MinThreads(cfg.Workers).
		MaxThreads(cfg.Workers).
		Build()
	if err != nil {
		return fmt.Errorf("health check executor: %w", err)
	}
	env.Admin().SetHealthCheckExecutor(executor)
	return nil
}

func logEndpoints(env *Environment) {
	srv := env.Server()
	log := env.Logger()
	contextPath := path.Join(srv.ApplicationContextPath(), env.Rest().URLPattern())
	log.Info(rest.FormatRoutes(env.Rest().Routes(), contextPath))
	log.Info(env.Admin().FormatTasks(srv.AdminContextPath()))
}

// Start starts every managed object in registration order. If one fails,
// those already started are stopped and the App moves to STOPPED.
func (a *App[C]) Start(ctx context.Context) error {
	if err := a.transition("start", StateRunning, StateStarted); err != nil {
		return err
	}
	env := a.Environment()
	if err := env.Lifecycle().Start(ctx); err != nil {
		a.abort(err)
		return fmt.Errorf("startup failed: %w", err)
	}
	if err := runReadyHooks(ctx, a.onReady); err != nil {
		a.abort(err)
		return fmt.Errorf("onReady hook failed: %w", err)
	}
	a.startedIn = time.Since(a.runStart)
	a.log.Info("Application started", map[string]interface{}{
		logger.FieldDuration: a.startedIn.Milliseconds(),
		"server":             env.Server().String(),
	})
	if a.summary != nil {
		NewSummary(a.app.Name(), a.startedIn, env).Display(ctx, a.summary)
	}
	return nil
}

func (a *App[C]) abort(cause error) {
	a.log.Error("Application failed to start, stopping", map[string]interface{}{
		logger.FieldError: cause.Error(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()
	_ = a.Environment().Lifecycle().Stop(ctx)
	a.setState(StateStopped)
}

// Stop runs the stop hooks and stops managed objects in reverse order
// within the graceful timeout. Errors are combined; none aborts the sweep.
func (a *App[C]) Stop(ctx context.Context) error {
	if err := a.transition("stop", StateStarted, StateStopping); err != nil {
		return err
	}
	defer a.setState(StateStopped)

	a.log.Info("Shutting down application", map[string]interface{}{
		"timeout": a.gracefulTimeout.String(),
	})
	ctx, cancel := context.WithTimeout(ctx, a.gracefulTimeout)
	defer cancel()

	var err error
	if hookErr := runStopHooks(ctx, a.onStop); hookErr != nil {
		a.log.Error("OnStop hook error", map[string]interface{}{
			logger.FieldError: hookErr.Error(),
		})
		err = multierr.Append(err, hookErr)
	}
	if stopErr := a.Environment().Lifecycle().Stop(ctx); stopErr != nil {
		a.log.Error("Shutdown completed with errors", map[string]interface{}{
			logger.FieldError: stopErr.Error(),
		})
		err = multierr.Append(err, stopErr)
	}
	a.log.Info("Application shutdown complete")
	return err
}

// WaitForSignal blocks until an OS interrupt/term signal or context cancellation.
func (a *App[C]) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.log.Info("Received shutdown signal, graceful shutdown starting", map[string]interface{}{
			"signal": sig.String(),
		})
		return sig
	case <-ctx.Done():
		a.log.Info("Context canceled, shutting down")
		return nil
	}
}
