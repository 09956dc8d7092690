package lifecycle

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/kbukum/gowizard/logger"
)

type managedEntry struct {
	managed Managed
	started bool
}

// Environment manages the lifecycle of an application's objects.
// Objects are started in registration order and stopped in reverse order.
type Environment struct {
	mu         sync.Mutex
	entries    []*managedEntry
	listeners  []Listener
	log        *logger.Logger
	registerer prometheus.Registerer
	metrics    *executorMetrics
}

// EnvironmentOption configures an Environment.
type EnvironmentOption func(*Environment)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *logger.Logger) EnvironmentOption {
	return func(e *Environment) { e.log = l }
}

// WithRegisterer enables executor metrics on the given registerer.
func WithRegisterer(r prometheus.Registerer) EnvironmentOption {
	return func(e *Environment) { e.registerer = r }
}

// NewEnvironment creates an empty lifecycle environment.
func NewEnvironment(opts ...EnvironmentOption) *Environment {
	e := &Environment{}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.NewNop()
	}
	e.log = e.log.WithComponent("lifecycle")
	if e.registerer != nil {
		e.metrics = newExecutorMetrics(e.registerer)
	}
	return e
}

// Manage appends m to the managed objects. The same object may be
// registered more than once and is then started and stopped once per
// registration.
func (e *Environment) Manage(m Managed) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, &managedEntry{managed: m})
	e.log.Debug("Managed object registered", map[string]interface{}{logger.FieldName: nameOf(m)})
}

// ManageCloser registers c to be closed on stop.
func (e *Environment) ManageCloser(name string, c io.Closer) {
	e.Manage(NewManagedCloser(name, c))
}

// ManageFuncs registers a pair of start and stop functions.
func (e *Environment) ManageFuncs(name string, start, stop func(ctx context.Context) error) {
	e.Manage(NewManagedFuncs(name, start, stop))
}

// AddLifecycleListener registers l for start and stop notifications.
func (e *Environment) AddLifecycleListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Managed returns the registered objects in registration order.
func (e *Environment) Managed() []Managed {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Managed, 0, len(e.entries))
	for _, entry := range e.entries {
		out = append(out, entry.managed)
	}
	return out
}

// Logger returns the environment's logger.
func (e *Environment) Logger() *logger.Logger { return e.log }

// ExecutorService starts building a worker pool whose workers are named by
// nameFormat, which must contain a single %d verb.
func (e *Environment) ExecutorService(nameFormat string) *ExecutorServiceBuilder {
	return newExecutorServiceBuilder(e, nameFormat)
}

// FixedExecutorService builds a pool of exactly n workers.
func (e *Environment) FixedExecutorService(n int, namePrefix string) (*ExecutorService, error) {
	return e.ExecutorService(namePrefix + "-%d").MinThreads(n).MaxThreads(n).Build()
}

// SingleExecutorService builds a pool with one worker.
func (e *Environment) SingleExecutorService(namePrefix string) (*ExecutorService, error) {
	return e.FixedExecutorService(1, namePrefix)
}

// ScheduledExecutorService starts building a scheduler.
func (e *Environment) ScheduledExecutorService(nameFormat string) *ScheduledExecutorServiceBuilder {
	return newScheduledExecutorServiceBuilder(e, nameFormat)
}

// Start starts every managed object in registration order and notifies
// listeners. The first failure stops the sweep and is returned; objects
// started before it are stopped by Stop.
func (e *Environment) Start(ctx context.Context) error {
	e.mu.Lock()
	entries := append([]*managedEntry(nil), e.entries...)
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()

	e.log.Debug("Starting managed objects", map[string]interface{}{"count": len(entries)})
	for _, entry := range entries {
		if entry.started {
			continue
		}
		name := nameOf(entry.managed)
		start := time.Now()
		if err := entry.managed.Start(ctx); err != nil {
			e.log.Error("Managed object failed to start", map[string]interface{}{
				logger.FieldName:  name,
				logger.FieldError: err.Error(),
			})
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		e.mu.Lock()
		entry.started = true
		e.mu.Unlock()
		e.log.Debug("Managed object started", logger.DurationFields(name, time.Since(start)))
	}

	for _, l := range listeners {
		l.Started(ctx)
	}
	return nil
}

// Stop notifies listeners, then stops every started object in reverse
// registration order. Every failure is logged and the sweep continues; the
// combined error is returned.
func (e *Environment) Stop(ctx context.Context) error {
	e.mu.Lock()
	entries := append([]*managedEntry(nil), e.entries...)
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()

	for _, l := range listeners {
		l.Stopping(ctx)
	}

	var errs error
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if !entry.started {
			continue
		}
		name := nameOf(entry.managed)
		if err := entry.managed.Stop(ctx); err != nil {
			e.log.Error("Managed object failed to stop", map[string]interface{}{
				logger.FieldName:  name,
				logger.FieldError: err.Error(),
			})
			errs = multierr.Append(errs, fmt.Errorf("failed to stop %s: %w", name, err))
		} else {
			e.log.Debug("Managed object stopped", map[string]interface{}{logger.FieldName: name})
		}
		e.mu.Lock()
		entry.started = false
		e.mu.Unlock()
	}
	return errs
}
