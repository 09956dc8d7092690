package health

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/kbukum/gowizard/errors"
	"github.com/kbukum/gowizard/logger"
)

// Checker performs a single health check.
type Checker interface {
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) Result

func (f CheckerFunc) Check(ctx context.Context) Result { return f(ctx) }

// Executor runs submitted functions, such as *lifecycle.ExecutorService.
// Executors may drop tasks they accept.
type Executor interface {
	Submit(task func()) error
}

// Registry holds named health checks.
type Registry struct {
	mu           sync.RWMutex
	checks       map[string]Checker
	log          *logger.Logger
	shuttingDown atomic.Bool
}

// NewRegistry creates an empty registry. A nil logger discards output.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{checks: map[string]Checker{}, log: log.WithComponent("health")}
}

// Register adds a check. A check already registered under name is replaced
// with a warning.
func (r *Registry) Register(name string, c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[name]; exists {
		r.log.Warn("Health check already registered; replacing it", map[string]interface{}{logger.FieldName: name})
	}
	r.checks[name] = c
}

// RegisterFunc adds a function as a check.
func (r *Registry) RegisterFunc(name string, fn func(ctx context.Context) Result) {
	r.Register(name, CheckerFunc(fn))
}

// Unregister removes a check.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checks, name)
}

// Names returns the registered check names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunCheck runs one check by name.
func (r *Registry) RunCheck(ctx context.Context, name string) (Result, error) {
	r.mu.RLock()
	c, ok := r.checks[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, apperrors.NotFound("health check", name)
	}
	return r.run(ctx, name, c), nil
}

// RunAll runs every check sequentially in name order.
func (r *Registry) RunAll(ctx context.Context) map[string]Result {
	results := make(map[string]Result)
	for _, name := range r.Names() {
		if res, err := r.RunCheck(ctx, name); err == nil {
			results[name] = res
		}
	}
	return results
}

// RunAllConcurrently runs every check on executor and waits for all of
// them. A check the executor rejects is reported as unhealthy. A check the
// executor accepts but never starts, such as one dropped by a discarding
// pool, runs on the calling goroutine.
func (r *Registry) RunAllConcurrently(ctx context.Context, executor Executor) map[string]Result {
	names := r.Names()
	results := make(map[string]Result, len(names))
	var mu sync.Mutex

	set := func(name string, res Result) {
		mu.Lock()
		results[name] = res
		mu.Unlock()
	}

	type pending struct {
		once sync.Once
		name string
		run  func()
	}
	all := make([]*pending, 0, len(names))
	for _, name := range names {
		r.mu.RLock()
		c, ok := r.checks[name]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		p := &pending{name: name}
		p.run = func() { set(p.name, r.run(ctx, p.name, c)) }
		all = append(all, p)
		if err := executor.Submit(func() { p.once.Do(p.run) }); err != nil {
			p.once.Do(func() {
				set(p.name, Unhealthy(fmt.Errorf("health check %s was not run: %w", p.name, err)))
			})
		}
	}
	// Do returns only after the pool's run of p finishes, or after running
	// p here if the pool never started it.
	for _, p := range all {
		p.once.Do(p.run)
	}
	return results
}

// run executes c, recovering panics and recording timing.
func (r *Registry) run(ctx context.Context, name string, c Checker) (res Result) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Health check panicked", map[string]interface{}{
				logger.FieldName:  name,
				logger.FieldError: fmt.Sprint(p),
				"stack":           string(debug.Stack()),
			})
			res = Unhealthy(fmt.Errorf("panic: %v", p))
		}
		if res.Timestamp.IsZero() {
			res.Timestamp = start
		}
		res.Duration = time.Since(start)
		if !res.Healthy {
			r.log.Warn("Health check failed", map[string]interface{}{logger.FieldName: name, "result": res.Message})
		}
	}()

	if err := ctx.Err(); err != nil {
		return Unhealthy(err)
	}
	return c.Check(ctx)
}

// AllHealthy reports whether every result is healthy.
func AllHealthy(results map[string]Result) bool {
	for _, res := range results {
		if !res.Healthy {
			return false
		}
	}
	return true
}

// MarkShuttingDown makes ShuttingDown report true so health endpoints
// can fail while the server drains.
func (r *Registry) MarkShuttingDown() { r.shuttingDown.Store(true) }

// ShuttingDown reports whether MarkShuttingDown was called.
func (r *Registry) ShuttingDown() bool { return r.shuttingDown.Load() }
