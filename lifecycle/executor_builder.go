package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/gowizard/logger"
)

// Executor defaults.
const (
	DefaultKeepAlive    = 60 * time.Second
	DefaultShutdownTime = 5 * time.Second
)

// ExecutorServiceBuilder configures an ExecutorService. Build registers the
// pool with the Environment so it is drained on stop.
type ExecutorServiceBuilder struct {
	env              *Environment
	nameFormat       string
	minThreads       int
	maxThreads       int
	allowCoreTimeout bool
	keepAlive        time.Duration
	shutdownTime     time.Duration
	queueCapacity    int
	policy           RejectionPolicy
}

func newExecutorServiceBuilder(env *Environment, nameFormat string) *ExecutorServiceBuilder {
	return &ExecutorServiceBuilder{
		env:          env,
		nameFormat:   nameFormat,
		minThreads:   0,
		maxThreads:   1,
		keepAlive:    DefaultKeepAlive,
		shutdownTime: DefaultShutdownTime,
		policy:       Abort,
	}
}

// MinThreads sets the number of workers kept alive while idle.
func (b *ExecutorServiceBuilder) MinThreads(n int) *ExecutorServiceBuilder {
	b.minThreads = n
	return b
}

// MaxThreads sets the upper bound on workers.
func (b *ExecutorServiceBuilder) MaxThreads(n int) *ExecutorServiceBuilder {
	b.maxThreads = n
	return b
}

// AllowCoreThreadTimeout lets the minimum workers expire when idle too.
func (b *ExecutorServiceBuilder) AllowCoreThreadTimeout(allow bool) *ExecutorServiceBuilder {
	b.allowCoreTimeout = allow
	return b
}

// KeepAliveTime sets how long a surplus worker waits for work before exiting.
func (b *ExecutorServiceBuilder) KeepAliveTime(d time.Duration) *ExecutorServiceBuilder {
	b.keepAlive = d
	return b
}

// ShutdownTime bounds how long Stop waits for queued work to finish.
func (b *ExecutorServiceBuilder) ShutdownTime(d time.Duration) *ExecutorServiceBuilder {
	b.shutdownTime = d
	return b
}

// WorkQueue sets the queue capacity. Zero means unbounded.
func (b *ExecutorServiceBuilder) WorkQueue(capacity int) *ExecutorServiceBuilder {
	b.queueCapacity = capacity
	return b
}

// RejectionPolicy sets what happens to tasks the pool cannot accept.
func (b *ExecutorServiceBuilder) RejectionPolicy(p RejectionPolicy) *ExecutorServiceBuilder {
	b.policy = p
	return b
}

// Build creates the pool and registers it with the Environment.
func (b *ExecutorServiceBuilder) Build() (*ExecutorService, error) {
	if err := checkNameFormat(b.nameFormat); err != nil {
		return nil, err
	}
	if b.minThreads < 0 || b.maxThreads < 1 || b.maxThreads < b.minThreads {
		return nil, fmt.Errorf("invalid executor %q: min threads %d, max threads %d", b.nameFormat, b.minThreads, b.maxThreads)
	}
	if b.queueCapacity < 0 {
		return nil, fmt.Errorf("invalid executor %q: negative queue capacity", b.nameFormat)
	}
	if b.keepAlive <= 0 {
		b.keepAlive = DefaultKeepAlive
	}
	if b.minThreads != b.maxThreads && b.maxThreads > 1 && b.queueCapacity == 0 {
		b.env.log.Warn("Parameter 'maxThreads' is conflicting with unbounded work queues", map[string]interface{}{
			logger.FieldName: b.nameFormat,
		})
	}

	pool := newExecutorService(b.env, b.pool(), NameWithoutFormat(b.nameFormat))
	manager := NewExecutorServiceManager(pool, b.shutdownTime, b.nameFormat)
	manager.log = b.env.log
	b.env.Manage(manager)
	return pool, nil
}

func (b *ExecutorServiceBuilder) pool() poolOptions {
	return poolOptions{
		nameFormat: b.nameFormat,
		core:       b.minThreads,
		max:        b.maxThreads,
		keepAlive:  b.keepAlive,
		coreExpire: b.allowCoreTimeout,
		capacity:   b.queueCapacity,
		policy:     b.policy,
	}
}

// checkNameFormat requires exactly one %d verb and no other verbs.
func checkNameFormat(format string) error {
	if strings.Count(format, "%d") != 1 || strings.Count(strings.ReplaceAll(format, "%%", ""), "%") != 1 {
		return fmt.Errorf("invalid name format %q: must contain exactly one %%d", format)
	}
	return nil
}

// NameWithoutFormat strips the %d verb from a name format together with a
// hyphen that precedes it: "mailer-%d" becomes "mailer".
func NameWithoutFormat(format string) string {
	before, after, found := strings.Cut(format, "%d")
	if !found {
		return format
	}
	return strings.TrimSuffix(before, "-") + after
}

// Terminable is a pool that can be shut down and awaited.
type Terminable interface {
	Shutdown()
	AwaitTermination(timeout time.Duration) bool
}

// ExecutorServiceManager is the managed adapter that shuts a pool down.
type ExecutorServiceManager struct {
	executor     Terminable
	shutdownTime time.Duration
	poolName     string
	log          *logger.Logger
}

// NewExecutorServiceManager wraps executor; Stop waits up to shutdownTime.
func NewExecutorServiceManager(executor Terminable, shutdownTime time.Duration, poolName string) *ExecutorServiceManager {
	return &ExecutorServiceManager{
		executor:     executor,
		shutdownTime: shutdownTime,
		poolName:     poolName,
		log:          logger.Get("lifecycle"),
	}
}

// Executor returns the managed pool.
func (m *ExecutorServiceManager) Executor() Terminable { return m.executor }

// ShutdownTime returns the grace period granted on stop.
func (m *ExecutorServiceManager) ShutdownTime() time.Duration { return m.shutdownTime }

// PoolName returns the name format the pool was built with.
func (m *ExecutorServiceManager) PoolName() string { return m.poolName }

func (m *ExecutorServiceManager) Name() string { return m.poolName }

func (m *ExecutorServiceManager) Start(context.Context) error { return nil }

// Stop shuts the pool down and waits for it. A pool that does not finish
// in time is abandoned with a warning.
func (m *ExecutorServiceManager) Stop(context.Context) error {
	m.executor.Shutdown()
	if !m.executor.AwaitTermination(m.shutdownTime) {
		m.log.Warn("Executor did not terminate in time; abandoning it", map[string]interface{}{
			logger.FieldName: m.poolName,
			"shutdown_time":  m.shutdownTime.String(),
		})
	}
	return nil
}

func (m *ExecutorServiceManager) String() string {
	return fmt.Sprintf("ExecutorServiceManager(%s)", m.poolName)
}
