package lifecycle

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kbukum/gowizard/logger"
)

// ErrRejected is returned by Submit when the pool refuses a task.
var ErrRejected = errors.New("task rejected")

// RejectionPolicy decides what happens to a task submitted to a saturated
// or shut down pool.
type RejectionPolicy int

const (
	// Abort returns ErrRejected to the submitter.
	Abort RejectionPolicy = iota
	// CallerRuns runs the task on the submitting goroutine.
	CallerRuns
	// Discard silently drops the task.
	Discard
	// DiscardOldest drops the oldest queued task and queues the new one.
	DiscardOldest
)

func (p RejectionPolicy) String() string {
	switch p {
	case CallerRuns:
		return "caller-runs"
	case Discard:
		return "discard"
	case DiscardOldest:
		return "discard-oldest"
	default:
		return "abort"
	}
}

// ExecutorService is a bounded worker pool. Up to MinThreads workers are
// started on demand and kept; further tasks are queued, and when the queue
// is full the pool grows up to MaxThreads. Workers above the minimum exit
// after being idle for the keep-alive time.
type ExecutorService struct {
	name       string
	nameFormat string
	core       int
	max        int
	keepAlive  time.Duration
	coreExpire bool
	capacity   int
	policy     RejectionPolicy
	log        *logger.Logger
	metrics    *executorMetrics

	mu         sync.Mutex
	queue      []func()
	workers    int
	nextID     int
	shutdown   bool
	terminated bool
	wake       chan struct{}
	quit       chan struct{}
	done       chan struct{}
}

type poolOptions struct {
	nameFormat string
	core       int
	max        int
	keepAlive  time.Duration
	coreExpire bool
	capacity   int
	policy     RejectionPolicy
}

func newExecutorService(env *Environment, o poolOptions, name string) *ExecutorService {
	return &ExecutorService{
		name:       name,
		nameFormat: o.nameFormat,
		core:       o.core,
		max:        o.max,
		keepAlive:  o.keepAlive,
		coreExpire: o.coreExpire,
		capacity:   o.capacity,
		policy:     o.policy,
		log:        env.log.WithFields(map[string]interface{}{"pool": name}),
		metrics:    env.metrics,
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Name returns the pool name derived from its name format.
func (e *ExecutorService) Name() string { return e.name }

// Submit schedules task for execution.
func (e *ExecutorService) Submit(task func()) error {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		e.metrics.rejected(e.name)
		return fmt.Errorf("%w: executor %s is shut down", ErrRejected, e.name)
	}
	e.metrics.submitted(e.name)

	if e.workers < e.core {
		e.spawnLocked(task)
		e.mu.Unlock()
		return nil
	}
	if e.capacity == 0 || len(e.queue) < e.capacity {
		e.enqueueLocked(task)
		e.mu.Unlock()
		return nil
	}
	if e.workers < e.max {
		e.spawnLocked(task)
		e.mu.Unlock()
		return nil
	}

	switch e.policy {
	case CallerRuns:
		e.mu.Unlock()
		e.run(task)
		return nil
	case Discard:
		e.mu.Unlock()
		e.metrics.rejected(e.name)
		return nil
	case DiscardOldest:
		e.queue = e.queue[1:]
		e.enqueueLocked(task)
		e.mu.Unlock()
		e.metrics.rejected(e.name)
		return nil
	default:
		e.mu.Unlock()
		e.metrics.rejected(e.name)
		return fmt.Errorf("%w: executor %s is saturated", ErrRejected, e.name)
	}
}

func (e *ExecutorService) enqueueLocked(task func()) {
	e.queue = append(e.queue, task)
	e.metrics.queued(e.name, len(e.queue))
	if e.workers == 0 {
		e.spawnLocked(nil)
		return
	}
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *ExecutorService) spawnLocked(first func()) {
	e.workers++
	e.nextID++
	e.metrics.workers(e.name, e.workers)
	go e.worker(fmt.Sprintf(e.nameFormat, e.nextID), first)
}

func (e *ExecutorService) worker(name string, task func()) {
	for {
		if task != nil {
			e.runNamed(name, task)
		}
		if task = e.take(); task == nil {
			return
		}
	}
}

// take blocks until a task is available or the worker should exit, in
// which case it returns nil after deregistering the worker.
func (e *ExecutorService) take() func() {
	e.mu.Lock()
	for {
		if len(e.queue) > 0 {
			task := e.queue[0]
			e.queue = e.queue[1:]
			e.metrics.queued(e.name, len(e.queue))
			e.mu.Unlock()
			return task
		}
		if e.shutdown {
			e.exitLocked()
			e.mu.Unlock()
			return nil
		}
		timed := e.coreExpire || e.workers > e.core
		e.mu.Unlock()

		var expired <-chan time.Time
		var timer *time.Timer
		if timed {
			timer = time.NewTimer(e.keepAlive)
			expired = timer.C
		}
		timedOut := false
		select {
		case <-e.wake:
		case <-e.quit:
		case <-expired:
			timedOut = true
		}
		if timer != nil {
			timer.Stop()
		}

		e.mu.Lock()
		if timedOut && len(e.queue) == 0 && (e.coreExpire || e.workers > e.core) {
			e.exitLocked()
			e.mu.Unlock()
			return nil
		}
	}
}

func (e *ExecutorService) exitLocked() {
	e.workers--
	e.metrics.workers(e.name, e.workers)
	if e.shutdown && e.workers == 0 && len(e.queue) == 0 {
		e.terminateLocked()
	}
}

func (e *ExecutorService) terminateLocked() {
	if !e.terminated {
		e.terminated = true
		close(e.done)
	}
}

func (e *ExecutorService) run(task func()) { e.runNamed(e.name, task) }

func (e *ExecutorService) runNamed(worker string, task func()) {
	e.metrics.running(e.name, 1)
	defer func() {
		e.metrics.running(e.name, -1)
		e.metrics.completed(e.name)
		if r := recover(); r != nil {
			e.log.Error("Task panicked", map[string]interface{}{
				"worker":          worker,
				logger.FieldError: fmt.Sprint(r),
				"stack":           string(debug.Stack()),
			})
		}
	}()
	task()
}

// Shutdown stops accepting tasks. Queued tasks still run.
func (e *ExecutorService) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shutdown {
		return
	}
	e.shutdown = true
	close(e.quit)
	if e.workers == 0 {
		e.queue = nil
		e.terminateLocked()
	}
}

// ShutdownNow stops accepting tasks and returns the tasks that never ran.
// Running tasks are not interrupted.
func (e *ExecutorService) ShutdownNow() []func() {
	e.mu.Lock()
	pending := e.queue
	e.queue = nil
	e.metrics.queued(e.name, 0)
	e.mu.Unlock()
	e.Shutdown()
	return pending
}

// AwaitTermination waits up to timeout for all workers to exit after a
// shutdown and reports whether they did.
func (e *ExecutorService) AwaitTermination(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-e.done:
		return true
	case <-timer.C:
		return false
	}
}

// IsShutdown reports whether Shutdown has been called.
func (e *ExecutorService) IsShutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown
}

// IsTerminated reports whether the pool has shut down and every worker has
// exited.
func (e *ExecutorService) IsTerminated() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Workers int
	Queued  int
}

// Stats returns the current worker and queue counts.
func (e *ExecutorService) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{Workers: e.workers, Queued: len(e.queue)}
}

func (e *ExecutorService) String() string {
	return fmt.Sprintf("ExecutorService(%s, min=%d, max=%d)", e.name, e.core, e.max)
}
