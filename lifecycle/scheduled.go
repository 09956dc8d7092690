package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ScheduledTask is a handle on a delayed or periodic task.
type ScheduledTask struct {
	owner    *ScheduledExecutorService
	cancel   chan struct{}
	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	runs     int
	canceled bool
}

func newScheduledTask(owner *ScheduledExecutorService) *ScheduledTask {
	return &ScheduledTask{owner: owner, cancel: make(chan struct{}), done: make(chan struct{})}
}

// Cancel stops further executions. A run in progress completes. It reports
// whether this call canceled the task.
func (t *ScheduledTask) Cancel() bool {
	canceled := false
	t.once.Do(func() {
		t.mu.Lock()
		t.canceled = true
		t.mu.Unlock()
		close(t.cancel)
		canceled = true
	})
	if canceled && t.owner.removeOnCancel {
		t.owner.remove(t)
	}
	return canceled
}

// Canceled reports whether Cancel was called.
func (t *ScheduledTask) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// Runs returns how many times the task has completed.
func (t *ScheduledTask) Runs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

// Done is closed once the task will not run again.
func (t *ScheduledTask) Done() <-chan struct{} { return t.done }

// ScheduledExecutorService runs delayed, periodic and cron-scheduled tasks
// on a fixed set of workers.
type ScheduledExecutorService struct {
	name           string
	pool           *ExecutorService
	removeOnCancel bool

	mu       sync.Mutex
	tasks    map[*ScheduledTask]struct{}
	shutdown bool
	loops    sync.WaitGroup
}

// Name returns the scheduler name derived from its name format.
func (s *ScheduledExecutorService) Name() string { return s.name }

// Pending returns the number of tasks that may still run.
func (s *ScheduledExecutorService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Schedule runs fn once after delay.
func (s *ScheduledExecutorService) Schedule(delay time.Duration, fn func()) (*ScheduledTask, error) {
	first := true
	return s.start(fn, func(now time.Time, _ time.Time) (time.Time, bool) {
		if !first {
			return time.Time{}, false
		}
		first = false
		return now.Add(delay), true
	})
}

// ScheduleAtFixedRate runs fn after initial and then every period, measured
// from the scheduled start of each run. Runs never overlap; when a run
// takes longer than period the next one starts late.
func (s *ScheduledExecutorService) ScheduleAtFixedRate(initial, period time.Duration, fn func()) (*ScheduledTask, error) {
	if period <= 0 {
		return nil, fmt.Errorf("schedule %s: period must be positive", s.name)
	}
	var next time.Time
	return s.start(fn, func(now time.Time, _ time.Time) (time.Time, bool) {
		if next.IsZero() {
			next = now.Add(initial)
		} else {
			next = next.Add(period)
		}
		return next, true
	})
}

// ScheduleWithFixedDelay runs fn after initial and then delay after each
// run completes.
func (s *ScheduledExecutorService) ScheduleWithFixedDelay(initial, delay time.Duration, fn func()) (*ScheduledTask, error) {
	if delay <= 0 {
		return nil, fmt.Errorf("schedule %s: delay must be positive", s.name)
	}
	first := true
	return s.start(fn, func(now time.Time, finished time.Time) (time.Time, bool) {
		if first {
			first = false
			return now.Add(initial), true
		}
		return finished.Add(delay), true
	})
}

// ScheduleCron runs fn on a cron schedule. Five-field expressions, an
// optional leading seconds field and descriptors such as "@every 1m" are
// accepted.
func (s *ScheduledExecutorService) ScheduleCron(spec string, fn func()) (*ScheduledTask, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: invalid cron expression %q: %w", s.name, spec, err)
	}
	return s.start(fn, func(now time.Time, _ time.Time) (time.Time, bool) {
		next := schedule.Next(now)
		return next, !next.IsZero()
	})
}

// nextFunc returns the next run time given the current time and the end of
// the previous run.
type nextFunc func(now, finished time.Time) (time.Time, bool)

func (s *ScheduledExecutorService) start(fn func(), next nextFunc) (*ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return nil, fmt.Errorf("%w: scheduler %s is shut down", ErrRejected, s.name)
	}
	task := newScheduledTask(s)
	s.tasks[task] = struct{}{}
	s.loops.Add(1)
	go s.loop(task, fn, next)
	return task, nil
}

func (s *ScheduledExecutorService) loop(task *ScheduledTask, fn func(), next nextFunc) {
	defer s.loops.Done()
	defer close(task.done)
	defer s.remove(task)

	var finished time.Time
	for {
		now := time.Now()
		at, ok := next(now, finished)
		if !ok {
			return
		}
		timer := time.NewTimer(time.Until(at))
		select {
		case <-task.cancel:
			timer.Stop()
			return
		case <-timer.C:
		}

		ran := make(chan struct{})
		if err := s.pool.Submit(func() {
			defer close(ran)
			fn()
		}); err != nil {
			return
		}
		<-ran
		finished = time.Now()
		task.mu.Lock()
		task.runs++
		task.mu.Unlock()
	}
}

func (s *ScheduledExecutorService) remove(task *ScheduledTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, task)
}

// Shutdown cancels every pending task and stops the workers. Runs in
// progress complete.
func (s *ScheduledExecutorService) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	tasks := make([]*ScheduledTask, 0, len(s.tasks))
	for t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
	go func() {
		s.loops.Wait()
		s.pool.Shutdown()
	}()
}

// AwaitTermination waits up to timeout for running tasks to finish.
func (s *ScheduledExecutorService) AwaitTermination(timeout time.Duration) bool {
	return s.pool.AwaitTermination(timeout)
}

func (s *ScheduledExecutorService) String() string {
	return fmt.Sprintf("ScheduledExecutorService(%s)", s.name)
}

// ScheduledExecutorServiceBuilder configures a ScheduledExecutorService.
type ScheduledExecutorServiceBuilder struct {
	env            *Environment
	nameFormat     string
	threads        int
	shutdownTime   time.Duration
	removeOnCancel bool
}

func newScheduledExecutorServiceBuilder(env *Environment, nameFormat string) *ScheduledExecutorServiceBuilder {
	return &ScheduledExecutorServiceBuilder{
		env:          env,
		nameFormat:   nameFormat,
		threads:      1,
		shutdownTime: DefaultShutdownTime,
	}
}

// Threads sets the number of workers running tasks.
func (b *ScheduledExecutorServiceBuilder) Threads(n int) *ScheduledExecutorServiceBuilder {
	b.threads = n
	return b
}

// ShutdownTime bounds how long Stop waits for running tasks.
func (b *ScheduledExecutorServiceBuilder) ShutdownTime(d time.Duration) *ScheduledExecutorServiceBuilder {
	b.shutdownTime = d
	return b
}

// RemoveOnCancel drops canceled tasks from the pending set immediately.
func (b *ScheduledExecutorServiceBuilder) RemoveOnCancel(remove bool) *ScheduledExecutorServiceBuilder {
	b.removeOnCancel = remove
	return b
}

// Build creates the scheduler and registers it with the Environment.
func (b *ScheduledExecutorServiceBuilder) Build() (*ScheduledExecutorService, error) {
	if err := checkNameFormat(b.nameFormat); err != nil {
		return nil, err
	}
	if b.threads < 1 {
		return nil, fmt.Errorf("invalid scheduler %q: threads must be at least 1", b.nameFormat)
	}
	name := NameWithoutFormat(b.nameFormat)
	pool := newExecutorService(b.env, poolOptions{
		nameFormat: b.nameFormat,
		core:       b.threads,
		max:        b.threads,
		keepAlive:  DefaultKeepAlive,
		policy:     Abort,
	}, name)
	s := &ScheduledExecutorService{
		name:           name,
		pool:           pool,
		removeOnCancel: b.removeOnCancel,
		tasks:          map[*ScheduledTask]struct{}{},
	}
	manager := NewExecutorServiceManager(s, b.shutdownTime, b.nameFormat)
	manager.log = b.env.log
	b.env.Manage(manager)
	return s, nil
}
