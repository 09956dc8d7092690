package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/multierr"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type recordingManaged struct {
	name     string
	rec      *recorder
	startErr error
	stopErr  error
}

func (m *recordingManaged) Name() string { return m.name }

func (m *recordingManaged) Start(context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.rec.add("start " + m.name)
	return nil
}

func (m *recordingManaged) Stop(context.Context) error {
	m.rec.add("stop " + m.name)
	return m.stopErr
}

func equalEvents(t *testing.T, got, want []string) {
	t.Helper()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected events %v, got %v", want, got)
	}
}

func TestStartAndStopOrder(t *testing.T) {
	rec := &recorder{}
	env := NewEnvironment()
	for _, n := range []string{"a", "b", "c"} {
		env.Manage(&recordingManaged{name: n, rec: rec})
	}

	ctx := context.Background()
	if err := env.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := env.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	equalEvents(t, rec.list(), []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"})
}

func TestStartFailureAbortsAndStopUnwindsStarted(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	env := NewEnvironment()
	env.Manage(&recordingManaged{name: "a", rec: rec})
	env.Manage(&recordingManaged{name: "b", rec: rec, startErr: boom})
	env.Manage(&recordingManaged{name: "c", rec: rec})

	err := env.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected start error wrapping boom, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed to start b") {
		t.Errorf("expected error naming b, got %q", err.Error())
	}
	if err := env.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	equalEvents(t, rec.list(), []string{"start a", "stop a"})
}

func TestStopContinuesAfterFailures(t *testing.T) {
	rec := &recorder{}
	env := NewEnvironment()
	env.Manage(&recordingManaged{name: "a", rec: rec, stopErr: errors.New("a failed")})
	env.Manage(&recordingManaged{name: "b", rec: rec})
	env.Manage(&recordingManaged{name: "c", rec: rec, stopErr: errors.New("c failed")})

	ctx := context.Background()
	if err := env.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	err := env.Stop(ctx)
	if n := len(multierr.Errors(err)); n != 2 {
		t.Fatalf("expected 2 stop errors, got %d: %v", n, err)
	}
	equalEvents(t, rec.list()[3:], []string{"stop c", "stop b", "stop a"})
}

func TestDuplicateRegistrationIsStartedTwice(t *testing.T) {
	rec := &recorder{}
	m := &recordingManaged{name: "dup", rec: rec}
	env := NewEnvironment()
	env.Manage(m)
	env.Manage(m)

	if len(env.Managed()) != 2 {
		t.Fatalf("expected 2 registrations, got %d", len(env.Managed()))
	}
	if err := env.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	equalEvents(t, rec.list(), []string{"start dup", "start dup"})
}

func TestListenersAndAdapters(t *testing.T) {
	rec := &recorder{}
	env := NewEnvironment()
	env.AddLifecycleListener(ListenerFuncs{
		OnStarted:  func(context.Context) { rec.add("started") },
		OnStopping: func(context.Context) { rec.add("stopping") },
	})
	env.ManageFuncs("funcs",
		func(context.Context) error { rec.add("start funcs"); return nil },
		func(context.Context) error { rec.add("stop funcs"); return nil },
	)
	closer := &fakeCloser{rec: rec}
	env.ManageCloser("closer", closer)

	ctx := context.Background()
	if err := env.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := env.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	equalEvents(t, rec.list(), []string{"start funcs", "started", "stopping", "close", "stop funcs"})
}

type fakeCloser struct{ rec *recorder }

func (c *fakeCloser) Close() error {
	c.rec.add("close")
	return nil
}

func TestExecutorBuilderRegistersOneManager(t *testing.T) {
	env := NewEnvironment()
	pool, err := env.ExecutorService("x-%d").MinThreads(1).MaxThreads(4).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	managed := env.Managed()
	if len(managed) != 1 {
		t.Fatalf("expected one managed object, got %d", len(managed))
	}
	manager, ok := managed[0].(*ExecutorServiceManager)
	if !ok {
		t.Fatalf("expected *ExecutorServiceManager, got %T", managed[0])
	}
	if manager.ShutdownTime() != 5*time.Second {
		t.Errorf("expected default shutdown time 5s, got %v", manager.ShutdownTime())
	}
	if manager.Executor() != Terminable(pool) {
		t.Error("expected manager to wrap the built pool")
	}
	if pool.Name() != "x" || manager.PoolName() != "x-%d" {
		t.Errorf("unexpected names %q / %q", pool.Name(), manager.PoolName())
	}

	if _, err := env.ExecutorService("y-%d").ShutdownTime(2 * time.Second).Build(); err != nil {
		t.Fatal(err)
	}
	if got := env.Managed()[1].(*ExecutorServiceManager).ShutdownTime(); got != 2*time.Second {
		t.Errorf("expected shutdown time 2s, got %v", got)
	}
}

func TestExecutorBuilderValidation(t *testing.T) {
	env := NewEnvironment()
	tests := []struct {
		name string
		b    *ExecutorServiceBuilder
	}{
		{"no verb", env.ExecutorService("plain")},
		{"two verbs", env.ExecutorService("a-%d-%d")},
		{"string verb", env.ExecutorService("a-%s-%d")},
		{"max below min", env.ExecutorService("a-%d").MinThreads(3).MaxThreads(2)},
		{"zero max", env.ExecutorService("a-%d").MaxThreads(0)},
		{"negative queue", env.ExecutorService("a-%d").WorkQueue(-1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.b.Build(); err == nil {
				t.Error("expected error")
			}
		})
	}
	if len(env.Managed()) != 0 {
		t.Errorf("expected no registrations, got %d", len(env.Managed()))
	}
}

func TestNameWithoutFormat(t *testing.T) {
	cases := map[string]string{
		"mailer-%d":      "mailer",
		"pool-%d-worker": "pool-worker",
		"%d":             "",
		"x%d":            "x",
	}
	for in, want := range cases {
		if got := NameWithoutFormat(in); got != want {
			t.Errorf("NameWithoutFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExecutorRunsTasks(t *testing.T) {
	env := NewEnvironment()
	pool, err := env.ExecutorService("run-%d").MinThreads(2).MaxThreads(2).Build()
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			count.Add(1)
		}); err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	wg.Wait()
	if count.Load() != 20 {
		t.Errorf("expected 20 runs, got %d", count.Load())
	}
	if w := pool.Stats().Workers; w > 2 {
		t.Errorf("expected at most 2 workers, got %d", w)
	}
}

func TestExecutorSurvivesPanics(t *testing.T) {
	env := NewEnvironment()
	pool, _ := env.ExecutorService("panic-%d").Build()
	done := make(chan struct{})
	_ = pool.Submit(func() { panic("bad task") })
	_ = pool.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected pool to keep running after a panic")
	}
}

// saturate builds a single-worker pool with a queue of one and fills it.
func saturate(t *testing.T, policy RejectionPolicy) (*ExecutorService, chan struct{}, *recorder) {
	t.Helper()
	env := NewEnvironment()
	pool, err := env.ExecutorService("sat-%d").MaxThreads(1).WorkQueue(1).RejectionPolicy(policy).Build()
	if err != nil {
		t.Fatal(err)
	}
	release := make(chan struct{})
	started := make(chan struct{})
	rec := &recorder{}
	if err := pool.Submit(func() { close(started); <-release; rec.add("first") }); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := pool.Submit(func() { rec.add("queued") }); err != nil {
		t.Fatal(err)
	}
	return pool, release, rec
}

func TestAbortPolicyRejects(t *testing.T) {
	pool, release, _ := saturate(t, Abort)
	defer close(release)
	if err := pool.Submit(func() {}); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestCallerRunsPolicy(t *testing.T) {
	pool, release, rec := saturate(t, CallerRuns)
	defer close(release)
	if err := pool.Submit(func() { rec.add("caller") }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	equalEvents(t, rec.list(), []string{"caller"})
}

func TestDiscardOldestPolicy(t *testing.T) {
	pool, release, rec := saturate(t, DiscardOldest)
	done := make(chan struct{})
	if err := pool.Submit(func() { rec.add("newest"); close(done) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(release)
	<-done
	equalEvents(t, rec.list(), []string{"first", "newest"})
}

func TestShutdownDrainsQueueAndRejects(t *testing.T) {
	pool, release, rec := saturate(t, Abort)
	pool.Shutdown()
	if err := pool.Submit(func() {}); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected after shutdown, got %v", err)
	}
	close(release)
	if !pool.AwaitTermination(2 * time.Second) {
		t.Fatal("expected pool to terminate")
	}
	equalEvents(t, rec.list(), []string{"first", "queued"})
	if !pool.IsShutdown() || !pool.IsTerminated() {
		t.Error("expected shut down and terminated pool")
	}
}

func TestShutdownNowReturnsPending(t *testing.T) {
	pool, release, _ := saturate(t, Abort)
	pending := pool.ShutdownNow()
	close(release)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending task, got %d", len(pending))
	}
	if !pool.AwaitTermination(2 * time.Second) {
		t.Fatal("expected pool to terminate")
	}
}

func TestStopAbandonsSlowPool(t *testing.T) {
	env := NewEnvironment()
	pool, _ := env.ExecutorService("slow-%d").ShutdownTime(20 * time.Millisecond).Build()
	release := make(chan struct{})
	defer close(release)
	_ = pool.Submit(func() { <-release })

	ctx := context.Background()
	if err := env.Start(ctx); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := env.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected stop within the shutdown time, took %v", elapsed)
	}
	if pool.IsTerminated() {
		t.Error("expected blocked pool to be abandoned, not terminated")
	}
}

func TestIdleWorkersExpire(t *testing.T) {
	env := NewEnvironment()
	pool, _ := env.ExecutorService("idle-%d").MinThreads(1).MaxThreads(1).
		AllowCoreThreadTimeout(true).KeepAliveTime(10 * time.Millisecond).Build()
	done := make(chan struct{})
	_ = pool.Submit(func() { close(done) })
	<-done

	deadline := time.Now().Add(2 * time.Second)
	for pool.Stats().Workers != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected idle worker to exit")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestExecutorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	env := NewEnvironment(WithRegisterer(reg))
	pool, _ := env.ExecutorService("metered-%d").Build()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		_ = pool.Submit(wg.Done)
	}
	wg.Wait()
	pool.Shutdown()
	pool.AwaitTermination(time.Second)

	if got := promtest.ToFloat64(env.metrics.submittedTotal.WithLabelValues("metered")); got != 3 {
		t.Errorf("expected 3 submitted, got %v", got)
	}
	if got := promtest.ToFloat64(env.metrics.completedTotal.WithLabelValues("metered")); got != 3 {
		t.Errorf("expected 3 completed, got %v", got)
	}

	again := NewEnvironment(WithRegisterer(reg))
	if again.metrics.submittedTotal != env.metrics.submittedTotal {
		t.Error("expected collectors to be shared on the same registerer")
	}
}

func TestScheduleRunsOnce(t *testing.T) {
	env := NewEnvironment()
	s, err := env.ScheduledExecutorService("sched-%d").Build()
	if err != nil {
		t.Fatal(err)
	}
	ran := make(chan struct{}, 2)
	task, err := s.Schedule(5*time.Millisecond, func() { ran <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected task to finish")
	}
	if len(ran) != 1 || task.Runs() != 1 {
		t.Errorf("expected exactly one run, got %d", task.Runs())
	}
}

func TestScheduleAtFixedRateUntilCanceled(t *testing.T) {
	env := NewEnvironment()
	s, _ := env.ScheduledExecutorService("rate-%d").RemoveOnCancel(true).Build()
	var runs atomic.Int32
	task, err := s.ScheduleAtFixedRate(0, 5*time.Millisecond, func() { runs.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("expected at least 3 runs")
		}
		time.Sleep(time.Millisecond)
	}
	if !task.Cancel() {
		t.Error("expected first cancel to succeed")
	}
	if task.Cancel() {
		t.Error("expected second cancel to report false")
	}
	<-task.Done()
	if s.Pending() != 0 {
		t.Errorf("expected no pending tasks, got %d", s.Pending())
	}
}

func TestScheduleWithFixedDelay(t *testing.T) {
	env := NewEnvironment()
	s, _ := env.ScheduledExecutorService("delay-%d").Build()
	var runs atomic.Int32
	task, _ := s.ScheduleWithFixedDelay(time.Millisecond, time.Millisecond, func() { runs.Add(1) })
	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("expected repeated runs")
		}
		time.Sleep(time.Millisecond)
	}
	task.Cancel()
	if _, err := s.ScheduleWithFixedDelay(0, 0, func() {}); err == nil {
		t.Error("expected error for zero delay")
	}
}

func TestScheduleCron(t *testing.T) {
	env := NewEnvironment()
	s, _ := env.ScheduledExecutorService("cron-%d").Build()
	if _, err := s.ScheduleCron("not a cron", func() {}); err == nil {
		t.Error("expected invalid cron expression error")
	}
	task, err := s.ScheduleCron("0 0 1 1 *", func() {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Pending() != 1 {
		t.Errorf("expected 1 pending task, got %d", s.Pending())
	}
	task.Cancel()
}

func TestSchedulerStopCancelsPending(t *testing.T) {
	env := NewEnvironment()
	s, _ := env.ScheduledExecutorService("stop-%d").Build()
	task, _ := s.Schedule(time.Hour, func() { t.Error("must not run") })

	ctx := context.Background()
	if err := env.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := env.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if !task.Canceled() {
		t.Error("expected pending task to be canceled")
	}
	if _, err := s.Schedule(0, func() {}); !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected after shutdown, got %v", err)
	}
}
