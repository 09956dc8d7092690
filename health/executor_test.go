package health_test

import (
	"context"
	"testing"
	"time"

	"github.com/kbukum/gowizard/health"
	"github.com/kbukum/gowizard/lifecycle"
)

func TestRunAllConcurrentlyWithDiscardingPool(t *testing.T) {
	policies := []struct {
		name   string
		policy lifecycle.RejectionPolicy
	}{
		{"discard", lifecycle.Discard},
		{"discard oldest", lifecycle.DiscardOldest},
	}
	for _, tc := range policies {
		t.Run(tc.name, func(t *testing.T) {
			pool, err := lifecycle.NewEnvironment().ExecutorService("health-%d").
				MinThreads(1).
				MaxThreads(1).
				WorkQueue(1).
				RejectionPolicy(tc.policy).
				Build()
			if err != nil {
				t.Fatalf("build pool: %v", err)
			}
			t.Cleanup(pool.Shutdown)

			r := health.NewRegistry(nil)
			for _, name := range []string{"a", "b", "c", "d"} {
				r.RegisterFunc(name, func(context.Context) health.Result {
					time.Sleep(50 * time.Millisecond)
					return health.Healthy()
				})
			}

			done := make(chan map[string]health.Result, 1)
			go func() { done <- r.RunAllConcurrently(context.Background(), pool) }()
			select {
			case results := <-done:
				if len(results) != 4 {
					t.Fatalf("expected 4 results, got %d", len(results))
				}
				for name, res := range results {
					if !res.Healthy {
						t.Errorf("expected %s to be healthy, got %+v", name, res)
					}
				}
			case <-time.After(5 * time.Second):
				t.Fatal("RunAllConcurrently did not return with a saturated pool")
			}
		})
	}
}
