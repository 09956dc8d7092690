package db

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/gowizard/health"
)

// NewValidationQueryHealthCheck runs query on executor and reports
// unhealthy when it fails or takes longer than timeout. A nil executor runs
// the query on its own goroutine.
func NewValidationQueryHealthCheck(q Execer, query string, timeout time.Duration, executor health.Executor) health.Checker {
	return health.CheckerFunc(func(ctx context.Context) health.Result {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		done := make(chan error, 1)
		task := func() { done <- validate(ctx, q, query, 0) }
		if executor == nil {
			go task()
		} else if err := executor.Submit(task); err != nil {
			return health.Unhealthy(fmt.Errorf("validation query not scheduled: %w", err))
		}

		select {
		case err := <-done:
			if err != nil {
				return health.Unhealthy(err)
			}
			return health.Healthy()
		case <-ctx.Done():
			return health.Unhealthyf("validation query did not complete within %s", timeout)
		}
	})
}
