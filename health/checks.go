package health

import (
	"context"
	"runtime"
)

// GoroutineCheck fails when more than threshold goroutines are running.
// A threshold of zero or less disables the check.
func GoroutineCheck(threshold int) Checker {
	return CheckerFunc(func(ctx context.Context) Result {
		n := runtime.NumGoroutine()
		if threshold > 0 && n > threshold {
			return Unhealthyf("%d goroutines running, more than %d", n, threshold).WithDetail("goroutines", n)
		}
		return Healthy().WithDetail("goroutines", n)
	})
}

// PingCheck adapts a ping function, such as (*sql.DB).PingContext.
func PingCheck(ping func(ctx context.Context) error) Checker {
	return CheckerFunc(func(ctx context.Context) Result {
		if err := ping(ctx); err != nil {
			return Unhealthy(err)
		}
		return Healthy()
	})
}
