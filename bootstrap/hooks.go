package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// Hook is a callback that runs once the application has started or once it
// begins to stop.
type Hook func(ctx context.Context) error

// OnReady registers hooks that run, in registration order, after every
// managed object (the HTTP server included) has started. A failing hook
// aborts startup.
func (a *App[C]) OnReady(hooks ...Hook) {
	a.onReady = append(a.onReady, hooks...)
}

// OnStop registers hooks that run before managed objects are stopped, in
// reverse registration order. Every stop hook runs even when an earlier one
// fails.
func (a *App[C]) OnStop(hooks ...Hook) {
	a.onStop = append(a.onStop, hooks...)
}

func runReadyHooks(ctx context.Context, hooks []Hook) error {
	for i, h := range hooks {
		if err := h(ctx); err != nil {
			return fmt.Errorf("ready hook %d: %w", i, err)
		}
	}
	return nil
}

func runStopHooks(ctx context.Context, hooks []Hook) error {
	var err error
	for i := len(hooks) - 1; i >= 0; i-- {
		if hookErr := hooks[i](ctx); hookErr != nil {
			err = multierr.Append(err, fmt.Errorf("stop hook %d: %w", i, hookErr))
		}
	}
	return err
}
