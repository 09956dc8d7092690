package cli

import (
	"context"
	"fmt"

	"github.com/kbukum/gowizard/bootstrap"
)

// NewServerCommand returns the "server" command: it runs the application,
// starts it, and blocks until interrupted or ctx is canceled.
func NewServerCommand[C bootstrap.Config](app *bootstrap.App[C]) bootstrap.Command[C] {
	return bootstrap.NewConfiguredCommand("server", "Runs the application as an HTTP server", nil,
		func(ctx context.Context, _ *bootstrap.Bootstrap[C], _ *bootstrap.Namespace, cfg C) error {
			if err := app.Run(ctx, cfg); err != nil {
				return err
			}
			if err := app.Start(ctx); err != nil {
				return err
			}
			app.WaitForSignal(ctx)
			return app.Stop(context.WithoutCancel(ctx))
		})
}

// NewCheckCommand returns the "check" command, which loads and validates
// the configuration and reports the result.
func NewCheckCommand[C bootstrap.Config]() bootstrap.Command[C] {
	return bootstrap.NewConfiguredCommand("check", "Parses and validates the configuration file", nil,
		func(_ context.Context, _ *bootstrap.Bootstrap[C], ns *bootstrap.Namespace, _ C) error {
			fmt.Fprintln(ns.Stdout, "Configuration is OK")
			return nil
		})
}
