package bootstrap

import (
	"io"
	"os"
	"time"

	"github.com/kbukum/gowizard/logger"
)

// Option configures the App during creation.
// Options are non-generic so they can be used with any config type.
type Option func(*appOptions)

// appOptions collects all option values before applying to App.
type appOptions struct {
	logger          *logger.Logger
	gracefulTimeout time.Duration
	summary         io.Writer
	bundles         []Bundle
}

// resolveOptions applies all options and returns the collected values.
func resolveOptions(opts []Option) *appOptions {
	o := &appOptions{
		gracefulTimeout: 30 * time.Second,
		summary:         os.Stdout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger used while bootstrapping. If not set, a logger
// reporting only warnings and errors is used until the logging section of
// the configuration is applied.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) {
		o.logger = l
	}
}

// WithGracefulTimeout sets the maximum duration of Stop.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) {
		o.gracefulTimeout = d
	}
}

// WithSummaryWriter sets where the startup summary is printed. Nil disables
// it.
func WithSummaryWriter(w io.Writer) Option {
	return func(o *appOptions) {
		o.summary = w
	}
}

// WithBundles pre-registers bundles; they initialize before the
// application's own Initialize.
func WithBundles(bundles ...Bundle) Option {
	return func(o *appOptions) {
		o.bundles = append(o.bundles, bundles...)
	}
}
