// Package embedded runs a gowizard application inside another program,
// without the command line.
//
//	srv := embedded.New[*HelloConfig](HelloApp{}, embedded.WithConfigFile[*HelloConfig]("hello.yml"))
//	if err := srv.Start(ctx); err != nil { ... }
//	defer srv.Stop(context.Background())
package embedded

import (
	"context"
	"sync"

	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/config"
)

// Server drives an application through initialize, configuration loading,
// run and start.
type Server[C bootstrap.Config] struct {
	app       *bootstrap.App[C]
	cfg       C
	hasConfig bool
	path      string
	overrides config.Overrides
	appOpts   []bootstrap.Option
	mutators  []func(C)

	done     chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	err      error
}

// Option configures a Server.
type Option[C bootstrap.Config] func(*Server[C])

// WithConfiguration uses cfg as is instead of loading a configuration.
func WithConfiguration[C bootstrap.Config](cfg C) Option[C] {
	return func(s *Server[C]) {
		s.cfg = cfg
		s.hasConfig = true
	}
}

// WithConfigFile loads the configuration from path. Without it, and without
// WithConfiguration, the configuration is built from defaults.
func WithConfigFile[C bootstrap.Config](path string) Option[C] {
	return func(s *Server[C]) { s.path = path }
}

// WithOverrides applies overrides when loading the configuration.
func WithOverrides[C bootstrap.Config](o config.Overrides) Option[C] {
	return func(s *Server[C]) { s.overrides = s.overrides.Merge(o) }
}

// WithAppOptions passes options to bootstrap.NewApp.
func WithAppOptions[C bootstrap.Config](opts ...bootstrap.Option) Option[C] {
	return func(s *Server[C]) { s.appOpts = append(s.appOpts, opts...) }
}

// WithConfigurationMutator changes the configuration after it is loaded and
// before the application runs.
func WithConfigurationMutator[C bootstrap.Config](fn func(cfg C)) Option[C] {
	return func(s *Server[C]) { s.mutators = append(s.mutators, fn) }
}

// New creates a Server.
func New[C bootstrap.Config](app bootstrap.Application[C], opts ...Option[C]) *Server[C] {
	s := &Server[C]{done: make(chan struct{})}
	for _, opt := range opts {
		opt(s)
	}
	s.app = bootstrap.NewApp(app, s.appOpts...)
	return s
}

// App returns the underlying application.
func (s *Server[C]) App() *bootstrap.App[C] { return s.app }

// Environment returns the environment, or nil before Start.
func (s *Server[C]) Environment() *bootstrap.Environment { return s.app.Environment() }

// Configuration returns the configuration the application runs with.
func (s *Server[C]) Configuration() C { return s.app.Configuration() }

// Start initializes, configures, runs and starts the application. On
// failure the server is finished and Wait returns the error.
func (s *Server[C]) Start(ctx context.Context) error {
	if err := s.start(ctx); err != nil {
		s.finish(err)
		return err
	}
	return nil
}

func (s *Server[C]) start(ctx context.Context) error {
	if err := s.app.Initialize(); err != nil {
		return err
	}
	cfg := s.cfg
	if !s.hasConfig {
		loaded, err := s.app.Bootstrap().LoadConfiguration(s.path, s.overrides)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	for _, mutate := range s.mutators {
		mutate(cfg)
	}
	if err := s.app.Run(ctx, cfg); err != nil {
		return err
	}
	return s.app.Start(ctx)
}

// Stop stops the application. Calling it more than once has no further
// effect.
func (s *Server[C]) Stop(ctx context.Context) error {
	if s.app.State() != bootstrap.StateStarted {
		s.finish(nil)
		return s.Err()
	}
	err := s.app.Stop(ctx)
	s.finish(err)
	return err
}

func (s *Server[C]) finish(err error) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// Err returns the error the server finished with.
func (s *Server[C]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the server has stopped or failed to start.
func (s *Server[C]) Done() <-chan struct{} { return s.done }

// Wait blocks until the server has stopped and returns its error.
func (s *Server[C]) Wait() error {
	<-s.done
	return s.Err()
}
