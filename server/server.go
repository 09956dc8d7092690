package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/gowizard/health"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/metrics"
	"github.com/kbukum/gowizard/server/middleware"
)

// Connector roles.
const (
	RoleApplication = "application"
	RoleAdmin       = "admin"
)

// Option configures Build.
type Option func(*options)

type options struct {
	log          *logger.Logger
	metrics      *metrics.Registry
	health       *health.Registry
	shutdownWait time.Duration
	middleware   []middleware.Middleware
}

// WithLogger sets the logger for the server and the request log fallback.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics instruments application requests on registry.
func WithMetrics(registry *metrics.Registry) Option {
	return func(o *options) { o.metrics = registry }
}

// WithDelayedShutdown marks registry as shutting down when the server stops
// and waits before closing connectors, so load balancers observe the failing
// health check first.
func WithDelayedShutdown(registry *health.Registry, wait time.Duration) Option {
	return func(o *options) {
		o.health = registry
		o.shutdownWait = wait
	}
}

// WithApplicationMiddleware appends middleware to the application chain. It
// runs inside the built-in middleware.
func WithApplicationMiddleware(mw ...middleware.Middleware) Option {
	return func(o *options) { o.middleware = append(o.middleware, mw...) }
}

// Server serves the application and admin handlers on the configured
// connectors. It implements lifecycle.Managed.
type Server struct {
	factory      Factory
	log          *logger.Logger
	health       *health.Registry
	shutdownWait time.Duration

	mu         sync.Mutex
	connectors []*connector
	started    bool
}

type connector struct {
	role    string
	config  ConnectorFactory
	server  *http.Server
	port    int
	serving sync.WaitGroup
}

func (c *connector) serve(ln net.Listener) error {
	if c.server.TLSConfig != nil {
		return c.server.ServeTLS(ln, "", "")
	}
	return c.server.Serve(ln)
}

// Build creates a Server for app and admin.
func (f *Factory) Build(app, admin http.Handler, opts ...Option) (*Server, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Get("server")
	}

	s := &Server{
		factory:      *f,
		log:          o.log,
		health:       o.health,
		shutdownWait: o.shutdownWait,
	}

	appHandler := f.applicationChain(o)(app)
	adminHandler := middleware.Chain(
		middleware.Recovery(o.log),
		middleware.RequestID(),
	)(admin)

	switch f.Type {
	case TypeSimple:
		mux := http.NewServeMux()
		mount(mux, f.ApplicationContextPath, appHandler)
		mount(mux, f.AdminContextPath, adminHandler)
		c, err := s.newConnector(RoleApplication, f.Connector, mux)
		if err != nil {
			return nil, err
		}
		s.connectors = append(s.connectors, c)
	case TypeDefault, "":
		if len(f.ApplicationConnectors) == 0 {
			return nil, errors.New("server: at least one application connector is required")
		}
		for _, cfg := range f.ApplicationConnectors {
			c, err := s.newConnector(RoleApplication, cfg, appHandler)
			if err != nil {
				return nil, err
			}
			s.connectors = append(s.connectors, c)
		}
		for _, cfg := range f.AdminConnectors {
			c, err := s.newConnector(RoleAdmin, cfg, adminHandler)
			if err != nil {
				return nil, err
			}
			s.connectors = append(s.connectors, c)
		}
	default:
		return nil, fmt.Errorf("server: unknown server type %q", f.Type)
	}
	return s, nil
}

func (f *Factory) applicationChain(o *options) middleware.Middleware {
	chain := []middleware.Middleware{
		middleware.Recovery(o.log),
		middleware.RequestID(),
	}
	if f.RequestLog.Enabled {
		chain = append(chain, middleware.RequestLogger(requestLogger(f.RequestLog, o.log)))
	}
	chain = append(chain,
		middleware.Instrument(o.metrics, "http"),
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: f.MaxRequestsPerSecond,
			Burst:             f.MaxRequestsBurst,
		}),
		middleware.BodySizeLimit(f.MaxRequestBodySize),
	)
	if f.Cors.Enabled {
		chain = append(chain, middleware.CORS(&f.Cors))
	}
	chain = append(chain, middleware.Gzip(f.Gzip))
	chain = append(chain, o.middleware...)
	return middleware.Chain(chain...)
}

func requestLogger(cfg RequestLogConfig, fallback *logger.Logger) *logger.Logger {
	if cfg.Output == "" {
		return fallback.WithComponent("request")
	}
	lc := &logger.Config{Output: cfg.Output, Format: cfg.Format}
	lc.ApplyDefaults()
	return logger.New(lc, "request").WithComponent("request")
}

// mount serves h under path with the prefix stripped.
func mount(mux *http.ServeMux, path string, h http.Handler) {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		mux.Handle("/", h)
		return
	}
	mux.Handle(path+"/", http.StripPrefix(path, h))
}

func (s *Server) newConnector(role string, cfg ConnectorFactory, h http.Handler) (*connector, error) {
	srv := &http.Server{
		Addr:              cfg.Address(),
		ReadHeaderTimeout: s.factory.ReadTimeout.Std(),
		ReadTimeout:       s.factory.ReadTimeout.Std(),
		WriteTimeout:      s.factory.WriteTimeout.Std(),
		IdleTimeout:       s.factory.IdleTimeout.Std(),
	}
	switch cfg.Type {
	case ConnectorH2C:
		h = h2c.NewHandler(h, &http2.Server{
			MaxConcurrentStreams: 250,
			IdleTimeout:          s.factory.IdleTimeout.Std(),
		})
	case ConnectorHTTPS:
		tlsCfg, err := cfg.TLS.BuildServer()
		if err != nil {
			return nil, fmt.Errorf("server: %s connector %s: %w", role, cfg.Address(), err)
		}
		srv.TLSConfig = tlsCfg
	}
	srv.Handler = h
	return &connector{role: role, config: cfg, server: srv}, nil
}

// Name identifies the server in lifecycle logs.
func (s *Server) Name() string { return "server" }

// Start binds every connector and begins serving. It returns once all
// listeners are bound; a bind failure releases the listeners already bound.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("server already started")
	}

	var lc net.ListenConfig
	listeners := make([]net.Listener, 0, len(s.connectors))
	for _, c := range s.connectors {
		ln, err := lc.Listen(ctx, "tcp", c.server.Addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return fmt.Errorf("server failed to bind %s connector %s: %w", c.role, c.server.Addr, err)
		}
		if addr, ok := ln.Addr().(*net.TCPAddr); ok {
			c.port = addr.Port
		}
		listeners = append(listeners, ln)
	}

	for i, c := range s.connectors {
		ln := listeners[i]
		c.serving.Add(1)
		go func(c *connector) {
			defer c.serving.Done()
			if err := c.serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("Server error", map[string]interface{}{
					logger.FieldConnector: c.role,
					logger.FieldError:     err.Error(),
				})
			}
		}(c)
		s.log.Info("Started connector", map[string]interface{}{
			logger.FieldConnector: c.role,
			"type":                c.config.Type,
			"addr":                ln.Addr().String(),
		})
	}
	s.started = true
	return nil
}

// Stop waits out the delayed-shutdown period when configured, then shuts
// every connector down within the grace period.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false

	if s.health != nil && s.shutdownWait > 0 {
		s.health.MarkShuttingDown()
		s.log.Info("Delaying shutdown", map[string]interface{}{
			"wait": s.shutdownWait.String(),
		})
		timer := time.NewTimer(s.shutdownWait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	shutdownCtx := ctx
	if grace := s.factory.ShutdownGracePeriod.Std(); grace > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, grace)
		defer cancel()
	}

	var err error
	for _, c := range s.connectors {
		if serr := c.server.Shutdown(shutdownCtx); serr != nil {
			err = multierr.Append(err, fmt.Errorf("shutdown %s connector %s: %w", c.role, c.server.Addr, serr))
			_ = c.server.Close()
		}
		c.serving.Wait()
	}
	if err != nil {
		s.log.Error("Server shutdown error", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.log.Info("HTTP server shut down successfully")
	return nil
}

// ApplicationPort returns the bound port of the first application connector,
// or 0 before Start.
func (s *Server) ApplicationPort() int {
	return s.port(RoleApplication)
}

// AdminPort returns the bound port of the first admin connector. The simple
// server shares one connector, so it returns the application port.
func (s *Server) AdminPort() int {
	if s.factory.Type == TypeSimple {
		return s.port(RoleApplication)
	}
	return s.port(RoleAdmin)
}

func (s *Server) port(role string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.connectors {
		if c.role == role {
			return c.port
		}
	}
	return 0
}

// ApplicationContextPath returns the path application routes are served
// under: the configured path for the simple server, "/" otherwise.
func (s *Server) ApplicationContextPath() string {
	if s.factory.Type == TypeSimple {
		return s.factory.ApplicationContextPath
	}
	return "/"
}

// AdminContextPath returns the path admin routes are served under.
func (s *Server) AdminContextPath() string {
	if s.factory.Type == TypeSimple {
		return s.factory.AdminContextPath
	}
	return "/"
}

// String describes the bound connectors.
func (s *Server) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]string, 0, len(s.connectors))
	for _, c := range s.connectors {
		parts = append(parts, fmt.Sprintf("%s(%s %s:%d)", c.role, c.config.Type, c.config.BindHost, c.port))
	}
	return "server[" + strings.Join(parts, ", ") + "]"
}
