package client

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/lifecycle"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/metrics"
)

// Builder creates HTTP clients whose transports are managed by an
// application's lifecycle and instrumented in its metric registry.
type Builder struct {
	lifecycle *lifecycle.Environment
	registry  *metrics.Registry
	log       *logger.Logger

	cfg      Config
	base     http.RoundTripper
	tracing  bool
	otelOpts []otelhttp.Option
}

// NewBuilder creates a builder for env. A nil env builds unmanaged clients
// instrumented in a private registry.
func NewBuilder(env *bootstrap.Environment) *Builder {
	b := &Builder{log: logger.Get("client")}
	if env != nil {
		b.lifecycle = env.Lifecycle()
		b.registry = env.Metrics()
		b.log = env.Logger().WithComponent("client")
	}
	if b.registry == nil {
		b.registry = metrics.NewRegistry()
	}
	b.cfg.ApplyDefaults()
	return b
}

// Using sets the client configuration. Unset values take their defaults.
func (b *Builder) Using(cfg Config) *Builder {
	cfg.ApplyDefaults()
	b.cfg = cfg
	return b
}

// UsingTransport replaces the pooled transport built from the
// configuration.
func (b *Builder) UsingTransport(rt http.RoundTripper) *Builder {
	b.base = rt
	return b
}

// WithTracing creates a client span per request and propagates the trace
// context, using the global tracer provider unless opts name another.
func (b *Builder) WithTracing(opts ...otelhttp.Option) *Builder {
	b.tracing = true
	b.otelOpts = opts
	return b
}

// Registry returns the registry client metrics are recorded in.
func (b *Builder) Registry() *metrics.Registry { return b.registry }

// Build creates the client called name. Its metrics are prefixed with
// name_client_.
func (b *Builder) Build(name string) (*http.Client, error) {
	if name == "" {
		return nil, fmt.Errorf("client: name is required")
	}
	cfg := b.cfg

	base := b.base
	if base == nil {
		t, err := newTransport(&cfg)
		if err != nil {
			return nil, err
		}
		base = t
	}

	managed := &managedTransport{name: name}
	if idle, ok := base.(interface{ CloseIdleConnections() }); ok {
		managed.idle = idle
	}

	log := b.log.WithFields(map[string]interface{}{"client": name})
	prefix := metrics.Sanitize(name) + "_client_"

	rt := base
	if b.tracing {
		opts := append([]otelhttp.Option{
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return name + " " + r.Method
			}),
		}, b.otelOpts...)
		rt = otelhttp.NewTransport(rt, opts...)
	}
	rt = promhttp.InstrumentRoundTripperInFlight(
		b.registry.Gauge(prefix+"in_flight_requests", "In-flight requests of the "+name+" client.").WithLabelValues(),
		promhttp.InstrumentRoundTripperCounter(
			b.registry.Counter(prefix+"requests_total", "Requests sent by the "+name+" client.", "code", "method"),
			promhttp.InstrumentRoundTripperDuration(
				b.registry.Histogram(prefix+"request_duration_seconds", "Request latencies of the "+name+" client.", "code", "method"),
				rt,
			),
		),
	)
	if cfg.CircuitBreaker.Enabled {
		state := b.registry.Gauge(prefix+"circuit_state", "Circuit state of the "+name+" client: 0 closed, 1 open, 2 half-open.").WithLabelValues()
		breaker := NewCircuitBreaker(cfg.CircuitBreaker, func(from, to State) {
			state.Set(float64(to))
			log.Warn("Circuit state changed", map[string]interface{}{"from": from.String(), "to": to.String()})
		})
		rt = &breakerTransport{next: rt, breaker: breaker}
	}
	if cfg.Retries > 0 {
		rt = &retryTransport{
			next:    rt,
			retries: cfg.Retries,
			backoff: cfg.RetryBackoff.Std(),
			jitter:  0.1,
			log:     log,
			counter: b.registry.Counter(prefix+"retries_total", "Retries of the "+name+" client.").WithLabelValues(),
		}
	}
	if cfg.GzipEnabledForRequests {
		rt = &gzipRequests{next: rt}
	}
	if cfg.UserAgent != "" {
		rt = &userAgent{next: rt, value: cfg.UserAgent}
	}
	managed.next = rt

	if b.lifecycle != nil {
		b.lifecycle.Manage(managed)
	}
	log.Debug("Built HTTP client", map[string]interface{}{
		"timeout": cfg.Timeout.String(),
		"retries": cfg.Retries,
		"breaker": cfg.CircuitBreaker.Enabled,
		"tracing": b.tracing,
	})
	return &http.Client{Transport: managed, Timeout: cfg.Timeout.Std()}, nil
}

