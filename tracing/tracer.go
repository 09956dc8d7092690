package tracing

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/kbukum/gowizard/logger"
)

const instrumentationName = "github.com/kbukum/gowizard/tracing"

// Attribute keys set on request spans.
const (
	AttrServiceName = "service.name"
	AttrServiceVer  = "service.version"
	AttrEnvironment = "deployment.environment"
	AttrMethod      = "http.request.method"
	AttrRoute       = "http.route"
	AttrPath        = "url.path"
	AttrStatusCode  = "http.response.status_code"
	AttrUserAgent   = "user_agent.original"
	AttrRequestID   = "request.id"
)

// Provider owns the tracer and meter providers of an application. It is a
// managed object: Start installs it as the global provider, Stop flushes and
// shuts it down.
type Provider struct {
	cfg        Config
	log        *logger.Logger
	tracer     *sdktrace.TracerProvider
	meter      *sdkmetric.MeterProvider
	metrics    *Metrics
	propagator propagation.TextMapPropagator
	stopOnce   sync.Once
	stopErr    error
}

// Option configures a Provider.
type Option func(*providerOptions)

type providerOptions struct {
	exporter sdktrace.SpanExporter
	reader   sdkmetric.Reader
}

// WithSpanExporter replaces the OTLP exporter. Spans are exported
// synchronously.
func WithSpanExporter(e sdktrace.SpanExporter) Option {
	return func(o *providerOptions) { o.exporter = e }
}

// WithMetricReader replaces the OTLP metric reader and enables metrics.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *providerOptions) { o.reader = r }
}

// NewProvider builds the providers described by cfg. Exporters connect
// lazily so no collector is needed until spans are flushed.
func NewProvider(ctx context.Context, cfg Config, log *logger.Logger, opts ...Option) (*Provider, error) {
	cfg.ApplyDefaults()
	var o providerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.Get("tracing")
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.Ratio())),
	}
	if o.exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithSyncer(o.exporter))
	} else {
		exporter, err := newTraceExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}

	p := &Provider{
		cfg:    cfg,
		log:    log,
		tracer: sdktrace.NewTracerProvider(tpOpts...),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}

	reader := o.reader
	if reader == nil && cfg.Metrics.Enabled {
		if reader, err = newMetricReader(ctx, cfg); err != nil {
			return nil, err
		}
	}
	if reader != nil {
		p.meter = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
		if p.metrics, err = NewMetrics(p.meter.Meter(instrumentationName)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func newTraceExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	return exporter, nil
}

func newMetricReader(ctx context.Context, cfg Config) (sdkmetric.Reader, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Metrics.Interval.Std())), nil
}

func newSampler(ratio float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case ratio >= 1.0:
		root = sdktrace.AlwaysSample()
	case ratio <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(root)
}

func newResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrServiceName, cfg.ServiceName),
		attribute.String(AttrEnvironment, cfg.Environment),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String(AttrServiceVer, cfg.ServiceVersion))
	}
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

func (p *Provider) Name() string { return "tracing" }

// Start installs the providers and propagator globally.
func (p *Provider) Start(context.Context) error {
	otel.SetTracerProvider(p.tracer)
	otel.SetTextMapPropagator(p.propagator)
	if p.meter != nil {
		otel.SetMeterProvider(p.meter)
	}
	p.log.Info("Tracer initialized", map[string]interface{}{
		"service":     p.cfg.ServiceName,
		"endpoint":    p.cfg.Endpoint,
		"sample_rate": p.cfg.Ratio(),
		"metrics":     p.meter != nil,
	})
	return nil
}

// Stop flushes pending spans and metrics and shuts the providers down.
func (p *Provider) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.stopErr = multierr.Combine(p.tracer.ForceFlush(ctx), p.tracer.Shutdown(ctx))
		if p.meter != nil {
			p.stopErr = multierr.Append(p.stopErr, p.meter.Shutdown(ctx))
		}
	})
	return p.stopErr
}

// Tracer returns a named tracer of this provider.
func (p *Provider) Tracer(name string) trace.Tracer { return p.tracer.Tracer(name) }

// Meter returns a named meter, or nil when metrics are disabled.
func (p *Provider) Meter(name string) metric.Meter {
	if p.meter == nil {
		return nil
	}
	return p.meter.Meter(name)
}

// Metrics returns the request instruments, or nil when metrics are disabled.
func (p *Provider) Metrics() *Metrics { return p.metrics }

// Propagator returns the propagator used for incoming requests.
func (p *Provider) Propagator() propagation.TextMapPropagator { return p.propagator }

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a span with the global provider.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer(instrumentationName).Start(ctx, name, opts...)
}

// SpanFromContext returns the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// SetSpanAttribute sets an attribute on the current span in context.
func SetSpanAttribute(ctx context.Context, key string, value any) {
	span := SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	case []string:
		span.SetAttributes(attribute.StringSlice(key, v))
	default:
		span.SetAttributes(attribute.String(key, fmt.Sprint(v)))
	}
}

// SetSpanError records err on the current span and marks it failed.
func SetSpanError(ctx context.Context, err error) {
	span := SpanFromContext(ctx)
	if err == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
