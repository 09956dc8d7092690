// Package tracing exports OpenTelemetry traces, and optionally metrics, over
// OTLP/HTTP and creates one server span per REST request.
//
//	tracing:
//	  enabled: true
//	  endpoint: otel-collector:4318
//	  insecure: true
//	  sampleRate: 0.25
//
//	b.AddConfiguredBundle(tracing.NewBundle(func(c *HelloConfig) *tracing.Config {
//	    return &c.Tracing
//	}))
//
// Inside a handler:
//
//	ctx, span := tracing.StartSpan(c.Request.Context(), "people.lookup")
//	defer span.End()
package tracing
