package tracing

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/gowizard/server/middleware"
)

// Middleware starts a server span per request, continuing any trace
// propagated in the request headers. Install it with rest.Environment.Wrap so
// the span carries the mapped response status.
func Middleware(p *Provider) gin.HandlerFunc {
	tracer := p.Tracer(instrumentationName)
	propagator := p.Propagator()
	metrics := p.Metrics()

	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		attrs := []attribute.KeyValue{
			attribute.String(AttrMethod, method),
			attribute.String(AttrRoute, route),
			attribute.String(AttrPath, c.Request.URL.Path),
			attribute.String(AttrUserAgent, c.Request.UserAgent()),
		}
		if id := middleware.GetRequestID(c); id != "" {
			attrs = append(attrs, attribute.String(AttrRequestID, id))
		}
		ctx, span := tracer.Start(ctx, method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		if metrics != nil {
			metrics.RecordRequestStart(ctx)
		}

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int(AttrStatusCode, status))
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last().Err)
		}
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		if metrics != nil {
			metrics.RecordRequestEnd(ctx, method, route, status, time.Since(start))
		}
	}
}
