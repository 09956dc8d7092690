package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kbukum/gowizard/metrics"
)

// Instrument returns middleware recording request counts by method and
// status, request durations and in-flight requests on registry. The metric
// names start with prefix ("http" when empty).
func Instrument(registry *metrics.Registry, prefix string) Middleware {
	return func(next http.Handler) http.Handler {
		if registry == nil {
			return next
		}
		if prefix == "" {
			prefix = "http"
		}
		requests := registry.Counter(prefix+"_requests_total", "HTTP requests by method and status code.", "method", "code")
		durations := registry.Histogram(prefix+"_request_duration_seconds", "HTTP request latencies.", "method")
		active := registry.Gauge(prefix+"_active_requests", "HTTP requests in flight.").WithLabelValues()

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			active.Inc()
			defer active.Dec()

			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			durations.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
			requests.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
		})
	}
}
