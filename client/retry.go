package client

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kbukum/gowizard/logger"
)

const maxBackoff = 10 * time.Second

// retryTransport resends failed requests that are safe to repeat: those
// with an idempotent method or an Idempotency-Key header, and a body that
// can be replayed.
type retryTransport struct {
	next    http.RoundTripper
	retries int
	backoff time.Duration
	jitter  float64
	log     *logger.Logger
	counter prometheus.Counter
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.retries <= 0 || !replayable(req) {
		return t.next.RoundTrip(req)
	}
	ctx := req.Context()
	for attempt := 1; ; attempt++ {
		r := req
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r = req.Clone(ctx)
			r.Body = body
		}

		resp, err := t.next.RoundTrip(r)
		if attempt > t.retries || !shouldRetry(ctx, resp, err) {
			return resp, err
		}

		wait := t.delay(attempt)
		fields := map[string]interface{}{
			"method":  req.Method,
			"url":     req.URL.Redacted(),
			"attempt": attempt,
			"backoff": wait.String(),
		}
		if err != nil {
			fields["error"] = err.Error()
		} else {
			fields["status"] = resp.StatusCode
			drain(resp)
		}
		t.log.Debug("Retrying request", fields)
		if t.counter != nil {
			t.counter.Inc()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// delay is the exponential backoff with jitter before retry attempt.
func (t *retryTransport) delay(attempt int) time.Duration {
	d := float64(t.backoff) * math.Pow(2, float64(attempt-1))
	if t.jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * t.jitter
	}
	if d > float64(maxBackoff) {
		d = float64(maxBackoff)
	}
	if d < 0 {
		d = float64(t.backoff)
	}
	return time.Duration(d)
}

func replayable(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace, http.MethodPut, http.MethodDelete:
	default:
		if req.Header.Get("Idempotency-Key") == "" {
			return false
		}
	}
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func shouldRetry(ctx context.Context, resp *http.Response, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		return !errors.Is(err, ErrCircuitOpen)
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
