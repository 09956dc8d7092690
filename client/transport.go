package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/klauspost/compress/gzip"
)

// newTransport returns a pooled transport tuned by cfg.
func newTransport(cfg *Config) (*http.Transport, error) {
	t := cleanhttp.DefaultPooledTransport()
	t.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectionTimeout.Std(),
		KeepAlive: cfg.KeepAlive.Std(),
	}).DialContext
	t.TLSHandshakeTimeout = cfg.ConnectionTimeout.Std()
	t.MaxIdleConns = cfg.MaxConnections
	t.MaxIdleConnsPerHost = cfg.MaxConnectionsPerRoute
	t.MaxConnsPerHost = cfg.MaxConnectionsPerRoute
	t.IdleConnTimeout = cfg.TimeToLive.Std()
	t.DisableCompression = cfg.GzipEnabled != nil && !*cfg.GzipEnabled

	tlsCfg, err := cfg.TLS.Build()
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	if tlsCfg != nil {
		t.TLSClientConfig = tlsCfg
	}
	return t, nil
}

// managedTransport closes idle connections of its transport when the
// application stops.
type managedTransport struct {
	name string
	next http.RoundTripper
	idle interface{ CloseIdleConnections() }

	mu      sync.Mutex
	stopped bool
}

func (m *managedTransport) Name() string { return "client:" + m.name }

func (m *managedTransport) Start(context.Context) error { return nil }

func (m *managedTransport) Stop(context.Context) error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	if m.idle != nil {
		m.idle.CloseIdleConnections()
	}
	return nil
}

func (m *managedTransport) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *managedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.next.RoundTrip(req)
}

func (m *managedTransport) CloseIdleConnections() {
	if m.idle != nil {
		m.idle.CloseIdleConnections()
	}
}

// userAgent sets the User-Agent header of requests that have none.
type userAgent struct {
	next  http.RoundTripper
	value string
}

func (u *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return u.next.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", u.value)
	return u.next.RoundTrip(r)
}

// gzipRequests compresses request bodies that are not encoded yet.
type gzipRequests struct {
	next http.RoundTripper
}

func (g *gzipRequests) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body == nil || req.Body == http.NoBody || req.Header.Get("Content-Encoding") != "" {
		return g.next.RoundTrip(req)
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("client: read request body: %w", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("client: compress request body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("client: compress request body: %w", err)
	}
	compressed := buf.Bytes()

	r := req.Clone(req.Context())
	r.Header.Set("Content-Encoding", "gzip")
	r.Header.Del("Content-Length")
	r.ContentLength = int64(len(compressed))
	r.Body = io.NopCloser(bytes.NewReader(compressed))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(compressed)), nil
	}
	return g.next.RoundTrip(r)
}
