package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/rest"
	"github.com/kbukum/gowizard/validation"
)

// ResourceHarness serves REST resources on an httptest.Server.
type ResourceHarness struct {
	t      testing.TB
	env    *rest.Environment
	server *httptest.Server
}

// HarnessOption configures the REST environment of a ResourceHarness.
type HarnessOption func(env *rest.Environment)

// WithResource registers a resource.
func WithResource(r rest.Resource) HarnessOption {
	return func(env *rest.Environment) { env.Register(r) }
}

// WithExceptionMapper adds an exception mapper ahead of the defaults.
func WithExceptionMapper(m rest.ExceptionMapper) HarnessOption {
	return func(env *rest.Environment) { env.AddExceptionMapper(m) }
}

// WithMiddleware adds gin middleware, for example an auth filter.
func WithMiddleware(mw ...gin.HandlerFunc) HarnessOption {
	return func(env *rest.Environment) { env.Use(mw...) }
}

// NewResourceHarness starts a server with the default exception mappers and
// closes it when the test ends.
func NewResourceHarness(t testing.TB, opts ...HarnessOption) *ResourceHarness {
	t.Helper()
	env := rest.NewEnvironment(logger.NewNop(), validation.NewStructValidator())
	env.RegisterDefaultExceptionMappers()
	for _, opt := range opts {
		opt(env)
	}
	srv := httptest.NewServer(env)
	t.Cleanup(srv.Close)
	return &ResourceHarness{t: t, env: env, server: srv}
}

// Environment returns the REST environment.
func (h *ResourceHarness) Environment() *rest.Environment { return h.env }

// URL returns the address of path.
func (h *ResourceHarness) URL(path string) string { return h.server.URL + joinPath("", path) }

// Client returns the server's client.
func (h *ResourceHarness) Client() *http.Client { return h.server.Client() }

// Request sends a request and returns the response with its body read.
func (h *ResourceHarness) Request(method, path string, body io.Reader, headers ...string) (*http.Response, string) {
	h.t.Helper()
	req, err := http.NewRequest(method, h.URL(path), body)
	if err != nil {
		h.t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := h.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read body: %v", err)
	}
	return resp, string(data)
}
