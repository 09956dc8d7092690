package testutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/config"
	"github.com/kbukum/gowizard/embedded"
)

// AppSupport runs a full application for the duration of a test.
type AppSupport[C bootstrap.Config] struct {
	t      testing.TB
	server *embedded.Server[C]
	client *http.Client
}

// EphemeralPorts binds every connector of cfg to a free port.
func EphemeralPorts(cfg *config.Configuration) {
	srv := &cfg.Server
	for i := range srv.ApplicationConnectors {
		srv.ApplicationConnectors[i].Port = 0
	}
	for i := range srv.AdminConnectors {
		srv.AdminConnectors[i].Port = 0
	}
	srv.Connector.Port = 0
}

// NewAppSupport starts app with the configuration at configPath (defaults
// alone when empty) on ephemeral ports and stops it when the test ends.
// Later overrides win.
func NewAppSupport[C bootstrap.Config](t testing.TB, app bootstrap.Application[C], configPath string, overrides ...config.Overrides) *AppSupport[C] {
	t.Helper()
	merged := config.Overrides{}
	for _, o := range overrides {
		merged = merged.Merge(o)
	}
	return start(t, embedded.New(app,
		embedded.WithConfigFile[C](configPath),
		embedded.WithOverrides[C](merged),
		embedded.WithConfigurationMutator(func(cfg C) { EphemeralPorts(cfg.GetConfiguration()) }),
		embedded.WithAppOptions[C](bootstrap.WithSummaryWriter(nil)),
	))
}

// NewAppSupportWithConfig starts app with cfg, after binding its connectors
// to ephemeral ports.
func NewAppSupportWithConfig[C bootstrap.Config](t testing.TB, app bootstrap.Application[C], cfg C) *AppSupport[C] {
	t.Helper()
	return start(t, embedded.New(app,
		embedded.WithConfiguration(cfg),
		embedded.WithConfigurationMutator(func(cfg C) { EphemeralPorts(cfg.GetConfiguration()) }),
		embedded.WithAppOptions[C](bootstrap.WithSummaryWriter(nil)),
	))
}

func start[C bootstrap.Config](t testing.TB, srv *embedded.Server[C]) *AppSupport[C] {
	t.Helper()
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("failed to start application: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			t.Errorf("failed to stop application: %v", err)
		}
	})
	return &AppSupport[C]{t: t, server: srv, client: &http.Client{Timeout: 30 * time.Second}}
}

// LocalPort returns the bound application port.
func (a *AppSupport[C]) LocalPort() int { return a.Environment().Server().ApplicationPort() }

// AdminPort returns the bound admin port.
func (a *AppSupport[C]) AdminPort() int { return a.Environment().Server().AdminPort() }

// Environment returns the running application's environment.
func (a *AppSupport[C]) Environment() *bootstrap.Environment { return a.server.Environment() }

// Configuration returns the configuration the application runs with.
func (a *AppSupport[C]) Configuration() C { return a.server.Configuration() }

// App returns the running application.
func (a *AppSupport[C]) App() *bootstrap.App[C] { return a.server.App() }

// Client returns an HTTP client for requests to the application.
func (a *AppSupport[C]) Client() *http.Client { return a.client }

// URL returns the address of path on the application connector, including
// the application context path.
func (a *AppSupport[C]) URL(path string) string {
	srv := a.Environment().Server()
	return fmt.Sprintf("http://127.0.0.1:%d%s", srv.ApplicationPort(), joinPath(srv.ApplicationContextPath(), path))
}

// AdminURL returns the address of path on the admin connector.
func (a *AppSupport[C]) AdminURL(path string) string {
	srv := a.Environment().Server()
	return fmt.Sprintf("http://127.0.0.1:%d%s", srv.AdminPort(), joinPath(srv.AdminContextPath(), path))
}

// Get performs a GET on the application and returns the status and body.
func (a *AppSupport[C]) Get(path string) (int, string) {
	a.t.Helper()
	return get(a.t, a.client, a.URL(path))
}

// GetAdmin performs a GET on the admin connector.
func (a *AppSupport[C]) GetAdmin(path string) (int, string) {
	a.t.Helper()
	return get(a.t, a.client, a.AdminURL(path))
}

func get(t testing.TB, client *http.Client, url string) (int, string) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return resp.StatusCode, string(body)
}

func joinPath(contextPath, path string) string {
	contextPath = strings.TrimSuffix(contextPath, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return contextPath + path
}
