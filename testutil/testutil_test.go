package testutil_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/config"
	"github.com/kbukum/gowizard/health"
	"github.com/kbukum/gowizard/lifecycle"
	"github.com/kbukum/gowizard/rest"
	"github.com/kbukum/gowizard/testutil"
)

type helloConfig struct {
	config.Configuration `yaml:",inline" mapstructure:",squash"`
	Greeting             string `yaml:"greeting" mapstructure:"greeting"`
}

type helloApp struct{}

func (helloApp) Name() string                                  { return "hello" }
func (helloApp) NewConfiguration() *helloConfig                { return &helloConfig{} }
func (helloApp) Initialize(*bootstrap.Bootstrap[*helloConfig]) {}

func (helloApp) Run(_ context.Context, cfg *helloConfig, env *bootstrap.Environment) error {
	env.Rest().Register(greetingResource(cfg.Greeting))
	env.Health().RegisterFunc("greeting", func(context.Context) health.Result { return health.Healthy() })
	return nil
}

func greetingResource(greeting string) rest.Resource {
	return rest.ResourceFunc(func(r gin.IRouter) {
		r.GET("/greeting", func(c *gin.Context) { c.String(http.StatusOK, greeting) })
		r.POST("/echo", func(c *gin.Context) {
			var in struct {
				Name string `json:"name" binding:"required"`
			}
			if err := c.ShouldBindJSON(&in); err != nil {
				rest.Abort(c, err)
				return
			}
			c.JSON(http.StatusOK, in)
		})
	})
}

func TestAppSupportFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.yml")
	body := "greeting: hi\nlogging:\n  level: \"off\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	app := testutil.NewAppSupport[*helloConfig](t, helloApp{}, path, config.Overrides{"dw.greeting": "hello"})

	if app.LocalPort() == 0 || app.AdminPort() == 0 {
		t.Fatalf("expected bound ports, got %d and %d", app.LocalPort(), app.AdminPort())
	}
	if app.Configuration().Greeting != "hello" {
		t.Errorf("expected overridden greeting, got %q", app.Configuration().Greeting)
	}
	if status, got := app.Get("/greeting"); status != http.StatusOK || got != "hello" {
		t.Errorf("expected 200 hello, got %d %q", status, got)
	}
	if status, got := app.GetAdmin("/ping"); status != http.StatusOK || strings.TrimSpace(got) != "pong" {
		t.Errorf("expected 200 pong, got %d %q", status, got)
	}
	if app.App().State() != bootstrap.StateStarted {
		t.Errorf("expected STARTED, got %s", app.App().State())
	}
}

func TestAppSupportSimpleServer(t *testing.T) {
	cfg := &helloConfig{Greeting: "simple"}
	cfg.ApplyDefaults()
	cfg.Logging.Level = "off"
	cfg.Server.Type = "simple"

	app := testutil.NewAppSupportWithConfig[*helloConfig](t, helloApp{}, cfg)
	if status, got := app.Get("/greeting"); status != http.StatusOK || got != "simple" {
		t.Errorf("expected 200 simple, got %d %q", status, got)
	}
	if !strings.Contains(app.URL("/greeting"), "/application/greeting") {
		t.Errorf("expected application context path in %s", app.URL("/greeting"))
	}
	if status, _ := app.GetAdmin("/healthcheck"); status != http.StatusOK {
		t.Errorf("expected healthcheck 200, got %d", status)
	}
}

func TestResourceHarness(t *testing.T) {
	h := testutil.NewResourceHarness(t, testutil.WithResource(greetingResource("hey")))

	resp, body := h.Request(http.MethodGet, "/greeting", nil)
	if resp.StatusCode != http.StatusOK || body != "hey" {
		t.Errorf("expected 200 hey, got %d %q", resp.StatusCode, body)
	}

	resp, body = h.Request(http.MethodPost, "/echo", strings.NewReader(`{"name":`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d %s", resp.StatusCode, body)
	}

	resp, _ = h.Request(http.MethodGet, "/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestResourceHarnessMiddleware(t *testing.T) {
	h := testutil.NewResourceHarness(t,
		testutil.WithResource(greetingResource("hey")),
		testutil.WithMiddleware(func(c *gin.Context) {
			if c.GetHeader("X-Token") != "secret" {
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			c.Next()
		}),
	)
	if resp, _ := h.Request(http.MethodGet, "/greeting", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
	if resp, _ := h.Request(http.MethodGet, "/greeting", nil, "X-Token", "secret"); resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRecordingManagedOrder(t *testing.T) {
	rec := &testutil.Recorder{}
	env := lifecycle.NewEnvironment()
	for _, name := range []string{"a", "b", "c"} {
		env.Manage(testutil.NewRecordingManaged(name, rec))
	}

	ctx := context.Background()
	if err := env.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := env.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := "start a,start b,start c,stop c,stop b,stop a"
	if got := strings.Join(rec.Events(), ","); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestRecordingManagedErrors(t *testing.T) {
	rec := &testutil.Recorder{}
	m := testutil.NewRecordingManaged("db", rec)
	m.StartErr = errors.New("refused")

	if _, err := testutil.Setup(m); err == nil {
		t.Fatal("expected start error")
	}
	if m.Running() {
		t.Error("expected not running after failed start")
	}
	if len(rec.Events()) != 0 {
		t.Errorf("expected no events, got %v", rec.Events())
	}
}

func TestSetupCleanup(t *testing.T) {
	rec := &testutil.Recorder{}
	m := testutil.NewRecordingManaged("cache", rec)

	cleanup, err := testutil.Setup(m)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if !m.Running() {
		t.Error("expected running after Setup")
	}
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if got := strings.Join(rec.Events(), ","); got != "start cache,stop cache" {
		t.Errorf("unexpected events %s", got)
	}
}

func TestTHelperStopsOnCleanup(t *testing.T) {
	rec := &testutil.Recorder{}
	t.Run("inner", func(t *testing.T) {
		testutil.T(t).Setup(testutil.NewRecordingManaged("queue", rec))
		if got := strings.Join(rec.Events(), ","); got != "start queue" {
			t.Errorf("expected start only, got %s", got)
		}
	})
	if got := strings.Join(rec.Events(), ","); got != "start queue,stop queue" {
		t.Errorf("expected stop after subtest, got %s", got)
	}
}
