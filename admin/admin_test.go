package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kbukum/gowizard/health"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/metrics"
)

func newTestAdmin(t *testing.T) (*Environment, *logger.Levels) {
	t.Helper()
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "error", Format: "json", Writer: &buf}, "test")
	levels := logger.NewLevels(zerolog.InfoLevel)
	env := NewEnvironment(Options{Name: "hello", Levels: levels, Log: log})
	return env, levels
}

func request(h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	h.ServeHTTP(rr, req)
	return rr
}

func TestPing(t *testing.T) {
	env, _ := newTestAdmin(t)
	rr := request(env, "GET", "/ping", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "pong" {
		t.Errorf("expected pong, got %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Cache-Control") != "must-revalidate,no-cache,no-store" {
		t.Errorf("expected no-cache header, got %q", rr.Header().Get("Cache-Control"))
	}
}

func TestHealthcheck(t *testing.T) {
	env, _ := newTestAdmin(t)
	env.Health().RegisterFunc("db", func(context.Context) health.Result { return health.Healthy("ok") })

	rr := request(env, "GET", "/healthcheck", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON %q: %v", rr.Body.String(), err)
	}
	if body["db"]["healthy"] != true {
		t.Errorf("expected db healthy, got %v", body["db"])
	}

	env.Health().RegisterFunc("queue", func(context.Context) health.Result { return health.Unhealthy(errors.New("down")) })
	if rr := request(env, "GET", "/healthcheck", nil); rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 with a failing check, got %d", rr.Code)
	}

	env.Health().MarkShuttingDown()
	if rr := request(env, "GET", "/healthcheck", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while shutting down, got %d", rr.Code)
	}
}

type inlineExecutor struct{ calls int }

func (e *inlineExecutor) Submit(fn func()) error {
	e.calls++
	fn()
	return nil
}

func TestHealthcheckUsesExecutor(t *testing.T) {
	env, _ := newTestAdmin(t)
	env.Health().RegisterFunc("a", func(context.Context) health.Result { return health.Healthy() })
	env.Health().RegisterFunc("b", func(context.Context) health.Result { return health.Healthy() })
	ex := &inlineExecutor{}
	env.SetHealthCheckExecutor(ex)

	if rr := request(env, "GET", "/healthcheck", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ex.calls != 2 {
		t.Errorf("expected 2 submissions, got %d", ex.calls)
	}
}

func TestMetricsThreadsInfoMenu(t *testing.T) {
	registry := metrics.NewRegistry()
	registry.Counter("hits_total", "hits").WithLabelValues().Inc()
	env := NewEnvironment(Options{Name: "hello", Metrics: registry, Levels: logger.NewLevels(zerolog.InfoLevel)})

	if rr := request(env, "GET", "/metrics", nil); !strings.Contains(rr.Body.String(), "hits_total 1") {
		t.Errorf("expected exposition, got %q", rr.Body.String())
	}
	if rr := request(env, "GET", "/threads", nil); !strings.Contains(rr.Body.String(), "goroutine") {
		t.Errorf("expected goroutine dump, got %q", rr.Body.String())
	}
	rr := request(env, "GET", "/info", nil)
	if !strings.Contains(rr.Body.String(), `"name":"hello"`) || !strings.Contains(rr.Body.String(), `"goVersion"`) {
		t.Errorf("unexpected info %q", rr.Body.String())
	}
	rr = request(env, "GET", "/", nil)
	if !strings.Contains(rr.Body.String(), "Operational Menu for hello") || !strings.Contains(rr.Body.String(), `href="healthcheck"`) {
		t.Errorf("unexpected menu %q", rr.Body.String())
	}
}

func TestProbes(t *testing.T) {
	env, _ := newTestAdmin(t)
	if rr := request(env, "GET", "/livez", nil); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"alive"`) {
		t.Errorf("expected alive, got %d %q", rr.Code, rr.Body.String())
	}
	if rr := request(env, "GET", "/readyz", nil); rr.Code != http.StatusOK {
		t.Errorf("expected ready, got %d %q", rr.Code, rr.Body.String())
	}

	env.Health().RegisterFunc("db", func(context.Context) health.Result { return health.Unhealthyf("down") })
	if rr := request(env, "GET", "/readyz", nil); rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), `"db"`) {
		t.Errorf("expected not ready with db failing, got %d %q", rr.Code, rr.Body.String())
	}
	if rr := request(env, "GET", "/runtime", nil); !strings.Contains(rr.Body.String(), `"goroutines"`) {
		t.Errorf("unexpected runtime %q", rr.Body.String())
	}
}

func TestTaskNotFound(t *testing.T) {
	env, _ := newTestAdmin(t)
	rr := request(env, "POST", "/tasks/nope", nil)
	if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), "No task found with name nope.") {
		t.Errorf("unexpected response %d %q", rr.Code, rr.Body.String())
	}
}

func TestGCTask(t *testing.T) {
	env, _ := newTestAdmin(t)
	rr := request(env, "POST", "/tasks/gc?runs=2", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := strings.Count(rr.Body.String(), "Running GC..."); got != 2 {
		t.Errorf("expected 2 runs, got %d in %q", got, rr.Body.String())
	}
	if rr := request(env, "POST", "/tasks/gc?runs=zero", nil); rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for invalid runs, got %d", rr.Code)
	}
}

func TestLogLevelTask(t *testing.T) {
	env, levels := newTestAdmin(t)

	form := url.Values{"logger": {"db", "http"}, "level": {"debug"}}
	rr := request(env, "POST", "/tasks/log-level", strings.NewReader(form.Encode()))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Configured logging level for db to DEBUG") {
		t.Errorf("unexpected output %q", rr.Body.String())
	}
	if levels.Effective("db") != zerolog.DebugLevel || levels.Effective("http") != zerolog.DebugLevel {
		t.Error("expected db and http at debug")
	}

	request(env, "POST", "/tasks/log-level?logger=db", nil)
	if _, ok := levels.Lookup("db"); ok {
		t.Error("expected db override removed")
	}

	request(env, "POST", "/tasks/log-level?level=warn", nil)
	if levels.Root() != zerolog.WarnLevel {
		t.Errorf("expected root warn, got %v", levels.Root())
	}
	if rr := request(env, "POST", "/tasks/log-level?level=loud", nil); rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for bad level, got %d", rr.Code)
	}
	if rr := request(env, "POST", "/tasks/log-level", nil); rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 without a level for root, got %d", rr.Code)
	}
}

func TestLogLevelTaskDurationRestores(t *testing.T) {
	levels := logger.NewLevels(zerolog.InfoLevel)
	levels.Set("db", zerolog.ErrorLevel)
	task := LogLevelTask(levels)

	var out bytes.Buffer
	params := url.Values{"logger": {"db"}, "level": {"trace"}, "duration": {"20ms"}}
	if err := task.Execute(context.Background(), params, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if levels.Effective("db") != zerolog.TraceLevel {
		t.Fatal("expected trace level")
	}
	if !strings.Contains(out.String(), "for 20ms") {
		t.Errorf("expected duration in output, got %q", out.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for levels.Effective("db") != zerolog.ErrorLevel {
		if time.Now().After(deadline) {
			t.Fatal("expected level restored to error")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCustomTaskAndHandler(t *testing.T) {
	env, _ := newTestAdmin(t)
	env.AddTask(NewTask("echo", func(_ context.Context, params url.Values, w io.Writer) error {
		_, err := io.WriteString(w, params.Get("msg"))
		return err
	}))
	env.AddHandler("version", "/custom", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "custom")
	}))

	if rr := request(env, "POST", "/tasks/echo?msg=hi", nil); rr.Body.String() != "hi" {
		t.Errorf("expected hi, got %q", rr.Body.String())
	}
	if rr := request(env, "GET", "/custom", nil); rr.Body.String() != "custom" {
		t.Errorf("expected custom handler, got %q", rr.Body.String())
	}
	if got := strings.Join(env.Tasks(), ","); got != "echo,gc,log-level" {
		t.Errorf("unexpected tasks %s", got)
	}
	if banner := env.FormatTasks("/admin"); !strings.Contains(banner, "    POST    /admin/tasks/echo") {
		t.Errorf("unexpected task banner %q", banner)
	}
}
