package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kbukum/gowizard/lifecycle"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/util"
)

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"db.pool-size":  "db_pool_size",
		"http:requests": "http:requests",
		"9lives":        "_9lives",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCounterIsCreatedOnce(t *testing.T) {
	r := NewRegistry()
	a := r.Counter("jobs.done", "Jobs done.", "queue")
	b := r.Counter("jobs.done", "", "queue")
	if a != b {
		t.Fatal("expected the same counter for the same name")
	}
	a.WithLabelValues("mail").Add(2)
	if got := promtest.ToFloat64(b.WithLabelValues("mail")); got != 2 {
		t.Errorf("expected 2, got %v", got)
	}
}

func TestGaugeAndTimer(t *testing.T) {
	r := NewRegistry()
	r.Gauge("queue.depth", "").WithLabelValues().Set(7)
	timer := r.Timer("db.query", "Query time.")
	timer.Time(func() {})
	stop := timer.Start()
	stop()

	names, err := r.Names()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, ",") != "db_query_seconds,queue_depth" {
		t.Errorf("unexpected names %v", names)
	}
	if n := promtest.CollectAndCount(r.Histogram("db_query_seconds", "")); n != 1 {
		t.Errorf("expected one histogram series, got %d", n)
	}
}

func TestRegisterRuntimeIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.RegisterRuntime()
	r.RegisterRuntime()
	names, err := r.Names()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, n := range names {
		if n == "go_goroutines" {
			found = true
		}
	}
	if !found {
		t.Error("expected go_goroutines to be registered")
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.Counter("hits", "Hits.").WithLabelValues().Inc()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "hits 1") {
		t.Errorf("expected exposition to contain 'hits 1', got:\n%s", body)
	}
}

func newBufferLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(&logger.Config{Level: "info", Format: "json", Writer: buf}, "metrics-test")
}

func TestLogReporterFilters(t *testing.T) {
	r := NewRegistry()
	r.Counter("orders.created", "").WithLabelValues().Add(3)
	r.Counter("orders.failed", "").WithLabelValues().Inc()
	r.Gauge("cache.size", "", "region").WithLabelValues("eu").Set(5)

	var buf bytes.Buffer
	rep := NewLogReporter(r, newBufferLogger(&buf), []string{"orders_*"}, []string{"*_failed"})
	if err := rep.Report(context.Background()); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one reported family, got %d:\n%s", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry[logger.FieldName] != "orders_created" {
		t.Errorf("unexpected family %v", entry[logger.FieldName])
	}
	values := entry["values"].(map[string]interface{})
	if values["value"] != float64(3) {
		t.Errorf("expected value 3, got %v", values)
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{Reporters: []ReporterConfig{{}}}
	c.ApplyDefaults()
	if c.Frequency.Std() != time.Minute {
		t.Errorf("expected 1m frequency, got %v", c.Frequency)
	}
	if c.Reporters[0].Type != "log" || c.Reporters[0].Logger != "metrics" {
		t.Errorf("unexpected reporter defaults %+v", c.Reporters[0])
	}
}

func TestScheduleReporters(t *testing.T) {
	r := NewRegistry()
	r.Counter("ticks", "").WithLabelValues().Inc()
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	c := Config{
		Frequency:    util.Duration(time.Hour),
		ReportOnStop: true,
		Reporters:    []ReporterConfig{{Type: "log", Logger: "metrics"}},
	}
	env := lifecycle.NewEnvironment()
	reporters, err := c.ScheduleReporters(env, r, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reporters) != 1 || len(env.Managed()) != 2 {
		t.Fatalf("expected 1 reporter and 2 managed objects, got %d and %d", len(reporters), len(env.Managed()))
	}

	ctx := context.Background()
	if err := env.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := env.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"ticks"`) {
		t.Errorf("expected report on stop, got %q", buf.String())
	}
}

func TestScheduleReportersInvalidCron(t *testing.T) {
	c := Config{Reporters: []ReporterConfig{{Type: "log", Cron: "every tuesday"}}}
	c.ApplyDefaults()
	if _, err := c.ScheduleReporters(lifecycle.NewEnvironment(), NewRegistry(), logger.NewNop()); err == nil {
		t.Error("expected invalid cron error")
	}
}
