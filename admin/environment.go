package admin

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"runtime/pprof"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/gowizard/errors"
	"github.com/kbukum/gowizard/health"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/metrics"
	"github.com/kbukum/gowizard/server/endpoint"
	"github.com/kbukum/gowizard/servlets"
	"github.com/kbukum/gowizard/version"
)

// Options configures an admin Environment.
type Options struct {
	// Name is the application name shown on the menu page.
	Name    string
	Health  *health.Registry
	Metrics *metrics.Registry
	// Levels is changed by the log-level task.
	Levels *logger.Levels
	Log    *logger.Logger
}

// Environment holds the admin tasks, handlers and endpoints.
type Environment struct {
	name     string
	engine   *gin.Engine
	health   *health.Registry
	metrics  *metrics.Registry
	log      *logger.Logger
	servlets *servlets.Environment
	started  time.Time

	mu        sync.Mutex
	tasks     map[string]Task
	executor  health.Executor
	installed bool
	handler   http.Handler
}

// NewEnvironment creates an admin environment with the gc and log-level
// tasks registered.
func NewEnvironment(opts Options) *Environment {
	if opts.Log == nil {
		opts.Log = logger.Get("admin")
	}
	if opts.Health == nil {
		opts.Health = health.NewRegistry(opts.Log)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}
	if opts.Levels == nil {
		opts.Levels = logger.GetGlobalLogger().Levels()
	}
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	e := &Environment{
		name:     opts.Name,
		engine:   engine,
		health:   opts.Health,
		metrics:  opts.Metrics,
		log:      opts.Log,
		servlets: servlets.NewEnvironment(opts.Log),
		started:  time.Now(),
		tasks:    map[string]Task{},
	}
	e.AddTask(GCTask())
	e.AddTask(LogLevelTask(opts.Levels))
	return e
}

// Engine returns the admin gin engine for extra admin routes.
func (e *Environment) Engine() *gin.Engine { return e.engine }

// Servlets returns the admin handlers and filters.
func (e *Environment) Servlets() *servlets.Environment { return e.servlets }

// AddHandler mounts an admin handler. It shares the admin router with the
// built-in endpoints.
func (e *Environment) AddHandler(name, pattern string, h http.Handler) {
	e.servlets.AddHandler(name, pattern, h)
}

// AddTask registers t. A task registered under an existing name replaces it.
func (e *Environment) AddTask(t Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[t.Name()]; ok {
		e.log.Warn("Overwriting task", map[string]interface{}{logger.FieldName: t.Name()})
	}
	e.tasks[t.Name()] = t
}

// Tasks returns the task names, sorted.
func (e *Environment) Tasks() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.tasks))
	for n := range e.tasks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SetHealthCheckExecutor runs health checks concurrently on executor.
func (e *Environment) SetHealthCheckExecutor(executor health.Executor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executor = executor
}

// Health returns the health check registry.
func (e *Environment) Health() *health.Registry { return e.health }

// FormatTasks renders the task list for the startup log.
func (e *Environment) FormatTasks(contextPath string) string {
	contextPath = strings.TrimSuffix(contextPath, "/")
	var b strings.Builder
	b.WriteString("tasks = \n\n")
	for _, name := range e.Tasks() {
		fmt.Fprintf(&b, "    %-7s %s/tasks/%s\n", "POST", contextPath, name)
	}
	return b.String()
}

// Handler installs the endpoints on first use and returns the admin handler.
func (e *Environment) Handler() http.Handler {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.installed {
		e.installed = true
		e.install()
		e.handler = e.servlets.Handler(e.engine)
	}
	return e.handler
}

// ServeHTTP serves the admin endpoints.
func (e *Environment) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.Handler().ServeHTTP(w, r)
}

func (e *Environment) install() {
	e.engine.Use(noCache)
	e.engine.GET("/", e.menu)
	e.engine.GET("/ping", ping)
	e.engine.GET("/healthcheck", e.healthcheck)
	e.engine.GET("/metrics", gin.WrapH(e.metrics.Handler()))
	e.engine.GET("/threads", threads)
	e.engine.GET("/info", e.info)
	e.engine.GET("/livez", endpoint.Liveness(e.name))
	e.engine.GET("/readyz", endpoint.Readiness(e.name, e.health))
	e.engine.GET("/runtime", endpoint.Runtime())
	e.engine.POST("/tasks/:name", e.runTask)
	e.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apperrors.FromStatus(http.StatusNotFound).ToResponse())
	})
}

func noCache(c *gin.Context) {
	c.Header("Cache-Control", "must-revalidate,no-cache,no-store")
	c.Next()
}

func ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

func (e *Environment) healthcheck(c *gin.Context) {
	e.mu.Lock()
	executor := e.executor
	e.mu.Unlock()

	var results map[string]health.Result
	if executor != nil {
		results = e.health.RunAllConcurrently(c.Request.Context(), executor)
	} else {
		results = e.health.RunAll(c.Request.Context())
	}

	status := http.StatusOK
	switch {
	case e.health.ShuttingDown():
		status = http.StatusServiceUnavailable
	case !health.AllHealthy(results):
		status = http.StatusInternalServerError
	}
	c.JSON(status, results)
}

func threads(c *gin.Context) {
	var buf bytes.Buffer
	if err := pprof.Lookup("goroutine").WriteTo(&buf, 2); err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

func (e *Environment) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    e.name,
		"version": version.Get(),
		"uptime":  time.Since(e.started).Round(time.Second).String(),
	})
}

func (e *Environment) runTask(c *gin.Context) {
	name := c.Param("name")
	e.mu.Lock()
	task, ok := e.tasks[name]
	e.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, apperrors.TaskNotFound(name).ToResponse())
		return
	}
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.InvalidInput("body", err.Error()).ToResponse())
		return
	}

	var out bytes.Buffer
	start := time.Now()
	err := task.Execute(c.Request.Context(), c.Request.Form, &out)
	fields := map[string]interface{}{
		logger.FieldName:     name,
		logger.FieldDuration: time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields[logger.FieldError] = err.Error()
		e.log.Error("Task failed", fields)
		out.WriteString(err.Error())
		out.WriteString("\n")
		c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", out.Bytes())
		return
	}
	e.log.Info("Task executed", fields)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", out.Bytes())
}

var menuTemplate = template.Must(template.New("menu").Parse(`<!DOCTYPE html>
<html>
<head><title>Operational Menu{{if .Name}} for {{.Name}}{{end}}</title></head>
<body>
<h1>Operational Menu{{if .Name}} for {{.Name}}{{end}}</h1>
<ul>
<li><a href="metrics">Metrics</a></li>
<li><a href="ping">Ping</a></li>
<li><a href="threads">Threads</a></li>
<li><a href="healthcheck">Healthcheck</a></li>
<li><a href="info">Info</a></li>
<li><a href="livez">Liveness</a></li>
<li><a href="readyz">Readiness</a></li>
<li><a href="runtime">Runtime</a></li>
</ul>
</body>
</html>
`))

func (e *Environment) menu(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	_ = menuTemplate.Execute(c.Writer, struct{ Name string }{e.name})
}
