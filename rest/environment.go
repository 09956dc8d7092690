package rest

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/kbukum/gowizard/errors"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/validation"
)

// Environment collects resources, middleware and exception mappers and
// serves them from one gin engine.
type Environment struct {
	engine    *gin.Engine
	log       *logger.Logger
	validator *validation.StructValidator

	mu         sync.Mutex
	urlPattern string
	resources  []Resource
	middleware []gin.HandlerFunc
	outer      []gin.HandlerFunc
	mappers    []ExceptionMapper
	defaults   []ExceptionMapper
	installed  bool
}

// NewEnvironment creates an environment with an empty gin engine. A nil
// validator uses validation.Default.
func NewEnvironment(log *logger.Logger, v *validation.StructValidator) *Environment {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.Get("rest")
	}
	if v == nil {
		v = validation.Default()
	}
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.ContextWithFallback = true
	return &Environment{
		engine:     engine,
		log:        log,
		validator:  v,
		urlPattern: "/",
	}
}

// Engine returns the gin engine. Routes added to it directly bypass the
// environment's URL pattern.
func (e *Environment) Engine() *gin.Engine { return e.engine }

// Validator returns the validator used by Bind.
func (e *Environment) Validator() *validation.StructValidator { return e.validator }

// SetURLPattern sets the path prefix resources are registered under.
func (e *Environment) SetURLPattern(pattern string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pattern = strings.TrimSuffix(strings.TrimSuffix(pattern, "*"), "/")
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}
	e.urlPattern = pattern
}

// URLPattern returns the path prefix resources are registered under.
func (e *Environment) URLPattern() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.urlPattern
}

// Register adds a resource.
func (e *Environment) Register(r Resource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resources = append(e.resources, r)
}

// Use adds gin middleware that runs before every resource handler.
func (e *Environment) Use(mw ...gin.HandlerFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.middleware = append(e.middleware, mw...)
}

// Wrap adds gin middleware that runs outside recovery and exception mapping,
// so it observes the final response of every request.
func (e *Environment) Wrap(mw ...gin.HandlerFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outer = append(e.outer, mw...)
}

// AddExceptionMapper adds a mapper. Mappers run in registration order,
// before the defaults.
func (e *Environment) AddExceptionMapper(m ExceptionMapper) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mappers = append(e.mappers, m)
}

// RegisterDefaultExceptionMappers adds the AppError, validation and JSON
// mappers after any application mappers.
func (e *Environment) RegisterDefaultExceptionMappers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaults = []ExceptionMapper{AppErrorMapper(e.log), ValidationMapper(), JSONMapper()}
}

// Install registers the middleware and resources on the engine. It runs
// once; later calls are no-ops.
func (e *Environment) Install() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.installed {
		return
	}
	e.installed = true

	e.engine.Use(e.outer...)
	e.engine.Use(gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec any) {
		e.handleError(c, fmt.Errorf("panic: %v", rec))
	}))
	e.engine.Use(e.errorHandler)
	e.engine.Use(e.middleware...)
	e.engine.NoRoute(func(c *gin.Context) {
		RespondError(c, apperrors.FromStatus(http.StatusNotFound))
	})
	e.engine.NoMethod(func(c *gin.Context) {
		RespondError(c, apperrors.FromStatus(http.StatusMethodNotAllowed))
	})

	var router gin.IRouter = e.engine
	if e.urlPattern != "/" {
		router = e.engine.Group(e.urlPattern)
	}
	for _, r := range e.resources {
		r.Register(router)
	}
}

// ServeHTTP installs the environment if needed and serves the request.
func (e *Environment) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.Install()
	e.engine.ServeHTTP(w, r)
}

func (e *Environment) errorHandler(c *gin.Context) {
	c.Next()
	if len(c.Errors) == 0 || c.Writer.Written() {
		return
	}
	e.handleError(c, c.Errors.Last().Err)
}

func (e *Environment) handleError(c *gin.Context, err error) {
	e.mu.Lock()
	mappers := make([]ExceptionMapper, 0, len(e.mappers)+len(e.defaults))
	mappers = append(mappers, e.mappers...)
	mappers = append(mappers, e.defaults...)
	e.mu.Unlock()

	for _, m := range mappers {
		if m.MapError(c, err) {
			return
		}
	}
	LoggingMapper(e.log).MapError(c, err)
}
