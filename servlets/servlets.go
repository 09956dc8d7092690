// Package servlets mounts plain http.Handlers and filters next to the REST
// resources of an application.
package servlets

import (
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/server/middleware"
)

// Environment holds named handlers and filters. Handler names and filter
// names are unique; registering a name again replaces the earlier entry.
type Environment struct {
	log *logger.Logger

	mu       sync.Mutex
	handlers []*HandlerRegistration
	filters  []*FilterRegistration
	seq      int
}

// HandlerRegistration is a handler mounted on a ServeMux pattern.
type HandlerRegistration struct {
	Name    string
	Pattern string
	Handler http.Handler
}

// FilterRegistration is a named middleware. Filters run in ascending order,
// then in registration order, and only on paths matching one of their
// patterns when any are set.
type FilterRegistration struct {
	name     string
	filter   middleware.Middleware
	order    int
	seq      int
	patterns []string
}

// Name returns the filter name.
func (f *FilterRegistration) Name() string { return f.name }

// SetOrder sets the filter's position; lower runs first.
func (f *FilterRegistration) SetOrder(order int) *FilterRegistration {
	f.order = order
	return f
}

// ForPaths limits the filter to request paths matching one of patterns.
// A pattern ending in "/*" matches the subtree; others use path.Match.
func (f *FilterRegistration) ForPaths(patterns ...string) *FilterRegistration {
	f.patterns = append(f.patterns, patterns...)
	return f
}

func (f *FilterRegistration) matches(p string) bool {
	if len(f.patterns) == 0 {
		return true
	}
	for _, pattern := range f.patterns {
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if p == prefix || strings.HasPrefix(p, prefix+"/") {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// NewEnvironment creates an empty environment.
func NewEnvironment(log *logger.Logger) *Environment {
	if log == nil {
		log = logger.Get("servlets")
	}
	return &Environment{log: log}
}

// AddHandler mounts h on pattern (http.ServeMux syntax).
func (e *Environment) AddHandler(name, pattern string, h http.Handler) *HandlerRegistration {
	e.mu.Lock()
	defer e.mu.Unlock()
	reg := &HandlerRegistration{Name: name, Pattern: pattern, Handler: h}
	for i, existing := range e.handlers {
		if existing.Name == name {
			e.log.Warn("Overwriting handler", map[string]interface{}{logger.FieldName: name, "pattern": pattern})
			e.handlers[i] = reg
			return reg
		}
	}
	e.handlers = append(e.handlers, reg)
	return reg
}

// AddFilter registers a filter.
func (e *Environment) AddFilter(name string, filter middleware.Middleware) *FilterRegistration {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	reg := &FilterRegistration{name: name, filter: filter, seq: e.seq}
	for i, existing := range e.filters {
		if existing.name == name {
			e.log.Warn("Overwriting filter", map[string]interface{}{logger.FieldName: name})
			e.filters[i] = reg
			return reg
		}
	}
	e.filters = append(e.filters, reg)
	return reg
}

// Handlers returns the handler registrations in registration order.
func (e *Environment) Handlers() []HandlerRegistration {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]HandlerRegistration, len(e.handlers))
	for i, h := range e.handlers {
		out[i] = *h
	}
	return out
}

// FilterNames returns the filter names in execution order.
func (e *Environment) FilterNames() []string {
	filters := e.sortedFilters()
	names := make([]string, len(filters))
	for i, f := range filters {
		names[i] = f.name
	}
	return names
}

func (e *Environment) sortedFilters() []*FilterRegistration {
	e.mu.Lock()
	filters := append([]*FilterRegistration(nil), e.filters...)
	e.mu.Unlock()
	sort.SliceStable(filters, func(i, j int) bool {
		if filters[i].order != filters[j].order {
			return filters[i].order < filters[j].order
		}
		return filters[i].seq < filters[j].seq
	})
	return filters
}

// Handler builds the handler serving every registration, with fallback
// answering requests no pattern claims. Later registrations of a pattern
// already claimed are skipped with a warning.
func (e *Environment) Handler(fallback http.Handler) http.Handler {
	mux := http.NewServeMux()
	claimed := map[string]string{}
	for _, h := range e.Handlers() {
		if owner, ok := claimed[h.Pattern]; ok {
			e.log.Warn("Pattern already mapped; skipping handler", map[string]interface{}{
				logger.FieldName: h.Name,
				"pattern":        h.Pattern,
				"owner":          owner,
			})
			continue
		}
		claimed[h.Pattern] = h.Name
		mux.Handle(h.Pattern, h.Handler)
	}
	if fallback != nil {
		if _, ok := claimed["/"]; !ok {
			mux.Handle("/", fallback)
		}
	}

	var handler http.Handler = mux
	filters := e.sortedFilters()
	for i := len(filters) - 1; i >= 0; i-- {
		handler = filtered(filters[i], handler)
	}
	return handler
}

func filtered(f *FilterRegistration, next http.Handler) http.Handler {
	wrapped := f.filter(next)
	if len(f.patterns) == 0 {
		return wrapped
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.matches(r.URL.Path) {
			wrapped.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
