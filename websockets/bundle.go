package websockets

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/rest"
)

type registration struct {
	path     string
	endpoint Endpoint
	opts     []EndpointOption
}

// Bundle serves the added endpoints and closes their sessions on shutdown.
type Bundle[C bootstrap.Config] struct {
	config    func(C) *Config
	endpoints []registration
	hub       *Hub
}

// NewBundle creates a bundle. config may be nil to use the defaults.
func NewBundle[C bootstrap.Config](config func(C) *Config) *Bundle[C] {
	return &Bundle[C]{config: config}
}

// Add registers an endpoint at path, relative to the REST URL pattern.
func (b *Bundle[C]) Add(path string, e Endpoint, opts ...EndpointOption) *Bundle[C] {
	b.endpoints = append(b.endpoints, registration{path: path, endpoint: e, opts: opts})
	return b
}

// Hub returns the session hub, available once the bundle has run.
func (b *Bundle[C]) Hub() *Hub { return b.hub }

func (b *Bundle[C]) Initialize(*bootstrap.Bootstrap[C]) {}

func (b *Bundle[C]) Run(cfg C, env *bootstrap.Environment) error {
	var defaults Config
	if b.config != nil {
		if c := b.config(cfg); c != nil {
			defaults = *c
		}
	}
	defaults.ApplyDefaults()

	b.hub = NewHub(env.Logger().WithComponent("websockets"), env.Metrics())
	handlers := make(map[string]gin.HandlerFunc, len(b.endpoints))
	for _, reg := range b.endpoints {
		settings := defaults
		for _, opt := range reg.opts {
			opt(&settings)
		}
		handlers[reg.path] = b.hub.Handler(reg.path, reg.endpoint, settings)
	}
	env.Rest().Register(rest.ResourceFunc(func(r gin.IRouter) {
		for path, handler := range handlers {
			r.Handle(http.MethodGet, path, handler)
		}
	}))
	env.Lifecycle().Manage(b.hub)
	return nil
}
