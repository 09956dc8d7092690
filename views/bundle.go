package views

import (
	"io/fs"

	"github.com/kbukum/gowizard/bootstrap"
)

// Config holds renderer options keyed by renderer name:
//
//	views:
//	  html:
//	    delims: "[[ ]]"
//	    reload: "true"
type Config map[string]map[string]string

// Bundle installs a Registry as the REST engine's HTML renderer.
type Bundle[C bootstrap.Config] struct {
	config   func(C) Config
	registry *Registry
}

// NewBundle creates a bundle rendering templates from fsys with the HTML
// and text renderers plus extra. config may be nil.
func NewBundle[C bootstrap.Config](fsys fs.FS, config func(C) Config, extra ...Renderer) *Bundle[C] {
	renderers := append([]Renderer{NewHTMLRenderer(fsys, nil), NewTextRenderer(fsys, nil)}, extra...)
	return &Bundle[C]{config: config, registry: NewRegistry(renderers...)}
}

// Registry returns the renderers.
func (b *Bundle[C]) Registry() *Registry { return b.registry }

func (b *Bundle[C]) Initialize(*bootstrap.Bootstrap[C]) {}

func (b *Bundle[C]) Run(cfg C, env *bootstrap.Environment) error {
	var options Config
	if b.config != nil {
		options = b.config(cfg)
	}
	for _, rd := range b.registry.Renderers() {
		if err := rd.Configure(options[rd.Name()]); err != nil {
			return err
		}
	}
	env.Rest().Engine().HTMLRender = b.registry
	return nil
}
