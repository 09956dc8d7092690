// Package views renders templates for REST resources.
//
//	//go:embed templates
//	var templates embed.FS
//
//	b.AddConfiguredBundle(views.NewBundle(templates,
//	    func(c *HelloConfig) views.Config { return c.Views }))
//
//	r.GET("/hello", func(c *gin.Context) {
//	    c.HTML(http.StatusOK, "templates/hello.html", gin.H{"Name": "Stranger"})
//	})
//
// The template's file extension selects the renderer: html/template for
// .html and .gohtml, text/template for .tmpl and .txt.
package views

import (
	"bytes"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

// View names a template and the data it renders.
type View struct {
	Template string
	Data     any
	// ContentType overrides the renderer's content type.
	ContentType string
}

// Renderer renders the templates with the file extensions it supports.
type Renderer interface {
	// Name is the renderer's key in the views configuration section.
	Name() string
	// Extensions lists the handled file extensions including the dot.
	Extensions() []string
	// Configure applies the options of the renderer's views config section.
	Configure(options map[string]string) error
	ContentType() string
	Render(buf *bytes.Buffer, name string, data any) error
}

// Registry selects a renderer by template extension. It implements gin's
// render.HTMLRender so c.HTML renders through it.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
}

// NewRegistry creates a registry with the given renderers. Later renderers
// replace earlier ones for the same extension.
func NewRegistry(renderers ...Renderer) *Registry {
	r := &Registry{renderers: map[string]Renderer{}}
	for _, rd := range renderers {
		r.Add(rd)
	}
	return r
}

// Add registers a renderer for its extensions.
func (r *Registry) Add(rd Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range rd.Extensions() {
		r.renderers[strings.ToLower(ext)] = rd
	}
}

// Extensions lists the supported extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.renderers))
	for ext := range r.renderers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Renderers returns each registered renderer once, ordered by name.
func (r *Registry) Renderers() []Renderer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[Renderer]bool{}
	var out []Renderer
	for _, rd := range r.renderers {
		if !seen[rd] {
			seen[rd] = true
			out = append(out, rd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// RendererFor returns the renderer of a template name.
func (r *Registry) RendererFor(name string) (Renderer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rd, ok := r.renderers[strings.ToLower(path.Ext(name))]
	if !ok {
		return nil, fmt.Errorf("views: no renderer for %q", name)
	}
	return rd, nil
}

// Instance implements render.HTMLRender.
func (r *Registry) Instance(name string, data any) render.Render {
	return &viewRender{registry: r, view: View{Template: name, Data: data}}
}

// Render writes v with status. Rendering errors are recorded on c for the
// exception mappers and nothing is written.
func (r *Registry) Render(c *gin.Context, status int, v View) {
	c.Render(status, &viewRender{registry: r, view: v})
}

type viewRender struct {
	registry *Registry
	view     View
}

func (v *viewRender) Render(w http.ResponseWriter) error {
	rd, err := v.registry.RendererFor(v.view.Template)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := rd.Render(&buf, v.view.Template, v.view.Data); err != nil {
		return fmt.Errorf("views: render %s: %w", v.view.Template, err)
	}
	if v.view.ContentType != "" {
		w.Header().Set("Content-Type", v.view.ContentType)
	} else if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", rd.ContentType())
	}
	_, err = buf.WriteTo(w)
	return err
}

func (v *viewRender) WriteContentType(w http.ResponseWriter) {
	if w.Header().Get("Content-Type") != "" {
		return
	}
	if rd, err := v.registry.RendererFor(v.view.Template); err == nil {
		w.Header().Set("Content-Type", rd.ContentType())
	}
}
