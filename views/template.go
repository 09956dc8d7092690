package views

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"sync"
	texttemplate "text/template"
)

type executor interface {
	ExecuteTemplate(w io.Writer, name string, data any) error
}

// TemplateRenderer renders Go templates read from an fs.FS. Options:
//
//	delims:   "[[ ]]"                     alternative action delimiters
//	partials: "templates/partials/*.html" glob parsed alongside every template
//	reload:   "true"                      re-parse on every render
type TemplateRenderer struct {
	name        string
	fsys        fs.FS
	extensions  []string
	contentType string
	parse       func(r *TemplateRenderer, name string) (executor, error)

	mu       sync.RWMutex
	left     string
	right    string
	partials []string
	reload   bool
	cache    map[string]executor
}

// NewHTMLRenderer renders .html and .gohtml files with html/template.
func NewHTMLRenderer(fsys fs.FS, funcs htmltemplate.FuncMap) *TemplateRenderer {
	return &TemplateRenderer{
		name:        "html",
		fsys:        fsys,
		extensions:  []string{".html", ".gohtml"},
		contentType: "text/html; charset=utf-8",
		cache:       map[string]executor{},
		parse: func(r *TemplateRenderer, name string) (executor, error) {
			t := htmltemplate.New(path.Base(name)).Delims(r.left, r.right).Funcs(funcs)
			return t.ParseFS(r.fsys, append([]string{name}, r.partials...)...)
		},
	}
}

// NewTextRenderer renders .tmpl and .txt files with text/template.
func NewTextRenderer(fsys fs.FS, funcs texttemplate.FuncMap) *TemplateRenderer {
	return &TemplateRenderer{
		name:        "text",
		fsys:        fsys,
		extensions:  []string{".tmpl", ".txt"},
		contentType: "text/plain; charset=utf-8",
		cache:       map[string]executor{},
		parse: func(r *TemplateRenderer, name string) (executor, error) {
			t := texttemplate.New(path.Base(name)).Delims(r.left, r.right).Funcs(funcs)
			return t.ParseFS(r.fsys, append([]string{name}, r.partials...)...)
		},
	}
}

func (r *TemplateRenderer) Name() string         { return r.name }
func (r *TemplateRenderer) Extensions() []string { return r.extensions }
func (r *TemplateRenderer) ContentType() string  { return r.contentType }

// Configure applies renderer options and drops parsed templates.
func (r *TemplateRenderer) Configure(options map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, value := range options {
		switch key {
		case "delims":
			left, right, ok := strings.Cut(strings.TrimSpace(value), " ")
			if !ok || left == "" || strings.TrimSpace(right) == "" {
				return fmt.Errorf("views.%s.delims: expected two delimiters separated by a space, got %q", r.name, value)
			}
			r.left, r.right = left, strings.TrimSpace(right)
		case "partials":
			r.partials = nil
			for _, glob := range strings.Split(value, ",") {
				if glob = strings.TrimSpace(glob); glob != "" {
					r.partials = append(r.partials, glob)
				}
			}
		case "reload":
			reload, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("views.%s.reload: %w", r.name, err)
			}
			r.reload = reload
		default:
			return fmt.Errorf("views.%s: unknown option %q", r.name, key)
		}
	}
	r.cache = map[string]executor{}
	return nil
}

// Render executes the template name into buf.
func (r *TemplateRenderer) Render(buf *bytes.Buffer, name string, data any) error {
	t, err := r.template(name)
	if err != nil {
		return err
	}
	return t.ExecuteTemplate(buf, path.Base(name), data)
}

func (r *TemplateRenderer) template(name string) (executor, error) {
	r.mu.RLock()
	t, ok := r.cache[name]
	reload := r.reload
	r.mu.RUnlock()
	if ok && !reload {
		return t, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.parse(r, name)
	if err != nil {
		return nil, err
	}
	if !r.reload {
		r.cache[name] = t
	}
	return t, nil
}
