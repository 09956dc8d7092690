package views_test

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/config"
	"github.com/kbukum/gowizard/rest"
	"github.com/kbukum/gowizard/testutil"
	"github.com/kbukum/gowizard/views"
)

func templates() fstest.MapFS {
	return fstest.MapFS{
		"templates/hello.html":           {Data: []byte(`<p>Hello, {{.Name}}!</p>{{template "footer.html"}}`)},
		"templates/partials/footer.html": {Data: []byte(`{{define "footer.html"}}<footer>gowizard</footer>{{end}}`)},
		"templates/hello.txt":            {Data: []byte(`Hello, {{.Name}}!`)},
		"templates/brackets.html":        {Data: []byte(`<p>[[.Name]]</p>`)},
		"templates/broken.html":          {Data: []byte(`{{.Missing.Field}}`)},
	}
}

func helloResource(registry *views.Registry) rest.Resource {
	return rest.ResourceFunc(func(r gin.IRouter) {
		r.GET("/hello/:format", func(c *gin.Context) {
			c.HTML(http.StatusOK, "templates/hello."+c.Param("format"), gin.H{"Name": "<Stranger>"})
		})
		r.GET("/view", func(c *gin.Context) {
			registry.Render(c, http.StatusAccepted, views.View{
				Template:    "templates/hello.txt",
				Data:        gin.H{"Name": "view"},
				ContentType: "text/markdown",
			})
		})
		r.GET("/broken", func(c *gin.Context) {
			c.HTML(http.StatusOK, "templates/broken.html", struct{}{})
		})
	})
}

func newHarness(t *testing.T, registry *views.Registry) *testutil.ResourceHarness {
	t.Helper()
	h := testutil.NewResourceHarness(t, testutil.WithResource(helloResource(registry)))
	h.Environment().Engine().HTMLRender = registry
	return h
}

func TestRenderByExtension(t *testing.T) {
	htmlRenderer := views.NewHTMLRenderer(templates(), nil)
	if err := htmlRenderer.Configure(map[string]string{"partials": "templates/partials/*.html"}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	registry := views.NewRegistry(htmlRenderer, views.NewTextRenderer(templates(), nil))
	h := newHarness(t, registry)

	tests := []struct {
		name        string
		path        string
		status      int
		contentType string
		body        string
	}{
		{"html escapes", "/hello/html", http.StatusOK, "text/html", "<p>Hello, &lt;Stranger&gt;!</p><footer>gowizard</footer>"},
		{"text does not escape", "/hello/txt", http.StatusOK, "text/plain", "Hello, <Stranger>!"},
		{"view with content type", "/view", http.StatusAccepted, "text/markdown", "Hello, view!"},
		{"unknown extension", "/hello/mustache", http.StatusInternalServerError, "application/json", ""},
		{"execution error", "/broken", http.StatusInternalServerError, "application/json", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := h.Request(http.MethodGet, tc.path, nil)
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, resp.StatusCode, body)
			}
			if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, tc.contentType) {
				t.Errorf("expected content type %q, got %q", tc.contentType, ct)
			}
			if tc.body != "" && body != tc.body {
				t.Errorf("expected body %q, got %q", tc.body, body)
			}
		})
	}
}

func TestConfigure(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]string
		wantErr bool
	}{
		{"empty", nil, false},
		{"delims", map[string]string{"delims": "[[ ]]"}, false},
		{"single delim", map[string]string{"delims": "[["}, true},
		{"reload", map[string]string{"reload": "true"}, false},
		{"bad reload", map[string]string{"reload": "sometimes"}, true},
		{"unknown", map[string]string{"cache": "on"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := views.NewHTMLRenderer(templates(), nil).Configure(tc.options)
			if (err != nil) != tc.wantErr {
				t.Errorf("expected error %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestReload(t *testing.T) {
	fsys := templates()
	r := views.NewTextRenderer(fsys, nil)
	render := func() string {
		var buf bytes.Buffer
		if err := r.Render(&buf, "templates/hello.txt", gin.H{"Name": "a"}); err != nil {
			t.Fatalf("Render: %v", err)
		}
		return buf.String()
	}

	if got := render(); got != "Hello, a!" {
		t.Fatalf("expected Hello, a!, got %q", got)
	}
	fsys["templates/hello.txt"] = &fstest.MapFile{Data: []byte("Bye, {{.Name}}")}
	if got := render(); got != "Hello, a!" {
		t.Errorf("expected cached template, got %q", got)
	}
	if err := r.Configure(map[string]string{"reload": "true"}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if got := render(); got != "Bye, a" {
		t.Errorf("expected reloaded template, got %q", got)
	}
}

type viewsConfig struct {
	config.Configuration `yaml:",inline" mapstructure:",squash"`
	Views                views.Config `yaml:"views" mapstructure:"views"`
}

type viewsApp struct{}

func (viewsApp) Name() string                   { return "views" }
func (viewsApp) NewConfiguration() *viewsConfig { return &viewsConfig{} }

func (viewsApp) Initialize(b *bootstrap.Bootstrap[*viewsConfig]) {
	b.AddConfiguredBundle(views.NewBundle(templates(), func(c *viewsConfig) views.Config { return c.Views }))
}

func (viewsApp) Run(_ context.Context, _ *viewsConfig, env *bootstrap.Environment) error {
	env.Rest().Register(rest.ResourceFunc(func(r gin.IRouter) {
		r.GET("/brackets", func(c *gin.Context) {
			c.HTML(http.StatusOK, "templates/brackets.html", gin.H{"Name": "configured"})
		})
	}))
	return nil
}

func TestBundleInApplication(t *testing.T) {
	cfg := &viewsConfig{Views: views.Config{"html": {"delims": "[[ ]]"}}}
	cfg.ApplyDefaults()
	cfg.Logging.Level = "off"

	app := testutil.NewAppSupportWithConfig[*viewsConfig](t, viewsApp{}, cfg)
	if status, body := app.Get("/brackets"); status != http.StatusOK || body != "<p>configured</p>" {
		t.Errorf("expected 200 <p>configured</p>, got %d %q", status, body)
	}
}

func TestBundleRejectsBadOptions(t *testing.T) {
	b := views.NewBundle[*viewsConfig](templates(), func(c *viewsConfig) views.Config { return c.Views })
	cfg := &viewsConfig{Views: views.Config{"text": {"reload": "maybe"}}}
	if err := b.Run(cfg, nil); err == nil {
		t.Fatal("expected configuration error")
	}
}
