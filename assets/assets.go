// Package assets serves static files from an fs.FS.
//
//	//go:embed static
//	var static embed.FS
//
//	func (HelloApp) Initialize(b *bootstrap.Bootstrap[*HelloConfig]) {
//	    sub, _ := fs.Sub(static, "static")
//	    b.AddBundle(assets.NewBundle(sub, assets.WithURIPath("/assets")))
//	}
package assets

import (
	"bytes"
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gabriel-vasile/mimetype"

	"github.com/kbukum/gowizard/bootstrap"
)

const (
	DefaultURIPath   = "/assets"
	DefaultIndexFile = "index.htm"
	DefaultName      = "assets"
)

// Bundle registers an asset handler on the application servlets.
type Bundle struct {
	handler *Handler
	name    string
}

// Option configures a Bundle or Handler.
type Option func(*Handler)

// WithURIPath sets the path the assets are served under.
func WithURIPath(p string) Option {
	return func(h *Handler) { h.uriPath = cleanURIPath(p) }
}

// WithIndexFile sets the file served for directory requests. Empty disables
// directory requests.
func WithIndexFile(name string) Option {
	return func(h *Handler) { h.indexFile = name }
}

// WithCacheControl sets the Cache-Control header of every response.
func WithCacheControl(value string) Option {
	return func(h *Handler) { h.cacheControl = value }
}

// WithDefaultCharset sets the charset added to text content types.
func WithDefaultCharset(charset string) Option {
	return func(h *Handler) { h.charset = charset }
}

// NewBundle creates a bundle serving fsys under DefaultURIPath.
func NewBundle(fsys fs.FS, opts ...Option) *Bundle {
	return NewNamedBundle(DefaultName, fsys, opts...)
}

// NewNamedBundle creates a bundle whose handler is registered as name. Use
// distinct names for several asset bundles.
func NewNamedBundle(name string, fsys fs.FS, opts ...Option) *Bundle {
	return &Bundle{handler: NewHandler(fsys, opts...), name: name}
}

func (b *Bundle) Initialize(bootstrap.BootstrapView) {}

func (b *Bundle) Run(env *bootstrap.Environment) error {
	pattern := b.handler.uriPath
	if !strings.HasSuffix(pattern, "/") {
		pattern += "/"
	}
	env.Servlets().AddHandler(b.name, pattern, b.handler)
	return nil
}

// Handler serves files with ETag, Last-Modified and Range support.
type Handler struct {
	fsys         fs.FS
	uriPath      string
	indexFile    string
	cacheControl string
	charset      string

	mu    sync.RWMutex
	cache map[string]*asset
}

type asset struct {
	data        []byte
	etag        string
	contentType string
	modTime     time.Time
}

// NewHandler creates a Handler for fsys.
func NewHandler(fsys fs.FS, opts ...Option) *Handler {
	h := &Handler{
		fsys:      fsys,
		uriPath:   DefaultURIPath,
		indexFile: DefaultIndexFile,
		charset:   "utf-8",
		cache:     map[string]*asset{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func cleanURIPath(p string) string {
	p = "/" + strings.Trim(p, "/")
	return p
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	rel, ok := h.relative(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	name := rel
	if name == "" || strings.HasSuffix(r.URL.Path, "/") {
		if h.indexFile == "" {
			http.NotFound(w, r)
			return
		}
		name = path.Join(name, h.indexFile)
	} else if info, err := fs.Stat(h.fsys, name); err == nil && info.IsDir() {
		http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
		return
	}

	a, err := h.load(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	hdr := w.Header()
	hdr.Set("ETag", a.etag)
	hdr.Set("Content-Type", a.contentType)
	if h.cacheControl != "" {
		hdr.Set("Cache-Control", h.cacheControl)
	}
	http.ServeContent(w, r, name, a.modTime, bytes.NewReader(a.data))
}

// relative maps a request path to a file name inside fsys.
func (h *Handler) relative(requestPath string) (string, bool) {
	base := strings.TrimSuffix(h.uriPath, "/")
	if requestPath != base && !strings.HasPrefix(requestPath, base+"/") {
		return "", false
	}
	rel := strings.TrimPrefix(requestPath, base)
	rel = strings.Trim(path.Clean("/"+rel), "/")
	if rel == "." {
		rel = ""
	}
	return rel, true
}

func (h *Handler) load(name string) (*asset, error) {
	h.mu.RLock()
	a, ok := h.cache[name]
	h.mu.RUnlock()
	if ok {
		return a, nil
	}

	info, err := fs.Stat(h.fsys, name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fs.ErrNotExist
	}
	data, err := fs.ReadFile(h.fsys, name)
	if err != nil {
		return nil, err
	}
	a = &asset{
		data:        data,
		etag:        `"` + strconv.FormatUint(xxhash.Sum64(data), 16) + `"`,
		contentType: h.contentType(name, data),
		modTime:     info.ModTime(),
	}

	h.mu.Lock()
	h.cache[name] = a
	h.mu.Unlock()
	return a, nil
}

func (h *Handler) contentType(name string, data []byte) string {
	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = mimetype.Detect(data).String()
	}
	if strings.HasPrefix(ct, "text/") && !strings.Contains(ct, "charset=") && h.charset != "" {
		ct += "; charset=" + h.charset
	}
	return ct
}
