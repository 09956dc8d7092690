package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/kbukum/gowizard/util"
)

// GzipConfig configures response compression.
type GzipConfig struct {
	Enabled             bool      `yaml:"enabled" mapstructure:"enabled"`
	MinimumEntitySize   util.Size `yaml:"minimumEntitySize" mapstructure:"minimumEntitySize" validate:"size_min=0B"`
	CompressedMimeTypes []string  `yaml:"compressedMimeTypes" mapstructure:"compressedMimeTypes"`
	Level               int       `yaml:"level" mapstructure:"level" validate:"min=-1,max=9"`
}

// ApplyDefaults enables compression of bodies of 256 bytes or more.
func (c *GzipConfig) ApplyDefaults() {
	c.Enabled = true
	if c.MinimumEntitySize == 0 {
		c.MinimumEntitySize = 256 * util.Byte
	}
	if c.Level == 0 {
		c.Level = gzip.DefaultCompression
	}
}

// Gzip returns middleware that compresses responses for clients accepting
// gzip. Bodies smaller than MinimumEntitySize, already encoded bodies and
// content types outside CompressedMimeTypes (when set) are sent as is.
func Gzip(cfg GzipConfig) Middleware {
	pool := &sync.Pool{New: func() any {
		w, err := gzip.NewWriterLevel(nil, cfg.Level)
		if err != nil {
			w = gzip.NewWriter(nil)
		}
		return w
	}}
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || r.Header.Get("Upgrade") != "" || !acceptsGzip(r) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Accept-Encoding")
			gw := &gzipWriter{ResponseWriter: w, cfg: &cfg, pool: pool, status: http.StatusOK}
			defer gw.close()
			next.ServeHTTP(gw, r)
		})
	}
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, q, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return strings.TrimSpace(q) != "q=0"
		}
	}
	return false
}

// gzipWriter buffers the start of the body until it knows whether the
// response qualifies for compression.
type gzipWriter struct {
	http.ResponseWriter
	cfg     *GzipConfig
	pool    *sync.Pool
	gz      *gzip.Writer
	buf     []byte
	status  int
	decided bool
}

func (g *gzipWriter) WriteHeader(code int) {
	if !g.decided {
		g.status = code
	}
}

func (g *gzipWriter) Write(b []byte) (int, error) {
	if g.decided {
		if g.gz != nil {
			return g.gz.Write(b)
		}
		return g.ResponseWriter.Write(b)
	}
	g.buf = append(g.buf, b...)
	if int64(len(g.buf)) >= g.cfg.MinimumEntitySize.Bytes() {
		if err := g.decide(); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

func (g *gzipWriter) decide() error {
	g.decided = true
	h := g.Header()
	if h.Get("Content-Type") == "" && len(g.buf) > 0 {
		h.Set("Content-Type", http.DetectContentType(g.buf))
	}
	if g.compressible() {
		h.Set("Content-Encoding", "gzip")
		h.Del("Content-Length")
		g.gz = g.pool.Get().(*gzip.Writer)
		g.gz.Reset(g.ResponseWriter)
		g.ResponseWriter.WriteHeader(g.status)
		_, err := g.gz.Write(g.buf)
		g.buf = nil
		return err
	}
	g.ResponseWriter.WriteHeader(g.status)
	if len(g.buf) == 0 {
		return nil
	}
	_, err := g.ResponseWriter.Write(g.buf)
	g.buf = nil
	return err
}

func (g *gzipWriter) compressible() bool {
	if int64(len(g.buf)) < g.cfg.MinimumEntitySize.Bytes() || len(g.buf) == 0 {
		return false
	}
	if g.status == http.StatusNoContent || g.status == http.StatusNotModified || g.status < 200 {
		return false
	}
	h := g.Header()
	if h.Get("Content-Encoding") != "" {
		return false
	}
	if len(g.cfg.CompressedMimeTypes) == 0 {
		return true
	}
	ct, _, _ := strings.Cut(h.Get("Content-Type"), ";")
	ct = strings.TrimSpace(ct)
	for _, m := range g.cfg.CompressedMimeTypes {
		if strings.EqualFold(m, ct) {
			return true
		}
	}
	return false
}

// Flush sends buffered data; it commits the compression decision.
func (g *gzipWriter) Flush() {
	if !g.decided {
		_ = g.decide()
	}
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (g *gzipWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}

func (g *gzipWriter) close() {
	if !g.decided {
		_ = g.decide()
	}
	if g.gz != nil {
		_ = g.gz.Close()
		g.pool.Put(g.gz)
		g.gz = nil
	}
}
