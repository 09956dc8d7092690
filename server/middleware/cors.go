package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/gowizard/util"
)

// CORSConfig is the server.cors section. AllowedOrigins entries are exact
// origins, "*", or patterns with a leading wildcard host label such as
// "https://*.example.com".
type CORSConfig struct {
	Enabled          bool          `yaml:"enabled" mapstructure:"enabled"`
	AllowedOrigins   []string      `yaml:"allowedOrigins" mapstructure:"allowedOrigins"`
	AllowedMethods   []string      `yaml:"allowedMethods" mapstructure:"allowedMethods"`
	AllowedHeaders   []string      `yaml:"allowedHeaders" mapstructure:"allowedHeaders"`
	ExposedHeaders   []string      `yaml:"exposedHeaders" mapstructure:"exposedHeaders"`
	AllowCredentials bool          `yaml:"allowCredentials" mapstructure:"allowCredentials"`
	PreflightMaxAge  util.Duration `yaml:"preflightMaxAge" mapstructure:"preflightMaxAge" validate:"duration_min=0s"`
	// ChainPreflight passes preflight requests on to the application after
	// the CORS headers are set.
	ChainPreflight bool `yaml:"chainPreflight" mapstructure:"chainPreflight"`
}

// ApplyDefaults sets the methods and headers browsers commonly need and a
// 30 minute preflight cache.
func (c *CORSConfig) ApplyDefaults() {
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{"Content-Type", "Authorization", "Accept", "Origin", HeaderRequestID}
	}
	if c.PreflightMaxAge == 0 {
		c.PreflightMaxAge = util.Duration(30 * time.Minute)
	}
}

// CORS returns middleware answering cross-origin requests. Requests from
// origins that are not allowed pass through without CORS headers, so the
// browser blocks the response. Preflights for a method that is not allowed
// get no CORS headers either.
func CORS(cfg *CORSConfig) Middleware {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(int(cfg.PreflightMaxAge.Std().Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin == "" || !originAllowed(origin, cfg.AllowedOrigins) {
				next.ServeHTTP(w, r)
				return
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if preflight && !methodAllowed(r.Header.Get("Access-Control-Request-Method"), cfg.AllowedMethods) {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			h.Set("Access-Control-Allow-Origin", origin)
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if !preflight {
				if exposed != "" {
					h.Set("Access-Control-Expose-Headers", exposed)
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Max-Age", maxAge)
			if cfg.ChainPreflight {
				next.ServeHTTP(w, r)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		switch {
		case a == "*", a == origin:
			return true
		case strings.Contains(a, "://*."):
			scheme, host, _ := strings.Cut(a, "://*.")
			if strings.HasPrefix(origin, scheme+"://") && strings.HasSuffix(origin, "."+host) {
				return true
			}
		}
	}
	return false
}

func methodAllowed(method string, allowed []string) bool {
	for _, m := range allowed {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
