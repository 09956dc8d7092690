package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/gowizard/security"
	"github.com/kbukum/gowizard/server/middleware"
	"github.com/kbukum/gowizard/util"
	"github.com/kbukum/gowizard/validation"
)

// Server types.
const (
	TypeDefault = "default"
	TypeSimple  = "simple"
)

// Connector types.
const (
	ConnectorHTTP  = "http"
	ConnectorH2C   = "h2c"
	ConnectorHTTPS = "https"
)

// ConnectorFactory describes one listening socket.
type ConnectorFactory struct {
	Type     string `yaml:"type" mapstructure:"type" validate:"oneof=http h2c https"`
	BindHost string `yaml:"bindHost" mapstructure:"bindHost"`
	// Port 0 binds an ephemeral port.
	Port int `yaml:"port" mapstructure:"port" validate:"min=0,max=65535"`
	// TLS is required by https connectors and ignored otherwise.
	TLS *security.TLSConfig `yaml:"tls" mapstructure:"tls" validate:"required_if=Type https"`
}

// ApplyDefaults sets the connector type to http.
func (c *ConnectorFactory) ApplyDefaults() {
	if c.Type == "" {
		c.Type = ConnectorHTTP
	}
}

// Address returns the host:port the connector listens on.
func (c ConnectorFactory) Address() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.Port))
}

// RequestLogConfig configures the access log.
type RequestLogConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Output is stdout, stderr or a file path.
	Output string `yaml:"output" mapstructure:"output"`
	// Format is console or json.
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=console json pretty"`
}

// ApplyDefaults enables the request log on stdout.
func (c *RequestLogConfig) ApplyDefaults() {
	c.Enabled = true
	if c.Output == "" {
		c.Output = "stdout"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}

// Factory is the "server" configuration section.
type Factory struct {
	Type string `yaml:"type" mapstructure:"type" validate:"oneof=default simple"`

	ApplicationConnectors []ConnectorFactory `yaml:"applicationConnectors" mapstructure:"applicationConnectors" validate:"dive"`
	AdminConnectors       []ConnectorFactory `yaml:"adminConnectors" mapstructure:"adminConnectors" validate:"dive"`

	// Connector, ApplicationContextPath and AdminContextPath apply to the
	// simple server.
	Connector              ConnectorFactory `yaml:"connector" mapstructure:"connector"`
	ApplicationContextPath string           `yaml:"applicationContextPath" mapstructure:"applicationContextPath" validate:"startswith=/"`
	AdminContextPath       string           `yaml:"adminContextPath" mapstructure:"adminContextPath" validate:"startswith=/"`

	ShutdownGracePeriod util.Duration `yaml:"shutdownGracePeriod" mapstructure:"shutdownGracePeriod" validate:"duration_min=0s"`
	ReadTimeout         util.Duration `yaml:"readTimeout" mapstructure:"readTimeout" validate:"duration_min=0s"`
	WriteTimeout        util.Duration `yaml:"writeTimeout" mapstructure:"writeTimeout" validate:"duration_min=0s"`
	IdleTimeout         util.Duration `yaml:"idleTimeout" mapstructure:"idleTimeout" validate:"duration_min=0s"`

	MaxRequestBodySize   util.Size `yaml:"maxRequestBodySize" mapstructure:"maxRequestBodySize" validate:"size_min=0B"`
	MaxRequestsPerSecond float64   `yaml:"maxRequestsPerSecond" mapstructure:"maxRequestsPerSecond" validate:"min=0"`
	MaxRequestsBurst     int       `yaml:"maxRequestsBurst" mapstructure:"maxRequestsBurst" validate:"min=0"`

	RegisterDefaultExceptionMappers bool `yaml:"registerDefaultExceptionMappers" mapstructure:"registerDefaultExceptionMappers"`

	Gzip       middleware.GzipConfig `yaml:"gzip" mapstructure:"gzip"`
	RequestLog RequestLogConfig      `yaml:"requestLog" mapstructure:"requestLog"`
	Cors       middleware.CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// ApplyDefaults applies sensible defaults: a default server with an
// application connector on 8080 and an admin connector on 8081.
func (f *Factory) ApplyDefaults() {
	if f.Type == "" {
		f.Type = TypeDefault
	}
	if f.ApplicationConnectors == nil {
		f.ApplicationConnectors = []ConnectorFactory{{Type: ConnectorHTTP, Port: 8080}}
	}
	if f.AdminConnectors == nil {
		f.AdminConnectors = []ConnectorFactory{{Type: ConnectorHTTP, Port: 8081}}
	}
	if f.Connector.Type == "" && f.Connector.Port == 0 && f.Connector.BindHost == "" {
		f.Connector = ConnectorFactory{Type: ConnectorHTTP, Port: 8080}
	}
	if f.ApplicationContextPath == "" {
		f.ApplicationContextPath = "/application"
	}
	if f.AdminContextPath == "" {
		f.AdminContextPath = "/admin"
	}
	if f.ShutdownGracePeriod == 0 {
		f.ShutdownGracePeriod = util.Duration(30 * time.Second)
	}
	if f.ReadTimeout == 0 {
		f.ReadTimeout = util.Duration(30 * time.Second)
	}
	if f.WriteTimeout == 0 {
		f.WriteTimeout = util.Duration(30 * time.Second)
	}
	if f.IdleTimeout == 0 {
		f.IdleTimeout = util.Duration(2 * time.Minute)
	}
	if f.MaxRequestBodySize == 0 {
		f.MaxRequestBodySize = 10 * util.Megabyte
	}
	f.RegisterDefaultExceptionMappers = true
	f.Gzip.ApplyDefaults()
	f.RequestLog.ApplyDefaults()
	f.Cors.ApplyDefaults()
}

// ValidateSelf rejects a simple server whose context paths collide and a
// default server with two connectors on the same fixed address.
func (f *Factory) ValidateSelf(v *validation.Validator) {
	if f.Type == TypeSimple {
		v.Custom(strings.TrimSuffix(f.ApplicationContextPath, "/") != strings.TrimSuffix(f.AdminContextPath, "/"),
			"adminContextPath", "must differ from applicationContextPath")
		return
	}
	v.Custom(len(f.ApplicationConnectors) > 0, "applicationConnectors", "must not be empty")
	v.Custom(len(f.AdminConnectors) > 0, "adminConnectors", "must not be empty")

	seen := map[string]string{}
	for _, group := range []struct {
		name       string
		connectors []ConnectorFactory
	}{
		{"applicationConnectors", f.ApplicationConnectors},
		{"adminConnectors", f.AdminConnectors},
	} {
		for i, c := range group.connectors {
			if c.Port == 0 {
				continue
			}
			v.Unique(fmt.Sprintf("%s[%d].port", group.name, i), c.Address(), seen)
		}
	}
}
