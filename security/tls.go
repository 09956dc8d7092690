package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// Client authentication modes of a server TLS configuration.
const (
	ClientAuthNone    = "none"
	ClientAuthRequest = "request"
	ClientAuthRequire = "require"
)

var tlsVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// TLSConfig is the tls section of https connectors and HTTP clients. For a
// server CertFile and KeyFile are its certificate and CAFile verifies client
// certificates; for a client CAFile verifies the server and CertFile and
// KeyFile are presented for mutual TLS.
type TLSConfig struct {
	CertFile string `yaml:"certFile" mapstructure:"certFile"`
	KeyFile  string `yaml:"keyFile" mapstructure:"keyFile"`
	CAFile   string `yaml:"caFile" mapstructure:"caFile"`

	// ServerName overrides the host name verified by a client.
	ServerName string `yaml:"serverName" mapstructure:"serverName"`
	// InsecureSkipVerify disables server certificate verification.
	InsecureSkipVerify bool `yaml:"insecureSkipVerify" mapstructure:"insecureSkipVerify"`
	// MinVersion is "1.2" (default) or "1.3"; "1.0" and "1.1" are accepted.
	MinVersion string `yaml:"minVersion" mapstructure:"minVersion" validate:"omitempty,oneof=1.0 1.1 1.2 1.3"`
	// ClientAuth is none (default), request or require.
	ClientAuth string `yaml:"clientAuth" mapstructure:"clientAuth" validate:"omitempty,oneof=none request require"`
}

// Build creates a client *tls.Config. It returns nil when nothing is set.
func (c *TLSConfig) Build() (*tls.Config, error) {
	if !c.IsEnabled() {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // opt-in for development
		ServerName:         c.ServerName,
		MinVersion:         c.minVersion(),
	}
	if c.CAFile != "" {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("security/tls: failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// BuildServer creates a server *tls.Config. A certificate is required.
func (c *TLSConfig) BuildServer() (*tls.Config, error) {
	if c == nil || c.CertFile == "" {
		return nil, fmt.Errorf("security/tls: certFile and keyFile are required for a server")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("security/tls: failed to load server certificate: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   c.minVersion(),
		NextProtos:   []string{"h2", "http/1.1"},
	}
	switch c.ClientAuth {
	case ClientAuthRequest:
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	case ClientAuthRequire:
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	if c.CAFile != "" {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
	}
	return cfg, nil
}

// Validate checks that the configuration is consistent.
func (c *TLSConfig) Validate() error {
	if c == nil {
		return nil
	}
	if (c.CertFile != "") != (c.KeyFile != "") {
		return fmt.Errorf("security/tls: both certFile and keyFile must be provided together")
	}
	if c.MinVersion != "" {
		if _, ok := tlsVersions[c.MinVersion]; !ok {
			return fmt.Errorf("security/tls: unknown minVersion %q", c.MinVersion)
		}
	}
	if c.ClientAuth == ClientAuthRequire && c.CAFile == "" {
		return fmt.Errorf("security/tls: clientAuth require needs a caFile")
	}
	return nil
}

// IsEnabled reports whether any setting is configured.
func (c *TLSConfig) IsEnabled() bool {
	if c == nil {
		return false
	}
	return c.InsecureSkipVerify || c.CAFile != "" || c.CertFile != "" || c.KeyFile != "" || c.ServerName != ""
}

func (c *TLSConfig) minVersion() uint16 {
	if v, ok := tlsVersions[c.MinVersion]; ok {
		return v
	}
	return tls.VersionTLS12
}

func loadPool(file string) (*x509.CertPool, error) {
	ca, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("security/tls: failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("security/tls: failed to parse CA certificate")
	}
	return pool, nil
}
