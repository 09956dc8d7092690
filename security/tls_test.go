package security

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kbukum/gowizard/security/tlstest"
)

func TestBuildDisabled(t *testing.T) {
	for _, cfg := range []*TLSConfig{nil, {}} {
		result, err := cfg.Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != nil {
			t.Errorf("expected nil config, got %+v", result)
		}
	}
}

func TestBuild(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)

	tests := []struct {
		name       string
		cfg        TLSConfig
		minVersion uint16
		roots      bool
		certs      int
	}{
		{"skip verify", TLSConfig{InsecureSkipVerify: true}, tls.VersionTLS12, false, 0},
		{"server name", TLSConfig{ServerName: "example.com"}, tls.VersionTLS12, false, 0},
		{"min version", TLSConfig{InsecureSkipVerify: true, MinVersion: "1.3"}, tls.VersionTLS13, false, 0},
		{"ca", TLSConfig{CAFile: certs.CAFile}, tls.VersionTLS12, true, 0},
		{"mutual", TLSConfig{CAFile: certs.CAFile, CertFile: certs.CertFile, KeyFile: certs.KeyFile}, tls.VersionTLS12, true, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := tc.cfg.Build()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.MinVersion != tc.minVersion {
				t.Errorf("expected MinVersion %d, got %d", tc.minVersion, result.MinVersion)
			}
			if result.InsecureSkipVerify != tc.cfg.InsecureSkipVerify {
				t.Errorf("expected InsecureSkipVerify=%v", tc.cfg.InsecureSkipVerify)
			}
			if result.ServerName != tc.cfg.ServerName {
				t.Errorf("expected ServerName %q, got %q", tc.cfg.ServerName, result.ServerName)
			}
			if (result.RootCAs != nil) != tc.roots {
				t.Errorf("expected RootCAs set=%v", tc.roots)
			}
			if len(result.Certificates) != tc.certs {
				t.Errorf("expected %d certificates, got %d", tc.certs, len(result.Certificates))
			}
		})
	}
}

func TestBuildErrors(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)
	invalid := tlstest.WriteInvalidPEM(t, "invalid-ca.pem")

	tests := []struct {
		name string
		cfg  TLSConfig
	}{
		{"missing ca", TLSConfig{CAFile: "/nonexistent/ca.pem"}},
		{"invalid ca", TLSConfig{CAFile: invalid}},
		{"missing cert", TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}},
		{"cert without key", TLSConfig{CertFile: certs.CertFile}},
		{"key without cert", TLSConfig{KeyFile: certs.KeyFile, ServerName: "x"}},
		{"unknown version", TLSConfig{InsecureSkipVerify: true, MinVersion: "2.0"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.cfg.Build(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBuildServer(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)

	tests := []struct {
		name       string
		cfg        *TLSConfig
		clientAuth tls.ClientAuthType
		wantErr    bool
	}{
		{"no config", nil, 0, true},
		{"no certificate", &TLSConfig{CAFile: certs.CAFile}, 0, true},
		{"plain", &TLSConfig{CertFile: certs.CertFile, KeyFile: certs.KeyFile}, tls.NoClientCert, false},
		{"request", &TLSConfig{CertFile: certs.CertFile, KeyFile: certs.KeyFile, ClientAuth: ClientAuthRequest}, tls.VerifyClientCertIfGiven, false},
		{"require", &TLSConfig{CertFile: certs.CertFile, KeyFile: certs.KeyFile, CAFile: certs.CAFile, ClientAuth: ClientAuthRequire}, tls.RequireAndVerifyClientCert, false},
		{"require without ca", &TLSConfig{CertFile: certs.CertFile, KeyFile: certs.KeyFile, ClientAuth: ClientAuthRequire}, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := tc.cfg.BuildServer()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result.Certificates) != 1 {
				t.Errorf("expected 1 certificate, got %d", len(result.Certificates))
			}
			if result.ClientAuth != tc.clientAuth {
				t.Errorf("expected ClientAuth %v, got %v", tc.clientAuth, result.ClientAuth)
			}
		})
	}
}

func TestMutualTLSHandshake(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)
	serverCfg, err := (&TLSConfig{
		CertFile:   certs.CertFile,
		KeyFile:    certs.KeyFile,
		CAFile:     certs.CAFile,
		ClientAuth: ClientAuthRequire,
	}).BuildServer()
	if err != nil {
		t.Fatalf("BuildServer: %v", err)
	}

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.TLS.PeerCertificates[0].Subject.CommonName)
	}))
	srv.TLS = serverCfg
	srv.StartTLS()
	defer srv.Close()

	alice := certs.CA.Issue(t, "alice")
	clientCfg, err := (&TLSConfig{CAFile: certs.CAFile, CertFile: alice.CertFile, KeyFile: alice.KeyFile}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: clientCfg}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "alice" {
		t.Errorf("expected 200 alice, got %d %q", resp.StatusCode, body)
	}

	stranger := tlstest.NewCA(t).Issue(t, "mallory")
	foreign := &http.Client{Transport: &http.Transport{TLSClientConfig: certs.CA.ClientConfig(stranger)}}
	if resp, err := foreign.Get(srv.URL); err == nil {
		resp.Body.Close()
		t.Error("expected handshake failure for a certificate from another CA")
	}

	anonymous := &http.Client{Transport: &http.Transport{TLSClientConfig: certs.ClientConfig()}}
	if resp, err := anonymous.Get(srv.URL); err == nil {
		resp.Body.Close()
		t.Error("expected handshake failure without a client certificate")
	}
}
