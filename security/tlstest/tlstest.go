// Package tlstest issues throwaway certificates for tests of https
// connectors and TLS clients. Files are written to t.TempDir().
//
//	certs := tlstest.GenerateTLSCerts(t)
//	cfg.Server.ApplicationConnectors[0].TLS = &security.TLSConfig{
//	    CertFile: certs.CertFile,
//	    KeyFile:  certs.KeyFile,
//	}
//	client := &http.Client{Transport: &http.Transport{TLSClientConfig: certs.ClientConfig()}}
//
// Mutual TLS tests issue a separate client certificate from the same CA:
//
//	alice := certs.CA.Issue(t, "alice")
package tlstest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

const validity = 24 * time.Hour

// CA is a self-signed certificate authority.
type CA struct {
	// File is the CA certificate PEM, usable as a caFile.
	File string
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey
	Pool *x509.CertPool

	dir    string
	serial atomic.Int64
}

// Leaf is a certificate issued by a CA.
type Leaf struct {
	CertFile    string
	KeyFile     string
	Certificate tls.Certificate
}

// NewCA creates a CA whose files live in a fresh t.TempDir().
func NewCA(t testing.TB) *CA {
	t.Helper()
	key := generateKey(t)
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"gowizard Test CA"}, CommonName: "gowizard Test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("tlstest: create CA cert: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("tlstest: parse CA cert: %v", err)
	}

	ca := &CA{Cert: cert, Key: key, Pool: x509.NewCertPool(), dir: t.TempDir()}
	ca.Pool.AddCert(cert)
	ca.serial.Store(1)
	ca.File = filepath.Join(ca.dir, "ca.pem")
	writePEM(t, ca.File, "CERTIFICATE", der)
	return ca
}

// Issue signs a certificate for name that is valid for both server and
// client authentication. Hosts that parse as IPs become IP SANs, the others
// DNS SANs; without hosts the certificate names only its CN.
func (ca *CA) Issue(t testing.TB, name string, hosts ...string) *Leaf {
	t.Helper()
	key := generateKey(t)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(ca.serial.Add(1)),
		Subject:      pkix.Name{Organization: []string{"gowizard Test"}, CommonName: name},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}
	der, err := x509.CreateCertificate(rand.Reader, template, ca.Cert, &key.PublicKey, ca.Key)
	if err != nil {
		t.Fatalf("tlstest: issue %s: %v", name, err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("tlstest: marshal key of %s: %v", name, err)
	}

	prefix := fmt.Sprintf("%s-%d", name, template.SerialNumber.Int64())
	leaf := &Leaf{
		CertFile: filepath.Join(ca.dir, prefix+".pem"),
		KeyFile:  filepath.Join(ca.dir, prefix+"-key.pem"),
	}
	writePEM(t, leaf.CertFile, "CERTIFICATE", der)
	writePEM(t, leaf.KeyFile, "EC PRIVATE KEY", keyDER)
	if leaf.Certificate, err = tls.LoadX509KeyPair(leaf.CertFile, leaf.KeyFile); err != nil {
		t.Fatalf("tlstest: load key pair of %s: %v", name, err)
	}
	return leaf
}

// ClientConfig returns a client configuration trusting ca that presents
// leaf, when given, as its client certificate.
func (ca *CA) ClientConfig(leaf *Leaf) *tls.Config {
	cfg := &tls.Config{RootCAs: ca.Pool, MinVersion: tls.VersionTLS12}
	if leaf != nil {
		cfg.Certificates = []tls.Certificate{leaf.Certificate}
	}
	return cfg
}

// TLSCerts is a CA plus a localhost certificate it issued.
type TLSCerts struct {
	CA *CA

	CAFile   string
	CertFile string
	KeyFile  string
	// ServerTLS is the localhost key pair.
	ServerTLS tls.Certificate
	CertPool  *x509.CertPool
}

// GenerateTLSCerts creates a CA and a certificate for localhost, 127.0.0.1
// and ::1.
func GenerateTLSCerts(t testing.TB) *TLSCerts {
	t.Helper()
	ca := NewCA(t)
	leaf := ca.Issue(t, "localhost", "localhost", "127.0.0.1", "::1")
	return &TLSCerts{
		CA:        ca,
		CAFile:    ca.File,
		CertFile:  leaf.CertFile,
		KeyFile:   leaf.KeyFile,
		ServerTLS: leaf.Certificate,
		CertPool:  ca.Pool,
	}
}

// ClientConfig returns a client configuration trusting the CA, without a
// client certificate.
func (c *TLSCerts) ClientConfig() *tls.Config { return c.CA.ClientConfig(nil) }

// WriteInvalidPEM writes a file that looks like a PEM certificate but does
// not parse.
func WriteInvalidPEM(t testing.TB, filename string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), filename)
	content := []byte("-----BEGIN CERTIFICATE-----\nnot-valid-base64-data\n-----END CERTIFICATE-----\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("tlstest: write invalid PEM: %v", err)
	}
	return path
}

func generateKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("tlstest: generate key: %v", err)
	}
	return key
}

func writePEM(t testing.TB, path, blockType string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: data}), 0o600); err != nil {
		t.Fatalf("tlstest: write %s: %v", path, err)
	}
}
