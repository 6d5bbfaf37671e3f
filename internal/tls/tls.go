// Package tls builds the server TLS configuration for the HTTP trigger
// surface, optionally generating a self-signed certificate.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	tlsCaCrt = "tls_ca.crt"
	tlsCrt   = "tls.crt"
	tlsKey   = "tls.key"
)

// Config is the [server.tls] section.
type Config struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	CertFile string `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `toml:"key_file" mapstructure:"key_file"`
	// Dir holds tls.crt and tls.key when CertFile/KeyFile are unset.
	Dir          string `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool   `toml:"auto_generate" mapstructure:"auto_generate"`
	// MinVersion is "1.2" or "1.3" (default).
	MinVersion string   `toml:"min_version" mapstructure:"min_version"`
	DNSNames   []string `toml:"dns_names" mapstructure:"dns_names"`
	ValidDays  int      `toml:"valid_days" mapstructure:"valid_days"`
}

// parseTLSVersion parses TLS version string and returns the corresponding constant
func parseTLSVersion(ver string) (uint16, error) {
	switch strings.ToLower(strings.TrimSpace(ver)) {
	case "", "default", "1.3", "tls1.3":
		return tls.VersionTLS13, nil
	case "1.2", "tls1.2":
		return tls.VersionTLS12, nil
	}
	return 0, fmt.Errorf("unsupported TLS version %q", ver)
}

// getCertificationFunc reads the key pair on every handshake so a renewed
// certificate is picked up without a restart.
func getCertificationFunc(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		certificate, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, err
		}
		return &certificate, nil
	}
}

// Setup returns nil when TLS is disabled. Explicit cert/key files win over
// Dir; with AutoGenerate a missing pair in Dir is created first.
func Setup(c Config) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	minVer, err := parseTLSVersion(c.MinVersion)
	if err != nil {
		return nil, err
	}

	certPath, keyPath := c.CertFile, c.KeyFile
	switch {
	case certPath != "" && keyPath != "":
	case c.Dir != "":
		certPath = filepath.Join(c.Dir, tlsCrt)
		keyPath = filepath.Join(c.Dir, tlsKey)
		if c.AutoGenerate && !certificatesExist(certPath, keyPath) {
			if err := generateCertificate(c); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	default:
		return nil, errors.New("TLS enabled but neither cert_file/key_file nor dir is set")
	}

	// fail at startup rather than on the first handshake
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		GetCertificate: getCertificationFunc(certPath, keyPath),
		MinVersion:     minVer,
	}, nil
}

// certificatesExist checks if both certificate files exist
func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func generateCertificate(c Config) error {
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	names := c.DNSNames
	if len(names) == 0 {
		names = []string{"localhost", "127.0.0.1"}
	}
	validDays := c.ValidDays
	if validDays <= 0 {
		validDays = 365
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   names[0],
		Organization: "relaunchr",
		Hosts:        names,
		NotAfter:     time.Now().AddDate(0, 0, validDays),
		CertPath:     filepath.Join(c.Dir, tlsCrt),
		KeyPath:      filepath.Join(c.Dir, tlsKey),
		CACertPath:   filepath.Join(c.Dir, tlsCaCrt),
	})
}
