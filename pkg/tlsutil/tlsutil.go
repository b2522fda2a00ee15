// Package tlsutil builds tls.Config values for the flowdiffd HTTP listener
// and its outbound NATS connection.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/flowdiff/errors"
)

// ServerConfig configures TLS for the HTTP listener
type ServerConfig struct {
	Enabled    bool   `json:"enabled"`
	CertFile   string `json:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty"`
	MinVersion string `json:"min_version,omitempty" validate:"omitempty,oneof=1.2 1.3"`

	// Client certificate verification
	ClientCAFiles     []string `json:"client_ca_files,omitempty"`
	RequireClientCert bool     `json:"require_client_cert,omitempty"`
	AllowedClientCNs  []string `json:"allowed_client_cns,omitempty"`
}

// ClientConfig configures TLS for outbound connections. The system CA pool
// is always trusted; CAFiles are added to it.
type ClientConfig struct {
	Enabled            bool     `json:"enabled"`
	CAFiles            []string `json:"ca_files,omitempty"`
	CertFile           string   `json:"cert_file,omitempty"`
	KeyFile            string   `json:"key_file,omitempty"`
	MinVersion         string   `json:"min_version,omitempty" validate:"omitempty,oneof=1.2 1.3"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"`
}

// Clone returns a copy that shares no slices with c
func (c ServerConfig) Clone() ServerConfig {
	c.ClientCAFiles = append([]string(nil), c.ClientCAFiles...)
	c.AllowedClientCNs = append([]string(nil), c.AllowedClientCNs...)
	return c
}

// Clone returns a copy that shares no slices with c
func (c ClientConfig) Clone() ClientConfig {
	c.CAFiles = append([]string(nil), c.CAFiles...)
	return c
}

// LoadServerConfig returns nil when TLS is disabled
func LoadServerConfig(cfg ServerConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerConfig", "load certificate")
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}

	if len(cfg.ClientCAFiles) == 0 {
		return tlsConfig, nil
	}

	clientCAs := x509.NewCertPool()
	if err := appendCAFiles(clientCAs, cfg.ClientCAFiles, "LoadServerConfig"); err != nil {
		return nil, err
	}
	tlsConfig.ClientCAs = clientCAs
	if cfg.RequireClientCert {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}

	if len(cfg.AllowedClientCNs) > 0 {
		allowed := append([]string(nil), cfg.AllowedClientCNs...)
		tlsConfig.VerifyPeerCertificate = func(_ [][]byte, chains [][]*x509.Certificate) error {
			return verifyAllowedClientCN(chains, allowed)
		}
	}
	return tlsConfig, nil
}

// LoadClientConfig returns nil when TLS is disabled
func LoadClientConfig(cfg ClientConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}
	if err := appendCAFiles(rootCAs, cfg.CAFiles, "LoadClientConfig"); err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		RootCAs:            rootCAs,
		MinVersion:         parseTLSVersion(cfg.MinVersion),
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func appendCAFiles(pool *x509.CertPool, files []string, method string) error {
	for _, caFile := range files {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return errors.WrapFatal(err, "tlsutil", method, fmt.Sprintf("read CA file %s", caFile))
		}
		if !pool.AppendCertsFromPEM(caPEM) {
			return errors.WrapFatal(fmt.Errorf("invalid PEM data"), "tlsutil", method,
				fmt.Sprintf("parse CA certificate from %s", caFile))
		}
	}
	return nil
}

func verifyAllowedClientCN(chains [][]*x509.Certificate, allowedCNs []string) error {
	if len(chains) == 0 || len(chains[0]) == 0 {
		return fmt.Errorf("no verified certificate chains")
	}
	cn := chains[0][0].Subject.CommonName
	for _, allowed := range allowedCNs {
		if cn == allowed {
			return nil
		}
	}
	return fmt.Errorf("client certificate CN %q not in allowed list", cn)
}

// parseTLSVersion defaults to TLS 1.2
func parseTLSVersion(version string) uint16 {
	if version == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}
