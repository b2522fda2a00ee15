package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowdiff/errors"
)

// generateCert creates a self-signed certificate with the given common name
func generateCert(t *testing.T, cn string) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"flowdiff"}, CommonName: cn},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM
}

type certFiles struct {
	cert, key, ca string
}

func writeCertFiles(t *testing.T, cn string) certFiles {
	t.Helper()
	dir := t.TempDir()
	certPEM, keyPEM := generateCert(t, cn)

	f := certFiles{
		cert: filepath.Join(dir, "cert.pem"),
		key:  filepath.Join(dir, "key.pem"),
		ca:   filepath.Join(dir, "ca.pem"),
	}
	require.NoError(t, os.WriteFile(f.cert, certPEM, 0o644))
	require.NoError(t, os.WriteFile(f.key, keyPEM, 0o600))
	require.NoError(t, os.WriteFile(f.ca, certPEM, 0o644))
	return f
}

func parseCert(t *testing.T, path string) *x509.Certificate {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	return cert
}

func TestLoadServerConfig(t *testing.T) {
	files := writeCertFiles(t, "localhost")

	tests := []struct {
		name       string
		cfg        ServerConfig
		wantNil    bool
		wantErr    bool
		minVersion uint16
		clientAuth tls.ClientAuthType
	}{
		{name: "disabled", cfg: ServerConfig{CertFile: files.cert}, wantNil: true},
		{
			name:       "tls 1.3",
			cfg:        ServerConfig{Enabled: true, CertFile: files.cert, KeyFile: files.key, MinVersion: "1.3"},
			minVersion: tls.VersionTLS13,
		},
		{
			name:       "default version",
			cfg:        ServerConfig{Enabled: true, CertFile: files.cert, KeyFile: files.key},
			minVersion: tls.VersionTLS12,
		},
		{
			name: "optional client certs",
			cfg: ServerConfig{Enabled: true, CertFile: files.cert, KeyFile: files.key,
				ClientCAFiles: []string{files.ca}},
			minVersion: tls.VersionTLS12,
			clientAuth: tls.VerifyClientCertIfGiven,
		},
		{
			name: "required client certs",
			cfg: ServerConfig{Enabled: true, CertFile: files.cert, KeyFile: files.key,
				ClientCAFiles: []string{files.ca}, RequireClientCert: true},
			minVersion: tls.VersionTLS12,
			clientAuth: tls.RequireAndVerifyClientCert,
		},
		{name: "missing cert", cfg: ServerConfig{Enabled: true, CertFile: "nope.pem", KeyFile: files.key}, wantErr: true},
		{
			name: "missing client ca",
			cfg: ServerConfig{Enabled: true, CertFile: files.cert, KeyFile: files.key,
				ClientCAFiles: []string{"nope.pem"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadServerConfig(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsFatal(err))
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Len(t, got.Certificates, 1)
			assert.Equal(t, tt.minVersion, got.MinVersion)
			assert.Equal(t, tt.clientAuth, got.ClientAuth)
		})
	}
}

func TestLoadServerConfig_InvalidPEM(t *testing.T) {
	files := writeCertFiles(t, "localhost")
	bogus := filepath.Join(t.TempDir(), "bogus.pem")
	require.NoError(t, os.WriteFile(bogus, []byte("not a certificate"), 0o644))

	_, err := LoadServerConfig(ServerConfig{
		Enabled: true, CertFile: files.cert, KeyFile: files.key, ClientCAFiles: []string{bogus},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PEM data")
}

func TestLoadServerConfig_AllowedCNs(t *testing.T) {
	server := writeCertFiles(t, "localhost")
	allowed := writeCertFiles(t, "editor")
	denied := writeCertFiles(t, "intruder")

	cfg, err := LoadServerConfig(ServerConfig{
		Enabled: true, CertFile: server.cert, KeyFile: server.key,
		ClientCAFiles: []string{allowed.ca}, AllowedClientCNs: []string{"editor"},
	})
	require.NoError(t, err)
	require.NotNil(t, cfg.VerifyPeerCertificate)

	assert.NoError(t, cfg.VerifyPeerCertificate(nil, [][]*x509.Certificate{{parseCert(t, allowed.cert)}}))
	err = cfg.VerifyPeerCertificate(nil, [][]*x509.Certificate{{parseCert(t, denied.cert)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in allowed list")
}

func TestVerifyAllowedClientCN_NoChains(t *testing.T) {
	err := verifyAllowedClientCN(nil, []string{"editor"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no verified certificate chains")
}

func TestLoadClientConfig(t *testing.T) {
	files := writeCertFiles(t, "flowdiffd")

	got, err := LoadClientConfig(ClientConfig{})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = LoadClientConfig(ClientConfig{Enabled: true, CAFiles: []string{files.ca}, MinVersion: "1.3"})
	require.NoError(t, err)
	require.NotNil(t, got.RootCAs)
	assert.Equal(t, uint16(tls.VersionTLS13), got.MinVersion)
	assert.Empty(t, got.Certificates)
	assert.False(t, got.InsecureSkipVerify)

	got, err = LoadClientConfig(ClientConfig{Enabled: true, CertFile: files.cert, KeyFile: files.key, InsecureSkipVerify: true})
	require.NoError(t, err)
	assert.Len(t, got.Certificates, 1)
	assert.True(t, got.InsecureSkipVerify)

	_, err = LoadClientConfig(ClientConfig{Enabled: true, CertFile: files.cert})
	assert.True(t, errors.IsFatal(err))

	_, err = LoadClientConfig(ClientConfig{Enabled: true, CAFiles: []string{"nope.pem"}})
	assert.True(t, errors.IsFatal(err))
}

func TestClone(t *testing.T) {
	s := ServerConfig{ClientCAFiles: []string{"a"}, AllowedClientCNs: []string{"b"}}
	sc := s.Clone()
	sc.ClientCAFiles[0] = "changed"
	sc.AllowedClientCNs[0] = "changed"
	assert.Equal(t, "a", s.ClientCAFiles[0])
	assert.Equal(t, "b", s.AllowedClientCNs[0])

	c := ClientConfig{CAFiles: []string{"a"}}
	cc := c.Clone()
	cc.CAFiles[0] = "changed"
	assert.Equal(t, "a", c.CAFiles[0])
}

func TestParseTLSVersion(t *testing.T) {
	assert.Equal(t, uint16(tls.VersionTLS13), parseTLSVersion("1.3"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("1.2"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion(""))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("1.0"))
}
