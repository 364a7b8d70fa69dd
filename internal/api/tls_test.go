package api

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
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
)

func TestTLSFromEnv(t *testing.T) {
	cases := []struct {
		name, cert, key string
		enabled         bool
	}{
		{"none", "", "", false},
		{"only cert", "/path/to/cert.pem", "", false},
		{"only key", "", "/path/to/key.pem", false},
		{"both", "/path/to/cert.pem", "/path/to/key.pem", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("SENTIENT_TLS_CERT", tc.cert)
			t.Setenv("SENTIENT_TLS_KEY", tc.key)
			cfg := TLSFromEnv()
			assert.Equal(t, tc.enabled, cfg.Enabled())
			if tc.enabled {
				assert.Equal(t, tc.cert, cfg.CertFile)
				assert.Equal(t, tc.key, cfg.KeyFile)
			}
		})
	}
}

func TestTLSLoadDisabled(t *testing.T) {
	var cfg *TLSConfig
	c, err := cfg.Load()
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestTLSLoadMissingFiles(t *testing.T) {
	cfg := &TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}
	_, err := cfg.Load()
	assert.Error(t, err)
}

func TestTLSLoadKeyPair(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)
	c, err := (&TLSConfig{CertFile: certFile, KeyFile: keyFile}).Load()
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Len(t, c.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), c.MinVersion)
}

func writeSelfSigned(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}
