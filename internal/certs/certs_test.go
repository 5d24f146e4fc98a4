package certs

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(t *testing.T, cert tls.Certificate) *x509.Certificate {
	t.Helper()
	require.Len(t, cert.Certificate, 1)
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return parsed
}

func TestStore_Certificate(t *testing.T) {
	tests := []struct {
		setup      func(t *testing.T, dir string)
		name       string
		hosts      []string
		wantReused bool
	}{
		{
			name:  "issues when directory is missing",
			setup: func(*testing.T, string) {},
		},
		{
			name:  "covers extra hosts",
			hosts: []string{"ledger.internal", "10.0.0.5"},
			setup: func(*testing.T, string) {},
		},
		{
			name: "reissues garbage files",
			setup: func(t *testing.T, dir string) {
				t.Helper()
				require.NoError(t, os.MkdirAll(dir, 0o700))
				require.NoError(t, os.WriteFile(filepath.Join(dir, CertFileName), []byte("nope"), 0o600))
				require.NoError(t, os.WriteFile(filepath.Join(dir, KeyFileName), []byte("nope"), 0o600))
			},
		},
		{
			name: "reuses a valid certificate",
			setup: func(t *testing.T, dir string) {
				t.Helper()
				_, err := NewStore(dir).Certificate()
				require.NoError(t, err)
			},
			wantReused: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "certs")
			tt.setup(t, dir)

			var before []byte
			if tt.wantReused {
				var err error
				before, err = os.ReadFile(filepath.Join(dir, CertFileName))
				require.NoError(t, err)
			}

			store := NewStore(dir, tt.hosts...)
			cert, err := store.Certificate()
			require.NoError(t, err)

			parsed := leaf(t, cert)
			for _, h := range store.Hosts() {
				assert.NoError(t, parsed.VerifyHostname(h), h)
			}
			assert.WithinDuration(t, time.Now().Add(validity), parsed.NotAfter, time.Hour)

			info, err := os.Stat(filepath.Join(dir, KeyFileName))
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

			if tt.wantReused {
				after, err := os.ReadFile(filepath.Join(dir, CertFileName))
				require.NoError(t, err)
				assert.Equal(t, before, after)
			}
		})
	}
}

func TestStore_ReissuesNearExpiry(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	first, err := store.Certificate()
	require.NoError(t, err)

	store.now = func() time.Time { return time.Now().Add(validity - renewBefore/2) }
	second, err := store.Certificate()
	require.NoError(t, err)

	assert.NotEqual(t, leaf(t, first).SerialNumber, leaf(t, second).SerialNumber)
}

func TestStore_ReissuesForNewHost(t *testing.T) {
	dir := t.TempDir()
	_, err := NewStore(dir).Certificate()
	require.NoError(t, err)

	cert, err := NewStore(dir, "ledger.internal").Certificate()
	require.NoError(t, err)
	assert.NoError(t, leaf(t, cert).VerifyHostname("ledger.internal"))
}

func TestNewStore_Hosts(t *testing.T) {
	store := NewStore(t.TempDir(), "", "localhost", "box")
	assert.Equal(t, []string{"localhost", "127.0.0.1", "::1", "box"}, store.Hosts())
}

func TestStore_TLSConfig(t *testing.T) {
	cfg, err := NewStore(t.TempDir()).TLSConfig()
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}
