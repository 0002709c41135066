package main

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/config"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/ocsp_source"
)

var revokedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testPKI struct {
	dir       string
	authority *ocsp_source.Authority
	source    *ocsp_source.CrlSource
	server    *httptest.Server
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()
	authority, err := ocsp_source.NewAuthority("Command Test CA")
	require.NoError(t, err)
	source, err := ocsp_source.NewCrlSource(authority)
	require.NoError(t, err)
	require.NoError(t, source.UseCrl([]x509.RevocationListEntry{
		{SerialNumber: big.NewInt(666), RevocationTime: revokedAt, ReasonCode: 1},
	}, time.Now()))
	server := httptest.NewServer(source.Handler())
	t.Cleanup(server.Close)
	pki := &testPKI{dir: t.TempDir(), authority: authority, source: source, server: server}
	return pki
}

func (p *testPKI) write(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(p.dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func (p *testPKI) leaf(t *testing.T, serial int64) string {
	t.Helper()
	certificate, err := p.authority.Issue(serial, []string{p.server.URL + "/ocsp"}, []string{p.server.URL + "/crl"})
	require.NoError(t, err)
	return p.write(t, "leaf.pem", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certificate.Raw}))
}

func (p *testPKI) issuer(t *testing.T) string {
	return p.write(t, "issuer.der", p.authority.Certificate.Raw)
}

func (p *testPKI) args(extra ...string) []string {
	return append([]string{
		"--probe.address", strings.TrimPrefix(p.server.URL, "http://"),
		"--log.level", "error",
	}, extra...)
}

func TestExitCodes(t *testing.T) {
	pki := newTestPKI(t)

	tests := []struct {
		name     string
		serial   int64
		signing  time.Time
		expected int
	}{
		{"not revoked", 100, revokedAt, exitGood},
		{"revoked after signing", 666, revokedAt.Add(-time.Hour), exitGood},
		{"revoked before signing", 666, revokedAt.Add(time.Hour), exitRevoked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			code := run(pki.args(
				"--certificate", pki.leaf(t, tt.serial),
				"--issuer", pki.issuer(t),
				"--signing-time", tt.signing.Format(time.RFC3339),
			), &stderr)
			assert.Equal(t, tt.expected, code, stderr.String())
		})
	}
}

func TestIssuerFromTrustStore(t *testing.T) {
	pki := newTestPKI(t)
	anchors := pki.write(t, "anchors.pem", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: pki.authority.Certificate.Raw}))

	code := run(pki.args(
		"--certificate", pki.leaf(t, 666),
		"--trust-store.path", anchors,
		"--signing-time", revokedAt.Format(time.RFC3339),
	), &bytes.Buffer{})

	assert.Equal(t, exitRevoked, code)
	assert.EqualValues(t, 1, pki.source.OCSPRequests())
	assert.EqualValues(t, 0, pki.source.CRLRequests())
}

func TestSigningTimeFromPayload(t *testing.T) {
	pki := newTestPKI(t)
	// 08:30 in Buenos Aires is 11:30 UTC, before the revocation at 12:00 UTC
	payload := pki.write(t, "cod.xml", []byte(`<Envelope>
  <COD id="COD">
    <DeclarationDate>2024-05-01T08:30:00</DeclarationDate>
    <ExporterCountry>AR</ExporterCountry>
  </COD>
  <Signature xmlns="http://www.w3.org/2000/09/xmldsig#">
    <SignedInfo><Reference URI="#COD"/></SignedInfo>
  </Signature>
</Envelope>`))

	code := run(pki.args(
		"--certificate", pki.leaf(t, 666),
		"--issuer", pki.issuer(t),
		"--payload", payload,
	), &bytes.Buffer{})

	assert.Equal(t, exitGood, code)
}

func TestUnknownWhenSourcesFail(t *testing.T) {
	pki := newTestPKI(t)
	pki.source.Corrupt(true)
	textfile := filepath.Join(pki.dir, "revcheck.prom")

	code := run(pki.args(
		"--certificate", pki.leaf(t, 100),
		"--issuer", pki.issuer(t),
		"--metrics.textfile", textfile,
	), &bytes.Buffer{})

	assert.Equal(t, exitUnknown, code)
	exposition, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(exposition), "revcheck_decisions_total")
	assert.Contains(t, string(exposition), "revcheck_signing_time_fallbacks_total")
}

func TestConfigurationErrors(t *testing.T) {
	pki := newTestPKI(t)
	leaf := pki.leaf(t, 100)
	badConfig := pki.write(t, "bad.yaml", []byte("ocsp:\n  timeout: -1s\n"))

	tests := map[string][]string{
		"missing certificate":    {},
		"mutually exclusive":     {"--certificate", leaf, "--payload", leaf, "--signing-time", "2024-01-01T00:00:00Z"},
		"bad signing time":       {"--certificate", leaf, "--signing-time", "yesterday"},
		"invalid config file":    {"--certificate", leaf, "--config.file", badConfig},
		"invalid flag value":     {"--certificate", leaf, "--crl.timeout", "0s"},
		"certificate not parsed": {"--certificate", pki.write(t, "garbage.pem", []byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n"))},
		"trust store unreadable": {"--certificate", leaf, "--trust-store.path", filepath.Join(pki.dir, "missing.p12")},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, exitConfigError, run(pki.args(args...), &bytes.Buffer{}))
		})
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("probe:\n  address: 192.0.2.1:53\nocsp:\n  timeout: 7s\n"), 0o600))
	flags := config.Default()
	flags.OCSP.Timeout = 2 * time.Second

	cfg, err := loadConfig(path, flags, &overrides{ocspTimeout: true})
	require.NoError(t, err)

	assert.Equal(t, "192.0.2.1:53", cfg.Probe.Address)
	assert.Equal(t, 2*time.Second, cfg.OCSP.Timeout)
}
