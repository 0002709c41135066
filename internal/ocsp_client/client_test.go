package ocsp_client

import (
	"context"
	"crypto/x509"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/fetcher"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/ocsp_source"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/revocation"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/signingtime"
)

var revokedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	authority *ocsp_source.Authority
	source    *ocsp_source.CrlSource
	server    *httptest.Server
	client    *Client
	url       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	authority, err := ocsp_source.NewAuthority("OCSP Client Test CA")
	require.NoError(t, err)
	source, err := ocsp_source.NewCrlSource(authority)
	require.NoError(t, err)
	require.NoError(t, source.UseCrl([]x509.RevocationListEntry{
		{SerialNumber: big.NewInt(666), RevocationTime: revokedAt, ReasonCode: 1},
	}, time.Now()))
	server := httptest.NewServer(source.Handler())
	t.Cleanup(server.Close)
	return &fixture{
		authority: authority,
		source:    source,
		server:    server,
		client:    New(fetcher.New(server.Client(), 0, ""), time.Second, zaptest.NewLogger(t)),
		url:       server.URL + "/ocsp",
	}
}

func (f *fixture) issue(t *testing.T, serial int64) *x509.Certificate {
	t.Helper()
	certificate, err := f.authority.Issue(serial, []string{f.url}, nil)
	require.NoError(t, err)
	return certificate
}

func signedAt(instant time.Time) signingtime.Result {
	return signingtime.Result{Instant: instant}
}

func TestGoodCertificate(t *testing.T) {
	f := newFixture(t)
	signing := signedAt(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))

	result := f.client.Check(context.Background(), f.issue(t, 100), f.url, f.authority.Certificate, signing)

	assert.Equal(t, revocation.Good, result.Status)
	assert.Equal(t, revocation.MethodOCSP, result.Method)
	assert.Equal(t, f.url, result.Source)
	assert.False(t, result.HasRevocationTime())
	assert.Equal(t, signing.Instant, result.SigningTime)
	assert.Empty(t, result.Message)
}

func TestRevokedRelativeToSigningTime(t *testing.T) {
	f := newFixture(t)
	certificate := f.issue(t, 666)

	tests := []struct {
		name     string
		signing  signingtime.Result
		expected revocation.Status
		message  string
	}{
		{
			name:     "signed before revocation",
			signing:  signedAt(revokedAt.Add(-time.Second)),
			expected: revocation.Good,
			message:  "certificate was revoked after the signature was made",
		},
		{
			name:     "signed at the revocation instant",
			signing:  signedAt(revokedAt),
			expected: revocation.Revoked,
			message:  "signature was made while the certificate was already revoked",
		},
		{
			name:     "signed after revocation",
			signing:  signedAt(revokedAt.Add(48 * time.Hour)),
			expected: revocation.Revoked,
			message:  "signature was made while the certificate was already revoked",
		},
		{
			name: "checked against current time",
			signing: signingtime.Result{
				Instant:         revokedAt.Add(365 * 24 * time.Hour),
				ErrorMessage:    "signature Reference has an empty URI; the current time is used instead",
				UsedCurrentTime: true,
			},
			expected: revocation.Revoked,
			message:  "checked against the current time, so this conclusion is weaker: signature Reference has an empty URI",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.client.Check(context.Background(), certificate, f.url, f.authority.Certificate, tt.signing)

			assert.Equal(t, tt.expected, result.Status)
			assert.Equal(t, revocation.MethodOCSP, result.Method)
			assert.True(t, revokedAt.Equal(result.RevokedAt))
			assert.Equal(t, "keyCompromise", result.Reason)
			assert.Contains(t, result.Message, tt.message)
			assert.Equal(t, tt.signing.UsedCurrentTime, result.UsedFallbackTime)
		})
	}
}

func TestMissingIssuer(t *testing.T) {
	f := newFixture(t)

	result := f.client.Check(context.Background(), f.issue(t, 100), f.url, nil, signedAt(time.Now()))

	assert.Equal(t, revocation.Unknown, result.Status)
	assert.Contains(t, result.Message, "issuer certificate is required")
	assert.EqualValues(t, 0, f.source.OCSPRequests())
}

func TestNonSuccessfulResponse(t *testing.T) {
	f := newFixture(t)
	f.source.Refuse(true)

	result := f.client.Check(context.Background(), f.issue(t, 100), f.url, f.authority.Certificate, signedAt(time.Now()))

	assert.Equal(t, revocation.Unknown, result.Status)
	assert.Equal(t, `OCSP responder answered "unauthorized"`, result.Message)
}

func TestUndecodableResponse(t *testing.T) {
	f := newFixture(t)
	f.source.Corrupt(true)

	result := f.client.Check(context.Background(), f.issue(t, 100), f.url, f.authority.Certificate, signedAt(time.Now()))

	assert.Equal(t, revocation.Unknown, result.Status)
	assert.Contains(t, result.Message, "decoding OCSP response")
}

func TestWrongIssuer(t *testing.T) {
	f := newFixture(t)
	other, err := ocsp_source.NewAuthority("Unrelated CA")
	require.NoError(t, err)

	result := f.client.Check(context.Background(), f.issue(t, 100), f.url, other.Certificate, signedAt(time.Now()))

	assert.Equal(t, revocation.Unknown, result.Status)
}

func TestTransportFailures(t *testing.T) {
	f := newFixture(t)
	certificate := f.issue(t, 100)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()

	for _, url := range []string{failing.URL, closed.URL, "ldap://ldap.example.com/ocsp"} {
		result := f.client.Check(context.Background(), certificate, url, f.authority.Certificate, signedAt(time.Now()))
		assert.Equal(t, revocation.Unknown, result.Status, url)
		assert.Contains(t, result.Message, "OCSP request failed", url)
		assert.Equal(t, url, result.Source)
	}
}

func TestTimeout(t *testing.T) {
	f := newFixture(t)
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer slow.Close()
	client := New(fetcher.New(slow.Client(), 0, ""), 50*time.Millisecond, zaptest.NewLogger(t))

	result := client.Check(context.Background(), f.issue(t, 100), slow.URL, f.authority.Certificate, signedAt(time.Now()))

	assert.Equal(t, revocation.Unknown, result.Status)
}
