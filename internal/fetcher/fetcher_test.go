package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "unit-test", r.UserAgent())
		w.Header().Set("Content-Type", "application/pkix-crl")
		w.Write([]byte("crl bytes"))
	}))
	defer server.Close()

	response, err := New(server.Client(), 0, "unit-test").Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, []byte("crl bytes"), response.Body)
	assert.Equal(t, "application/pkix-crl", response.ContentType)
}

func TestPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/ocsp-request", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/ocsp-response", r.Header.Get("Accept"))
		assert.Equal(t, DefaultUserAgent, r.UserAgent())
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	}))
	defer server.Close()

	response, err := New(nil, 0, "").Post(context.Background(), server.URL, "application/ocsp-request", "application/ocsp-response", []byte("request"))

	require.NoError(t, err)
	assert.Equal(t, []byte("request"), response.Body)
}

func TestErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/large":
			w.Write([]byte(strings.Repeat("x", 64)))
		case "/exact":
			w.Write([]byte(strings.Repeat("x", 32)))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		}
	}))
	defer server.Close()

	f := New(server.Client(), 32, "")
	ctx := context.Background()

	_, err := f.Get(ctx, server.URL+"/missing")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	_, err = f.Get(ctx, server.URL+"/large")
	assert.ErrorIs(t, err, ErrResponseTooLarge)

	response, err := f.Get(ctx, server.URL+"/exact")
	require.NoError(t, err)
	assert.Len(t, response.Body, 32)

	_, err = f.Get(ctx, "ldap://ldap.example.com/cn=crl")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = f.Get(ctx, "http://[::1")
	assert.ErrorIs(t, err, ErrFetchFailed)

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = f.Get(timeout, server.URL+"/slow")
	assert.ErrorIs(t, err, ErrFetchFailed)
}
