// Package fetcher performs the bounded HTTP exchanges of the OCSP and CRL
// clients.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

var (
	ErrFetchFailed       = errors.New("fetch failed")
	ErrUnexpectedStatus  = errors.New("unexpected HTTP status")
	ErrResponseTooLarge  = errors.New("response too large")
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
)

const (
	DefaultMaxResponseSize = 10 * 1024 * 1024
	DefaultUserAgent       = "s-fide-revcheck/1.0"
)

type Response struct {
	Body        []byte
	ContentType string
}

type Fetcher struct {
	client          *http.Client
	maxResponseSize int64
	userAgent       string
}

func New(client *http.Client, maxResponseSize int64, userAgent string) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if maxResponseSize <= 0 {
		maxResponseSize = DefaultMaxResponseSize
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Fetcher{
		client:          client,
		maxResponseSize: maxResponseSize,
		userAgent:       userAgent,
	}
}

func (f *Fetcher) Get(ctx context.Context, target string) (*Response, error) {
	request, err := f.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	return f.do(request)
}

func (f *Fetcher) Post(ctx context.Context, target string, contentType string, accept string, body []byte) (*Response, error) {
	request, err := f.newRequest(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", contentType)
	if accept != "" {
		request.Header.Set("Accept", accept)
	}
	return f.do(request)
}

func (f *Fetcher) newRequest(ctx context.Context, method string, target string, body io.Reader) (*http.Request, error) {
	parsedURL, parseError := url.Parse(target)
	if parseError != nil {
		return nil, fmt.Errorf("%w: invalid URL: %v", ErrFetchFailed, parseError)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, parsedURL.Scheme)
	}
	request, requestError := http.NewRequestWithContext(ctx, method, target, body)
	if requestError != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, requestError)
	}
	request.Header.Set("User-Agent", f.userAgent)
	return request, nil
}

func (f *Fetcher) do(request *http.Request) (*Response, error) {
	response, doError := f.client.Do(request)
	if doError != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, doError)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, response.StatusCode)
	}

	// one extra byte tells a body of exactly the limit from a longer one
	body, readError := io.ReadAll(io.LimitReader(response.Body, f.maxResponseSize+1))
	if readError != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrFetchFailed, readError)
	}
	if int64(len(body)) > f.maxResponseSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, f.maxResponseSize)
	}
	return &Response{Body: body, ContentType: response.Header.Get("Content-Type")}, nil
}
