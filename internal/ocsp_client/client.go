package ocsp_client

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"mime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ocsp"

	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/fetcher"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/revocation"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/signingtime"
)

const (
	requestContentType  = "application/ocsp-request"
	responseContentType = "application/ocsp-response"

	DefaultTimeout = 10 * time.Second
)

// Client queries OCSP responders. It keeps no state between checks.
type Client struct {
	fetcher *fetcher.Fetcher
	timeout time.Duration
	logger  *zap.Logger
}

func New(httpFetcher *fetcher.Fetcher, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{fetcher: httpFetcher, timeout: timeout, logger: logger}
}

func (c *Client) Check(ctx context.Context, certificate *x509.Certificate, url string, issuer *x509.Certificate, signing signingtime.Result) revocation.Result {
	logger := c.logger.With(zap.String("url", url))
	if issuer == nil {
		return revocation.Inconclusive(revocation.MethodOCSP, url, signing, "issuer certificate is required to build the OCSP request")
	}

	// responders identify certificates by SHA-1 hashes of the issuer name and key
	request, createRequestError := ocsp.CreateRequest(certificate, issuer, &ocsp.RequestOptions{Hash: crypto.SHA1})
	if createRequestError != nil {
		return revocation.Inconclusive(revocation.MethodOCSP, url, signing, "building OCSP request: %v", createRequestError)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	response, postError := c.fetcher.Post(ctx, url, requestContentType, responseContentType, request)
	if postError != nil {
		logger.Warn("ocsp request failed", zap.Error(postError))
		return revocation.Inconclusive(revocation.MethodOCSP, url, signing, "OCSP request failed: %v", postError)
	}
	if mediaType, _, _ := mime.ParseMediaType(response.ContentType); mediaType != responseContentType {
		logger.Debug("unexpected ocsp response content type", zap.String("content_type", response.ContentType))
	}

	parsed, parseError := ocsp.ParseResponseForCert(response.Body, certificate, issuer)
	if parseError != nil {
		var responseError ocsp.ResponseError
		if errors.As(parseError, &responseError) {
			return revocation.Inconclusive(revocation.MethodOCSP, url, signing, "OCSP responder answered %q", responseError.Status.String())
		}
		logger.Warn("decoding ocsp response failed", zap.Error(parseError))
		return revocation.Inconclusive(revocation.MethodOCSP, url, signing, "decoding OCSP response: %v", parseError)
	}

	switch parsed.Status {
	case ocsp.Good:
		return revocation.NotRevoked(revocation.MethodOCSP, url, signing)
	case ocsp.Revoked:
		return revocation.Classify(revocation.MethodOCSP, url, signing, parsed.RevokedAt, revocation.ReasonString(parsed.RevocationReason))
	default:
		return revocation.Inconclusive(revocation.MethodOCSP, url, signing, "OCSP responder does not know the certificate")
	}
}
