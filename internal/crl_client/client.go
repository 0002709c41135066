package crl_client

import (
	"context"
	"crypto/x509"
	"time"

	"go.uber.org/zap"

	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/fetcher"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/revocation"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/signingtime"
)

const DefaultTimeout = 10 * time.Second

// Client downloads CRLs and looks certificates up in them. Lists are not
// kept between checks.
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

func (c *Client) Check(ctx context.Context, certificate *x509.Certificate, url string, signing signingtime.Result) revocation.Result {
	logger := c.logger.With(zap.String("url", url))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	response, getError := c.fetcher.Get(ctx, url)
	if getError != nil {
		logger.Warn("crl download failed", zap.Error(getError))
		return revocation.Inconclusive(revocation.MethodCRL, url, signing, "downloading CRL: %v", getError)
	}

	crl, decodeError := DecodeCRL(response.Body)
	if decodeError != nil {
		logger.Warn("crl decode failed", zap.Error(decodeError))
		return revocation.Inconclusive(revocation.MethodCRL, url, signing, "processing CRL: %v", decodeError)
	}

	entry := findEntry(crl, certificate)
	if entry == nil {
		return revocation.NotRevoked(revocation.MethodCRL, url, signing)
	}
	return revocation.Classify(revocation.MethodCRL, url, signing, entry.RevocationTime, revocation.ReasonString(entry.ReasonCode))
}

func findEntry(crl *x509.RevocationList, certificate *x509.Certificate) *x509.RevocationListEntry {
	for i := range crl.RevokedCertificateEntries {
		entry := &crl.RevokedCertificateEntries[i]
		// if the serial number is not the one we are looking for, skip
		if entry.SerialNumber.Cmp(certificate.SerialNumber) != 0 {
			continue
		}
		return entry
	}
	return nil
}
