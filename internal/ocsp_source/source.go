package ocsp_source

import (
	"crypto/x509"
	"math/big"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	cfocsp "github.com/cloudflare/cfssl/ocsp"
	"golang.org/x/crypto/ocsp"
)

// CrlSource answers OCSP requests from the authority's current CRL and serves
// that CRL too.
type CrlSource struct {
	authority *Authority

	mu      sync.RWMutex
	crl     *x509.RevocationList
	refuse  bool
	corrupt bool

	ocspRequests atomic.Int64
	crlRequests  atomic.Int64
}

func NewCrlSource(authority *Authority) (*CrlSource, error) {
	source := &CrlSource{authority: authority}
	if useCrlError := source.UseCrl(nil, time.Now()); useCrlError != nil {
		return nil, useCrlError
	}
	return source, nil
}

// UseCrl replaces the current CRL with one signed now over entries.
func (source *CrlSource) UseCrl(entries []x509.RevocationListEntry, thisUpdate time.Time) error {
	crl, createCrlError := source.authority.RevocationList(entries, thisUpdate)
	if createCrlError != nil {
		return createCrlError
	}
	source.mu.Lock()
	source.crl = crl
	source.mu.Unlock()
	return nil
}

// Refuse makes the responder answer every request with "unauthorized".
func (source *CrlSource) Refuse(refuse bool) {
	source.mu.Lock()
	source.refuse = refuse
	source.mu.Unlock()
}

// Corrupt makes both endpoints return bytes that are not DER.
func (source *CrlSource) Corrupt(corrupt bool) {
	source.mu.Lock()
	source.corrupt = corrupt
	source.mu.Unlock()
}

func (source *CrlSource) OCSPRequests() int64 {
	return source.ocspRequests.Load()
}

func (source *CrlSource) CRLRequests() int64 {
	return source.crlRequests.Load()
}

func (source *CrlSource) currentCrl() *x509.RevocationList {
	source.mu.RLock()
	defer source.mu.RUnlock()
	return source.crl
}

func (source *CrlSource) Response(request *ocsp.Request) ([]byte, http.Header, error) {
	source.mu.RLock()
	crl, refuse := source.crl, source.refuse
	source.mu.RUnlock()
	if refuse {
		return nil, nil, cfocsp.ErrNotFound
	}

	var buildResponseError error
	var response []byte

	for _, entry := range crl.RevokedCertificateEntries {
		// if the serial number is not the one we are looking for, skip
		if entry.SerialNumber.Cmp(request.SerialNumber) != 0 {
			continue
		}
		response, buildResponseError = source.buildRevokedResponse(entry.SerialNumber, entry.RevocationTime, entry.ReasonCode)
		break
	}
	if len(response) == 0 && buildResponseError == nil {
		response, buildResponseError = source.buildOkResponse(request.SerialNumber)
	}
	if buildResponseError != nil {
		return nil, nil, buildResponseError
	}

	return response, nil, nil
}

func (source *CrlSource) buildRevokedResponse(serialNumber *big.Int, revocationTime time.Time, reason int) ([]byte, error) {
	return source.buildResponse(ocsp.Response{
		SerialNumber:     serialNumber,
		Status:           ocsp.Revoked,
		ThisUpdate:       time.Now(),
		NextUpdate:       time.Now().Add(time.Hour),
		RevokedAt:        revocationTime,
		RevocationReason: reason,
	})
}

func (source *CrlSource) buildOkResponse(serialNumber *big.Int) ([]byte, error) {
	return source.buildResponse(ocsp.Response{
		SerialNumber: serialNumber,
		Status:       ocsp.Good,
		ThisUpdate:   time.Now(),
		NextUpdate:   time.Now().Add(time.Hour),
	})
}

// the authority signs its own responses, so no responder certificate is
// embedded
func (source *CrlSource) buildResponse(template ocsp.Response) ([]byte, error) {
	return ocsp.CreateResponse(
		source.authority.Certificate,
		source.authority.Certificate,
		template,
		source.authority.Key)
}
