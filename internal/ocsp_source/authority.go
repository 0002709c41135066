// Package ocsp_source is a local test PKI: a throwaway certification
// authority, an OCSP responder answering from its CRL, and the CRL itself over
// HTTP. Only tests import it; nothing here is meant for production traffic.
package ocsp_source

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"
)

// Authority is a throwaway certification authority for exercising revocation
// checks against real OCSP and CRL encodings.
type Authority struct {
	Certificate *x509.Certificate
	Key         crypto.Signer
}

func NewAuthority(commonName string) (*Authority, error) {
	key, generateKeyError := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if generateKeyError != nil {
		return nil, generateKeyError
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{"S-FIDE test"}},
		NotBefore:             now.Add(-24 * time.Hour),
		NotAfter:              now.Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, createCertificateError := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if createCertificateError != nil {
		return nil, createCertificateError
	}
	certificate, parseCertificateError := x509.ParseCertificate(der)
	if parseCertificateError != nil {
		return nil, parseCertificateError
	}
	return &Authority{Certificate: certificate, Key: key}, nil
}

// Issue signs a leaf certificate that publishes the given revocation sources.
func (a *Authority) Issue(serial int64, ocspURLs []string, crlURLs []string) (*x509.Certificate, error) {
	key, generateKeyError := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if generateKeyError != nil {
		return nil, generateKeyError
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: "signer " + big.NewInt(serial).String()},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		BasicConstraintsValid: true,
		OCSPServer:            ocspURLs,
		CRLDistributionPoints: crlURLs,
	}
	der, createCertificateError := x509.CreateCertificate(rand.Reader, template, a.Certificate, key.Public(), a.Key)
	if createCertificateError != nil {
		return nil, createCertificateError
	}
	return x509.ParseCertificate(der)
}

// RevocationList signs a CRL holding entries.
func (a *Authority) RevocationList(entries []x509.RevocationListEntry, thisUpdate time.Time) (*x509.RevocationList, error) {
	der, createCrlError := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:                    big.NewInt(thisUpdate.Unix()),
		ThisUpdate:                thisUpdate,
		NextUpdate:                thisUpdate.Add(24 * time.Hour),
		RevokedCertificateEntries: entries,
	}, a.Certificate, a.Key)
	if createCrlError != nil {
		return nil, createCrlError
	}
	return x509.ParseRevocationList(der)
}
