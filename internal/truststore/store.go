// Package truststore holds the trust anchors used to find issuer
// certificates the signature container did not carry.
package truststore

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"software.sslmate.com/src/go-pkcs12"
)

var ErrNoCertificates = errors.New("trust store holds no certificates")

// DefaultPassword is the customary password of Java cacerts stores.
const DefaultPassword = pkcs12.DefaultPassword

// Store is read-only once built and safe for concurrent use.
type Store struct {
	certificates []*x509.Certificate
}

func New(certificates ...*x509.Certificate) *Store {
	store := &Store{}
	for _, certificate := range certificates {
		if certificate != nil {
			store.certificates = append(store.certificates, certificate)
		}
	}
	return store
}

// Load reads a PEM bundle, or a PKCS#12 trust store protected by password.
func Load(path string, password string) (*Store, error) {
	content, readError := os.ReadFile(path)
	if readError != nil {
		return nil, fmt.Errorf("reading trust store: %w", readError)
	}
	if bytes.Contains(content, []byte("-----BEGIN")) {
		return ParsePEM(content)
	}
	return ParsePKCS12(content, password)
}

func ParsePKCS12(content []byte, password string) (*Store, error) {
	certificates, decodeError := pkcs12.DecodeTrustStore(content, password)
	if decodeError != nil {
		return nil, fmt.Errorf("decoding pkcs12 trust store: %w", decodeError)
	}
	if len(certificates) == 0 {
		return nil, ErrNoCertificates
	}
	return New(certificates...), nil
}

func ParsePEM(content []byte) (*Store, error) {
	var certificates []*x509.Certificate
	for {
		var block *pem.Block
		block, content = pem.Decode(content)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		certificate, parseError := x509.ParseCertificate(block.Bytes)
		if parseError != nil {
			return nil, fmt.Errorf("parsing trust store certificate: %w", parseError)
		}
		certificates = append(certificates, certificate)
	}
	if len(certificates) == 0 {
		return nil, ErrNoCertificates
	}
	return New(certificates...), nil
}

func (s *Store) Len() int {
	return len(s.certificates)
}

// Issuer returns the anchor whose subject is the issuer of certificate. When
// several anchors share that subject, one whose key verifies the certificate
// signature is preferred.
func (s *Store) Issuer(certificate *x509.Certificate) *x509.Certificate {
	if s == nil || certificate == nil {
		return nil
	}
	var nameMatch *x509.Certificate
	for _, candidate := range s.certificates {
		if !bytes.Equal(candidate.RawSubject, certificate.RawIssuer) {
			continue
		}
		if certificate.CheckSignatureFrom(candidate) == nil {
			return candidate
		}
		if nameMatch == nil {
			nameMatch = candidate
		}
	}
	return nameMatch
}
