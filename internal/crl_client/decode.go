package crl_client

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

var ErrDecodeCRL = errors.New("failed to decode crl")

// DecodeCRL accepts a DER encoded list or a single PEM block holding one.
func DecodeCRL(content []byte) (*x509.RevocationList, error) {
	der := content
	if bytes.Contains(content, []byte("-----BEGIN")) {
		block, rest := pem.Decode(content)
		if block == nil {
			return nil, fmt.Errorf("%w: no pem block", ErrDecodeCRL)
		}
		if len(bytes.TrimSpace(rest)) > 0 {
			return nil, fmt.Errorf("%w: trailing data after pem block", ErrDecodeCRL)
		}
		der = block.Bytes
	}

	crl, parseCrlError := x509.ParseRevocationList(der)
	if parseCrlError != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeCRL, parseCrlError)
	}
	return crl, nil
}
