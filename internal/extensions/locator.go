package extensions

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	OIDAuthorityInfoAccess   = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 1}
	OIDCRLDistributionPoints = asn1.ObjectIdentifier{2, 5, 29, 31}
	OIDAccessMethodOCSP      = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1}
)

type Kind int

const (
	KindOCSP Kind = iota
	KindCRL
)

func (k Kind) String() string {
	switch k {
	case KindOCSP:
		return "OCSP"
	case KindCRL:
		return "CRL"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// DistributionURL is a revocation endpoint published in a certificate.
type DistributionURL struct {
	URL  string
	Kind Kind
}

// Locations holds the revocation endpoints of a certificate in the order the
// certificate lists them. That order is the order they are tried in.
type Locations struct {
	OCSP []string
	CRL  []string
}

func (l Locations) Empty() bool {
	return len(l.OCSP) == 0 && len(l.CRL) == 0
}

func (l Locations) All() []DistributionURL {
	all := make([]DistributionURL, 0, len(l.OCSP)+len(l.CRL))
	for _, url := range l.OCSP {
		all = append(all, DistributionURL{URL: url, Kind: KindOCSP})
	}
	for _, url := range l.CRL {
		all = append(all, DistributionURL{URL: url, Kind: KindCRL})
	}
	return all
}

type Locator struct {
	logger *zap.Logger
}

func NewLocator(logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{logger: logger}
}

// Locate never fails: a missing or undecodable extension contributes no URLs.
func (l *Locator) Locate(certificate *x509.Certificate) Locations {
	if certificate == nil {
		return Locations{}
	}
	return l.LocateExtensions(certificate.Extensions)
}

func (l *Locator) LocateExtensions(extensions []pkix.Extension) Locations {
	locations := Locations{}
	for _, extension := range extensions {
		switch {
		case extension.Id.Equal(OIDAuthorityInfoAccess):
			urls, parseAiaError := parseAuthorityInfoAccess(extension.Value)
			if parseAiaError != nil {
				l.logger.Warn("ignoring authority information access extension", zap.Error(parseAiaError))
				continue
			}
			locations.OCSP = append(locations.OCSP, urls...)
		case extension.Id.Equal(OIDCRLDistributionPoints):
			urls, parseCdpError := parseCRLDistributionPoints(extension.Value)
			if parseCdpError != nil {
				l.logger.Warn("ignoring crl distribution points extension", zap.Error(parseCdpError))
				continue
			}
			locations.CRL = append(locations.CRL, urls...)
		}
	}
	return locations
}

// AuthorityInfoAccessSyntax ::= SEQUENCE OF AccessDescription
// AccessDescription ::= SEQUENCE { accessMethod OBJECT IDENTIFIER, accessLocation GeneralName }
func parseAuthorityInfoAccess(value []byte) ([]string, error) {
	der, err := unwrapExtensionValue(value)
	if err != nil {
		return nil, err
	}
	descriptions, err := newDERReader(der).sequence()
	if err != nil {
		return nil, err
	}

	var urls []string
	for !descriptions.empty() {
		description, err := descriptions.sequence()
		if err != nil {
			return nil, err
		}
		method, err := description.objectIdentifier()
		if err != nil {
			return nil, err
		}
		uri, isURI, err := description.generalName()
		if err != nil {
			return nil, err
		}
		if !method.Equal(OIDAccessMethodOCSP) || !isURI || !isHTTP(uri) {
			continue
		}
		urls = append(urls, uri)
	}
	return urls, nil
}

// CRLDistributionPoints ::= SEQUENCE OF DistributionPoint
//
//	DistributionPoint ::= SEQUENCE {
//	    distributionPoint [0] DistributionPointName OPTIONAL,
//	    reasons           [1] ReasonFlags OPTIONAL,
//	    cRLIssuer         [2] GeneralNames OPTIONAL }
//
//	DistributionPointName ::= CHOICE {
//	    fullName                [0] GeneralNames,
//	    nameRelativeToCRLIssuer [1] RelativeDistinguishedName }
func parseCRLDistributionPoints(value []byte) ([]string, error) {
	der, err := unwrapExtensionValue(value)
	if err != nil {
		return nil, err
	}
	points, err := newDERReader(der).sequence()
	if err != nil {
		return nil, err
	}

	var urls []string
	for !points.empty() {
		point, err := points.sequence()
		if err != nil {
			return nil, err
		}
		if !point.peek(tagPointName) {
			continue
		}
		name, err := point.element(tagPointName, "distribution point name")
		if err != nil {
			return nil, err
		}
		// relative names carry no location
		if !name.peek(tagFullName) {
			continue
		}
		fullName, err := name.element(tagFullName, "full name")
		if err != nil {
			return nil, err
		}
		for !fullName.empty() {
			uri, isURI, err := fullName.generalName()
			if err != nil {
				return nil, err
			}
			if isURI && isHTTP(uri) {
				urls = append(urls, uri)
			}
		}
	}
	return urls, nil
}

// isHTTP matches case-sensitively, so "HTTP://" locations are skipped.
func isHTTP(uri string) bool {
	return strings.HasPrefix(uri, "http")
}
