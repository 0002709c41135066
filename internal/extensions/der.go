package extensions

import (
	"encoding/asn1"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var ErrMalformed = errors.New("malformed extension")

var (
	tagURI       = cryptobyte_asn1.Tag(6).ContextSpecific()
	tagFullName  = cryptobyte_asn1.Tag(0).Constructed().ContextSpecific()
	tagPointName = cryptobyte_asn1.Tag(0).Constructed().ContextSpecific()
	tagOctets    = cryptobyte_asn1.OCTET_STRING
	tagSequence  = cryptobyte_asn1.SEQUENCE
)

// derReader walks one level of a DER structure. Every read consumes a whole
// element, so a reader over a SEQUENCE body yields its members in order.
type derReader struct {
	input cryptobyte.String
}

func newDERReader(der []byte) *derReader {
	return &derReader{input: cryptobyte.String(der)}
}

func (r *derReader) empty() bool {
	return r.input.Empty()
}

func (r *derReader) peek(tag cryptobyte_asn1.Tag) bool {
	return r.input.PeekASN1Tag(tag)
}

func (r *derReader) sequence() (*derReader, error) {
	return r.element(tagSequence, "sequence")
}

func (r *derReader) octetString() ([]byte, error) {
	var octets cryptobyte.String
	if !r.input.ReadASN1(&octets, tagOctets) {
		return nil, fmt.Errorf("%w: expected octet string", ErrMalformed)
	}
	return octets, nil
}

func (r *derReader) objectIdentifier() (asn1.ObjectIdentifier, error) {
	var oid asn1.ObjectIdentifier
	if !r.input.ReadASN1ObjectIdentifier(&oid) {
		return nil, fmt.Errorf("%w: expected object identifier", ErrMalformed)
	}
	return oid, nil
}

// element reads a constructed element with the given tag and returns a reader
// over its body.
func (r *derReader) element(tag cryptobyte_asn1.Tag, what string) (*derReader, error) {
	var body cryptobyte.String
	if !r.input.ReadASN1(&body, tag) {
		return nil, fmt.Errorf("%w: expected %s", ErrMalformed, what)
	}
	return &derReader{input: body}, nil
}

// generalName reads one GeneralName. Only the uniformResourceIdentifier
// alternative is returned; any other alternative is consumed and reported
// with ok == false.
func (r *derReader) generalName() (uri string, ok bool, err error) {
	if r.input.PeekASN1Tag(tagURI) {
		var value cryptobyte.String
		if !r.input.ReadASN1(&value, tagURI) {
			return "", false, fmt.Errorf("%w: truncated uri", ErrMalformed)
		}
		return string(value), true, nil
	}
	return "", false, r.skip()
}

func (r *derReader) skip() error {
	var tag cryptobyte_asn1.Tag
	var skipped cryptobyte.String
	if !r.input.ReadAnyASN1(&skipped, &tag) {
		return fmt.Errorf("%w: truncated element", ErrMalformed)
	}
	return nil
}

// unwrapExtensionValue strips the outer OCTET STRING some toolkits leave
// around an extension value. Bare values (a SEQUENCE) are returned as is.
func unwrapExtensionValue(value []byte) ([]byte, error) {
	reader := newDERReader(value)
	if !reader.peek(tagOctets) {
		return value, nil
	}
	inner, err := reader.octetString()
	if err != nil {
		return nil, err
	}
	if !reader.empty() {
		return nil, fmt.Errorf("%w: trailing data after extension value", ErrMalformed)
	}
	return inner, nil
}
