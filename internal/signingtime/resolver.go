// Package signingtime works out when a signature was actually made, as opposed
// to when it is being verified.
package signingtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	XMLDSigNamespace = "http://www.w3.org/2000/09/xmldsig#"

	// LocalLayout is the zone-less timestamp format of the date fields.
	LocalLayout = "2006-01-02T15:04:05"

	exporterCountryField = "ExporterCountry"
	fallbackSuffix       = "; the current time is used instead"
)

// documentKinds maps the fragment a signature references to the field that
// holds its date.
var documentKinds = map[string]string{
	"COD":   "DeclarationDate",
	"CODEH": "CertificateDate",
}

// Result is the resolved signing instant. When UsedCurrentTime is set the
// instant is the verification time and ErrorMessage says why.
type Result struct {
	Instant         time.Time
	ErrorMessage    string
	UsedCurrentTime bool
}

type Resolver struct {
	clock  clockwork.Clock
	logger *zap.Logger
}

func NewResolver(clock clockwork.Clock, logger *zap.Logger) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{clock: clock, logger: logger}
}

func (r *Resolver) fallback(format string, args ...any) Result {
	reason := fmt.Sprintf(format, args...)
	r.logger.Warn("signing time unavailable, falling back to current time", zap.String("reason", reason))
	return Result{
		Instant:         r.clock.Now().UTC(),
		ErrorMessage:    reason + fallbackSuffix,
		UsedCurrentTime: true,
	}
}

// ResolveClaimed accepts a signing time the signature container already
// states, such as the signing date of a PDF signature.
func (r *Resolver) ResolveClaimed(claimed time.Time) Result {
	if claimed.IsZero() {
		return r.fallback("signature does not state a signing time")
	}
	return Result{Instant: claimed.UTC()}
}

// ResolveDocument parses an XML document and resolves its first XML-DSig
// signature.
func (r *Resolver) ResolveDocument(document []byte) Result {
	doc := etree.NewDocument()
	if readError := doc.ReadFromBytes(document); readError != nil {
		return r.fallback("reading signed document: %v", readError)
	}
	signature := findSignature(doc)
	if signature == nil {
		return r.fallback("document contains no Signature element")
	}
	return r.ResolveSignature(signature)
}

func (r *Resolver) ResolveSignature(signature *etree.Element) Result {
	if signature == nil {
		return r.fallback("no Signature element given")
	}
	reference := firstInNamespace(signature.FindElements(".//Reference"), XMLDSigNamespace)
	if reference == nil {
		return r.fallback("signature has no Reference element")
	}
	uri := strings.TrimSpace(reference.SelectAttrValue("URI", ""))
	if uri == "" {
		return r.fallback("signature Reference has an empty URI")
	}
	kind := strings.TrimPrefix(uri, "#")

	dateField, known := documentKinds[kind]
	if !known {
		return r.fallback("signature Reference URI %q does not name a known document kind", uri)
	}

	root := documentRoot(signature)
	date, reason := fieldText(root, dateField)
	if reason != "" {
		return r.fallback("%s in %s document", reason, kind)
	}
	country, reason := fieldText(root, exporterCountryField)
	if reason != "" {
		return r.fallback("%s in %s document", reason, kind)
	}

	instant, convertError := LocalToInstant(date, country)
	if convertError != nil {
		return r.fallback("converting %s of %s document: %v", dateField, kind, convertError)
	}
	return Result{Instant: instant}
}

// fieldText returns the trimmed text of the first element named field, or a
// reason why there is none.
func fieldText(root *etree.Element, field string) (string, string) {
	element := root.FindElement(".//" + field)
	if element == nil && root.Tag == field {
		element = root
	}
	if element == nil {
		return "", fmt.Sprintf("%s element not found", field)
	}
	text := strings.TrimSpace(element.Text())
	if text == "" {
		return "", fmt.Sprintf("%s element is empty", field)
	}
	return text, ""
}

func findSignature(doc *etree.Document) *etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	if root.Tag == "Signature" && root.NamespaceURI() == XMLDSigNamespace {
		return root
	}
	return firstInNamespace(root.FindElements(".//Signature"), XMLDSigNamespace)
}

func firstInNamespace(elements []*etree.Element, namespace string) *etree.Element {
	for _, element := range elements {
		if element.NamespaceURI() == namespace {
			return element
		}
	}
	return nil
}

func documentRoot(element *etree.Element) *etree.Element {
	for {
		parent := element.Parent()
		// the document node is an untagged element without a parent
		if parent == nil || (parent.Parent() == nil && parent.Tag == "") {
			return element
		}
		element = parent
	}
}
