// Package revocation decides whether a signer certificate was revoked when a
// signature was made.
package revocation

import (
	"fmt"
	"time"

	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/signingtime"
)

type Status int

const (
	// Unknown is the zero value: a result nobody filled in is not conclusive.
	Unknown Status = iota
	Good
	Revoked
)

func (s Status) String() string {
	switch s {
	case Good:
		return "GOOD"
	case Revoked:
		return "REVOKED"
	case Unknown:
		return "UNKNOWN"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type Method string

const (
	MethodNone Method = ""
	MethodOCSP Method = "OCSP"
	MethodCRL  Method = "CRL"
)

const (
	messageRevokedAfterSigning = "certificate was revoked after the signature was made"
	messageSignedWhileRevoked  = "signature was made while the certificate was already revoked"
	messageCurrentTimePrefix   = "checked against the current time, so this conclusion is weaker: "
)

// Result is the outcome of one revocation check. Values are never modified
// after they are built.
type Result struct {
	Status Status
	Method Method
	// Source is the URL that answered, empty when no source was consulted.
	Source string
	// Message is a diagnostic for the reader, never an error for the caller.
	Message          string
	UsedFallbackTime bool
	// RevokedAt is zero unless the source reported a revocation.
	RevokedAt   time.Time
	Reason      string
	SigningTime time.Time
}

func (r Result) Conclusive() bool {
	return r.Status != Unknown
}

func (r Result) HasRevocationTime() bool {
	return !r.RevokedAt.IsZero()
}

// SignedAfterRevocation is how long after the revocation the signature was
// made; negative when it was made before. Zero without a revocation time.
func (r Result) SignedAfterRevocation() time.Duration {
	if !r.HasRevocationTime() {
		return 0
	}
	return r.SigningTime.Sub(r.RevokedAt)
}

// Classify relates a reported revocation to the signing instant. A signature
// made strictly before the revocation stays good; one made at or after the
// revocation instant is revoked.
func Classify(method Method, source string, signing signingtime.Result, revokedAt time.Time, reason string) Result {
	result := Result{
		Method:           method,
		Source:           source,
		UsedFallbackTime: signing.UsedCurrentTime,
		RevokedAt:        revokedAt.UTC(),
		Reason:           reason,
		SigningTime:      signing.Instant,
	}
	if signing.Instant.Before(revokedAt) {
		result.Status = Good
		result.Message = messageRevokedAfterSigning
		return result
	}
	result.Status = Revoked
	if signing.UsedCurrentTime {
		result.Message = messageCurrentTimePrefix + signing.ErrorMessage
	} else {
		result.Message = messageSignedWhileRevoked
	}
	return result
}

func NotRevoked(method Method, source string, signing signingtime.Result) Result {
	return Result{
		Status:           Good,
		Method:           method,
		Source:           source,
		UsedFallbackTime: signing.UsedCurrentTime,
		SigningTime:      signing.Instant,
	}
}

func Inconclusive(method Method, source string, signing signingtime.Result, format string, args ...any) Result {
	return Result{
		Status:           Unknown,
		Method:           method,
		Source:           source,
		Message:          fmt.Sprintf(format, args...),
		UsedFallbackTime: signing.UsedCurrentTime,
		SigningTime:      signing.Instant,
	}
}

var reasons = map[int]string{
	0:  "unspecified",
	1:  "keyCompromise",
	2:  "cACompromise",
	3:  "affiliationChanged",
	4:  "superseded",
	5:  "cessationOfOperation",
	6:  "certificateHold",
	8:  "removeFromCRL",
	9:  "privilegeWithdrawn",
	10: "aACompromise",
}

// ReasonString names an RFC 5280 CRLReason code.
func ReasonString(code int) string {
	if reason, ok := reasons[code]; ok {
		return reason
	}
	return fmt.Sprintf("unknown (%d)", code)
}
