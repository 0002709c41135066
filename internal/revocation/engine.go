package revocation

import (
	"context"
	"crypto/x509"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/extensions"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/metrics"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/signingtime"
)

type Prober interface {
	IsReachable(ctx context.Context) bool
}

type OCSPChecker interface {
	Check(ctx context.Context, certificate *x509.Certificate, url string, issuer *x509.Certificate, signing signingtime.Result) Result
}

type CRLChecker interface {
	Check(ctx context.Context, certificate *x509.Certificate, url string, signing signingtime.Result) Result
}

// IssuerResolver finds the issuer of a certificate when the caller could not
// supply it.
type IssuerResolver interface {
	Issuer(certificate *x509.Certificate) *x509.Certificate
}

type EngineConfig struct {
	Probe   Prober
	Locator *extensions.Locator
	OCSP    OCSPChecker
	CRL     CRLChecker
	// Issuers is optional.
	Issuers IssuerResolver
	Logger  *zap.Logger
}

// Engine holds no mutable state; one Engine may decide for many signatures
// concurrently.
type Engine struct {
	probe   Prober
	locator *extensions.Locator
	ocsp    OCSPChecker
	crl     CRLChecker
	issuers IssuerResolver
	logger  *zap.Logger
}

func NewEngine(config EngineConfig) *Engine {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locator := config.Locator
	if locator == nil {
		locator = extensions.NewLocator(logger)
	}
	return &Engine{
		probe:   config.Probe,
		locator: locator,
		ocsp:    config.OCSP,
		crl:     config.CRL,
		issuers: config.Issuers,
		logger:  logger,
	}
}

// Decide tries every OCSP responder of the certificate in order, then every
// CRL distribution point, and returns the first conclusive answer. It never
// fails: anything that prevents a conclusion yields an Unknown result.
func (e *Engine) Decide(ctx context.Context, certificate *x509.Certificate, issuer *x509.Certificate, signing signingtime.Result) Result {
	result := e.decide(ctx, certificate, issuer, signing)

	metrics.ObserveDecision(result.Status.String(), string(result.Method))
	if signing.UsedCurrentTime {
		metrics.SigningTimeFallbacks.Inc()
	}
	fields := []zap.Field{
		zap.Stringer("status", result.Status),
		zap.String("method", string(result.Method)),
		zap.String("source", result.Source),
		zap.Time("signing_time", result.SigningTime),
		zap.Bool("used_fallback_time", result.UsedFallbackTime),
	}
	if result.HasRevocationTime() {
		fields = append(fields, zap.Time("revoked_at", result.RevokedAt), zap.String("reason", result.Reason))
	}
	if result.Message != "" {
		fields = append(fields, zap.String("message", result.Message))
	}
	e.logger.Info("revocation decision", fields...)
	return result
}

func (e *Engine) decide(ctx context.Context, certificate *x509.Certificate, issuer *x509.Certificate, signing signingtime.Result) Result {
	if certificate == nil {
		return Inconclusive(MethodNone, "", signing, "no certificate to check")
	}
	// locating is pure, so a certificate without sources costs no network
	locations := e.locator.Locate(certificate)
	if locations.Empty() {
		return Inconclusive(MethodNone, "", signing, "certificate publishes no OCSP responder or CRL distribution point")
	}
	if e.probe != nil && !e.probe.IsReachable(ctx) {
		return Inconclusive(MethodNone, "", signing, "no network connection, revocation status cannot be checked")
	}

	if issuer == nil && e.issuers != nil && len(locations.OCSP) > 0 {
		issuer = e.issuers.Issuer(certificate)
		if issuer == nil {
			e.logger.Warn("issuer certificate not found in trust store", zap.String("issuer", certificate.Issuer.String()))
		}
	}

	var diagnostics []string
	for _, location := range locations.All() {
		var attempt Result
		switch {
		case location.Kind == extensions.KindOCSP && e.ocsp != nil:
			attempt = e.ocsp.Check(ctx, certificate, location.URL, issuer, signing)
		case location.Kind == extensions.KindCRL && e.crl != nil:
			attempt = e.crl.Check(ctx, certificate, location.URL, signing)
		default:
			continue
		}
		if attempt.Conclusive() {
			return attempt
		}
		e.logger.Warn("revocation source inconclusive",
			zap.Stringer("kind", location.Kind),
			zap.String("url", location.URL),
			zap.String("message", attempt.Message))
		diagnostics = append(diagnostics, fmt.Sprintf("%s %s: %s", location.Kind, location.URL, attempt.Message))
	}

	if len(diagnostics) == 0 {
		return Inconclusive(MethodNone, "", signing, "no revocation checker configured for the published sources")
	}
	return Inconclusive(MethodNone, "", signing, "no revocation source gave a conclusive answer: %s", strings.Join(diagnostics, "; "))
}
