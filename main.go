package main

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/config"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/crl_client"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/fetcher"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/logging"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/metrics"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/ocsp_client"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/probe"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/revocation"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/signingtime"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/truststore"
)

const (
	exitGood          = 0
	exitRevoked       = 1
	exitUnknown       = 2
	exitConfigError   = 3
	signingTimeLayout = time.RFC3339
)

type input struct {
	certificatePath string
	issuerPath      string
	payloadPath     string
	signingTime     string
	configFile      string
	metricsTextfile string
}

// overrides records which flags the user set, so only those replace values
// from the configuration file.
type overrides struct {
	probeAddress, probeTimeout         bool
	ocspTimeout, crlTimeout            bool
	connectTimeout, maxResponseSize    bool
	userAgent                          bool
	trustStorePath, trustStorePassword bool
	logLevel, logDevelopment           bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	in := &input{}
	flags := config.Default()
	set := &overrides{}

	app := kingpin.New("revcheck", "Revocation status of a signer certificate at signing time")
	app.HelpFlag.Short('h')
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)
	app.Terminate(nil)
	app.Flag("certificate", "Path to the signer certificate (PEM or DER)").Envar("REVCHECK_CERTIFICATE").Required().ExistingFileVar(&in.certificatePath)
	app.Flag("issuer", "Path to the issuer certificate (PEM or DER)").Envar("REVCHECK_ISSUER").ExistingFileVar(&in.issuerPath)
	app.Flag("payload", "Path to the signed XML document the signing time is read from").Envar("REVCHECK_PAYLOAD").ExistingFileVar(&in.payloadPath)
	app.Flag("signing-time", "Signing time claimed by the container, RFC 3339").Envar("REVCHECK_SIGNING_TIME").StringVar(&in.signingTime)
	app.Flag("config.file", "Path to a YAML configuration file").Envar("REVCHECK_CONFIG_FILE").ExistingFileVar(&in.configFile)
	app.Flag("metrics.textfile", "Write metrics to this file in the text exposition format").Envar("REVCHECK_METRICS_TEXTFILE").StringVar(&in.metricsTextfile)
	app.Flag("probe.address", "Address dialled to check network connectivity").Envar("REVCHECK_PROBE_ADDRESS").IsSetByUser(&set.probeAddress).StringVar(&flags.Probe.Address)
	app.Flag("probe.timeout", "Timeout of the connectivity probe").Envar("REVCHECK_PROBE_TIMEOUT").IsSetByUser(&set.probeTimeout).DurationVar(&flags.Probe.Timeout)
	app.Flag("ocsp.timeout", "Timeout of one OCSP request").Envar("REVCHECK_OCSP_TIMEOUT").IsSetByUser(&set.ocspTimeout).DurationVar(&flags.OCSP.Timeout)
	app.Flag("crl.timeout", "Timeout of one CRL download").Envar("REVCHECK_CRL_TIMEOUT").IsSetByUser(&set.crlTimeout).DurationVar(&flags.CRL.Timeout)
	app.Flag("http.connect-timeout", "Timeout for establishing HTTP connections").Envar("REVCHECK_HTTP_CONNECT_TIMEOUT").IsSetByUser(&set.connectTimeout).DurationVar(&flags.HTTP.ConnectTimeout)
	app.Flag("http.max-response-size", "Largest OCSP response or CRL accepted, in bytes").Envar("REVCHECK_HTTP_MAX_RESPONSE_SIZE").IsSetByUser(&set.maxResponseSize).Int64Var(&flags.HTTP.MaxResponseSize)
	app.Flag("http.user-agent", "User-Agent of outbound requests").Envar("REVCHECK_HTTP_USER_AGENT").IsSetByUser(&set.userAgent).StringVar(&flags.HTTP.UserAgent)
	app.Flag("trust-store.path", "PKCS#12 trust store or PEM bundle used to find issuer certificates").Envar("REVCHECK_TRUST_STORE_PATH").IsSetByUser(&set.trustStorePath).StringVar(&flags.TrustStore.Path)
	app.Flag("trust-store.password", "Password of the PKCS#12 trust store").Envar("REVCHECK_TRUST_STORE_PASSWORD").IsSetByUser(&set.trustStorePassword).StringVar(&flags.TrustStore.Password)
	app.Flag("log.level", "Log level").Envar("REVCHECK_LOG_LEVEL").IsSetByUser(&set.logLevel).StringVar(&flags.Log.Level)
	app.Flag("log.development", "Human readable console logs").Envar("REVCHECK_LOG_DEVELOPMENT").IsSetByUser(&set.logDevelopment).BoolVar(&flags.Log.Development)
	if _, parseError := app.Parse(args); parseError != nil {
		fmt.Fprintf(stderr, "revcheck: %v\n", parseError)
		return exitConfigError
	}
	if in.payloadPath != "" && in.signingTime != "" {
		fmt.Fprintln(stderr, "revcheck: --payload and --signing-time are mutually exclusive")
		return exitConfigError
	}

	cfg, loadConfigError := loadConfig(in.configFile, flags, set)
	if loadConfigError != nil {
		fmt.Fprintf(stderr, "revcheck: %v\n", loadConfigError)
		return exitConfigError
	}

	logger, newLoggerError := logging.New(cfg.Log.Level, cfg.Log.Development)
	if newLoggerError != nil {
		fmt.Fprintf(stderr, "revcheck: %v\n", newLoggerError)
		return exitConfigError
	}
	defer logger.Sync()

	if in.metricsTextfile != "" {
		defer func() {
			if writeError := prometheus.WriteToTextfile(in.metricsTextfile, prometheus.DefaultGatherer); writeError != nil {
				logger.Error("failed to write metrics textfile", zap.String("path", in.metricsTextfile), zap.Error(writeError))
			}
		}()
	}

	certificate, loadCertificateError := loadCertificate(in.certificatePath)
	if loadCertificateError != nil {
		logger.Error("failed to load certificate", zap.String("path", in.certificatePath), zap.Error(loadCertificateError))
		return exitConfigError
	}
	var issuer *x509.Certificate
	if in.issuerPath != "" {
		var loadIssuerError error
		issuer, loadIssuerError = loadCertificate(in.issuerPath)
		if loadIssuerError != nil {
			logger.Error("failed to load issuer certificate", zap.String("path", in.issuerPath), zap.Error(loadIssuerError))
			return exitConfigError
		}
	}

	engineConfig := revocation.EngineConfig{Logger: logger}
	if cfg.TrustStore.Path != "" {
		store, loadStoreError := truststore.Load(cfg.TrustStore.Path, cfg.TrustStore.Password)
		if loadStoreError != nil {
			logger.Error("failed to load trust store", zap.String("path", cfg.TrustStore.Path), zap.Error(loadStoreError))
			return exitConfigError
		}
		logger.Debug("loaded trust store", zap.String("path", cfg.TrustStore.Path), zap.Int("certificates", store.Len()))
		engineConfig.Issuers = store
	}

	signing, resolveError := resolveSigningTime(signingtime.NewResolver(clockwork.NewRealClock(), logger), in)
	if resolveError != nil {
		logger.Error("failed to read signing time", zap.Error(resolveError))
		return exitConfigError
	}
	if signing.UsedCurrentTime {
		logger.Warn("signing time not resolved, checking against the current time", zap.String("reason", signing.ErrorMessage))
	}

	client := newHTTPClient(cfg.HTTP.ConnectTimeout)
	engineConfig.Probe = probe.New(cfg.Probe.Address, cfg.Probe.Timeout)
	engineConfig.OCSP = ocsp_client.New(
		fetcher.New(metrics.InstrumentClient(client, metrics.KindOCSP), cfg.HTTP.MaxResponseSize, cfg.HTTP.UserAgent),
		cfg.OCSP.Timeout,
		logger)
	engineConfig.CRL = crl_client.New(
		fetcher.New(metrics.InstrumentClient(client, metrics.KindCRL), cfg.HTTP.MaxResponseSize, cfg.HTTP.UserAgent),
		cfg.CRL.Timeout,
		logger)
	engine := revocation.NewEngine(engineConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	result := engine.Decide(ctx, certificate, issuer, signing)

	switch result.Status {
	case revocation.Good:
		return exitGood
	case revocation.Revoked:
		return exitRevoked
	default:
		return exitUnknown
	}
}

func loadConfig(path string, flags *config.Config, set *overrides) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var loadError error
		if cfg, loadError = config.Load(path); loadError != nil {
			return nil, loadError
		}
	}

	// environment variables reach the flags as defaults, so a value that
	// differs from the built-in default counts as set too
	defaults := config.Default()
	apply := func(isSet bool, differs bool, assign func()) {
		if isSet || differs {
			assign()
		}
	}
	apply(set.probeAddress, flags.Probe.Address != defaults.Probe.Address, func() { cfg.Probe.Address = flags.Probe.Address })
	apply(set.probeTimeout, flags.Probe.Timeout != defaults.Probe.Timeout, func() { cfg.Probe.Timeout = flags.Probe.Timeout })
	apply(set.ocspTimeout, flags.OCSP.Timeout != defaults.OCSP.Timeout, func() { cfg.OCSP.Timeout = flags.OCSP.Timeout })
	apply(set.crlTimeout, flags.CRL.Timeout != defaults.CRL.Timeout, func() { cfg.CRL.Timeout = flags.CRL.Timeout })
	apply(set.connectTimeout, flags.HTTP.ConnectTimeout != defaults.HTTP.ConnectTimeout, func() { cfg.HTTP.ConnectTimeout = flags.HTTP.ConnectTimeout })
	apply(set.maxResponseSize, flags.HTTP.MaxResponseSize != defaults.HTTP.MaxResponseSize, func() { cfg.HTTP.MaxResponseSize = flags.HTTP.MaxResponseSize })
	apply(set.userAgent, flags.HTTP.UserAgent != defaults.HTTP.UserAgent, func() { cfg.HTTP.UserAgent = flags.HTTP.UserAgent })
	apply(set.trustStorePath, flags.TrustStore.Path != defaults.TrustStore.Path, func() { cfg.TrustStore.Path = flags.TrustStore.Path })
	apply(set.trustStorePassword, flags.TrustStore.Password != defaults.TrustStore.Password, func() { cfg.TrustStore.Password = flags.TrustStore.Password })
	apply(set.logLevel, flags.Log.Level != defaults.Log.Level, func() { cfg.Log.Level = flags.Log.Level })
	apply(set.logDevelopment, flags.Log.Development != defaults.Log.Development, func() { cfg.Log.Development = flags.Log.Development })

	if validateError := cfg.Validate(); validateError != nil {
		return nil, validateError
	}
	return cfg, nil
}

func resolveSigningTime(resolver *signingtime.Resolver, in *input) (signingtime.Result, error) {
	switch {
	case in.payloadPath != "":
		payload, readPayloadError := os.ReadFile(in.payloadPath)
		if readPayloadError != nil {
			return signingtime.Result{}, readPayloadError
		}
		return resolver.ResolveDocument(payload), nil
	case in.signingTime != "":
		claimed, parseError := time.Parse(signingTimeLayout, in.signingTime)
		if parseError != nil {
			return signingtime.Result{}, fmt.Errorf("parsing --signing-time: %w", parseError)
		}
		return resolver.ResolveClaimed(claimed), nil
	}
	return resolver.ResolveClaimed(time.Time{}), nil
}

// if the file contains a pem block, decode it
// otherwise, assume it is a DER encoded certificate
func loadCertificate(path string) (*x509.Certificate, error) {
	content, readError := os.ReadFile(path)
	if readError != nil {
		return nil, readError
	}
	der := content
	if bytes.Contains(content, []byte("BEGIN")) {
		block, _ := pem.Decode(content)
		if block == nil {
			return nil, errors.New("failed to decode certificate")
		}
		der = block.Bytes
	}
	return x509.ParseCertificate(der)
}

func newHTTPClient(connectTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	return &http.Client{Transport: transport}
}
