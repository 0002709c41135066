// Package config holds the settings of the revocation checker. Values come
// from Default, optionally overlaid by a YAML file, then by command line
// flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/crl_client"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/fetcher"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/ocsp_client"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/probe"
	"github.com/Grupo-Sauken-S-A/S-FIDE/internal/truststore"
)

var ErrConfigurationError = errors.New("configuration error")

// ConfigError names the offending field.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrConfigurationError
}

func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

type ProbeConfig struct {
	// Address is a well known host:port dialled to tell "no network" apart
	// from "revocation service down".
	Address string        `yaml:"address"`
	Timeout time.Duration `yaml:"timeout"`
}

type ClientConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type HTTPConfig struct {
	ConnectTimeout  time.Duration `yaml:"connect-timeout"`
	MaxResponseSize int64         `yaml:"max-response-size"`
	UserAgent       string        `yaml:"user-agent"`
}

type TrustStoreConfig struct {
	// Path is optional; without it the issuer must be supplied directly.
	Path     string `yaml:"path"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Config struct {
	Probe      ProbeConfig      `yaml:"probe"`
	OCSP       ClientConfig     `yaml:"ocsp"`
	CRL        ClientConfig     `yaml:"crl"`
	HTTP       HTTPConfig       `yaml:"http"`
	TrustStore TrustStoreConfig `yaml:"trust-store"`
	Log        LogConfig        `yaml:"log"`
}

const (
	DefaultProbeAddress    = probe.DefaultAddress
	DefaultProbeTimeout    = probe.DefaultTimeout
	DefaultClientTimeout   = ocsp_client.DefaultTimeout
	DefaultConnectTimeout  = 5 * time.Second
	DefaultMaxResponseSize = fetcher.DefaultMaxResponseSize
	DefaultUserAgent       = fetcher.DefaultUserAgent
	DefaultTrustPassword   = truststore.DefaultPassword
	DefaultLogLevel        = "info"
)

func Default() *Config {
	return &Config{
		Probe: ProbeConfig{Address: DefaultProbeAddress, Timeout: DefaultProbeTimeout},
		OCSP:  ClientConfig{Timeout: DefaultClientTimeout},
		CRL:   ClientConfig{Timeout: crl_client.DefaultTimeout},
		HTTP: HTTPConfig{
			ConnectTimeout:  DefaultConnectTimeout,
			MaxResponseSize: DefaultMaxResponseSize,
			UserAgent:       DefaultUserAgent,
		},
		TrustStore: TrustStoreConfig{Password: DefaultTrustPassword},
		Log:        LogConfig{Level: DefaultLogLevel},
	}
}

// Load reads path over the defaults and validates the result. Keys not known
// to Config are rejected.
func Load(path string) (*Config, error) {
	content, readError := os.ReadFile(path)
	if readError != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("reading %s: %v", path, readError), Err: readError}
	}
	return Parse(content)
}

func Parse(content []byte) (*Config, error) {
	config := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if decodeError := decoder.Decode(config); decodeError != nil && !errors.Is(decodeError, io.EOF) {
		return nil, &ConfigError{Message: decodeError.Error(), Err: decodeError}
	}
	if validateError := config.Validate(); validateError != nil {
		return nil, validateError
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Probe.Address == "" {
		return NewConfigError("probe.address", "required field is missing")
	}
	timeouts := []struct {
		field string
		value time.Duration
	}{
		{"probe.timeout", c.Probe.Timeout},
		{"ocsp.timeout", c.OCSP.Timeout},
		{"crl.timeout", c.CRL.Timeout},
		{"http.connect-timeout", c.HTTP.ConnectTimeout},
	}
	for _, timeout := range timeouts {
		if timeout.value <= 0 {
			return NewConfigError(timeout.field, fmt.Sprintf("must be positive, got %s", timeout.value))
		}
	}
	if c.HTTP.MaxResponseSize <= 0 {
		return NewConfigError("http.max-response-size", fmt.Sprintf("must be positive, got %d", c.HTTP.MaxResponseSize))
	}
	if _, levelError := zapcore.ParseLevel(c.Log.Level); levelError != nil {
		return &ConfigError{Field: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level), Err: levelError}
	}
	return nil
}
