// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package config

import (
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/cms"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/tsa"
	x509certs "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/certs"
	x509fetch "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/fetch"
)

const (
	// EnvConfigFile names the configuration file when Load gets no path.
	EnvConfigFile = "CMS_TRUST_CONFIG_FILE"

	// EnvTSAPassword overrides tsa.password.
	EnvTSAPassword = "CMS_TRUST_TSA_PASSWORD"
)

// format represents supported configuration file formats.
type format int

const (
	// formatJSON represents JSON configuration format (.json)
	formatJSON format = iota
	// formatYAML represents YAML configuration format (.yaml, .yml)
	formatYAML
)

// Config is the configuration shared by the CLI and the MCP server.
//
// It is loaded from a JSON or YAML file, with defaults applied for any
// missing values. Supported file extensions: .json, .yaml, .yml
type Config struct {
	// HTTP: settings of every revocation data client
	HTTP struct {
		// TimeoutSeconds: per request timeout
		TimeoutSeconds int `json:"timeoutSeconds" yaml:"timeoutSeconds"`
		// UserAgent: overrides the default User-Agent
		UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
		// MaxBodyBytes: response body limit
		MaxBodyBytes int64 `json:"maxBodyBytes,omitempty" yaml:"maxBodyBytes,omitempty"`
	} `json:"http" yaml:"http"`

	// Trust: trust anchors and chain completion
	Trust struct {
		// Anchors: PEM, DER or PKCS#7 files holding trusted certificates
		Anchors []string `json:"anchors,omitempty" yaml:"anchors,omitempty"`
		// MaxChainLength: completion stops at this many certificates
		MaxChainLength int `json:"maxChainLength" yaml:"maxChainLength"`
	} `json:"trust" yaml:"trust"`

	// Revocation: where CRL and OCSP evidence comes from
	Revocation struct {
		// Online: fetch CRLs and OCSP responses when offline evidence is
		// inconclusive
		Online bool `json:"online" yaml:"online"`
		// CRLURLs: extra distribution points used by the online CRL client
		CRLURLs []string `json:"crlUrls,omitempty" yaml:"crlUrls,omitempty"`
		// CRLFiles: CRLs supplied offline
		CRLFiles []string `json:"crlFiles,omitempty" yaml:"crlFiles,omitempty"`
	} `json:"revocation" yaml:"revocation"`

	// TSA: RFC 3161 timestamp authority
	TSA struct {
		URL      string `json:"url,omitempty" yaml:"url,omitempty"`
		Username string `json:"username,omitempty" yaml:"username,omitempty"`
		// Password: can also be set via CMS_TRUST_TSA_PASSWORD
		Password string `json:"password,omitempty" yaml:"password,omitempty"`
		// Digest: imprint algorithm (sha256, sha384, sha512)
		Digest string `json:"digest" yaml:"digest"`
		// Policy: requested TSA policy OID
		Policy  string `json:"policy,omitempty" yaml:"policy,omitempty"`
		CertReq bool   `json:"certReq" yaml:"certReq"`
		// Required: fail signing when no token can be obtained
		Required bool `json:"required" yaml:"required"`
	} `json:"tsa" yaml:"tsa"`

	// Signing: signature container settings
	Signing struct {
		// Digest: sha256, sha384, sha512 or shake256
		Digest string `json:"digest" yaml:"digest"`
		// Mode: cms or cades
		Mode string `json:"mode" yaml:"mode"`
		// EstimatedSize: reserved container size in bytes; 0 estimates it
		EstimatedSize int `json:"estimatedSize,omitempty" yaml:"estimatedSize,omitempty"`
		// PSS: sign RSA keys with RSASSA-PSS
		PSS bool `json:"pss" yaml:"pss"`
		// Policy: explicit signature policy, omitted when ID is empty
		Policy struct {
			ID            string `json:"id,omitempty" yaml:"id,omitempty"`
			Hash          string `json:"hash,omitempty" yaml:"hash,omitempty"`
			HashAlgorithm string `json:"hashAlgorithm,omitempty" yaml:"hashAlgorithm,omitempty"`
			URI           string `json:"uri,omitempty" yaml:"uri,omitempty"`
		} `json:"policy" yaml:"policy"`
	} `json:"signing" yaml:"signing"`

	// Cache: CRL cache
	Cache struct {
		MaxSize                int `json:"maxSize" yaml:"maxSize"`
		MaxAgeHours            int `json:"maxAgeHours" yaml:"maxAgeHours"`
		CleanupIntervalMinutes int `json:"cleanupIntervalMinutes" yaml:"cleanupIntervalMinutes"`
	} `json:"cache" yaml:"cache"`

	// Metrics: Prometheus endpoint of the MCP server
	Metrics struct {
		// Listen: address such as ":9090"; empty disables the endpoint
		Listen string `json:"listen,omitempty" yaml:"listen,omitempty"`
	} `json:"metrics" yaml:"metrics"`

	// Log: logging behaviour
	Log struct {
		// Silent: suppress MCP server logs on stderr
		Silent bool `json:"silent" yaml:"silent"`
	} `json:"log" yaml:"log"`
}

// Default returns a Config holding only defaults.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.HTTP.TimeoutSeconds <= 0 {
		c.HTTP.TimeoutSeconds = 10
	}
	if c.Trust.MaxChainLength <= 0 {
		c.Trust.MaxChainLength = 10
	}
	if c.TSA.Digest == "" {
		c.TSA.Digest = "sha256"
	}
	if c.Signing.Digest == "" {
		c.Signing.Digest = "sha256"
	}
	if c.Signing.Mode == "" {
		c.Signing.Mode = "cms"
	}
	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = x509fetch.DefaultCRLCacheConfig.MaxSize
	}
	if c.Cache.MaxAgeHours <= 0 {
		c.Cache.MaxAgeHours = int(x509fetch.DefaultCRLCacheConfig.MaxAge / time.Hour)
	}
	if c.Cache.CleanupIntervalMinutes <= 0 {
		c.Cache.CleanupIntervalMinutes = 60
	}
}

// detectFormat determines the configuration file format based on file
// extension, matched case-insensitively. Anything else is JSON.
func detectFormat(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

// unmarshal decodes data in the given format into c.
func unmarshal(data []byte, c *Config, f format) error {
	switch f {
	case formatYAML:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %w", err)
		}
	}
	return nil
}

// Load reads the configuration from path, or from the file named by
// CMS_TRUST_CONFIG_FILE when path is empty, or returns defaults when
// neither is set.
//
// Configuration Priority:
//  1. Default values
//  2. Config file values (format detected from the extension)
//  3. Environment overrides (CMS_TRUST_TSA_PASSWORD)
//
// The result is validated before it is returned.
func Load(path string) (*Config, error) {
	c := &Config{}

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := unmarshal(data, c, detectFormat(path)); err != nil {
			return nil, err
		}
	}

	c.applyDefaults()

	if password := os.Getenv(EnvTSAPassword); password != "" {
		c.TSA.Password = password
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the fields that are parsed into typed values.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.DigestAlgorithm(); err != nil {
		errs = append(errs, fmt.Errorf("signing.digest: %w", err))
	}
	if _, err := c.Mode(); err != nil {
		errs = append(errs, fmt.Errorf("signing.mode: %w", err))
	}
	if c.Signing.EstimatedSize < 0 {
		errs = append(errs, errors.New("signing.estimatedSize: must not be negative"))
	}
	if _, err := c.SignaturePolicy(); err != nil {
		errs = append(errs, fmt.Errorf("signing.policy: %w", err))
	}
	if c.TSA.URL != "" {
		if _, err := c.TSAConfig(); err != nil {
			errs = append(errs, fmt.Errorf("tsa: %w", err))
		}
	}
	return errors.Join(errs...)
}

// HTTPConfig builds the HTTP settings of the revocation data clients.
func (c *Config) HTTPConfig(version string) *x509fetch.HTTPConfig {
	h := x509fetch.NewHTTPConfig(version)
	h.Timeout = time.Duration(c.HTTP.TimeoutSeconds) * time.Second
	h.UserAgent = c.HTTP.UserAgent
	h.MaxBodySize = c.HTTP.MaxBodyBytes
	return h
}

// CRLCacheConfig returns the CRL cache settings.
func (c *Config) CRLCacheConfig() x509fetch.CRLCacheConfig {
	return x509fetch.CRLCacheConfig{
		MaxSize: c.Cache.MaxSize,
		MaxAge:  time.Duration(c.Cache.MaxAgeHours) * time.Hour,
	}
}

// CleanupInterval returns how often expired CRLs are dropped.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Cache.CleanupIntervalMinutes) * time.Minute
}

// DigestAlgorithm returns the signing digest.
func (c *Config) DigestAlgorithm() (cms.DigestAlgorithm, error) {
	return cms.ParseDigestAlgorithm(c.Signing.Digest)
}

// Mode returns the container mode.
func (c *Config) Mode() (cms.Mode, error) {
	return cms.ParseMode(c.Signing.Mode)
}

// SignaturePolicy returns the configured policy, or nil when none is set.
func (c *Config) SignaturePolicy() (*cms.SignaturePolicyInfo, error) {
	p := c.Signing.Policy
	if p.ID == "" {
		return nil, nil
	}
	alg := p.HashAlgorithm
	if alg == "" {
		alg = c.Signing.Digest
	}
	return cms.NewSignaturePolicyInfoBase64(p.ID, p.Hash, alg, p.URI)
}

// TSAConfig returns the timestamp client settings.
func (c *Config) TSAConfig() (tsa.Config, error) {
	digest, err := cms.ParseDigestAlgorithm(c.TSA.Digest)
	if err != nil {
		return tsa.Config{}, err
	}
	cfg := tsa.Config{
		URL:      c.TSA.URL,
		Username: c.TSA.Username,
		Password: c.TSA.Password,
		Digest:   digest,
		CertReq:  c.TSA.CertReq,
	}
	if c.TSA.Policy != "" {
		if cfg.Policy, err = cms.ParseOID(c.TSA.Policy); err != nil {
			return tsa.Config{}, err
		}
	}
	return cfg, nil
}

// LoadAnchors reads the trust anchor files.
func (c *Config) LoadAnchors() ([]*x509.Certificate, error) {
	if len(c.Trust.Anchors) == 0 {
		return nil, nil
	}
	return x509certs.ReadFiles(c.Trust.Anchors...)
}

// LoadCRLs reads the offline CRL files as DER.
func (c *Config) LoadCRLs() ([][]byte, error) {
	crls := make([][]byte, 0, len(c.Revocation.CRLFiles))
	for _, path := range c.Revocation.CRLFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read CRL file: %w", err)
		}
		der, err := x509certs.RevocationListDER(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		crls = append(crls, der)
	}
	return crls, nil
}
