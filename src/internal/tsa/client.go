// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package tsa

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/asn1"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/cms"
	x509fetch "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/fetch"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
)

const (
	// DefaultTokenSizeEstimate is reported before the first token arrives.
	DefaultTokenSizeEstimate = 4096

	// tokenSizeMargin is added to the last token length.
	tokenSizeMargin = 32

	nonceBits = 64
)

// Config configures a Client.
type Config struct {
	URL      string
	Username string
	Password string
	// Digest hashes the data to timestamp; SHA-256 when zero.
	Digest cms.DigestAlgorithm
	// Policy is the requested TSA policy, if any.
	Policy asn1.ObjectIdentifier
	// CertReq asks the TSA to embed its certificate.
	CertReq bool
}

// Client requests RFC 3161 timestamp tokens over HTTP.
//
// Thread Safety: Safe for concurrent use. The size estimate follows the
// most recent token whichever goroutine obtained it.
type Client struct {
	cfg  Config
	http *x509fetch.HTTPConfig
	log  logger.Logger

	mu       sync.Mutex
	estimate int
}

// NewClient creates a Client.
func NewClient(cfg Config, httpCfg *x509fetch.HTTPConfig, log logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("tsa: URL is required")
	}
	if cfg.Digest == 0 {
		cfg.Digest = cms.SHA256
	}
	if !cfg.Digest.Valid() {
		return nil, fmt.Errorf("tsa: %w: %s", cms.ErrUnsupportedAlgorithm, cfg.Digest)
	}
	if httpCfg == nil {
		httpCfg = x509fetch.NewHTTPConfig("")
	}
	return &Client{
		cfg:      cfg,
		http:     httpCfg,
		log:      logger.WithPrefix(logger.OrNop(log), "tsa"),
		estimate: DefaultTokenSizeEstimate,
	}, nil
}

// TokenSizeEstimate returns the space to reserve for the next token.
func (c *Client) TokenSizeEstimate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimate
}

// Timestamp hashes data with the configured digest and returns a token
// over it. It implements cms.Timestamper.
func (c *Client) Timestamp(ctx context.Context, data []byte) ([]byte, error) {
	token, err := c.TimestampDigest(ctx, c.cfg.Digest.Sum(data))
	if err != nil {
		return nil, err
	}
	return token.Raw, nil
}

// TimestampDigest requests a token over a digest computed with the
// configured algorithm.
func (c *Client) TimestampDigest(ctx context.Context, digest []byte) (*Token, error) {
	nonce, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), nonceBits))
	if err != nil {
		return nil, fmt.Errorf("tsa: generate nonce: %w", err)
	}

	req, err := NewRequest(c.cfg.Digest, digest, nonce, c.cfg.Policy, c.cfg.CertReq)
	if err != nil {
		return nil, err
	}
	reqDER, err := req.Marshal()
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(reqDER))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/timestamp-query")
	if c.cfg.Username != "" {
		httpReq.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	body, header, err := c.http.Do(httpReq, "tsa")
	if err != nil {
		c.log.Printf("request to %s failed: %v", c.cfg.URL, err)
		return nil, err
	}

	if strings.EqualFold(header.Get("Content-Transfer-Encoding"), "base64") {
		if body, err = decodeBase64(body); err != nil {
			return nil, fmt.Errorf("%w: base64 body: %w", ErrInvalidResponse, err)
		}
	}

	token, err := ParseResponse(body, req)
	if err != nil {
		return nil, err
	}

	// A token without certificates cannot be checked here; the signature
	// is verified later against the TSA chain.
	if len(token.Certificates) > 0 {
		if err := token.VerifySignature(); err != nil {
			return nil, fmt.Errorf("%w: token signature: %w", ErrInvalidResponse, err)
		}
	}

	c.mu.Lock()
	c.estimate = len(token.Raw) + tokenSizeMargin
	c.mu.Unlock()

	c.log.Printf("token %s issued at %s (%d bytes)", token.SerialNumber(), token.GenTime.UTC().Format("2006-01-02T15:04:05Z"), len(token.Raw))
	return token, nil
}

func decodeBase64(body []byte) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, string(body))
	return base64.StdEncoding.DecodeString(cleaned)
}
