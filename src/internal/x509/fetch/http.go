// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509fetch

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/helper/gc"
)

// DefaultMaxBodySize bounds every response body read by the clients.
const DefaultMaxBodySize = 10 << 20

// ErrTransport marks failures to obtain a usable HTTP response: dial and
// timeout errors, unexpected HTTP status codes and oversized bodies.
var ErrTransport = errors.New("x509fetch: transport failure")

// HTTPConfig holds HTTP client configuration shared by the revocation data clients.
type HTTPConfig struct {
	Timeout     time.Duration     // HTTP request timeout
	Version     string            // Application version for User-Agent
	UserAgent   string            // Custom User-Agent string, if empty will be constructed from Version
	MaxBodySize int64             // Response body limit, DefaultMaxBodySize when zero
	Transport   http.RoundTripper // Optional transport, http.DefaultTransport when nil

	mu     sync.Mutex
	client *http.Client
}

// NewHTTPConfig creates a new HTTP configuration with a 10 second timeout.
func NewHTTPConfig(version string) *HTTPConfig {
	return &HTTPConfig{
		Timeout: 10 * time.Second,
		Version: version,
	}
}

// GetUserAgent returns the User-Agent string, constructing it if not set.
func (c *HTTPConfig) GetUserAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return fmt.Sprintf("CMS-Signature-Trust/%s (+https://github.com/H0llyW00dzZ/cms-signature-trust)", c.Version)
}

// Client returns an HTTP client configured with the current timeout.
//
// Thread Safety: Safe for concurrent use.
func (c *HTTPConfig) Client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		c.client = &http.Client{Timeout: c.Timeout, Transport: c.Transport}
		return c.client
	}

	if c.client.Timeout != c.Timeout {
		c.client.Timeout = c.Timeout
	}

	return c.client
}

func (c *HTTPConfig) maxBodySize() int64 {
	if c.MaxBodySize > 0 {
		return c.MaxBodySize
	}
	return DefaultMaxBodySize
}

// Do sends req and returns the body of a 200 response together with its
// headers. kind labels the request in the fetch metrics ("aia", "crl",
// "ocsp", "tsa"). Every failure wraps ErrTransport.
func (c *HTTPConfig) Do(req *http.Request, kind string) ([]byte, http.Header, error) {
	req.Header.Set("User-Agent", c.GetUserAgent())

	start := time.Now()
	body, header, err := c.do(req)
	observeFetch(kind, start, err)
	return body, header, err
}

func (c *HTTPConfig) do(req *http.Request) ([]byte, http.Header, error) {
	resp, err := c.Client().Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("%w: %s returned HTTP %d", ErrTransport, req.URL.Redacted(), resp.StatusCode)
	}

	body, err := gc.ReadAll(resp.Body, c.maxBodySize())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrTransport, req.URL.Redacted(), err)
	}

	return body, resp.Header, nil
}
