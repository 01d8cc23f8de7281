// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509fetch

import (
	"context"
	"crypto/x509"
	"net/http"
	"slices"
	"sync"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
)

// CRLClient supplies encoded CRLs for a certificate.
//
// url is an optional hint; implementations decide whether to honor it.
type CRLClient interface {
	Fetch(ctx context.Context, cert *x509.Certificate, url string) ([][]byte, error)
}

// OfflineCRLClient serves a fixed set of CRLs regardless of certificate or URL.
type OfflineCRLClient struct {
	crls [][]byte
}

// NewOfflineCRLClient creates a client serving copies of crls.
func NewOfflineCRLClient(crls ...[]byte) *OfflineCRLClient {
	c := &OfflineCRLClient{}
	for _, crl := range crls {
		c.crls = append(c.crls, slices.Clone(crl))
	}
	return c
}

// Fetch returns the configured CRLs.
func (c *OfflineCRLClient) Fetch(context.Context, *x509.Certificate, string) ([][]byte, error) {
	out := make([][]byte, 0, len(c.crls))
	for _, crl := range c.crls {
		out = append(out, slices.Clone(crl))
	}
	return out, nil
}

// OnlineCRLClient downloads CRLs over HTTP.
//
// URLs registered through the constructor, AddURL or AddChain take precedence.
// When none are registered the explicit url argument of Fetch is used, then
// the first CRL distribution point of the certificate.
//
// Thread Safety: Safe for concurrent use.
type OnlineCRLClient struct {
	http *HTTPConfig
	log  logger.Logger

	mu    sync.RWMutex
	urls  []string
	cache *CRLCache
}

// NewOnlineCRLClient creates a client with an optional fixed URL list.
func NewOnlineCRLClient(cfg *HTTPConfig, log logger.Logger, urls ...string) *OnlineCRLClient {
	c := &OnlineCRLClient{
		http: cfg,
		log:  logger.WithPrefix(logger.OrNop(log), "crl"),
	}
	for _, url := range urls {
		c.AddURL(url)
	}
	return c
}

// SetCache enables caching of downloaded CRLs. A nil cache disables it.
func (c *OnlineCRLClient) SetCache(cache *CRLCache) {
	c.mu.Lock()
	c.cache = cache
	c.mu.Unlock()
}

// AddURL registers url unless it is empty or already present.
func (c *OnlineCRLClient) AddURL(url string) {
	if url == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !slices.Contains(c.urls, url) {
		c.urls = append(c.urls, url)
	}
}

// AddChain registers the CRL distribution points of every certificate in chain.
func (c *OnlineCRLClient) AddChain(chain []*x509.Certificate) {
	for _, cert := range chain {
		for _, url := range cert.CRLDistributionPoints {
			c.AddURL(url)
		}
	}
}

// URLs returns the registered URLs in registration order.
func (c *OnlineCRLClient) URLs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.urls)
}

// Fetch downloads every applicable CRL. Individual download failures are
// logged and skipped; the returned error is non-nil only when ctx ends.
func (c *OnlineCRLClient) Fetch(ctx context.Context, cert *x509.Certificate, url string) ([][]byte, error) {
	urls := c.resolve(cert, url)

	var crls [][]byte
	for _, u := range urls {
		data, err := c.fetchURL(ctx, u)
		if err != nil {
			c.log.Printf("%s: %v", u, err)
			continue
		}
		crls = append(crls, data)
	}

	if err := ctx.Err(); err != nil && len(crls) == 0 {
		return nil, err
	}
	return crls, nil
}

func (c *OnlineCRLClient) resolve(cert *x509.Certificate, url string) []string {
	if urls := c.URLs(); len(urls) > 0 {
		return urls
	}
	if url != "" {
		return []string{url}
	}
	if cert != nil && len(cert.CRLDistributionPoints) > 0 {
		return cert.CRLDistributionPoints[:1]
	}
	return nil
}

func (c *OnlineCRLClient) fetchURL(ctx context.Context, url string) ([]byte, error) {
	c.mu.RLock()
	cache := c.cache
	c.mu.RUnlock()

	if cache != nil {
		if data, ok := cache.Get(url); ok {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	data, _, err := c.http.Do(req, "crl")
	if err != nil {
		return nil, err
	}

	if cache != nil {
		if crl, err := x509.ParseRevocationList(data); err == nil {
			cache.Set(url, data, crl.NextUpdate)
		}
	}

	return data, nil
}
