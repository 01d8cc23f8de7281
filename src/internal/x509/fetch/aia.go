// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509fetch

import (
	"context"
	"crypto/x509"
	"net/http"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
	x509certs "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/certs"
)

// AIAFetcher downloads issuer certificates from the CA Issuers entries of the
// Authority Information Access extension.
type AIAFetcher struct {
	http *HTTPConfig
	log  logger.Logger
}

// NewAIAFetcher creates an AIAFetcher. A nil log discards diagnostics.
func NewAIAFetcher(cfg *HTTPConfig, log logger.Logger) *AIAFetcher {
	return &AIAFetcher{http: cfg, log: logger.WithPrefix(logger.OrNop(log), "aia")}
}

// Fetch returns the certificates published at the first CA Issuers URL of
// cert that yields any. DER, PEM and PKCS7 bundles are accepted.
//
// Failures never propagate: an unreachable URL or an undecodable body is
// logged and the next URL is tried. A certificate without CA Issuers URLs,
// or one whose URLs all fail, yields an empty slice.
func (f *AIAFetcher) Fetch(ctx context.Context, cert *x509.Certificate) []*x509.Certificate {
	for _, url := range cert.IssuingCertificateURL {
		certs, err := f.fetchURL(ctx, url)
		if err != nil {
			f.log.Printf("%s: %v", url, err)
			continue
		}
		return certs
	}
	return nil
}

func (f *AIAFetcher) fetchURL(ctx context.Context, url string) ([]*x509.Certificate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	body, _, err := f.http.Do(req, "aia")
	if err != nil {
		return nil, err
	}

	return x509certs.DecodeMultiple(body)
}
