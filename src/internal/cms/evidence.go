// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cms

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"slices"

	x509chain "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/chain"
	x509fetch "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/fetch"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
)

// OCSPEncoder returns the DER response proving cert good. It is satisfied
// by *x509fetch.OCSPClient.
type OCSPEncoder interface {
	Encoded(ctx context.Context, cert, issuer *x509.Certificate, url string) ([]byte, error)
}

// RevocationData is the evidence embedded into a container.
type RevocationData struct {
	CRLs  [][]byte
	OCSPs [][]byte
}

// Empty reports whether no evidence was collected.
func (r RevocationData) Empty() bool { return len(r.CRLs) == 0 && len(r.OCSPs) == 0 }

// CollectEvidence gathers revocation data for chain. CRLs are fetched for
// every certificate and deduplicated. An OCSP response is requested for the
// signer certificate. Fetch failures are logged and skipped, but an OCSP
// responder reporting the signer revoked or unknown is returned as an
// error wrapping x509fetch.ErrStatusRevoked or x509fetch.ErrStatusUnknown.
// Either client may be nil.
func CollectEvidence(ctx context.Context, chain []*x509.Certificate, crlClient x509fetch.CRLClient, ocspClient OCSPEncoder, log logger.Logger) (RevocationData, error) {
	log = logger.WithPrefix(logger.OrNop(log), "cms")
	var data RevocationData

	if crlClient != nil {
		for _, cert := range chain {
			if x509chain.IsSelfSigned(cert) {
				continue
			}
			blobs, err := crlClient.Fetch(ctx, cert, "")
			if err != nil {
				log.Printf("CRL fetch for %q failed: %v", cert.Subject.CommonName, err)
			}
			for _, blob := range blobs {
				if !slices.ContainsFunc(data.CRLs, func(have []byte) bool { return bytes.Equal(have, blob) }) {
					data.CRLs = append(data.CRLs, blob)
				}
			}
		}
	}

	if ocspClient != nil && len(chain) > 1 {
		resp, err := ocspClient.Encoded(ctx, chain[0], chain[1], "")
		switch {
		case errors.Is(err, x509fetch.ErrStatusRevoked), errors.Is(err, x509fetch.ErrStatusUnknown):
			return RevocationData{}, fmt.Errorf("cms: signer certificate %q: %w", chain[0].Subject.CommonName, err)
		case err != nil:
			log.Printf("OCSP fetch for %q failed: %v", chain[0].Subject.CommonName, err)
		default:
			data.OCSPs = append(data.OCSPs, resp)
		}
	}

	log.Printf("collected %d CRLs and %d OCSP responses", len(data.CRLs), len(data.OCSPs))
	return data, nil
}
