// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509chain

import (
	"bytes"
	"context"
	"crypto/x509"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
)

// DefaultMaxChainLength bounds the number of certificates Complete returns.
const DefaultMaxChainLength = 10

// IssuerFetcher retrieves candidate issuer certificates for cert.
// Implementations report failures by returning an empty slice.
type IssuerFetcher interface {
	Fetch(ctx context.Context, cert *x509.Certificate) []*x509.Certificate
}

// Completer rebuilds a certificate chain up to a self-signed root, taking
// issuers from the supplied chain first and from AIA CA Issuers second.
type Completer struct {
	fetcher IssuerFetcher
	log     logger.Logger

	// MaxChainLength stops completion once the chain holds this many
	// certificates. Zero means DefaultMaxChainLength.
	MaxChainLength int
}

// NewCompleter creates a Completer. A nil fetcher disables network lookups.
func NewCompleter(fetcher IssuerFetcher, log logger.Logger) *Completer {
	return &Completer{
		fetcher: fetcher,
		log:     logger.WithPrefix(logger.OrNop(log), "chain"),
	}
}

func (c *Completer) maxLength() int {
	if c.MaxChainLength > 0 {
		return c.MaxChainLength
	}
	return DefaultMaxChainLength
}

// Complete returns chain extended towards its root.
//
// While the last certificate is not self-signed, the next supplied
// certificate is appended when it verifiably issued the last one. Otherwise
// the issuer is fetched over AIA and the first fetched certificate is
// appended. When AIA yields nothing, the remaining supplied certificates are
// appended verbatim and completion stops.
//
// Complete never fails: the result is best effort and callers check
// IsSelfSigned on its last element to learn whether it is complete. The walk
// also stops at the length limit or when AIA returns a certificate already
// in the chain.
func (c *Completer) Complete(ctx context.Context, chain []*x509.Certificate) []*x509.Certificate {
	if len(chain) == 0 {
		return nil
	}

	result := []*x509.Certificate{chain[0]}
	next := 1

	for !IsSelfSigned(result[len(result)-1]) {
		if len(result) >= c.maxLength() {
			c.log.Printf("stopping at %d certificates", len(result))
			break
		}

		last := result[len(result)-1]
		if next < len(chain) && IssuedBy(last, chain[next]) {
			result = append(result, chain[next])
			next++
			continue
		}

		issuers := c.fetchIssuers(ctx, last)
		if len(issuers) == 0 {
			result = append(result, chain[next:]...)
			break
		}

		if contains(result, issuers[0]) {
			c.log.Printf("AIA of %q points back into the chain", last.Subject.String())
			break
		}
		result = append(result, issuers[0])
	}

	return result
}

func (c *Completer) fetchIssuers(ctx context.Context, cert *x509.Certificate) []*x509.Certificate {
	if c.fetcher == nil || len(cert.IssuingCertificateURL) == 0 {
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	return c.fetcher.Fetch(ctx, cert)
}

func contains(chain []*x509.Certificate, cert *x509.Certificate) bool {
	for _, c := range chain {
		if c.Equal(cert) {
			return true
		}
	}
	return false
}

// IsSelfSigned reports whether cert names itself as issuer and its signature
// verifies with its own key.
func IsSelfSigned(cert *x509.Certificate) bool {
	return IssuedBy(cert, cert)
}

// IssuedBy reports whether issuer's subject matches cert's issuer and
// issuer's key verifies cert's signature. CA constraints are not checked.
func IssuedBy(cert, issuer *x509.Certificate) bool {
	if !bytes.Equal(cert.RawIssuer, issuer.RawSubject) {
		return false
	}
	return issuer.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature) == nil
}
