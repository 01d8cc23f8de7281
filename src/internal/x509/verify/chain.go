// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509verify

import (
	"context"
	"crypto/x509"
	"slices"
	"time"

	x509chain "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/chain"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/revocation"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
)

func issuedBy(cert, issuer *x509.Certificate) bool {
	return x509chain.IssuedBy(cert, issuer)
}

// Options describes a standard verification chain for Compose.
type Options struct {
	Anchors []*x509.Certificate
	// Checker enables the CRL and OCSP links when not nil.
	Checker *revocation.Checker
	CRLs    [][]byte
	OCSPs   [][]byte
	Logger  logger.Logger
}

// Compose links a RootStoreVerifier, then a CRLVerifier and an OCSPVerifier
// when a checker is configured.
func Compose(opts Options) Verifier {
	var next Verifier
	if opts.Checker != nil {
		next = NewCRLVerifier(opts.Checker, opts.CRLs, NewOCSPVerifier(opts.Checker, opts.OCSPs, nil))
	}
	return NewRootStoreVerifier(opts.Anchors, next, opts.Logger)
}

// CertificateResult holds the records produced for one chain element.
type CertificateResult struct {
	Cert    *x509.Certificate
	Issuer  *x509.Certificate
	Records []Record
	// Note explains why a certificate was not verified.
	Note string
}

// ChainResult is the outcome of VerifyChain.
type ChainResult struct {
	Certificates []CertificateResult
}

// Trusted reports whether every certificate gained at least one record.
func (r ChainResult) Trusted() bool {
	if len(r.Certificates) == 0 {
		return false
	}
	for _, c := range r.Certificates {
		if len(c.Records) == 0 {
			return false
		}
	}
	return true
}

// Records returns the records of every certificate in chain order.
func (r ChainResult) Records() []Record {
	var all []Record
	for _, c := range r.Certificates {
		all = append(all, c.Records...)
	}
	return all
}

// ChainVerifier runs a Verifier over each certificate of a chain paired with
// its issuer.
type ChainVerifier struct {
	verifier Verifier
	anchors  []*x509.Certificate
	log      logger.Logger
}

// NewChainVerifier creates a ChainVerifier. anchors supply the issuer of a
// last certificate that is not self-signed.
func NewChainVerifier(verifier Verifier, anchors []*x509.Certificate, log logger.Logger) *ChainVerifier {
	return &ChainVerifier{
		verifier: verifier,
		anchors:  slices.Clone(anchors),
		log:      logger.WithPrefix(logger.OrNop(log), "verify"),
	}
}

// VerifyChain verifies chain[i] against chain[i+1]. A self-signed last
// certificate is verified against itself; otherwise its issuer is looked up
// among the anchors and, if none issued it, the certificate is left without
// records. The first hard failure stops the walk and is returned together
// with the results gathered so far.
func (c *ChainVerifier) VerifyChain(ctx context.Context, chain []*x509.Certificate, signDate time.Time) (ChainResult, error) {
	var result ChainResult

	for i, cert := range chain {
		var issuer *x509.Certificate
		switch {
		case i+1 < len(chain):
			issuer = chain[i+1]
		case x509chain.IsSelfSigned(cert):
		default:
			issuer = c.anchorIssuer(cert)
			if issuer == nil {
				c.log.Printf("no trust anchor issued %q", cert.Subject.String())
				result.Certificates = append(result.Certificates, CertificateResult{
					Cert: cert,
					Note: "issuer not found among trust anchors",
				})
				continue
			}
		}

		records, err := c.verifier.Verify(ctx, cert, issuer, signDate)
		result.Certificates = append(result.Certificates, CertificateResult{
			Cert:    cert,
			Issuer:  issuer,
			Records: records,
		})
		if err != nil {
			return result, err
		}
	}

	return result, nil
}

func (c *ChainVerifier) anchorIssuer(cert *x509.Certificate) *x509.Certificate {
	for _, anchor := range c.anchors {
		if issuedBy(cert, anchor) {
			return anchor
		}
	}
	return nil
}
