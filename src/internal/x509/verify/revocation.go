// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509verify

import (
	"context"
	"crypto/x509"
	"fmt"
	"slices"
	"time"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/revocation"
)

// CRLVerifier confirms a certificate through CRLs. Configured CRLs are
// checked first; the checker falls back to its CRL client when online
// checking is enabled. A revocation aborts the chain.
type CRLVerifier struct {
	checker *revocation.Checker
	crls    [][]byte
	next    Verifier
}

// NewCRLVerifier creates a CRLVerifier over the given DER or PEM CRLs; next
// may be nil.
func NewCRLVerifier(checker *revocation.Checker, crls [][]byte, next Verifier) *CRLVerifier {
	return &CRLVerifier{checker: checker, crls: slices.Clone(crls), next: next}
}

// Verify implements Verifier.
func (v *CRLVerifier) Verify(ctx context.Context, cert, issuer *x509.Certificate, signDate time.Time) ([]Record, error) {
	if err := CheckCertificate(cert, issuer, signDate); err != nil {
		return nil, err
	}

	result, err := v.checker.CheckCRLs(ctx, v.crls, cert, issuer, signDate)
	if err != nil {
		return nil, &Error{Cert: cert, Code: CodeRevoked, Err: err}
	}

	var records []Record
	if result.Valid > 0 {
		records = append(records, Record{
			Verifier: "CRLVerifier",
			Reason:   validReason("CRLs", result),
			Subject:  cert.Subject.String(),
		})
	}
	return delegate(ctx, v.next, records, cert, issuer, signDate)
}

// OCSPVerifier confirms a certificate through OCSP responses, with the same
// offline then online order as CRLVerifier.
type OCSPVerifier struct {
	checker   *revocation.Checker
	responses [][]byte
	next      Verifier
}

// NewOCSPVerifier creates an OCSPVerifier over DER OCSP responses; next may
// be nil.
func NewOCSPVerifier(checker *revocation.Checker, responses [][]byte, next Verifier) *OCSPVerifier {
	return &OCSPVerifier{checker: checker, responses: slices.Clone(responses), next: next}
}

// Verify implements Verifier.
func (v *OCSPVerifier) Verify(ctx context.Context, cert, issuer *x509.Certificate, signDate time.Time) ([]Record, error) {
	if err := CheckCertificate(cert, issuer, signDate); err != nil {
		return nil, err
	}

	result, err := v.checker.CheckOCSPs(ctx, v.responses, cert, issuer, signDate)
	if err != nil {
		return nil, &Error{Cert: cert, Code: CodeRevoked, Err: err}
	}

	var records []Record
	if result.Valid > 0 {
		records = append(records, Record{
			Verifier: "OCSPVerifier",
			Reason:   validReason("OCSPs", result),
			Subject:  cert.Subject.String(),
		})
	}
	return delegate(ctx, v.next, records, cert, issuer, signDate)
}

func validReason(what string, result revocation.Result) string {
	reason := fmt.Sprintf("Valid %s found: %d", what, result.Valid)
	if result.Online {
		reason += " (online)"
	}
	return reason
}
