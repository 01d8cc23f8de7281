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

	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
)

// Record is one positive verification statement about a certificate.
type Record struct {
	// Verifier names the link that produced the record.
	Verifier string
	Reason   string
	Subject  string
}

func (r Record) String() string {
	return fmt.Sprintf("%s: %s (%s)", r.Subject, r.Reason, r.Verifier)
}

// Verifier is one link of a verification chain.
//
// Verify returns the records of this link followed by those of the links
// after it. A nil error with no records means trust could not be
// confirmed. A non-nil error is a hard failure and no later link runs.
type Verifier interface {
	Verify(ctx context.Context, cert, issuer *x509.Certificate, signDate time.Time) ([]Record, error)
}

// CheckCertificate runs the checks every link performs: cert must be valid
// at signDate, carry no unsupported critical extension, and be signed by
// issuer (or by itself when issuer is nil). Failures are *Error values.
func CheckCertificate(cert, issuer *x509.Certificate, signDate time.Time) error {
	if signDate.Before(cert.NotBefore) {
		return &Error{Cert: cert, Code: CodeNotYetValid, Err: x509.CertificateInvalidError{
			Cert:   cert,
			Reason: x509.Expired,
			Detail: fmt.Sprintf("signing time %s is before %s",
				signDate.UTC().Format(time.RFC3339), cert.NotBefore.UTC().Format(time.RFC3339)),
		}}
	}
	if signDate.After(cert.NotAfter) {
		return &Error{Cert: cert, Code: CodeExpired, Err: x509.CertificateInvalidError{
			Cert:   cert,
			Reason: x509.Expired,
			Detail: fmt.Sprintf("signing time %s is after %s",
				signDate.UTC().Format(time.RFC3339), cert.NotAfter.UTC().Format(time.RFC3339)),
		}}
	}

	if len(cert.UnhandledCriticalExtensions) > 0 {
		return &Error{Cert: cert, Code: CodeUnsupportedCriticalExtension,
			Err: fmt.Errorf("%w %s", x509.UnhandledCriticalExtension{}, cert.UnhandledCriticalExtensions[0])}
	}

	var err error
	if issuer != nil {
		err = cert.CheckSignatureFrom(issuer)
	} else {
		err = cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature)
	}
	if err != nil {
		return &Error{Cert: cert, Code: CodeSignatureMismatch, Err: err}
	}
	return nil
}

func delegate(ctx context.Context, next Verifier, records []Record, cert, issuer *x509.Certificate, signDate time.Time) ([]Record, error) {
	if next == nil {
		return records, nil
	}
	more, err := next.Verify(ctx, cert, issuer, signDate)
	if err != nil {
		return nil, err
	}
	return append(records, more...), nil
}

// CertificateVerifier performs only the common checks before delegating.
type CertificateVerifier struct {
	next Verifier
}

// NewCertificateVerifier creates a CertificateVerifier; next may be nil.
func NewCertificateVerifier(next Verifier) *CertificateVerifier {
	return &CertificateVerifier{next: next}
}

// Verify implements Verifier.
func (v *CertificateVerifier) Verify(ctx context.Context, cert, issuer *x509.Certificate, signDate time.Time) ([]Record, error) {
	if err := CheckCertificate(cert, issuer, signDate); err != nil {
		return nil, err
	}
	return delegate(ctx, v.next, nil, cert, issuer, signDate)
}

// RootStoreReason is recorded for a certificate issued by (or equal to) a
// trust anchor.
const RootStoreReason = "Certificate verified against root store."

// RootStoreVerifier trusts certificates issued by or equal to an anchor.
// Records of later links are appended even after a root store match.
type RootStoreVerifier struct {
	anchors []*x509.Certificate
	next    Verifier
	log     logger.Logger
}

// NewRootStoreVerifier creates a RootStoreVerifier; next may be nil.
func NewRootStoreVerifier(anchors []*x509.Certificate, next Verifier, log logger.Logger) *RootStoreVerifier {
	return &RootStoreVerifier{
		anchors: slices.Clone(anchors),
		next:    next,
		log:     logger.WithPrefix(logger.OrNop(log), "verify"),
	}
}

// Verify implements Verifier.
func (v *RootStoreVerifier) Verify(ctx context.Context, cert, issuer *x509.Certificate, signDate time.Time) ([]Record, error) {
	if err := CheckCertificate(cert, issuer, signDate); err != nil {
		return nil, err
	}

	var records []Record
	if anchor := v.anchorFor(cert); anchor != nil {
		records = append(records, Record{
			Verifier: "RootStoreVerifier",
			Reason:   RootStoreReason,
			Subject:  cert.Subject.String(),
		})
	} else {
		v.log.Printf("%q is not issued by any trust anchor", cert.Subject.String())
	}

	return delegate(ctx, v.next, records, cert, issuer, signDate)
}

func (v *RootStoreVerifier) anchorFor(cert *x509.Certificate) *x509.Certificate {
	for _, anchor := range v.anchors {
		if cert.Equal(anchor) || issuedBy(cert, anchor) {
			return anchor
		}
	}
	return nil
}
