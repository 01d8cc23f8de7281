// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package revocation

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/ocsp"

	x509certs "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/certs"
)

// ErrRevoked is wrapped by every RevokedError.
var ErrRevoked = errors.New("revocation: certificate revoked")

// ErrUnauthorizedResponder indicates an OCSP response signed by a key that is
// neither the issuer, a delegated responder of the issuer, nor an anchor.
var ErrUnauthorizedResponder = errors.New("revocation: OCSP responder not authorized")

// Kind tags the form of revocation evidence.
type Kind int

const (
	// KindAbsent marks the absence of any evidence.
	KindAbsent Kind = iota
	KindCRL
	KindOCSP
)

func (k Kind) String() string {
	switch k {
	case KindCRL:
		return "CRL"
	case KindOCSP:
		return "OCSP"
	default:
		return "none"
	}
}

// Evidence is one revocation data item. Exactly one of CRL and OCSP is set
// for a parsed item of the matching Kind.
type Evidence struct {
	Kind Kind
	Raw  []byte
	CRL  *x509.RevocationList
	OCSP *ocsp.Response
}

// ParseCRL parses a PEM or DER CRL into Evidence.
func ParseCRL(raw []byte) (Evidence, error) {
	crl, err := x509certs.DecodeRevocationList(raw)
	if err != nil {
		return Evidence{Kind: KindCRL, Raw: raw}, err
	}
	return Evidence{Kind: KindCRL, Raw: crl.Raw, CRL: crl}, nil
}

// ParseOCSP parses a DER OCSP response into Evidence. When cert is not nil
// the single response for cert is selected. The signature is checked only
// against a certificate embedded in the response; trust is decided later.
func ParseOCSP(raw []byte, cert *x509.Certificate) (Evidence, error) {
	resp, err := ocsp.ParseResponseForCert(raw, cert, nil)
	if err != nil {
		return Evidence{Kind: KindOCSP, Raw: raw}, fmt.Errorf("revocation: parse OCSP response: %w", err)
	}
	return Evidence{Kind: KindOCSP, Raw: raw, OCSP: resp}, nil
}

// Verdict is the result of evaluating one Evidence item.
type Verdict int

const (
	Skipped Verdict = iota
	Accepted
	Revoked
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case Revoked:
		return "revoked"
	default:
		return "skipped"
	}
}

// Outcome records how one Evidence item was judged. Reason explains a skip.
type Outcome struct {
	Evidence Evidence
	Verdict  Verdict
	Reason   string
	Online   bool
}

// Result accumulates the outcomes of a CheckCRLs or CheckOCSPs call.
type Result struct {
	// Valid counts accepted evidence items.
	Valid int
	// Online is set when accepted evidence was fetched over the network.
	Online   bool
	Outcomes []Outcome
}

func (r *Result) add(o Outcome) {
	if o.Verdict == Accepted {
		r.Valid++
		if o.Online {
			r.Online = true
		}
	}
	r.Outcomes = append(r.Outcomes, o)
}

// RevokedError reports a certificate that evidence proves revoked.
type RevokedError struct {
	Cert      *x509.Certificate
	RevokedAt time.Time
	Reason    int
	Source    Kind
}

func (e *RevokedError) Error() string {
	return fmt.Sprintf("revocation: certificate %q (serial %s) revoked at %s according to %s",
		e.Cert.Subject.String(), e.Cert.SerialNumber, e.RevokedAt.UTC().Format(time.RFC3339), e.Source)
}

func (e *RevokedError) Unwrap() error { return ErrRevoked }
