// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package revocation

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"slices"
	"time"

	"golang.org/x/crypto/ocsp"

	x509fetch "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/fetch"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
)

// OCSPWindowWithoutNextUpdate is how long an OCSP response lacking
// nextUpdate stays usable after its thisUpdate.
const OCSPWindowWithoutNextUpdate = 3 * time.Minute

// OCSPSource fetches a parsed OCSP response. It is satisfied by
// *x509fetch.OCSPClient.
type OCSPSource interface {
	Response(ctx context.Context, cert, issuer *x509.Certificate, url string) (*ocsp.Response, []byte, error)
}

// Config configures a Checker. It is copied at construction.
type Config struct {
	// Anchors are trusted certificates that may sign CRLs and OCSP responses
	// on behalf of an issuer.
	Anchors []*x509.Certificate
	// OnlineChecking enables network fallback when offline evidence does
	// not settle the question.
	OnlineChecking bool
	CRLClient      x509fetch.CRLClient
	OCSPClient     OCSPSource
	Logger         logger.Logger
}

// Checker decides whether CRL or OCSP evidence proves a certificate is not
// revoked.
//
// Thread Safety: Safe for concurrent use; a Checker is immutable.
type Checker struct {
	anchors []*x509.Certificate
	online  bool
	crl     x509fetch.CRLClient
	ocsp    OCSPSource
	log     logger.Logger
}

// NewChecker creates a Checker from cfg.
func NewChecker(cfg Config) *Checker {
	return &Checker{
		anchors: slices.Clone(cfg.Anchors),
		online:  cfg.OnlineChecking,
		crl:     cfg.CRLClient,
		ocsp:    cfg.OCSPClient,
		log:     logger.WithPrefix(logger.OrNop(cfg.Logger), "revocation"),
	}
}

// Anchors returns a copy of the configured trust anchors.
func (c *Checker) Anchors() []*x509.Certificate { return slices.Clone(c.anchors) }

// OnlineChecking reports whether network fallback is enabled.
func (c *Checker) OnlineChecking() bool { return c.online }

// CheckCRL reports whether crl proves cert unrevoked at refDate.
//
// A CRL applies only when its issuer name equals the certificate's issuer
// name and refDate is before its nextUpdate. Its signature must verify
// against issuer or one of the anchors. An inapplicable or badly signed CRL
// yields (false, nil). A CRL listing the serial of cert yields a
// *RevokedError whatever the listed revocation date.
func (c *Checker) CheckCRL(crl *x509.RevocationList, cert, issuer *x509.Certificate, refDate time.Time) (bool, error) {
	o, err := c.evaluateCRL(Evidence{Kind: KindCRL, Raw: crl.Raw, CRL: crl}, cert, issuer, refDate)
	return o.Verdict == Accepted, err
}

func (c *Checker) evaluateCRL(ev Evidence, cert, issuer *x509.Certificate, refDate time.Time) (Outcome, error) {
	crl := ev.CRL
	skip := func(reason string) (Outcome, error) {
		c.log.Printf("CRL skipped for %q: %s", cert.Subject.String(), reason)
		return Outcome{Evidence: ev, Verdict: Skipped, Reason: reason}, nil
	}

	if !sameName(crl.RawIssuer, cert.RawIssuer) && crl.Issuer.String() != cert.Issuer.String() {
		return skip("issuer mismatch")
	}
	if crl.NextUpdate.IsZero() || !refDate.Before(crl.NextUpdate) {
		return skip(fmt.Sprintf("nextUpdate %s is not after %s",
			crl.NextUpdate.UTC().Format(time.RFC3339), refDate.UTC().Format(time.RFC3339)))
	}
	if !c.crlSignedByTrusted(crl, issuer) {
		return skip("signature does not verify against the issuer or any anchor")
	}

	for _, entry := range crl.RevokedCertificateEntries {
		if entry.SerialNumber != nil && entry.SerialNumber.Cmp(cert.SerialNumber) == 0 {
			return Outcome{Evidence: ev, Verdict: Revoked}, &RevokedError{
				Cert:      cert,
				RevokedAt: entry.RevocationTime,
				Reason:    entry.ReasonCode,
				Source:    KindCRL,
			}
		}
	}

	return Outcome{Evidence: ev, Verdict: Accepted}, nil
}

func (c *Checker) crlSignedByTrusted(crl *x509.RevocationList, issuer *x509.Certificate) bool {
	if issuer != nil && crl.CheckSignatureFrom(issuer) == nil {
		return true
	}
	for _, anchor := range c.anchors {
		if crl.CheckSignatureFrom(anchor) == nil {
			return true
		}
	}
	return false
}

// CheckCRLs evaluates the offline crls and, when none is accepted and online
// checking is enabled, CRLs fetched through the CRL client. Unparsable or
// inapplicable items are skipped. The first revocation found is returned as
// the error together with the outcomes gathered so far.
func (c *Checker) CheckCRLs(ctx context.Context, crls [][]byte, cert, issuer *x509.Certificate, refDate time.Time) (Result, error) {
	var result Result

	if err := c.evaluateCRLs(&result, crls, false, cert, issuer, refDate); err != nil {
		return result, err
	}

	if result.Valid == 0 && c.online && c.crl != nil {
		fetched, err := c.crl.Fetch(ctx, cert, "")
		if err != nil {
			c.log.Printf("online CRL fetch for %q failed: %v", cert.Subject.String(), err)
		}
		if err := c.evaluateCRLs(&result, fetched, true, cert, issuer, refDate); err != nil {
			return result, err
		}
	}

	if len(result.Outcomes) == 0 {
		result.add(Outcome{Evidence: Evidence{Kind: KindAbsent}, Reason: "no CRL available"})
	}
	return result, nil
}

func (c *Checker) evaluateCRLs(result *Result, crls [][]byte, online bool, cert, issuer *x509.Certificate, refDate time.Time) error {
	for _, raw := range crls {
		ev, err := ParseCRL(raw)
		if err != nil {
			c.log.Printf("CRL skipped for %q: %v", cert.Subject.String(), err)
			result.add(Outcome{Evidence: ev, Reason: err.Error(), Online: online})
			continue
		}

		o, err := c.evaluateCRL(ev, cert, issuer, refDate)
		o.Online = online
		result.add(o)
		if err != nil {
			return err
		}
	}
	return nil
}

// CheckOCSP reports whether resp proves cert unrevoked at refDate.
//
// The response must be for the serial of cert, refDate must not be after its
// nextUpdate (thisUpdate plus OCSPWindowWithoutNextUpdate when absent) and
// the responder must be authorized by VerifyResponse. A good status yields
// true, revoked yields a *RevokedError and unknown is inconclusive.
func (c *Checker) CheckOCSP(resp *ocsp.Response, cert, issuer *x509.Certificate, refDate time.Time) (bool, error) {
	o, err := c.evaluateOCSP(Evidence{Kind: KindOCSP, Raw: resp.Raw, OCSP: resp}, cert, issuer, refDate)
	return o.Verdict == Accepted, err
}

func (c *Checker) evaluateOCSP(ev Evidence, cert, issuer *x509.Certificate, refDate time.Time) (Outcome, error) {
	resp := ev.OCSP
	skip := func(reason string) (Outcome, error) {
		c.log.Printf("OCSP response skipped for %q: %s", cert.Subject.String(), reason)
		return Outcome{Evidence: ev, Verdict: Skipped, Reason: reason}, nil
	}

	if resp.SerialNumber == nil || resp.SerialNumber.Cmp(cert.SerialNumber) != 0 {
		return skip("serial mismatch")
	}

	if refDate.Before(resp.ThisUpdate) {
		return skip(fmt.Sprintf("%s is before thisUpdate %s",
			refDate.UTC().Format(time.RFC3339), resp.ThisUpdate.UTC().Format(time.RFC3339)))
	}

	nextUpdate := resp.NextUpdate
	if nextUpdate.IsZero() {
		nextUpdate = resp.ThisUpdate.Add(OCSPWindowWithoutNextUpdate)
	}
	if refDate.After(nextUpdate) {
		return skip(fmt.Sprintf("%s is after nextUpdate %s",
			refDate.UTC().Format(time.RFC3339), nextUpdate.UTC().Format(time.RFC3339)))
	}

	if err := c.VerifyResponse(resp, issuer); err != nil {
		return skip(err.Error())
	}

	switch resp.Status {
	case ocsp.Good:
		return Outcome{Evidence: ev, Verdict: Accepted}, nil
	case ocsp.Revoked:
		return Outcome{Evidence: ev, Verdict: Revoked}, &RevokedError{
			Cert:      cert,
			RevokedAt: resp.RevokedAt,
			Reason:    resp.RevocationReason,
			Source:    KindOCSP,
		}
	default:
		return skip("responder reports status unknown")
	}
}

// CheckOCSPs evaluates the offline responses and, when none is accepted and
// online checking is enabled, a response fetched through the OCSP client.
func (c *Checker) CheckOCSPs(ctx context.Context, responses [][]byte, cert, issuer *x509.Certificate, refDate time.Time) (Result, error) {
	var result Result

	for _, raw := range responses {
		ev, err := ParseOCSP(raw, cert)
		if err != nil {
			c.log.Printf("OCSP response skipped for %q: %v", cert.Subject.String(), err)
			result.add(Outcome{Evidence: ev, Reason: err.Error()})
			continue
		}

		o, err := c.evaluateOCSP(ev, cert, issuer, refDate)
		result.add(o)
		if err != nil {
			return result, err
		}
	}

	if result.Valid == 0 && c.online && c.ocsp != nil && issuer != nil {
		resp, raw, err := c.ocsp.Response(ctx, cert, issuer, "")
		if err != nil {
			c.log.Printf("online OCSP check for %q failed: %v", cert.Subject.String(), err)
		} else {
			o, err := c.evaluateOCSP(Evidence{Kind: KindOCSP, Raw: raw, OCSP: resp}, cert, issuer, refDate)
			o.Online = true
			result.add(o)
			if err != nil {
				return result, err
			}
		}
	}

	if len(result.Outcomes) == 0 {
		result.add(Outcome{Evidence: Evidence{Kind: KindAbsent}, Reason: "no OCSP response available"})
	}
	return result, nil
}

// VerifyResponse checks that resp was signed by an authorized responder for
// certificates of issuer: the issuer itself, a delegated responder issued by
// issuer with the OCSP signing extended key usage, or a trust anchor.
//
// It implements x509fetch.ResponseVerifier.
func (c *Checker) VerifyResponse(resp *ocsp.Response, issuer *x509.Certificate) error {
	if responder := resp.Certificate; responder != nil {
		if err := resp.CheckSignatureFrom(responder); err != nil {
			return fmt.Errorf("%w: %v", ErrUnauthorizedResponder, err)
		}
		if c.authorizedResponder(responder, issuer) {
			return nil
		}
		return fmt.Errorf("%w: %q", ErrUnauthorizedResponder, responder.Subject.String())
	}

	if issuer != nil && resp.CheckSignatureFrom(issuer) == nil {
		return nil
	}
	for _, anchor := range c.anchors {
		if resp.CheckSignatureFrom(anchor) == nil {
			return nil
		}
	}
	return ErrUnauthorizedResponder
}

func (c *Checker) authorizedResponder(responder, issuer *x509.Certificate) bool {
	if issuer != nil {
		if responder.Equal(issuer) {
			return true
		}
		if bytes.Equal(responder.RawIssuer, issuer.RawSubject) &&
			responder.CheckSignatureFrom(issuer) == nil &&
			slices.Contains(responder.ExtKeyUsage, x509.ExtKeyUsageOCSPSigning) {
			return true
		}
	}
	return slices.ContainsFunc(c.anchors, responder.Equal)
}

func sameName(a, b []byte) bool {
	return len(a) > 0 && bytes.Equal(a, b)
}
