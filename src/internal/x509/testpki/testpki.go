// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package testpki builds throwaway certificate hierarchies, CRLs and OCSP
// responses for tests. It must only be imported from _test.go files.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"
)

var serial atomic.Int64

func init() { serial.Store(1000) }

// Authority is a certificate together with its private key.
type Authority struct {
	Cert *x509.Certificate
	Key  crypto.Signer
}

type options struct {
	notBefore time.Time
	notAfter  time.Time
	caIssuers []string
	ocsp      []string
	crlDP     []string
	key       crypto.Signer
	eku       []x509.ExtKeyUsage
	extra     []pkix.Extension
}

// Option customizes an issued certificate.
type Option func(*options)

// WithValidity sets the validity window.
func WithValidity(notBefore, notAfter time.Time) Option {
	return func(o *options) { o.notBefore, o.notAfter = notBefore, notAfter }
}

// WithCAIssuers sets the AIA CA Issuers URLs.
func WithCAIssuers(urls ...string) Option { return func(o *options) { o.caIssuers = urls } }

// WithOCSP sets the AIA OCSP responder URLs.
func WithOCSP(urls ...string) Option { return func(o *options) { o.ocsp = urls } }

// WithCRLDistributionPoints sets the CRL distribution points.
func WithCRLDistributionPoints(urls ...string) Option { return func(o *options) { o.crlDP = urls } }

// WithKey uses key instead of a fresh P-256 key.
func WithKey(key crypto.Signer) Option { return func(o *options) { o.key = key } }

// WithExtKeyUsage sets extended key usages.
func WithExtKeyUsage(eku ...x509.ExtKeyUsage) Option { return func(o *options) { o.eku = eku } }

// WithExtraExtension adds a raw extension.
func WithExtraExtension(ext pkix.Extension) Option {
	return func(o *options) { o.extra = append(o.extra, ext) }
}

func newOptions(opts []Option) *options {
	now := time.Now()
	o := &options{
		notBefore: now.Add(-24 * time.Hour),
		notAfter:  now.Add(365 * 24 * time.Hour),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func newKey(t testing.TB) crypto.Signer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

// NewRoot creates a self-signed CA.
func NewRoot(t testing.TB, cn string, opts ...Option) *Authority {
	t.Helper()
	o := newOptions(opts)
	if o.key == nil {
		o.key = newKey(t)
	}

	tmpl := template(cn, o)
	tmpl.IsCA = true
	tmpl.BasicConstraintsValid = true
	tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, o.key.Public(), o.key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &Authority{Cert: cert, Key: o.key}
}

// NewIntermediate issues a subordinate CA.
func (a *Authority) NewIntermediate(t testing.TB, cn string, opts ...Option) *Authority {
	t.Helper()
	return a.issue(t, cn, true, opts)
}

// NewLeaf issues an end-entity certificate.
func (a *Authority) NewLeaf(t testing.TB, cn string, opts ...Option) *Authority {
	t.Helper()
	return a.issue(t, cn, false, opts)
}

func (a *Authority) issue(t testing.TB, cn string, isCA bool, opts []Option) *Authority {
	t.Helper()
	o := newOptions(opts)
	if o.key == nil {
		o.key = newKey(t)
	}

	tmpl := template(cn, o)
	tmpl.BasicConstraintsValid = true
	tmpl.IsCA = isCA
	if isCA {
		tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature
	} else {
		tmpl.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, a.Cert, o.key.Public(), a.Key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &Authority{Cert: cert, Key: o.key}
}

func template(cn string, o *options) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber:          big.NewInt(serial.Add(1)),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"testpki"}},
		NotBefore:             o.notBefore,
		NotAfter:              o.notAfter,
		IssuingCertificateURL: o.caIssuers,
		OCSPServer:            o.ocsp,
		CRLDistributionPoints: o.crlDP,
		ExtKeyUsage:           o.eku,
		ExtraExtensions:       o.extra,
	}
}

// RevokedEntry lists a certificate on a CRL.
type RevokedEntry struct {
	Cert *x509.Certificate
	At   time.Time
}

// CRL signs a DER CRL with the given window listing revoked certificates.
func (a *Authority) CRL(t testing.TB, thisUpdate, nextUpdate time.Time, revoked ...RevokedEntry) []byte {
	t.Helper()

	entries := make([]x509.RevocationListEntry, 0, len(revoked))
	for _, r := range revoked {
		at := r.At
		if at.IsZero() {
			at = thisUpdate
		}
		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   r.Cert.SerialNumber,
			RevocationTime: at,
		})
	}

	der, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:                    big.NewInt(serial.Add(1)),
		ThisUpdate:                thisUpdate,
		NextUpdate:                nextUpdate,
		RevokedCertificateEntries: entries,
	}, a.Cert, a.Key)
	require.NoError(t, err)
	return der
}

// ParseCRL parses DER produced by CRL.
func ParseCRL(t testing.TB, der []byte) *x509.RevocationList {
	t.Helper()
	crl, err := x509.ParseRevocationList(der)
	require.NoError(t, err)
	return crl
}

// OCSPOptions tunes OCSPResponse.
type OCSPOptions struct {
	ThisUpdate time.Time
	NextUpdate time.Time
	// NoNextUpdate omits nextUpdate from the response.
	NoNextUpdate bool
	// Responder signs the response instead of the authority itself.
	Responder *Authority
	// Extensions become singleExtensions of the response.
	Extensions []pkix.Extension
}

// OCSPResponse signs a DER OCSP response for cert with status
// (ocsp.Good, ocsp.Revoked or ocsp.Unknown).
func (a *Authority) OCSPResponse(t testing.TB, cert *x509.Certificate, status int, opts OCSPOptions) []byte {
	t.Helper()

	now := time.Now()
	if opts.ThisUpdate.IsZero() {
		opts.ThisUpdate = now.Add(-time.Hour)
	}
	if opts.NextUpdate.IsZero() && !opts.NoNextUpdate {
		opts.NextUpdate = now.Add(24 * time.Hour)
	}

	responder := a
	if opts.Responder != nil {
		responder = opts.Responder
	}

	tmpl := ocsp.Response{
		Status:          status,
		SerialNumber:    cert.SerialNumber,
		ThisUpdate:      opts.ThisUpdate,
		NextUpdate:      opts.NextUpdate,
		ExtraExtensions: opts.Extensions,
	}
	if status == ocsp.Revoked {
		tmpl.RevokedAt = opts.ThisUpdate
		tmpl.RevocationReason = ocsp.KeyCompromise
	}
	if opts.Responder != nil {
		tmpl.Certificate = opts.Responder.Cert
	}

	der, err := ocsp.CreateResponse(a.Cert, responder.Cert, tmpl, responder.Key)
	require.NoError(t, err)
	return der
}

// UnknownCriticalExtension is a critical extension no verifier understands.
func UnknownCriticalExtension() pkix.Extension {
	value, _ := asn1.Marshal(true)
	return pkix.Extension{
		Id:       asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1},
		Critical: true,
		Value:    value,
	}
}
