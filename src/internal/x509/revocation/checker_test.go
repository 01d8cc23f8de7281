// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package revocation_test

import (
	"context"
	"crypto/x509"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"

	x509fetch "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/fetch"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/revocation"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/testpki"
)

type countingCRLClient struct {
	crls  [][]byte
	err   error
	calls atomic.Int32
}

func (c *countingCRLClient) Fetch(context.Context, *x509.Certificate, string) ([][]byte, error) {
	c.calls.Add(1)
	return c.crls, c.err
}

type ocspSourceFunc func(ctx context.Context, cert, issuer *x509.Certificate, url string) (*ocsp.Response, []byte, error)

func (f ocspSourceFunc) Response(ctx context.Context, cert, issuer *x509.Certificate, url string) (*ocsp.Response, []byte, error) {
	return f(ctx, cert, issuer, url)
}

func TestCheckCRL(t *testing.T) {
	now := time.Now()
	root := testpki.NewRoot(t, "Revocation Root")
	leaf := root.NewLeaf(t, "Revocation Leaf")
	other := testpki.NewRoot(t, "Unrelated Root")

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Accepts Applicable CRL",
			testFunc: func(t *testing.T) {
				crl := testpki.ParseCRL(t, root.CRL(t, now.Add(-time.Hour), now.Add(time.Hour)))
				ok, err := revocation.NewChecker(revocation.Config{}).CheckCRL(crl, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.True(t, ok)
			},
		},
		{
			name: "Listed Serial Is Revoked",
			testFunc: func(t *testing.T) {
				revokedAt := now.Add(-30 * time.Minute)
				crl := testpki.ParseCRL(t, root.CRL(t, now.Add(-time.Hour), now.Add(time.Hour),
					testpki.RevokedEntry{Cert: leaf.Cert, At: revokedAt}))

				ok, err := revocation.NewChecker(revocation.Config{}).CheckCRL(crl, leaf.Cert, root.Cert, now)
				assert.False(t, ok)
				require.ErrorIs(t, err, revocation.ErrRevoked)

				var revokedErr *revocation.RevokedError
				require.ErrorAs(t, err, &revokedErr)
				assert.Equal(t, revocation.KindCRL, revokedErr.Source)
				assert.True(t, revokedErr.Cert.Equal(leaf.Cert))
				assert.WithinDuration(t, revokedAt, revokedErr.RevokedAt, time.Second)
			},
		},
		{
			name: "Revocation After Reference Date Still Revoked",
			testFunc: func(t *testing.T) {
				crl := testpki.ParseCRL(t, root.CRL(t, now.Add(-time.Hour), now.Add(time.Hour),
					testpki.RevokedEntry{Cert: leaf.Cert, At: now.Add(-time.Minute)}))

				_, err := revocation.NewChecker(revocation.Config{}).CheckCRL(crl, leaf.Cert, root.Cert, now.Add(-50*time.Minute))
				assert.ErrorIs(t, err, revocation.ErrRevoked)
			},
		},
		{
			name: "Issuer Mismatch Is Not Applicable",
			testFunc: func(t *testing.T) {
				crl := testpki.ParseCRL(t, other.CRL(t, now.Add(-time.Hour), now.Add(time.Hour),
					testpki.RevokedEntry{Cert: leaf.Cert}))

				ok, err := revocation.NewChecker(revocation.Config{}).CheckCRL(crl, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.False(t, ok)
			},
		},
		{
			name: "Reference Date At NextUpdate Is Not Applicable",
			testFunc: func(t *testing.T) {
				nextUpdate := now.Add(time.Hour).Truncate(time.Second)
				crl := testpki.ParseCRL(t, root.CRL(t, now.Add(-time.Hour), nextUpdate,
					testpki.RevokedEntry{Cert: leaf.Cert}))

				ok, err := revocation.NewChecker(revocation.Config{}).CheckCRL(crl, leaf.Cert, root.Cert, crl.NextUpdate)
				require.NoError(t, err)
				assert.False(t, ok)
			},
		},
		{
			name: "Bad Signature Is Skipped",
			testFunc: func(t *testing.T) {
				impostor := testpki.NewRoot(t, "Revocation Root")
				crl := testpki.ParseCRL(t, impostor.CRL(t, now.Add(-time.Hour), now.Add(time.Hour),
					testpki.RevokedEntry{Cert: leaf.Cert}))

				ok, err := revocation.NewChecker(revocation.Config{}).CheckCRL(crl, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.False(t, ok)
			},
		},
		{
			name: "Anchor May Sign Indirect CRL",
			testFunc: func(t *testing.T) {
				anchor := testpki.NewRoot(t, "Revocation Root")
				crl := testpki.ParseCRL(t, anchor.CRL(t, now.Add(-time.Hour), now.Add(time.Hour)))

				checker := revocation.NewChecker(revocation.Config{Anchors: []*x509.Certificate{anchor.Cert}})
				ok, err := checker.CheckCRL(crl, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.True(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func TestCheckCRLs(t *testing.T) {
	now := time.Now()
	root := testpki.NewRoot(t, "CRLs Root")
	leaf := root.NewLeaf(t, "CRLs Leaf")
	fresh := root.CRL(t, now.Add(-time.Hour), now.Add(time.Hour))
	stale := root.CRL(t, now.Add(-2*time.Hour), now.Add(-time.Hour))
	revoked := root.CRL(t, now.Add(-time.Hour), now.Add(time.Hour), testpki.RevokedEntry{Cert: leaf.Cert})

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Offline CRL Prevents Online Fetch",
			testFunc: func(t *testing.T) {
				client := &countingCRLClient{crls: [][]byte{fresh}}
				checker := revocation.NewChecker(revocation.Config{OnlineChecking: true, CRLClient: client})

				result, err := checker.CheckCRLs(context.Background(), [][]byte{fresh}, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.Equal(t, 1, result.Valid)
				assert.False(t, result.Online)
				assert.Zero(t, client.calls.Load())
			},
		},
		{
			name: "Falls Back Online When Offline Inapplicable",
			testFunc: func(t *testing.T) {
				checker := revocation.NewChecker(revocation.Config{
					OnlineChecking: true,
					CRLClient:      x509fetch.NewOfflineCRLClient(fresh),
				})

				result, err := checker.CheckCRLs(context.Background(), [][]byte{stale}, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.Equal(t, 1, result.Valid)
				assert.True(t, result.Online)
				require.Len(t, result.Outcomes, 2)
				assert.Equal(t, revocation.Skipped, result.Outcomes[0].Verdict)
				assert.NotEmpty(t, result.Outcomes[0].Reason)
				assert.Equal(t, revocation.Accepted, result.Outcomes[1].Verdict)
			},
		},
		{
			name: "Online Disabled",
			testFunc: func(t *testing.T) {
				client := &countingCRLClient{crls: [][]byte{fresh}}
				checker := revocation.NewChecker(revocation.Config{CRLClient: client})

				result, err := checker.CheckCRLs(context.Background(), nil, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.Zero(t, result.Valid)
				assert.Zero(t, client.calls.Load())
				require.Len(t, result.Outcomes, 1)
				assert.Equal(t, revocation.KindAbsent, result.Outcomes[0].Evidence.Kind)
			},
		},
		{
			name: "Online Failure Is Soft",
			testFunc: func(t *testing.T) {
				client := &countingCRLClient{err: x509fetch.ErrTransport}
				checker := revocation.NewChecker(revocation.Config{OnlineChecking: true, CRLClient: client})

				result, err := checker.CheckCRLs(context.Background(), nil, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.Zero(t, result.Valid)
				assert.Equal(t, int32(1), client.calls.Load())
			},
		},
		{
			name: "Garbage Is Skipped",
			testFunc: func(t *testing.T) {
				checker := revocation.NewChecker(revocation.Config{})
				result, err := checker.CheckCRLs(context.Background(), [][]byte{[]byte("garbage"), fresh}, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.Equal(t, 1, result.Valid)
				assert.Equal(t, revocation.Skipped, result.Outcomes[0].Verdict)
			},
		},
		{
			name: "Revocation Aborts",
			testFunc: func(t *testing.T) {
				checker := revocation.NewChecker(revocation.Config{})
				result, err := checker.CheckCRLs(context.Background(), [][]byte{revoked, fresh}, leaf.Cert, root.Cert, now)
				require.ErrorIs(t, err, revocation.ErrRevoked)
				require.Len(t, result.Outcomes, 1)
				assert.Equal(t, revocation.Revoked, result.Outcomes[0].Verdict)
			},
		},
		{
			name: "Online Revocation Is Hard",
			testFunc: func(t *testing.T) {
				checker := revocation.NewChecker(revocation.Config{
					OnlineChecking: true,
					CRLClient:      x509fetch.NewOfflineCRLClient(revoked),
				})
				_, err := checker.CheckCRLs(context.Background(), nil, leaf.Cert, root.Cert, now)
				assert.ErrorIs(t, err, revocation.ErrRevoked)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func TestCheckOCSP(t *testing.T) {
	now := time.Now()
	root := testpki.NewRoot(t, "OCSP Root")
	leaf := root.NewLeaf(t, "OCSP Leaf")

	parse := func(t *testing.T, der []byte) *ocsp.Response {
		t.Helper()
		ev, err := revocation.ParseOCSP(der, nil)
		require.NoError(t, err)
		return ev.OCSP
	}

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Good",
			testFunc: func(t *testing.T) {
				resp := parse(t, root.OCSPResponse(t, leaf.Cert, ocsp.Good, testpki.OCSPOptions{}))
				ok, err := revocation.NewChecker(revocation.Config{}).CheckOCSP(resp, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.True(t, ok)
			},
		},
		{
			name: "Revoked",
			testFunc: func(t *testing.T) {
				resp := parse(t, root.OCSPResponse(t, leaf.Cert, ocsp.Revoked, testpki.OCSPOptions{}))
				ok, err := revocation.NewChecker(revocation.Config{}).CheckOCSP(resp, leaf.Cert, root.Cert, now)
				assert.False(t, ok)

				var revokedErr *revocation.RevokedError
				require.ErrorAs(t, err, &revokedErr)
				assert.Equal(t, revocation.KindOCSP, revokedErr.Source)
				assert.Equal(t, ocsp.KeyCompromise, revokedErr.Reason)
			},
		},
		{
			name: "Unknown Is Inconclusive",
			testFunc: func(t *testing.T) {
				resp := parse(t, root.OCSPResponse(t, leaf.Cert, ocsp.Unknown, testpki.OCSPOptions{}))
				ok, err := revocation.NewChecker(revocation.Config{}).CheckOCSP(resp, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.False(t, ok)
			},
		},
		{
			name: "Serial Mismatch",
			testFunc: func(t *testing.T) {
				sibling := root.NewLeaf(t, "Sibling")
				resp := parse(t, root.OCSPResponse(t, sibling.Cert, ocsp.Good, testpki.OCSPOptions{}))
				ok, err := revocation.NewChecker(revocation.Config{}).CheckOCSP(resp, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.False(t, ok)
			},
		},
		{
			name: "Reference Date After NextUpdate",
			testFunc: func(t *testing.T) {
				resp := parse(t, root.OCSPResponse(t, leaf.Cert, ocsp.Good, testpki.OCSPOptions{
					ThisUpdate: now.Add(-2 * time.Hour),
					NextUpdate: now.Add(-time.Hour),
				}))
				ok, err := revocation.NewChecker(revocation.Config{}).CheckOCSP(resp, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.False(t, ok)
			},
		},
		{
			name: "Reference Date Before ThisUpdate",
			testFunc: func(t *testing.T) {
				raw := root.OCSPResponse(t, leaf.Cert, ocsp.Revoked, testpki.OCSPOptions{
					ThisUpdate: now.Add(time.Hour),
					NextUpdate: now.Add(2 * time.Hour),
				})
				checker := revocation.NewChecker(revocation.Config{})

				ok, err := checker.CheckOCSP(parse(t, raw), leaf.Cert, root.Cert, now)
				require.NoError(t, err, "a response issued after the reference date says nothing about it")
				assert.False(t, ok)

				result, _ := checker.CheckOCSPs(context.Background(), [][]byte{raw}, leaf.Cert, root.Cert, now)
				require.Len(t, result.Outcomes, 1)
				assert.Equal(t, revocation.Skipped, result.Outcomes[0].Verdict)
				assert.Contains(t, result.Outcomes[0].Reason, "before thisUpdate")

				_, err = checker.CheckOCSP(parse(t, raw), leaf.Cert, root.Cert, now.Add(90*time.Minute))
				assert.ErrorIs(t, err, revocation.ErrRevoked)
			},
		},
		{
			name: "Missing NextUpdate Allows Three Minutes",
			testFunc: func(t *testing.T) {
				thisUpdate := now.Add(-time.Hour).Truncate(time.Second)
				resp := parse(t, root.OCSPResponse(t, leaf.Cert, ocsp.Good, testpki.OCSPOptions{
					ThisUpdate:   thisUpdate,
					NoNextUpdate: true,
				}))
				checker := revocation.NewChecker(revocation.Config{})

				ok, err := checker.CheckOCSP(resp, leaf.Cert, root.Cert, thisUpdate.Add(2*time.Minute))
				require.NoError(t, err)
				assert.True(t, ok)

				ok, err = checker.CheckOCSP(resp, leaf.Cert, root.Cert, thisUpdate.Add(4*time.Minute))
				require.NoError(t, err)
				assert.False(t, ok)
			},
		},
		{
			name: "Delegated Responder",
			testFunc: func(t *testing.T) {
				responder := root.NewLeaf(t, "Delegated Responder", testpki.WithExtKeyUsage(x509.ExtKeyUsageOCSPSigning))
				resp := parse(t, root.OCSPResponse(t, leaf.Cert, ocsp.Good, testpki.OCSPOptions{Responder: responder}))
				ok, err := revocation.NewChecker(revocation.Config{}).CheckOCSP(resp, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.True(t, ok)
			},
		},
		{
			name: "Responder Without OCSP Signing Usage",
			testFunc: func(t *testing.T) {
				responder := root.NewLeaf(t, "Plain Leaf")
				resp := parse(t, root.OCSPResponse(t, leaf.Cert, ocsp.Revoked, testpki.OCSPOptions{Responder: responder}))
				ok, err := revocation.NewChecker(revocation.Config{}).CheckOCSP(resp, leaf.Cert, root.Cert, now)
				require.NoError(t, err, "an unauthorized revocation claim is skipped, not trusted")
				assert.False(t, ok)
			},
		},
		{
			name: "Anchor Responder",
			testFunc: func(t *testing.T) {
				anchor := testpki.NewRoot(t, "OCSP Anchor")
				resp := parse(t, root.OCSPResponse(t, leaf.Cert, ocsp.Good, testpki.OCSPOptions{Responder: anchor}))

				ok, err := revocation.NewChecker(revocation.Config{}).CheckOCSP(resp, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.False(t, ok)

				checker := revocation.NewChecker(revocation.Config{Anchors: []*x509.Certificate{anchor.Cert}})
				ok, err = checker.CheckOCSP(resp, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.True(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func TestCheckOCSPs(t *testing.T) {
	now := time.Now()
	root := testpki.NewRoot(t, "OCSPs Root")
	leaf := root.NewLeaf(t, "OCSPs Leaf")
	good := root.OCSPResponse(t, leaf.Cert, ocsp.Good, testpki.OCSPOptions{})

	fetched := func(der []byte, err error) (ocspSourceFunc, *atomic.Int32) {
		var calls atomic.Int32
		return func(_ context.Context, cert, _ *x509.Certificate, _ string) (*ocsp.Response, []byte, error) {
			calls.Add(1)
			if err != nil {
				return nil, nil, err
			}
			resp, perr := ocsp.ParseResponseForCert(der, cert, nil)
			return resp, der, perr
		}, &calls
	}

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Offline Good",
			testFunc: func(t *testing.T) {
				source, calls := fetched(good, nil)
				checker := revocation.NewChecker(revocation.Config{OnlineChecking: true, OCSPClient: source})
				result, err := checker.CheckOCSPs(context.Background(), [][]byte{good}, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.Equal(t, 1, result.Valid)
				assert.False(t, result.Online)
				assert.Zero(t, calls.Load())
			},
		},
		{
			name: "Online Fallback",
			testFunc: func(t *testing.T) {
				source, calls := fetched(good, nil)
				checker := revocation.NewChecker(revocation.Config{OnlineChecking: true, OCSPClient: source})
				result, err := checker.CheckOCSPs(context.Background(), [][]byte{[]byte("junk")}, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.Equal(t, 1, result.Valid)
				assert.True(t, result.Online)
				assert.Equal(t, int32(1), calls.Load())
			},
		},
		{
			name: "Online Transport Failure Is Soft",
			testFunc: func(t *testing.T) {
				source, _ := fetched(nil, x509fetch.ErrTransport)
				checker := revocation.NewChecker(revocation.Config{OnlineChecking: true, OCSPClient: source})
				result, err := checker.CheckOCSPs(context.Background(), nil, leaf.Cert, root.Cert, now)
				require.NoError(t, err)
				assert.Zero(t, result.Valid)
				assert.Equal(t, revocation.KindAbsent, result.Outcomes[0].Evidence.Kind)
			},
		},
		{
			name: "Online Revoked Is Hard",
			testFunc: func(t *testing.T) {
				source, _ := fetched(root.OCSPResponse(t, leaf.Cert, ocsp.Revoked, testpki.OCSPOptions{}), nil)
				checker := revocation.NewChecker(revocation.Config{OnlineChecking: true, OCSPClient: source})
				_, err := checker.CheckOCSPs(context.Background(), nil, leaf.Cert, root.Cert, now)
				assert.ErrorIs(t, err, revocation.ErrRevoked)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func TestVerifyResponse(t *testing.T) {
	root := testpki.NewRoot(t, "Verify Root")
	leaf := root.NewLeaf(t, "Verify Leaf")
	stranger := testpki.NewRoot(t, "Stranger")

	resp, err := ocsp.ParseResponse(stranger.OCSPResponse(t, leaf.Cert, ocsp.Good, testpki.OCSPOptions{}), nil)
	require.NoError(t, err)

	checker := revocation.NewChecker(revocation.Config{})
	err = checker.VerifyResponse(resp, root.Cert)
	assert.True(t, errors.Is(err, revocation.ErrUnauthorizedResponder))

	var _ x509fetch.ResponseVerifier = checker
}

func TestEvidence(t *testing.T) {
	root := testpki.NewRoot(t, "Evidence Root")
	der := root.CRL(t, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	ev, err := revocation.ParseCRL(der)
	require.NoError(t, err)
	assert.Equal(t, revocation.KindCRL, ev.Kind)
	assert.Equal(t, der, ev.Raw)
	require.NotNil(t, ev.CRL)

	_, err = revocation.ParseOCSP([]byte{0x30, 0x00}, nil)
	assert.Error(t, err)

	assert.Equal(t, "CRL", revocation.KindCRL.String())
	assert.Equal(t, "OCSP", revocation.KindOCSP.String())
	assert.Equal(t, "none", revocation.KindAbsent.String())
	assert.Equal(t, "revoked", revocation.Revoked.String())
}
