// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cms_test

import (
	"context"
	"crypto"
	"crypto/dsa" //nolint:staticcheck // legacy DSA signers are still supported.
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"testing"
	"time"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/cms"
	x509fetch "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/fetch"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/testpki"
)

var signingTime = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

type fixedTimestamper struct {
	token    []byte
	err      error
	estimate int
	got      []byte
}

func (f *fixedTimestamper) Timestamp(_ context.Context, data []byte) ([]byte, error) {
	f.got = data
	return f.token, f.err
}

func (f *fixedTimestamper) TokenSizeEstimate() int { return f.estimate }

func fakeToken(t *testing.T) []byte {
	t.Helper()
	token, err := asn1.Marshal(struct{ ContentType asn1.ObjectIdentifier }{cms.OIDTSTInfo})
	require.NoError(t, err)
	return token
}

func build(t *testing.T, signer cms.ExternalSigner, opts cms.Options, req cms.BuildRequest) *cms.Container {
	t.Helper()
	b, err := cms.NewBuilder(signer, opts)
	require.NoError(t, err)

	der, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(der), b.EstimateSize(req))

	c, err := cms.Parse(der)
	require.NoError(t, err)
	return c
}

func TestBuildRoundTrip(t *testing.T) {
	root := testpki.NewRoot(t, "CMS Root")
	document := []byte("%PDF-1.7 document bytes")

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	rsaLeaf := root.NewLeaf(t, "RSA Signer", testpki.WithKey(rsaKey))
	ecLeaf := root.NewLeaf(t, "ECDSA Signer")
	edLeaf := root.NewLeaf(t, "Ed25519 Signer", testpki.WithKey(edKey))

	tests := []struct {
		name   string
		key    crypto.Signer
		cert   *x509.Certificate
		digest cms.DigestAlgorithm
		opts   []cms.KeySignerOption
		sigOID asn1.ObjectIdentifier
	}{
		{name: "RSA PKCS1", key: rsaKey, cert: rsaLeaf.Cert, digest: cms.SHA256, sigOID: cms.OIDSHA256WithRSA},
		{name: "RSA PSS", key: rsaKey, cert: rsaLeaf.Cert, digest: cms.SHA384, opts: []cms.KeySignerOption{cms.WithPSS()}, sigOID: cms.OIDRSASSAPSS},
		{name: "ECDSA", key: ecLeaf.Key, cert: ecLeaf.Cert, digest: cms.SHA512, sigOID: cms.OIDECDSAWithSHA512},
		{name: "Ed25519", key: edKey, cert: edLeaf.Cert, digest: cms.SHA512, sigOID: cms.OIDEd25519},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := cms.NewKeySigner(tt.key, tt.digest, tt.opts...)
			require.NoError(t, err)

			digest := tt.digest.Sum(document)
			c := build(t, signer, cms.Options{}, cms.BuildRequest{
				Digest:      digest,
				Chain:       []*x509.Certificate{tt.cert, root.Cert},
				SigningTime: signingTime,
			})

			assert.Equal(t, 1, c.Version)
			assert.Equal(t, tt.digest, c.DigestAlgorithm)
			assert.True(t, c.SignatureAlgorithm.Algorithm.Equal(tt.sigOID))
			assert.True(t, signingTime.Equal(c.SigningTime))
			assert.Len(t, c.Certificates, 2)
			assert.NoError(t, c.VerifyDocumentDigest(digest))
			assert.NoError(t, c.VerifySignature())

			signerCert, err := c.Signer()
			require.NoError(t, err)
			assert.True(t, signerCert.Equal(tt.cert))
			assert.True(t, c.Chain()[0].Equal(tt.cert))

			c.Signature[0] ^= 0xFF
			assert.ErrorIs(t, c.VerifySignature(), cms.ErrInvalidSignature)
		})
	}
}

// Ed448 and DSA keys cannot be certified by crypto/x509, so the container
// carries an unrelated certificate and the key is supplied explicitly.
func TestBuildExplicitKeys(t *testing.T) {
	root := testpki.NewRoot(t, "CMS Root")
	holder := root.NewLeaf(t, "Key Holder")

	edPub, edPriv, err := ed448.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var dsaKey dsa.PrivateKey
	require.NoError(t, dsa.GenerateParameters(&dsaKey.Parameters, rand.Reader, dsa.L1024N160))
	require.NoError(t, dsa.GenerateKey(&dsaKey, rand.Reader))

	tests := []struct {
		name   string
		key    crypto.Signer
		pub    crypto.PublicKey
		digest cms.DigestAlgorithm
		alg    cms.KeyAlgorithm
	}{
		{name: "Ed448", key: edPriv, pub: edPub, digest: cms.SHAKE256, alg: cms.Ed448},
		{name: "DSA", key: cms.DSASigner{Key: &dsaKey}, pub: &dsaKey.PublicKey, digest: cms.SHA256, alg: cms.DSA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := cms.NewKeySigner(tt.key, tt.digest)
			require.NoError(t, err)
			assert.Equal(t, tt.alg, signer.KeyAlgorithm())

			c := build(t, signer, cms.Options{Mode: cms.ModeCAdES}, cms.BuildRequest{
				Digest: tt.digest.Sum([]byte("document")),
				Chain:  []*x509.Certificate{holder.Cert},
			})

			assert.NoError(t, c.VerifySignatureWithKey(tt.pub))
			c.Signature[len(c.Signature)-1] ^= 0x01
			assert.ErrorIs(t, c.VerifySignatureWithKey(tt.pub), cms.ErrInvalidSignature)
		})
	}
}

func TestBuildAttributes(t *testing.T) {
	now := time.Now()
	root := testpki.NewRoot(t, "CMS Root")
	leaf := root.NewLeaf(t, "Signer")
	crl := root.CRL(t, now.Add(-time.Hour), now.Add(time.Hour))
	ocspResp := root.OCSPResponse(t, leaf.Cert, ocsp.Good, testpki.OCSPOptions{})

	signer, err := cms.NewKeySigner(leaf.Key, cms.SHA256)
	require.NoError(t, err)
	digest := cms.SHA256.Sum([]byte("document"))
	chain := []*x509.Certificate{leaf.Cert, root.Cert}

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "CMS Mode Archives Evidence",
			testFunc: func(t *testing.T) {
				c := build(t, signer, cms.Options{}, cms.BuildRequest{
					Digest: digest, Chain: chain,
					CRLs: [][]byte{crl}, OCSPs: [][]byte{ocspResp},
				})
				assert.Equal(t, 1, c.Version)
				assert.Equal(t, [][]byte{crl}, c.CRLs)
				assert.Equal(t, [][]byte{ocspResp}, c.OCSPs)
				assert.Nil(t, c.SigningCertHash)
				assert.NoError(t, c.VerifySignature())
			},
		},
		{
			name: "CAdES Mode Carries Other Revocation Info",
			testFunc: func(t *testing.T) {
				c := build(t, signer, cms.Options{Mode: cms.ModeCAdES}, cms.BuildRequest{
					Digest: digest, Chain: chain,
					CRLs: [][]byte{crl}, OCSPs: [][]byte{ocspResp},
				})
				assert.Equal(t, 5, c.Version)
				assert.Equal(t, [][]byte{crl}, c.CRLs)
				assert.Equal(t, [][]byte{ocspResp}, c.OCSPs)
				assert.Equal(t, cms.SHA256.Sum(leaf.Cert.Raw), c.SigningCertHash)
				assert.True(t, c.SigningTime.IsZero())
				assert.NoError(t, c.VerifySignature())
			},
		},
		{
			name: "Signature Policy",
			testFunc: func(t *testing.T) {
				policy, err := cms.NewSignaturePolicyInfo("1.2.3.4.5", cms.SHA256.Sum([]byte("policy")), cms.SHA256, "https://example.com/policy")
				require.NoError(t, err)

				c := build(t, signer, cms.Options{}, cms.BuildRequest{Digest: digest, Chain: chain, Policy: policy})
				require.NotNil(t, c.Policy)
				assert.Equal(t, policy.PolicyID(), c.Policy.PolicyID())
				assert.Equal(t, policy.Hash(), c.Policy.Hash())
				assert.Equal(t, "https://example.com/policy", c.Policy.URI())
			},
		},
		{
			name: "Timestamp Over Signature",
			testFunc: func(t *testing.T) {
				ts := &fixedTimestamper{token: fakeToken(t), estimate: 512}
				c := build(t, signer, cms.Options{Timestamper: ts}, cms.BuildRequest{Digest: digest, Chain: chain})
				assert.Equal(t, ts.token, c.TimestampToken)
				assert.Equal(t, c.Signature, ts.got)
			},
		},
		{
			name: "Supplied Token Wins",
			testFunc: func(t *testing.T) {
				ts := &fixedTimestamper{err: errors.New("must not be called")}
				token := fakeToken(t)
				c := build(t, signer, cms.Options{Timestamper: ts, RequireTimestamp: true}, cms.BuildRequest{Digest: digest, Chain: chain, Timestamp: token})
				assert.Equal(t, token, c.TimestampToken)
				assert.Nil(t, ts.got)
			},
		},
		{
			name: "Timestamp Failure Is Soft",
			testFunc: func(t *testing.T) {
				ts := &fixedTimestamper{err: errors.New("tsa down")}
				c := build(t, signer, cms.Options{Timestamper: ts}, cms.BuildRequest{Digest: digest, Chain: chain})
				assert.Nil(t, c.TimestampToken)
			},
		},
		{
			name: "Required Timestamp Failure",
			testFunc: func(t *testing.T) {
				ts := &fixedTimestamper{err: errors.New("tsa down")}
				b, err := cms.NewBuilder(signer, cms.Options{Timestamper: ts, RequireTimestamp: true})
				require.NoError(t, err)
				_, err = b.Build(context.Background(), cms.BuildRequest{Digest: digest, Chain: chain})
				assert.ErrorIs(t, err, cms.ErrTimestamp)
			},
		},
		{
			name: "Invalid Requests",
			testFunc: func(t *testing.T) {
				b, err := cms.NewBuilder(signer, cms.Options{})
				require.NoError(t, err)

				_, err = b.Build(context.Background(), cms.BuildRequest{Digest: digest})
				assert.ErrorIs(t, err, cms.ErrEmptyChain)

				_, err = b.Build(context.Background(), cms.BuildRequest{Digest: digest[:20], Chain: chain})
				assert.ErrorIs(t, err, cms.ErrDigestLength)
			},
		},
		{
			name: "Builder Clock",
			testFunc: func(t *testing.T) {
				c := build(t, signer, cms.Options{Now: func() time.Time { return signingTime }}, cms.BuildRequest{Digest: digest, Chain: chain})
				assert.True(t, signingTime.Equal(c.SigningTime))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func TestEstimateSize(t *testing.T) {
	root := testpki.NewRoot(t, "CMS Root")
	leaf := root.NewLeaf(t, "Signer")
	signer, err := cms.NewKeySigner(leaf.Key, cms.SHA256)
	require.NoError(t, err)

	req := cms.BuildRequest{Chain: []*x509.Certificate{leaf.Cert, root.Cert}, CRLs: [][]byte{make([]byte, 100)}}
	base := 8192 + len(leaf.Cert.Raw) + len(root.Cert.Raw) + 110

	plain, err := cms.NewBuilder(signer, cms.Options{})
	require.NoError(t, err)
	assert.Equal(t, base, plain.EstimateSize(req))

	stamped, err := cms.NewBuilder(signer, cms.Options{Timestamper: &fixedTimestamper{estimate: 3000}})
	require.NoError(t, err)
	assert.Equal(t, base+3000+96, stamped.EstimateSize(req))
}

type crlClientFunc func(ctx context.Context, cert *x509.Certificate, url string) ([][]byte, error)

func (f crlClientFunc) Fetch(ctx context.Context, cert *x509.Certificate, url string) ([][]byte, error) {
	return f(ctx, cert, url)
}

type ocspEncoderFunc func(ctx context.Context, cert, issuer *x509.Certificate, url string) ([]byte, error)

func (f ocspEncoderFunc) Encoded(ctx context.Context, cert, issuer *x509.Certificate, url string) ([]byte, error) {
	return f(ctx, cert, issuer, url)
}

func TestCollectEvidence(t *testing.T) {
	root := testpki.NewRoot(t, "Evidence Root")
	inter := root.NewIntermediate(t, "Evidence Intermediate")
	leaf := inter.NewLeaf(t, "Evidence Leaf")
	chain := []*x509.Certificate{leaf.Cert, inter.Cert, root.Cert}

	shared := []byte{0x30, 0x00}
	crls := crlClientFunc(func(_ context.Context, cert *x509.Certificate, _ string) ([][]byte, error) {
		if cert.Equal(inter.Cert) {
			return [][]byte{shared, {0x30, 0x01, 0x00}}, nil
		}
		return [][]byte{shared}, nil
	})

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Deduplicates CRLs And Keeps Good OCSP",
			testFunc: func(t *testing.T) {
				good := ocspEncoderFunc(func(_ context.Context, cert, issuer *x509.Certificate, _ string) ([]byte, error) {
					assert.True(t, cert.Equal(leaf.Cert))
					assert.True(t, issuer.Equal(inter.Cert))
					return []byte("ocsp"), nil
				})
				data, err := cms.CollectEvidence(context.Background(), chain, crls, good, nil)
				require.NoError(t, err)
				assert.Equal(t, [][]byte{shared, {0x30, 0x01, 0x00}}, data.CRLs)
				assert.Equal(t, [][]byte{[]byte("ocsp")}, data.OCSPs)
				assert.False(t, data.Empty())
			},
		},
		{
			name: "Transport Failures Are Skipped",
			testFunc: func(t *testing.T) {
				failingCRL := crlClientFunc(func(context.Context, *x509.Certificate, string) ([][]byte, error) {
					return nil, x509fetch.ErrTransport
				})
				failingOCSP := ocspEncoderFunc(func(context.Context, *x509.Certificate, *x509.Certificate, string) ([]byte, error) {
					return nil, x509fetch.ErrTransport
				})
				data, err := cms.CollectEvidence(context.Background(), chain, failingCRL, failingOCSP, nil)
				require.NoError(t, err)
				assert.True(t, data.Empty())
			},
		},
		{
			name: "Revoked Is Fatal",
			testFunc: func(t *testing.T) {
				revoked := ocspEncoderFunc(func(context.Context, *x509.Certificate, *x509.Certificate, string) ([]byte, error) {
					return nil, x509fetch.ErrStatusRevoked
				})
				_, err := cms.CollectEvidence(context.Background(), chain, crls, revoked, nil)
				assert.ErrorIs(t, err, x509fetch.ErrStatusRevoked)
			},
		},
		{
			name: "Unknown Is Fatal",
			testFunc: func(t *testing.T) {
				unknown := ocspEncoderFunc(func(context.Context, *x509.Certificate, *x509.Certificate, string) ([]byte, error) {
					return nil, x509fetch.ErrStatusUnknown
				})
				_, err := cms.CollectEvidence(context.Background(), chain, nil, unknown, nil)
				assert.ErrorIs(t, err, x509fetch.ErrStatusUnknown)
			},
		},
		{
			name: "No Clients",
			testFunc: func(t *testing.T) {
				data, err := cms.CollectEvidence(context.Background(), chain, nil, nil, nil)
				require.NoError(t, err)
				assert.True(t, data.Empty())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}
