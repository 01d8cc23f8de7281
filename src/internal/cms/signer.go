// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cms

import (
	"context"
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA signatures are still produced for legacy signers.
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/asn1"
	"fmt"
	"io"
	"math/big"

	"github.com/cloudflare/circl/sign/ed448"
)

// ExternalSigner produces the raw signature over the DER encoded signed
// attributes. Implementations may delegate to an HSM or a remote service.
type ExternalSigner interface {
	Sign(ctx context.Context, signedAttrs []byte) ([]byte, error)
	DigestAlgorithm() DigestAlgorithm
	KeyAlgorithm() KeyAlgorithm
}

// KeySigner adapts an in-process crypto.Signer into an ExternalSigner.
type KeySigner struct {
	key    crypto.Signer
	digest DigestAlgorithm
	alg    KeyAlgorithm
	rand   io.Reader
}

// KeySignerOption customizes a KeySigner.
type KeySignerOption func(*KeySigner)

// WithPSS signs RSA keys with RSASSA-PSS instead of PKCS #1 v1.5.
func WithPSS() KeySignerOption {
	return func(s *KeySigner) {
		if s.alg == RSA {
			s.alg = RSAPSS
		}
	}
}

// WithRand sets the randomness source; crypto/rand by default.
func WithRand(r io.Reader) KeySignerOption {
	return func(s *KeySigner) { s.rand = r }
}

// NewKeySigner creates a KeySigner for an RSA, ECDSA, Ed25519, Ed448 or
// DSASigner key.
func NewKeySigner(key crypto.Signer, digest DigestAlgorithm, opts ...KeySignerOption) (*KeySigner, error) {
	s := &KeySigner{key: key, digest: digest, rand: rand.Reader}

	switch key.Public().(type) {
	case *rsa.PublicKey:
		s.alg = RSA
	case *ecdsa.PublicKey:
		s.alg = ECDSA
	case *dsa.PublicKey:
		s.alg = DSA
	case ed25519.PublicKey:
		s.alg = Ed25519
	case ed448.PublicKey:
		s.alg = Ed448
	default:
		return nil, fmt.Errorf("%w: key type %T", ErrUnsupportedAlgorithm, key.Public())
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DigestAlgorithm implements ExternalSigner.
func (s *KeySigner) DigestAlgorithm() DigestAlgorithm { return s.digest }

// KeyAlgorithm implements ExternalSigner.
func (s *KeySigner) KeyAlgorithm() KeyAlgorithm { return s.alg }

// Public returns the public key of the signer.
func (s *KeySigner) Public() crypto.PublicKey { return s.key.Public() }

// Sign implements ExternalSigner. EdDSA keys sign the attributes directly;
// other keys sign their digest.
func (s *KeySigner) Sign(ctx context.Context, signedAttrs []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch s.alg {
	case Ed25519, Ed448:
		return s.key.Sign(s.rand, signedAttrs, crypto.Hash(0))
	case RSAPSS:
		params := DerivePSSParameters(s.digest)
		return s.key.Sign(s.rand, s.digest.Sum(signedAttrs), &rsa.PSSOptions{
			SaltLength: params.SaltLength,
			Hash:       s.digest.HashFunc(),
		})
	default:
		return s.key.Sign(s.rand, s.digest.Sum(signedAttrs), s.digest.HashFunc())
	}
}

// DSASigner makes a DSA private key usable as a crypto.Signer. Signatures
// are DER encoded Dss-Sig-Value structures.
type DSASigner struct {
	Key *dsa.PrivateKey
}

type dsaSignature struct {
	R, S *big.Int
}

// Public implements crypto.Signer.
func (s DSASigner) Public() crypto.PublicKey { return &s.Key.PublicKey }

// Sign implements crypto.Signer. The digest is truncated to the size of Q
// as FIPS 186-3 requires.
func (s DSASigner) Sign(rand io.Reader, digest []byte, _ crypto.SignerOpts) ([]byte, error) {
	r, sig, err := dsa.Sign(rand, s.Key, truncateDSADigest(digest, s.Key.Q))
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(dsaSignature{R: r, S: sig})
}

// VerifyDSA checks a DER encoded DSA signature over digest.
func VerifyDSA(pub *dsa.PublicKey, digest, sig []byte) bool {
	var parsed dsaSignature
	if rest, err := asn1.Unmarshal(sig, &parsed); err != nil || len(rest) > 0 {
		return false
	}
	return dsa.Verify(pub, truncateDSADigest(digest, pub.Q), parsed.R, parsed.S)
}

func truncateDSADigest(digest []byte, q *big.Int) []byte {
	if n := (q.BitLen() + 7) / 8; len(digest) > n {
		return digest[:n]
	}
	return digest
}
