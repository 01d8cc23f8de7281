// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cms

import (
	"crypto"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/sha3"
)

var (
	// ErrUnsupportedAlgorithm indicates an unknown digest, key or signature
	// algorithm.
	ErrUnsupportedAlgorithm = errors.New("cms: unsupported algorithm")

	// ErrAlgorithmMismatch indicates a digest or parameter set that the
	// signature algorithm does not allow.
	ErrAlgorithmMismatch = errors.New("cms: algorithm mismatch")
)

var asn1Null = asn1.RawValue{Tag: asn1.TagNull}

// DigestAlgorithm identifies a message digest.
type DigestAlgorithm int

const (
	SHA256 DigestAlgorithm = iota + 1
	SHA384
	SHA512
	// SHAKE256 with a 512-bit output, as required by Ed448.
	SHAKE256
)

type digestInfo struct {
	name string
	oid  asn1.ObjectIdentifier
	hash crypto.Hash
	size int
	new  func() hash.Hash
}

var digests = map[DigestAlgorithm]digestInfo{
	SHA256:   {"SHA-256", OIDSHA256, crypto.SHA256, 32, sha256.New},
	SHA384:   {"SHA-384", OIDSHA384, crypto.SHA384, 48, sha512.New384},
	SHA512:   {"SHA-512", OIDSHA512, crypto.SHA512, 64, sha512.New},
	SHAKE256: {"SHAKE256", OIDSHAKE256, 0, 64, func() hash.Hash { return sha3.NewShake256() }},
}

// ParseDigestAlgorithm accepts names such as "SHA-256", "sha256" or
// "SHAKE256".
func ParseDigestAlgorithm(name string) (DigestAlgorithm, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(name, "-", ""))
	for d, info := range digests {
		if strings.ReplaceAll(info.name, "-", "") == normalized {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: digest %q", ErrUnsupportedAlgorithm, name)
}

// DigestAlgorithmFromOID maps an algorithm identifier to a DigestAlgorithm.
func DigestAlgorithmFromOID(oid asn1.ObjectIdentifier) (DigestAlgorithm, error) {
	for d, info := range digests {
		if info.oid.Equal(oid) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: digest %s", ErrUnsupportedAlgorithm, oid)
}

// Valid reports whether d is a known algorithm.
func (d DigestAlgorithm) Valid() bool {
	_, ok := digests[d]
	return ok
}

func (d DigestAlgorithm) String() string {
	if info, ok := digests[d]; ok {
		return info.name
	}
	return fmt.Sprintf("DigestAlgorithm(%d)", int(d))
}

// OID returns the algorithm identifier OID, or nil for an unknown d.
func (d DigestAlgorithm) OID() asn1.ObjectIdentifier { return digests[d].oid }

// HashFunc returns the crypto.Hash of d; it is zero for SHAKE256.
func (d DigestAlgorithm) HashFunc() crypto.Hash { return digests[d].hash }

// Size returns the digest length in bytes.
func (d DigestAlgorithm) Size() int { return digests[d].size }

// New returns a fresh hash.Hash; it panics for an unknown d.
func (d DigestAlgorithm) New() hash.Hash {
	info, ok := digests[d]
	if !ok {
		panic("cms: New called on unknown digest algorithm")
	}
	return info.new()
}

// Sum digests data.
func (d DigestAlgorithm) Sum(data []byte) []byte {
	h := d.New()
	h.Write(data)
	return h.Sum(nil)
}

// Identifier returns the AlgorithmIdentifier of d. SHA-2 identifiers carry
// NULL parameters; SHAKE256 has none.
func (d DigestAlgorithm) Identifier() pkix.AlgorithmIdentifier {
	id := pkix.AlgorithmIdentifier{Algorithm: d.OID()}
	if d != SHAKE256 {
		id.Parameters = asn1Null
	}
	return id
}

// KeyAlgorithm identifies the signature scheme of a key.
type KeyAlgorithm int

const (
	RSA KeyAlgorithm = iota + 1
	RSAPSS
	ECDSA
	DSA
	Ed25519
	Ed448
)

func (k KeyAlgorithm) String() string {
	switch k {
	case RSA:
		return "RSA"
	case RSAPSS:
		return "RSASSA-PSS"
	case ECDSA:
		return "ECDSA"
	case DSA:
		return "DSA"
	case Ed25519:
		return "Ed25519"
	case Ed448:
		return "Ed448"
	default:
		return fmt.Sprintf("KeyAlgorithm(%d)", int(k))
	}
}

type algorithmPair struct {
	key    KeyAlgorithm
	digest DigestAlgorithm
}

// signatureOIDs lists every allowed key and digest combination.
var signatureOIDs = map[algorithmPair]asn1.ObjectIdentifier{
	{RSA, SHA256}:     OIDSHA256WithRSA,
	{RSA, SHA384}:     OIDSHA384WithRSA,
	{RSA, SHA512}:     OIDSHA512WithRSA,
	{RSAPSS, SHA256}:  OIDRSASSAPSS,
	{RSAPSS, SHA384}:  OIDRSASSAPSS,
	{RSAPSS, SHA512}:  OIDRSASSAPSS,
	{ECDSA, SHA256}:   OIDECDSAWithSHA256,
	{ECDSA, SHA384}:   OIDECDSAWithSHA384,
	{ECDSA, SHA512}:   OIDECDSAWithSHA512,
	{DSA, SHA256}:     OIDDSAWithSHA256,
	{DSA, SHA384}:     OIDDSAWithSHA384,
	{DSA, SHA512}:     OIDDSAWithSHA512,
	{Ed25519, SHA512}: OIDEd25519,
	{Ed448, SHAKE256}: OIDEd448,
}

// SignatureOID returns the signature algorithm OID for key and digest, or
// ErrAlgorithmMismatch when the combination is not allowed.
func SignatureOID(key KeyAlgorithm, digest DigestAlgorithm) (asn1.ObjectIdentifier, error) {
	if !digest.Valid() {
		return nil, fmt.Errorf("%w: digest %s", ErrUnsupportedAlgorithm, digest)
	}
	oid, ok := signatureOIDs[algorithmPair{key, digest}]
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be used with %s", ErrAlgorithmMismatch, key, digest)
	}
	return oid, nil
}

// PSSParameters are explicit RSASSA-PSS parameters.
type PSSParameters struct {
	Hash       DigestAlgorithm
	MGFHash    DigestAlgorithm
	SaltLength int
}

// DerivePSSParameters returns the parameters implied by digest: the same
// hash for message and MGF1, and a salt as long as the digest.
func DerivePSSParameters(digest DigestAlgorithm) PSSParameters {
	return PSSParameters{Hash: digest, MGFHash: digest, SaltLength: digest.Size()}
}

type pssParamsASN1 struct {
	HashAlgorithm    pkix.AlgorithmIdentifier `asn1:"explicit,tag:0"`
	MaskGenAlgorithm pkix.AlgorithmIdentifier `asn1:"explicit,tag:1"`
	SaltLength       int                      `asn1:"explicit,tag:2"`
	TrailerField     int                      `asn1:"optional,explicit,tag:3,default:1"`
}

// Marshal encodes p as RSASSA-PSS-params.
func (p PSSParameters) Marshal() ([]byte, error) {
	mgfHash, err := asn1.Marshal(p.MGFHash.Identifier())
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(pssParamsASN1{
		HashAlgorithm: p.Hash.Identifier(),
		MaskGenAlgorithm: pkix.AlgorithmIdentifier{
			Algorithm:  OIDMGF1,
			Parameters: asn1.RawValue{FullBytes: mgfHash},
		},
		SaltLength:   p.SaltLength,
		TrailerField: 1,
	})
}

// ParsePSSParameters decodes RSASSA-PSS-params.
func ParsePSSParameters(der []byte) (PSSParameters, error) {
	var raw pssParamsASN1
	if _, err := asn1.Unmarshal(der, &raw); err != nil {
		return PSSParameters{}, fmt.Errorf("cms: parse PSS parameters: %w", err)
	}
	h, err := DigestAlgorithmFromOID(raw.HashAlgorithm.Algorithm)
	if err != nil {
		return PSSParameters{}, err
	}
	var mgfHashID pkix.AlgorithmIdentifier
	if _, err := asn1.Unmarshal(raw.MaskGenAlgorithm.Parameters.FullBytes, &mgfHashID); err != nil {
		return PSSParameters{}, fmt.Errorf("cms: parse MGF1 parameters: %w", err)
	}
	mgf, err := DigestAlgorithmFromOID(mgfHashID.Algorithm)
	if err != nil {
		return PSSParameters{}, err
	}
	return PSSParameters{Hash: h, MGFHash: mgf, SaltLength: raw.SaltLength}, nil
}

// SignatureIdentifier returns the AlgorithmIdentifier placed in SignerInfo
// for key and digest. RSASSA-PSS carries parameters derived from digest.
func SignatureIdentifier(key KeyAlgorithm, digest DigestAlgorithm) (pkix.AlgorithmIdentifier, error) {
	oid, err := SignatureOID(key, digest)
	if err != nil {
		return pkix.AlgorithmIdentifier{}, err
	}

	id := pkix.AlgorithmIdentifier{Algorithm: oid}
	switch key {
	case RSA:
		id.Parameters = asn1Null
	case RSAPSS:
		params, err := DerivePSSParameters(digest).Marshal()
		if err != nil {
			return pkix.AlgorithmIdentifier{}, err
		}
		id.Parameters = asn1.RawValue{FullBytes: params}
	}
	return id, nil
}
