// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cms

import (
	"bytes"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrEmptyPolicyID indicates a signature policy without identifier.
	ErrEmptyPolicyID = errors.New("cms: signature policy identifier is empty")

	// ErrEmptyPolicyHash indicates a signature policy without hash.
	ErrEmptyPolicyHash = errors.New("cms: signature policy hash is empty")

	// ErrPolicyHashLength indicates a policy hash whose length does not
	// match its digest algorithm.
	ErrPolicyHashLength = errors.New("cms: signature policy hash length does not match digest")
)

// SignaturePolicyInfo references the signature policy a signature was
// created under. It is immutable.
type SignaturePolicyInfo struct {
	id     asn1.ObjectIdentifier
	digest DigestAlgorithm
	hash   []byte
	uri    string
}

// NewSignaturePolicyInfo creates a SignaturePolicyInfo. policyID is a
// dotted OID, hash the digest of the policy document computed with digest,
// and uri an optional location of the document.
func NewSignaturePolicyInfo(policyID string, hash []byte, digest DigestAlgorithm, uri string) (*SignaturePolicyInfo, error) {
	if strings.TrimSpace(policyID) == "" {
		return nil, ErrEmptyPolicyID
	}
	if len(hash) == 0 {
		return nil, ErrEmptyPolicyHash
	}
	if !digest.Valid() {
		return nil, fmt.Errorf("%w: policy digest %s", ErrUnsupportedAlgorithm, digest)
	}
	if len(hash) != digest.Size() {
		return nil, fmt.Errorf("%w: got %d bytes, %s needs %d", ErrPolicyHashLength, len(hash), digest, digest.Size())
	}

	oid, err := ParseOID(policyID)
	if err != nil {
		return nil, err
	}

	return &SignaturePolicyInfo{
		id:     oid,
		digest: digest,
		hash:   bytes.Clone(hash),
		uri:    uri,
	}, nil
}

// NewSignaturePolicyInfoBase64 is NewSignaturePolicyInfo with a base64 hash
// and a digest given by name.
func NewSignaturePolicyInfoBase64(policyID, hashBase64, digestName, uri string) (*SignaturePolicyInfo, error) {
	if hashBase64 == "" {
		return nil, ErrEmptyPolicyHash
	}
	hash, err := base64.StdEncoding.DecodeString(hashBase64)
	if err != nil {
		return nil, fmt.Errorf("cms: decode policy hash: %w", err)
	}
	digest, err := ParseDigestAlgorithm(digestName)
	if err != nil {
		return nil, err
	}
	return NewSignaturePolicyInfo(policyID, hash, digest, uri)
}

// ParseOID parses a dotted object identifier such as "2.16.840.1.101.3.4.2.1".
// The first arc must be 0, 1 or 2, and the second below 40 unless the first
// is 2 (X.660).
func ParseOID(s string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("cms: invalid object identifier %q", s)
	}
	oid := make(asn1.ObjectIdentifier, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("cms: invalid object identifier %q", s)
		}
		oid[i] = n
	}
	if oid[0] > 2 || (oid[0] < 2 && oid[1] >= 40) {
		return nil, fmt.Errorf("cms: invalid object identifier %q: bad leading arcs", s)
	}
	return oid, nil
}

// PolicyID returns the policy OID.
func (p *SignaturePolicyInfo) PolicyID() asn1.ObjectIdentifier { return append(asn1.ObjectIdentifier(nil), p.id...) }

// DigestAlgorithm returns the algorithm of Hash.
func (p *SignaturePolicyInfo) DigestAlgorithm() DigestAlgorithm { return p.digest }

// Hash returns a copy of the policy document digest.
func (p *SignaturePolicyInfo) Hash() []byte { return bytes.Clone(p.hash) }

// URI returns the policy location, if any.
func (p *SignaturePolicyInfo) URI() string { return p.uri }

type otherHashAlgAndValue struct {
	HashAlgorithm pkix.AlgorithmIdentifier
	HashValue     []byte
}

type sigPolicyQualifierInfo struct {
	ID        asn1.ObjectIdentifier
	Qualifier asn1.RawValue
}

type signaturePolicyID struct {
	SigPolicyID         asn1.ObjectIdentifier
	SigPolicyHash       otherHashAlgAndValue
	SigPolicyQualifiers []sigPolicyQualifierInfo `asn1:"optional"`
}

// Marshal encodes p as a SignaturePolicyId (RFC 5126), the value of the
// signature-policy-identifier attribute.
func (p *SignaturePolicyInfo) Marshal() ([]byte, error) {
	value := signaturePolicyID{
		SigPolicyID: p.id,
		SigPolicyHash: otherHashAlgAndValue{
			HashAlgorithm: p.digest.Identifier(),
			HashValue:     p.hash,
		},
	}

	if p.uri != "" {
		uri, err := asn1.MarshalWithParams(p.uri, "ia5")
		if err != nil {
			return nil, fmt.Errorf("cms: marshal policy URI: %w", err)
		}
		value.SigPolicyQualifiers = []sigPolicyQualifierInfo{{
			ID:        OIDSPURI,
			Qualifier: asn1.RawValue{FullBytes: uri},
		}}
	}

	der, err := asn1.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cms: marshal signature policy: %w", err)
	}
	return der, nil
}

// ParseSignaturePolicyInfo decodes a SignaturePolicyId.
func ParseSignaturePolicyInfo(der []byte) (*SignaturePolicyInfo, error) {
	var value signaturePolicyID
	rest, err := asn1.Unmarshal(der, &value)
	if err != nil {
		return nil, fmt.Errorf("cms: parse signature policy: %w", err)
	}
	if len(rest) > 0 {
		return nil, errors.New("cms: trailing data after signature policy")
	}

	digest, err := DigestAlgorithmFromOID(value.SigPolicyHash.HashAlgorithm.Algorithm)
	if err != nil {
		return nil, err
	}

	var uri string
	for _, q := range value.SigPolicyQualifiers {
		if q.ID.Equal(OIDSPURI) {
			if _, err := asn1.Unmarshal(q.Qualifier.FullBytes, &uri); err != nil {
				return nil, fmt.Errorf("cms: parse policy URI: %w", err)
			}
		}
	}

	if len(value.SigPolicyID) == 0 {
		return nil, ErrEmptyPolicyID
	}
	if len(value.SigPolicyHash.HashValue) == 0 {
		return nil, ErrEmptyPolicyHash
	}
	if len(value.SigPolicyHash.HashValue) != digest.Size() {
		return nil, fmt.Errorf("%w: got %d bytes, %s needs %d", ErrPolicyHashLength, len(value.SigPolicyHash.HashValue), digest, digest.Size())
	}

	return &SignaturePolicyInfo{
		id:     value.SigPolicyID,
		digest: digest,
		hash:   value.SigPolicyHash.HashValue,
		uri:    uri,
	}, nil
}
