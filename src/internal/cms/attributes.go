// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cms

import (
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"slices"
	"time"
)

// Attribute is a CMS attribute.
type Attribute struct {
	Type   asn1.ObjectIdentifier
	Values []asn1.RawValue `asn1:"set"`
}

// NewAttribute creates an attribute with the single value v.
func NewAttribute(oid asn1.ObjectIdentifier, v any) (Attribute, error) {
	encoded, err := asn1.Marshal(v)
	if err != nil {
		return Attribute{}, fmt.Errorf("cms: marshal attribute %s: %w", oid, err)
	}
	return Attribute{Type: oid, Values: []asn1.RawValue{{FullBytes: encoded}}}, nil
}

// MarshalAttributes DER encodes attrs as a SET OF Attribute, the form that
// is signed. Elements are sorted by their encoding.
func MarshalAttributes(attrs []Attribute) ([]byte, error) {
	encoded := make([][]byte, 0, len(attrs))
	for _, a := range attrs {
		der, err := asn1.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("cms: marshal attribute %s: %w", a.Type, err)
		}
		encoded = append(encoded, der)
	}
	slices.SortFunc(encoded, bytes.Compare)

	set, err := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassUniversal,
		Tag:        asn1.TagSet,
		IsCompound: true,
		Bytes:      bytes.Join(encoded, nil),
	})
	if err != nil {
		return nil, fmt.Errorf("cms: marshal attribute set: %w", err)
	}
	return set, nil
}

// implicitSet retags a DER SET as the IMPLICIT [tag] used in SignerInfo.
func implicitSet(set []byte, tag byte) asn1.RawValue {
	retagged := bytes.Clone(set)
	retagged[0] = 0xA0 | tag
	return asn1.RawValue{FullBytes: retagged}
}

// ParseAttributes decodes a SET OF Attribute, accepting either the SET tag
// or an IMPLICIT context tag.
func ParseAttributes(der []byte) ([]Attribute, error) {
	var set asn1.RawValue
	if _, err := asn1.Unmarshal(der, &set); err != nil {
		return nil, fmt.Errorf("cms: parse attributes: %w", err)
	}

	var attrs []Attribute
	for rest := set.Bytes; len(rest) > 0; {
		var a Attribute
		var err error
		if rest, err = asn1.Unmarshal(rest, &a); err != nil {
			return nil, fmt.Errorf("cms: parse attribute: %w", err)
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

func findAttribute(attrs []Attribute, oid asn1.ObjectIdentifier) (asn1.RawValue, bool) {
	for _, a := range attrs {
		if a.Type.Equal(oid) && len(a.Values) > 0 {
			return a.Values[0], true
		}
	}
	return asn1.RawValue{}, false
}

// essCertIDv2 and friends follow RFC 5035.
type essCertIDv2 struct {
	HashAlgorithm pkix.AlgorithmIdentifier `asn1:"optional"`
	CertHash      []byte
	IssuerSerial  issuerSerial
}

type issuerSerial struct {
	Issuer       []asn1.RawValue
	SerialNumber *big.Int
}

type signingCertificateV2 struct {
	Certs []essCertIDv2
}

func signingCertificateAttribute(cert *x509.Certificate, digest DigestAlgorithm) (Attribute, error) {
	id := essCertIDv2{
		CertHash: digest.Sum(cert.Raw),
		IssuerSerial: issuerSerial{
			// GeneralName directoryName [4] wraps the issuer Name.
			Issuer: []asn1.RawValue{{
				Class:      asn1.ClassContextSpecific,
				Tag:        4,
				IsCompound: true,
				Bytes:      cert.RawIssuer,
			}},
			SerialNumber: cert.SerialNumber,
		},
	}
	// SHA-256 is the default hash and is omitted.
	if digest != SHA256 {
		id.HashAlgorithm = digest.Identifier()
	}
	return NewAttribute(OIDSigningCertificateV2, signingCertificateV2{Certs: []essCertIDv2{id}})
}

// revocationInfoArchival is the Adobe adbe-revocationInfoArchival value.
type revocationInfoArchival struct {
	CRL  []asn1.RawValue `asn1:"optional,explicit,tag:0"`
	OCSP []asn1.RawValue `asn1:"optional,explicit,tag:1"`
}

func revocationArchivalAttribute(crls, ocsps [][]byte) (Attribute, error) {
	var value revocationInfoArchival
	for _, crl := range crls {
		value.CRL = append(value.CRL, asn1.RawValue{FullBytes: crl})
	}
	for _, resp := range ocsps {
		value.OCSP = append(value.OCSP, asn1.RawValue{FullBytes: resp})
	}
	return NewAttribute(OIDAdobeRevocationInfoArchival, value)
}

type signedAttributesRequest struct {
	mode        Mode
	digest      DigestAlgorithm
	document    []byte
	signer      *x509.Certificate
	signingTime time.Time
	policy      *SignaturePolicyInfo
	crls        [][]byte
	ocsps       [][]byte
}

func buildSignedAttributes(req signedAttributesRequest) ([]Attribute, error) {
	contentType, err := NewAttribute(OIDContentType, OIDData)
	if err != nil {
		return nil, err
	}
	messageDigest, err := NewAttribute(OIDMessageDigest, req.document)
	if err != nil {
		return nil, err
	}
	attrs := []Attribute{contentType, messageDigest}

	switch req.mode {
	case ModeCAdES:
		signingCert, err := signingCertificateAttribute(req.signer, req.digest)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, signingCert)
	default:
		signingTime, err := NewAttribute(OIDSigningTime, req.signingTime.UTC())
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, signingTime)

		if len(req.crls) > 0 || len(req.ocsps) > 0 {
			archival, err := revocationArchivalAttribute(req.crls, req.ocsps)
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, archival)
		}
	}

	if req.policy != nil {
		value, err := req.policy.Marshal()
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, Attribute{
			Type:   OIDSignaturePolicyIdentifier,
			Values: []asn1.RawValue{{FullBytes: value}},
		})
	}

	return attrs, nil
}
