// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cms

import (
	"bytes"
	"crypto"
	"crypto/dsa" //nolint:staticcheck // verification of legacy DSA signers.
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"time"

	"github.com/cloudflare/circl/sign/ed448"
)

var (
	// ErrNotSignedData indicates a ContentInfo of another content type.
	ErrNotSignedData = errors.New("cms: content is not SignedData")

	// ErrInvalidSignature indicates a signature that does not verify.
	ErrInvalidSignature = errors.New("cms: invalid signature")

	// ErrSignerNotFound indicates a container without the signer
	// certificate.
	ErrSignerNotFound = errors.New("cms: signer certificate not found")
)

// Container is a parsed SignedData with a single signer.
type Container struct {
	Raw     []byte
	Version int
	// ContentType is the encapsulated content type, id-data for detached
	// signatures.
	ContentType asn1.ObjectIdentifier
	// Content is the encapsulated content; nil when detached.
	Content      []byte
	Certificates []*x509.Certificate
	CRLs         [][]byte
	// OCSPs holds responses from other revocation information and from the
	// Adobe archival attribute.
	OCSPs              [][]byte
	SignedAttributes   []Attribute
	RawSignedAttrs     []byte
	DigestAlgorithm    DigestAlgorithm
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
	MessageDigest      []byte
	SigningTime        time.Time
	Policy             *SignaturePolicyInfo
	SigningCertHash    []byte
	TimestampToken     []byte

	issuer asn1.RawValue
	serial []byte
}

// Parse decodes a DER ContentInfo holding SignedData.
func Parse(der []byte) (*Container, error) {
	var ci contentInfo
	if rest, err := asn1.Unmarshal(der, &ci); err != nil {
		return nil, fmt.Errorf("cms: parse ContentInfo: %w", err)
	} else if len(rest) > 0 {
		// Containers embedded in a reserved region carry zero padding.
		if !bytes.Equal(rest, make([]byte, len(rest))) {
			return nil, errors.New("cms: trailing data after ContentInfo")
		}
	}
	if !ci.ContentType.Equal(OIDSignedData) {
		return nil, fmt.Errorf("%w: %s", ErrNotSignedData, ci.ContentType)
	}

	var sd signedData
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil {
		return nil, fmt.Errorf("cms: parse SignedData: %w", err)
	}
	if len(sd.SignerInfos) != 1 {
		return nil, fmt.Errorf("cms: expected one signer, found %d", len(sd.SignerInfos))
	}

	c := &Container{Raw: der, Version: sd.Version, ContentType: sd.EncapContentInfo.EContentType}
	if econtent := sd.EncapContentInfo.EContent.Bytes; len(econtent) > 0 {
		if _, err := asn1.Unmarshal(econtent, &c.Content); err != nil {
			return nil, fmt.Errorf("cms: parse encapsulated content: %w", err)
		}
	}
	for _, raw := range sd.Certificates {
		cert, err := x509.ParseCertificate(raw.FullBytes)
		if err != nil {
			return nil, fmt.Errorf("cms: parse certificate: %w", err)
		}
		c.Certificates = append(c.Certificates, cert)
	}
	for _, raw := range sd.CRLs {
		if raw.Class == asn1.ClassContextSpecific && raw.Tag == 1 {
			var other otherRevocationInfoFormat
			if _, err := asn1.UnmarshalWithParams(raw.FullBytes, &other, "tag:1"); err != nil {
				return nil, fmt.Errorf("cms: parse other revocation info: %w", err)
			}
			if other.Format.Equal(OIDOCSPResponseRevInfo) {
				c.OCSPs = append(c.OCSPs, other.Info.FullBytes)
			}
			continue
		}
		c.CRLs = append(c.CRLs, raw.FullBytes)
	}

	si := sd.SignerInfos[0]
	digest, err := DigestAlgorithmFromOID(si.DigestAlgorithm.Algorithm)
	if err != nil {
		return nil, err
	}
	c.DigestAlgorithm = digest
	c.SignatureAlgorithm = si.SignatureAlgorithm
	c.Signature = si.Signature
	c.issuer = si.SID.Issuer
	c.serial = si.SID.SerialNumber.Bytes()

	if len(si.SignedAttrs.FullBytes) == 0 {
		return nil, errors.New("cms: signer has no signed attributes")
	}
	c.RawSignedAttrs = bytes.Clone(si.SignedAttrs.FullBytes)
	c.RawSignedAttrs[0] = 0x31
	if c.SignedAttributes, err = ParseAttributes(c.RawSignedAttrs); err != nil {
		return nil, err
	}
	if err := c.readSignedAttributes(); err != nil {
		return nil, err
	}

	if len(si.UnsignedAttrs.FullBytes) > 0 {
		unsigned, err := ParseAttributes(si.UnsignedAttrs.FullBytes)
		if err != nil {
			return nil, err
		}
		if v, ok := findAttribute(unsigned, OIDSignatureTimeStampToken); ok {
			c.TimestampToken = v.FullBytes
		}
	}

	return c, nil
}

func (c *Container) readSignedAttributes() error {
	v, ok := findAttribute(c.SignedAttributes, OIDMessageDigest)
	if !ok {
		return errors.New("cms: message-digest attribute missing")
	}
	if _, err := asn1.Unmarshal(v.FullBytes, &c.MessageDigest); err != nil {
		return fmt.Errorf("cms: parse message-digest: %w", err)
	}

	if v, ok := findAttribute(c.SignedAttributes, OIDSigningTime); ok {
		if _, err := asn1.Unmarshal(v.FullBytes, &c.SigningTime); err != nil {
			return fmt.Errorf("cms: parse signing-time: %w", err)
		}
	}

	if v, ok := findAttribute(c.SignedAttributes, OIDSignaturePolicyIdentifier); ok {
		policy, err := ParseSignaturePolicyInfo(v.FullBytes)
		if err != nil {
			return err
		}
		c.Policy = policy
	}

	if v, ok := findAttribute(c.SignedAttributes, OIDSigningCertificateV2); ok {
		var sc signingCertificateV2
		if _, err := asn1.Unmarshal(v.FullBytes, &sc); err != nil {
			return fmt.Errorf("cms: parse signing-certificate-v2: %w", err)
		}
		if len(sc.Certs) > 0 {
			c.SigningCertHash = sc.Certs[0].CertHash
		}
	}

	if v, ok := findAttribute(c.SignedAttributes, OIDAdobeRevocationInfoArchival); ok {
		var archival revocationInfoArchival
		if _, err := asn1.Unmarshal(v.FullBytes, &archival); err != nil {
			return fmt.Errorf("cms: parse revocation archival: %w", err)
		}
		for _, raw := range archival.CRL {
			if !containsBlob(c.CRLs, raw.FullBytes) {
				c.CRLs = append(c.CRLs, raw.FullBytes)
			}
		}
		for _, raw := range archival.OCSP {
			c.OCSPs = append(c.OCSPs, raw.FullBytes)
		}
	}
	return nil
}

func containsBlob(list [][]byte, blob []byte) bool {
	for _, have := range list {
		if bytes.Equal(have, blob) {
			return true
		}
	}
	return false
}

// Signer returns the certificate identified by the signer info.
func (c *Container) Signer() (*x509.Certificate, error) {
	for _, cert := range c.Certificates {
		if bytes.Equal(cert.RawIssuer, c.issuer.FullBytes) && bytes.Equal(cert.SerialNumber.Bytes(), c.serial) {
			return cert, nil
		}
	}
	return nil, ErrSignerNotFound
}

// Chain returns the embedded certificates with the signer first.
func (c *Container) Chain() []*x509.Certificate {
	signer, err := c.Signer()
	if err != nil {
		return c.Certificates
	}
	chain := []*x509.Certificate{signer}
	for _, cert := range c.Certificates {
		if cert != signer {
			chain = append(chain, cert)
		}
	}
	return chain
}

// VerifyDocumentDigest reports whether digest equals the signed
// message-digest attribute.
func (c *Container) VerifyDocumentDigest(digest []byte) error {
	if !bytes.Equal(digest, c.MessageDigest) {
		return fmt.Errorf("%w: message digest mismatch", ErrInvalidSignature)
	}
	return nil
}

// VerifyContent checks the encapsulated content against the
// message-digest attribute.
func (c *Container) VerifyContent() error {
	if c.Content == nil {
		return fmt.Errorf("%w: no encapsulated content", ErrInvalidSignature)
	}
	return c.VerifyDocumentDigest(c.DigestAlgorithm.Sum(c.Content))
}

// VerifySignature verifies the signature with the signer certificate's
// public key.
func (c *Container) VerifySignature() error {
	signer, err := c.Signer()
	if err != nil {
		return err
	}
	if c.SigningCertHash != nil && !bytes.Equal(c.SigningCertHash, c.DigestAlgorithm.Sum(signer.Raw)) {
		return fmt.Errorf("%w: signing-certificate-v2 does not match signer", ErrInvalidSignature)
	}
	return c.VerifySignatureWithKey(signer.PublicKey)
}

// VerifySignatureWithKey verifies the signature over the signed attributes
// with pub. DSA and Ed448 keys are accepted even though x509 cannot carry
// them.
func (c *Container) VerifySignatureWithKey(pub crypto.PublicKey) error {
	alg := c.SignatureAlgorithm.Algorithm
	digest := c.DigestAlgorithm

	var ok bool
	switch key := pub.(type) {
	case *rsa.PublicKey:
		hashed := digest.Sum(c.RawSignedAttrs)
		if alg.Equal(OIDRSASSAPSS) {
			params, err := ParsePSSParameters(c.SignatureAlgorithm.Parameters.FullBytes)
			if err != nil {
				return err
			}
			if params.Hash != digest || params.MGFHash != digest {
				return fmt.Errorf("%w: PSS parameters %+v with digest %s", ErrAlgorithmMismatch, params, digest)
			}
			ok = rsa.VerifyPSS(key, digest.HashFunc(), hashed, c.Signature, &rsa.PSSOptions{SaltLength: params.SaltLength}) == nil
		} else {
			ok = rsa.VerifyPKCS1v15(key, digest.HashFunc(), hashed, c.Signature) == nil
		}
	case *ecdsa.PublicKey:
		ok = ecdsa.VerifyASN1(key, digest.Sum(c.RawSignedAttrs), c.Signature)
	case *dsa.PublicKey:
		ok = VerifyDSA(key, digest.Sum(c.RawSignedAttrs), c.Signature)
	case ed25519.PublicKey:
		if !alg.Equal(OIDEd25519) {
			return fmt.Errorf("%w: %s for Ed25519 key", ErrAlgorithmMismatch, alg)
		}
		ok = ed25519.Verify(key, c.RawSignedAttrs, c.Signature)
	case ed448.PublicKey:
		if !alg.Equal(OIDEd448) {
			return fmt.Errorf("%w: %s for Ed448 key", ErrAlgorithmMismatch, alg)
		}
		ok = ed448.Verify(key, c.RawSignedAttrs, c.Signature, "")
	default:
		return fmt.Errorf("%w: key type %T", ErrUnsupportedAlgorithm, pub)
	}

	if !ok {
		return ErrInvalidSignature
	}
	return nil
}
