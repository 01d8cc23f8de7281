// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cms

import (
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
)

var (
	// ErrEmptyChain indicates a build request without signer certificate.
	ErrEmptyChain = errors.New("cms: certificate chain is empty")

	// ErrDigestLength indicates a document digest whose length does not match
	// the signer's digest algorithm.
	ErrDigestLength = errors.New("cms: document digest has wrong length")

	// ErrTimestamp indicates a required timestamp could not be obtained.
	ErrTimestamp = errors.New("cms: timestamp unavailable")
)

// Mode selects the signature profile and the dictionary values a host
// document advertises for it.
type Mode int

const (
	// ModeCMS produces adbe.pkcs7.detached signatures with signing time and
	// Adobe revocation archival attributes.
	ModeCMS Mode = iota
	// ModeCAdES produces ETSI.CAdES.detached signatures with a
	// signing-certificate-v2 attribute.
	ModeCAdES
)

// Filter is the signature handler name.
func (m Mode) Filter() string { return "Adobe.PPKLite" }

// SubFilter is the signature encoding name.
func (m Mode) SubFilter() string {
	if m == ModeCAdES {
		return "ETSI.CAdES.detached"
	}
	return "adbe.pkcs7.detached"
}

func (m Mode) String() string {
	if m == ModeCAdES {
		return "cades"
	}
	return "cms"
}

// ParseMode accepts "cms" or "cades", case insensitively. Empty means cms.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cms", "pkcs7":
		return ModeCMS, nil
	case "cades":
		return ModeCAdES, nil
	default:
		return 0, fmt.Errorf("cms: unknown mode %q", s)
	}
}

// Timestamper obtains an RFC 3161 token over data. It is satisfied by
// *tsa.Client.
type Timestamper interface {
	Timestamp(ctx context.Context, data []byte) ([]byte, error)
}

// sizeEstimator is implemented by timestampers that know how large their
// tokens are.
type sizeEstimator interface {
	TokenSizeEstimate() int
}

// DefaultTokenSizeEstimate is reserved for timestamp tokens of a
// Timestamper that gives no estimate.
const DefaultTokenSizeEstimate = 4096

// Options configures a Builder.
type Options struct {
	Mode Mode
	// PSS, when set, must equal the parameters derived from the signer's
	// digest. It is only valid for RSASSA-PSS signers.
	PSS *PSSParameters
	// Timestamper adds a signature-time-stamp unsigned attribute.
	Timestamper Timestamper
	// RequireTimestamp turns a timestamp failure into a Build error. By
	// default the container is produced without a token.
	RequireTimestamp bool
	Logger           logger.Logger
	// Now supplies the signing time; time.Now by default.
	Now func() time.Time
}

// Builder assembles detached CMS SignedData containers.
//
// Thread Safety: Safe for concurrent use when the signer and timestamper
// are.
type Builder struct {
	signer      ExternalSigner
	digest      DigestAlgorithm
	key         KeyAlgorithm
	sigAlg      pkix.AlgorithmIdentifier
	mode        Mode
	timestamper Timestamper
	requireTS   bool
	log         logger.Logger
	now         func() time.Time
}

// NewBuilder validates the signer's algorithms and creates a Builder.
// Disallowed digest and key combinations, or PSS parameters that do not
// match the digest, fail here rather than at signing time.
func NewBuilder(signer ExternalSigner, opts Options) (*Builder, error) {
	if signer == nil {
		return nil, errors.New("cms: nil signer")
	}
	digest, key := signer.DigestAlgorithm(), signer.KeyAlgorithm()

	sigAlg, err := SignatureIdentifier(key, digest)
	if err != nil {
		return nil, err
	}

	if opts.PSS != nil {
		if key != RSAPSS {
			return nil, fmt.Errorf("%w: PSS parameters given for %s", ErrAlgorithmMismatch, key)
		}
		if derived := DerivePSSParameters(digest); *opts.PSS != derived {
			return nil, fmt.Errorf("%w: PSS parameters %+v do not match %s", ErrAlgorithmMismatch, *opts.PSS, digest)
		}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Builder{
		signer:      signer,
		digest:      digest,
		key:         key,
		sigAlg:      sigAlg,
		mode:        opts.Mode,
		timestamper: opts.Timestamper,
		requireTS:   opts.RequireTimestamp,
		log:         logger.WithPrefix(logger.OrNop(opts.Logger), "cms"),
		now:         now,
	}, nil
}

// Mode returns the profile the builder produces.
func (b *Builder) Mode() Mode { return b.mode }

// DigestAlgorithm returns the digest documents must be hashed with.
func (b *Builder) DigestAlgorithm() DigestAlgorithm { return b.digest }

// BuildRequest is the input of Build.
type BuildRequest struct {
	// Digest is the document digest computed with the builder's digest
	// algorithm.
	Digest []byte
	// Chain starts with the signer certificate.
	Chain []*x509.Certificate
	CRLs  [][]byte
	// OCSPs are DER OCSPResponse structures.
	OCSPs [][]byte
	// Timestamp is a token obtained by the caller. It takes precedence over
	// the builder's Timestamper.
	Timestamp []byte
	Policy    *SignaturePolicyInfo
	// SigningTime overrides the builder clock.
	SigningTime time.Time
}

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type encapsulatedContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type issuerAndSerial struct {
	Issuer       asn1.RawValue
	SerialNumber *big.Int
}

type signerInfo struct {
	Version            int
	SID                issuerAndSerial
	DigestAlgorithm    pkix.AlgorithmIdentifier
	SignedAttrs        asn1.RawValue `asn1:"optional,tag:0"`
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
	UnsignedAttrs      asn1.RawValue `asn1:"optional,tag:1"`
}

type signedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo encapsulatedContentInfo
	Certificates     []asn1.RawValue `asn1:"optional,implicit,tag:0,set"`
	CRLs             []asn1.RawValue `asn1:"optional,implicit,tag:1,set"`
	SignerInfos      []signerInfo    `asn1:"set"`
}

type otherRevocationInfoFormat struct {
	Format asn1.ObjectIdentifier
	Info   asn1.RawValue
}

// explicitContext wraps der in an EXPLICIT [tag].
func explicitContext(der []byte, tag int) asn1.RawValue {
	return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: tag, IsCompound: true, Bytes: der}
}

func digestIdentifier(digest DigestAlgorithm, key KeyAlgorithm) pkix.AlgorithmIdentifier {
	id := digest.Identifier()
	// RFC 8419 omits digest parameters for EdDSA.
	if key == Ed25519 || key == Ed448 {
		id.Parameters = asn1.RawValue{}
	}
	return id
}

func marshalContentInfo(sd signedData) ([]byte, error) {
	sdDER, err := asn1.Marshal(sd)
	if err != nil {
		return nil, fmt.Errorf("cms: marshal SignedData: %w", err)
	}
	der, err := asn1.Marshal(contentInfo{
		ContentType: OIDSignedData,
		Content:     explicitContext(sdDER, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("cms: marshal ContentInfo: %w", err)
	}
	return der, nil
}

// Build signs req.Digest and returns a DER ContentInfo holding detached
// SignedData.
func (b *Builder) Build(ctx context.Context, req BuildRequest) ([]byte, error) {
	if len(req.Chain) == 0 {
		return nil, ErrEmptyChain
	}
	if len(req.Digest) != b.digest.Size() {
		return nil, fmt.Errorf("%w: got %d bytes, %s needs %d", ErrDigestLength, len(req.Digest), b.digest, b.digest.Size())
	}

	signingTime := req.SigningTime
	if signingTime.IsZero() {
		signingTime = b.now()
	}

	signer := req.Chain[0]
	attrs, err := buildSignedAttributes(signedAttributesRequest{
		mode:        b.mode,
		digest:      b.digest,
		document:    req.Digest,
		signer:      signer,
		signingTime: signingTime,
		policy:      req.Policy,
		crls:        req.CRLs,
		ocsps:       req.OCSPs,
	})
	if err != nil {
		return nil, err
	}
	signedAttrs, err := MarshalAttributes(attrs)
	if err != nil {
		return nil, err
	}

	signature, err := b.signer.Sign(ctx, signedAttrs)
	if err != nil {
		return nil, fmt.Errorf("cms: sign attributes: %w", err)
	}

	si := signerInfo{
		Version: 1,
		SID: issuerAndSerial{
			Issuer:       asn1.RawValue{FullBytes: signer.RawIssuer},
			SerialNumber: signer.SerialNumber,
		},
		DigestAlgorithm:    digestIdentifier(b.digest, b.key),
		SignedAttrs:        implicitSet(signedAttrs, 0),
		SignatureAlgorithm: b.sigAlg,
		Signature:          signature,
	}

	token, err := b.timestamp(ctx, req.Timestamp, signature)
	if err != nil {
		return nil, err
	}
	if token != nil {
		unsigned, err := MarshalAttributes([]Attribute{{
			Type:   OIDSignatureTimeStampToken,
			Values: []asn1.RawValue{{FullBytes: token}},
		}})
		if err != nil {
			return nil, err
		}
		si.UnsignedAttrs = implicitSet(unsigned, 1)
	}

	sd := signedData{
		Version:          1,
		DigestAlgorithms: []pkix.AlgorithmIdentifier{digestIdentifier(b.digest, b.key)},
		EncapContentInfo: encapsulatedContentInfo{EContentType: OIDData},
		SignerInfos:      []signerInfo{si},
	}
	for _, cert := range req.Chain {
		sd.Certificates = append(sd.Certificates, asn1.RawValue{FullBytes: cert.Raw})
	}
	for _, crl := range req.CRLs {
		sd.CRLs = append(sd.CRLs, asn1.RawValue{FullBytes: crl})
	}
	// CAdES carries OCSP responses as other revocation information; the
	// Adobe profile already archives them in a signed attribute.
	if b.mode == ModeCAdES {
		for _, resp := range req.OCSPs {
			other, err := asn1.Marshal(otherRevocationInfoFormat{
				Format: OIDOCSPResponseRevInfo,
				Info:   asn1.RawValue{FullBytes: resp},
			})
			if err != nil {
				return nil, fmt.Errorf("cms: marshal OCSP revocation info: %w", err)
			}
			sd.CRLs = append(sd.CRLs, implicitSet(other, 1))
			sd.Version = 5
		}
	}

	der, err := marshalContentInfo(sd)
	if err != nil {
		return nil, err
	}

	b.log.Printf("built %s container for %q: %d bytes, %d certificates, %d CRLs, %d OCSP responses, timestamp=%t",
		b.mode, signer.Subject.CommonName, len(der), len(req.Chain), len(req.CRLs), len(req.OCSPs), token != nil)
	return der, nil
}

func (b *Builder) timestamp(ctx context.Context, supplied, signature []byte) ([]byte, error) {
	if supplied != nil {
		return supplied, nil
	}
	if b.timestamper == nil {
		return nil, nil
	}
	token, err := b.timestamper.Timestamp(ctx, signature)
	if err != nil {
		if b.requireTS {
			return nil, fmt.Errorf("%w: %w", ErrTimestamp, err)
		}
		b.log.Printf("timestamp failed, continuing without token: %v", err)
		return nil, nil
	}
	return token, nil
}

// EstimateSize returns a byte count large enough for the container Build
// produces for req. It is used to reserve space before signing.
func (b *Builder) EstimateSize(req BuildRequest) int {
	size := 8192
	for _, cert := range req.Chain {
		size += len(cert.Raw)
	}
	for _, crl := range req.CRLs {
		size += len(crl) + 10
	}
	for _, resp := range req.OCSPs {
		size += len(resp) + 10
	}
	switch {
	case req.Timestamp != nil:
		size += len(req.Timestamp) + 96
	case b.timestamper != nil:
		estimate := DefaultTokenSizeEstimate
		if e, ok := b.timestamper.(sizeEstimator); ok {
			estimate = e.TokenSizeEstimate()
		}
		size += estimate + 96
	}
	return size
}
