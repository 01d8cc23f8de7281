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
	"fmt"
)

// SignEncapsulated signs content of the given type and returns a ContentInfo
// that embeds it. Timestamp tokens are built this way, with TSTInfo
// content. The first certificate of chain identifies the signer.
func SignEncapsulated(ctx context.Context, signer ExternalSigner, contentType asn1.ObjectIdentifier, content []byte, chain []*x509.Certificate) ([]byte, error) {
	if len(chain) == 0 {
		return nil, ErrEmptyChain
	}
	digest, key := signer.DigestAlgorithm(), signer.KeyAlgorithm()
	sigAlg, err := SignatureIdentifier(key, digest)
	if err != nil {
		return nil, err
	}

	ct, err := NewAttribute(OIDContentType, contentType)
	if err != nil {
		return nil, err
	}
	md, err := NewAttribute(OIDMessageDigest, digest.Sum(content))
	if err != nil {
		return nil, err
	}
	sc, err := signingCertificateAttribute(chain[0], digest)
	if err != nil {
		return nil, err
	}
	signedAttrs, err := MarshalAttributes([]Attribute{ct, md, sc})
	if err != nil {
		return nil, err
	}

	signature, err := signer.Sign(ctx, signedAttrs)
	if err != nil {
		return nil, fmt.Errorf("cms: sign attributes: %w", err)
	}

	octets, err := asn1.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("cms: marshal content: %w", err)
	}

	sd := signedData{
		Version:          3,
		DigestAlgorithms: []pkix.AlgorithmIdentifier{digestIdentifier(digest, key)},
		EncapContentInfo: encapsulatedContentInfo{
			EContentType: contentType,
			EContent:     explicitContext(octets, 0),
		},
		SignerInfos: []signerInfo{{
			Version: 1,
			SID: issuerAndSerial{
				Issuer:       asn1.RawValue{FullBytes: chain[0].RawIssuer},
				SerialNumber: chain[0].SerialNumber,
			},
			DigestAlgorithm:    digestIdentifier(digest, key),
			SignedAttrs:        implicitSet(signedAttrs, 0),
			SignatureAlgorithm: sigAlg,
			Signature:          signature,
		}},
	}
	for _, cert := range chain {
		sd.Certificates = append(sd.Certificates, asn1.RawValue{FullBytes: cert.Raw})
	}
	return marshalContentInfo(sd)
}
