// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package testpki

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/cms"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/tsa"
)

// DefaultTSAPolicy is the policy of tokens issued by TimestampResponse.
var DefaultTSAPolicy = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 4146, 2, 2}

// TSAOptions tunes TimestampResponse.
type TSAOptions struct {
	// Status other than granted produces a response without a token.
	Status     tsa.Status
	StatusText []string
	// FailInfo lists PKIFailureInfo bit numbers.
	FailInfo []int

	GenTime time.Time
	Policy  asn1.ObjectIdentifier

	// OmitNonce drops the nonce echo; Nonce replaces it.
	OmitNonce bool
	Nonce     *big.Int
	// Imprint replaces the hashed message of the request.
	Imprint []byte
	// OmitCertificates issues a token without the TSA certificate.
	OmitCertificates bool
}

// TimestampResponse answers a DER TimeStampReq as a TSA backed by a. It
// returns errors instead of failing a test so that it can run inside HTTP
// handlers.
func (a *Authority) TimestampResponse(reqDER []byte, opts TSAOptions) ([]byte, error) {
	req, err := tsa.ParseRequest(reqDER)
	if err != nil {
		return nil, err
	}

	if opts.Status != tsa.StatusGranted && opts.Status != tsa.StatusGrantedWithMods {
		return asn1.Marshal(tsa.Response{Status: statusInfo(opts)})
	}

	info := tsa.TSTInfo{
		Version:        1,
		Policy:         DefaultTSAPolicy,
		MessageImprint: req.MessageImprint,
		SerialNumber:   big.NewInt(serial.Add(1)),
		GenTime:        time.Now().UTC().Truncate(time.Second),
		Nonce:          req.Nonce,
	}
	if len(req.ReqPolicy) > 0 {
		info.Policy = req.ReqPolicy
	}
	if len(opts.Policy) > 0 {
		info.Policy = opts.Policy
	}
	if !opts.GenTime.IsZero() {
		info.GenTime = opts.GenTime.UTC().Truncate(time.Second)
	}
	if opts.OmitNonce {
		info.Nonce = nil
	}
	if opts.Nonce != nil {
		info.Nonce = opts.Nonce
	}
	if opts.Imprint != nil {
		info.MessageImprint.HashedMessage = opts.Imprint
	}

	content, err := asn1.Marshal(info)
	if err != nil {
		return nil, err
	}
	signer, err := cms.NewKeySigner(a.Key, cms.SHA256, cms.WithRand(rand.Reader))
	if err != nil {
		return nil, err
	}
	token, err := cms.SignEncapsulated(context.Background(), signer, cms.OIDTSTInfo, content, []*x509.Certificate{a.Cert})
	if err != nil {
		return nil, err
	}
	if opts.OmitCertificates {
		if token, err = stripCertificates(token); err != nil {
			return nil, err
		}
	}

	return asn1.Marshal(tsa.Response{
		Status:         statusInfo(opts),
		TimestampToken: asn1.RawValue{FullBytes: token},
	})
}

func statusInfo(opts TSAOptions) tsa.StatusInfo {
	info := tsa.StatusInfo{Status: opts.Status, StatusString: opts.StatusText}
	for _, bit := range opts.FailInfo {
		if bit+1 > info.FailInfo.BitLength {
			info.FailInfo.BitLength = bit + 1
		}
	}
	if info.FailInfo.BitLength > 0 {
		info.FailInfo.Bytes = make([]byte, (info.FailInfo.BitLength+7)/8)
		for _, bit := range opts.FailInfo {
			info.FailInfo.Bytes[bit/8] |= 0x80 >> (bit % 8)
		}
	}
	return info
}

// stripCertificates re-encodes a SignedData ContentInfo without its
// certificates field.
func stripCertificates(der []byte) ([]byte, error) {
	var ci struct {
		ContentType asn1.ObjectIdentifier
		Content     asn1.RawValue `asn1:"explicit,tag:0"`
	}
	if _, err := asn1.Unmarshal(der, &ci); err != nil {
		return nil, err
	}
	var sd struct {
		Version          int
		DigestAlgorithms asn1.RawValue
		EncapContentInfo asn1.RawValue
		Certificates     asn1.RawValue `asn1:"optional,tag:0"`
		SignerInfos      asn1.RawValue
	}
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil {
		return nil, err
	}
	sd.Certificates = asn1.RawValue{}
	inner, err := asn1.Marshal(sd)
	if err != nil {
		return nil, err
	}
	ci.Content = asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: inner}
	return asn1.Marshal(ci)
}
