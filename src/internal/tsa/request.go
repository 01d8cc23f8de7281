// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package tsa

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"github.com/notaryproject/tspclient-go"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/cms"
)

// ErrInvalidRequest indicates a malformed TimeStampReq.
var ErrInvalidRequest = errors.New("tsa: invalid timestamp request")

// Request is an RFC 3161 TimeStampReq over a precomputed digest.
type Request struct {
	tspclient.Request
}

// NewRequest builds a version 1 request for a digest computed with alg.
// The imprint is set directly because the caller already holds the digest;
// tspclient.NewRequest only hashes content itself.
func NewRequest(alg cms.DigestAlgorithm, digest []byte, nonce *big.Int, policy asn1.ObjectIdentifier, certReq bool) (*Request, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("%w: %w: %s", ErrInvalidRequest, cms.ErrUnsupportedAlgorithm, alg)
	}
	if len(digest) != alg.Size() {
		return nil, fmt.Errorf("%w: %s digest of %d bytes", ErrInvalidRequest, alg, len(digest))
	}
	return &Request{tspclient.Request{
		Version: 1,
		MessageImprint: tspclient.MessageImprint{
			HashAlgorithm: alg.Identifier(),
			HashedMessage: digest,
		},
		ReqPolicy: policy,
		Nonce:     nonce,
		CertReq:   certReq,
	}}, nil
}

// Marshal DER encodes r.
func (r *Request) Marshal() ([]byte, error) {
	der, err := r.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("tsa: marshal request: %w", err)
	}
	return der, nil
}

// DigestAlgorithm returns the algorithm of the message imprint.
func (r *Request) DigestAlgorithm() (cms.DigestAlgorithm, error) {
	return cms.DigestAlgorithmFromOID(r.MessageImprint.HashAlgorithm.Algorithm)
}

// ParseRequest decodes and validates a DER TimeStampReq.
func ParseRequest(der []byte) (*Request, error) {
	var req Request
	if err := req.UnmarshalBinary(der); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.Version != 1 {
		return nil, fmt.Errorf("%w: version %d", ErrInvalidRequest, req.Version)
	}

	alg, err := req.DigestAlgorithm()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if len(req.MessageImprint.HashedMessage) != alg.Size() {
		return nil, fmt.Errorf("%w: %s digest of %d bytes", ErrInvalidRequest, alg, len(req.MessageImprint.HashedMessage))
	}
	return &req, nil
}
