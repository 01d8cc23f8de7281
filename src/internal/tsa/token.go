// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package tsa

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/notaryproject/tspclient-go"
	"github.com/notaryproject/tspclient-go/pki"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/cms"
)

var (
	// ErrRejected indicates a response whose status is neither granted nor
	// grantedWithMods.
	ErrRejected = errors.New("tsa: request rejected")

	// ErrInvalidResponse indicates a malformed TimeStampResp or token.
	ErrInvalidResponse = errors.New("tsa: invalid timestamp response")

	// ErrNonceMismatch indicates a token that does not echo the request nonce.
	ErrNonceMismatch = errors.New("tsa: nonce mismatch")

	// ErrImprintMismatch indicates a token over a different digest.
	ErrImprintMismatch = errors.New("tsa: message imprint mismatch")

	// ErrPolicyMismatch indicates a token issued under another policy than
	// the requested one.
	ErrPolicyMismatch = errors.New("tsa: policy mismatch")
)

// Status is a PKIStatus value.
type Status = pki.Status

// PKIStatus values of RFC 3161.
const (
	StatusGranted          Status = 0
	StatusGrantedWithMods  Status = 1
	StatusRejection        Status = 2
	StatusWaiting          Status = 3
	StatusRevocationWarn   Status = 4
	StatusRevocationNotice Status = 5
)

// failureInfoNames maps PKIFailureInfo bits to their names.
var failureInfoNames = map[int]string{
	0:  "badAlg",
	2:  "badRequest",
	5:  "badDataFormat",
	14: "timeNotAvailable",
	15: "unacceptedPolicy",
	16: "unacceptedExtension",
	17: "addInfoNotAvailable",
	25: "systemFailure",
}

type (
	// StatusInfo is a PKIStatusInfo.
	StatusInfo = pki.StatusInfo

	// Response is a TimeStampResp.
	Response = tspclient.Response

	// TSTInfo is the content of a timestamp token.
	TSTInfo = tspclient.TSTInfo
)

// failureInfo returns the names of the failure bits set in bits.
func failureInfo(bits asn1.BitString) []string {
	var names []string
	for bit := 0; bit < bits.BitLength; bit++ {
		if bits.At(bit) == 1 {
			name, ok := failureInfoNames[bit]
			if !ok {
				name = fmt.Sprintf("bit%d", bit)
			}
			names = append(names, name)
		}
	}
	return names
}

// StatusError reports a response that was not granted.
type StatusError struct {
	Status   Status
	Text     []string
	FailInfo []string
	// Err is the status error reported by the response parser.
	Err error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("tsa: request rejected with status %d", e.Status)
	if len(e.FailInfo) > 0 {
		msg += " (" + strings.Join(e.FailInfo, ", ") + ")"
	}
	if len(e.Text) > 0 {
		msg += ": " + strings.Join(e.Text, "; ")
	}
	return msg
}

// Unwrap returns ErrRejected and the underlying status error.
func (e *StatusError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRejected}
	}
	return []error{ErrRejected, e.Err}
}

// Token is a parsed TimeStampToken.
type Token struct {
	Raw           []byte
	Info          *TSTInfo
	GenTime       time.Time
	Policy        asn1.ObjectIdentifier
	HashAlgorithm cms.DigestAlgorithm
	Certificates  []*x509.Certificate

	container *cms.Container
}

// ParseToken decodes a TimeStampToken. The TSTInfo is decoded by tspclient;
// the SignedData is also kept as a cms.Container so that the signature can
// be checked with every algorithm the cms package supports.
func ParseToken(der []byte) (*Token, error) {
	signed, err := tspclient.ParseSignedToken(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return newToken(der, signed)
}

func newToken(der []byte, signed *tspclient.SignedToken) (*Token, error) {
	info, err := signed.Info()
	if err != nil {
		return nil, fmt.Errorf("%w: TSTInfo: %w", ErrInvalidResponse, err)
	}
	alg, err := cms.DigestAlgorithmFromOID(info.MessageImprint.HashAlgorithm.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	c, err := cms.Parse(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if err := c.VerifyContent(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	return &Token{
		Raw:           der,
		Info:          info,
		GenTime:       info.GenTime,
		Policy:        info.Policy,
		HashAlgorithm: alg,
		Certificates:  c.Certificates,
		container:     c,
	}, nil
}

// SerialNumber returns the token serial number.
func (t *Token) SerialNumber() *big.Int { return t.Info.SerialNumber }

// Signer returns the embedded TSA certificate.
func (t *Token) Signer() (*x509.Certificate, error) { return t.container.Signer() }

// VerifySignature checks the token signature with the embedded TSA
// certificate.
func (t *Token) VerifySignature() error { return t.container.VerifySignature() }

// VerifyImprint reports whether the token covers data.
func (t *Token) VerifyImprint(data []byte) error {
	if _, err := t.Info.Validate(data); err != nil {
		return fmt.Errorf("%w: %w", ErrImprintMismatch, err)
	}
	return nil
}

// VerifyDigest reports whether the token covers digest.
func (t *Token) VerifyDigest(digest []byte) error {
	if !bytes.Equal(t.Info.MessageImprint.HashedMessage, digest) {
		return ErrImprintMismatch
	}
	return nil
}

// ParseResponse decodes a TimeStampResp and returns its token after
// checking status, message imprint, nonce echo and policy against req.
func ParseResponse(der []byte, req *Request) (*Token, error) {
	alg, err := req.DigestAlgorithm()
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := resp.UnmarshalBinary(der); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if err := resp.Status.Err(); err != nil {
		return nil, &StatusError{
			Status:   resp.Status.Status,
			Text:     resp.Status.StatusString,
			FailInfo: failureInfo(resp.Status.FailInfo),
			Err:      err,
		}
	}
	if len(resp.TimestampToken.FullBytes) == 0 {
		return nil, fmt.Errorf("%w: granted without token", ErrInvalidResponse)
	}

	signed, err := resp.SignedToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	token, err := newToken(resp.TimestampToken.FullBytes, signed)
	if err != nil {
		return nil, err
	}

	if token.HashAlgorithm != alg {
		return nil, fmt.Errorf("%w: token uses %s, request used %s", ErrImprintMismatch, token.HashAlgorithm, alg)
	}
	if err := token.VerifyDigest(req.MessageImprint.HashedMessage); err != nil {
		return nil, err
	}
	if req.Nonce != nil && (token.Info.Nonce == nil || token.Info.Nonce.Cmp(req.Nonce) != 0) {
		return nil, ErrNonceMismatch
	}
	if len(req.ReqPolicy) > 0 && !token.Policy.Equal(req.ReqPolicy) {
		return nil, fmt.Errorf("%w: got %s, requested %s", ErrPolicyMismatch, token.Policy, req.ReqPolicy)
	}
	return token, nil
}
