// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509fetch

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
)

// NonceSize is the length of the random nonce sent with each OCSP request.
const NonceSize = 16

// OIDOCSPNonce is id-pkix-ocsp-nonce.
var OIDOCSPNonce = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 2}

var (
	oidSHA1           = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	oidPKIXOCSPBasic  = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 1}
	errNoOCSPResponse = errors.New("x509fetch: no OCSP response bytes")
)

var (
	// ErrNoResponder indicates a certificate without an OCSP responder URL
	// and no explicit URL.
	ErrNoResponder = errors.New("x509fetch: no OCSP responder URL")

	// ErrNoIssuer indicates an OCSP request without an issuer certificate.
	ErrNoIssuer = errors.New("x509fetch: OCSP request needs the issuer certificate")

	// ErrNonceMismatch indicates a response echoing a different nonce than sent.
	ErrNonceMismatch = errors.New("x509fetch: OCSP nonce mismatch")

	// ErrStatusRevoked is returned by OCSPClient.Encoded for a revoked certificate.
	ErrStatusRevoked = errors.New("x509fetch: OCSP status revoked")

	// ErrStatusUnknown is returned by OCSPClient.Encoded when the responder
	// does not know the certificate.
	ErrStatusUnknown = errors.New("x509fetch: OCSP status unknown")
)

// ResponseStatusError reports a well-formed OCSP reply whose responseStatus
// is not successful. It is distinct from ErrTransport.
type ResponseStatusError struct {
	Status ocsp.ResponseStatus
}

func (e *ResponseStatusError) Error() string {
	return "x509fetch: OCSP responder returned " + e.Status.String()
}

// ResponseVerifier decides whether a parsed OCSP response may be trusted for
// certificates issued by issuer.
type ResponseVerifier interface {
	VerifyResponse(resp *ocsp.Response, issuer *x509.Certificate) error
}

// OCSPClient queries OCSP responders.
type OCSPClient struct {
	http     *HTTPConfig
	log      logger.Logger
	verifier ResponseVerifier
}

// NewOCSPClient creates a client. When verifier is nil the response signature
// is checked against the issuer (or a responder certificate it issued) only.
func NewOCSPClient(cfg *HTTPConfig, log logger.Logger, verifier ResponseVerifier) *OCSPClient {
	return &OCSPClient{
		http:     cfg,
		log:      logger.WithPrefix(logger.OrNop(log), "ocsp"),
		verifier: verifier,
	}
}

// Response fetches, parses and verifies the OCSP response for cert.
//
// The URL is the explicit url, or else the first AIA OCSP entry of cert. The
// raw DER of the response is returned alongside the parsed form.
func (c *OCSPClient) Response(ctx context.Context, cert, issuer *x509.Certificate, url string) (*ocsp.Response, []byte, error) {
	if issuer == nil {
		return nil, nil, ErrNoIssuer
	}
	if url == "" {
		if len(cert.OCSPServer) == 0 {
			return nil, nil, ErrNoResponder
		}
		url = cert.OCSPServer[0]
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("x509fetch: generate OCSP nonce: %w", err)
	}

	reqDER, err := CreateRequest(cert, issuer, nonce)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqDER))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")

	body, _, err := c.http.Do(req, "ocsp")
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.parse(body, cert, issuer)
	if err != nil {
		return nil, nil, err
	}

	if echoed, ok := responseNonce(body, resp); ok && !bytes.Equal(echoed, nonce) {
		return nil, nil, ErrNonceMismatch
	}

	return resp, body, nil
}

func (c *OCSPClient) parse(body []byte, cert, issuer *x509.Certificate) (*ocsp.Response, error) {
	checkAgainst := issuer
	if c.verifier != nil {
		checkAgainst = nil
	}

	resp, err := ocsp.ParseResponseForCert(body, cert, checkAgainst)
	if err != nil {
		var statusErr ocsp.ResponseError
		if errors.As(err, &statusErr) {
			return nil, &ResponseStatusError{Status: statusErr.Status}
		}
		return nil, fmt.Errorf("x509fetch: parse OCSP response: %w", err)
	}

	if c.verifier != nil {
		if err := c.verifier.VerifyResponse(resp, issuer); err != nil {
			return nil, fmt.Errorf("x509fetch: verify OCSP response: %w", err)
		}
	}
	return resp, nil
}

// Encoded returns the raw response for cert only when its status is good.
// A revoked or unknown status is an error, so the caller never embeds
// evidence that does not support the signature.
func (c *OCSPClient) Encoded(ctx context.Context, cert, issuer *x509.Certificate, url string) ([]byte, error) {
	resp, raw, err := c.Response(ctx, cert, issuer, url)
	if err != nil {
		return nil, err
	}

	switch resp.Status {
	case ocsp.Good:
		return raw, nil
	case ocsp.Revoked:
		return nil, fmt.Errorf("%w: serial %s at %s", ErrStatusRevoked,
			cert.SerialNumber, resp.RevokedAt.UTC().Format(time.RFC3339))
	default:
		c.log.Printf("responder does not know serial %s", cert.SerialNumber)
		return nil, fmt.Errorf("%w: serial %s", ErrStatusUnknown, cert.SerialNumber)
	}
}

type ocspRequestASN1 struct {
	TBSRequest tbsRequestASN1
}

type tbsRequestASN1 struct {
	Version           int `asn1:"explicit,tag:0,default:0,optional"`
	RequestList       []singleRequestASN1
	RequestExtensions []pkix.Extension `asn1:"explicit,tag:2,optional"`
}

type singleRequestASN1 struct {
	Cert certIDASN1
}

type certIDASN1 struct {
	HashAlgorithm  pkix.AlgorithmIdentifier
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

// CreateRequest encodes an OCSP request for cert with a SHA-1 CertID and,
// when nonce is non-empty, a nonce request extension.
func CreateRequest(cert, issuer *x509.Certificate, nonce []byte) ([]byte, error) {
	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(issuer.RawSubjectPublicKeyInfo, &spki); err != nil {
		return nil, fmt.Errorf("x509fetch: parse issuer public key: %w", err)
	}

	nameHash := sha1.Sum(issuer.RawSubject)
	keyHash := sha1.Sum(spki.PublicKey.RightAlign())

	tbs := tbsRequestASN1{
		RequestList: []singleRequestASN1{{
			Cert: certIDASN1{
				HashAlgorithm: pkix.AlgorithmIdentifier{
					Algorithm:  oidSHA1,
					Parameters: asn1.RawValue{Tag: asn1.TagNull},
				},
				IssuerNameHash: nameHash[:],
				IssuerKeyHash:  keyHash[:],
				SerialNumber:   cert.SerialNumber,
			},
		}},
	}

	if len(nonce) > 0 {
		ext, err := NonceExtension(nonce)
		if err != nil {
			return nil, err
		}
		tbs.RequestExtensions = []pkix.Extension{ext}
	}

	der, err := asn1.Marshal(ocspRequestASN1{TBSRequest: tbs})
	if err != nil {
		return nil, fmt.Errorf("x509fetch: marshal OCSP request: %w", err)
	}
	return der, nil
}

// NonceExtension wraps nonce in an id-pkix-ocsp-nonce extension.
func NonceExtension(nonce []byte) (pkix.Extension, error) {
	value, err := asn1.Marshal(nonce)
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("x509fetch: marshal OCSP nonce: %w", err)
	}
	return pkix.Extension{Id: OIDOCSPNonce, Value: value}, nil
}

// RequestNonce extracts the nonce from an encoded OCSP request.
// It returns nil when the request carries none.
func RequestNonce(der []byte) ([]byte, error) {
	var req ocspRequestASN1
	if _, err := asn1.Unmarshal(der, &req); err != nil {
		return nil, fmt.Errorf("x509fetch: parse OCSP request: %w", err)
	}
	nonce, _ := findNonce(req.TBSRequest.RequestExtensions)
	return nonce, nil
}

func findNonce(exts []pkix.Extension) ([]byte, bool) {
	for _, ext := range exts {
		if !ext.Id.Equal(OIDOCSPNonce) {
			continue
		}
		var nonce []byte
		if rest, err := asn1.Unmarshal(ext.Value, &nonce); err == nil && len(rest) == 0 {
			return nonce, true
		}
		return ext.Value, true
	}
	return nil, false
}

type responseEnvelope struct {
	Status   asn1.Enumerated
	Response struct {
		ResponseType asn1.ObjectIdentifier
		Response     []byte
	} `asn1:"explicit,tag:0,optional"`
}

type basicResponseHead struct {
	TBSResponseData struct {
		Version            int `asn1:"optional,default:0,explicit,tag:0"`
		RawResponderID     asn1.RawValue
		ProducedAt         time.Time `asn1:"generalized"`
		Responses          []asn1.RawValue
		ResponseExtensions []pkix.Extension `asn1:"explicit,tag:1,optional"`
	}
}

// responseNonce returns the nonce echoed in responseExtensions or, for
// responders that misplace it, in the singleExtensions of resp.
func responseNonce(der []byte, resp *ocsp.Response) ([]byte, bool) {
	if exts, err := responseExtensions(der); err == nil {
		if nonce, ok := findNonce(exts); ok {
			return nonce, true
		}
	}
	return findNonce(resp.Extensions)
}

func responseExtensions(der []byte) ([]pkix.Extension, error) {
	var env responseEnvelope
	if _, err := asn1.Unmarshal(der, &env); err != nil {
		return nil, err
	}
	if !env.Response.ResponseType.Equal(oidPKIXOCSPBasic) {
		return nil, errNoOCSPResponse
	}

	var basic basicResponseHead
	if _, err := asn1.Unmarshal(env.Response.Response, &basic); err != nil {
		return nil, err
	}
	return basic.TBSResponseData.ResponseExtensions, nil
}
