// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509certs

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/cloudflare/cfssl/crypto/pkcs7"
)

const (
	certBlockType = "CERTIFICATE"
	crlBlockType  = "X509 CRL"
	pkcs7Type     = "PKCS7"
)

var (
	// ErrInvalidBlockType indicates a PEM block whose type cannot hold the requested object.
	ErrInvalidBlockType = errors.New("x509certs: invalid block type")

	// ErrParseCertificate indicates a failure to parse a certificate from the provided data.
	ErrParseCertificate = errors.New("x509certs: failed to parse certificate")

	// ErrParsePKCS7 indicates a failure to parse PKCS7 formatted data.
	ErrParsePKCS7 = errors.New("x509certs: failed to parse PKCS7 data")

	// ErrNoCertificates indicates input that decoded cleanly but carried no certificate.
	ErrNoCertificates = errors.New("x509certs: no certificates found")

	// ErrParseCRL indicates a failure to parse a certificate revocation list.
	ErrParseCRL = errors.New("x509certs: failed to parse CRL")
)

// IsPEM reports whether data starts with a PEM block.
func IsPEM(data []byte) bool {
	block, _ := pem.Decode(data)
	return block != nil
}

// DecodeMultiple decodes every certificate found in data.
//
// Accepted encodings are a PEM bundle (CERTIFICATE and PKCS7 blocks), a
// concatenation of DER certificates, and a degenerate PKCS7 SignedData
// certificate bundle such as the .p7c files served by CA Issuers endpoints.
func DecodeMultiple(data []byte) ([]*x509.Certificate, error) {
	// DER may legitimately end in whitespace bytes; only PEM is trimmed.
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrNoCertificates
	}
	if IsPEM(trimmed) {
		return decodePEMCertificates(trimmed)
	}

	certs, err := x509.ParseCertificates(data)
	if err == nil && len(certs) > 0 {
		return certs, nil
	}

	return decodePKCS7(data)
}

func decodePEMCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate

	for len(data) > 0 {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		data = rest

		switch block.Type {
		case certBlockType:
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrParseCertificate, err)
			}
			certs = append(certs, cert)
		case pkcs7Type:
			bundle, err := decodePKCS7(block.Bytes)
			if err != nil {
				return nil, err
			}
			certs = append(certs, bundle...)
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidBlockType, block.Type)
		}
	}

	if len(certs) == 0 {
		return nil, ErrNoCertificates
	}
	return certs, nil
}

func decodePKCS7(data []byte) ([]*x509.Certificate, error) {
	p, err := pkcs7.ParsePKCS7(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsePKCS7, err)
	}
	if len(p.Content.SignedData.Certificates) == 0 {
		return nil, ErrNoCertificates
	}
	return p.Content.SignedData.Certificates, nil
}

// Decode decodes the first certificate found in data.
func Decode(data []byte) (*x509.Certificate, error) {
	certs, err := DecodeMultiple(data)
	if err != nil {
		return nil, err
	}
	return certs[0], nil
}

// ReadFiles decodes and concatenates the certificates of every file in order.
func ReadFiles(paths ...string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("x509certs: read %s: %w", path, err)
		}
		decoded, err := DecodeMultiple(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		certs = append(certs, decoded...)
	}
	return certs, nil
}

// DecodeRevocationList parses a CRL in DER or PEM ("X509 CRL") form.
func DecodeRevocationList(data []byte) (*x509.RevocationList, error) {
	der := data
	if trimmed := bytes.TrimSpace(data); IsPEM(trimmed) {
		block, _ := pem.Decode(trimmed)
		if block.Type != crlBlockType {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBlockType, block.Type)
		}
		der = block.Bytes
	}

	crl, err := x509.ParseRevocationList(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseCRL, err)
	}
	return crl, nil
}

// RevocationListDER returns the DER form of a CRL given as DER or PEM.
func RevocationListDER(data []byte) ([]byte, error) {
	crl, err := DecodeRevocationList(data)
	if err != nil {
		return nil, err
	}
	return crl.Raw, nil
}

// EncodePEM encodes a certificate to PEM format.
func EncodePEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: certBlockType, Bytes: cert.Raw})
}

// EncodeMultiplePEM encodes certificates to one PEM bundle.
func EncodeMultiplePEM(certs []*x509.Certificate) []byte {
	var buf bytes.Buffer
	for _, cert := range certs {
		buf.Write(EncodePEM(cert))
	}
	return buf.Bytes()
}

// EncodeMultipleDER concatenates the DER encodings of certs.
func EncodeMultipleDER(certs []*x509.Certificate) []byte {
	var buf bytes.Buffer
	for _, cert := range certs {
		buf.Write(cert.Raw)
	}
	return buf.Bytes()
}

// EncodeRevocationListPEM encodes a DER CRL to PEM.
func EncodeRevocationListPEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: crlBlockType, Bytes: der})
}
