// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509certs

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/cfssl/helpers/derhelpers"
)

// ErrParsePrivateKey indicates data that holds no usable private key.
var ErrParsePrivateKey = errors.New("x509certs: failed to parse private key")

// DecodePrivateKey parses an RSA, ECDSA or Ed25519 private key given as
// PKCS#8, PKCS#1 or SEC 1, in DER or PEM form. Other PEM blocks such as
// "EC PARAMETERS" are skipped.
func DecodePrivateKey(data []byte) (crypto.Signer, error) {
	der := data
	if trimmed := bytes.TrimSpace(data); IsPEM(trimmed) {
		der = nil
		for rest := trimmed; ; {
			var block *pem.Block
			block, rest = pem.Decode(rest)
			if block == nil {
				break
			}
			if strings.HasSuffix(block.Type, "PRIVATE KEY") {
				der = block.Bytes
				break
			}
		}
		if der == nil {
			return nil, fmt.Errorf("%w: no PRIVATE KEY block", ErrParsePrivateKey)
		}
	}

	key, err := derhelpers.ParsePrivateKeyDER(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsePrivateKey, err)
	}
	return key, nil
}

// EncodePrivateKeyPEM encodes key as a PKCS#8 "PRIVATE KEY" block.
func EncodePrivateKeyPEM(key crypto.Signer) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("x509certs: marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}
