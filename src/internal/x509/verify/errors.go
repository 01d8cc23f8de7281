// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509verify

import (
	"crypto/x509"
	"fmt"
)

// Code classifies a hard verification failure.
type Code int

const (
	CodeExpired Code = iota + 1
	CodeNotYetValid
	CodeUnsupportedCriticalExtension
	CodeSignatureMismatch
	CodeRevoked
)

func (c Code) String() string {
	switch c {
	case CodeExpired:
		return "expired"
	case CodeNotYetValid:
		return "not yet valid"
	case CodeUnsupportedCriticalExtension:
		return "unsupported critical extension"
	case CodeSignatureMismatch:
		return "signature mismatch"
	case CodeRevoked:
		return "revoked"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error is a hard verification failure of Cert. Err is the originating
// error and is reachable through errors.Is and errors.As.
type Error struct {
	Cert *x509.Certificate
	Code Code
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("x509verify: certificate %q: %s: %v", e.Cert.Subject.String(), e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
