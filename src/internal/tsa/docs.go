// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package tsa implements the client side of the RFC 3161 Time-Stamp
// Protocol.
//
// A [Client] posts a TimeStampReq carrying a message imprint, a random
// nonce and an optional policy, then checks that the TimeStampResp was
// granted and that its token echoes the request. Tokens are returned as DER
// and can be embedded as a signature-time-stamp attribute by package cms.
//
// The client keeps an estimate of the token size so that callers can
// reserve space in a document before the signature exists.
//
// The ASN.1 structures and token checks come from
// github.com/notaryproject/tspclient-go; the HTTP exchange goes through the
// shared fetch configuration so that timeouts and metrics match the other
// revocation clients.
package tsa
