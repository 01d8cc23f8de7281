// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package cms builds and parses detached CMS SignedData signature
// containers for embedding in signed documents.
//
// A [Builder] turns a document digest, the signer chain and optional
// revocation evidence into a DER ContentInfo. The private key operation is
// delegated to an [ExternalSigner] so it can run in an HSM, a remote service
// or a later process; [KeySigner] adapts an in-process crypto.Signer.
//
// Algorithm combinations are validated when the Builder is created:
//
//   - Ed25519 signs with SHA-512 only.
//   - Ed448 signs with SHAKE256 only.
//   - RSASSA-PSS carries explicit parameters derived from the digest.
//   - RSA, ECDSA and DSA accept SHA-256, SHA-384 and SHA-512.
//
// Two profiles are supported. [ModeCMS] matches adbe.pkcs7.detached and
// archives revocation evidence in a signed Adobe attribute. [ModeCAdES]
// matches ETSI.CAdES.detached and binds the signer with
// signing-certificate-v2.
//
// [Parse] reads a container back for inspection and signature checks.
package cms
