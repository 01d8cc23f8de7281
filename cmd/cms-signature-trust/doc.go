// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// cms-signature-trust completes and verifies certificate chains and
// produces and inspects CMS signatures.
//
// # Installation
//
//	go install github.com/H0llyW00dzZ/cms-signature-trust/cmd/cms-signature-trust@latest
//
// # Usage
//
//	cms-signature-trust [--config FILE] [--anchor FILE]... [--online] COMMAND
//
// # Commands
//
//	complete   Fetch missing issuers of a certificate chain
//	verify     Verify a chain against the trust anchors
//	prepare    Reserve a signature placeholder in a draft document
//	sign       Sign a prepared document in place
//	finalize   Embed an externally produced container into a prepared document
//	inspect    Validate a signature container or a signed document
//	timestamp  Request an RFC 3161 timestamp for a file
//
// # Examples
//
// Verify a chain with offline CRLs:
//
//	cms-signature-trust -a root.pem verify --crl inter.crl chain.pem
//
// Sign a document in two phases:
//
//	cms-signature-trust prepare draft.bin -o prepared.bin
//	cms-signature-trust sign prepared.bin --key signer.key --cert chain.pem
//
// Inspect the result:
//
//	cms-signature-trust -a root.pem inspect --signed prepared.bin
package main
