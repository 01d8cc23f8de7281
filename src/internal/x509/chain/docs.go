// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package x509chain completes [X.509] certificate chains.
// It provides capabilities to:
//   - Rebuild a signer's chain up to its root, preferring supplied certificates
//     and falling back to AIA CA Issuers downloads.
//   - Read the chain a TLS server presents.
//   - Render a chain as an ASCII tree or a markdown table.
//
// Completion is best effort and never fails; callers inspect the last
// certificate with [IsSelfSigned] to learn whether the chain is complete.
//
// [X.509]: https://grokipedia.com/page/X.509
package x509chain
