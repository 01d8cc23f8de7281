// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package x509certs decodes and encodes [X.509] certificates and CRLs.
//
// Inputs may be [PEM], DER or degenerate [PKCS7] certificate bundles, which is
// what CA Issuers endpoints, trust store files and user supplied chains tend to
// contain. The chain completer, the revocation clients and the CLI all decode
// through this package so that every entry point accepts the same formats.
//
// [X.509]: https://grokipedia.com/page/X.509
// [PKCS7]: https://grokipedia.com/page/PKCS_7
// [PEM]: https://grokipedia.com/page/PEM#privacy-enhanced-mail
package x509certs
