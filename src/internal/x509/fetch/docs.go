// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package x509fetch retrieves the network evidence needed to establish trust
// in a certificate: issuer certificates over [AIA], [CRL]s from distribution
// points and [OCSP] responses.
//
// All clients are blocking, bounded by [HTTPConfig.Timeout] and never retry.
// Soft failures (an unreachable distribution point, an undecodable issuer
// bundle) are logged and skipped so that one broken endpoint does not hide
// evidence available from another. Every request is counted in the
// cms_trust_fetch_total and cms_trust_fetch_duration_seconds Prometheus
// metrics.
//
// [AIA]: https://datatracker.ietf.org/doc/html/rfc5280#section-4.2.2.1
// [CRL]: https://grokipedia.com/page/Certificate_revocation_list
// [OCSP]: https://grokipedia.com/page/Online_Certificate_Status_Protocol
package x509fetch
