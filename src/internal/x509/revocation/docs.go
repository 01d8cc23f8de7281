// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package revocation decides whether CRL or OCSP evidence proves that a
// certificate was not revoked at a reference date.
//
// Every evidence item is judged separately and recorded as an [Outcome]
// (accepted, skipped with a reason, or revoked). Skipped items are soft
// failures and only reach the logger. A revocation is a hard failure
// reported as a [*RevokedError] wrapping [ErrRevoked].
//
// Offline evidence is always evaluated first; the network is consulted only
// when [Config.OnlineChecking] is set and no offline item was accepted.
package revocation
