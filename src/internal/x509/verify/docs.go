// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package x509verify verifies certificate chains with a chain of
// responsibility.
//
// Each link implements [Verifier]. It first runs [CheckCertificate] (validity
// at the signing date, critical extensions, issuer signature), adds its own
// records and then delegates to the next link. Records accumulate; a hard
// failure is returned as an [*Error] and stops the walk.
//
// A typical chain is built with [Compose]:
//
//	v := x509verify.Compose(x509verify.Options{
//		Anchors: roots,
//		Checker: revocation.NewChecker(revocation.Config{Anchors: roots}),
//		CRLs:    crls,
//	})
//	result, err := x509verify.NewChainVerifier(v, roots, log).VerifyChain(ctx, chain, signDate)
//
// [ChainResult.Trusted] is false when any certificate gained no record, which
// means trust could not be confirmed rather than that it was refuted.
package x509verify
