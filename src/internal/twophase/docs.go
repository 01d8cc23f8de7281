// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package twophase splits document signing into two steps that may run at
// different times or in different processes.
//
// Prepare writes a zero filled hex placeholder of a fixed size where the
// draft carries "/Contents <>", fills its "/ByteRange []" entry and returns
// the digest of every byte outside the placeholder. A draft without the byte
// range entry is rejected, since the prepared file could not be parsed back
// by [ParseDocument] for finalization. The
// private key operation then happens elsewhere, for example on an HSM or a
// remote signing service. Finalize writes the resulting signature into the
// placeholder without touching any other byte, so the digest stays valid.
//
// The reservation cannot grow after Prepare: a signature larger than the
// reserved size fails with [ErrSignatureTooLarge].
//
// Example:
//
//	draft, err := twophase.SplitDraft(pdf)
//	c := twophase.NewCoordinator(nil)
//	digest, err := c.Prepare(draft, cms.SHA256, builder.EstimateSize(req))
//	// ... obtain the CMS container over digest ...
//	signed, err := c.Finalize(container)
package twophase
