// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package twophase

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/cms"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
)

var (
	// ErrAlreadyClosed is returned when Prepare or Finalize runs a second
	// time on the same Coordinator.
	ErrAlreadyClosed = errors.New("twophase: already closed")

	// ErrNotPrepared is returned when Finalize runs before Prepare.
	ErrNotPrepared = errors.New("twophase: not prepared")

	// ErrSignatureTooLarge is returned when a signature does not fit the
	// space reserved by Prepare.
	ErrSignatureTooLarge = errors.New("twophase: signature exceeds reserved size")

	// ErrInvalidSize is returned for a non-positive reservation.
	ErrInvalidSize = errors.New("twophase: estimated signature size must be positive")
)

type state int

const (
	unprepared state = iota
	prepared
	finalized
)

// Coordinator drives one document through Prepare and Finalize.
//
// Thread Safety: Safe for concurrent use. Each transition happens once.
type Coordinator struct {
	log logger.Logger

	mu    sync.Mutex
	state state
	doc   *Document
}

// NewCoordinator creates a Coordinator in the unprepared state.
func NewCoordinator(log logger.Logger) *Coordinator {
	return &Coordinator{log: logger.WithPrefix(logger.OrNop(log), "twophase")}
}

// Prepare reserves estimatedSize bytes for the signature in draft, fills the
// byte range, freezes the layout and returns the digest of everything
// outside the placeholder.
func (c *Coordinator) Prepare(draft Draft, alg cms.DigestAlgorithm, estimatedSize int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != unprepared {
		return nil, ErrAlreadyClosed
	}
	if !alg.Valid() {
		return nil, fmt.Errorf("twophase: %w: %s", cms.ErrUnsupportedAlgorithm, alg)
	}
	if estimatedSize <= 0 {
		return nil, ErrInvalidSize
	}

	doc, err := layout(draft, estimatedSize)
	if err != nil {
		return nil, err
	}

	c.doc = doc
	c.state = prepared
	c.log.Printf("reserved %d bytes at offset %d of %d", estimatedSize, doc.ByteRange[1], len(doc.Data))
	return doc.Digest(alg), nil
}

// Prepared returns a copy of the frozen document.
func (c *Coordinator) Prepared() (*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.doc == nil {
		return nil, ErrNotPrepared
	}
	doc := *c.doc
	doc.Data = bytes.Clone(c.doc.Data)
	return &doc, nil
}

// Finalize writes signature into the prepared document and closes the
// Coordinator. A signature that does not fit leaves it prepared so that a
// smaller one can still be supplied.
func (c *Coordinator) Finalize(signature []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case unprepared:
		return nil, ErrNotPrepared
	case finalized:
		return nil, ErrAlreadyClosed
	}

	out, err := Finalize(c.doc, signature)
	if err != nil {
		return nil, err
	}
	c.state = finalized
	c.log.Printf("wrote %d of %d reserved bytes", len(signature), c.doc.Reserved)
	return out, nil
}

// Finalize returns a copy of doc with signature hex encoded into the
// placeholder. Unused space stays zero padded. It needs nothing but the
// prepared document, so it may run in another process via ParseDocument.
func Finalize(doc *Document, signature []byte) ([]byte, error) {
	if doc == nil {
		return nil, ErrNotPrepared
	}
	if len(signature) > doc.Reserved {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrSignatureTooLarge, len(signature), doc.Reserved)
	}

	out := bytes.Clone(doc.Data)
	copy(out[doc.ByteRange[1]+1:], strings.ToUpper(hex.EncodeToString(signature)))
	return out, nil
}

// SignatureFunc produces the signature container for a digest.
type SignatureFunc func(ctx context.Context, digest []byte) ([]byte, error)

// BuilderFunc adapts a container builder into a SignatureFunc. The digest
// replaces req.Digest.
func BuilderFunc(b *cms.Builder, req cms.BuildRequest) SignatureFunc {
	return func(ctx context.Context, digest []byte) ([]byte, error) {
		req.Digest = digest
		return b.Build(ctx, req)
	}
}

// Sign runs both phases in process: it prepares draft, passes the digest to
// sign and finalizes with the result.
func Sign(ctx context.Context, draft Draft, alg cms.DigestAlgorithm, estimatedSize int, sign SignatureFunc, log logger.Logger) ([]byte, error) {
	c := NewCoordinator(log)
	digest, err := c.Prepare(draft, alg, estimatedSize)
	if err != nil {
		return nil, err
	}
	signature, err := sign(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("twophase: sign: %w", err)
	}
	return c.Finalize(signature)
}
