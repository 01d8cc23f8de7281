// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package twophase

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/cms"
)

const (
	// ContentsMarker is the empty signature value a draft carries where the
	// placeholder goes.
	ContentsMarker = "/Contents <>"

	// ByteRangeMarker is the empty byte range a draft must carry. It is
	// filled with fixed width offsets on Prepare so that ParseDocument can
	// recover the layout.
	ByteRangeMarker = "/ByteRange []"

	byteRangeKey   = "/ByteRange "
	byteRangeWidth = 48
)

var (
	// ErrNoPlaceholder indicates a draft without exactly one ContentsMarker.
	ErrNoPlaceholder = errors.New("twophase: draft has no single " + ContentsMarker + " marker")

	// ErrNoByteRange indicates a draft without a ByteRangeMarker.
	ErrNoByteRange = errors.New("twophase: draft has no " + ByteRangeMarker + " marker")

	// ErrInvalidDocument indicates prepared bytes whose byte range does not
	// describe a signature placeholder.
	ErrInvalidDocument = errors.New("twophase: invalid prepared document")
)

// Draft is a document split around the signature value.
type Draft struct {
	// Prefix ends right before the placeholder, Suffix starts right after.
	Prefix []byte
	Suffix []byte
}

// SplitDraft splits data at its single ContentsMarker.
func SplitDraft(data []byte) (Draft, error) {
	marker := []byte(ContentsMarker)
	if bytes.Count(data, marker) != 1 {
		return Draft{}, ErrNoPlaceholder
	}
	i := bytes.Index(data, marker)
	// Keep "/Contents " in the prefix; "<>" is replaced by the placeholder.
	cut := i + len(marker) - 2
	return Draft{
		Prefix: bytes.Clone(data[:cut]),
		Suffix: bytes.Clone(data[cut+2:]),
	}, nil
}

// Document is a prepared document: its layout is frozen and only the bytes
// between ByteRange[1] and ByteRange[2] may change.
type Document struct {
	Data []byte
	// ByteRange is {0, placeholder offset, placeholder end, tail length}.
	ByteRange [4]int64
	// Reserved is the signature capacity in bytes.
	Reserved int
}

// Covered returns the bytes outside the placeholder.
func (d *Document) Covered() []byte {
	out := make([]byte, 0, d.ByteRange[1]+d.ByteRange[3])
	out = append(out, d.Data[:d.ByteRange[1]]...)
	return append(out, d.Data[d.ByteRange[2]:d.ByteRange[2]+d.ByteRange[3]]...)
}

// Digest hashes the covered bytes.
func (d *Document) Digest(alg cms.DigestAlgorithm) []byte {
	h := alg.New()
	h.Write(d.Data[:d.ByteRange[1]])
	h.Write(d.Data[d.ByteRange[2] : d.ByteRange[2]+d.ByteRange[3]])
	return h.Sum(nil)
}

// Contents decodes the placeholder, padding included.
func (d *Document) Contents() ([]byte, error) {
	raw := d.Data[d.ByteRange[1]+1 : d.ByteRange[2]-1]
	out := make([]byte, hex.DecodedLen(len(raw)))
	if _, err := hex.Decode(out, raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return out, nil
}

// ParseDocument recovers a Document from prepared or finalized bytes using
// their /ByteRange entry.
func ParseDocument(data []byte) (*Document, error) {
	i := bytes.LastIndex(data, []byte(byteRangeKey+"["))
	if i < 0 {
		return nil, fmt.Errorf("%w: no byte range", ErrInvalidDocument)
	}
	start := i + len(byteRangeKey) + 1
	end := bytes.IndexByte(data[start:], ']')
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated byte range", ErrInvalidDocument)
	}

	fields := bytes.Fields(data[start : start+end])
	if len(fields) != 4 {
		return nil, fmt.Errorf("%w: byte range has %d values", ErrInvalidDocument, len(fields))
	}
	var br [4]int64
	for n, f := range fields {
		v, err := strconv.ParseInt(string(f), 10, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%w: byte range value %q", ErrInvalidDocument, f)
		}
		br[n] = v
	}

	size := int64(len(data))
	switch {
	case br[0] != 0:
		return nil, fmt.Errorf("%w: byte range must start at 0", ErrInvalidDocument)
	case br[1] >= br[2] || br[2]+br[3] != size:
		return nil, fmt.Errorf("%w: byte range %v does not cover %d bytes", ErrInvalidDocument, br, size)
	case data[br[1]] != '<' || data[br[2]-1] != '>' || (br[2]-br[1])%2 != 0:
		return nil, fmt.Errorf("%w: byte range does not frame a hex string", ErrInvalidDocument)
	}

	doc := &Document{Data: data, ByteRange: br, Reserved: int(br[2]-br[1]-2) / 2}
	if _, err := doc.Contents(); err != nil {
		return nil, err
	}
	return doc, nil
}

// layout builds prepared bytes from draft with size bytes reserved.
func layout(draft Draft, size int) (*Document, error) {
	prefix, suffix := draft.Prefix, draft.Suffix
	marker := []byte(ByteRangeMarker)
	width := append([]byte(byteRangeKey), bytes.Repeat([]byte{' '}, byteRangeWidth)...)

	// The byte range lives in the prefix or in the suffix; its width is
	// fixed before offsets are computed.
	inPrefix := bytes.Contains(prefix, marker)
	inSuffix := !inPrefix && bytes.Contains(suffix, marker)
	switch {
	case inPrefix:
		prefix = bytes.Replace(prefix, marker, width, 1)
	case inSuffix:
		suffix = bytes.Replace(suffix, marker, width, 1)
	default:
		return nil, ErrNoByteRange
	}

	placeholder := 2*size + 2
	data := make([]byte, 0, len(prefix)+placeholder+len(suffix))
	data = append(data, prefix...)
	data = append(data, '<')
	data = append(data, bytes.Repeat([]byte{'0'}, 2*size)...)
	data = append(data, '>')
	data = append(data, suffix...)

	off := int64(len(prefix))
	br := [4]int64{0, off, off + int64(placeholder), int64(len(suffix))}

	text := fmt.Sprintf("[%d %d %d %d]", br[0], br[1], br[2], br[3])
	if len(text) > byteRangeWidth {
		return nil, fmt.Errorf("twophase: byte range %s exceeds %d characters", text, byteRangeWidth)
	}
	at := bytes.Index(prefix, width)
	if inSuffix {
		at = int(br[2]) + bytes.Index(suffix, width)
	}
	copy(data[at+len(byteRangeKey):], text)

	return &Document{Data: data, ByteRange: br, Reserved: size}, nil
}
