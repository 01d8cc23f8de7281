// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package trust

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/cms"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/tsa"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/twophase"
	x509certs "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/certs"
	x509verify "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/verify"
)

// ErrNoSigner is reported when a container does not carry its signer
// certificate.
var ErrNoSigner = errors.New("trust: signer certificate not embedded")

// InspectOptions tunes InspectSignature.
type InspectOptions struct {
	// Digest is the digest of the signed document. The document check is
	// skipped when nil.
	Digest []byte
	// Online enables network revocation checks for the chain.
	Online bool
	// Complete fetches issuers missing from the container.
	Complete bool
}

// SignatureReport describes one signature container. Each check records its
// own error; a nil error means the check passed or did not apply.
type SignatureReport struct {
	Container *cms.Container
	Signer    *x509.Certificate

	SignatureErr error
	// DocumentChecked is set when a document digest was compared.
	DocumentChecked bool
	DocumentErr     error

	Timestamp    *tsa.Token
	TimestampErr error

	// ReferenceTime is the time the chain was verified at: the timestamp
	// time when one verified, else the signing time, else now.
	ReferenceTime time.Time
	Chain         x509verify.ChainResult
	ChainErr      error
}

// Valid reports whether every check passed and the chain is trusted.
func (r *SignatureReport) Valid() bool {
	return r.SignatureErr == nil && r.DocumentErr == nil && r.TimestampErr == nil &&
		r.ChainErr == nil && r.Chain.Trusted()
}

// InspectSignature parses der and checks its signature, the document digest
// when given, the timestamp token and the signer chain. Only a container
// that cannot be parsed is an error.
func (s *Service) InspectSignature(ctx context.Context, der []byte, opts InspectOptions) (*SignatureReport, error) {
	c, err := cms.Parse(der)
	if err != nil {
		return nil, err
	}
	r := &SignatureReport{Container: c, ReferenceTime: c.SigningTime}

	r.Signer, err = c.Signer()
	if err != nil {
		r.SignatureErr = fmt.Errorf("%w: %w", ErrNoSigner, err)
		r.ChainErr = r.SignatureErr
		return r, nil
	}
	r.SignatureErr = c.VerifySignature()

	if opts.Digest != nil {
		r.DocumentChecked = true
		r.DocumentErr = c.VerifyDocumentDigest(opts.Digest)
	}

	if c.TimestampToken != nil {
		r.Timestamp, r.TimestampErr = s.checkTimestamp(c)
		if r.TimestampErr == nil {
			r.ReferenceTime = r.Timestamp.GenTime
		}
	}
	if r.ReferenceTime.IsZero() {
		r.ReferenceTime = time.Now()
	}

	r.Chain, _, r.ChainErr = s.VerifyChain(ctx, c.Chain(), VerifyOptions{
		CRLs:     c.CRLs,
		OCSPs:    c.OCSPs,
		Online:   opts.Online,
		Complete: opts.Complete,
		Date:     r.ReferenceTime,
	})
	return r, nil
}

func (s *Service) checkTimestamp(c *cms.Container) (*tsa.Token, error) {
	token, err := tsa.ParseToken(c.TimestampToken)
	if err != nil {
		return nil, err
	}
	if err := token.VerifyImprint(c.Signature); err != nil {
		return token, err
	}
	if len(token.Certificates) > 0 {
		if err := token.VerifySignature(); err != nil {
			return token, err
		}
	}
	return token, nil
}

// InspectDocument locates the signature of a finalized document, digests
// the covered bytes and inspects the container.
func (s *Service) InspectDocument(ctx context.Context, data []byte, opts InspectOptions) (*SignatureReport, error) {
	doc, err := twophase.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	der, err := doc.Contents()
	if err != nil {
		return nil, err
	}
	c, err := cms.Parse(der)
	if err != nil {
		return nil, err
	}
	opts.Digest = doc.Digest(c.DigestAlgorithm)
	return s.InspectSignature(ctx, der, opts)
}

// InspectDetached inspects a container over detached content.
func (s *Service) InspectDetached(ctx context.Context, der, content []byte, opts InspectOptions) (*SignatureReport, error) {
	c, err := cms.Parse(der)
	if err != nil {
		return nil, err
	}
	opts.Digest = c.DigestAlgorithm.Sum(content)
	return s.InspectSignature(ctx, der, opts)
}

// ContainerDER unwraps a PEM encoded container. Other input is returned
// unchanged.
func ContainerDER(data []byte) []byte {
	if !x509certs.IsPEM(data) {
		return data
	}
	if block, _ := pem.Decode(data); block != nil {
		return block.Bytes
	}
	return data
}

func status(err error) string {
	if err != nil {
		return "FAILED: " + err.Error()
	}
	return "OK"
}

// Render formats the report as a markdown table followed by the chain
// outcome.
func (r *SignatureReport) Render() string {
	var buf strings.Builder
	table := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewMarkdown(tw.Rendition{Streaming: true})),
	)
	table.Header([]string{"Field", "Value"})

	c := r.Container
	rows := [][]string{{"Version", fmt.Sprintf("%d", c.Version)}}
	if r.Signer != nil {
		rows = append(rows, []string{"Signer", r.Signer.Subject.String()})
	}
	rows = append(rows,
		[]string{"Digest algorithm", c.DigestAlgorithm.String()},
		[]string{"Signature algorithm", c.SignatureAlgorithm.Algorithm.String()},
		[]string{"Certificates", fmt.Sprintf("%d", len(c.Certificates))},
		[]string{"CRLs", fmt.Sprintf("%d", len(c.CRLs))},
		[]string{"OCSP responses", fmt.Sprintf("%d", len(c.OCSPs))},
	)
	if !c.SigningTime.IsZero() {
		rows = append(rows, []string{"Signing time", c.SigningTime.UTC().Format(time.RFC3339)})
	}
	if c.Policy != nil {
		policy := c.Policy.PolicyID().String()
		if uri := c.Policy.URI(); uri != "" {
			policy += " (" + uri + ")"
		}
		rows = append(rows, []string{"Signature policy", policy})
	}
	rows = append(rows, []string{"Signature", status(r.SignatureErr)})
	if r.DocumentChecked {
		rows = append(rows, []string{"Document digest", status(r.DocumentErr)})
	}
	switch {
	case r.Timestamp != nil && r.TimestampErr == nil:
		rows = append(rows, []string{"Timestamp", r.Timestamp.GenTime.UTC().Format(time.RFC3339)})
	case r.TimestampErr != nil:
		rows = append(rows, []string{"Timestamp", status(r.TimestampErr)})
	}
	rows = append(rows, []string{"Reference time", r.ReferenceTime.UTC().Format(time.RFC3339)})

	table.Bulk(rows)
	table.Render()

	buf.WriteString("\n")
	buf.WriteString(x509verify.RenderOutcome(r.Chain, r.ChainErr))
	return buf.String()
}
