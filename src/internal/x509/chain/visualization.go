// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509chain

import (
	"crypto/dsa" //nolint:staticcheck // DSA signers are still reported.
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// Status maps certificate serial numbers (decimal) to a short status such
// as "good", "revoked" or "unknown".
type Status map[string]string

func (s Status) of(cert *x509.Certificate) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s[cert.SerialNumber.String()]
	return v, ok
}

// RenderTree renders chain as an ASCII tree with one line per certificate.
// A certificate whose status is set and is not "good" is marked with ✗.
func RenderTree(chain []*x509.Certificate, status Status) string {
	if len(chain) == 0 {
		return "No certificates in chain"
	}

	var result strings.Builder
	for i, cert := range chain {
		connector := "├── "
		if i == len(chain)-1 {
			connector = "└── "
		}

		icon := "✓"
		if s, ok := status.of(cert); ok && !strings.EqualFold(s, "good") {
			icon = "✗"
		}

		fmt.Fprintf(&result, "%s[%s] %s (%s)\n", connector, icon, displayName(cert), Role(chain, i))
	}

	return result.String()
}

// RenderTable renders chain as a markdown table.
func RenderTable(chain []*x509.Certificate, status Status) string {
	if len(chain) == 0 {
		return "No certificates to display"
	}

	var buf strings.Builder
	table := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewMarkdown(tw.Rendition{Streaming: true})),
	)
	table.Header([]string{"#", "Role", "Subject", "Issuer", "Valid Until", "Key", "Status"})

	rows := make([][]string, 0, len(chain))
	for i, cert := range chain {
		s, ok := status.of(cert)
		if !ok {
			s = "unknown"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			Role(chain, i),
			displayName(cert),
			cert.Issuer.CommonName,
			cert.NotAfter.UTC().Format("2006-01-02"),
			KeyDescription(cert),
			s,
		})
	}

	table.Bulk(rows)
	table.Render()
	return buf.String()
}

// Role names the position of chain[index].
func Role(chain []*x509.Certificate, index int) string {
	last := len(chain) - 1
	switch {
	case len(chain) == 1 && IsSelfSigned(chain[0]):
		return "Self-Signed Certificate"
	case index == 0:
		return "Signer Certificate"
	case index == last && IsSelfSigned(chain[index]):
		return "Root CA Certificate"
	default:
		return "Intermediate CA Certificate"
	}
}

// KeyDescription describes the public key of cert, e.g. "256-bit ECDSA".
func KeyDescription(cert *x509.Certificate) string {
	switch key := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return fmt.Sprintf("%d-bit RSA", key.Size()*8)
	case *ecdsa.PublicKey:
		return fmt.Sprintf("%d-bit ECDSA", key.Curve.Params().BitSize)
	case *dsa.PublicKey:
		return fmt.Sprintf("%d-bit DSA", key.P.BitLen())
	case ed25519.PublicKey:
		return "Ed25519"
	default:
		return cert.PublicKeyAlgorithm.String()
	}
}

func displayName(cert *x509.Certificate) string {
	if cert.Subject.CommonName != "" {
		return cert.Subject.CommonName
	}
	return cert.Subject.String()
}
