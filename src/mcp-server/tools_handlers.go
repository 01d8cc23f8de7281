// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package mcpserver

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/trust"
	x509certs "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/certs"
	x509chain "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/chain"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/revocation"
	x509verify "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/verify"
)

// ErrInvalidInput is returned for a parameter that is neither a readable
// file nor base64 data.
var ErrInvalidInput = errors.New("not a valid file path or base64 data")

// handlers carries the state shared by tool and resource handlers.
type handlers struct {
	svc     *trust.Service
	version string
}

// readInput reads a parameter given as a file path, PEM text or base64.
func readInput(input string) ([]byte, error) {
	if data, err := os.ReadFile(input); err == nil {
		return data, nil
	}
	if x509certs.IsPEM([]byte(strings.TrimSpace(input))) {
		return []byte(input), nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(input)); err == nil {
		return decoded, nil
	}
	return nil, ErrInvalidInput
}

// readList reads a comma-separated list of inputs.
func readList(list string) ([][]byte, error) {
	var out [][]byte
	for item := range strings.SplitSeq(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		data, err := readInput(item)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", item, err)
		}
		out = append(out, data)
	}
	return out, nil
}

func readCertificates(input string) ([]*x509.Certificate, error) {
	data, err := readInput(input)
	if err != nil {
		return nil, err
	}
	certs, err := x509certs.DecodeMultiple(data)
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		return nil, x509certs.ErrNoCertificates
	}
	return certs, nil
}

// verifyOptions reads the evidence parameters shared by verify_chain and
// check_revocation.
func verifyOptions(request mcp.CallToolRequest) (trust.VerifyOptions, error) {
	opts := trust.VerifyOptions{
		Online:   request.GetBool("online", false),
		Complete: request.GetBool("complete", false),
	}

	if date := request.GetString("date", ""); date != "" {
		t, err := time.Parse(time.RFC3339, date)
		if err != nil {
			return opts, fmt.Errorf("invalid date: %w", err)
		}
		opts.Date = t
	}

	crls, err := readList(request.GetString("crls", ""))
	if err != nil {
		return opts, fmt.Errorf("failed to read CRL: %w", err)
	}
	for _, crl := range crls {
		der, err := x509certs.RevocationListDER(crl)
		if err != nil {
			return opts, err
		}
		opts.CRLs = append(opts.CRLs, der)
	}

	if opts.OCSPs, err = readList(request.GetString("ocsp_responses", "")); err != nil {
		return opts, fmt.Errorf("failed to read OCSP response: %w", err)
	}
	return opts, nil
}

type certificateJSON struct {
	Subject   string    `json:"subject"`
	Issuer    string    `json:"issuer"`
	Serial    string    `json:"serial"`
	Role      string    `json:"role"`
	NotBefore time.Time `json:"notBefore"`
	NotAfter  time.Time `json:"notAfter"`
	Key       string    `json:"key"`
	PEM       string    `json:"pem"`
}

// formatChain renders certs as pem, der (base64) or json.
func formatChain(certs []*x509.Certificate, format string) (string, error) {
	switch format {
	case "", "pem":
		return string(x509certs.EncodeMultiplePEM(certs)), nil
	case "der":
		return base64.StdEncoding.EncodeToString(x509certs.EncodeMultipleDER(certs)), nil
	case "json":
		out := struct {
			Certificates []certificateJSON `json:"certificates"`
		}{Certificates: make([]certificateJSON, 0, len(certs))}
		for i, cert := range certs {
			out.Certificates = append(out.Certificates, certificateJSON{
				Subject:   cert.Subject.String(),
				Issuer:    cert.Issuer.String(),
				Serial:    cert.SerialNumber.String(),
				Role:      x509chain.Role(certs, i),
				NotBefore: cert.NotBefore.UTC(),
				NotAfter:  cert.NotAfter.UTC(),
				Key:       x509chain.KeyDescription(cert),
				PEM:       string(x509certs.EncodePEM(cert)),
			})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal chain: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}

// chainSummary lists certs by common name above the formatted output.
func chainSummary(header string, certs []*x509.Certificate, output string) string {
	var b strings.Builder
	b.WriteString(header + "\n")
	for i, c := range certs {
		fmt.Fprintf(&b, "%d: %s (%s)\n", i+1, c.Subject.CommonName, x509chain.Role(certs, i))
	}
	fmt.Fprintf(&b, "\nTotal: %d certificate(s)\n\n", len(certs))
	b.WriteString(output)
	return b.String()
}

func (h *handlers) completeChain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := request.RequireString("certificate")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("certificate parameter required: %v", err)), nil
	}
	certs, err := readCertificates(input)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read certificate: %v", err)), nil
	}

	certs = h.svc.Completer().Complete(ctx, certs)
	if request.GetBool("intermediate_only", false) {
		var filtered []*x509.Certificate
		for i, cert := range certs {
			if i > 0 && !x509chain.IsSelfSigned(cert) {
				filtered = append(filtered, cert)
			}
		}
		certs = filtered
	}

	output, err := formatChain(certs, request.GetString("format", "pem"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(chainSummary("Certificate chain completed:", certs, output)), nil
}

func (h *handlers) fetchRemoteChain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hostname, err := request.RequireString("hostname")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("hostname parameter required: %v", err)), nil
	}
	port := request.GetInt("port", 443)
	if port <= 0 || port > 65535 {
		return mcp.NewToolResultError(fmt.Sprintf("invalid port %d", port)), nil
	}

	timeout := time.Duration(h.svc.Config().HTTP.TimeoutSeconds) * time.Second
	certs, err := x509chain.FetchRemoteChain(ctx, hostname, port, timeout)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch remote chain: %v", err)), nil
	}
	certs = h.svc.Completer().Complete(ctx, certs)

	output, err := formatChain(certs, request.GetString("format", "pem"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	header := fmt.Sprintf("Certificate chain of %s:%d:", hostname, port)
	return mcp.NewToolResultText(chainSummary(header, certs, output)), nil
}

func (h *handlers) verifyChain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := request.RequireString("certificate")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("certificate parameter required: %v", err)), nil
	}
	certs, err := readCertificates(input)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read certificate: %v", err)), nil
	}
	opts, err := verifyOptions(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, _, verifyErr := h.svc.VerifyChain(ctx, certs, opts)
	return mcp.NewToolResultText(x509verify.RenderOutcome(result, verifyErr)), nil
}

type evidenceJSON struct {
	Kind    string `json:"kind"`
	Verdict string `json:"verdict"`
	Reason  string `json:"reason,omitempty"`
	Online  bool   `json:"online"`
}

type revocationJSON struct {
	Subject  string         `json:"subject"`
	Serial   string         `json:"serial"`
	Status   string         `json:"status"`
	Accepted int            `json:"accepted"`
	Online   bool           `json:"online"`
	Evidence []evidenceJSON `json:"evidence"`
	Error    string         `json:"error,omitempty"`
}

func (h *handlers) checkRevocation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	certInput, err := request.RequireString("certificate")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("certificate parameter required: %v", err)), nil
	}
	issuerInput, err := request.RequireString("issuer")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("issuer parameter required: %v", err)), nil
	}
	certs, err := readCertificates(certInput)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read certificate: %v", err)), nil
	}
	issuers, err := readCertificates(issuerInput)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read issuer: %v", err)), nil
	}
	opts, err := verifyOptions(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cert := certs[0]
	result, checkErr := h.svc.CheckRevocation(ctx, cert, issuers[0], opts)

	out := revocationJSON{
		Subject:  cert.Subject.String(),
		Serial:   cert.SerialNumber.String(),
		Status:   "unknown",
		Accepted: result.Valid,
		Online:   result.Online,
		Evidence: make([]evidenceJSON, 0, len(result.Outcomes)),
	}
	switch {
	case errors.Is(checkErr, revocation.ErrRevoked):
		out.Status = "revoked"
	case checkErr == nil && result.Valid > 0:
		out.Status = "good"
	}
	if checkErr != nil {
		out.Error = checkErr.Error()
	}
	for _, o := range result.Outcomes {
		out.Evidence = append(out.Evidence, evidenceJSON{
			Kind:    o.Evidence.Kind.String(),
			Verdict: o.Verdict.String(),
			Reason:  o.Reason,
			Online:  o.Online,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (h *handlers) inspectSignature(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := request.RequireString("signature")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("signature parameter required: %v", err)), nil
	}
	data, err := readInput(input)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read signature: %v", err)), nil
	}
	opts := trust.InspectOptions{Complete: request.GetBool("complete", false)}

	var report *trust.SignatureReport
	switch document := request.GetString("document", ""); {
	case request.GetBool("signed", false):
		report, err = h.svc.InspectDocument(ctx, data, opts)
	case document != "":
		content, rerr := readInput(document)
		if rerr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read document: %v", rerr)), nil
		}
		report, err = h.svc.InspectDetached(ctx, trust.ContainerDER(data), content, opts)
	default:
		report, err = h.svc.InspectSignature(ctx, trust.ContainerDER(data), opts)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to inspect signature: %v", err)), nil
	}
	return mcp.NewToolResultText(report.Render()), nil
}

func (h *handlers) getResourceUsage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data := CollectResourceUsage(request.GetBool("detailed", false), h.svc.CRLCache())

	switch format := request.GetString("format", "json"); format {
	case "markdown":
		return mcp.NewToolResultText(FormatResourceUsageAsMarkdown(data)), nil
	case "json":
		out, err := FormatResourceUsageAsJSON(data)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unsupported format %q", format)), nil
	}
}
