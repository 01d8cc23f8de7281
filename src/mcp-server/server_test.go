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
	"io"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/mcptest"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/crypto/ocsp"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/config"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/trust"
	x509certs "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/certs"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/testpki"
)

type fixture struct {
	root, inter, leaf *testpki.Authority
	interCRL          []byte
	cfg               *config.Config
	chainB64          string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Now()
	f := &fixture{root: testpki.NewRoot(t, "MCP Root")}
	f.inter = f.root.NewIntermediate(t, "MCP Intermediate")
	f.leaf = f.inter.NewLeaf(t, "MCP Signer")
	f.interCRL = f.inter.CRL(t, now.Add(-time.Hour), now.Add(time.Hour))

	dir := t.TempDir()
	anchor := filepath.Join(dir, "root.pem")
	if err := os.WriteFile(anchor, x509certs.EncodePEM(f.root.Cert), 0o600); err != nil {
		t.Fatal(err)
	}
	crl := filepath.Join(dir, "inter.crl")
	if err := os.WriteFile(crl, f.interCRL, 0o600); err != nil {
		t.Fatal(err)
	}

	f.cfg = config.Default()
	f.cfg.Trust.Anchors = []string{anchor}
	f.cfg.Revocation.CRLFiles = []string{crl}

	pemChain := append(x509certs.EncodePEM(f.leaf.Cert), x509certs.EncodePEM(f.inter.Cert)...)
	f.chainB64 = base64.StdEncoding.EncodeToString(pemChain)
	return f
}

func (f *fixture) handlers(t *testing.T, cfg *config.Config) *handlers {
	t.Helper()
	svc, err := trust.New(cfg, "test", nil)
	if err != nil {
		t.Fatalf("trust.New: %v", err)
	}
	return &handlers{svc: svc, version: "test"}
}

func b64(data []byte) string { return base64.StdEncoding.EncodeToString(data) }

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

// signature builds a detached container over document with the fixture's
// leaf key.
func (f *fixture) signature(t *testing.T, svc *trust.Service, document []byte) []byte {
	t.Helper()
	ctx := context.Background()
	signer, err := svc.Signer(f.leaf.Key)
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.Builder(signer)
	if err != nil {
		t.Fatal(err)
	}
	req, err := svc.BuildRequest(ctx, []*x509.Certificate{f.leaf.Cert, f.inter.Cert}, b.DigestAlgorithm().Sum(document), false)
	if err != nil {
		t.Fatal(err)
	}
	der, err := b.Build(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	return der
}

func TestMCPTools(t *testing.T) {
	f := newFixture(t)
	h := f.handlers(t, f.cfg)

	document := []byte("signed over MCP")
	signature := f.signature(t, h.svc, document)

	srv := mcptest.NewUnstartedServer(t)
	for _, def := range createTools(h) {
		srv.AddTools(server.ServerTool{Tool: def.Tool, Handler: def.Handler})
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	client := srv.Client()

	tests := []struct {
		name           string
		toolName       string
		args           map[string]any
		expectError    bool
		expectContains []string
	}{
		{
			name:           "complete_chain pem",
			toolName:       "complete_chain",
			args:           map[string]any{"certificate": f.chainB64},
			expectContains: []string{"BEGIN CERTIFICATE", "1: MCP Signer", "Total: 2 certificate(s)"},
		},
		{
			name:           "complete_chain json",
			toolName:       "complete_chain",
			args:           map[string]any{"certificate": f.chainB64, "format": "json"},
			expectContains: []string{`"certificates"`, `"role"`, `"serial"`},
		},
		{
			name:           "complete_chain intermediate only",
			toolName:       "complete_chain",
			args:           map[string]any{"certificate": f.chainB64, "intermediate_only": true},
			expectContains: []string{"1: MCP Intermediate", "Total: 1 certificate(s)"},
		},
		{
			name:           "complete_chain unknown format",
			toolName:       "complete_chain",
			args:           map[string]any{"certificate": f.chainB64, "format": "xml"},
			expectError:    true,
			expectContains: []string{"unsupported format"},
		},
		{
			name:           "complete_chain invalid input",
			toolName:       "complete_chain",
			args:           map[string]any{"certificate": "%%% not base64 %%%"},
			expectError:    true,
			expectContains: []string{"failed to read certificate"},
		},
		{
			name:           "complete_chain missing certificate",
			toolName:       "complete_chain",
			args:           map[string]any{},
			expectError:    true,
			expectContains: []string{"certificate parameter required"},
		},
		{
			name:           "verify_chain trusted",
			toolName:       "verify_chain",
			args:           map[string]any{"certificate": f.chainB64},
			expectContains: []string{"Chain trusted"},
		},
		{
			name:           "verify_chain invalid date",
			toolName:       "verify_chain",
			args:           map[string]any{"certificate": f.chainB64, "date": "yesterday"},
			expectError:    true,
			expectContains: []string{"invalid date"},
		},
		{
			name:     "check_revocation good",
			toolName: "check_revocation",
			args: map[string]any{
				"certificate": b64(f.leaf.Cert.Raw),
				"issuer":      b64(f.inter.Cert.Raw),
			},
			expectContains: []string{`"status": "good"`, `"kind": "CRL"`, `"verdict": "accepted"`},
		},
		{
			name:           "check_revocation missing issuer",
			toolName:       "check_revocation",
			args:           map[string]any{"certificate": b64(f.leaf.Cert.Raw)},
			expectError:    true,
			expectContains: []string{"issuer parameter required"},
		},
		{
			name:     "inspect_signature detached",
			toolName: "inspect_signature",
			args: map[string]any{
				"signature": b64(signature),
				"document":  b64(document),
			},
			expectContains: []string{"MCP Signer", "Chain trusted"},
		},
		{
			name:     "inspect_signature wrong document",
			toolName: "inspect_signature",
			args: map[string]any{
				"signature": b64(signature),
				"document":  b64([]byte("tampered")),
			},
			expectContains: []string{"FAILED"},
		},
		{
			name:           "inspect_signature garbage",
			toolName:       "inspect_signature",
			args:           map[string]any{"signature": b64([]byte("garbage"))},
			expectError:    true,
			expectContains: []string{"failed to inspect signature"},
		},
		{
			name:           "get_resource_usage json",
			toolName:       "get_resource_usage",
			args:           map[string]any{"detailed": true},
			expectContains: []string{`"memory_usage"`, `"crl_cache"`, `"max_size"`},
		},
		{
			name:           "get_resource_usage markdown",
			toolName:       "get_resource_usage",
			args:           map[string]any{"format": "markdown"},
			expectContains: []string{"# Resource Usage Report", "## Memory Usage"},
		},
		{
			name:           "get_resource_usage unknown format",
			toolName:       "get_resource_usage",
			args:           map[string]any{"format": "yaml"},
			expectError:    true,
			expectContains: []string{"unsupported format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := client.CallTool(context.Background(), callTool(tt.toolName, tt.args))
			if err != nil {
				t.Fatalf("CallTool: %v", err)
			}
			if result.IsError != tt.expectError {
				t.Errorf("IsError = %v, want %v: %s", result.IsError, tt.expectError, resultText(t, result))
			}
			text := resultText(t, result)
			for _, want := range tt.expectContains {
				if !strings.Contains(text, want) {
					t.Errorf("result does not contain %q:\n%s", want, text)
				}
			}
		})
	}
}

func TestHandlersWithoutConfiguredCRLs(t *testing.T) {
	f := newFixture(t)
	cfg := *f.cfg
	cfg.Revocation.CRLFiles = nil
	h := f.handlers(t, &cfg)
	ctx := context.Background()

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Revoked By Supplied CRL",
			testFunc: func(t *testing.T) {
				now := time.Now()
				revoked := f.inter.CRL(t, now.Add(-time.Hour), now.Add(time.Hour), testpki.RevokedEntry{Cert: f.leaf.Cert})
				result, err := h.checkRevocation(ctx, callTool("check_revocation", map[string]any{
					"certificate": b64(f.leaf.Cert.Raw),
					"issuer":      b64(f.inter.Cert.Raw),
					"crls":        b64(revoked),
				}))
				if err != nil {
					t.Fatal(err)
				}
				var out revocationJSON
				if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
					t.Fatal(err)
				}
				if out.Status != "revoked" || out.Error == "" {
					t.Errorf("status = %q, error = %q", out.Status, out.Error)
				}
			},
		},
		{
			name: "OCSP Fallback",
			testFunc: func(t *testing.T) {
				resp := f.inter.OCSPResponse(t, f.leaf.Cert, ocsp.Good, testpki.OCSPOptions{})
				result, err := h.checkRevocation(ctx, callTool("check_revocation", map[string]any{
					"certificate":    b64(f.leaf.Cert.Raw),
					"issuer":         b64(f.inter.Cert.Raw),
					"ocsp_responses": b64(resp),
				}))
				if err != nil {
					t.Fatal(err)
				}
				var out revocationJSON
				if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
					t.Fatal(err)
				}
				if out.Status != "good" || out.Accepted != 1 {
					t.Errorf("status = %q, accepted = %d", out.Status, out.Accepted)
				}
				if n := len(out.Evidence); n == 0 || out.Evidence[n-1].Kind != "OCSP" {
					t.Errorf("expected OCSP evidence last, got %+v", out.Evidence)
				}
			},
		},
		{
			name: "Unknown Without Evidence",
			testFunc: func(t *testing.T) {
				result, err := h.checkRevocation(ctx, callTool("check_revocation", map[string]any{
					"certificate": b64(f.leaf.Cert.Raw),
					"issuer":      b64(f.inter.Cert.Raw),
				}))
				if err != nil {
					t.Fatal(err)
				}
				if text := resultText(t, result); !strings.Contains(text, `"status": "unknown"`) {
					t.Errorf("unexpected result: %s", text)
				}
			},
		},
		{
			name: "Verify With Supplied CRL",
			testFunc: func(t *testing.T) {
				crlPath := filepath.Join(t.TempDir(), "inter.crl")
				if err := os.WriteFile(crlPath, x509certs.EncodeRevocationListPEM(f.interCRL), 0o600); err != nil {
					t.Fatal(err)
				}
				result, err := h.verifyChain(ctx, callTool("verify_chain", map[string]any{
					"certificate": f.chainB64,
					"crls":        crlPath,
				}))
				if err != nil {
					t.Fatal(err)
				}
				if text := resultText(t, result); !strings.Contains(text, "Chain trusted") {
					t.Errorf("unexpected result: %s", text)
				}
			},
		},
		{
			name: "Invalid CRL",
			testFunc: func(t *testing.T) {
				result, err := h.verifyChain(ctx, callTool("verify_chain", map[string]any{
					"certificate": f.chainB64,
					"crls":        b64([]byte("not a crl")),
				}))
				if err != nil {
					t.Fatal(err)
				}
				if !result.IsError {
					t.Errorf("expected error result, got %s", resultText(t, result))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func TestFetchRemoteChain(t *testing.T) {
	f := newFixture(t)
	h := f.handlers(t, f.cfg)

	ts := httptest.NewTLSServer(nil)
	defer ts.Close()
	host, portText, err := net.SplitHostPort(ts.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portText)

	result, err := h.fetchRemoteChain(context.Background(), callTool("fetch_remote_chain", map[string]any{
		"hostname": host,
		"port":     float64(port),
	}))
	if err != nil {
		t.Fatal(err)
	}
	text := resultText(t, result)
	if result.IsError || !strings.Contains(text, "Total: 1 certificate(s)") || !strings.Contains(text, "BEGIN CERTIFICATE") {
		t.Errorf("unexpected result: %s", text)
	}

	result, err = h.fetchRemoteChain(context.Background(), callTool("fetch_remote_chain", map[string]any{
		"hostname": host,
		"port":     float64(70000),
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Errorf("expected error for invalid port, got %s", resultText(t, result))
	}
}

func TestResourceHandlers(t *testing.T) {
	f := newFixture(t)
	cfg := *f.cfg
	cfg.TSA.URL = "http://tsa.example.test"
	cfg.TSA.Password = "hunter2"
	h := f.handlers(t, &cfg)

	srv := mcptest.NewUnstartedServer(t)
	srv.AddResources(createResources(h)...)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	client := srv.Client()

	tests := []struct {
		name           string
		uri            string
		expectError    bool
		expectContains []string
		expectMissing  []string
		expectMIMEType string
	}{
		{
			name:           "current configuration",
			uri:            ConfigURI,
			expectContains: []string{`"anchors"`, "root.pem", redacted, "tsa.example.test"},
			expectMissing:  []string{"hunter2"},
			expectMIMEType: "application/json",
		},
		{
			name:           "version information",
			uri:            VersionURI,
			expectContains: []string{ServerName, `"version": "test"`, `"cades"`},
			expectMIMEType: "application/json",
		},
		{
			name:           "signature formats",
			uri:            SignatureFormatsURI,
			expectContains: []string{"# Signature Formats", "adbe-revocationInfoArchival"},
			expectMIMEType: "text/markdown",
		},
		{
			name:           "server status",
			uri:            StatusURI,
			expectContains: []string{`"healthy"`, `"trustAnchors": 1`, `"timestamping": true`, `"crlCache"`},
			expectMIMEType: "application/json",
		},
		{
			name:        "nonexistent resource",
			uri:         "nonexistent://resource",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := client.ReadResource(context.Background(), mcp.ReadResourceRequest{
				Params: mcp.ReadResourceParams{URI: tt.uri},
			})
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for URI %s", tt.uri)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadResource(%s): %v", tt.uri, err)
			}
			if len(result.Contents) == 0 {
				t.Fatalf("no contents for %s", tt.uri)
			}

			content, ok := result.Contents[0].(mcp.TextResourceContents)
			if !ok {
				t.Fatalf("expected TextResourceContents, got %T", result.Contents[0])
			}
			if content.MIMEType != tt.expectMIMEType {
				t.Errorf("MIME type = %s, want %s", content.MIMEType, tt.expectMIMEType)
			}
			for _, want := range tt.expectContains {
				if !strings.Contains(content.Text, want) {
					t.Errorf("%s does not contain %q:\n%s", tt.uri, want, content.Text)
				}
			}
			for _, unwanted := range tt.expectMissing {
				if strings.Contains(content.Text, unwanted) {
					t.Errorf("%s discloses %q", tt.uri, unwanted)
				}
			}
		})
	}
}

func TestServerBuilder(t *testing.T) {
	f := newFixture(t)
	h := f.handlers(t, f.cfg)

	if _, err := NewServerBuilder().WithDefaultTools().Build(); !errors.Is(err, ErrNoService) {
		t.Errorf("Build without service: got %v, want ErrNoService", err)
	}

	s, err := NewServerBuilder().
		WithService(h.svc).
		WithVersion("test").
		WithDefaultTools().
		WithDefaultResources().
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if s == nil {
		t.Fatal("Build returned nil server")
	}

	s, err = NewServerBuilder().WithService(h.svc).WithInstructions("custom").Build()
	if err != nil || s == nil {
		t.Fatalf("Build with instructions: %v", err)
	}
}

func TestLoadInstructions(t *testing.T) {
	instructions, err := loadInstructions(createTools(&handlers{}))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"`complete_chain`",
		"`inspect_signature`",
		"with `verify_chain`",
		"Use `check_revocation`",
		"docs://signature-formats",
	} {
		if !strings.Contains(instructions, want) {
			t.Errorf("instructions do not contain %q:\n%s", want, instructions)
		}
	}
}

func TestRun(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Initialize And Cancel",
			testFunc: func(t *testing.T) {
				ctx, cancel := context.WithCancel(context.Background())
				defer cancel()

				inR, inW := io.Pipe()
				outR, outW := io.Pipe()
				done := make(chan error, 1)
				go func() { done <- Run(ctx, f.cfg, "1.0.0-test", nil, inR, outW) }()

				go func() {
					_, _ = io.WriteString(inW, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`+"\n")
				}()

				line := make(chan string, 1)
				go func() {
					buf := make([]byte, 64*1024)
					n, _ := outR.Read(buf)
					line <- string(buf[:n])
				}()

				select {
				case got := <-line:
					if !strings.Contains(got, ServerName) || !strings.Contains(got, "1.0.0-test") {
						t.Errorf("unexpected initialize response: %s", got)
					}
				case <-time.After(5 * time.Second):
					t.Fatal("no initialize response")
				}

				cancel()
				select {
				case err := <-done:
					if err != nil {
						t.Errorf("Run returned %v on cancellation", err)
					}
				case <-time.After(5 * time.Second):
					t.Fatal("Run did not stop")
				}
			},
		},
		{
			name: "Invalid Anchors",
			testFunc: func(t *testing.T) {
				cfg := config.Default()
				cfg.Trust.Anchors = []string{filepath.Join(t.TempDir(), "missing.pem")}
				err := Run(context.Background(), cfg, "test", nil, strings.NewReader(""), io.Discard)
				if err == nil || !strings.Contains(err.Error(), "failed to initialize trust service") {
					t.Errorf("unexpected error: %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}
