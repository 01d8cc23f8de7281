// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/mcp-server/templates"
)

const redacted = "[REDACTED]"

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// configResource serves the effective configuration. The TSA password is
// never disclosed.
func (h *handlers) configResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	cfg := *h.svc.Config()
	if cfg.TSA.Password != "" {
		cfg.TSA.Password = redacted
	}
	return jsonResource(ConfigURI, cfg)
}

func (h *handlers) versionResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(VersionURI, map[string]any{
		"name":             ServerName,
		"version":          h.version,
		"type":             "MCP Server",
		"goVersion":        runtime.Version(),
		"signatureModes":   []string{"cms", "cades"},
		"digestAlgorithms": []string{"sha256", "sha384", "sha512", "shake256"},
		"chainFormats":     []string{"pem", "der", "json"},
	})
}

func (h *handlers) signatureFormatsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	content, err := templates.MagicEmbed.ReadFile(templates.SignatureFormats)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature formats template: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      SignatureFormatsURI,
			MIMEType: "text/markdown",
			Text:     string(content),
		},
	}, nil
}

func (h *handlers) statusResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	cfg := h.svc.Config()
	return jsonResource(StatusURI, map[string]any{
		"status":           "healthy",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"server":           ServerName,
		"version":          h.version,
		"trustAnchors":     len(h.svc.Anchors()),
		"onlineRevocation": cfg.Revocation.Online,
		"timestamping":     cfg.TSA.URL != "",
		"crlCache":         CollectResourceUsage(true, h.svc.CRLCache()).CRLCache,
	})
}
