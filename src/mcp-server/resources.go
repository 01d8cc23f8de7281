// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Resource URIs.
const (
	ConfigURI           = "config://current"
	VersionURI          = "info://version"
	SignatureFormatsURI = "docs://signature-formats"
	StatusURI           = "status://server-status"
)

// createResources returns the built-in resources bound to h.
func createResources(h *handlers) []server.ServerResource {
	return []server.ServerResource{
		{
			Resource: mcp.NewResource(ConfigURI, "Current Configuration",
				mcp.WithResourceDescription("Effective trust, revocation, TSA and signing settings with secrets redacted"),
				mcp.WithMIMEType("application/json"),
			),
			Handler: h.configResource,
		},
		{
			Resource: mcp.NewResource(VersionURI, "Version Information",
				mcp.WithResourceDescription("Server name, version and supported formats"),
				mcp.WithMIMEType("application/json"),
			),
			Handler: h.versionResource,
		},
		{
			Resource: mcp.NewResource(SignatureFormatsURI, "Signature Formats",
				mcp.WithResourceDescription("Accepted encodings, container layouts and the two-phase document format"),
				mcp.WithMIMEType("text/markdown"),
			),
			Handler: h.signatureFormatsResource,
		},
		{
			Resource: mcp.NewResource(StatusURI, "Server Status",
				mcp.WithResourceDescription("Health, trust anchor count and CRL cache statistics"),
				mcp.WithMIMEType("application/json"),
			),
			Handler: h.statusResource,
		},
	}
}
