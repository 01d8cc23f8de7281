// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createTools returns the signature trust tools bound to h:
//   - complete_chain: fetches missing issuers of a chain
//   - fetch_remote_chain: reads the chain a TLS server presents
//   - verify_chain: verifies a chain against the trust anchors
//   - check_revocation: evaluates revocation evidence for one certificate
//   - inspect_signature: validates a CMS signature or a signed document
//   - get_resource_usage: reports memory and CRL cache statistics
func createTools(h *handlers) []ToolDefinition {
	return []ToolDefinition{
		{
			Tool: mcp.NewTool("complete_chain",
				mcp.WithDescription("Complete a X509 certificate chain by fetching missing issuers from AIA URLs"),
				mcp.WithString("certificate",
					mcp.Required(),
					mcp.Description("Certificate file path or base64-encoded certificate data, leaf first"),
				),
				mcp.WithString("format",
					mcp.Description("Output format: 'pem', 'der' (base64) or 'json' (default: pem)"),
					mcp.DefaultString("pem"),
				),
				mcp.WithBoolean("intermediate_only",
					mcp.Description("Output only intermediate certificates (default: false)"),
					mcp.DefaultBool(false),
				),
			),
			Handler: h.completeChain,
			Role:    "chainCompleter",
		},
		{
			Tool: mcp.NewTool("fetch_remote_chain",
				mcp.WithDescription("Fetch the X509 certificate chain presented by a remote TLS server and complete it"),
				mcp.WithString("hostname",
					mcp.Required(),
					mcp.Description("Remote hostname to connect to"),
				),
				mcp.WithNumber("port",
					mcp.Description("Port number (default: 443)"),
					mcp.DefaultNumber(443),
				),
				mcp.WithString("format",
					mcp.Description("Output format: 'pem', 'der' (base64) or 'json' (default: pem)"),
					mcp.DefaultString("pem"),
				),
			),
			Handler: h.fetchRemoteChain,
			Role:    "remoteFetcher",
		},
		{
			Tool: mcp.NewTool("verify_chain",
				mcp.WithDescription("Verify a X509 certificate chain against the trust anchors with CRL and OCSP evidence"),
				mcp.WithString("certificate",
					mcp.Required(),
					mcp.Description("Certificate chain file path or base64-encoded data, leaf first"),
				),
				mcp.WithString("crls",
					mcp.Description("Comma-separated CRL file paths or base64-encoded CRLs used as offline evidence"),
				),
				mcp.WithString("ocsp_responses",
					mcp.Description("Comma-separated OCSP response file paths or base64-encoded responses"),
				),
				mcp.WithString("date",
					mcp.Description("Reference date in RFC 3339 (default: now)"),
				),
				mcp.WithBoolean("complete",
					mcp.Description("Fetch missing issuers before verifying (default: false)"),
					mcp.DefaultBool(false),
				),
				mcp.WithBoolean("online",
					mcp.Description("Fetch CRLs and OCSP responses when offline evidence is inconclusive (default: configured value)"),
					mcp.DefaultBool(false),
				),
			),
			Handler: h.verifyChain,
			Role:    "chainVerifier",
		},
		{
			Tool: mcp.NewTool("check_revocation",
				mcp.WithDescription("Check the revocation status of one certificate against its issuer and report every piece of evidence"),
				mcp.WithString("certificate",
					mcp.Required(),
					mcp.Description("Certificate file path or base64-encoded certificate data"),
				),
				mcp.WithString("issuer",
					mcp.Required(),
					mcp.Description("Issuer certificate file path or base64-encoded certificate data"),
				),
				mcp.WithString("crls",
					mcp.Description("Comma-separated CRL file paths or base64-encoded CRLs"),
				),
				mcp.WithString("ocsp_responses",
					mcp.Description("Comma-separated OCSP response file paths or base64-encoded responses"),
				),
				mcp.WithString("date",
					mcp.Description("Reference date in RFC 3339 (default: now)"),
				),
				mcp.WithBoolean("online",
					mcp.Description("Fetch CRLs and OCSP responses from the certificate's URLs (default: configured value)"),
					mcp.DefaultBool(false),
				),
			),
			Handler: h.checkRevocation,
			Role:    "revocationChecker",
		},
		{
			Tool: mcp.NewTool("inspect_signature",
				mcp.WithDescription("Validate a CMS signature, its timestamp and its signer chain"),
				mcp.WithString("signature",
					mcp.Required(),
					mcp.Description("Signature container (or signed document when 'signed' is set) as a file path or base64 data"),
				),
				mcp.WithString("document",
					mcp.Description("Detached content the signature covers, as a file path or base64 data"),
				),
				mcp.WithBoolean("signed",
					mcp.Description("The input is a finalized document holding the container (default: false)"),
					mcp.DefaultBool(false),
				),
				mcp.WithBoolean("complete",
					mcp.Description("Fetch issuers missing from the container (default: false)"),
					mcp.DefaultBool(false),
				),
			),
			Handler: h.inspectSignature,
			Role:    "signatureInspector",
		},
		{
			Tool: mcp.NewTool("get_resource_usage",
				mcp.WithDescription("Get current resource usage statistics including memory, GC and CRL cache information"),
				mcp.WithBoolean("detailed",
					mcp.Description("Include detailed memory breakdown and CRL cache statistics (default: false)"),
					mcp.DefaultBool(false),
				),
				mcp.WithString("format",
					mcp.Description("Output format: 'json' or 'markdown' (default: 'json')"),
					mcp.DefaultString("json"),
				),
			),
			Handler: h.getResourceUsage,
			Role:    "resourceMonitor",
		},
	}
}
