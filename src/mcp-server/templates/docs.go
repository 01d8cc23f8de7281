// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package templates embeds the markdown served by the MCP server: the
// instructions template sent to clients on initialization and the signature
// format reference exposed as a resource.
//
// Example usage:
//
//	import "github.com/H0llyW00dzZ/cms-signature-trust/src/mcp-server/templates"
//
//	content, err := templates.MagicEmbed.ReadFile(templates.SignatureFormats)
//	if err != nil {
//		return fmt.Errorf("failed to read signature formats: %w", err)
//	}
package templates
