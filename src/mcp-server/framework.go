// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/trust"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/mcp-server/templates"
)

// ServerName is announced to MCP clients on initialization.
const ServerName = "CMS Signature Trust"

// ErrNoService is returned by Build when no trust service was set.
var ErrNoService = errors.New("mcpserver: trust service is required")

// ToolHandler is the signature of every tool implementation.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// ResourceHandler is the signature of every resource implementation.
type ResourceHandler = func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error)

// ToolDefinition pairs an MCP tool with its handler. Role names the tool in
// the instructions template so tools can be renamed without editing it.
type ToolDefinition struct {
	Tool    mcp.Tool
	Handler ToolHandler
	Role    string
}

// ServerDependencies holds everything Build needs.
type ServerDependencies struct {
	Service      *trust.Service
	Version      string
	Tools        []ToolDefinition
	Resources    []server.ServerResource
	Instructions string
}

// ServerBuilder assembles an [MCP] server using a fluent interface.
//
// Example:
//
//	s, err := NewServerBuilder().
//	    WithService(svc).
//	    WithVersion(version.Version).
//	    WithDefaultTools().
//	    WithDefaultResources().
//	    Build()
//
// [MCP]: https://modelcontextprotocol.io/docs/getting-started/intro
type ServerBuilder struct{ deps ServerDependencies }

// NewServerBuilder creates a builder with no dependencies.
func NewServerBuilder() *ServerBuilder { return &ServerBuilder{} }

// WithService sets the trust service the default tools and resources use.
func (b *ServerBuilder) WithService(svc *trust.Service) *ServerBuilder {
	b.deps.Service = svc
	return b
}

// WithVersion sets the version reported to clients.
func (b *ServerBuilder) WithVersion(version string) *ServerBuilder {
	b.deps.Version = version
	return b
}

// WithTools adds tools.
func (b *ServerBuilder) WithTools(tools ...ToolDefinition) *ServerBuilder {
	b.deps.Tools = append(b.deps.Tools, tools...)
	return b
}

// WithResources adds resources.
func (b *ServerBuilder) WithResources(resources ...server.ServerResource) *ServerBuilder {
	b.deps.Resources = append(b.deps.Resources, resources...)
	return b
}

// WithInstructions overrides the instructions rendered from the tools.
func (b *ServerBuilder) WithInstructions(instructions string) *ServerBuilder {
	b.deps.Instructions = instructions
	return b
}

// WithDefaultTools adds the signature trust tools bound to the service.
// Call it after WithService.
func (b *ServerBuilder) WithDefaultTools() *ServerBuilder {
	return b.WithTools(createTools(&handlers{svc: b.deps.Service})...)
}

// WithDefaultResources adds the built-in resources bound to the service and
// version. Call it after WithService and WithVersion.
func (b *ServerBuilder) WithDefaultResources() *ServerBuilder {
	return b.WithResources(createResources(&handlers{svc: b.deps.Service, version: b.deps.Version})...)
}

// Build validates the dependencies and creates the server.
func (b *ServerBuilder) Build() (*server.MCPServer, error) {
	if b.deps.Service == nil {
		return nil, ErrNoService
	}

	instructions := b.deps.Instructions
	if instructions == "" {
		var err error
		if instructions, err = loadInstructions(b.deps.Tools); err != nil {
			return nil, err
		}
	}

	s := server.NewMCPServer(
		ServerName,
		b.deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithInstructions(instructions),
	)

	for _, tool := range b.deps.Tools {
		s.AddTool(tool.Tool, tool.Handler)
	}
	for _, resource := range b.deps.Resources {
		s.AddResource(resource.Resource, resource.Handler)
	}

	return s, nil
}

type toolInfo struct {
	Name        string
	Description string
}

type instructionData struct {
	Tools     []toolInfo
	ToolRoles map[string]string
}

// loadInstructions renders the embedded instructions template with the
// given tools.
func loadInstructions(tools []ToolDefinition) (string, error) {
	templateBytes, err := templates.MagicEmbed.ReadFile(templates.Instructions)
	if err != nil {
		return "", fmt.Errorf("failed to load MCP server instructions template: %w", err)
	}

	data := instructionData{ToolRoles: make(map[string]string)}
	for _, tool := range tools {
		data.Tools = append(data.Tools, toolInfo{Name: tool.Tool.Name, Description: tool.Tool.Description})
		if tool.Role != "" {
			data.ToolRoles[tool.Role] = tool.Tool.Name
		}
	}

	tmpl, err := template.New("instructions").Parse(string(templateBytes))
	if err != nil {
		return "", fmt.Errorf("failed to parse instructions template: %w", err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute instructions template: %w", err)
	}
	return buf.String(), nil
}
