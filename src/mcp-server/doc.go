// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package mcpserver exposes CMS signature and certificate chain trust checks
// over the Model Context Protocol ([MCP]).
//
// Tools complete chains from AIA URLs, verify chains against the configured
// trust anchors with CRL and OCSP evidence, report per-certificate
// revocation evidence and inspect CMS signatures together with their
// timestamps. Resources describe the effective configuration, the server
// version, the accepted signature formats and the CRL cache.
//
// The server is assembled with [ServerBuilder] around a trust.Service and
// served over stdio by [Run]. When metrics.listen is configured, [Run] also
// serves Prometheus metrics and a health check through a chi router.
//
// [MCP]: https://modelcontextprotocol.io/docs/getting-started/intro
package mcpserver
