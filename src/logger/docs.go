// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package logger provides abstraction and implementation for logging operations.
// It defines the Logger interface and two implementations: CLILogger for
// human-readable command-line diagnostics and MCPLogger for structured JSON
// logging in MCP server environments. Nop and WithPrefix let library
// components log soft failures without caring where the output goes.
package logger
