// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package posix derives the executable name shown in command usage so help
// text matches how the binary was invoked on any platform:
//
//   - Linux/macOS: "/usr/bin/cms-trust-mcp" → "cms-trust-mcp"
//   - Windows: "C:\bin\cms-trust-mcp.exe" → "cms-trust-mcp"
//   - Empty os.Args: the fallback given by the caller
//
// Example:
//
//	rootCmd := &cobra.Command{
//	    Use: posix.GetExecutableName("cms-trust-mcp"),
//	}
package posix
