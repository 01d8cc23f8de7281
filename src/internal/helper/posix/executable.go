// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package posix

import (
	"os"
	"path/filepath"
	"strings"
)

// GetExecutableName returns the name the process was started with, without
// directory or ".exe" extension, or fallback when os.Args is empty.
func GetExecutableName(fallback string) string {
	return ExecutableName(os.Args, fallback)
}

// ExecutableName is GetExecutableName over an explicit argument vector.
func ExecutableName(args []string, fallback string) string {
	if len(args) == 0 || args[0] == "" {
		return fallback
	}

	name := filepath.Base(args[0])

	// A path with foreign separators survives filepath.Base untouched.
	if strings.ContainsAny(name, `/\`) {
		parts := strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' })
		if len(parts) == 0 {
			return fallback
		}
		name = parts[len(parts)-1]
	}

	return strings.TrimSuffix(name, ".exe")
}
