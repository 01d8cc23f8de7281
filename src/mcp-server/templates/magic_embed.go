// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package templates

import (
	"embed"
	"io/fs"
)

//go:embed *.md
var embeddedFS embed.FS

// Embedded file names.
const (
	// Instructions is a text/template rendered with the registered tools.
	Instructions = "instructions.md"
	// SignatureFormats documents the accepted inputs and the produced
	// containers.
	SignatureFormats = "signature-formats.md"
)

// EmbedFS is the read-only view of the embedded files.
type EmbedFS interface {
	ReadFile(name string) ([]byte, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	Open(name string) (fs.File, error)
}

type embedFS struct{ fs embed.FS }

func (e *embedFS) ReadFile(name string) ([]byte, error) { return e.fs.ReadFile(name) }

func (e *embedFS) ReadDir(name string) ([]fs.DirEntry, error) { return e.fs.ReadDir(name) }

func (e *embedFS) Open(name string) (fs.File, error) { return e.fs.Open(name) }

// MagicEmbed gives access to the embedded markdown.
var MagicEmbed EmbedFS = &embedFS{fs: embeddedFS}
