// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Logger defines the interface for logging operations.
//
// Every trust and signing component accepts a Logger so that soft failures
// (unreachable CRL distribution points, unparsable OCSP replies, skipped
// evidence) stay observable without changing the result of a call.
// The same interface backs the CLI and the [MCP] server.
//
// [MCP]: https://modelcontextprotocol.io/docs/getting-started/intro
type Logger interface {
	// Printf formats and prints a log message.
	Printf(format string, v ...any)
	// Println prints a log message with a newline.
	Println(v ...any)
	// SetOutput sets the output destination for the logger.
	SetOutput(w io.Writer)
}

// CLILogger implements Logger using the standard log package.
//
// Diagnostics go to stderr so that certificate bundles and signed documents
// written to stdout stay clean.
type CLILogger struct{ logger *log.Logger }

// NewCLILogger creates a new CLI logger writing to stderr with timestamps disabled.
func NewCLILogger() *CLILogger {
	return &CLILogger{logger: log.New(os.Stderr, "", 0)}
}

// Printf formats and prints a log message using fmt.Printf semantics.
func (c *CLILogger) Printf(format string, v ...any) { c.logger.Printf(format, v...) }

// Println prints a log message with a newline.
func (c *CLILogger) Println(v ...any) { c.logger.Println(v...) }

// SetOutput sets the output destination for the CLI logger.
func (c *CLILogger) SetOutput(w io.Writer) { c.logger.SetOutput(w) }

// MCPLogger implements Logger for [MCP] server mode.
// It suppresses output by default since MCP communication happens over stdio,
// but can be configured to write JSON lines to a separate destination.
//
// MCPLogger is safe for concurrent use by multiple goroutines.
//
// [MCP]: https://modelcontextprotocol.io/docs/getting-started/intro
type MCPLogger struct {
	mu     sync.Mutex
	writer io.Writer
	silent bool
}

// NewMCPLogger creates a new [MCP] logger.
// A nil writer discards output.
//
// [MCP]: https://modelcontextprotocol.io/docs/getting-started/intro
func NewMCPLogger(writer io.Writer, silent bool) *MCPLogger {
	if writer == nil {
		writer = io.Discard
	}
	return &MCPLogger{
		writer: writer,
		silent: silent,
	}
}

// Printf formats and logs a structured message in JSON format.
func (m *MCPLogger) Printf(format string, v ...any) { m.write(fmt.Sprintf(format, v...)) }

// Println logs a structured message in JSON format.
func (m *MCPLogger) Println(v ...any) { m.write(fmt.Sprint(v...)) }

func (m *MCPLogger) write(msg string) {
	if m.silent {
		return
	}

	data, _ := json.Marshal(map[string]any{
		"level":   "info",
		"message": msg,
	})

	m.mu.Lock()
	fmt.Fprintln(m.writer, string(data))
	m.mu.Unlock()
}

// SetOutput sets the output destination for the MCP logger.
//
// SetOutput is safe for concurrent use by multiple goroutines.
func (m *MCPLogger) SetOutput(w io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w == nil {
		m.writer = io.Discard
	} else {
		m.writer = w
	}
}

// nop discards everything.
type nop struct{}

func (nop) Printf(string, ...any) {}
func (nop) Println(...any)        {}
func (nop) SetOutput(io.Writer)   {}

// Nop returns a Logger that discards all messages.
// Components use it when the caller does not supply a Logger.
func Nop() Logger { return nop{} }

// OrNop returns l, or a discarding Logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return nop{}
	}
	return l
}

// prefixed decorates a Logger with a fixed component prefix.
type prefixed struct {
	Logger
	prefix string
}

// WithPrefix returns a Logger that prepends "prefix: " to every message.
// A nil base yields a discarding Logger.
func WithPrefix(base Logger, prefix string) Logger {
	if base == nil {
		return nop{}
	}
	return &prefixed{Logger: base, prefix: prefix + ": "}
}

func (p *prefixed) Printf(format string, v ...any) { p.Logger.Printf(p.prefix+format, v...) }

func (p *prefixed) Println(v ...any) {
	p.Logger.Println(p.prefix + strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}
