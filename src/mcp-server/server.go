// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/server"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/config"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/trust"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
)

// Run serves the MCP protocol on in and out until ctx is done or the client
// disconnects.
//
// Server Lifecycle:
//  1. Build the trust service from cfg (anchors and offline CRLs are loaded)
//  2. Start CRL cache cleanup bound to ctx
//  3. Start the metrics endpoint when metrics.listen is set
//  4. Serve stdio until an error or cancellation
//
// Cancellation of ctx is a graceful shutdown and returns nil.
func Run(ctx context.Context, cfg *config.Config, version string, log logger.Logger, in io.Reader, out io.Writer) error {
	log = logger.OrNop(log)

	svc, err := trust.New(cfg, version, log)
	if err != nil {
		return fmt.Errorf("failed to initialize trust service: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	svc.StartCacheCleanup(ctx)

	s, err := NewServerBuilder().
		WithService(svc).
		WithVersion(version).
		WithDefaultTools().
		WithDefaultResources().
		Build()
	if err != nil {
		return fmt.Errorf("failed to build MCP server: %w", err)
	}

	errChan := make(chan error, 2)
	if addr := svc.Config().Metrics.Listen; addr != "" {
		go func() {
			if err := ServeMetrics(ctx, addr, NewMetricsRouter(svc, version)); err != nil {
				errChan <- fmt.Errorf("metrics endpoint: %w", err)
			}
		}()
		log.Printf("Metrics endpoint listening on %s", addr)
	}

	stdioServer := server.NewStdioServer(s)
	go func() { errChan <- stdioServer.Listen(ctx, in, out) }()
	log.Printf("%s MCP server %s started", ServerName, version)

	select {
	case err := <-errChan:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Printf("Shutting down: %v", context.Cause(ctx))
		return nil
	}
}
