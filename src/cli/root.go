// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cli

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/config"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/trust"
	x509certs "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/certs"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
)

var (
	// OperationPerformed is set once a subcommand starts working.
	OperationPerformed bool

	// OperationPerformedSuccessfully is set when that subcommand completed
	// without error.
	OperationPerformedSuccessfully bool
)

// ErrNoCertificates is returned when an input holds no certificate.
var ErrNoCertificates = errors.New("no certificates found in input")

// app carries state shared by every subcommand.
type app struct {
	version    string
	log        logger.Logger
	configFile string
	anchors    []string
	online     bool
	svc        *trust.Service
}

// Execute runs the root command with os.Args and ctx.
func Execute(ctx context.Context, version string, log logger.Logger) error {
	OperationPerformed = false
	OperationPerformedSuccessfully = false
	return NewRootCommand(version, log).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand(version string, log logger.Logger) *cobra.Command {
	a := &app{version: version, log: logger.OrNop(log)}

	rootCmd := &cobra.Command{
		Use:               "cms-signature-trust",
		Short:             "Complete certificate chains, verify trust and produce CMS signatures",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}
	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "",
		"configuration file, YAML or JSON (default: $"+config.EnvConfigFile+")")
	rootCmd.PersistentFlags().StringSliceVarP(&a.anchors, "anchor", "a", nil, "additional trust anchor file (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&a.online, "online", false, "fetch CRLs and OCSP responses over the network")

	rootCmd.AddCommand(
		a.completeCommand(),
		a.verifyCommand(),
		a.prepareCommand(),
		a.signCommand(),
		a.finalizeCommand(),
		a.inspectCommand(),
		a.timestampCommand(),
	)
	return rootCmd
}

// load reads the configuration and builds the service before a subcommand
// runs.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	cfg.Trust.Anchors = append(cfg.Trust.Anchors, a.anchors...)
	if a.online {
		cfg.Revocation.Online = true
	}
	if cfg.Log.Silent {
		a.log = logger.Nop()
	}
	if a.svc, err = trust.New(cfg, a.version, a.log); err != nil {
		return err
	}
	OperationPerformed = true
	return nil
}

// finish records the outcome of a subcommand.
func finish(err error) error {
	if err == nil {
		OperationPerformedSuccessfully = true
	}
	return err
}

// readInput reads path, or standard input when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading input file: %w", err)
	}
	return data, nil
}

// writeOutput writes data to path, or to the command output when path is
// empty.
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing to output file: %w", err)
	}
	return nil
}

// readChain decodes the certificates in path, leaf first.
func readChain(cmd *cobra.Command, path string) ([]*x509.Certificate, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	chain, err := x509certs.DecodeMultiple(data)
	if err != nil {
		return nil, fmt.Errorf("error decoding certificates: %w", err)
	}
	if len(chain) == 0 {
		return nil, ErrNoCertificates
	}
	return chain, nil
}

// readCRLs reads CRL files as DER.
func readCRLs(paths []string) ([][]byte, error) {
	crls := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading CRL file: %w", err)
		}
		der, err := x509certs.RevocationListDER(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		crls = append(crls, der)
	}
	return crls, nil
}

// readFiles reads DER files such as OCSP responses.
func readFiles(paths []string) ([][]byte, error) {
	blobs := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading input file: %w", err)
		}
		blobs = append(blobs, data)
	}
	return blobs, nil
}
