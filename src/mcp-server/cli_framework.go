// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package mcpserver

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/config"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/helper/posix"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
)

// DefaultExecutableName is used when the process name cannot be determined.
const DefaultExecutableName = "cms-trust-mcp"

// NewCommand returns the root command of the MCP server binary. Without
// arguments it serves MCP over stdin and stdout; --instructions prints the
// workflows sent to clients and exits.
func NewCommand(version string) *cobra.Command {
	exeName := posix.GetExecutableName(DefaultExecutableName)

	var (
		configFile       string
		showInstructions bool
	)

	cmd := &cobra.Command{
		Use:   exeName,
		Short: "MCP server for CMS signature and certificate chain trust checks",
		Long: `Serves the Model Context Protocol over stdin and stdout with tools to
complete and verify certificate chains, check revocation and inspect CMS
signatures. Trust anchors, revocation sources and the TSA come from the
configuration file (JSON or YAML).

Set metrics.listen to expose Prometheus metrics and a health check.`,
		Example: strings.Join([]string{
			fmt.Sprintf("  %s --config trust.yaml", exeName),
			fmt.Sprintf("  %s --instructions", exeName),
			fmt.Sprintf("  %s=trust.json %s", config.EnvConfigFile, exeName),
		}, "\n"),
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showInstructions {
				instructions, err := loadInstructions(createTools(&handlers{}))
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), instructions)
				return err
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log := logger.NewMCPLogger(cmd.ErrOrStderr(), cfg.Log.Silent)
			return Run(cmd.Context(), cfg, version, log, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "path to configuration file (default: $"+config.EnvConfigFile+")")
	cmd.Flags().BoolVar(&showInstructions, "instructions", false, "print usage workflows for the MCP tools")

	return cmd
}
