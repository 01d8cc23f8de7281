// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// ErrNoTSA is returned when timestamp runs without a configured TSA URL.
var ErrNoTSA = errors.New("no TSA configured (set tsa.url)")

type timestampOptions struct {
	output string
	digest string
}

func (a *app) timestampCommand() *cobra.Command {
	var opts timestampOptions
	cmd := &cobra.Command{
		Use:   "timestamp [FILE]",
		Short: "Request an RFC 3161 timestamp token from the configured TSA",
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.digest != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(a.runTimestamp(cmd, args, opts))
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "token file")
	cmd.Flags().StringVar(&opts.digest, "digest", "", "hex digest to timestamp instead of a file")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func (a *app) runTimestamp(cmd *cobra.Command, args []string, opts timestampOptions) error {
	client, err := a.svc.Timestamper()
	if err != nil {
		return err
	}
	if client == nil {
		return ErrNoTSA
	}
	tsaCfg, err := a.svc.Config().TSAConfig()
	if err != nil {
		return err
	}

	var digest []byte
	if opts.digest != "" {
		if digest, err = hex.DecodeString(strings.TrimSpace(opts.digest)); err != nil {
			return fmt.Errorf("invalid --digest: %w", err)
		}
	} else {
		data, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		digest = tsaCfg.Digest.Sum(data)
	}

	token, err := client.TimestampDigest(cmd.Context(), digest)
	if err != nil {
		return err
	}
	if err := writeOutput(cmd, opts.output, token.Raw); err != nil {
		return err
	}
	summary := fmt.Sprintf("serial %s\ntime %s\npolicy %s\n",
		token.SerialNumber(), token.GenTime.UTC().Format(time.RFC3339), token.Policy)
	return writeOutput(cmd, "", []byte(summary))
}
