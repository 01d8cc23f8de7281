// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/trust"
	x509verify "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/verify"
)

// ErrChainUntrusted is returned when a chain verifies without error but
// some certificate could not be confirmed.
var ErrChainUntrusted = errors.New("certificate chain trust could not be confirmed")

type verifyOptions struct {
	crls     []string
	ocsps    []string
	date     string
	complete bool
}

func (a *app) verifyCommand() *cobra.Command {
	var opts verifyOptions
	cmd := &cobra.Command{
		Use:   "verify CHAIN_FILE",
		Short: "Verify a certificate chain against the trust anchors",
		Long: `Verify checks every certificate of the chain against its issuer at the
reference date. A certificate is confirmed when it was issued by a trust anchor
or when CRL or OCSP evidence shows it was not revoked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(a.runVerify(cmd, args[0], opts))
		},
	}

	cmd.Flags().StringSliceVar(&opts.crls, "crl", nil, "CRL file used as offline evidence (repeatable)")
	cmd.Flags().StringSliceVar(&opts.ocsps, "ocsp", nil, "DER OCSP response used as offline evidence (repeatable)")
	cmd.Flags().StringVar(&opts.date, "date", "", "reference date in RFC 3339 (default: now)")
	cmd.Flags().BoolVar(&opts.complete, "complete", false, "fetch missing issuers before verifying")
	return cmd
}

func (a *app) runVerify(cmd *cobra.Command, path string, opts verifyOptions) error {
	chain, err := readChain(cmd, path)
	if err != nil {
		return err
	}

	vopts := trust.VerifyOptions{Complete: opts.complete}
	if opts.date != "" {
		if vopts.Date, err = time.Parse(time.RFC3339, opts.date); err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
	}
	if vopts.CRLs, err = readCRLs(opts.crls); err != nil {
		return err
	}
	if vopts.OCSPs, err = readFiles(opts.ocsps); err != nil {
		return err
	}

	result, _, verifyErr := a.svc.VerifyChain(cmd.Context(), chain, vopts)
	if err := writeOutput(cmd, "", []byte(x509verify.RenderOutcome(result, verifyErr))); err != nil {
		return err
	}
	switch {
	case verifyErr != nil:
		return verifyErr
	case !result.Trusted():
		return ErrChainUntrusted
	}
	return nil
}
