// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/trust"
)

// ErrSignatureInvalid is returned when an inspected signature fails any
// check.
var ErrSignatureInvalid = errors.New("signature is not valid")

type inspectOptions struct {
	document string
	signed   bool
	complete bool
}

func (a *app) inspectCommand() *cobra.Command {
	var opts inspectOptions
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Describe and validate a signature container or a signed document",
		Long: `Inspect parses a CMS signature, checks it and its timestamp, and verifies
the signer chain at the timestamp time, or the signing time when there is no
timestamp. Embedded CRLs and OCSP responses are used as offline evidence.

FILE is a DER or PEM container. With --signed FILE is a finalized document
whose placeholder holds the container. With --document the detached content
is checked against the signed digest.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(a.runInspect(cmd, args[0], opts))
		},
	}

	cmd.Flags().StringVarP(&opts.document, "document", "d", "", "detached content the signature covers")
	cmd.Flags().BoolVar(&opts.signed, "signed", false, "FILE is a finalized document")
	cmd.Flags().BoolVar(&opts.complete, "complete", false, "fetch issuers missing from the container")
	return cmd
}

func (a *app) runInspect(cmd *cobra.Command, path string, opts inspectOptions) error {
	ctx := cmd.Context()
	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	iopts := trust.InspectOptions{Complete: opts.complete}

	var report *trust.SignatureReport
	switch {
	case opts.signed:
		report, err = a.svc.InspectDocument(ctx, data, iopts)
	case opts.document != "":
		content, rerr := readInput(cmd, opts.document)
		if rerr != nil {
			return rerr
		}
		report, err = a.svc.InspectDetached(ctx, trust.ContainerDER(data), content, iopts)
	default:
		report, err = a.svc.InspectSignature(ctx, trust.ContainerDER(data), iopts)
	}
	if err != nil {
		return err
	}

	if err := writeOutput(cmd, "", []byte(report.Render())); err != nil {
		return err
	}
	if !report.Valid() {
		return ErrSignatureInvalid
	}
	return nil
}
