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

	"github.com/spf13/cobra"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/cms"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/twophase"
	x509certs "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/certs"
)

// ErrSignInput is returned when sign gets neither a file nor --digest.
var ErrSignInput = errors.New("sign needs an input file or --digest")

type prepareOptions struct {
	output string
	size   int
}

func (a *app) prepareCommand() *cobra.Command {
	var opts prepareOptions
	cmd := &cobra.Command{
		Use:   "prepare DRAFT_FILE",
		Short: "Reserve the signature placeholder and print the digest to sign",
		Long: `Prepare replaces the single "` + twophase.ContentsMarker + `" marker of the
draft with a zero filled placeholder, fills the required "` + twophase.ByteRangeMarker + `"
marker, writes the prepared document and prints the hex digest of the bytes
outside the placeholder. Sign the digest elsewhere, then run finalize.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(a.runPrepare(cmd, args[0], opts))
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "prepared document file")
	cmd.Flags().IntVar(&opts.size, "size", 0, "bytes reserved for the signature (default: signing.estimatedSize or 16384)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func (a *app) runPrepare(cmd *cobra.Command, path string, opts prepareOptions) error {
	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	draft, err := twophase.SplitDraft(data)
	if err != nil {
		return err
	}
	alg, err := a.svc.Config().DigestAlgorithm()
	if err != nil {
		return err
	}

	c := twophase.NewCoordinator(a.log)
	digest, err := c.Prepare(draft, alg, a.svc.EstimatedSize(nil, cms.BuildRequest{}, opts.size))
	if err != nil {
		return err
	}
	doc, err := c.Prepared()
	if err != nil {
		return err
	}
	if err := writeOutput(cmd, opts.output, doc.Data); err != nil {
		return err
	}
	return writeOutput(cmd, "", []byte(hex.EncodeToString(digest)+"\n"))
}

type signOptions struct {
	key      string
	cert     string
	output   string
	digest   string
	size     int
	detached bool
	complete bool
}

func (a *app) signCommand() *cobra.Command {
	var opts signOptions
	cmd := &cobra.Command{
		Use:   "sign [FILE]",
		Short: "Sign a draft document, a whole file or a precomputed digest",
		Long: `Sign produces a CMS signature with the key and certificate chain given.

With a draft FILE both phases run at once and the signed document is written.
With --detached the whole FILE is signed and the container is written.
With --digest the hex digest, computed with the configured digest algorithm,
is signed and the container is written; pass it to finalize.

Revocation evidence for the chain is embedded from the configured CRL files,
and from the network when online checking is enabled. A configured TSA adds a
signature timestamp.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(a.runSign(cmd, args, opts))
		},
	}

	cmd.Flags().StringVarP(&opts.key, "key", "k", "", "private key file (PEM or DER)")
	cmd.Flags().StringVar(&opts.cert, "cert", "", "signer certificate file, optionally followed by its issuers")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output to OUTPUT_FILE (default: stdout)")
	cmd.Flags().StringVar(&opts.digest, "digest", "", "hex digest to sign instead of a file")
	cmd.Flags().IntVar(&opts.size, "size", 0, "bytes reserved for the signature (default: estimated)")
	cmd.Flags().BoolVar(&opts.detached, "detached", false, "sign the whole file and write the container")
	cmd.Flags().BoolVar(&opts.complete, "complete", false, "fetch missing issuers before signing")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("cert")
	return cmd
}

func (a *app) runSign(cmd *cobra.Command, args []string, opts signOptions) error {
	ctx := cmd.Context()
	if opts.digest == "" && len(args) == 0 {
		return ErrSignInput
	}

	keyData, err := readInput(cmd, opts.key)
	if err != nil {
		return err
	}
	key, err := x509certs.DecodePrivateKey(keyData)
	if err != nil {
		return err
	}
	chain, err := readChain(cmd, opts.cert)
	if err != nil {
		return err
	}
	if opts.complete {
		chain = a.svc.Completer().Complete(ctx, chain)
	}

	signer, err := a.svc.Signer(key)
	if err != nil {
		return err
	}
	b, err := a.svc.Builder(signer)
	if err != nil {
		return err
	}

	var digest []byte
	switch {
	case opts.digest != "":
		if digest, err = hex.DecodeString(strings.TrimSpace(opts.digest)); err != nil {
			return fmt.Errorf("invalid --digest: %w", err)
		}
	case opts.detached:
		data, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		digest = b.DigestAlgorithm().Sum(data)
	}

	req, err := a.svc.BuildRequest(ctx, chain, digest, false)
	if err != nil {
		return err
	}

	if digest != nil {
		der, err := b.Build(ctx, req)
		if err != nil {
			return err
		}
		a.log.Printf("Signature container is %d bytes", len(der))
		return writeOutput(cmd, opts.output, der)
	}

	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	draft, err := twophase.SplitDraft(data)
	if err != nil {
		return err
	}
	signed, err := twophase.Sign(ctx, draft, b.DigestAlgorithm(),
		a.svc.EstimatedSize(b, req, opts.size), twophase.BuilderFunc(b, req), a.log)
	if err != nil {
		return err
	}
	return writeOutput(cmd, opts.output, signed)
}

type finalizeOptions struct {
	signature string
	output    string
	hex       bool
}

func (a *app) finalizeCommand() *cobra.Command {
	var opts finalizeOptions
	cmd := &cobra.Command{
		Use:   "finalize PREPARED_FILE",
		Short: "Write a signature into a prepared document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(a.runFinalize(cmd, args[0], opts))
		},
	}

	cmd.Flags().StringVarP(&opts.signature, "signature", "s", "", "signature container file")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output to OUTPUT_FILE (default: stdout)")
	cmd.Flags().BoolVar(&opts.hex, "hex", false, "the signature file is hex encoded")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}

func (a *app) runFinalize(cmd *cobra.Command, path string, opts finalizeOptions) error {
	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	doc, err := twophase.ParseDocument(data)
	if err != nil {
		return err
	}
	signature, err := readInput(cmd, opts.signature)
	if err != nil {
		return err
	}
	if opts.hex {
		if signature, err = hex.DecodeString(strings.TrimSpace(string(signature))); err != nil {
			return fmt.Errorf("invalid hex signature: %w", err)
		}
	}

	out, err := twophase.Finalize(doc, signature)
	if err != nil {
		return err
	}
	a.log.Printf("Wrote %d of %d reserved bytes", len(signature), doc.Reserved)
	return writeOutput(cmd, opts.output, out)
}
