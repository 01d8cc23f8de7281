// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cli

import (
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	x509certs "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/certs"
	x509chain "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/chain"
)

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

type completeOptions struct {
	output           string
	format           string
	remote           string
	intermediateOnly bool
}

func (a *app) completeCommand() *cobra.Command {
	var opts completeOptions
	cmd := &cobra.Command{
		Use:   "complete [CERT_FILE]",
		Short: "Fetch missing issuers over AIA and print the completed chain",
		Long: `Complete reads a certificate, or a partial chain leaf first, and follows
the CA Issuers URLs of each certificate until a self-signed certificate or the
configured maximum chain length is reached. With --remote the starting chain
is the one a TLS server presents.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.remote != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(a.runComplete(cmd, args, opts))
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output to OUTPUT_FILE (default: stdout)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "pem", "output format: pem, der, json, tree or table")
	cmd.Flags().StringVarP(&opts.remote, "remote", "r", "", "start from the chain presented by HOST:PORT")
	cmd.Flags().BoolVarP(&opts.intermediateOnly, "intermediate-only", "i", false, "output intermediate certificates only")
	return cmd
}

func (a *app) runComplete(cmd *cobra.Command, args []string, opts completeOptions) error {
	ctx := cmd.Context()

	var (
		chain []*x509.Certificate
		err   error
	)
	if opts.remote != "" {
		chain, err = fetchRemote(cmd, opts.remote, time.Duration(a.svc.Config().HTTP.TimeoutSeconds)*time.Second)
	} else {
		chain, err = readChain(cmd, args[0])
	}
	if err != nil {
		return err
	}

	chain = a.svc.Completer().Complete(ctx, chain)
	a.log.Printf("Chain has %d certificates", len(chain))

	if opts.intermediateOnly {
		chain = intermediates(chain)
	}

	data, err := formatChain(chain, opts.format)
	if err != nil {
		return err
	}
	return writeOutput(cmd, opts.output, data)
}

func fetchRemote(cmd *cobra.Command, hostport string, timeout time.Duration) ([]*x509.Certificate, error) {
	host, portText, err := net.SplitHostPort(hostport)
	if err != nil {
		host, portText = hostport, "443"
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", portText, err)
	}
	return x509chain.FetchRemoteChain(cmd.Context(), host, port, timeout)
}

// intermediates drops the leaf and any self-signed root.
func intermediates(chain []*x509.Certificate) []*x509.Certificate {
	var out []*x509.Certificate
	for i, cert := range chain {
		if i == 0 || x509chain.IsSelfSigned(cert) {
			continue
		}
		out = append(out, cert)
	}
	return out
}

type certificateJSON struct {
	Subject   string    `json:"subject"`
	Issuer    string    `json:"issuer"`
	Serial    string    `json:"serial"`
	Role      string    `json:"role"`
	NotBefore time.Time `json:"notBefore"`
	NotAfter  time.Time `json:"notAfter"`
	Key       string    `json:"key"`
	PEM       string    `json:"pem"`
}

func formatChain(chain []*x509.Certificate, format string) ([]byte, error) {
	switch format {
	case "pem":
		return x509certs.EncodeMultiplePEM(chain), nil
	case "der":
		return x509certs.EncodeMultipleDER(chain), nil
	case "tree":
		return []byte(x509chain.RenderTree(chain, nil)), nil
	case "table":
		return []byte(x509chain.RenderTable(chain, nil)), nil
	case "json":
		out := struct {
			Certificates []certificateJSON `json:"certificates"`
		}{Certificates: make([]certificateJSON, 0, len(chain))}
		for i, cert := range chain {
			out.Certificates = append(out.Certificates, certificateJSON{
				Subject:   cert.Subject.String(),
				Issuer:    cert.Issuer.String(),
				Serial:    cert.SerialNumber.String(),
				Role:      x509chain.Role(chain, i),
				NotBefore: cert.NotBefore.UTC(),
				NotAfter:  cert.NotAfter.UTC(),
				Key:       x509chain.KeyDescription(cert),
				PEM:       string(x509certs.EncodePEM(cert)),
			})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
