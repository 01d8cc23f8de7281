// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509verify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// RenderOutcome renders a chain result and its error, if any, as a markdown
// table with one row per record.
func RenderOutcome(result ChainResult, verifyErr error) string {
	if len(result.Certificates) == 0 && verifyErr == nil {
		return "No certificates verified"
	}

	var buf strings.Builder
	table := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewMarkdown(tw.Rendition{Streaming: true})),
	)
	table.Header([]string{"#", "Certificate", "Verifier", "Result"})

	var rows [][]string
	for i, c := range result.Certificates {
		n := fmt.Sprintf("%d", i+1)
		subject := c.Cert.Subject.CommonName
		if len(c.Records) == 0 {
			note := c.Note
			if note == "" {
				note = "could not confirm"
			}
			rows = append(rows, []string{n, subject, "-", note})
			continue
		}
		for _, r := range c.Records {
			rows = append(rows, []string{n, subject, r.Verifier, r.Reason})
		}
	}

	if verifyErr != nil {
		var vErr *Error
		if errors.As(verifyErr, &vErr) {
			rows = append(rows, []string{"!", vErr.Cert.Subject.CommonName, vErr.Code.String(), vErr.Err.Error()})
		} else {
			rows = append(rows, []string{"!", "-", "error", verifyErr.Error()})
		}
	}

	table.Bulk(rows)
	table.Render()

	verdict := "Chain trusted"
	switch {
	case verifyErr != nil:
		verdict = "Chain rejected"
	case !result.Trusted():
		verdict = "Chain trust could not be confirmed"
	}
	return buf.String() + "\n" + verdict + "\n"
}
