// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package trust wires chain completion, revocation checking, chain
// verification and container signing from a [config.Config]. The command
// line tool and the MCP server both drive their operations through a
// [Service]:
//
//	svc, err := trust.New(cfg, version.Version, log)
//	if err != nil {
//		return err
//	}
//	report, err := svc.InspectSignature(ctx, der, trust.InspectOptions{Digest: digest})
//	if err != nil {
//		return err
//	}
//	fmt.Print(report.Render())
package trust
