// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package cli provides the Cobra command tree of cms-signature-trust.
//
// Subcommands complete certificate chains over AIA (complete), verify chains
// against trust anchors with CRL and OCSP evidence (verify), produce CMS
// signatures in one or two phases (prepare, sign, finalize), describe and
// validate existing signatures (inspect) and request RFC 3161 tokens
// (timestamp). Every subcommand loads the configuration named by --config or
// the CMS_TRUST_CONFIG_FILE environment variable before it runs.
package cli
