// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package config loads the JSON or YAML configuration of the command line
// tool and the MCP server and turns it into the settings of the trust and
// signing components.
//
// Example (YAML):
//
//	http:
//	  timeoutSeconds: 10
//	trust:
//	  anchors: [/etc/cms-trust/root.pem]
//	revocation:
//	  online: true
//	tsa:
//	  url: https://freetsa.org/tsr
//	signing:
//	  digest: sha256
//	  mode: cades
//	metrics:
//	  listen: ":9090"
package config
