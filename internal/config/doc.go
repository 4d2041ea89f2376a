// Package config provides configuration management for labrunner.
//
// Settings are layered, later sources overriding earlier ones:
//
//  1. Built-in defaults (see Default)
//  2. User configuration (~/.config/labrunner/config.yaml)
//  3. Project configuration (./.labrunner/config.yaml)
//  4. A .env file in the working directory, then the process environment
//
// Command-line flags are applied on top by the cmd package.
//
// # Configuration Structure
//
//	bridge:
//	  endpoint: "http://localhost:8765/mcp"
//	extension:
//	  ociImage: "ghcr.io/containers/podman-desktop-extension-ai-lab:v1.6.0"
//	  preinstalled: false
//	viewport:
//	  width: 1280
//	  height: 900
//	timeouts:
//	  download: 5m
//	  healthCheck: 30s
//	intervals:
//	  poll: 1s
//	  download: 5s
//	skipModelDeletionOn: ["linux"]
//	deleteModels: false
//	matrix: "./matrix.yaml"
//
// # Environment Variables
//
//   - EXTENSION_OCI_IMAGE: extension image to install
//   - EXTENSION_PREINSTALLED: skip installation when true
//   - CI: enables the model deletion phase
//   - LABRUNNER_BRIDGE: MCP endpoint of the automation bridge
//   - LABRUNNER_PLATFORM: overrides the detected operating system
//   - LABRUNNER_MATRIX: path of the test matrix file
//
// Values in .env never override variables already set in the environment.
package config
