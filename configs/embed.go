// Package configs provides embedded configuration templates.
//
// Templates are embedded at build time with go:embed so they ship in
// every distribution. They feed two commands:
//   - `brainmcp init` writes .brainmcp.yaml in the documents root from
//     ProjectConfigTemplate
//   - the user config at ~/.config/brainmcp/config.yaml starts from
//     UserConfigTemplate
//
// The load order is defaults, then user config, then project config,
// then BRAINMCP_* environment variables (see internal/config.Load).
package configs

import _ "embed"

// UserConfigTemplate seeds the machine-level configuration with
// settings that apply to every documents root on this machine, such as
// the Ollama host.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate seeds .brainmcp.yaml in a documents root with
// the per-collection settings: ignore patterns, search weights, and
// chunking.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
