// Package config handles configuration loading for mcp-feedback.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension) with
// environment variable expansion. A missing file yields the defaults, so the
// server runs without any setup.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path given with --config
//  2. Path from MCP_FEEDBACK_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/mcp-feedback/config.yaml
//  4. ~/.config/mcp-feedback/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	audit:
//	  path: "${HOME}/.local/share/mcp-feedback/audit.db"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	timeout: "30s"
//	restart_delay: "2s"
//
// # Settings
//
//	host: "127.0.0.1"         # Interface for the agent endpoint
//	port: 7423                # Agent endpoint port
//	timeout: "30s"            # How long a human has to answer
//	enforce_timeout: false    # Cancel calls that exceed timeout
//	orphan_policy: "keep"     # keep | cancel, for calls whose agent went away
//	auto_restart: false       # Restart the endpoint after a serve failure
//	restart_delay: "2s"
//	enabled_tools:
//	  request-user-feedback: true
//	  get-user-confirmation: true
//
//	history:
//	  max_entries: 0          # 0 keeps every invocation
//
//	audit:
//	  path: ""                # SQLite journal of invocations; empty disables
//
//	logging:
//	  level: "info"           # debug, info, warn, error
//	  format: "text"          # text, json
//
// Settings changed from the human surface are written back with Save.
package config
