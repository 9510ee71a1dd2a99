// Package config handles configuration loading for chorus.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHORUS_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/chorus/chorus.yaml
//  3. ~/.config/chorus/chorus.yaml
//
// Files ending in .toml are read as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	completion:
//	  headers:
//	    X-Api-Key: "${CHORUS_COMPLETION_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	engine:
//	  debounce_delay: "500ms"
//	  typing_delay_min: "2s"
//	  typing_delay_max: "3s"
//	  idle_ttl: "24h"
//
// Unset engine values fall back to orchestrator.DefaultTiming.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	auth:
//	  jwt_secret: "${CHORUS_JWT_SECRET}"   # optional; empty leaves the API open
//	database:
//	  path: "~/.local/share/chorus/chorus.db"
//	completion:
//	  url: "http://127.0.0.1:9090/complete"
//	engine:
//	  max_autonomous_turns: 10
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "text"   # text or json
package config
