// Package config loads and validates client configuration.
//
// Configuration is merged from three sources, later sources winning:
// built-in defaults, JSON (or JSONC) file layers, and AUTHSYNC_* environment
// variables. Duration fields accept Go duration strings ("5m", "300ms") in
// files; environment overrides cover the settings that commonly differ
// between deployments (endpoint URLs, token env var, log settings).
//
// The bearer token itself is never stored in a file. ServiceConfig.TokenEnv
// names the environment variable the client reads it from at startup.
package config
