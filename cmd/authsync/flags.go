package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/novacare/authsync/config"
)

// globalFlags holds flag values shared by every subcommand. Empty strings
// mean "no override": the loaded configuration (file plus AUTHSYNC_*
// environment variables) stays in effect.
type globalFlags struct {
	ConfigPath string
	BaseURL    string
	StreamURL  string
	TokenEnv   string
	Output     string
	LogLevel   string
	LogFormat  string
}

// newFlagSet creates a subcommand flag set with the global flags registered.
// Command-specific flags are added by the caller before parsing.
func newFlagSet(name, usage string, g *globalFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s\n\nFlags:\n%s", usage, fs.FlagUsages())
	}

	fs.StringVar(&g.ConfigPath, "config",
		getEnv("AUTHSYNC_CONFIG", ""),
		"Path to a JSON/JSONC configuration file (env: AUTHSYNC_CONFIG)")
	fs.StringVar(&g.BaseURL, "base-url", "",
		"Service base URL, overrides config")
	fs.StringVar(&g.StreamURL, "stream-url", "",
		"Metrics stream websocket URL, overrides config")
	fs.StringVar(&g.TokenEnv, "token-env", "",
		"Name of the environment variable holding the bearer token, overrides config")
	fs.StringVar(&g.Output, "output",
		getEnv("AUTHSYNC_OUTPUT", "json"),
		"Output format: json, yaml (env: AUTHSYNC_OUTPUT)")
	fs.StringVar(&g.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error, overrides config")
	fs.StringVar(&g.LogFormat, "log-format", "",
		"Log format: text, json, overrides config")

	return fs
}

// parseArgs parses command arguments. A --help request prints the flag
// usage and reports done without an error.
func parseArgs(fs *pflag.FlagSet, args []string) (done bool, err error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return false, fmt.Errorf("%w\n\nRun '%s %s --help' for usage", err, appName, fs.Name())
	}
	return false, nil
}

func validateGlobals(g *globalFlags) error {
	validOutputs := []string{"json", "yaml"}
	if !contains(validOutputs, g.Output) {
		return fmt.Errorf("invalid output format: %s (valid: json, yaml)", g.Output)
	}

	validLevels := []string{"", "debug", "info", "warn", "error"}
	if !contains(validLevels, g.LogLevel) {
		return fmt.Errorf("invalid log level: %s", g.LogLevel)
	}

	validFormats := []string{"", "json", "text"}
	if !contains(validFormats, g.LogFormat) {
		return fmt.Errorf("invalid log format: %s", g.LogFormat)
	}

	return nil
}

// loadConfig resolves the effective configuration. Flags win over AUTHSYNC_*
// environment overrides, which win over the config file, which sits on the
// built-in defaults.
func loadConfig(g *globalFlags) (*config.Config, error) {
	loader := config.NewLoader()
	if g.ConfigPath != "" {
		loader.AddLayer(g.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if g.BaseURL != "" {
		cfg.Service.BaseURL = g.BaseURL
	}
	if g.StreamURL != "" {
		cfg.Service.StreamURL = g.StreamURL
	}
	if g.TokenEnv != "" {
		cfg.Service.TokenEnv = g.TokenEnv
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Log.Format = g.LogFormat
	}

	return cfg, nil
}

// globalFlagUsage renders the global flag help for the top-level usage text.
func globalFlagUsage() string {
	var g globalFlags
	return newFlagSet("global", "", &g).FlagUsages()
}

// Environment variable helper
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
