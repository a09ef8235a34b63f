// Package main implements the authsync command line client. One-shot
// subcommands wrap the coordination library for scripting; watch mode
// follows the live metrics stream until interrupted.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"

	"github.com/novacare/authsync"
	"github.com/novacare/authsync/config"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "authsync"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

// command is one subcommand of the CLI. Each run function parses its own
// flag set, builds a client from the effective configuration and performs
// a single library operation.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) error
}

func commands() []command {
	return []command{
		{"create", "Submit a new authorization request", cmdCreate},
		{"get", "Fetch one authorization by ID", cmdGet},
		{"search", "List authorizations matching filters", cmdSearch},
		{"set-status", "Move an authorization to a new status", cmdSetStatus},
		{"metrics", "Pull the aggregate metrics document once", cmdMetrics},
		{"watch", "Follow the live metrics stream until interrupted", cmdWatch},
		{"export", "Run a server-side export of matching records", cmdExport},
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return fmt.Errorf("subcommand required")
	}

	switch args[0] {
	case "help", "-h", "--help":
		printUsage(os.Stderr)
		return nil
	case "version", "-v", "--version":
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	name, rest := args[0], args[1:]
	for _, cmd := range commands() {
		if cmd.name == name {
			return cmd.run(ctx, rest)
		}
	}

	printUsage(os.Stderr)
	return fmt.Errorf("unknown command %q", name)
}

// newClient builds the library client from flags, environment and config
// file. One-shot commands pass streaming=false so they never dial the
// websocket endpoint.
func newClient(g *globalFlags, streaming bool) (*authsync.Client, *config.Config, error) {
	if err := validateGlobals(g); err != nil {
		return nil, nil, err
	}

	cfg, err := loadConfig(g)
	if err != nil {
		return nil, nil, err
	}
	if !streaming {
		cfg.Stream.Enabled = false
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	client, err := authsync.New(*cfg, authsync.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

// closeClient tears the client down. Teardown problems are logged rather
// than returned because the command's result already went to stdout.
func closeClient(c *authsync.Client) {
	if err := c.Close(); err != nil {
		slog.Warn("client close reported errors", "error", err)
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - client for the prior-authorization workflow service

Usage: %s <command> [flags]

Commands:
`, appName, appName)

	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	for _, cmd := range commands() {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\n", cmd.name, cmd.summary)
	}
	_, _ = fmt.Fprintf(tw, "  version\tPrint version information\n")
	_ = tw.Flush()

	_, _ = fmt.Fprintf(w, `
Global flags (accepted by every command):
%s
Examples:
  # Submit a request and print the record as JSON
  %s create --patient patient/p-100 --provider provider/dr-7

  # Follow the live metrics stream as YAML documents
  %s watch --stream-url wss://epa.example.com/v1/metrics --output yaml

  # Run against a config file with environment overrides
  export AUTHSYNC_CONFIG=/etc/authsync/config.json
  export AUTHSYNC_TOKEN=...
  %s search --status under_review

Run '%s <command> --help' for command flags.
Version: %s
`, globalFlagUsage(), appName, appName, appName, appName, Version)
}
