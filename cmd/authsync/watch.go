package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/novacare/authsync/metric"
	"github.com/novacare/authsync/metricstream"
)

// cmdWatch connects the metrics stream and prints every merged snapshot
// until the process is interrupted. When the metrics endpoint is enabled in
// config the client's Prometheus registry is served alongside.
func cmdWatch(ctx context.Context, args []string) error {
	var g globalFlags
	fs := newFlagSet("watch", "authsync watch [flags]", &g)
	if done, err := parseArgs(fs, args); done || err != nil {
		return err
	}

	client, cfg, err := newClient(&g, true)
	if err != nil {
		return err
	}
	if !cfg.Stream.Enabled || cfg.Service.StreamURL == "" {
		return fmt.Errorf("watch needs a metrics stream: set stream.enabled and service.stream_url (or --stream-url)")
	}

	if err := client.Start(ctx); err != nil {
		return err
	}
	defer closeClient(client)

	snapshots, cancel, err := client.SubscribeMetrics()
	if err != nil {
		return err
	}
	defer cancel()

	if cfg.Metrics.Enabled {
		srv := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, client.Registry())
		go func() {
			if err := srv.Start(); err != nil {
				slog.Error("metrics endpoint failed", "error", err)
			}
		}()
		defer func() { _ = srv.Stop() }()
		slog.Info("metrics endpoint up", "address", srv.Address())
	}

	slog.Info("watching metrics stream", "url", cfg.Service.StreamURL)

	// The stream reconnects on its own. Poll the connection state so a
	// terminal failure ends the command instead of hanging silently.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("received shutdown signal")
			return nil
		case snap := <-snapshots:
			if err := renderSnapshot(os.Stdout, g.Output, snap); err != nil {
				return err
			}
		case <-ticker.C:
			if client.StreamState() == metricstream.StateFailed {
				if streamErr := client.Health().StreamError; streamErr != nil {
					return fmt.Errorf("metrics stream failed: %w", streamErr)
				}
				return fmt.Errorf("metrics stream failed")
			}
		}
	}
}

// renderSnapshot prints one stream snapshot. JSON output is one line per
// snapshot so the stream stays greppable; YAML documents are separated
// with an end-of-document marker.
func renderSnapshot(w io.Writer, format string, snap metricstream.Snapshot) error {
	if format == "yaml" {
		if err := emit(w, "yaml", snap); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w, "---")
		return err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
