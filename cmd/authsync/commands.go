package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/novacare/authsync/authz"
	"github.com/novacare/authsync/transport"
)

// searchOutput is the search result rendering with stable member names.
type searchOutput struct {
	Records []authz.AuthorizationRequest `json:"records"`
	Total   int                          `json:"total"`
}

func cmdCreate(ctx context.Context, args []string) error {
	var (
		g        globalFlags
		id       string
		patient  string
		provider string
		meta     []string
	)
	fs := newFlagSet("create", "authsync create --patient REF --provider REF [flags]", &g)
	fs.StringVar(&id, "id", "", "Client-assigned request ID (the service assigns one when empty)")
	fs.StringVar(&patient, "patient", "", "Patient reference (required)")
	fs.StringVar(&provider, "provider", "", "Provider reference (required)")
	fs.StringArrayVar(&meta, "meta", nil, "Metadata entry as key=value (repeatable)")
	if done, err := parseArgs(fs, args); done || err != nil {
		return err
	}

	payload := authz.CreatePayload{ID: id, PatientRef: patient, ProviderRef: provider}
	metadata, err := parseMeta(meta)
	if err != nil {
		return err
	}
	payload.Metadata = metadata

	client, _, err := newClient(&g, false)
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer closeClient(client)

	rec, err := client.CreateRequest(ctx, payload)
	if err != nil {
		return err
	}
	return emit(os.Stdout, g.Output, rec)
}

func cmdGet(ctx context.Context, args []string) error {
	var g globalFlags
	fs := newFlagSet("get", "authsync get ID [flags]", &g)
	if done, err := parseArgs(fs, args); done || err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one request ID argument, got %d", fs.NArg())
	}

	client, _, err := newClient(&g, false)
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer closeClient(client)

	rec, err := client.GetRequest(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return emit(os.Stdout, g.Output, rec)
}

func cmdSearch(ctx context.Context, args []string) error {
	var (
		g        globalFlags
		status   string
		patient  string
		provider string
		text     string
		page     int
		pageSize int
	)
	fs := newFlagSet("search", "authsync search [flags]", &g)
	fs.StringVar(&status, "status", "", "Status filter (draft, submitted, pending_documents, under_review, approved, denied, cancelled)")
	fs.StringVar(&patient, "patient", "", "Patient reference filter")
	fs.StringVar(&provider, "provider", "", "Provider reference filter")
	fs.StringVar(&text, "text", "", "Free text filter")
	fs.IntVar(&page, "page", 0, "Zero-based result page")
	fs.IntVar(&pageSize, "page-size", 0, "Results per page (service default when 0)")
	if done, err := parseArgs(fs, args); done || err != nil {
		return err
	}

	query := authz.SearchQuery{
		PatientRef:  patient,
		ProviderRef: provider,
		Text:        text,
		Page:        page,
		PageSize:    pageSize,
	}
	if status != "" {
		st, err := authz.ParseStatus(status)
		if err != nil {
			return err
		}
		query.Status = st
	}

	client, _, err := newClient(&g, false)
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer closeClient(client)

	res, err := client.SearchRequests(ctx, query)
	if err != nil {
		return err
	}
	return emit(os.Stdout, g.Output, searchOutput{Records: res.Records, Total: res.Total})
}

func cmdSetStatus(ctx context.Context, args []string) error {
	var (
		g      globalFlags
		reason string
	)
	fs := newFlagSet("set-status", "authsync set-status ID STATUS [flags]", &g)
	fs.StringVar(&reason, "reason", "", "Human-readable reason recorded with the transition")
	if done, err := parseArgs(fs, args); done || err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("expected ID and STATUS arguments, got %d", fs.NArg())
	}

	next, err := authz.ParseStatus(fs.Arg(1))
	if err != nil {
		return err
	}

	client, _, err := newClient(&g, false)
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer closeClient(client)

	rec, err := client.UpdateStatus(ctx, fs.Arg(0), next, reason)
	if err != nil {
		return err
	}
	return emit(os.Stdout, g.Output, rec)
}

func cmdMetrics(ctx context.Context, args []string) error {
	var g globalFlags
	fs := newFlagSet("metrics", "authsync metrics [flags]", &g)
	if done, err := parseArgs(fs, args); done || err != nil {
		return err
	}

	client, _, err := newClient(&g, false)
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer closeClient(client)

	doc, err := client.MetricsSummary(ctx)
	if err != nil {
		return err
	}

	// Re-flatten to the wire document shape.
	out := make(map[string]any, len(doc.Fields)+1)
	for name, value := range doc.Fields {
		out[name] = value
	}
	out["asOf"] = doc.AsOf
	return emit(os.Stdout, g.Output, out)
}

func cmdExport(ctx context.Context, args []string) error {
	var (
		g        globalFlags
		format   string
		status   string
		patient  string
		provider string
		text     string
		outPath  string
	)
	fs := newFlagSet("export", "authsync export --format FORMAT [flags]", &g)
	fs.StringVar(&format, "format", "", "Export format the service should produce, e.g. csv (required)")
	fs.StringVar(&status, "status", "", "Status filter")
	fs.StringVar(&patient, "patient", "", "Patient reference filter")
	fs.StringVar(&provider, "provider", "", "Provider reference filter")
	fs.StringVar(&text, "text", "", "Free text filter")
	fs.StringVar(&outPath, "out", "", "Write the export to this file instead of stdout")
	if done, err := parseArgs(fs, args); done || err != nil {
		return err
	}

	req := transport.ExportRequest{
		Format:      format,
		PatientRef:  patient,
		ProviderRef: provider,
		Text:        text,
	}
	if status != "" {
		st, err := authz.ParseStatus(status)
		if err != nil {
			return err
		}
		req.Status = st
	}

	client, _, err := newClient(&g, false)
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer closeClient(client)

	data, contentType, err := client.Export(ctx, req)
	if err != nil {
		return err
	}

	if outPath == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outPath, data, 0600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	slog.Info("export written", "path", outPath, "bytes", len(data), "content_type", contentType)
	return nil
}

// parseMeta converts repeated key=value flags into a metadata map.
func parseMeta(entries []string) (map[string]any, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	metadata := make(map[string]any, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --meta entry %q (want key=value)", entry)
		}
		metadata[key] = value
	}
	return metadata, nil
}
