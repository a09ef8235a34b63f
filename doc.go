// Package authsync is a client-side coordination library for a remote
// prior-authorization tracking service.
//
// The service is the source of truth; authsync makes talking to it from a
// workstation or clinic integration pleasant: requests are cached with a
// freshness window, identical concurrent calls collapse into one network
// request, status updates apply optimistically and roll back on rejection,
// rapid-fire searches debounce into a single query, and a live metrics
// document stays current over a websocket with a pull fallback.
//
// # Architecture
//
//	┌───────────────────────────────────────┐
//	│              Client                   │  composition root:
//	│   (Start / Close / Health / ops)      │  config → collaborators
//	└───────────────┬───────────┬───────────┘
//	                │           │
//	┌───────────────▼──┐   ┌────▼──────────────┐
//	│   coordinator    │   │   metricstream    │  websocket + LWW merge,
//	│ dedup · debounce │   │ reconnect budget, │  staleness watchdog pulls
//	│ retry · optimism │◄──┤ RefreshFunc       │  through the coordinator
//	└───────┬──────────┘   └────┬──────────────┘
//	        │                   │
//	┌───────▼──────────┐   ┌────▼──────────────┐
//	│      store       │   │     transport     │  single-attempt HTTP,
//	│ TTL cache, patch │   │ bearer auth,      │  classified errors
//	│ overlay, CBOR    │   │ wire contract     │
//	│ snapshots        │   └───────────────────┘
//	└──────────────────┘
//
// The coordinator owns every remote operation. Reads serve from the store
// while fresh and refetch when stale; mutations validate the status
// transition locally, overlay the change as a pending patch, and confirm or
// roll back on the server's answer. The metrics stream maintains a
// last-write-wins document keyed by server timestamps so out-of-order frames
// cannot roll values back.
//
// # Usage
//
//	cfg := config.Default()
//	cfg.Service.BaseURL = "https://epa.example.com"
//	cfg.Service.StreamURL = "wss://epa.example.com/v1/metrics/stream"
//
//	client, err := authsync.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := client.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	rec, err := client.CreateRequest(ctx, authz.CreatePayload{
//		PatientRef:  "patient-4711",
//		ProviderRef: "provider-232",
//	})
//
// Every operation returns classified errors; errors.IsTransient reports
// whether retrying later can help, and the client already retried transient
// failures with exponential backoff before giving up.
//
// Start restores the warm-start snapshot when a blob store is configured and
// opens the metrics stream when enabled; Close persists the snapshot and
// tears the stream down. Both are optional: a zero-config client works as a
// plain caching API client.
package authsync
