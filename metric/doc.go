// Package metric provides Prometheus metrics for the client.
//
// A Registry wraps a private prometheus.Registry so the client's instruments
// never collide with an embedding application's metrics. Core client metrics
// (operation counts and durations, dedup hits, stream state) are created with
// the registry; components attach their own instruments through the Registrar
// interface, which detects duplicate registrations.
//
// Metrics are optional everywhere: every component accepts a nil registry and
// simply records nothing.
//
// Usage:
//
//	registry := metric.NewRegistry()
//	registry.CoreMetrics().RecordOperation("create", "success")
//
//	srv := metric.NewServer(9090, "/metrics", registry)
//	go srv.Start()
//	defer srv.Stop()
package metric
