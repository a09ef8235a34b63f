// Package metricstream maintains a live aggregate-metrics document fed by
// the service's websocket stream.
//
// Incoming frames carry a single field, its new value, and the server
// timestamp of the change. Fields merge last-write-wins on that timestamp,
// so out-of-order delivery and redelivery cannot roll a value back. The
// document's AsOf is the newest timestamp applied.
//
// The connection runs a small state machine: CONNECTING, CONNECTED,
// RECONNECTING while redialing with exponential backoff, FAILED once the
// reconnect budget is exhausted, and DISCONNECTED after an explicit
// Disconnect. A staleness watchdog covers the quiet-but-open case by
// pulling the aggregate summary through an injected RefreshFunc and merging
// it under the same last-write-wins rule.
//
// Subscribers receive snapshots over a single-slot channel that always
// holds the latest state; slow consumers skip intermediates instead of
// applying backpressure.
package metricstream
