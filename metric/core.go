package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stream frame outcomes for the frames counter.
const (
	FrameMerged    = "merged"
	FrameStale     = "stale"
	FrameMalformed = "malformed"
)

// Metrics contains the client-level instruments shared by the coordinator and
// the metrics stream. Component-specific instruments (store sizes, patch
// gauges) register separately through the Registry.
type Metrics struct {
	OpsTotal        *prometheus.CounterVec
	OpDuration      *prometheus.HistogramVec
	Deduplicated    *prometheus.CounterVec
	SearchDiscarded prometheus.Counter

	StreamState      prometheus.Gauge
	StreamFrames     *prometheus.CounterVec
	StreamReconnects prometheus.Counter
	StreamRefreshes  prometheus.Counter
}

// NewMetrics creates a Metrics instance with all client instruments.
func NewMetrics() *Metrics {
	return &Metrics{
		OpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "authsync",
				Subsystem: "ops",
				Name:      "total",
				Help:      "Total coordinator operations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),

		OpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "authsync",
				Subsystem: "ops",
				Name:      "duration_seconds",
				Help:      "Coordinator operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		Deduplicated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "authsync",
				Subsystem: "ops",
				Name:      "deduplicated_total",
				Help:      "Total operations that joined an identical in-flight call",
			},
			[]string{"op"},
		),

		SearchDiscarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "authsync",
				Subsystem: "search",
				Name:      "discarded_total",
				Help:      "Total search responses discarded for arriving out of order",
			},
		),

		StreamState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "authsync",
				Subsystem: "stream",
				Name:      "state",
				Help: "Metrics stream connection state " +
					"(0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=failed)",
			},
		),

		StreamFrames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "authsync",
				Subsystem: "stream",
				Name:      "frames_total",
				Help:      "Total stream frames by merge result",
			},
			[]string{"result"},
		),

		StreamReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "authsync",
				Subsystem: "stream",
				Name:      "reconnects_total",
				Help:      "Total stream reconnection attempts",
			},
		),

		StreamRefreshes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "authsync",
				Subsystem: "stream",
				Name:      "refreshes_total",
				Help:      "Total staleness-triggered pulls of the aggregate metrics document",
			},
		),
	}
}

// RecordOperation increments the operation counter.
func (m *Metrics) RecordOperation(op, outcome string) {
	m.OpsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordOperationDuration records how long an operation took.
func (m *Metrics) RecordOperationDuration(op string, duration time.Duration) {
	m.OpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordDeduplicated increments the dedup counter for an operation.
func (m *Metrics) RecordDeduplicated(op string) {
	m.Deduplicated.WithLabelValues(op).Inc()
}

// RecordSearchDiscarded increments the out-of-order search response counter.
func (m *Metrics) RecordSearchDiscarded() {
	m.SearchDiscarded.Inc()
}

// RecordStreamState updates the stream connection state gauge.
func (m *Metrics) RecordStreamState(state int) {
	m.StreamState.Set(float64(state))
}

// RecordStreamFrame increments the frame counter for a merge result.
func (m *Metrics) RecordStreamFrame(result string) {
	m.StreamFrames.WithLabelValues(result).Inc()
}

// RecordStreamReconnect increments the reconnection counter.
func (m *Metrics) RecordStreamReconnect() {
	m.StreamReconnects.Inc()
}

// RecordStalenessRefresh increments the staleness pull counter.
func (m *Metrics) RecordStalenessRefresh() {
	m.StreamRefreshes.Inc()
}
