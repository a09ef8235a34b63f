package store

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/novacare/authsync/metric"
)

// storeMetrics holds the Prometheus instruments for store activity.
type storeMetrics struct {
	hits      prometheus.Counter
	staleHits prometheus.Counter
	misses    prometheus.Counter
	puts      prometheus.Counter
	evictions prometheus.Counter

	size    prometheus.Gauge
	patches prometheus.Gauge
}

// newStoreMetrics creates and registers store metrics with the registry.
func newStoreMetrics(registry *metric.Registry, component string) (*storeMetrics, error) {
	m := &storeMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "authsync",
			Subsystem:   "store",
			Name:        "hits_total",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Total fresh cache hits",
		}),
		staleHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "authsync",
			Subsystem:   "store",
			Name:        "stale_hits_total",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Total hits on entries past their freshness window",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "authsync",
			Subsystem:   "store",
			Name:        "misses_total",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Total lookups that found nothing servable",
		}),
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "authsync",
			Subsystem:   "store",
			Name:        "puts_total",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Total authoritative records stored",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "authsync",
			Subsystem:   "store",
			Name:        "evictions_total",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Total entries dropped for outliving retention",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "authsync",
			Subsystem:   "store",
			Name:        "size",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Current number of cached entries",
		}),
		patches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "authsync",
			Subsystem:   "store",
			Name:        "patches_pending",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Current number of outstanding optimistic patches",
		}),
	}

	if err := registry.RegisterCounter(component, "hits", m.hits); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "stale_hits", m.staleHits); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "misses", m.misses); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "puts", m.puts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "evictions", m.evictions); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "patches_pending", m.patches); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *storeMetrics) recordHit() {
	m.hits.Inc()
}

func (m *storeMetrics) recordStaleHit() {
	m.staleHits.Inc()
}

func (m *storeMetrics) recordMiss() {
	m.misses.Inc()
}

func (m *storeMetrics) recordPut() {
	m.puts.Inc()
}

func (m *storeMetrics) recordEviction() {
	m.evictions.Inc()
}

func (m *storeMetrics) updateSize(size int) {
	m.size.Set(float64(size))
}

func (m *storeMetrics) updatePatches(pending int) {
	m.patches.Set(float64(pending))
}
