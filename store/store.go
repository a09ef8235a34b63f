package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/novacare/authsync/authz"
	"github.com/novacare/authsync/errors"
	"github.com/novacare/authsync/metric"
	"github.com/novacare/authsync/pkg/timestamp"
)

// Entry is one cached authorization record with the time it was fetched from
// the remote service.
type Entry struct {
	Record    authz.AuthorizationRequest `json:"record"`
	FetchedAt int64                      `json:"fetchedAt"`
}

// Patch is one outstanding optimistic status update. At most one patch exists
// per record; it overlays reads until confirmed or rolled back and is never
// persisted.
type Patch struct {
	RecordID  string       `json:"recordId"`
	Status    authz.Status `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	AppliedAt int64        `json:"appliedAt"`
}

// Config holds the store's freshness windows.
type Config struct {
	// TTL is the freshness window: entries older than this are served stale.
	TTL time.Duration
	// Retention is the eviction window: entries older than this are dropped.
	Retention time.Duration
	// SweepInterval bounds how often an access triggers the lazy sweep.
	SweepInterval time.Duration
}

// DefaultConfig returns the standard freshness windows.
func DefaultConfig() Config {
	return Config{
		TTL:           5 * time.Minute,
		Retention:     30 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// Option configures optional store collaborators.
type Option func(*Store)

// WithClock replaces the wall clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(s *Store) {
		s.clk = clk
	}
}

// WithMetrics exposes store counters and gauges through the registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(s *Store) {
		s.metricsReg = registry
	}
}

// Store is the local cache of authorization records plus the optimistic
// patch overlay. A mutex makes reads safe from any goroutine; mutation is
// owned by the coordinator by convention. There is no background goroutine:
// expired entries are swept lazily on access, at most once per sweep
// interval.
type Store struct {
	ttl        time.Duration
	retention  time.Duration
	sweepEvery time.Duration
	clk        clock.Clock

	mu        sync.RWMutex
	records   map[string]Entry
	patches   map[string]Patch
	lastSweep time.Time

	stats      *Stats
	metrics    *storeMetrics
	metricsReg *metric.Registry
}

// New creates a store. Zero config fields take the defaults; metrics
// registration failures are reported rather than silently dropped.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	if cfg.Retention < cfg.TTL {
		return nil, errors.WrapInvalid(
			fmt.Errorf("retention %v shorter than ttl %v: %w", cfg.Retention, cfg.TTL, errors.ErrInvalidConfig),
			"store", "New", "validate freshness windows")
	}

	s := &Store{
		ttl:        cfg.TTL,
		retention:  cfg.Retention,
		sweepEvery: cfg.SweepInterval,
		records:    make(map[string]Entry),
		patches:    make(map[string]Patch),
		stats:      NewStats(),
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.clk == nil {
		s.clk = clock.New()
	}

	if s.metricsReg != nil {
		metrics, err := newStoreMetrics(s.metricsReg, "store")
		if err != nil {
			return nil, errors.Wrap(err, "store", "New", "metrics registration")
		}
		s.metrics = metrics
	}

	return s, nil
}

// Get returns the composed view of a record: the cached base with any
// outstanding patch overlaid. stale reports that the entry has outlived its
// freshness window; entries past retention are treated as absent.
func (s *Store) Get(id string) (rec authz.AuthorizationRequest, stale, ok bool) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeSweep(now)

	entry, exists := s.records[id]
	if !exists {
		s.recordMiss()
		return authz.AuthorizationRequest{}, false, false
	}

	age := timestamp.ToUnixMs(now) - entry.FetchedAt
	if age > s.retention.Milliseconds() {
		delete(s.records, id)
		delete(s.patches, id)
		s.recordEviction()
		s.recordMiss()
		return authz.AuthorizationRequest{}, false, false
	}

	rec = entry.Record.Clone()
	if patch, pending := s.patches[id]; pending {
		rec.Status = patch.Status
		rec.Reason = patch.Reason
	}

	stale = age > s.ttl.Milliseconds()
	if stale {
		s.stats.StaleHit()
		if s.metrics != nil {
			s.metrics.recordStaleHit()
		}
	} else {
		s.stats.Hit()
		if s.metrics != nil {
			s.metrics.recordHit()
		}
	}
	return rec, stale, true
}

// Put stores an authoritative record, stamping it freshly fetched.
func (s *Store) Put(rec authz.AuthorizationRequest) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeSweep(now)

	s.records[rec.ID] = Entry{
		Record:    rec.Clone(),
		FetchedAt: timestamp.ToUnixMs(now),
	}

	s.stats.Put()
	s.stats.UpdateSize(int64(len(s.records)))
	if s.metrics != nil {
		s.metrics.recordPut()
		s.metrics.updateSize(len(s.records))
	}
}

// ApplyPatch records an optimistic status update over a cached record.
// A second patch while one is outstanding is rejected, as is patching a
// record that is not cached.
func (s *Store) ApplyPatch(id string, status authz.Status, reason string) error {
	now := timestamp.ToUnixMs(s.clk.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return errors.Validation(errors.ErrNotFound, 0, "store", "ApplyPatch", "patch uncached record")
	}
	if _, pending := s.patches[id]; pending {
		return errors.Duplicate(errors.ErrPatchPending, "store", "ApplyPatch", "apply status patch")
	}

	s.patches[id] = Patch{
		RecordID:  id,
		Status:    status,
		Reason:    reason,
		AppliedAt: now,
	}

	s.stats.PatchApplied()
	if s.metrics != nil {
		s.metrics.updatePatches(len(s.patches))
	}
	return nil
}

// Rollback removes an outstanding patch, restoring reads to the cached base
// record. It reports whether a patch existed. Rollback never touches the
// base entry.
func (s *Store) Rollback(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, pending := s.patches[id]
	if pending {
		delete(s.patches, id)
		s.stats.RolledBack()
		if s.metrics != nil {
			s.metrics.updatePatches(len(s.patches))
		}
	}
	return pending
}

// Confirm atomically drops the outstanding patch and stores the
// authoritative record the service returned.
func (s *Store) Confirm(id string, rec authz.AuthorizationRequest) {
	now := timestamp.ToUnixMs(s.clk.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.patches, id)
	s.records[id] = Entry{Record: rec.Clone(), FetchedAt: now}

	s.stats.Confirmed()
	s.stats.UpdateSize(int64(len(s.records)))
	if s.metrics != nil {
		s.metrics.updatePatches(len(s.patches))
		s.metrics.updateSize(len(s.records))
	}
}

// PendingPatch returns the outstanding patch for a record, if any.
func (s *Store) PendingPatch(id string) (Patch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	patch, pending := s.patches[id]
	return patch, pending
}

// Len returns the number of cached entries, including stale ones.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Stats returns the store's counters.
func (s *Store) Stats() *Stats {
	return s.stats
}

// recordMiss and recordEviction keep stats and optional metrics together.
func (s *Store) recordMiss() {
	s.stats.Miss()
	if s.metrics != nil {
		s.metrics.recordMiss()
	}
}

func (s *Store) recordEviction() {
	s.stats.Eviction()
	s.stats.UpdateSize(int64(len(s.records)))
	if s.metrics != nil {
		s.metrics.recordEviction()
		s.metrics.updateSize(len(s.records))
	}
}

// maybeSweep drops entries past retention, at most once per sweep interval.
// Callers hold the write lock.
func (s *Store) maybeSweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.sweepEvery {
		return
	}
	s.lastSweep = now

	nowMs := timestamp.ToUnixMs(now)
	retentionMs := s.retention.Milliseconds()
	for id, entry := range s.records {
		if nowMs-entry.FetchedAt > retentionMs {
			delete(s.records, id)
			delete(s.patches, id)
			s.stats.Eviction()
			if s.metrics != nil {
				s.metrics.recordEviction()
			}
		}
	}

	s.stats.UpdateSize(int64(len(s.records)))
	if s.metrics != nil {
		s.metrics.updateSize(len(s.records))
		s.metrics.updatePatches(len(s.patches))
	}
}
