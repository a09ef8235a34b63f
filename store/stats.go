package store

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks store activity. Counters are always maintained; Prometheus
// export is optional and layered on top.
type Stats struct {
	hits      int64
	staleHits int64
	misses    int64
	puts      int64
	patches   int64
	rollbacks int64
	confirms  int64
	evictions int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStats creates a stats tracker.
func NewStats() *Stats {
	return &Stats{
		startTime: time.Now(),
	}
}

// Hit records a fresh cache hit.
func (s *Stats) Hit() {
	atomic.AddInt64(&s.hits, 1)
}

// StaleHit records a hit on an entry past its freshness window.
func (s *Stats) StaleHit() {
	atomic.AddInt64(&s.staleHits, 1)
}

// Miss records a lookup that found nothing servable.
func (s *Stats) Miss() {
	atomic.AddInt64(&s.misses, 1)
}

// Put records a stored authoritative record.
func (s *Stats) Put() {
	atomic.AddInt64(&s.puts, 1)
}

// PatchApplied records an optimistic patch.
func (s *Stats) PatchApplied() {
	atomic.AddInt64(&s.patches, 1)
}

// RolledBack records a removed patch.
func (s *Stats) RolledBack() {
	atomic.AddInt64(&s.rollbacks, 1)
}

// Confirmed records a patch resolved by an authoritative record.
func (s *Stats) Confirmed() {
	atomic.AddInt64(&s.confirms, 1)
}

// Eviction records an entry dropped for outliving retention.
func (s *Stats) Eviction() {
	atomic.AddInt64(&s.evictions, 1)
}

// UpdateSize updates the current entry count.
func (s *Stats) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Hits returns the total number of fresh hits.
func (s *Stats) Hits() int64 {
	return atomic.LoadInt64(&s.hits)
}

// StaleHits returns the total number of stale hits.
func (s *Stats) StaleHits() int64 {
	return atomic.LoadInt64(&s.staleHits)
}

// Misses returns the total number of misses.
func (s *Stats) Misses() int64 {
	return atomic.LoadInt64(&s.misses)
}

// Puts returns the total number of stored records.
func (s *Stats) Puts() int64 {
	return atomic.LoadInt64(&s.puts)
}

// Patches returns the total number of applied patches.
func (s *Stats) Patches() int64 {
	return atomic.LoadInt64(&s.patches)
}

// Rollbacks returns the total number of rolled-back patches.
func (s *Stats) Rollbacks() int64 {
	return atomic.LoadInt64(&s.rollbacks)
}

// Confirms returns the total number of confirmed patches.
func (s *Stats) Confirms() int64 {
	return atomic.LoadInt64(&s.confirms)
}

// Evictions returns the total number of evicted entries.
func (s *Stats) Evictions() int64 {
	return atomic.LoadInt64(&s.evictions)
}

// CurrentSize returns the current number of cached entries.
func (s *Stats) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the largest entry count observed.
func (s *Stats) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// HitRatio returns fresh hits over all lookups, 0 when nothing was looked up.
func (s *Stats) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.StaleHits() + s.Misses()
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// Uptime returns how long the store has been running.
func (s *Stats) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// StatsSummary is a point-in-time snapshot of all counters.
type StatsSummary struct {
	Hits        int64         `json:"hits"`
	StaleHits   int64         `json:"stale_hits"`
	Misses      int64         `json:"misses"`
	Puts        int64         `json:"puts"`
	Patches     int64         `json:"patches"`
	Rollbacks   int64         `json:"rollbacks"`
	Confirms    int64         `json:"confirms"`
	Evictions   int64         `json:"evictions"`
	CurrentSize int64         `json:"current_size"`
	MaxSize     int64         `json:"max_size"`
	HitRatio    float64       `json:"hit_ratio"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all counters.
func (s *Stats) Summary() StatsSummary {
	return StatsSummary{
		Hits:        s.Hits(),
		StaleHits:   s.StaleHits(),
		Misses:      s.Misses(),
		Puts:        s.Puts(),
		Patches:     s.Patches(),
		Rollbacks:   s.Rollbacks(),
		Confirms:    s.Confirms(),
		Evictions:   s.Evictions(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		HitRatio:    s.HitRatio(),
		Uptime:      s.Uptime(),
	}
}
