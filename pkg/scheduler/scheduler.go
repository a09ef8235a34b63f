// Package scheduler provides keyed debounce timers.
//
// A Debouncer holds at most one pending function per key. Scheduling a key
// that already has a pending function stops its timer and replaces it, so a
// burst of calls within the delay window collapses into the single most
// recent function, which runs once the window closes. Distinct keys debounce
// independently.
package scheduler

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type pendingEntry struct {
	timer *clock.Timer
	gen   uint64
	fn    func()
}

// Debouncer coalesces bursts of per-key calls into single executions.
// All methods are safe for concurrent use.
type Debouncer struct {
	clk clock.Clock

	mu      sync.Mutex
	closed  bool
	gen     uint64
	pending map[string]*pendingEntry
}

// New returns a Debouncer driven by clk. A nil clk uses the real clock.
func New(clk clock.Clock) *Debouncer {
	if clk == nil {
		clk = clock.New()
	}
	return &Debouncer{
		clk:     clk,
		pending: make(map[string]*pendingEntry),
	}
}

// Schedule arranges for fn to run after delay, replacing any function
// already pending for key. fn runs outside the Debouncer's lock, on the
// timer's goroutine. A delay of zero or less still goes through a timer,
// preserving asynchronous execution. Calls after Stop are dropped.
func (d *Debouncer) Schedule(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}

	// Guard against firing a stale timer after replacement: each schedule
	// bumps the generation, and the fire handler checks that the entry for
	// the key still carries its generation.
	d.gen++
	entry := &pendingEntry{gen: d.gen, fn: fn}
	entry.timer = d.clk.AfterFunc(delay, func() {
		d.fire(key, entry.gen)
	})
	d.pending[key] = entry
}

func (d *Debouncer) fire(key string, gen uint64) {
	d.mu.Lock()
	entry, ok := d.pending[key]
	if !ok || entry.gen != gen {
		// A newer schedule replaced this timer, or Cancel/Stop removed it.
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	entry.fn()
}

// Cancel drops the pending function for key, reporting whether one existed.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.pending[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending returns the number of keys with a function waiting to run.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop cancels every pending function and rejects future schedules.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for key, entry := range d.pending {
		entry.timer.Stop()
		delete(d.pending, key)
	}
}
