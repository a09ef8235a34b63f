package coordinator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/novacare/authsync/authz"
	apperrors "github.com/novacare/authsync/errors"
	"github.com/novacare/authsync/metric"
	"github.com/novacare/authsync/pkg/dedup"
	"github.com/novacare/authsync/pkg/retry"
	"github.com/novacare/authsync/pkg/scheduler"
	"github.com/novacare/authsync/store"
	"github.com/novacare/authsync/transport"
)

// DefaultDebounceWindow is how long search calls for the same filter key
// coalesce before one execution is dispatched.
const DefaultDebounceWindow = 300 * time.Millisecond

// Remote is the slice of the HTTP transport the coordinator drives.
type Remote interface {
	Create(ctx context.Context, payload authz.CreatePayload) (authz.AuthorizationRequest, error)
	Get(ctx context.Context, id string) (authz.AuthorizationRequest, error)
	Search(ctx context.Context, query authz.SearchQuery) (authz.SearchResult, error)
	UpdateStatus(ctx context.Context, id string, status authz.Status, reason string) (authz.AuthorizationRequest, error)
	MetricsSummary(ctx context.Context) (transport.MetricsDocument, error)
	Export(ctx context.Context, req transport.ExportRequest) ([]byte, string, error)
}

// Coordinator owns the record store, the deduplicator and the debounce
// scheduler; nothing else mutates them. All methods are safe for concurrent
// use.
type Coordinator struct {
	remote  Remote
	store   *store.Store
	sched   *scheduler.Debouncer
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metric.Metrics
	retry   retry.Config

	recordCalls  dedup.Group[authz.AuthorizationRequest]
	summaryCalls dedup.Group[transport.MetricsDocument]

	debounce time.Duration
	seq      atomic.Int64

	mu         sync.Mutex
	closed     bool
	pending    map[string]*pendingSearch
	keySeq     map[string]int64
	keyResults map[string]SearchState
	visible    SearchState
	visibleSet bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock swaps the wall clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

// WithLogger sets the logger. The coordinator is silent without one.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics wires the coordinator's instruments to a registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(c *Coordinator) {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
	}
}

// WithRetry overrides the retry policy for remote calls.
func WithRetry(cfg retry.Config) Option {
	return func(c *Coordinator) {
		c.retry = cfg
	}
}

// WithDebounceWindow overrides the search debounce window.
func WithDebounceWindow(window time.Duration) Option {
	return func(c *Coordinator) {
		if window >= 0 {
			c.debounce = window
		}
	}
}

// New creates a Coordinator around a remote transport and a record store.
func New(remote Remote, st *store.Store, opts ...Option) (*Coordinator, error) {
	if remote == nil {
		return nil, apperrors.WrapInvalid(apperrors.ErrMissingConfig, "coordinator", "New", "bind remote transport")
	}
	if st == nil {
		return nil, apperrors.WrapInvalid(apperrors.ErrMissingConfig, "coordinator", "New", "bind record store")
	}

	c := &Coordinator{
		remote:     remote,
		store:      st,
		clock:      clock.New(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		retry:      retry.DefaultConfig(),
		debounce:   DefaultDebounceWindow,
		pending:    make(map[string]*pendingSearch),
		keySeq:     make(map[string]int64),
		keyResults: make(map[string]SearchState),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.Clock == nil {
		c.retry.Clock = c.clock
	}
	c.sched = scheduler.New(c.clock)

	return c, nil
}

// Close stops the debounce scheduler and fails any search callers still
// waiting on a window. Subsequent operations return ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	abandoned := c.pending
	c.pending = make(map[string]*pendingSearch)
	c.mu.Unlock()

	c.sched.Stop()
	for _, p := range abandoned {
		p.err = apperrors.Wrap(apperrors.ErrClosed, "coordinator", "SearchRequests", "await debounced execution")
		close(p.done)
	}
}

// Store exposes the owned record store for read-side composition (warm-start
// snapshots, health reporting). Callers must not mutate it.
func (c *Coordinator) Store() *store.Store {
	return c.store
}

func (c *Coordinator) checkOpen(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return apperrors.Wrap(apperrors.ErrClosed, "coordinator", method, "dispatch")
	}
	return nil
}

// recordOp feeds the ops counter and duration histogram, when wired.
func (c *Coordinator) recordOp(op string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.RecordOperation(op, outcome)
	c.metrics.RecordOperationDuration(op, c.clock.Since(start))
}

func (c *Coordinator) recordShared(op string, shared bool) {
	if c.metrics == nil || !shared {
		return
	}
	c.metrics.RecordDeduplicated(op)
}

// callRemote runs fn under the retry policy. Non-transient errors abort
// immediately; transient errors that survive every attempt are marked
// ErrMaxRetriesExceeded on top of their own classification.
func callRemote[T any](ctx context.Context, cfg retry.Config, fn func() (T, error)) (T, error) {
	value, err := retry.DoWithResult(ctx, cfg, func() (T, error) {
		v, err := fn()
		if err != nil && !apperrors.IsTransient(err) {
			return v, retry.NonRetryable(err)
		}
		return v, err
	})
	if err != nil && apperrors.IsTransient(err) {
		err = fmt.Errorf("%w: %w", apperrors.ErrMaxRetriesExceeded, err)
	}
	return value, err
}
