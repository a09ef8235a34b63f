package authsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/novacare/authsync/authz"
	"github.com/novacare/authsync/config"
	"github.com/novacare/authsync/coordinator"
	apperrors "github.com/novacare/authsync/errors"
	"github.com/novacare/authsync/metric"
	"github.com/novacare/authsync/metricstream"
	"github.com/novacare/authsync/pkg/retry"
	"github.com/novacare/authsync/store"
	"github.com/novacare/authsync/transport"
)

// Client is the composition root: it wires transport, record store,
// coordinator and metrics stream from one config and exposes the full
// operation surface. Construct with New, optionally Start for warm-start
// and streaming, and Close when done.
type Client struct {
	cfg      config.Config
	logger   *slog.Logger
	clk      clock.Clock
	registry *metric.Registry
	tokens   transport.TokenSource
	blob     store.BlobStore
	dialer   metricstream.Dialer
	httpc    *http.Client

	records *store.Store
	coord   *coordinator.Coordinator
	stream  *metricstream.Client

	lifecycleMu sync.Mutex
	started     bool
	closed      bool
}

// Health is a point-in-time view of the client's moving parts.
type Health struct {
	// StreamState is the metrics stream connection state. Disconnected
	// when streaming is not configured.
	StreamState metricstream.ConnState
	// StreamStale reports that the metrics document is older than the
	// staleness threshold.
	StreamStale bool
	// StreamError is the terminal stream error, nil while the stream is
	// healthy or merely reconnecting.
	StreamError error
	// CachedRecords is the number of authorization records held locally.
	CachedRecords int
}

// Option overrides a collaborator before the client is wired.
type Option func(*Client)

// WithLogger sets the structured logger shared by all components.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock substitutes the time source everywhere, for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clk = clk
		}
	}
}

// WithMetrics supplies the metrics registry. Without it the client creates
// a private one, reachable through Registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(c *Client) {
		if registry != nil {
			c.registry = registry
		}
	}
}

// WithTokenSource replaces the credential source. The default reads the
// environment variable named by service.token_env.
func WithTokenSource(ts transport.TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithBlobStore replaces the warm-start snapshot backend. The default is a
// file at store.snapshot_path, or none when the path is empty.
func WithBlobStore(blob store.BlobStore) Option {
	return func(c *Client) {
		c.blob = blob
	}
}

// WithStreamDialer replaces the websocket dialer, for tests.
func WithStreamDialer(d metricstream.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithHTTPClient replaces the HTTP client used by the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpc = hc
	}
}

// New wires a client from the config. The client is passive until Start;
// operations already work, served by cold caches and the HTTP transport.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.clk == nil {
		c.clk = clock.New()
	}
	if c.registry == nil {
		c.registry = metric.NewRegistry()
	}
	if c.tokens == nil {
		c.tokens = transport.EnvToken(cfg.Service.TokenEnv)
	}
	if c.blob == nil && cfg.Store.SnapshotPath != "" {
		c.blob = store.NewFileBlob(cfg.Store.SnapshotPath)
	}
	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: cfg.Service.RequestTimeout}
	}
	if c.dialer == nil {
		c.dialer = &metricstream.WebsocketDialer{HandshakeTimeout: cfg.Stream.HandshakeTimeout}
	}

	remote, err := transport.New(cfg.Service.BaseURL,
		transport.WithHTTPClient(c.httpc),
		transport.WithTokenSource(c.tokens),
	)
	if err != nil {
		return nil, err
	}

	c.records, err = store.New(store.Config{
		TTL:           cfg.Store.TTL,
		Retention:     cfg.Store.Retention,
		SweepInterval: cfg.Store.SweepInterval,
	}, store.WithClock(c.clk), store.WithMetrics(c.registry))
	if err != nil {
		return nil, err
	}

	c.coord, err = coordinator.New(remote, c.records,
		coordinator.WithClock(c.clk),
		coordinator.WithLogger(c.logger),
		coordinator.WithMetrics(c.registry),
		coordinator.WithRetry(c.retryConfig()),
		coordinator.WithDebounceWindow(cfg.Search.DebounceWindow),
	)
	if err != nil {
		return nil, err
	}

	if cfg.Stream.Enabled && cfg.Service.StreamURL != "" {
		refresh := func(ctx context.Context) (map[string]any, int64, error) {
			doc, err := c.coord.MetricsSummary(ctx)
			if err != nil {
				return nil, 0, err
			}
			return doc.Fields, doc.AsOf, nil
		}
		c.stream, err = metricstream.New(cfg.Service.StreamURL,
			metricstream.WithDialer(c.dialer),
			metricstream.WithTokenSource(c.tokens),
			metricstream.WithRefreshFunc(refresh),
			metricstream.WithClock(c.clk),
			metricstream.WithLogger(c.logger),
			metricstream.WithMetrics(c.registry),
			metricstream.WithBackoff(c.retryConfig()),
			metricstream.WithMaxReconnects(cfg.Stream.MaxReconnects),
			metricstream.WithStalenessThreshold(cfg.Stream.StalenessThreshold),
		)
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Client) retryConfig() retry.Config {
	rc := c.cfg.Retry
	return retry.Config{
		MaxAttempts:  rc.MaxAttempts,
		InitialDelay: rc.InitialDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.Multiplier,
		AddJitter:    rc.Jitter,
		Clock:        c.clk,
	}
}

// Start restores the warm-start snapshot and opens the metrics stream, each
// only when configured. Snapshot trouble downgrades to a cold start.
func (c *Client) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.closed {
		return apperrors.Wrap(apperrors.ErrClosed, "authsync", "Start", "start client")
	}
	if c.started {
		return apperrors.WrapInvalid(apperrors.ErrAlreadyStarted, "authsync", "Start", "start client")
	}

	if c.blob != nil {
		if data, err := c.blob.Load(ctx); err != nil {
			c.logger.Warn("warm-start snapshot unreadable, starting cold", "error", err)
		} else if len(data) > 0 {
			if err := c.records.Restore(data); err != nil {
				c.logger.Warn("warm-start snapshot rejected, starting cold", "error", err)
			} else {
				c.logger.Info("warm start", "records", c.records.Len())
			}
		}
	}

	if c.stream != nil {
		if err := c.stream.Connect(ctx); err != nil {
			return err
		}
	}

	c.started = true
	c.logger.Info("client started",
		"baseUrl", c.cfg.Service.BaseURL,
		"streaming", c.stream != nil,
	)
	return nil
}

// Close disconnects the stream, settles in-flight work, and persists the
// snapshot when a blob store is configured. Safe to call more than once.
func (c *Client) Close() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.stream != nil {
		if err := c.stream.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	c.coord.Close()

	if c.blob != nil {
		data, err := c.records.Snapshot()
		if err == nil {
			err = c.blob.Save(context.Background(), data)
		}
		if err != nil {
			c.logger.Warn("snapshot not persisted", "error", err)
			errs = append(errs, err)
		}
	}

	c.logger.Info("client closed")
	return apperrors.Join(errs...)
}

// CreateRequest submits a new authorization request. Identical concurrent
// payloads share one network call.
func (c *Client) CreateRequest(ctx context.Context, payload authz.CreatePayload) (authz.AuthorizationRequest, error) {
	return c.coord.CreateRequest(ctx, payload)
}

// GetRequest returns a record, served from the local store while fresh.
func (c *Client) GetRequest(ctx context.Context, id string) (authz.AuthorizationRequest, error) {
	return c.coord.GetRequest(ctx, id)
}

// UpdateStatus transitions a request to a new status, optimistically
// locally and authoritatively on the server.
func (c *Client) UpdateStatus(ctx context.Context, id string, next authz.Status, reason string) (authz.AuthorizationRequest, error) {
	return c.coord.UpdateStatus(ctx, id, next, reason)
}

// SearchRequests queries the service. Calls inside the debounce window
// carrying the same filters coalesce, the latest query winning.
func (c *Client) SearchRequests(ctx context.Context, query authz.SearchQuery) (authz.SearchResult, error) {
	return c.coord.SearchRequests(ctx, query)
}

// LastResults returns the newest search state any filter produced.
func (c *Client) LastResults() (coordinator.SearchState, bool) {
	return c.coord.LastResults()
}

// CachedResults returns the newest search state for the query's filters.
func (c *Client) CachedResults(query authz.SearchQuery) (coordinator.SearchState, bool) {
	return c.coord.CachedResults(query)
}

// MetricsSummary pulls the aggregate metrics document once.
func (c *Client) MetricsSummary(ctx context.Context) (transport.MetricsDocument, error) {
	return c.coord.MetricsSummary(ctx)
}

// Export streams a server-side export. The bytes pass through untouched,
// with their content type.
func (c *Client) Export(ctx context.Context, req transport.ExportRequest) ([]byte, string, error) {
	return c.coord.Export(ctx, req)
}

// SubscribeMetrics registers for live metrics snapshots. It fails when
// streaming is not configured.
func (c *Client) SubscribeMetrics() (<-chan metricstream.Snapshot, func(), error) {
	if c.stream == nil {
		return nil, nil, apperrors.WrapInvalid(
			fmt.Errorf("metrics streaming is not configured: %w", apperrors.ErrInvalidConfig),
			"authsync", "SubscribeMetrics", "subscribe")
	}
	updates, cancel := c.stream.Subscribe()
	return updates, cancel, nil
}

// MetricsSnapshot returns the current merged metrics document. Zero when
// streaming is not configured.
func (c *Client) MetricsSnapshot() metricstream.Snapshot {
	if c.stream == nil {
		return metricstream.Snapshot{}
	}
	return c.stream.Snapshot()
}

// StreamState reports the metrics stream connection state.
func (c *Client) StreamState() metricstream.ConnState {
	if c.stream == nil {
		return metricstream.StateDisconnected
	}
	return c.stream.State()
}

// Health summarizes the client's moving parts.
func (c *Client) Health() Health {
	h := Health{
		StreamState:   metricstream.StateDisconnected,
		StreamStale:   true,
		CachedRecords: c.records.Len(),
	}
	if c.stream != nil {
		h.StreamState = c.stream.State()
		h.StreamStale = c.stream.Stale()
		h.StreamError = c.stream.LastError()
	}
	return h
}

// Registry exposes the metrics registry for embedders that serve or scrape
// it themselves.
func (c *Client) Registry() *metric.Registry {
	return c.registry
}
