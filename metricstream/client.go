package metricstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	apperrors "github.com/novacare/authsync/errors"
	"github.com/novacare/authsync/metric"
	"github.com/novacare/authsync/pkg/retry"
)

const (
	// DefaultMaxReconnects is how many consecutive failed dials are
	// tolerated before the stream gives up.
	DefaultMaxReconnects = 3

	// DefaultStalenessThreshold is how long the merged document may go
	// without a newer server timestamp before the watchdog pulls a
	// summary.
	DefaultStalenessThreshold = 30 * time.Second
)

// Field is one live metric value with the server timestamp that produced it.
type Field struct {
	Value     any   `json:"value"`
	UpdatedAt int64 `json:"updatedAt"`
}

// Snapshot is a point-in-time copy of the merged metrics document. AsOf is
// the newest server timestamp applied so far, in Unix milliseconds.
type Snapshot struct {
	Fields map[string]Field `json:"fields"`
	AsOf   int64            `json:"asOf"`
}

// RefreshFunc pulls the aggregate metrics document when the stream has gone
// quiet. It returns the document fields and the server timestamp they are
// valid as of.
type RefreshFunc func(ctx context.Context) (map[string]any, int64, error)

// Client consumes the live metrics stream and maintains a merged
// last-write-wins document keyed by field name. It reconnects on failure up
// to a budget and falls back to pull-based refresh when frames stop
// arriving.
type Client struct {
	url            string
	dialer         Dialer
	tokens         TokenSource
	refresh        RefreshFunc
	clock          clock.Clock
	logger         *slog.Logger
	metrics        *metric.Metrics
	backoff        retry.Config
	maxReconnects  int
	staleThreshold time.Duration

	// lifecycleMu serializes Connect and Disconnect.
	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	mu      sync.Mutex
	state   ConnState
	lastErr error
	conn    Conn
	fields  map[string]Field
	asOf    int64
	subs    map[int]chan Snapshot
	nextSub int
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithTokenSource sets the credential attached to the stream handshake.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithRefreshFunc wires the pull fallback invoked by the staleness watchdog.
func WithRefreshFunc(fn RefreshFunc) Option {
	return func(c *Client) {
		c.refresh = fn
	}
}

// WithClock substitutes the time source.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics binds the client to a metrics registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(c *Client) {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
	}
}

// WithBackoff sets the delay policy between reconnect attempts.
func WithBackoff(cfg retry.Config) Option {
	return func(c *Client) {
		c.backoff = cfg
	}
}

// WithMaxReconnects sets the consecutive failed dial budget. Negative
// values are ignored.
func WithMaxReconnects(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxReconnects = n
		}
	}
}

// WithStalenessThreshold sets how stale the document may grow before the
// watchdog pulls. Non-positive values are ignored.
func WithStalenessThreshold(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.staleThreshold = d
		}
	}
}

// New builds a stream client for the given ws:// or wss:// endpoint. The
// client is idle until Connect.
func New(streamURL string, opts ...Option) (*Client, error) {
	if streamURL == "" {
		return nil, apperrors.WrapInvalid(apperrors.ErrMissingConfig, "metricstream", "New", "bind stream url")
	}
	u, err := url.Parse(streamURL)
	if err != nil {
		return nil, apperrors.WrapInvalid(fmt.Errorf("parse stream url %q: %w", streamURL, err), "metricstream", "New", "bind stream url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, apperrors.WrapInvalid(fmt.Errorf("stream url %q: %w", streamURL, apperrors.ErrInvalidConfig), "metricstream", "New", "bind stream url")
	}

	c := &Client{
		url:            streamURL,
		dialer:         &WebsocketDialer{},
		clock:          clock.New(),
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		backoff:        retry.DefaultConfig(),
		maxReconnects:  DefaultMaxReconnects,
		staleThreshold: DefaultStalenessThreshold,
		state:          StateDisconnected,
		fields:         make(map[string]Field),
		subs:           make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect opens the stream session and returns once the connect loop is
// running; the connection itself is established asynchronously. Values on
// ctx flow into the session, its cancellation does not.
func (c *Client) Connect(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateDisconnected && state != StateFailed {
		return apperrors.WrapInvalid(apperrors.ErrAlreadyStarted, "metricstream", "Connect", "open stream session")
	}

	// A FAILED session tore itself down; reap its goroutines before
	// starting over.
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.wg.Wait()

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	c.mu.Lock()
	c.lastErr = nil
	c.state = StateConnecting
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordStreamState(int(StateConnecting))
	}

	c.wg.Add(1)
	go c.run(sessionCtx, cancel)
	if c.refresh != nil && c.staleThreshold > 0 {
		c.wg.Add(1)
		go c.watch(sessionCtx)
	}
	return nil
}

// Disconnect tears the session down from any state and blocks until its
// goroutines have exited. It is idempotent.
func (c *Client) Disconnect() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	changed := c.state != StateDisconnected
	c.state = StateDisconnected
	if changed {
		c.pushLocked()
	}
	c.mu.Unlock()
	if changed {
		if c.metrics != nil {
			c.metrics.RecordStreamState(int(StateDisconnected))
		}
		c.logger.Info("stream disconnected", "url", c.url)
	}
	return nil
}

// State reports the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the terminal error after the reconnect budget is
// exhausted, nil otherwise.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Snapshot returns a copy of the merged document.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Stale reports whether the document is older than the staleness threshold.
// A document that never received data is stale.
func (c *Client) Stale() bool {
	c.mu.Lock()
	asOf := c.asOf
	c.mu.Unlock()
	if asOf == 0 {
		return true
	}
	return c.clock.Now().UnixMilli()-asOf > c.staleThreshold.Milliseconds()
}

// Subscribe registers for snapshot updates. The channel holds the latest
// snapshot only; a slow receiver misses intermediate states but always
// eventually observes the newest one. The returned cancel func releases the
// subscription and closes the channel.
func (c *Client) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

func (c *Client) snapshotLocked() Snapshot {
	fields := make(map[string]Field, len(c.fields))
	for name, f := range c.fields {
		fields[name] = f
	}
	return Snapshot{Fields: fields, AsOf: c.asOf}
}

// pushLocked delivers the current snapshot to every subscriber without
// blocking. A full buffer is drained first so the latest snapshot replaces
// the unread one.
func (c *Client) pushLocked() {
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
