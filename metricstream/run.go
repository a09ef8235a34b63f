package metricstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/novacare/authsync/errors"
	"github.com/novacare/authsync/metric"
	"github.com/novacare/authsync/pkg/retry"
	"github.com/novacare/authsync/pkg/timestamp"
)

// frame is the wire shape of one stream update. Unknown members are
// ignored; serverTimestamp accepts Unix milliseconds or RFC3339.
type frame struct {
	Field           string `json:"field"`
	Value           any    `json:"value"`
	ServerTimestamp any    `json:"serverTimestamp"`
}

// run owns the connection for one session: dial, consume frames, redial
// with backoff on loss, and give up once the budget is spent. cancel tears
// down the rest of the session when run exits on its own.
func (c *Client) run(ctx context.Context, cancel context.CancelFunc) {
	defer c.wg.Done()
	defer cancel()

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := c.dialOnce(ctx)
		if err == nil {
			c.mu.Lock()
			if ctx.Err() != nil {
				c.mu.Unlock()
				_ = conn.Close()
				return
			}
			c.conn = conn
			c.mu.Unlock()

			failures = 0
			c.transition(ctx, StateConnected)
			c.logger.Info("stream connected", "url", c.url)

			err = c.readLoop(conn)

			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("stream connection lost", "url", c.url, "error", err)
		} else {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("stream dial failed", "url", c.url, "attempt", failures+1, "error", err)
		}

		failures++
		if failures > c.maxReconnects {
			c.fail(ctx, apperrors.StreamFatal(
				fmt.Errorf("%w: no connection after %d attempts: %w", apperrors.ErrStreamFailed, failures, err),
				"metricstream", "connect", "reconnect"))
			return
		}
		c.transition(ctx, StateReconnecting)
		if c.metrics != nil {
			c.metrics.RecordStreamReconnect()
		}
		if !c.sleep(ctx, retry.Backoff(c.backoff, failures)) {
			return
		}
	}
}

func (c *Client) dialOnce(ctx context.Context) (Conn, error) {
	header, err := authHeaders(ctx, c.tokens)
	if err != nil {
		return nil, err
	}
	return c.dialer.Dial(ctx, c.url, header)
}

// readLoop consumes frames until the connection errors out.
func (c *Client) readLoop(conn Conn) error {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleFrame(data)
	}
}

// handleFrame merges one wire frame into the document. Malformed frames are
// counted and skipped so a bad producer cannot take the stream down.
func (c *Client) handleFrame(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.recordFrame(metric.FrameMalformed)
		c.logger.Debug("dropping malformed frame", "error", err)
		return
	}
	name := strings.TrimSpace(f.Field)
	ts := timestamp.Parse(f.ServerTimestamp)
	if name == "" || ts <= 0 || timestamp.Validate(ts) != nil {
		c.recordFrame(metric.FrameMalformed)
		c.logger.Debug("dropping frame without field or timestamp", "field", f.Field)
		return
	}
	if c.merge(name, f.Value, ts) {
		c.recordFrame(metric.FrameMerged)
		return
	}
	c.recordFrame(metric.FrameStale)
	c.logger.Debug("dropping stale frame", "field", name, "serverTimestamp", ts)
}

// merge applies a field update when its server timestamp is not older than
// the one already held. Ties go to the arriving frame so redeliveries are
// harmless. Returns false when the update lost.
func (c *Client) merge(name string, value any, ts int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.fields[name]; ok && ts < cur.UpdatedAt {
		return false
	}
	c.fields[name] = Field{Value: value, UpdatedAt: ts}
	c.asOf = timestamp.Max(c.asOf, ts)
	c.pushLocked()
	return true
}

func (c *Client) recordFrame(result string) {
	if c.metrics != nil {
		c.metrics.RecordStreamFrame(result)
	}
}

// transition moves the state machine unless the session is already torn
// down, in which case Disconnect owns the final state.
func (c *Client) transition(ctx context.Context, next ConnState) {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	changed := c.state != next
	c.state = next
	if changed {
		c.pushLocked()
	}
	c.mu.Unlock()
	if changed {
		if c.metrics != nil {
			c.metrics.RecordStreamState(int(next))
		}
		c.logger.Debug("stream state changed", "state", next.String())
	}
}

// fail records the terminal error and parks the stream in FAILED.
func (c *Client) fail(ctx context.Context, err error) {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.lastErr = err
	c.pushLocked()
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordStreamState(int(StateFailed))
	}
	c.logger.Error("stream reconnect budget exhausted", "url", c.url, "error", err)
}

// sleep waits for d on the injected clock. Returns false when the session
// ended first.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := c.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// watch is the staleness watchdog. While the connection looks healthy but
// frames have stopped advancing the document, it pulls the aggregate
// summary so readers keep converging.
func (c *Client) watch(ctx context.Context) {
	defer c.wg.Done()

	period := c.staleThreshold / 2
	if period <= 0 {
		return
	}
	ticker := c.clock.Ticker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.maybeRefresh(ctx)
		}
	}
}

func (c *Client) maybeRefresh(ctx context.Context) {
	c.mu.Lock()
	state := c.state
	asOf := c.asOf
	c.mu.Unlock()

	// A dead connection is already signalled through the state machine;
	// the watchdog only covers connections that are open but silent.
	if state != StateConnected {
		return
	}
	if asOf > 0 && c.clock.Now().UnixMilli()-asOf <= c.staleThreshold.Milliseconds() {
		return
	}

	fields, docAsOf, err := c.refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("staleness refresh failed", "error", err)
		}
		return
	}
	applied := c.applySummary(fields, docAsOf)
	if c.metrics != nil {
		c.metrics.RecordStalenessRefresh()
	}
	c.logger.Debug("pulled summary for stale document", "applied", applied, "asOf", docAsOf)
}

// applySummary merges pulled document fields at the document timestamp.
// Fields that lost to newer streamed values are left alone.
func (c *Client) applySummary(fields map[string]any, asOf int64) int {
	applied := 0
	for name, value := range fields {
		if c.merge(name, value, asOf) {
			applied++
		}
	}
	c.mu.Lock()
	if advanced := timestamp.Max(c.asOf, asOf); advanced != c.asOf {
		c.asOf = advanced
		c.pushLocked()
	}
	c.mu.Unlock()
	return applied
}
