package authsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novacare/authsync/authz"
	"github.com/novacare/authsync/config"
	apperrors "github.com/novacare/authsync/errors"
	"github.com/novacare/authsync/metricstream"
)

func testConfig(baseURL string) config.Config {
	cfg := config.Default()
	cfg.Service.BaseURL = baseURL
	cfg.Retry.MaxAttempts = 1
	cfg.Retry.Jitter = false
	cfg.Search.DebounceWindow = time.Millisecond
	cfg.Stream.Enabled = false
	return *cfg
}

func testRecord(id string, status authz.Status) authz.AuthorizationRequest {
	return authz.AuthorizationRequest{
		ID:          id,
		PatientRef:  "patient-001",
		ProviderRef: "provider-001",
		Status:      status,
		Version:     1,
		CreatedAt:   1700000000000,
		UpdatedAt:   1700000000000,
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// memBlob is an in-memory snapshot backend shared between client instances.
type memBlob struct {
	mu   sync.Mutex
	data []byte
}

func (b *memBlob) Load(context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data, nil
}

func (b *memBlob) Save(_ context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte(nil), data...)
	return nil
}

type streamConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newStreamConn() *streamConn {
	return &streamConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *streamConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.frames:
		return data, nil
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *streamConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type streamDialer struct {
	mu    sync.Mutex
	conns []*streamConn
}

func (d *streamDialer) Dial(context.Context, string, http.Header) (metricstream.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil, errors.New("dial refused")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func TestNew_ValidatesConfig(t *testing.T) {
	_, err := New(*config.Default())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMissingConfig)
}

func TestClient_OperationsAgainstService(t *testing.T) {
	var gets atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/authorizations":
			var p authz.CreatePayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			rec := testRecord(p.ID, authz.StatusDraft)
			rec.PatientRef = p.PatientRef
			rec.ProviderRef = p.ProviderRef
			writeJSON(t, w, http.StatusCreated, rec)
		case r.Method == http.MethodPatch && strings.HasSuffix(r.URL.Path, "/status"):
			var upd authz.StatusUpdate
			require.NoError(t, json.NewDecoder(r.Body).Decode(&upd))
			id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/authorizations/"), "/status")
			rec := testRecord(id, upd.Status)
			rec.Version = 2
			writeJSON(t, w, http.StatusOK, rec)
		case r.Method == http.MethodGet:
			gets.Add(1)
			id := strings.TrimPrefix(r.URL.Path, "/api/v1/authorizations/")
			writeJSON(t, w, http.StatusOK, testRecord(id, authz.StatusDraft))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := New(testConfig(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	defer client.Close()

	ctx := context.Background()
	created, err := client.CreateRequest(ctx, authz.CreatePayload{
		PatientRef:  "patient-001",
		ProviderRef: "provider-001",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, authz.StatusDraft, created.Status)

	// The create already cached the record, so the read stays local.
	got, err := client.GetRequest(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Zero(t, gets.Load())

	updated, err := client.UpdateStatus(ctx, created.ID, authz.StatusSubmitted, "ready for intake")
	require.NoError(t, err)
	assert.Equal(t, authz.StatusSubmitted, updated.Status)
	assert.Equal(t, int64(2), updated.Version)

	health := client.Health()
	assert.Equal(t, 1, health.CachedRecords)
	assert.Equal(t, metricstream.StateDisconnected, health.StreamState)

	require.NoError(t, client.Close())
}

func TestClient_WarmStartServesCachedRecords(t *testing.T) {
	var gets atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			var p authz.CreatePayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			rec := testRecord(p.ID, authz.StatusDraft)
			writeJSON(t, w, http.StatusCreated, rec)
		case r.Method == http.MethodGet:
			gets.Add(1)
			id := strings.TrimPrefix(r.URL.Path, "/api/v1/authorizations/")
			writeJSON(t, w, http.StatusOK, testRecord(id, authz.StatusDraft))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	blob := &memBlob{}
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1700000000000))

	first, err := New(testConfig(srv.URL),
		WithHTTPClient(srv.Client()),
		WithBlobStore(blob),
		WithClock(mock),
	)
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	_, err = first.CreateRequest(context.Background(), authz.CreatePayload{
		ID:          "auth-warm",
		PatientRef:  "patient-001",
		ProviderRef: "provider-001",
	})
	require.NoError(t, err)
	require.NoError(t, first.Close())
	require.NotEmpty(t, blob.data)

	// A later process restores the snapshot and serves the record without
	// touching the network while it is still fresh.
	laterMock := clock.NewMock()
	laterMock.Set(time.UnixMilli(1700000000000).Add(time.Second))
	second, err := New(testConfig(srv.URL),
		WithHTTPClient(srv.Client()),
		WithBlobStore(blob),
		WithClock(laterMock),
	)
	require.NoError(t, err)
	require.NoError(t, second.Start(context.Background()))
	defer second.Close()

	assert.Equal(t, 1, second.Health().CachedRecords)
	rec, err := second.GetRequest(context.Background(), "auth-warm")
	require.NoError(t, err)
	assert.Equal(t, "auth-warm", rec.ID)
	assert.Zero(t, gets.Load())
}

func TestClient_StreamLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"asOf": time.Now().UnixMilli()})
	}))
	defer srv.Close()

	conn := newStreamConn()
	dialer := &streamDialer{conns: []*streamConn{conn}}

	cfg := testConfig(srv.URL)
	cfg.Stream.Enabled = true
	cfg.Service.StreamURL = "wss://stream.example.test/v1/metrics"

	client, err := New(cfg, WithHTTPClient(srv.Client()), WithStreamDialer(dialer))
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	defer client.Close()

	require.Eventually(t, func() bool {
		return client.StreamState() == metricstream.StateConnected
	}, time.Second, 5*time.Millisecond)

	updates, cancel, err := client.SubscribeMetrics()
	require.NoError(t, err)
	defer cancel()

	now := time.Now().UnixMilli()
	frame := `{"field":"approvalRate","value":0.82,"serverTimestamp":` + strconv.FormatInt(now, 10) + `}`
	conn.frames <- []byte(frame)

	require.Eventually(t, func() bool {
		snap := client.MetricsSnapshot()
		return snap.Fields["approvalRate"].Value == 0.82
	}, time.Second, 5*time.Millisecond)

	var latest metricstream.Snapshot
	for drained := false; !drained; {
		select {
		case snap := <-updates:
			latest = snap
		default:
			drained = true
		}
	}
	assert.Equal(t, 0.82, latest.Fields["approvalRate"].Value)

	health := client.Health()
	assert.Equal(t, metricstream.StateConnected, health.StreamState)
	assert.False(t, health.StreamStale)
	assert.Nil(t, health.StreamError)

	require.NoError(t, client.Close())
	assert.Equal(t, metricstream.StateDisconnected, client.StreamState())
}

func TestClient_WatchdogPullsSummaryThroughCoordinator(t *testing.T) {
	var summaryCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/api/v1/authorizations/metrics" {
			summaryCalls.Add(1)
			writeJSON(t, w, http.StatusOK, map[string]any{
				"approvalRate": 0.5,
				"asOf":         1700000000000,
			})
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	// The connection opens but never delivers a frame, so the staleness
	// watchdog must pull through the coordinator.
	conn := newStreamConn()
	dialer := &streamDialer{conns: []*streamConn{conn}}

	cfg := testConfig(srv.URL)
	cfg.Stream.Enabled = true
	cfg.Service.StreamURL = "wss://stream.example.test/v1/metrics"
	cfg.Stream.StalenessThreshold = 40 * time.Millisecond

	client, err := New(cfg, WithHTTPClient(srv.Client()), WithStreamDialer(dialer))
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	defer client.Close()

	require.Eventually(t, func() bool {
		snap := client.MetricsSnapshot()
		return snap.Fields["approvalRate"].Value == 0.5
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, summaryCalls.Load(), int64(1))
}

func TestClient_SubscribeMetricsWithoutStream(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client, err := New(testConfig(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	defer client.Close()

	_, _, err = client.SubscribeMetrics()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func TestClient_CloseIsIdempotentAndFinal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client, err := New(testConfig(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	err = client.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrClosed)

	_, err = client.GetRequest(context.Background(), "auth-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrClosed)
}
