package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novacare/authsync/authz"
	apperrors "github.com/novacare/authsync/errors"
	"github.com/novacare/authsync/metric"
	"github.com/novacare/authsync/pkg/retry"
	"github.com/novacare/authsync/store"
	"github.com/novacare/authsync/transport"
)

// pendingSeq reports the latest sequence registered for an open window.
func (c *Coordinator) pendingSeq(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pending[key]; ok {
		return p.seq
	}
	return 0
}

func writeSearchPage(t *testing.T, w http.ResponseWriter, total int, recs ...authz.AuthorizationRequest) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	require.NoError(t, json.NewEncoder(w).Encode(recs))
}

// newSearchCoordinator builds a real-clock coordinator with a short debounce
// window; response interleaving is controlled by gating the handler, not by
// the clock.
func newSearchCoordinator(t *testing.T, handler http.Handler, opts ...Option) *Coordinator {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	remote, err := transport.New(srv.URL, transport.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	st, err := store.New(store.DefaultConfig())
	require.NoError(t, err)

	all := append([]Option{
		WithDebounceWindow(time.Millisecond),
		WithRetry(retry.Config{MaxAttempts: 1, Clock: clock.New()}),
	}, opts...)
	co, err := New(remote, st, all...)
	require.NoError(t, err)
	t.Cleanup(co.Close)

	return co
}

func TestSearchRequests_CoalescesWindowToLatestQuery(t *testing.T) {
	var calls atomic.Int32
	var lastPage atomic.Value
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		lastPage.Store(r.URL.Query().Get("page"))
		writeSearchPage(t, w, 1, testRecord("auth-9", authz.StatusSubmitted))
	})

	co, mock := newTestCoordinator(t, handler, WithDebounceWindow(300*time.Millisecond))

	query1 := authz.SearchQuery{Text: "alpha", Page: 1}
	query2 := authz.SearchQuery{Text: "alpha", Page: 2}
	key := query1.FilterKey()
	require.Equal(t, key, query2.FilterKey(), "pagination does not split the debounce key")

	type outcome struct {
		result authz.SearchResult
		err    error
	}
	first := make(chan outcome, 1)
	second := make(chan outcome, 1)

	go func() {
		res, err := co.SearchRequests(context.Background(), query1)
		first <- outcome{res, err}
	}()
	require.Eventually(t, func() bool { return co.pendingSeq(key) == 1 }, 2*time.Second, time.Millisecond)

	go func() {
		res, err := co.SearchRequests(context.Background(), query2)
		second <- outcome{res, err}
	}()
	require.Eventually(t, func() bool { return co.pendingSeq(key) == 2 }, 2*time.Second, time.Millisecond)

	// Close the window; a single execution serves both callers.
	mock.Add(300 * time.Millisecond)

	out1 := <-first
	out2 := <-second
	require.NoError(t, out1.err)
	require.NoError(t, out2.err)
	assert.Equal(t, out1.result, out2.result)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "2", lastPage.Load(), "the latest query of the window is the one executed")

	state, ok := co.LastResults()
	require.True(t, ok)
	assert.Equal(t, int64(2), state.Seq)
	assert.Equal(t, 2, state.Query.Page)
}

func TestSearchRequests_DistinctFiltersDebounceIndependently(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeSearchPage(t, w, 0)
	})

	co, mock := newTestCoordinator(t, handler, WithDebounceWindow(300*time.Millisecond))

	done := make(chan struct{}, 2)
	for _, status := range []authz.Status{authz.StatusDraft, authz.StatusSubmitted} {
		go func(status authz.Status) {
			_, _ = co.SearchRequests(context.Background(), authz.SearchQuery{Status: status})
			done <- struct{}{}
		}(status)
	}
	require.Eventually(t, func() bool { return co.sched.Pending() == 2 }, 2*time.Second, time.Millisecond)

	mock.Add(300 * time.Millisecond)
	<-done
	<-done
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchRequests_SupersededResponseDiscarded(t *testing.T) {
	firstEntered := make(chan struct{})
	releaseFirst := make(chan struct{})
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		rec := testRecord("auth-1", authz.StatusSubmitted)
		rec.Version = int64(n)
		if n == 1 {
			close(firstEntered)
			<-releaseFirst
		}
		writeSearchPage(t, w, 1, rec)
	})

	registry := metric.NewRegistry()
	co := newSearchCoordinator(t, handler, WithMetrics(registry))

	query := authz.SearchQuery{Text: "alpha"}

	// First window executes and parks inside the handler.
	firstDone := make(chan authz.SearchResult, 1)
	go func() {
		res, err := co.SearchRequests(context.Background(), query)
		assert.NoError(t, err)
		firstDone <- res
	}()
	<-firstEntered

	// Second window for the same filter settles first.
	res2, err := co.SearchRequests(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, res2.Records, 1)
	assert.Equal(t, int64(2), res2.Records[0].Version)

	// Now the first response arrives late. Its caller still gets it, but
	// no cache moves backwards.
	close(releaseFirst)
	res1 := <-firstDone
	require.Len(t, res1.Records, 1)
	assert.Equal(t, int64(1), res1.Records[0].Version)

	state, ok := co.LastResults()
	require.True(t, ok)
	require.Len(t, state.Items, 1)
	assert.Equal(t, int64(2), state.Items[0].Version)

	cached, ok := co.CachedResults(query)
	require.True(t, ok)
	assert.Equal(t, int64(2), cached.Items[0].Version)

	assert.Equal(t, float64(1), counterValue(t, registry, "authsync_search_discarded_total"))
}

func TestSearchRequests_StaleResponseNeverClobbersNewerVisibleSet(t *testing.T) {
	alphaEntered := make(chan struct{})
	releaseAlpha := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		rec := testRecord("auth-"+q, authz.StatusSubmitted)
		if q == "alpha" {
			close(alphaEntered)
			<-releaseAlpha
		}
		writeSearchPage(t, w, 1, rec)
	})

	co := newSearchCoordinator(t, handler)

	alphaDone := make(chan struct{})
	go func() {
		defer close(alphaDone)
		_, err := co.SearchRequests(context.Background(), authz.SearchQuery{Text: "alpha"})
		assert.NoError(t, err)
	}()
	<-alphaEntered

	// A different filter completes while alpha is still in flight.
	_, err := co.SearchRequests(context.Background(), authz.SearchQuery{Text: "beta"})
	require.NoError(t, err)

	close(releaseAlpha)
	<-alphaDone

	// The late alpha response is cached for its own filter but the visible
	// set keeps the newer beta results.
	state, ok := co.LastResults()
	require.True(t, ok)
	assert.Equal(t, "auth-beta", state.Items[0].ID)

	cached, ok := co.CachedResults(authz.SearchQuery{Text: "alpha"})
	require.True(t, ok)
	assert.Equal(t, "auth-alpha", cached.Items[0].ID)
}

func TestSearchRequests_EnrichesRecordStore(t *testing.T) {
	var gets atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("q") {
			writeSearchPage(t, w, 1, testRecord("auth-7", authz.StatusApproved))
			return
		}
		gets.Add(1)
		writeRecord(t, w, http.StatusOK, testRecord("auth-7", authz.StatusApproved))
	})

	co := newSearchCoordinator(t, handler)

	_, err := co.SearchRequests(context.Background(), authz.SearchQuery{Text: "knee"})
	require.NoError(t, err)

	// The searched record reads straight from the cache.
	rec, err := co.GetRequest(context.Background(), "auth-7")
	require.NoError(t, err)
	assert.Equal(t, authz.StatusApproved, rec.Status)
	assert.Equal(t, int32(0), gets.Load())
}

func TestSearchRequests_InvalidQuery(t *testing.T) {
	co := newSearchCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected")
	}))

	_, err := co.SearchRequests(context.Background(), authz.SearchQuery{Page: -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidData)

	_, ok := co.LastResults()
	assert.False(t, ok)
}

func TestSearchRequests_FailureReachesAllWindowCallers(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend unavailable", http.StatusBadGateway)
	})

	co := newSearchCoordinator(t, handler)

	_, err := co.SearchRequests(context.Background(), authz.SearchQuery{Text: "alpha"})
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))

	_, ok := co.LastResults()
	assert.False(t, ok, "failed executions leave no visible state")
}

func TestSearchRequests_CallerCancellationAbandonsOnlyItsWait(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeSearchPage(t, w, 1, testRecord("auth-3", authz.StatusSubmitted))
	})

	co, mock := newTestCoordinator(t, handler, WithDebounceWindow(300*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := co.SearchRequests(ctx, authz.SearchQuery{Text: "alpha"})
		errCh <- err
	}()
	key := authz.SearchQuery{Text: "alpha"}.FilterKey()
	require.Eventually(t, func() bool { return co.pendingSeq(key) == 1 }, 2*time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	// The window still executes and feeds the caches.
	mock.Add(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	state, ok := co.LastResults()
	require.True(t, ok)
	assert.Equal(t, "auth-3", state.Items[0].ID)
}

// counterValue reads a plain counter from the gathered registry output.
func counterValue(t *testing.T, registry *metric.Registry, name string) float64 {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.Len(t, mf.GetMetric(), 1)
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}
