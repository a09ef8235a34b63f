package coordinator

import (
	"context"

	"github.com/novacare/authsync/authz"
	apperrors "github.com/novacare/authsync/errors"
)

// SearchState is an applied search response: the query that produced it,
// the records, the server's total match count and the sequence number that
// won the ordering race.
type SearchState struct {
	Query authz.SearchQuery
	Items []authz.AuthorizationRequest
	Total int
	Seq   int64
}

func (s SearchState) clone() SearchState {
	out := s
	out.Items = make([]authz.AuthorizationRequest, len(s.Items))
	for i, rec := range s.Items {
		out.Items[i] = rec.Clone()
	}
	return out
}

// pendingSearch is one open debounce window. Every caller of the window
// blocks on done and shares the eventual result. Latest query and sequence
// win while the window is open.
type pendingSearch struct {
	query  authz.SearchQuery
	seq    int64
	done   chan struct{}
	result authz.SearchResult
	err    error
}

// SearchRequests runs a server-side search. Calls inside the debounce
// window with the same filter key coalesce into one execution carrying the
// latest query; every caller of the window receives that execution's
// result. Responses that lost the ordering race update nothing.
func (c *Coordinator) SearchRequests(ctx context.Context, query authz.SearchQuery) (authz.SearchResult, error) {
	if err := query.Validate(); err != nil {
		return authz.SearchResult{}, apperrors.Validation(err, 0, "coordinator", "SearchRequests", "validate query")
	}

	key := query.FilterKey()
	seq := c.seq.Add(1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return authz.SearchResult{}, apperrors.Wrap(apperrors.ErrClosed, "coordinator", "SearchRequests", "dispatch")
	}
	p, ok := c.pending[key]
	if !ok {
		p = &pendingSearch{done: make(chan struct{})}
		c.pending[key] = p
	}
	p.query = query
	p.seq = seq
	c.sched.Schedule(key, c.debounce, func() { c.runSearch(key) })
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		// The caller abandons its wait; the window still executes for the
		// remaining callers and the caches.
		return authz.SearchResult{}, ctx.Err()
	case <-p.done:
		return p.result, p.err
	}
}

// runSearch closes one debounce window: it executes the latest coalesced
// query, enriches the record store, applies sequence guards and releases
// every waiter.
func (c *Coordinator) runSearch(key string) {
	c.mu.Lock()
	p := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()
	if p == nil {
		return
	}

	opCtx := context.Background()
	start := c.clock.Now()
	result, err := callRemote(opCtx, c.retry, func() (authz.SearchResult, error) {
		return c.remote.Search(opCtx, p.query)
	})
	c.recordOp("search", start, err)

	if err == nil {
		for _, rec := range result.Records {
			c.store.Put(rec)
		}
		c.applySearchResult(key, p.query, p.seq, result)
	} else {
		c.logger.Warn("search failed", "filter", key, "error", err)
	}

	p.result = result
	p.err = err
	close(p.done)
}

// applySearchResult applies a settled response under the sequence guards:
// per filter key for the cached result, globally for the visible state.
func (c *Coordinator) applySearchResult(key string, query authz.SearchQuery, seq int64, result authz.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq < c.keySeq[key] {
		// A newer execution for this filter already applied.
		if c.metrics != nil {
			c.metrics.RecordSearchDiscarded()
		}
		c.logger.Debug("discarded superseded search response", "filter", key, "seq", seq)
		return
	}
	c.keySeq[key] = seq

	state := SearchState{Query: query, Items: result.Records, Total: result.Total, Seq: seq}.clone()
	c.keyResults[key] = state

	if !c.visibleSet || seq > c.visible.Seq {
		c.visible = state
		c.visibleSet = true
	}
}

// LastResults returns the most recent search state applied to the visible
// set, if any search has completed yet.
func (c *Coordinator) LastResults() (SearchState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.visibleSet {
		return SearchState{}, false
	}
	return c.visible.clone(), true
}

// CachedResults returns the last applied response for the query's filter
// key, regardless of what the visible set shows.
func (c *Coordinator) CachedResults(query authz.SearchQuery) (SearchState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.keyResults[query.FilterKey()]
	if !ok {
		return SearchState{}, false
	}
	return state.clone(), true
}
