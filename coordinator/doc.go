// Package coordinator serializes all traffic between callers and the remote
// authorization service.
//
// The coordinator owns the record store, the in-flight deduplicator and the
// search debounce scheduler. Reads are served from cache while fresh and
// refreshed through shared single-flight fetches when not. Mutations are
// optimistic: the store serves the patched value while the call is in
// flight, then converges on the server's answer or rolls back. Searches
// coalesce per filter key inside a debounce window and settle under
// monotonic sequence guards, so a slow response can never clobber a newer
// one.
//
// Transient remote failures retry with exponential backoff; everything else
// surfaces immediately with its classification intact.
package coordinator
