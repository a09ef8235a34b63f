// Package store holds the client's local view of authorization records: a
// freshness-aware cache plus an optimistic patch overlay.
//
// Records enter the store only as authoritative server responses (Put,
// Confirm) or from a warm-start snapshot. Every entry carries its fetch
// time; within the TTL it is served fresh, past the TTL it is served with a
// stale marker, and past the retention window it is dropped. Expired entries
// are swept lazily on access, at most once per sweep interval. There is no
// background goroutine.
//
// Status updates are the only optimistic mutation. ApplyPatch records the
// intended change without touching the base record; reads compose base plus
// patch at lookup time. Confirm atomically replaces both with the service's
// authoritative response; Rollback discards the patch and reads fall back to
// the base. At most one patch can be outstanding per record.
//
// Snapshot and Restore convert the entries (never the patches) to an opaque
// CBOR blob for a BlobStore. FileBlob is the file-backed implementation with
// atomic replace semantics. A corrupt or version-skewed blob restores to an
// empty store.
package store
