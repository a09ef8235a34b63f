// Package transport is the HTTP API client for the remote authorization
// service. Each method performs exactly one attempt; the coordinator owns
// the retry policy.
//
// Failures come back classified: transport-level errors and 5xx/429
// responses are transient, 404 wraps ErrNotFound, 409 wraps
// ErrDuplicateOperation, and other 4xx responses are non-retryable
// validation errors. Response bodies are size-capped; error bodies feed the
// error message, never the API.
//
// A TokenSource supplies the bearer credential per request; nil means
// anonymous.
package transport
