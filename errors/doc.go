// Package errors provides standardized error handling patterns for authsync components.
//
// # Overview
//
// The errors package implements a three-class error classification system for a
// client that talks to a remote authorization service: Transient (temporary,
// retryable), Invalid (bad input or state, non-retryable), and Fatal
// (unrecoverable, stop processing).
//
// On top of the class, every error may carry a Kind naming the failure family
// the remote contract defines: network, server, rate_limit, validation,
// invalid_transition, duplicate_operation, and stream. The class drives the
// retry policy; the kind drives caller dispatch and metric labels.
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
// Use standard error variables for known conditions:
//
//	if status == http.StatusNotFound {
//	    return errors.ErrNotFound
//	}
//
// Wrap errors with component context:
//
//	if err := api.Get(ctx, id); err != nil {
//	    return errors.Wrap(err, "coordinator", "GetRequest", "fetch record")
//	}
//
// Check classification for retry logic:
//
//	if err := operation(); err != nil && errors.IsTransient(err) {
//	    // retry with exponential backoff
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// The kind constructors (Network, Server, RateLimit, Validation,
// InvalidTransition, Duplicate, Stream) apply this pattern while attaching
// the class and kind; Server and RateLimit also record the HTTP status and,
// for rate limits, the server's Retry-After pacing hint.
package errors
