// Package retry provides simple exponential backoff retry logic for transient failures.
//
// # Overview
//
// This package offers a minimal retry mechanism with exponential backoff, designed to handle
// transient failures when calling the remote authorization service.
//
// # Core Functions
//
//   - Do: Execute function with retry and exponential backoff
//   - DoWithResult: Execute function with retry, returns both result and error
//   - Backoff: Compute the delay for a given attempt, for components that drive their own timers
//
// # Configuration
//
// DefaultConfig() is the client's standard policy: 4 attempts (one call plus
// three retries), delays doubling from 1s, capped at 10s, with jitter.
//
// Basic retry with defaults:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return client.Submit(ctx, payload)
//	})
//
// Retry with result:
//
//	rec, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (Record, error) {
//	    return api.Get(ctx, id)
//	})
//
// Custom configuration:
//
//	cfg := retry.Config{
//	    MaxAttempts:  5,
//	    InitialDelay: 200 * time.Millisecond,
//	    MaxDelay:     10 * time.Second,
//	    Multiplier:   2.0,
//	    AddJitter:    true,
//	}
//	err := retry.Do(ctx, cfg, operation)
//
// # Design Philosophy
//
// This package is intentionally minimal:
//
//   - No circuit breakers
//   - No metrics collection (instrument at the call site)
//   - No error classification beyond the NonRetryable marker (caller decides what to retry)
//   - Just exponential backoff with jitter
//
// Callers mark errors that must not be retried with NonRetryable; Do strips
// the marker before surfacing them, so callers of Do never see it.
//
// # Context Cancellation
//
// All retry operations respect context cancellation and will immediately stop retrying
// when the context is cancelled, either during operation execution or during backoff delay.
//
// # Determinism in Tests
//
// Config.Clock accepts a fake timer source and AddJitter can be disabled, so
// backoff behavior is testable without wall-clock sleeps.
//
// # Thread Safety
//
// All functions are safe for concurrent use. The jitter mechanism uses a thread-safe
// random source to avoid contention.
package retry
