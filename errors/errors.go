// Package errors provides standardized error handling patterns for authsync components.
// It includes error classification, standard error variables, and helper functions
// for consistent error wrapping across the client.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or state
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Kind identifies which failure family an error belongs to. Kinds are
// stable values suitable for metric labels and caller dispatch; the
// class decides retryability, the kind says what went wrong.
type Kind int

const (
	// KindUnknown is the zero kind for unclassified errors
	KindUnknown Kind = iota
	// KindNetwork covers transport-level failures (DNS, dial, reset, timeout)
	KindNetwork
	// KindServer covers remote 5xx responses
	KindServer
	// KindRateLimit covers remote 429 responses, optionally with a pacing hint
	KindRateLimit
	// KindValidation covers rejected input, local or remote 4xx
	KindValidation
	// KindInvalidTransition covers status changes the workflow forbids
	KindInvalidTransition
	// KindDuplicateOperation covers operations coalesced with or conflicting
	// with an identical one already in flight
	KindDuplicateOperation
	// KindStream covers metrics stream connection failures
	KindStream
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindRateLimit:
		return "rate_limit"
	case KindValidation:
		return "validation"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindDuplicateOperation:
		return "duplicate_operation"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Client lifecycle errors
	ErrAlreadyStarted = errors.New("client already started")
	ErrNotStarted     = errors.New("client not started")
	ErrClosed         = errors.New("client closed")

	// Connection and networking errors
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrRateLimited       = errors.New("rate limited")

	// Remote service errors
	ErrNotFound = errors.New("authorization not found")

	// Coordination errors
	ErrPatchPending       = errors.New("status update already pending")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrDuplicateOperation = errors.New("duplicate operation in flight")

	// Stream errors
	ErrStreamFailed       = errors.New("metrics stream failed")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Data errors
	ErrInvalidData   = errors.New("invalid data format")
	ErrDataCorrupted = errors.New("data corrupted")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Kind      Kind
	Err       error
	Message   string
	Component string
	Operation string

	// Status carries the HTTP status code when the remote produced the error
	Status int
	// RetryAfter carries the server's pacing hint for rate-limited calls
	RetryAfter time.Duration
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Check for classified error
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	// Check for known transient errors
	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Check error message for common transient patterns
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection",
		"network",
		"temporar",
		"unavailable",
		"busy",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	// Check for classified error
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	// Check for known fatal errors
	if errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrDataCorrupted) {
		return true
	}

	// Check error message for fatal patterns
	errStr := strings.ToLower(err.Error())
	fatalPatterns := []string{
		"fatal",
		"panic",
		"corrupted",
	}

	for _, pattern := range fatalPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsInvalid checks if an error is due to invalid input or state
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	// Check for classified error
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	// Check for known invalid errors
	if errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrPatchPending) ||
		errors.Is(err, ErrDuplicateOperation) ||
		errors.Is(err, ErrNotFound) {
		return true
	}

	return false
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient // Default for nil
	}

	if IsTransient(err) {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	// Default to transient for unknown errors to allow retry
	return ErrorTransient
}

// KindOf returns the failure kind for an error, KindUnknown when the
// error carries no kind and matches no standard variable.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) && ce.Kind != KindUnknown {
		return ce.Kind
	}

	switch {
	case errors.Is(err, ErrConnectionLost), errors.Is(err, ErrConnectionTimeout):
		return KindNetwork
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrDuplicateOperation):
		return KindDuplicateOperation
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPatchPending), errors.Is(err, ErrInvalidData):
		return KindValidation
	case errors.Is(err, ErrStreamFailed):
		return KindStream
	default:
		return KindUnknown
	}
}

// StatusOf returns the HTTP status attached to an error, 0 when absent.
func StatusOf(err error) int {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Status
	}
	return 0
}

// RetryAfterHint returns the server's pacing hint attached to a
// rate-limit error, false when the error carries none.
func RetryAfterHint(err error) (time.Duration, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) && ce.RetryAfter > 0 {
		return ce.RetryAfter, true
	}
	return 0, false
}

// IsNotFound checks if an error reports a missing authorization.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Is reports whether any error in err's chain matches target.
// It delegates to the standard library so callers need only this package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// It delegates to the standard library so callers need only this package.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error with the supplied message.
// It delegates to the standard library so callers need only this package.
func New(text string) error {
	return errors.New(text)
}

// Join wraps errs into a single error whose chain matches every non-nil
// member. It delegates to the standard library so callers need only this
// package.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// newClassified creates a new classified error
// This is an internal helper - use the Wrap* or kind constructors instead.
func newClassified(class ErrorClass, kind Kind, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Kind:      kind,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	return wrapClassified(ErrorTransient, KindUnknown, err, component, method, action)
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	return wrapClassified(ErrorFatal, KindUnknown, err, component, method, action)
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	return wrapClassified(ErrorInvalid, KindUnknown, err, component, method, action)
}

func wrapClassified(class ErrorClass, kind Kind, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(class, kind, wrappedErr, component, method, wrappedErr.Error())
}

// Network wraps a transport-level failure as a transient network error.
func Network(err error, component, method, action string) error {
	return wrapClassified(ErrorTransient, KindNetwork, err, component, method, action)
}

// Server wraps a remote 5xx response as a transient server error carrying
// the HTTP status.
func Server(err error, status int, component, method, action string) error {
	wrapped := wrapClassified(ErrorTransient, KindServer, err, component, method, action)
	if wrapped == nil {
		return nil
	}
	wrapped.(*ClassifiedError).Status = status
	return wrapped
}

// RateLimit wraps a remote 429 response as a transient rate-limit error.
// retryAfter is the server's pacing hint, 0 when the server sent none.
func RateLimit(err error, retryAfter time.Duration, component, method, action string) error {
	wrapped := wrapClassified(ErrorTransient, KindRateLimit, err, component, method, action)
	if wrapped == nil {
		return nil
	}
	ce := wrapped.(*ClassifiedError)
	ce.Status = 429
	ce.RetryAfter = retryAfter
	return wrapped
}

// Validation wraps rejected input as a non-retryable validation error.
// status carries the HTTP status for remote rejections, 0 for local ones.
func Validation(err error, status int, component, method, action string) error {
	wrapped := wrapClassified(ErrorInvalid, KindValidation, err, component, method, action)
	if wrapped == nil {
		return nil
	}
	wrapped.(*ClassifiedError).Status = status
	return wrapped
}

// InvalidTransition wraps a forbidden status change as a non-retryable error.
func InvalidTransition(err error, component, method, action string) error {
	return wrapClassified(ErrorInvalid, KindInvalidTransition, err, component, method, action)
}

// Duplicate wraps a conflict with an identical in-flight or committed
// operation as a non-retryable error.
func Duplicate(err error, component, method, action string) error {
	return wrapClassified(ErrorInvalid, KindDuplicateOperation, err, component, method, action)
}

// Stream wraps a recoverable metrics stream failure as transient.
func Stream(err error, component, method, action string) error {
	return wrapClassified(ErrorTransient, KindStream, err, component, method, action)
}

// StreamFatal wraps a terminal metrics stream failure, reached when
// reconnection attempts are exhausted.
func StreamFatal(err error, component, method, action string) error {
	return wrapClassified(ErrorFatal, KindStream, err, component, method, action)
}
