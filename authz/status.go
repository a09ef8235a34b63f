package authz

import (
	"fmt"
	"strings"

	"github.com/novacare/authsync/errors"
)

// Status is the workflow state of an authorization request. Values are the
// exact enumeration strings the remote service uses on the wire.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusSubmitted        Status = "SUBMITTED"
	StatusPendingDocuments Status = "PENDING_DOCUMENTS"
	StatusUnderReview      Status = "UNDER_REVIEW"
	StatusApproved         Status = "APPROVED"
	StatusDenied           Status = "DENIED"
	StatusCancelled        Status = "CANCELLED"
)

// transitions is the authoritative workflow table. Terminal states map to
// an empty list. CANCELLED is reachable from every non-terminal state.
var transitions = map[Status][]Status{
	StatusDraft:            {StatusSubmitted, StatusCancelled},
	StatusSubmitted:        {StatusPendingDocuments, StatusUnderReview, StatusCancelled},
	StatusPendingDocuments: {StatusUnderReview, StatusCancelled},
	StatusUnderReview:      {StatusApproved, StatusDenied, StatusCancelled},
	StatusApproved:         {},
	StatusDenied:           {},
	StatusCancelled:        {},
}

// statusOrder lists statuses in lifecycle order for display.
var statusOrder = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusPendingDocuments,
	StatusUnderReview,
	StatusApproved,
	StatusDenied,
	StatusCancelled,
}

// Valid reports whether s is one of the defined workflow statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether the workflow allows moving from s to next.
// Unknown statuses on either side never transition.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Next returns the statuses reachable from s, nil for terminal or unknown
// states. The returned slice is a copy.
func (s Status) Next() []Status {
	allowed := transitions[s]
	if len(allowed) == 0 {
		return nil
	}
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// Statuses returns all defined workflow statuses in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(statusOrder))
	copy(out, statusOrder)
	return out
}

// ParseStatus converts a wire or user-supplied string to a Status. Input is
// case-insensitive and accepts hyphens for underscores.
func ParseStatus(raw string) (Status, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")

	s := Status(normalized)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q: %w", raw, errors.ErrInvalidData)
	}
	return s, nil
}
