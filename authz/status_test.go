package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/novacare/authsync/errors"
)

func TestStatus_Valid(t *testing.T) {
	for _, s := range Statuses() {
		assert.True(t, s.Valid(), "expected %s to be valid", s)
	}

	assert.False(t, Status("").Valid())
	assert.False(t, Status("REJECTED").Valid())
	assert.False(t, Status("draft").Valid(), "statuses are case-sensitive on the wire")
}

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusDraft, false},
		{StatusSubmitted, false},
		{StatusPendingDocuments, false},
		{StatusUnderReview, false},
		{StatusApproved, true},
		{StatusDenied, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}

	assert.False(t, Status("BOGUS").Terminal(), "unknown status is not terminal")
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"draft submits", StatusDraft, StatusSubmitted, true},
		{"draft cancels", StatusDraft, StatusCancelled, true},
		{"draft cannot approve directly", StatusDraft, StatusApproved, false},
		{"submitted needs documents", StatusSubmitted, StatusPendingDocuments, true},
		{"submitted enters review", StatusSubmitted, StatusUnderReview, true},
		{"submitted cancels", StatusSubmitted, StatusCancelled, true},
		{"submitted cannot return to draft", StatusSubmitted, StatusDraft, false},
		{"documents arrive", StatusPendingDocuments, StatusUnderReview, true},
		{"pending documents cancels", StatusPendingDocuments, StatusCancelled, true},
		{"pending documents cannot approve", StatusPendingDocuments, StatusApproved, false},
		{"review approves", StatusUnderReview, StatusApproved, true},
		{"review denies", StatusUnderReview, StatusDenied, true},
		{"review cancels", StatusUnderReview, StatusCancelled, true},
		{"review cannot request documents", StatusUnderReview, StatusPendingDocuments, false},
		{"approved is final", StatusApproved, StatusCancelled, false},
		{"denied is final", StatusDenied, StatusSubmitted, false},
		{"cancelled is final", StatusCancelled, StatusDraft, false},
		{"no self transition", StatusSubmitted, StatusSubmitted, false},
		{"unknown source", Status("BOGUS"), StatusSubmitted, false},
		{"unknown target", StatusDraft, Status("BOGUS"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_Next(t *testing.T) {
	assert.Equal(t, []Status{StatusSubmitted, StatusCancelled}, StatusDraft.Next())
	assert.Equal(t, []Status{StatusApproved, StatusDenied, StatusCancelled}, StatusUnderReview.Next())
	assert.Nil(t, StatusApproved.Next())
	assert.Nil(t, Status("BOGUS").Next())

	// Mutating the returned slice must not corrupt the workflow table.
	next := StatusDraft.Next()
	next[0] = StatusDenied
	assert.False(t, StatusDraft.CanTransitionTo(StatusDenied))
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{"exact", "APPROVED", StatusApproved, false},
		{"lowercase", "approved", StatusApproved, false},
		{"mixed case", "Under_Review", StatusUnderReview, false},
		{"hyphenated", "pending-documents", StatusPendingDocuments, false},
		{"padded", "  DENIED  ", StatusDenied, false},
		{"unknown", "REJECTED", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
