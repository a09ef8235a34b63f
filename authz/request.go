// Package authz defines the authorization request data model shared by the
// local store, the HTTP transport, and the coordination layer: the record
// shape, the status workflow, and search queries.
package authz

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/novacare/authsync/errors"
)

// AuthorizationRequest is the client-side view of one prior-authorization
// record. Field names match the service's JSON contract. Version is the
// server's optimistic-lock counter and changes on every accepted update.
type AuthorizationRequest struct {
	ID          string         `json:"id"`
	PatientRef  string         `json:"patientRef"`
	ProviderRef string         `json:"providerRef"`
	Status      Status         `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Version     int64          `json:"version"`
	CreatedAt   int64          `json:"createdAt"`
	UpdatedAt   int64          `json:"updatedAt"`
}

// Clone returns a copy of r with its own metadata map. Metadata values are
// shared, callers treat them as immutable.
func (r AuthorizationRequest) Clone() AuthorizationRequest {
	if r.Metadata != nil {
		md := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			md[k] = v
		}
		r.Metadata = md
	}
	return r
}

// CreatePayload is the body of a create call. ID is optional: when set the
// client proposes the identifier, otherwise the coordinator assigns one
// before submission so retries stay idempotent.
type CreatePayload struct {
	ID          string         `json:"id,omitempty"`
	PatientRef  string         `json:"patientRef"`
	ProviderRef string         `json:"providerRef"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Validate checks the payload before any network or dedup work happens.
func (p CreatePayload) Validate() error {
	if strings.TrimSpace(p.PatientRef) == "" {
		return fmt.Errorf("patientRef is required: %w", errors.ErrInvalidData)
	}
	if strings.TrimSpace(p.ProviderRef) == "" {
		return fmt.Errorf("providerRef is required: %w", errors.ErrInvalidData)
	}
	return nil
}

// StatusUpdate is the body of a status-change call.
type StatusUpdate struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// SearchQuery describes a filtered listing. Zero-value fields are omitted
// from the request. Text maps to the service's free-text "q" parameter.
type SearchQuery struct {
	Status      Status
	PatientRef  string
	ProviderRef string
	Text        string
	Page        int
	PageSize    int
}

// Validate rejects queries the service would refuse.
func (q SearchQuery) Validate() error {
	if q.Status != "" && !q.Status.Valid() {
		return fmt.Errorf("unknown status filter %q: %w", q.Status, errors.ErrInvalidData)
	}
	if q.Page < 0 {
		return fmt.Errorf("page must not be negative: %w", errors.ErrInvalidData)
	}
	if q.PageSize < 0 {
		return fmt.Errorf("pageSize must not be negative: %w", errors.ErrInvalidData)
	}
	return nil
}

// FilterKey returns a stable identity for the query's filter fields.
// Pagination is excluded: turning pages within one filter set coalesces and
// supersedes under the same key.
func (q SearchQuery) FilterKey() string {
	var b strings.Builder
	b.WriteString("status=")
	b.WriteString(string(q.Status))
	b.WriteString("&patient=")
	b.WriteString(q.PatientRef)
	b.WriteString("&provider=")
	b.WriteString(q.ProviderRef)
	b.WriteString("&q=")
	b.WriteString(q.Text)
	return b.String()
}

// Values encodes the query as URL parameters for the listing endpoint.
func (q SearchQuery) Values() url.Values {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.PatientRef != "" {
		v.Set("patientRef", q.PatientRef)
	}
	if q.ProviderRef != "" {
		v.Set("providerRef", q.ProviderRef)
	}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	return v
}

// SearchResult pairs one page of records with the service's total count.
type SearchResult struct {
	Records []AuthorizationRequest
	Total   int
}
