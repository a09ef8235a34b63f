package transport

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/novacare/authsync/authz"
	"github.com/novacare/authsync/errors"
	"github.com/novacare/authsync/pkg/timestamp"
)

const basePath = "/api/v1/authorizations"

// MetricsDocument is the aggregate metrics pull document: field name to
// value, stamped with the server's as-of time (unix ms, 0 when the server
// sent none).
type MetricsDocument struct {
	Fields map[string]any
	AsOf   int64
}

// ExportRequest describes a server-side export: which records and in what
// format. The response bytes pass through untouched.
type ExportRequest struct {
	Format      string       `json:"format"`
	Status      authz.Status `json:"status,omitempty"`
	PatientRef  string       `json:"patientRef,omitempty"`
	ProviderRef string       `json:"providerRef,omitempty"`
	Text        string       `json:"q,omitempty"`
}

// Create submits a new authorization request. The service answers 201 with
// the authoritative record.
func (c *Client) Create(ctx context.Context, payload authz.CreatePayload) (authz.AuthorizationRequest, error) {
	var rec authz.AuthorizationRequest
	_, err := c.do(ctx, http.MethodPost, basePath, nil, payload, &rec, "Create", "submit authorization")
	if err != nil {
		return authz.AuthorizationRequest{}, err
	}
	return rec, nil
}

// Get fetches one authorization by ID.
func (c *Client) Get(ctx context.Context, id string) (authz.AuthorizationRequest, error) {
	var rec authz.AuthorizationRequest
	path := basePath + "/" + url.PathEscape(id)
	_, err := c.do(ctx, http.MethodGet, path, nil, nil, &rec, "Get", "fetch authorization")
	if err != nil {
		return authz.AuthorizationRequest{}, err
	}
	return rec, nil
}

// Search lists authorizations matching the query. The total matching count
// comes from the X-Total-Count header; when the server omits it the page
// length stands in.
func (c *Client) Search(ctx context.Context, query authz.SearchQuery) (authz.SearchResult, error) {
	var items []authz.AuthorizationRequest
	headers, err := c.do(ctx, http.MethodGet, basePath, query.Values(), nil, &items, "Search", "list authorizations")
	if err != nil {
		return authz.SearchResult{}, err
	}

	total := len(items)
	if raw := headers.Get("X-Total-Count"); raw != "" {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n >= 0 {
			total = n
		}
	}
	return authz.SearchResult{Records: items, Total: total}, nil
}

// UpdateStatus asks the service to move an authorization to a new status.
// The service validates the transition and answers with the authoritative
// record.
func (c *Client) UpdateStatus(ctx context.Context, id string, status authz.Status, reason string) (authz.AuthorizationRequest, error) {
	var rec authz.AuthorizationRequest
	path := basePath + "/" + url.PathEscape(id) + "/status"
	body := authz.StatusUpdate{Status: status, Reason: reason}
	_, err := c.do(ctx, http.MethodPatch, path, nil, body, &rec, "UpdateStatus", "update authorization status")
	if err != nil {
		return authz.AuthorizationRequest{}, err
	}
	return rec, nil
}

// MetricsSummary pulls the aggregate metrics document. Every top-level
// member except the as-of stamp is a metric field; unknown members ride
// along untouched so new server aggregates need no client release.
func (c *Client) MetricsSummary(ctx context.Context) (MetricsDocument, error) {
	var raw map[string]any
	_, err := c.do(ctx, http.MethodGet, basePath+"/metrics", nil, nil, &raw, "MetricsSummary", "fetch metrics summary")
	if err != nil {
		return MetricsDocument{}, err
	}

	doc := MetricsDocument{Fields: make(map[string]any, len(raw))}
	for name, value := range raw {
		if name == "asOf" {
			doc.AsOf = timestamp.Parse(value)
			continue
		}
		doc.Fields[name] = value
	}
	return doc, nil
}

// Export runs a server-side export and returns the opaque payload with its
// content type.
func (c *Client) Export(ctx context.Context, req ExportRequest) ([]byte, string, error) {
	if req.Format == "" {
		return nil, "", errors.Validation(
			errors.New("export format is required"), 0, "transport", "Export", "validate export descriptor")
	}

	data, contentType, err := c.doRaw(ctx, http.MethodPost, basePath+"/export", req, "Export", "export authorizations")
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}
