package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/novacare/authsync/authz"
	apperrors "github.com/novacare/authsync/errors"
	"github.com/novacare/authsync/pkg/signature"
	"github.com/novacare/authsync/pkg/timestamp"
	"github.com/novacare/authsync/transport"
)

// CreateRequest submits a new authorization request. Concurrent calls with
// an identical payload share a single network call and receive the same
// created record. When the payload carries no ID, one is assigned before
// dispatch so the server sees a stable identity across retries.
func (c *Coordinator) CreateRequest(ctx context.Context, payload authz.CreatePayload) (authz.AuthorizationRequest, error) {
	if err := c.checkOpen("CreateRequest"); err != nil {
		return authz.AuthorizationRequest{}, err
	}
	if err := payload.Validate(); err != nil {
		return authz.AuthorizationRequest{}, apperrors.Validation(err, 0, "coordinator", "CreateRequest", "validate payload")
	}

	// The signature covers the payload as the caller supplied it, so two
	// callers racing with the same refs and metadata coalesce even before
	// an ID exists.
	sig, err := signature.Of("create", payload)
	if err != nil {
		return authz.AuthorizationRequest{}, apperrors.WrapInvalid(err, "coordinator", "CreateRequest", "sign payload")
	}

	start := c.clock.Now()
	record, shared, err := c.recordCalls.Do(ctx, sig, func() (authz.AuthorizationRequest, error) {
		opCtx := context.WithoutCancel(ctx)
		dispatch := payload
		if dispatch.ID == "" {
			dispatch.ID = uuid.NewString()
		}
		rec, err := callRemote(opCtx, c.retry, func() (authz.AuthorizationRequest, error) {
			return c.remote.Create(opCtx, dispatch)
		})
		if err != nil {
			return authz.AuthorizationRequest{}, err
		}
		c.store.Put(rec)
		return rec, nil
	})
	c.recordOp("create", start, err)
	c.recordShared("create", shared)
	if err != nil {
		return authz.AuthorizationRequest{}, err
	}
	c.logger.Debug("authorization created", "id", record.ID, "status", string(record.Status), "shared", shared)
	return record, nil
}

// GetRequest returns the authorization with the given id. A fresh cached
// record is served without touching the network; an absent or stale record
// triggers one shared fetch and the refreshed composed value is returned.
func (c *Coordinator) GetRequest(ctx context.Context, id string) (authz.AuthorizationRequest, error) {
	if err := c.checkOpen("GetRequest"); err != nil {
		return authz.AuthorizationRequest{}, err
	}
	if strings.TrimSpace(id) == "" {
		return authz.AuthorizationRequest{}, apperrors.Validation(
			fmt.Errorf("empty authorization id: %w", apperrors.ErrInvalidData),
			0, "coordinator", "GetRequest", "validate id")
	}

	if rec, stale, ok := c.store.Get(id); ok && !stale {
		return rec, nil
	}

	start := c.clock.Now()
	record, shared, err := c.recordCalls.Do(ctx, "get:"+id, func() (authz.AuthorizationRequest, error) {
		opCtx := context.WithoutCancel(ctx)
		rec, err := callRemote(opCtx, c.retry, func() (authz.AuthorizationRequest, error) {
			return c.remote.Get(opCtx, id)
		})
		if err != nil {
			return authz.AuthorizationRequest{}, err
		}
		c.store.Put(rec)
		// Serve the composed view so an outstanding local patch stays
		// visible across the refresh.
		if composed, _, ok := c.store.Get(id); ok {
			return composed, nil
		}
		return rec, nil
	})
	c.recordOp("get", start, err)
	c.recordShared("get", shared)
	if err != nil {
		return authz.AuthorizationRequest{}, err
	}
	return record, nil
}

// UpdateStatus moves an authorization to a new status. The transition is
// validated against the local record before any network call; while the
// PATCH is in flight the store serves the optimistic value, which is
// confirmed or rolled back when the call settles.
func (c *Coordinator) UpdateStatus(ctx context.Context, id string, next authz.Status, reason string) (authz.AuthorizationRequest, error) {
	if err := c.checkOpen("UpdateStatus"); err != nil {
		return authz.AuthorizationRequest{}, err
	}
	if !next.Valid() {
		return authz.AuthorizationRequest{}, apperrors.Validation(
			fmt.Errorf("unknown status %q: %w", next, apperrors.ErrInvalidData),
			0, "coordinator", "UpdateStatus", "validate status")
	}

	current, err := c.GetRequest(ctx, id)
	if err != nil {
		return authz.AuthorizationRequest{}, err
	}
	if !current.Status.CanTransitionTo(next) {
		return authz.AuthorizationRequest{}, apperrors.InvalidTransition(
			fmt.Errorf("%w from %s to %s", apperrors.ErrInvalidTransition, current.Status, next),
			"coordinator", "UpdateStatus", "validate transition")
	}

	if err := c.store.ApplyPatch(id, next, reason); err != nil {
		return authz.AuthorizationRequest{}, err
	}

	start := c.clock.Now()
	opCtx := context.WithoutCancel(ctx)
	record, err := callRemote(opCtx, c.retry, func() (authz.AuthorizationRequest, error) {
		return c.remote.UpdateStatus(opCtx, id, next, reason)
	})
	c.recordOp("update_status", start, err)
	if err != nil {
		c.store.Rollback(id)
		c.logger.Warn("status update rolled back", "id", id, "to", string(next), "error", err)
		return authz.AuthorizationRequest{}, err
	}

	c.store.Confirm(id, record)
	c.logger.Debug("status updated", "id", id, "from", string(current.Status), "to", string(record.Status))
	return record, nil
}

// MetricsSummary fetches the aggregate metrics document. Concurrent calls
// share one network call. A document the server did not stamp gets the
// client clock's time so staleness tracking keeps working.
func (c *Coordinator) MetricsSummary(ctx context.Context) (transport.MetricsDocument, error) {
	if err := c.checkOpen("MetricsSummary"); err != nil {
		return transport.MetricsDocument{}, err
	}

	start := c.clock.Now()
	doc, shared, err := c.summaryCalls.Do(ctx, "metrics-summary", func() (transport.MetricsDocument, error) {
		opCtx := context.WithoutCancel(ctx)
		doc, err := callRemote(opCtx, c.retry, func() (transport.MetricsDocument, error) {
			return c.remote.MetricsSummary(opCtx)
		})
		if err != nil {
			return transport.MetricsDocument{}, err
		}
		if doc.AsOf == 0 {
			doc.AsOf = timestamp.ToUnixMs(c.clock.Now())
		}
		return doc, nil
	})
	c.recordOp("metrics_summary", start, err)
	c.recordShared("metrics_summary", shared)
	if err != nil {
		return transport.MetricsDocument{}, err
	}
	return doc, nil
}

// Export requests a server-rendered export of matching authorizations and
// returns the document bytes and content type untouched.
func (c *Coordinator) Export(ctx context.Context, req transport.ExportRequest) ([]byte, string, error) {
	if err := c.checkOpen("Export"); err != nil {
		return nil, "", err
	}

	type exportResult struct {
		data        []byte
		contentType string
	}

	start := c.clock.Now()
	res, err := callRemote(ctx, c.retry, func() (exportResult, error) {
		data, contentType, err := c.remote.Export(ctx, req)
		return exportResult{data: data, contentType: contentType}, err
	})
	c.recordOp("export", start, err)
	if err != nil {
		return nil, "", err
	}
	return res.data, res.contentType, nil
}
