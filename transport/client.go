package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/novacare/authsync/errors"
)

// maxBodyBytes caps how much of any response body is read. Oversized error
// pages feed the message, never the decoder.
const maxBodyBytes = 1 << 20

// TokenSource supplies the bearer credential attached to every request.
// Implementations may refresh tokens; Token is called per request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed credential. An empty token sends
// no Authorization header.
type StaticToken string

// Token returns the fixed credential.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// EnvToken is a TokenSource that reads the credential from the named
// environment variable on every call, so rotated tokens are picked up
// without a restart.
type EnvToken string

// Token returns the variable's current value. Unset or empty means
// anonymous.
func (e EnvToken) Token(context.Context) (string, error) {
	if e == "" {
		return "", nil
	}
	return os.Getenv(string(e)), nil
}

// Client is the HTTP API client for the authorization service. It performs
// single attempts; retry policy lives with the caller.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// Option configures optional client collaborators.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, for tests and for
// embedders with transport requirements (proxies, TLS pinning).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTokenSource attaches a bearer credential source. Nil means anonymous.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// New creates a client bound to the service base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "transport", "New", "base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.WrapInvalid(err, "transport", "New", "parse base URL")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	return c, nil
}

// do sends one JSON request and decodes a JSON response into out (skipped
// when out is nil). It returns the response headers for callers that need
// them. Non-2xx responses come back as classified errors.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any, op, action string) (http.Header, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, errors.WrapInvalid(err, "transport", op, "encode request body")
		}
		body = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, errors.WrapInvalid(err, "transport", op, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(ctx, req, op); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Network(err, "transport", op, action)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Network(err, "transport", op, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError(resp, data, op, action)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("decode response body: %v: %w", err, errors.ErrInvalidData),
				"transport", op, action)
		}
	}
	return resp.Header, nil
}

// doRaw sends one JSON request and returns the raw response bytes with
// their content type, for payloads that pass through untouched.
func (c *Client) doRaw(ctx context.Context, method, path string, in any, op, action string) ([]byte, string, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, "", errors.WrapInvalid(err, "transport", op, "encode request body")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, "", errors.WrapInvalid(err, "transport", op, "build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(ctx, req, op); err != nil {
		return nil, "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", errors.Network(err, "transport", op, action)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", errors.Network(err, "transport", op, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", c.statusError(resp, data, op, action)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// authorize attaches the bearer credential when a token source is present.
func (c *Client) authorize(ctx context.Context, req *http.Request, op string) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return errors.WrapFatal(err, "transport", op, "obtain bearer credential")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// statusError converts a non-2xx response into a classified error. The body
// feeds the message only.
func (c *Client) statusError(resp *http.Response, body []byte, op, action string) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	if msg == "" {
		msg = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Validation(
			fmt.Errorf("HTTP 404: %s: %w", msg, errors.ErrNotFound),
			http.StatusNotFound, "transport", op, action)
	case resp.StatusCode == http.StatusConflict:
		return errors.Duplicate(
			fmt.Errorf("HTTP 409: %s: %w", msg, errors.ErrDuplicateOperation),
			"transport", op, action)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.RateLimit(
			fmt.Errorf("HTTP 429: %s: %w", msg, errors.ErrRateLimited),
			retryAfter(resp.Header), "transport", op, action)
	case resp.StatusCode >= 500:
		return errors.Server(
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg),
			resp.StatusCode, "transport", op, action)
	default:
		return errors.Validation(
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg),
			resp.StatusCode, "transport", op, action)
	}
}

// retryAfter parses the server's pacing hint, 0 when absent or unreadable.
func retryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
