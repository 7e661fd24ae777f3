// Package ledgerclient talks to the Request Ledger over HTTP/JSON.
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/investable/accessgate/internal/accessgate/lifecycle"
	"github.com/investable/accessgate/internal/accessgate/store"
	"github.com/investable/accessgate/internal/accessgate/types"
)

var (
	// ErrTransport covers network failures and unexpected 5xx responses.
	ErrTransport = errors.New("ledger transport failure")

	// ErrMalformedResponse is returned when a 2xx body cannot be decoded
	// into well-formed records.
	ErrMalformedResponse = errors.New("malformed ledger response")
)

const maxResponseBody = 4 << 20

// APIError is a non-2xx ledger answer with its decoded error body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ledger returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("ledger returned %d %s", e.StatusCode, e.Code)
}

// Unwrap lets callers match API errors against the ledger's sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusConflict:
		return lifecycle.ErrInvalidTransition
	case e.StatusCode == http.StatusNotFound:
		return store.ErrNotFound
	case e.StatusCode >= 500:
		return ErrTransport
	}
	return nil
}

type Client struct {
	baseURL   string
	http      *http.Client
	principal string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithPrincipal sets the identity sent in X-Principal on every call.
func WithPrincipal(identity string) Option {
	return func(c *Client) { c.principal = identity }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Create(ctx context.Context, req types.CreateAccessRequest) (types.AccessRequest, error) {
	var rec types.AccessRequest
	if err := c.do(ctx, http.MethodPost, "/access-requests", req, &rec); err != nil {
		return types.AccessRequest{}, err
	}
	if err := validate(rec); err != nil {
		return types.AccessRequest{}, err
	}
	return rec, nil
}

func (c *Client) ListByRequester(ctx context.Context, requesterID string) ([]types.AccessRequest, error) {
	return c.list(ctx, "/access-requests/by-requester/"+url.PathEscape(requesterID))
}

// List returns every ledger record. The ledger only answers approvers.
func (c *Client) List(ctx context.Context) ([]types.AccessRequest, error) {
	return c.list(ctx, "/access-requests")
}

func (c *Client) UpdateStatus(ctx context.Context, id string, status types.Status) (types.AccessRequest, error) {
	var rec types.AccessRequest
	path := "/access-requests/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, types.UpdateStatusRequest{Status: status}, &rec); err != nil {
		return types.AccessRequest{}, err
	}
	if err := validate(rec); err != nil {
		return types.AccessRequest{}, err
	}
	return rec, nil
}

func (c *Client) Clear(ctx context.Context) (int64, error) {
	var out types.ClearResponse
	if err := c.do(ctx, http.MethodDelete, "/access-requests", nil, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

func (c *Client) list(ctx context.Context, path string) ([]types.AccessRequest, error) {
	var recs []types.AccessRequest
	if err := c.do(ctx, http.MethodGet, path, nil, &recs); err != nil {
		return nil, err
	}
	if recs == nil {
		return nil, fmt.Errorf("%w: expected an array", ErrMalformedResponse)
	}
	for _, rec := range recs {
		if err := validate(rec); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.principal != "" {
		req.Header.Set("X-Principal", c.principal)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		var eb types.ErrorResponse
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			apiErr.Code = eb.Error
			apiErr.Message = eb.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func validate(rec types.AccessRequest) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record without id", ErrMalformedResponse)
	}
	if !rec.Status.Recorded() {
		return fmt.Errorf("%w: record %s has status %q", ErrMalformedResponse, rec.ID, rec.Status)
	}
	return nil
}
