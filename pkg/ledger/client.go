// Package ledger is the HTTP client for the ledger backend. The agent core
// never talks to the backend directly; the builtin tools call through a
// Client resolved at registry construction.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tallyhq/tally/pkg/errors"
)

const (
	defaultTimeout = 15 * time.Second
	maxRetries     = 2
	baseRetryDelay = 200 * time.Millisecond
)

// Client is the interface the builtin tools consume. *HTTPClient is the
// production implementation; tests use fakes.
type Client interface {
	CreateTransaction(ctx context.Context, tx Transaction) (*Transaction, error)
	UpdateTransaction(ctx context.Context, id int64, fields map[string]any) (*Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
	BulkDeleteTransactions(ctx context.Context, q Query) (*BulkDeleteResult, error)
	QueryTransactions(ctx context.Context, q Query) ([]Transaction, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, c Category) (*Category, error)
	ListPaymentMethods(ctx context.Context) ([]PaymentMethod, error)
}

// HTTPClient talks to the ledger backend over HTTP.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the HTTP client.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(key string) Option {
	return func(h *HTTPClient) {
		h.apiKey = key
	}
}

// NewHTTPClient creates a ledger client for the given base URL.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) CreateTransaction(ctx context.Context, tx Transaction) (*Transaction, error) {
	var out Transaction
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", tx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) UpdateTransaction(ctx context.Context, id int64, fields map[string]any) (*Transaction, error) {
	var out Transaction
	path := "/v1/transactions/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodPatch, path, fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DeleteTransaction(ctx context.Context, id int64) error {
	path := "/v1/transactions/" + strconv.FormatInt(id, 10)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) BulkDeleteTransactions(ctx context.Context, q Query) (*BulkDeleteResult, error) {
	var out BulkDeleteResult
	if err := c.do(ctx, http.MethodPost, "/v1/transactions/bulk-delete", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) QueryTransactions(ctx context.Context, q Query) ([]Transaction, error) {
	var out []Transaction
	path := "/v1/transactions?" + queryValues(q).Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := c.do(ctx, http.MethodGet, "/v1/categories", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) CreateCategory(ctx context.Context, cat Category) (*Category, error) {
	var out Category
	if err := c.do(ctx, http.MethodPost, "/v1/categories", cat, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListPaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	var out []PaymentMethod
	if err := c.do(ctx, http.MethodGet, "/v1/payment-methods", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do performs one request, retrying idempotent GETs on transient failures.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "encode request body")
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts = maxRetries + 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(baseRetryDelay << attempt):
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), errors.ErrCodeLedgerRequest, "request cancelled")
			}
		}
		lastErr = c.doOnce(ctx, method, path, payload, out)
		if lastErr == nil || !errors.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeLedgerRequest, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeLedgerRequest, "ledger unreachable").WithRetryable(true)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeLedgerRequest, "read response").WithRetryable(true)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.ErrCodeLedgerNotFound, fmt.Sprintf("%s %s: not found", method, path))
	case resp.StatusCode >= 500:
		return errors.New(errors.ErrCodeLedgerRequest,
			fmt.Sprintf("%s %s: status %d", method, path, resp.StatusCode)).WithRetryable(true)
	case resp.StatusCode >= 400:
		return errors.New(errors.ErrCodeLedgerRequest,
			fmt.Sprintf("%s %s: status %d: %s", method, path, resp.StatusCode, truncate(string(data), 256)))
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, errors.ErrCodeLedgerRequest, "decode response")
	}
	return nil
}

func queryValues(q Query) url.Values {
	values := url.Values{}
	if q.CategoryID != 0 {
		values.Set("category_id", strconv.FormatInt(q.CategoryID, 10))
	}
	if q.Direction != "" {
		values.Set("direction", q.Direction)
	}
	if q.PaymentMethod != "" {
		values.Set("payment_method", q.PaymentMethod)
	}
	if !q.From.IsZero() {
		values.Set("from", q.From.Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		values.Set("to", q.To.Format(time.RFC3339))
	}
	if q.Keyword != "" {
		values.Set("keyword", q.Keyword)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	return values
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
