// Package model is the client for the OpenAI-compatible chat completion
// backend used for intent rewriting and reflection.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/tallyhq/tally/pkg/errors"
)

const (
	defaultTimeout = 60 * time.Second
	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second

	// Conservative default so a burst of turns never trips provider limits.
	defaultRateLimit = rate.Limit(2)
	defaultBurstSize = 5
)

// Completer is the surface the intent rewriter and reflector consume.
// *Client is the production implementation; tests use fakes.
type Completer interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// DefaultTransport returns an http.Transport with tuned connection pool
// settings for a long-lived model client.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithRateLimit overrides the request rate limit.
func WithRateLimit(limit rate.Limit, burst int) ClientOption {
	return func(cl *Client) {
		cl.rateLimiter = rate.NewLimiter(limit, burst)
	}
}

// NewClient creates a model client. model is the model identifier sent on
// every request.
func NewClient(baseURL, apiKey, model string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		rateLimiter: rate.NewLimiter(defaultRateLimit, defaultBurstSize),
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: DefaultTransport(),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Complete sends a chat completion request and returns the response.
// Retries on 429 and 5xx with exponential backoff.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	req.Stream = false

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "marshal chat request")
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.doOnce(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errors.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, body []byte) (*ChatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "build chat request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(err, errors.ErrCodeLMUnavailable, "model request failed").
			WithRetryable(true)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeLMUnavailable, "read model response").
			WithRetryable(true)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.New(errors.ErrCodeLMRateLimit, "model rate limited").
			WithRetryable(true).
			WithContext("status", httpResp.StatusCode)
	case httpResp.StatusCode >= 500:
		return nil, errors.New(errors.ErrCodeLMUnavailable,
			fmt.Sprintf("model backend returned %d", httpResp.StatusCode)).
			WithRetryable(true).
			WithContext("body", string(respBody))
	case httpResp.StatusCode != http.StatusOK:
		return nil, errors.New(errors.ErrCodeLMBadResponse,
			fmt.Sprintf("model backend returned %d", httpResp.StatusCode)).
			WithContext("body", string(respBody))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeLMBadResponse, "decode model response")
	}
	if len(chatResp.Choices) == 0 {
		return nil, errors.New(errors.ErrCodeLMBadResponse, "model returned no choices")
	}
	return &chatResp, nil
}

func retryDelay(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<(attempt-1))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Jitter spreads synchronized retries apart.
	jitter := time.Duration(rand.Int63n(int64(delay) / 4))
	return delay + jitter
}
