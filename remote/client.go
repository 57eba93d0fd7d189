// Package remote provides the retrying HTTP transport shared by the lookup
// service client and the graph store client.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// maxResponseSize limits response bodies to prevent memory exhaustion.
const maxResponseSize = 32 * 1024 * 1024

// Config configures a Client.
type Config struct {
	// Service names the remote in error messages ("sparql", "store").
	Service string

	// Timeout bounds a single HTTP round-trip. Zero disables the timeout.
	Timeout time.Duration

	// Username and Password enable HTTP basic auth when Username is set.
	Username string
	Password string

	// Headers are sent with every request.
	Headers map[string]string

	Retry RetryConfig
}

// Client performs authenticated HTTP calls with retry on transient failures.
type Client struct {
	cfg    Config
	http   *retryablehttp.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets the underlying HTTP client (tests use httptest clients).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http.HTTPClient = hc
	}
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Service == "" {
		cfg.Service = "remote"
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	rc.RetryMax = cfg.Retry.MaxAttempts - 1
	rc.RetryWaitMin = cfg.Retry.BackoffBase
	rc.RetryWaitMax = cfg.Retry.MaxBackoff
	rc.Backoff = cfg.Retry.backoff
	rc.CheckRetry = retryablehttp.DefaultRetryPolicy
	rc.ErrorHandler = returnLastResponse

	c := &Client{
		cfg:    cfg,
		http:   rc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	rc.Logger = c.logger

	return c
}

// Do executes a request and returns the response body of a 2xx reply.
// Network failures and 429/5xx replies surface as TransientError after
// retries are exhausted; other statuses are FatalError.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, header http.Header) ([]byte, error) {
	var raw any
	if body != nil {
		raw = bytes.NewReader(body)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, raw)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create %s request: %w", c.cfg.Service, err))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewTransientError(fmt.Errorf("%s request failed: %w", c.cfg.Service, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read %s response body: %w", c.cfg.Service, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyHTTPError(c.cfg.Service, resp.StatusCode, respBody)
	}

	return respBody, nil
}

// returnLastResponse hands the final response of an exhausted retry loop back
// to Do so its status can be classified.
func returnLastResponse(resp *http.Response, err error, _ int) (*http.Response, error) {
	if resp != nil {
		return resp, nil
	}
	return nil, err
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(service string, statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := &StatusError{Service: service, Code: statusCode, Body: bodyStr}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	default:
		// Auth, bad request and not found are not retryable.
		return NewFatalError(err)
	}
}
