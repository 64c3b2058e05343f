package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

var (
	ErrNotFound    = errors.New("fetch: resource not found")
	ErrServerError = errors.New("fetch: server error")
	ErrNoRange     = errors.New("fetch: server ignored range request")
)

// Options configures the HTTP client.
type Options struct {
	// MaxConnsPerHost caps connections to the origin. Default: 16
	MaxConnsPerHost int

	// HeaderTimeout bounds the wait for response headers. The body read is
	// not bounded; archive transfers can legitimately run for hours.
	// Default: 30s
	HeaderTimeout time.Duration

	// RetryAttempts is the number of retries after the first try. Default: 5
	RetryAttempts int

	// RetryBackoff is the initial backoff, doubled per attempt. Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff caps the backoff. Default: 30s
	RetryMaxBackoff time.Duration
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxConnsPerHost: 16,
		HeaderTimeout:   30 * time.Second,
		RetryAttempts:   5,
		RetryBackoff:    time.Second,
		RetryMaxBackoff: 30 * time.Second,
	}
}

// Client talks to the content origin: size probes, full fetches, and ranged
// fetches for resume. Transient failures are retried with exponential
// backoff and jitter.
type Client struct {
	hc   *http.Client
	opts Options
}

// NewClient creates a client for the given options.
func NewClient(opts Options) *Client {
	transport := &http.Transport{
		MaxConnsPerHost:       opts.MaxConnsPerHost,
		MaxIdleConnsPerHost:   opts.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.HeaderTimeout,
		DisableCompression:    true, // raw bytes; sizes must match the origin's
	}
	return &Client{hc: &http.Client{Transport: transport}, opts: opts}
}

// RemoteSize probes the size of a remote resource with a HEAD request.
func (c *Client) RemoteSize(ctx context.Context, url string) (int64, error) {
	var size int64
	err := c.withRetry(ctx, func() (retryable bool, err error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false, err
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return true, err
		}
		resp.Body.Close()
		if err := checkStatus(resp.StatusCode); err != nil {
			return resp.StatusCode >= 500, err
		}
		size = resp.ContentLength
		return false, nil
	})
	return size, err
}

// Get fetches a resource in full, returning the body and its length.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	var body io.ReadCloser
	var length int64
	err := c.withRetry(ctx, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, err
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return true, err
		}
		if err := checkStatus(resp.StatusCode); err != nil {
			resp.Body.Close()
			return resp.StatusCode >= 500, err
		}
		body, length = resp.Body, resp.ContentLength
		return false, nil
	})
	return body, length, err
}

// GetFrom fetches a resource starting at byte offset via a ranged request,
// returning the body for the remaining tail and its length. An origin that
// answers 200 instead of 206 would silently corrupt an append, so that is an
// error rather than a fallback.
func (c *Client) GetFrom(ctx context.Context, url string, offset int64) (io.ReadCloser, int64, error) {
	var body io.ReadCloser
	var length int64
	err := c.withRetry(ctx, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, err
		}
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		resp, err := c.hc.Do(req)
		if err != nil {
			return true, err
		}
		if resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return false, ErrNoRange
		}
		if resp.StatusCode != http.StatusPartialContent {
			err := checkStatus(resp.StatusCode)
			resp.Body.Close()
			return resp.StatusCode >= 500, err
		}
		body, length = resp.Body, resp.ContentLength
		return false, nil
	})
	return body, length, err
}

func (c *Client) withRetry(ctx context.Context, do func() (retryable bool, err error)) error {
	var lastErr error
	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return err
			}
		}
		retryable, err := do()
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("fetch: giving up after %d attempts: %w", c.opts.RetryAttempts+1, lastErr)
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	default:
		return fmt.Errorf("fetch: unexpected status %d", code)
	}
}
