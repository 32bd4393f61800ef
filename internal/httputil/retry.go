// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the HTTP client and retry policy shared by every
// external collaborator (LLM, search, quotes, site scraping).
package httputil

import (
	"context"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/pdiddy/equity-research/pkg/types"
)

// RetryBaseDelay is the first backoff interval; it doubles each attempt.
// Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

// MaxRetryAfter caps how long a server-supplied Retry-After can make us wait.
var MaxRetryAfter = time.Minute

const (
	defaultMaxRetries = 3
	defaultTimeout    = 30 * time.Second
	defaultUserAgent  = "equity-research/1.0"
)

// Retryable reports whether status is worth retrying: 429 and 5xx except
// 501 Not Implemented.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests ||
		(status >= 500 && status != http.StatusNotImplemented)
}

// DoWithRetry executes req and retries retryable responses with exponential
// backoff starting at RetryBaseDelay. A Retry-After header in seconds
// replaces the computed delay, capped at MaxRetryAfter.
//
// When maxRetries is 0 the default (3) is used. The body of a retried
// response is drained and closed before sleeping. If ctx ends during a wait
// the function returns ctx.Err(). After exhausting retries the last response
// is returned so the caller can inspect it. Requests with a body must set
// GetBody (http.NewRequest does for bytes and strings readers).
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		r := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = body
		}

		resp, err := client.Do(r)
		if err != nil {
			return nil, err
		}
		if !Retryable(resp.StatusCode) || attempt >= maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		wait := backoff(attempt, resp.Header.Get("Retry-After"))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func backoff(attempt int, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		if d > MaxRetryAfter {
			d = MaxRetryAfter
		}
		return d
	}
	return time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
}

// userAgentTransport sets a User-Agent on requests that do not carry one.
type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.next.RoundTrip(req)
}

// NewClient returns an http.Client configured from cfg.
func NewClient(cfg types.HTTPConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	agent := cfg.UserAgent
	if agent == "" {
		agent = defaultUserAgent
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: userAgentTransport{agent: agent, next: http.DefaultTransport},
	}
}
