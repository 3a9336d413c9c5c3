// Package httpretry provides an HTTP transport with bounded retries,
// exponential backoff, and jitter for calls that leave the box: AI
// provider completions and topic feed fetches.
package httpretry

import (
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// Transport retries transient failures behind a standard *http.Client,
// so callers that only accept a concrete client still get retries.
//
// Retried: network errors and 500/502/503/504. Deliberately not
// retried: 429. Rate limits are handled a layer up by rotating to
// another provider key; hammering the same exhausted key only burns
// the request deadline.
type Transport struct {
	base       http.RoundTripper
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewTransport wraps base with retry logic. A nil base uses
// http.DefaultTransport. maxRetries is the number of attempts after
// the first (default 3).
func NewTransport(base http.RoundTripper, maxRetries int) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Transport{
		base:       base,
		maxRetries: maxRetries,
		baseDelay:  1 * time.Second,
		maxDelay:   30 * time.Second,
	}
}

// NewClient returns an *http.Client whose transport retries transient
// failures. The timeout spans all attempts including backoff.
func NewClient(timeout time.Duration, maxRetries int) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(nil, maxRetries),
	}
}

// RoundTrip implements http.RoundTripper. Requests with a body are
// only retried when GetBody is set (true for the usual bytes/strings
// readers); otherwise the first response or error is returned as-is.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			if req.Body != nil && req.GetBody == nil {
				break
			}

			delay := t.calculateDelay(attempt)
			log.Printf("httpretry: retry attempt %d/%d for %s %s%s (waiting %s)",
				attempt, t.maxRetries, req.Method, req.URL.Host, req.URL.Path, delay)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		attemptReq := req
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("httpretry: reset request body: %w", err)
			}
			attemptReq = req.Clone(req.Context())
			attemptReq.Body = body
		}

		resp, err := t.base.RoundTrip(attemptReq)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		// Success or a non-retryable status: hand it to the caller.
		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		// Out of attempts, or the body cannot be replayed: return the
		// response as-is so the caller can read the status and body.
		if attempt == t.maxRetries || (req.Body != nil && req.GetBody == nil) {
			return resp, nil
		}

		// Drain for connection reuse, then go around.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// calculateDelay returns the backoff for the given attempt: full
// jitter over min(maxDelay, baseDelay * 2^(attempt-1)), floored at
// 100ms to avoid busy-looping.
func (t *Transport) calculateDelay(attempt int) time.Duration {
	expDelay := float64(t.baseDelay) * math.Pow(2, float64(attempt-1))
	if expDelay > float64(t.maxDelay) {
		expDelay = float64(t.maxDelay)
	}

	jittered := time.Duration(rand.Float64() * expDelay)
	if jittered < 100*time.Millisecond {
		jittered = 100 * time.Millisecond
	}
	return jittered
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
