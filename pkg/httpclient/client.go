// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpclient provides a retrying HTTP client for provider APIs.
// Retries are applied only to idempotent failures (rate limits, transient
// server errors); everything else is returned to the caller unchanged.
package httpclient

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"
)

// RetryStrategy classifies how a failed request should be retried.
type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	ConservativeRetry
	SmartRetry
)

// RateLimitInfo carries provider rate-limit hints parsed from response headers.
type RateLimitInfo struct {
	RetryAfter time.Duration
	ResetTime  int64
}

// Client wraps an http.Client with status-aware retries.
type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

// New creates a retrying client. Defaults: 60s timeout, 3 retries, 2s base delay.
func New(opts ...Option) *Client {
	client := &Client{
		client:     &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
		baseDelay:  2 * time.Second,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// ClassifyStatus maps an HTTP status code to a retry strategy.
func ClassifyStatus(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// Do executes the request, retrying retryable failures with backoff.
// Requests must set GetBody for the body to be replayed on retry.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Transport errors are not retried; the context may be done.
			return nil, err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		strategy := ClassifyStatus(resp.StatusCode)
		if strategy == NoRetry {
			return resp, nil
		}

		lastResp = resp
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)

		if attempt >= c.maxRetries {
			break
		}

		retryInfo := parseRateLimitHeaders(resp.Header)
		resp.Body.Close()

		delay := c.calculateDelay(strategy, attempt, retryInfo)
		if delay <= 0 {
			return resp, nil
		}

		slog.Debug("Retrying HTTP request",
			"status", resp.StatusCode,
			"delay", delay,
			"attempt", attempt+1,
			"max", c.maxRetries)
		time.Sleep(delay)
	}

	return lastResp, &RetryableError{
		StatusCode: statusCodeOf(lastResp),
		Message:    fmt.Sprintf("max HTTP retries (%d) exceeded", c.maxRetries),
		Err:        lastErr,
	}
}

func statusCodeOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func (c *Client) calculateDelay(strategy RetryStrategy, attempt int, retryInfo RateLimitInfo) time.Duration {
	switch strategy {
	case SmartRetry:
		if retryInfo.RetryAfter > 0 {
			return retryInfo.RetryAfter
		}
		if retryInfo.ResetTime > 0 {
			if delay := time.Until(time.Unix(retryInfo.ResetTime, 0)); delay > 0 {
				return delay
			}
		}
		exponentialDelay := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		jitter := time.Duration(float64(exponentialDelay) * 0.1)
		return exponentialDelay + jitter

	case ConservativeRetry:
		if attempt >= 2 {
			return 0
		}
		return time.Duration(2+attempt) * time.Second

	default:
		return 0
	}
}

// parseRateLimitHeaders reads the standard Retry-After header plus the
// OpenAI-style x-ratelimit-reset-requests epoch header.
func parseRateLimitHeaders(headers http.Header) RateLimitInfo {
	var info RateLimitInfo

	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			info.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	if reset := headers.Get("x-ratelimit-reset-requests"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			info.ResetTime = epoch
		}
	}

	return info
}
