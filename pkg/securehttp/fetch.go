// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package securehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v5"
)

// DefaultMaxResponseSize caps response bodies at 1 MiB.
const DefaultMaxResponseSize = 1 << 20

// maxRetries is the retry budget for transient network errors.
// Protocol-level failures (4xx) are never retried.
const maxRetries = 2

// FetchOption configures a fetch.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	method  string
	headers http.Header
	body    []byte
	maxSize int64
}

// WithMethod sets the HTTP method (default GET).
func WithMethod(method string) FetchOption {
	return func(o *fetchOptions) { o.method = method }
}

// WithHeader adds a request header.
func WithHeader(key, value string) FetchOption {
	return func(o *fetchOptions) { o.headers.Set(key, value) }
}

// WithBody sets the request body.
func WithBody(body []byte) FetchOption {
	return func(o *fetchOptions) { o.body = body }
}

// WithMaxResponseSize overrides the response size cap.
func WithMaxResponseSize(n int64) FetchOption {
	return func(o *fetchOptions) { o.maxSize = n }
}

// FetchBody performs a guarded request and returns the response body and
// content type. Transient transport errors and 5xx responses are retried
// with exponential backoff, at most twice. Non-2xx responses and empty
// bodies are errors.
func FetchBody(ctx context.Context, c *Client, rawURL string, opts ...FetchOption) ([]byte, string, error) {
	options := &fetchOptions{
		method:  http.MethodGet,
		headers: make(http.Header),
		maxSize: DefaultMaxResponseSize,
	}
	for _, opt := range opts {
		opt(options)
	}

	// Fail before any network activity when the URL itself is blocked.
	if err := c.Guard().CheckURL(rawURL); err != nil {
		return nil, "", fmt.Errorf("request blocked: %w", err)
	}

	type response struct {
		body        []byte
		contentType string
	}

	operation := func() (response, error) {
		var bodyReader io.Reader
		if options.body != nil {
			bodyReader = bytes.NewReader(options.body)
		}
		req, err := http.NewRequestWithContext(ctx, options.method, rawURL, bodyReader)
		if err != nil {
			return response{}, backoff.Permanent(err)
		}
		for key, values := range options.headers {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}

		resp, err := c.Do(req)
		if err != nil {
			// Guard rejections are permanent; transport faults retry.
			if ctx.Err() != nil {
				return response{}, backoff.Permanent(err)
			}
			return response{}, err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, options.maxSize))
		if err != nil {
			return response{}, err
		}

		if resp.StatusCode >= 500 {
			return response{}, fmt.Errorf("upstream returned status %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return response{}, backoff.Permanent(fmt.Errorf("upstream returned status %d", resp.StatusCode))
		}
		if len(data) == 0 {
			return response{}, backoff.Permanent(fmt.Errorf("upstream returned an empty body"))
		}
		return response{body: data, contentType: resp.Header.Get("Content-Type")}, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxRetries+1),
	)
	if err != nil {
		return nil, "", err
	}
	return result.body, result.contentType, nil
}

// FetchJSON performs a guarded request and decodes the JSON response.
func FetchJSON[T any](ctx context.Context, c *Client, rawURL string, opts ...FetchOption) (T, error) {
	var out T
	opts = append(opts, WithHeader("Accept", "application/json"))
	body, _, err := FetchBody(ctx, c, rawURL, opts...)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

// Post performs a guarded POST and reports the status code. Used by the
// CIBA notifier, which cares about delivery, not response content.
func Post(ctx context.Context, c *Client, rawURL string, contentType string, body []byte, bearer string) (int, error) {
	if err := c.Guard().CheckURL(rawURL); err != nil {
		return 0, fmt.Errorf("request blocked: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", contentType)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, DefaultMaxResponseSize))
	return resp.StatusCode, nil
}
