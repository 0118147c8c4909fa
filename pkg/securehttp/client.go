// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package securehttp

import (
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/signet-dev/signet/pkg/config"
)

// DefaultTimeout is the overall timeout for outbound requests.
const DefaultTimeout = 5 * time.Second

// Client is an http.Client whose transport enforces the guard twice:
// once on the URL before the request leaves, and once on every resolved
// address inside the dialer, so DNS rebinding cannot slip past the first
// check.
type Client struct {
	guard *Guard
	http  *http.Client
}

// validatingTransport rejects requests whose URL fails the guard before
// any connection is attempted.
type validatingTransport struct {
	guard *Guard
	next  http.RoundTripper
}

func (t *validatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.guard.CheckURL(req.URL.String()); err != nil {
		return nil, fmt.Errorf("request blocked: %w", err)
	}
	return t.next.RoundTrip(req)
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	timeout   time.Duration
	transport http.RoundTripper
}

// WithTimeout overrides the overall request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = d }
}

// WithTransport substitutes the inner transport; used by tests.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) { o.transport = rt }
}

// NewClient builds a guarded client from the secure-HTTP options.
func NewClient(cfg config.SecureHTTPOptions, opts ...ClientOption) *Client {
	guard := NewGuard(cfg)

	options := &clientOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(options)
	}

	inner := options.transport
	if inner == nil {
		dialer := &net.Dialer{
			Control: func(_, address string, _ syscall.RawConn) error {
				return guard.CheckAddress(address)
			},
		}
		inner = &http.Transport{
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   options.timeout,
			ResponseHeaderTimeout: options.timeout,
		}
	}

	return &Client{
		guard: guard,
		http: &http.Client{
			Transport: &validatingTransport{guard: guard, next: inner},
			Timeout:   options.timeout,
			// Redirect targets get the same scrutiny as the original URL.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return guard.CheckURL(req.URL.String())
			},
		},
	}
}

// Do performs the request through the guarded transport.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// Guard exposes the guard for pre-flight checks without a request.
func (c *Client) Guard() *Guard {
	return c.guard
}

// HTTPClient exposes the underlying guarded http.Client for libraries
// that take one, such as the JWKS cache.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}
