// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package validate implements the ordered validator chain of the authorize
// and backchannel endpoints. Validators share a mutable context; each one
// may only widen it, and later validators see what earlier ones resolved.
package validate

import (
	"context"
	"time"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/request"
)

// Context accumulates resolved state while a request moves through the
// validator chain.
type Context struct {
	Request *request.Request

	// Client is set by the client validator.
	Client *client.Info

	// RedirectURI and ResponseMode are set once validated; from then on
	// protocol errors are rendered as redirects instead of bare 400s.
	RedirectURI  string
	ResponseMode oidc.ResponseMode

	ResponseTypes []string
	Scopes        []string
	Resources     []string

	CodeChallenge       string
	CodeChallengeMethod string

	Nonce   string
	Prompts []string

	RequestedClaims map[string]any

	ACRValues []string
	MaxAge    time.Duration
	HasMaxAge bool
}

// NewContext wraps a fetched request for validation.
func NewContext(req *request.Request) *Context {
	return &Context{Request: req}
}

// HasResponseType reports whether the resolved response_type includes t.
func (vc *Context) HasResponseType(t string) bool {
	for _, rt := range vc.ResponseTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// Fail attaches the resolved redirect target to the error, when there is
// one, so the transport can render a conformant redirect error.
func (vc *Context) Fail(err *oidc.Error) *oidc.Error {
	if vc.RedirectURI != "" && vc.ResponseMode != "" {
		return err.WithRedirect(vc.RedirectURI, vc.ResponseMode)
	}
	return err
}

// Validator checks one aspect of the request, widening the shared context.
// A nil return means the aspect is valid.
type Validator interface {
	Validate(ctx context.Context, vc *Context) *oidc.Error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, vc *Context) *oidc.Error

// Validate implements Validator.
func (f ValidatorFunc) Validate(ctx context.Context, vc *Context) *oidc.Error {
	return f(ctx, vc)
}

// Chain runs validators in declared order, stopping at the first failure.
type Chain []Validator

// Run validates the request, returning the widened context or the first
// failure (redirect-bound when the redirect target was already resolved).
func (c Chain) Run(ctx context.Context, vc *Context) oidc.Result[*Context] {
	for _, v := range c {
		if err := v.Validate(ctx, vc); err != nil {
			return oidc.Failure[*Context](vc.Fail(err))
		}
	}
	return oidc.Success(vc)
}
