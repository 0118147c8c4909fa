// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package grants implements the token endpoint grant handlers and the
// grant-type dispatcher.
package grants

import (
	"context"
	"net/url"
	"strings"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/session"
	"github.com/signet-dev/signet/pkg/tokens"
)

// TokenRequest is the decoded token endpoint form.
type TokenRequest struct {
	GrantType string

	Code         string
	RedirectURI  string
	CodeVerifier string

	RefreshToken string

	AuthReqID string

	Assertion string

	Scopes    []string
	Resources []string
}

// FromForm decodes a token request from form values.
func FromForm(values url.Values) *TokenRequest {
	return &TokenRequest{
		GrantType:    values.Get("grant_type"),
		Code:         values.Get("code"),
		RedirectURI:  values.Get("redirect_uri"),
		CodeVerifier: values.Get("code_verifier"),
		RefreshToken: values.Get("refresh_token"),
		AuthReqID:    values.Get("auth_req_id"),
		Assertion:    values.Get("assertion"),
		Scopes:       strings.Fields(values.Get("scope")),
		Resources:    values["resource"],
	}
}

// Authorized is a grant handler's successful outcome: the grant itself plus
// the artifacts the processor needs for reuse protection and rotation.
type Authorized struct {
	Grant *session.AuthorizedGrant

	// Code is set by the authorization-code handler, so the processor can
	// re-insert the consumed code with its issued-token fingerprints.
	Code string

	// RefreshClaims is set by the refresh-token handler, so the processor
	// can revoke the old jti when the client does not allow reuse.
	RefreshClaims *tokens.Claims
}

// Handler turns one grant type's credentials into an authorized grant.
type Handler interface {
	// GrantType is the grant_type value the handler serves.
	GrantType() string

	Authorize(ctx context.Context, req *TokenRequest, info *client.Info) oidc.Result[*Authorized]
}

// Dispatcher routes token requests to the handler advertising the
// requested grant type.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher builds a dispatcher over the given handlers.
func NewDispatcher(handlers ...Handler) *Dispatcher {
	byType := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		byType[h.GrantType()] = h
	}
	return &Dispatcher{handlers: byType}
}

// GrantTypes lists the grant types the dispatcher serves, for discovery.
func (d *Dispatcher) GrantTypes() []string {
	types := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		types = append(types, t)
	}
	return types
}

// Authorize validates the grant type against the server and the client
// registration, then delegates to the matching handler.
func (d *Dispatcher) Authorize(ctx context.Context, req *TokenRequest, info *client.Info) oidc.Result[*Authorized] {
	if req.GrantType == "" {
		return oidc.Failure[*Authorized](oidc.ErrInvalidRequest.WithDescription("grant_type is required."))
	}
	handler, ok := d.handlers[req.GrantType]
	if !ok {
		return oidc.Failure[*Authorized](oidc.ErrUnsupportedGrantType)
	}
	if !info.AllowsGrantType(req.GrantType) {
		return oidc.Failure[*Authorized](oidc.ErrUnauthorizedClient)
	}
	return handler.Authorize(ctx, req, info)
}
