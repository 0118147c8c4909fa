// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"strings"

	"github.com/signet-dev/signet/pkg/client/clientauth"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/registry"
	"github.com/signet-dev/signet/pkg/tokens"
)

// IntrospectionHandler serves RFC 7662 token introspection. Callers must be
// confidential clients; everything about an unusable token collapses into
// {"active": false}.
type IntrospectionHandler struct {
	auth     *clientauth.Authenticator
	tokens   *tokens.Service
	registry *registry.Registry
}

// NewIntrospectionHandler creates the handler.
func NewIntrospectionHandler(auth *clientauth.Authenticator, service *tokens.Service, reg *registry.Registry) *IntrospectionHandler {
	return &IntrospectionHandler{auth: auth, tokens: service, registry: reg}
}

type introspectionResponse struct {
	Active    bool     `json:"active"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	Subject   string   `json:"sub,omitempty"`
	Audience  []string `json:"aud,omitempty"`
	Issuer    string   `json:"iss,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	JWTID     string   `json:"jti,omitempty"`
}

// ServeHTTP implements http.Handler.
func (h *IntrospectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	creds := clientauth.FromHTTPRequest(r)
	clientResult := h.auth.Authenticate(ctx, creds)
	if !clientResult.IsSuccess() {
		writeOAuthError(w, clientResult.Err())
		return
	}
	if clientResult.Value().Public() {
		writeOAuthError(w, oidc.ErrInvalidClient.WithDescription("Public clients may not introspect tokens."))
		return
	}

	raw := r.PostForm.Get("token")
	if raw == "" {
		writeOAuthError(w, oidc.ErrInvalidRequest.WithDescription("token is required."))
		return
	}

	setNoStore(w)

	claims, err := h.tokens.Parse(ctx, raw, "")
	if err != nil {
		writeJSON(w, http.StatusOK, introspectionResponse{Active: false})
		return
	}
	status, err := h.registry.Status(ctx, claims.JWTID)
	if err != nil || status != registry.StatusActive {
		writeJSON(w, http.StatusOK, introspectionResponse{Active: false})
		return
	}

	writeJSON(w, http.StatusOK, introspectionResponse{
		Active:    true,
		Scope:     strings.Join(claims.Scopes, " "),
		ClientID:  claims.ClientID,
		Subject:   claims.Subject,
		Audience:  claims.Audience,
		Issuer:    claims.Issuer,
		TokenType: oidc.TokenTypeBearer,
		ExpiresAt: claims.ExpiresAt.Unix(),
		IssuedAt:  claims.IssuedAt.Unix(),
		JWTID:     claims.JWTID,
	})
}
