// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/registry"
	"github.com/signet-dev/signet/pkg/tokens"
)

// ProfileProvider is the host's user directory: it returns the claims the
// given scopes entitle a caller to, keyed by standard claim names.
type ProfileProvider interface {
	UserClaims(ctx context.Context, subject string, scopes []string) (map[string]any, error)
}

// UserInfoHandler serves the userinfo endpoint: bearer-token authenticated,
// scope-filtered claims as JSON.
type UserInfoHandler struct {
	tokens   *tokens.Service
	registry *registry.Registry
	profiles ProfileProvider
}

// NewUserInfoHandler creates the handler.
func NewUserInfoHandler(service *tokens.Service, reg *registry.Registry, profiles ProfileProvider) *UserInfoHandler {
	return &UserInfoHandler{tokens: service, registry: reg, profiles: profiles}
}

// ServeHTTP implements http.Handler.
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	raw := bearerToken(r)
	if raw == "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, oidc.ErrorResponse{Error: "invalid_token", ErrorDescription: "An access token is required."})
		return
	}

	claims, err := h.tokens.Parse(ctx, raw, tokens.TypeAccessToken)
	if err != nil {
		h.unauthorized(w, "The access token is invalid or expired.")
		return
	}
	status, err := h.registry.Status(ctx, claims.JWTID)
	if err != nil || status != registry.StatusActive {
		h.unauthorized(w, "The access token was revoked.")
		return
	}
	if !slices.Contains(claims.Scopes, oidc.ScopeOpenID) {
		h.unauthorized(w, "The access token does not carry the openid scope.")
		return
	}

	out := map[string]any{"sub": claims.Subject}
	if h.profiles != nil {
		profile, err := h.profiles.UserClaims(ctx, claims.Subject, claims.Scopes)
		if err != nil {
			writeOAuthError(w, oidc.ErrServerError)
			return
		}
		for name, value := range profile {
			if name == "sub" {
				continue
			}
			out[name] = value
		}
	}
	setNoStore(w)
	writeJSON(w, http.StatusOK, out)
}

func (h *UserInfoHandler) unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	writeJSON(w, http.StatusUnauthorized, oidc.ErrorResponse{Error: "invalid_token", ErrorDescription: description})
}

// bearerToken pulls the access token from the Authorization header or, for
// POST, the form body.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token
		}
		return ""
	}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			return r.PostForm.Get("access_token")
		}
	}
	return ""
}
