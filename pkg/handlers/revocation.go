// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/signet-dev/signet/pkg/client/clientauth"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/registry"
	"github.com/signet-dev/signet/pkg/tokens"
)

// RevocationHandler serves RFC 7009 token revocation. Unknown, foreign and
// already-dead tokens all yield the same silent 200, so the endpoint leaks
// nothing about token validity.
type RevocationHandler struct {
	auth     *clientauth.Authenticator
	tokens   *tokens.Service
	registry *registry.Registry
}

// NewRevocationHandler creates the handler.
func NewRevocationHandler(auth *clientauth.Authenticator, service *tokens.Service, reg *registry.Registry) *RevocationHandler {
	return &RevocationHandler{auth: auth, tokens: service, registry: reg}
}

// ServeHTTP implements http.Handler.
func (h *RevocationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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
	info := clientResult.Value()

	raw := r.PostForm.Get("token")
	if raw == "" {
		writeOAuthError(w, oidc.ErrInvalidRequest.WithDescription("token is required."))
		return
	}

	claims, err := h.tokens.Parse(ctx, raw, "")
	if err != nil || claims.ClientID != info.ID {
		// Not ours, not theirs, or already expired: silently done.
		setNoStore(w)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.registry.MarkRevoked(ctx, claims.JWTID, claims.ExpiresAt); err != nil {
		slog.ErrorContext(ctx, "failed to revoke token", "jti", claims.JWTID, "error", err)
		writeOAuthError(w, oidc.ErrServerError)
		return
	}
	setNoStore(w)
	w.WriteHeader(http.StatusOK)
}
