// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/config"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/tokens"
)

// SessionEnder terminates the host-side user session during RP-initiated
// logout. Optional; a nil ender only clears the session-state cookie.
type SessionEnder interface {
	EndSession(ctx context.Context, sessionID, subject string) error
}

// EndSessionHandler serves RP-initiated logout: it validates the
// id_token_hint and post-logout redirect, ends the session and sends the
// user agent on its way.
type EndSessionHandler struct {
	tokens  *tokens.Service
	clients *client.Store
	ender   SessionEnder
	options *config.Options
}

// NewEndSessionHandler creates the handler.
func NewEndSessionHandler(service *tokens.Service, clients *client.Store, ender SessionEnder, options *config.Options) *EndSessionHandler {
	return &EndSessionHandler{tokens: service, clients: clients, ender: ender, options: options}
}

// ServeHTTP implements http.Handler.
func (h *EndSessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var params url.Values
	switch r.Method {
	case http.MethodGet:
		params = r.URL.Query()
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, oidc.ErrInvalidRequest.WithDescription("The request body could not be parsed."))
			return
		}
		params = r.PostForm
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	// An empty hint string is treated as an absent hint.
	var hint *tokens.Claims
	if raw := params.Get("id_token_hint"); raw != "" {
		claims, err := h.tokens.Parse(ctx, raw, tokens.TypeIDToken)
		if err != nil {
			slog.DebugContext(ctx, "id_token_hint rejected", "error", err)
		} else {
			hint = claims
		}
	}

	if hint != nil && h.ender != nil {
		if err := h.ender.EndSession(ctx, hint.SessionID, hint.Subject); err != nil {
			slog.ErrorContext(ctx, "failed to end the user session", "sid", hint.SessionID, "error", err)
		}
	}

	// Expire the session-state cookie the check-session iframe watches.
	http.SetCookie(w, &http.Cookie{
		Name:     h.options.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})

	redirect := params.Get("post_logout_redirect_uri")
	if redirect != "" && hint != nil {
		clientID := ""
		if len(hint.Audience) > 0 {
			clientID = hint.Audience[0]
		}
		info, err := h.clients.Get(ctx, clientID)
		if err == nil && info.MatchPostLogoutRedirectURI(redirect) {
			target, err := url.Parse(redirect)
			if err == nil {
				if state := params.Get("state"); state != "" {
					q := target.Query()
					q.Set("state", state)
					target.RawQuery = q.Encode()
				}
				http.Redirect(w, r, target.String(), http.StatusFound)
				return
			}
		}
		slog.InfoContext(ctx, "post_logout_redirect_uri not honored", "client_id", clientID, "uri", redirect)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<!DOCTYPE html><html><body><p>You have been signed out.</p></body></html>"))
}
