// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/signet-dev/signet/pkg/ciba"
	"github.com/signet-dev/signet/pkg/client/clientauth"
	"github.com/signet-dev/signet/pkg/oidc"
)

// BackchannelHandler serves the CIBA backchannel authentication endpoint.
type BackchannelHandler struct {
	auth        *clientauth.Authenticator
	coordinator *ciba.Coordinator
	supported   []string
}

// NewBackchannelHandler creates the handler. supportedScopes is the server's
// scope allow-list.
func NewBackchannelHandler(auth *clientauth.Authenticator, coordinator *ciba.Coordinator, supportedScopes []string) *BackchannelHandler {
	return &BackchannelHandler{auth: auth, coordinator: coordinator, supported: supportedScopes}
}

// ServeHTTP implements http.Handler.
func (h *BackchannelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	if !info.AllowsGrantType(oidc.GrantTypeCIBA) {
		writeOAuthError(w, oidc.ErrUnauthorizedClient.WithDescription("The client may not use backchannel authentication."))
		return
	}

	form := r.PostForm
	scopes := strings.Fields(form.Get("scope"))
	if len(scopes) == 0 {
		writeOAuthError(w, oidc.ErrInvalidRequest.WithDescription("scope is required."))
		return
	}
	for _, s := range scopes {
		if !slices.Contains(h.supported, s) {
			writeOAuthError(w, oidc.ErrInvalidScope.WithDescription("Scope %q is not supported.", s))
			return
		}
	}
	if !info.AllowsScopes(scopes) {
		writeOAuthError(w, oidc.ErrInvalidScope.WithDescription("The client may not request these scopes."))
		return
	}

	resources := form["resource"]
	if e := validateResourceParams(resources); e != nil {
		writeOAuthError(w, e)
		return
	}
	if !info.AllowsResources(resources) {
		writeOAuthError(w, oidc.ErrInvalidTarget.WithDescription("The client may not request these resources."))
		return
	}

	loginHint := firstNonEmpty(form.Get("login_hint"), form.Get("login_hint_token"), form.Get("id_token_hint"))
	if loginHint == "" {
		writeOAuthError(w, oidc.ErrInvalidRequest.WithDescription("One of login_hint, login_hint_token or id_token_hint is required."))
		return
	}

	mode := info.BackchannelTokenDeliveryMode
	if mode == "" {
		mode = oidc.DeliveryModePoll
	}
	notificationToken := form.Get("client_notification_token")
	if (mode == oidc.DeliveryModePing || mode == oidc.DeliveryModePush) && notificationToken == "" {
		writeOAuthError(w, oidc.ErrInvalidRequest.WithDescription("client_notification_token is required for %s delivery.", mode))
		return
	}

	var requestedExpiry time.Duration
	if raw := form.Get("requested_expiry"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seconds <= 0 {
			writeOAuthError(w, oidc.ErrInvalidRequest.WithDescription("requested_expiry must be a positive integer."))
			return
		}
		requestedExpiry = time.Duration(seconds) * time.Second
	}

	resp, protoErr := h.coordinator.Initiate(ctx, ciba.InitiateParams{
		Client:            info,
		Scopes:            scopes,
		Resources:         resources,
		LoginHint:         loginHint,
		BindingMessage:    form.Get("binding_message"),
		RequestedExpiry:   requestedExpiry,
		NotificationToken: notificationToken,
	})
	if protoErr != nil {
		writeOAuthError(w, protoErr)
		return
	}
	setNoStore(w)
	writeJSON(w, http.StatusOK, resp)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
