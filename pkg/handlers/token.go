// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/signet-dev/signet/pkg/ciba"
	"github.com/signet-dev/signet/pkg/client/clientauth"
	"github.com/signet-dev/signet/pkg/grants"
	"github.com/signet-dev/signet/pkg/oidc"
)

// TokenHandler serves the token endpoint: client authentication, grant
// dispatch, scope/resource reconciliation and response finalization.
type TokenHandler struct {
	auth       *clientauth.Authenticator
	dispatcher *grants.Dispatcher
	processor  *Processor

	// coordinator enables long-polling for CIBA requests; nil disables it.
	coordinator *ciba.Coordinator
	longPoll    time.Duration

	timeout time.Duration
}

// NewTokenHandler creates the handler. A nil coordinator or non-positive
// longPoll turns CIBA long-polling off.
func NewTokenHandler(auth *clientauth.Authenticator, dispatcher *grants.Dispatcher, processor *Processor, coordinator *ciba.Coordinator, longPoll, timeout time.Duration) *TokenHandler {
	return &TokenHandler{
		auth:        auth,
		dispatcher:  dispatcher,
		processor:   processor,
		coordinator: coordinator,
		longPoll:    longPoll,
		timeout:     timeout,
	}
}

// ServeHTTP implements http.Handler.
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	creds := clientauth.FromHTTPRequest(r)
	clientResult := h.auth.Authenticate(ctx, creds)
	if !clientResult.IsSuccess() {
		writeOAuthError(w, clientResult.Err())
		return
	}
	info := clientResult.Value()

	req := grants.FromForm(r.PostForm)
	if e := validateResourceParams(req.Resources); e != nil {
		writeOAuthError(w, e)
		return
	}

	result := h.dispatcher.Authorize(ctx, req, info)
	if !result.IsSuccess() && result.Err().Code == oidc.CodeAuthorizationPending &&
		h.coordinator != nil && h.longPoll > 0 {
		// Hold the request open until the backchannel request resolves or
		// the long-poll window closes, then claim once more.
		status, err := h.coordinator.Wait(ctx, req.AuthReqID, h.longPoll)
		if err == nil && status != ciba.StatusPending {
			result = h.dispatcher.Authorize(ctx, req, info)
		}
	}
	if !result.IsSuccess() {
		writeOAuthError(w, result.Err())
		return
	}
	authorized := result.Value()

	if e := reconcileGrant(req, authorized); e != nil {
		writeOAuthError(w, e)
		return
	}

	resp, e := h.processor.Process(ctx, req, authorized, info)
	if e != nil {
		writeOAuthError(w, e)
		return
	}
	setNoStore(w)
	writeJSON(w, http.StatusOK, resp)
}

// validateResourceParams applies the top-level RFC 8707 syntax checks before
// any grant handler runs.
func validateResourceParams(resources []string) *oidc.Error {
	for _, raw := range resources {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Fragment != "" {
			return oidc.ErrInvalidTarget.WithDescription("Resource %q must be an absolute URI without a fragment.", raw)
		}
	}
	return nil
}

// reconcileGrant narrows the grant to the intersection of what the token
// request asks for and what was previously granted. An empty request
// inherits the grant unchanged; an empty intersection is an error.
func reconcileGrant(req *grants.TokenRequest, authorized *grants.Authorized) *oidc.Error {
	grantCtx := authorized.Grant.Context

	if len(req.Scopes) > 0 {
		narrowed := intersect(req.Scopes, grantCtx.Scopes)
		if len(narrowed) == 0 {
			return oidc.ErrInvalidScope.WithDescription("The requested scopes exceed the granted ones.")
		}
		grantCtx.Scopes = narrowed
	}
	if len(req.Resources) > 0 {
		narrowed := intersect(req.Resources, grantCtx.Resources)
		if len(narrowed) == 0 {
			return oidc.ErrInvalidTarget.WithDescription("The requested resources exceed the granted ones.")
		}
		grantCtx.Resources = narrowed
	}
	return nil
}

func intersect(requested, granted []string) []string {
	var out []string
	for _, s := range requested {
		if slices.Contains(granted, s) {
			out = append(out, s)
		}
	}
	return out
}
