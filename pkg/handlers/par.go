// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/signet-dev/signet/pkg/client/clientauth"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/par"
	"github.com/signet-dev/signet/pkg/request"
	"github.com/signet-dev/signet/pkg/validate"
)

// PARHandler serves the pushed authorization request endpoint (RFC 9126):
// the authorize pipeline up to and including validation, with the validated
// request parked under a single-use URN.
type PARHandler struct {
	auth  *clientauth.Authenticator
	chain validate.Chain
	store *par.Store

	// fetcher resolves request objects pushed inline; nil skips the step.
	fetcher request.Fetcher
}

// NewPARHandler creates the handler.
func NewPARHandler(auth *clientauth.Authenticator, chain validate.Chain, store *par.Store, fetcher request.Fetcher) *PARHandler {
	return &PARHandler{auth: auth, chain: chain, store: store, fetcher: fetcher}
}

type parResponse struct {
	RequestURI string `json:"request_uri"`
	ExpiresIn  int    `json:"expires_in"`
}

// ServeHTTP implements http.Handler.
func (h *PARHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	req := request.FromValues(r.PostForm)
	if req.Get(request.ParamRequestURI) != "" {
		// RFC 9126 section 2.1: a pushed request cannot itself be a
		// reference.
		writeOAuthError(w, oidc.ErrInvalidRequest.WithDescription("request_uri is not allowed here."))
		return
	}
	if id := req.ClientID(); id != "" && id != info.ID {
		writeOAuthError(w, oidc.ErrInvalidRequest.WithDescription("client_id does not match the authenticated client."))
		return
	}
	req.Set(request.ParamClientID, info.ID)

	if h.fetcher != nil {
		fetched := h.fetcher.Fetch(ctx, req)
		if !fetched.IsSuccess() {
			writeOAuthError(w, fetched.Err())
			return
		}
		req = fetched.Value()
	}

	validated := h.chain.Run(ctx, validate.NewContext(req))
	if !validated.IsSuccess() {
		// PAR errors are always direct JSON; there is no user agent to
		// redirect.
		e := *validated.Err()
		e.RedirectURI = ""
		e.ResponseMode = ""
		writeOAuthError(w, &e)
		return
	}

	urn, expiresIn, err := h.store.Push(ctx, &par.StoredRequest{ClientID: info.ID, Params: req.Params})
	if err != nil {
		writeOAuthError(w, oidc.ErrServerError.WithDescription("Failed to store the request."))
		return
	}
	setNoStore(w)
	writeJSON(w, http.StatusCreated, parResponse{RequestURI: urn, ExpiresIn: expiresIn})
}
