// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package request models the authorization request and the fetcher chain
// that resolves its three indirection forms: pushed request URNs, remote
// request_uri documents, and inline JWT request objects.
package request

import (
	"net/url"
	"strings"
)

// Parameter names of the authorization request.
const (
	ParamClientID            = "client_id"
	ParamResponseType        = "response_type"
	ParamResponseMode        = "response_mode"
	ParamRedirectURI         = "redirect_uri"
	ParamScope               = "scope"
	ParamState               = "state"
	ParamNonce               = "nonce"
	ParamPrompt              = "prompt"
	ParamMaxAge              = "max_age"
	ParamACRValues           = "acr_values"
	ParamClaims              = "claims"
	ParamResource            = "resource"
	ParamCodeChallenge       = "code_challenge"
	ParamCodeChallengeMethod = "code_challenge_method"
	ParamRequest             = "request"
	ParamRequestURI          = "request_uri"
	ParamLoginHint           = "login_hint"
	ParamIDTokenHint         = "id_token_hint"
)

// knownParams is the set of recognized authorization request parameters.
var knownParams = map[string]struct{}{
	ParamClientID: {}, ParamResponseType: {}, ParamResponseMode: {},
	ParamRedirectURI: {}, ParamScope: {}, ParamState: {}, ParamNonce: {},
	ParamPrompt: {}, ParamMaxAge: {}, ParamACRValues: {}, ParamClaims: {},
	ParamResource: {}, ParamCodeChallenge: {}, ParamCodeChallengeMethod: {},
	ParamRequest: {}, ParamRequestURI: {}, ParamLoginHint: {}, ParamIDTokenHint: {},
}

// Request is an authorization request in flight through the fetcher chain.
// Fetchers rewrite Params; validators read through the accessors.
type Request struct {
	Params url.Values
}

// FromValues wraps decoded form/query values.
func FromValues(values url.Values) *Request {
	return &Request{Params: values}
}

// Get returns a single parameter value.
func (r *Request) Get(name string) string {
	return r.Params.Get(name)
}

// Set replaces a parameter value.
func (r *Request) Set(name, value string) {
	r.Params.Set(name, value)
}

// Del removes a parameter.
func (r *Request) Del(name string) {
	r.Params.Del(name)
}

// ClientID returns the client_id parameter.
func (r *Request) ClientID() string { return r.Get(ParamClientID) }

// ResponseTypes returns the space-separated response_type parts.
func (r *Request) ResponseTypes() []string {
	return strings.Fields(r.Get(ParamResponseType))
}

// Scopes returns the space-separated scope parts.
func (r *Request) Scopes() []string {
	return strings.Fields(r.Get(ParamScope))
}

// Resources returns every resource parameter occurrence (RFC 8707 allows
// the parameter to repeat).
func (r *Request) Resources() []string {
	return r.Params[ParamResource]
}

// Prompts returns the space-separated prompt parts.
func (r *Request) Prompts() []string {
	return strings.Fields(r.Get(ParamPrompt))
}

// Clone returns a deep copy; fetchers that rewrite wholesale work on the
// copy so failures leave the original request observable.
func (r *Request) Clone() *Request {
	dup := make(url.Values, len(r.Params))
	for k, v := range r.Params {
		dup[k] = append([]string(nil), v...)
	}
	return &Request{Params: dup}
}
