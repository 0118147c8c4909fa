// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package oidc

import "net/url"

// ResponseMode describes how authorization response parameters are returned
// to the client.
type ResponseMode string

// Response modes per OAuth 2.0 Multiple Response Type Encoding Practices.
const (
	ResponseModeQuery    ResponseMode = "query"
	ResponseModeFragment ResponseMode = "fragment"
	ResponseModeFormPost ResponseMode = "form_post"
)

// AuthorizeResponse is the outcome of a successful (or redirectable failed)
// authorization request. The transport layer renders it as a 302 redirect
// with query or fragment parameters, or as a self-submitting form_post page.
type AuthorizeResponse struct {
	RedirectURI string
	Mode        ResponseMode
	Params      url.Values
}

// TokenResponse is the JSON body returned by the token endpoint and pushed
// to CIBA clients in push delivery mode.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	AuthReqID    string `json:"auth_req_id,omitempty"`
}

// ErrorResponse is the JSON error body shared by all JSON endpoints.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}
