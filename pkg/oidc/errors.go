// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package oidc

import (
	"fmt"
	"net/http"
)

// Error codes from the OAuth 2.0 / OpenID Connect registries.
const (
	CodeInvalidRequest           = "invalid_request"
	CodeInvalidClient            = "invalid_client"
	CodeInvalidGrant             = "invalid_grant"
	CodeInvalidScope             = "invalid_scope"
	CodeUnauthorizedClient       = "unauthorized_client"
	CodeUnsupportedGrantType     = "unsupported_grant_type"
	CodeUnsupportedResponseType  = "unsupported_response_type"
	CodeAccessDenied             = "access_denied"
	CodeConsentRequired          = "consent_required"
	CodeLoginRequired            = "login_required"
	CodeInteractionRequired      = "interaction_required"
	CodeAccountSelectionRequired = "account_selection_required"
	CodeInvalidRequestObject     = "invalid_request_object"
	CodeInvalidRequestURI        = "invalid_request_uri"
	CodeInvalidTarget            = "invalid_target"
	CodeInvalidClientMetadata    = "invalid_client_metadata"
	CodeSlowDown                 = "slow_down"
	CodeAuthorizationPending     = "authorization_pending"
	CodeExpiredToken             = "expired_token"
	CodeServerError              = "server_error"
)

// Error is a protocol-level failure. It carries the wire triplet
// (error, error_description, error_uri) plus, once the authorize endpoint
// has validated a redirect target, the redirect URI and response mode the
// error must be rendered with.
type Error struct {
	Code         string
	Description  string
	URI          string
	RedirectURI  string
	ResponseMode ResponseMode
	Status       int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// StatusCode returns the HTTP status to use on JSON endpoints,
// following RFC 6749 section 5.2.
func (e *Error) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	return http.StatusBadRequest
}

// WithDescription returns a copy of the error with the given description.
func (e *Error) WithDescription(format string, args ...any) *Error {
	dup := *e
	dup.Description = fmt.Sprintf(format, args...)
	return &dup
}

// WithRedirect returns a copy of the error bound to a validated redirect URI
// and response mode, so the transport can render a protocol-conformant
// redirect error instead of a bare 400.
func (e *Error) WithRedirect(redirectURI string, mode ResponseMode) *Error {
	dup := *e
	dup.RedirectURI = redirectURI
	dup.ResponseMode = mode
	return &dup
}

// Redirectable reports whether the error carries a validated redirect target.
func (e *Error) Redirectable() bool {
	return e.RedirectURI != ""
}

// Base protocol errors. Handlers derive concrete errors with WithDescription.
var (
	ErrInvalidRequest           = &Error{Code: CodeInvalidRequest, Description: "The request is missing a required parameter or is otherwise malformed."}
	ErrInvalidClient            = &Error{Code: CodeInvalidClient, Description: "Client authentication failed.", Status: http.StatusUnauthorized}
	ErrInvalidGrant             = &Error{Code: CodeInvalidGrant, Description: "The provided authorization grant is invalid, expired or revoked."}
	ErrInvalidScope             = &Error{Code: CodeInvalidScope, Description: "The requested scope is invalid, unknown or malformed."}
	ErrUnauthorizedClient       = &Error{Code: CodeUnauthorizedClient, Description: "The client is not authorized to use this grant type."}
	ErrUnsupportedGrantType     = &Error{Code: CodeUnsupportedGrantType, Description: "The authorization grant type is not supported."}
	ErrUnsupportedResponseType  = &Error{Code: CodeUnsupportedResponseType, Description: "The response type is not supported."}
	ErrAccessDenied             = &Error{Code: CodeAccessDenied, Description: "The resource owner or authorization server denied the request."}
	ErrConsentRequired          = &Error{Code: CodeConsentRequired, Description: "End-user consent is required."}
	ErrLoginRequired            = &Error{Code: CodeLoginRequired, Description: "End-user authentication is required."}
	ErrInteractionRequired      = &Error{Code: CodeInteractionRequired, Description: "End-user interaction is required."}
	ErrAccountSelectionRequired = &Error{Code: CodeAccountSelectionRequired, Description: "End-user account selection is required."}
	ErrInvalidRequestObject     = &Error{Code: CodeInvalidRequestObject, Description: "The request object is invalid."}
	ErrInvalidRequestURI        = &Error{Code: CodeInvalidRequestURI, Description: "The request_uri is invalid or could not be fetched."}
	ErrInvalidTarget            = &Error{Code: CodeInvalidTarget, Description: "The requested resource is invalid, unknown or malformed."}
	ErrInvalidClientMetadata    = &Error{Code: CodeInvalidClientMetadata, Description: "The client metadata is invalid."}
	ErrSlowDown                 = &Error{Code: CodeSlowDown, Description: "The client is polling too frequently."}
	ErrAuthorizationPending     = &Error{Code: CodeAuthorizationPending, Description: "The authorization request is still pending."}
	ErrExpiredToken             = &Error{Code: CodeExpiredToken, Description: "The auth_req_id has expired."}
	ErrServerError              = &Error{Code: CodeServerError, Description: "The authorization server encountered an unexpected condition.", Status: http.StatusInternalServerError}
)
