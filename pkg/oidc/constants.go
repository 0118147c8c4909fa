// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package oidc

// Grant types dispatched by the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeCIBA              = "urn:openid:params:grant-type:ciba"
	GrantTypeJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// Response types accepted at the authorization endpoint.
const (
	ResponseTypeCode    = "code"
	ResponseTypeToken   = "token"
	ResponseTypeIDToken = "id_token"
)

// Prompt values per OpenID Connect Core section 3.1.2.1.
const (
	PromptNone          = "none"
	PromptLogin         = "login"
	PromptConsent       = "consent"
	PromptSelectAccount = "select_account"
)

// Scope values with protocol meaning.
const (
	ScopeOpenID        = "openid"
	ScopeOfflineAccess = "offline_access"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
)

// CIBA token delivery modes.
const (
	DeliveryModePoll = "poll"
	DeliveryModePing = "ping"
	DeliveryModePush = "push"
)

// RequestURNPrefix is the prefix of request_uri values issued by the pushed
// authorization request endpoint (RFC 9126).
const RequestURNPrefix = "urn:ietf:params:oauth:request_uri:"

// ClientAssertionTypeJWTBearer is the assertion type used by
// client_secret_jwt and private_key_jwt client authentication (RFC 7523).
const ClientAssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// TokenTypeBearer is the token_type of every access token this server issues.
const TokenTypeBearer = "Bearer"
