// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package client defines the per-client descriptor and its storage-backed
// registry. ClientInfo records are immutable; registration management
// replaces the whole record.
package client

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"slices"
	"time"
)

// AuthMethod is a token-endpoint client authentication method.
type AuthMethod string

// Client authentication methods.
const (
	AuthMethodNone          AuthMethod = "none"
	AuthMethodBasic         AuthMethod = "client_secret_basic"
	AuthMethodPost          AuthMethod = "client_secret_post"
	AuthMethodSecretJWT     AuthMethod = "client_secret_jwt"
	AuthMethodPrivateKeyJWT AuthMethod = "private_key_jwt"
	AuthMethodTLS           AuthMethod = "tls_client_auth"
	AuthMethodSelfSignedTLS AuthMethod = "self_signed_tls_client_auth"
)

// SubjectType selects how subject identifiers are minted for a client.
type SubjectType string

// Subject types per OpenID Connect Core section 8.
const (
	SubjectTypePublic   SubjectType = "public"
	SubjectTypePairwise SubjectType = "pairwise"
)

// Secret is a client secret with a validity window.
type Secret struct {
	// Value is the secret material. Comparison happens over SHA-256
	// digests in constant time; the raw value is also the HMAC key for
	// client_secret_jwt.
	Value string `json:"value"`

	NotBefore time.Time `json:"not_before,omitzero"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// ActiveAt reports whether the secret is within its validity window.
func (s Secret) ActiveAt(now time.Time) bool {
	if !s.NotBefore.IsZero() && now.Before(s.NotBefore) {
		return false
	}
	if !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) {
		return false
	}
	return true
}

// Matches compares the presented secret in constant time.
func (s Secret) Matches(presented string) bool {
	stored := sha256.Sum256([]byte(s.Value))
	candidate := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(stored[:], candidate[:]) == 1
}

// Info is the immutable per-client descriptor.
type Info struct {
	ID   string `json:"client_id"`
	Name string `json:"client_name,omitempty"`

	// AuthMethods are the registered token-endpoint authentication
	// methods; the method used on the wire must be one of them.
	AuthMethods []AuthMethod `json:"token_endpoint_auth_methods"`

	Secrets []Secret `json:"secrets,omitempty"`

	// JWKS is an inline key set; JWKSURI points at a hosted one.
	// At most one of the two is set.
	JWKS    json.RawMessage `json:"jwks,omitempty"`
	JWKSURI string          `json:"jwks_uri,omitempty"`

	RedirectURIs           []string `json:"redirect_uris,omitempty"`
	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris,omitempty"`

	// Backchannel (CIBA) client settings.
	BackchannelTokenDeliveryMode   string `json:"backchannel_token_delivery_mode,omitempty"`
	BackchannelNotificationEndpoint string `json:"backchannel_client_notification_endpoint,omitempty"`

	GrantTypes    []string `json:"grant_types"`
	ResponseTypes []string `json:"response_types,omitempty"`

	AllowedScopes    []string `json:"scope,omitempty"`
	AllowedResources []string `json:"resources,omitempty"`

	// RequirePKCE forces PKCE on every authorization-code exchange even
	// when policy would not otherwise demand it.
	RequirePKCE bool `json:"require_pkce,omitempty"`

	// Per-client token lifetimes; zero falls back to server defaults.
	AccessTokenLifetime       time.Duration `json:"access_token_lifetime,omitempty"`
	RefreshTokenLifetime      time.Duration `json:"refresh_token_lifetime,omitempty"`
	AuthorizationCodeLifetime time.Duration `json:"authorization_code_lifetime,omitempty"`

	// AllowRefreshTokenReuse disables rotation: the same refresh token is
	// returned on every refresh.
	AllowRefreshTokenReuse bool `json:"allow_refresh_token_reuse,omitempty"`

	SubjectType      SubjectType `json:"subject_type,omitempty"`
	SectorIdentifier string      `json:"sector_identifier,omitempty"`

	IDTokenSignedResponseAlg string `json:"id_token_signed_response_alg,omitempty"`

	OfflineAccessAllowed bool `json:"offline_access_allowed,omitempty"`

	// TLS client authentication bindings.
	TLSSubjectDN          string `json:"tls_client_auth_subject_dn,omitempty"`
	CertificateThumbprint string `json:"x5t_s256,omitempty"`

	// RegistrationAccessToken guards the RFC 7592 management endpoints.
	RegistrationAccessToken string `json:"registration_access_token,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Public reports whether the client authenticates with method none only.
func (c *Info) Public() bool {
	return len(c.AuthMethods) == 1 && c.AuthMethods[0] == AuthMethodNone
}

// UsesAuthMethod reports whether m is among the registered methods.
func (c *Info) UsesAuthMethod(m AuthMethod) bool {
	return slices.Contains(c.AuthMethods, m)
}

// AllowsGrantType reports whether the client registered the grant type.
func (c *Info) AllowsGrantType(grantType string) bool {
	return slices.Contains(c.GrantTypes, grantType)
}

// AllowsResponseType reports whether the client registered the exact
// (space-normalized) response type.
func (c *Info) AllowsResponseType(responseType string) bool {
	return slices.Contains(c.ResponseTypes, responseType)
}

// AllowsScopes reports whether every requested scope is registered.
// A client with no registered scopes allows none.
func (c *Info) AllowsScopes(scopes []string) bool {
	for _, s := range scopes {
		if !slices.Contains(c.AllowedScopes, s) {
			return false
		}
	}
	return true
}

// AllowsResources reports whether every requested resource indicator is
// registered.
func (c *Info) AllowsResources(resources []string) bool {
	for _, r := range resources {
		if !slices.Contains(c.AllowedResources, r) {
			return false
		}
	}
	return true
}

// ActiveSecrets returns the secrets valid at the given instant.
func (c *Info) ActiveSecrets(now time.Time) []Secret {
	var active []Secret
	for _, s := range c.Secrets {
		if s.ActiveAt(now) {
			active = append(active, s)
		}
	}
	return active
}

// CodeLifetime returns the client's authorization code TTL, falling back
// to the supplied default.
func (c *Info) CodeLifetime(fallback time.Duration) time.Duration {
	if c.AuthorizationCodeLifetime > 0 {
		return c.AuthorizationCodeLifetime
	}
	return fallback
}
