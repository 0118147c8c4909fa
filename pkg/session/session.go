// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package session models the authenticated end-user session and the
// authorization grant it produces, plus the collaborator interfaces the
// host application implements to drive login and consent.
package session

import (
	"context"
	"slices"
	"time"
)

// AuthSession is an authenticated end-user (or, for client credentials, a
// synthesized client principal). Created by the host's device
// authentication; the core only appends affected clients.
type AuthSession struct {
	// Subject is the end-user identifier as known to the identity provider.
	Subject string `json:"sub"`

	// SessionID is the internal session identifier, also emitted as the
	// sid claim in ID tokens.
	SessionID string `json:"sid"`

	AuthenticationTime time.Time `json:"auth_time"`

	// IdentityProvider labels where the authentication happened.
	IdentityProvider string `json:"idp,omitempty"`

	ACR string   `json:"acr,omitempty"`
	AMR []string `json:"amr,omitempty"`

	// AffectedClients are the client ids that participated in this session,
	// used for logout propagation.
	AffectedClients []string `json:"affected_clients,omitempty"`
}

// AddAffectedClient records a client as a participant of the session.
func (s *AuthSession) AddAffectedClient(clientID string) {
	if !slices.Contains(s.AffectedClients, clientID) {
		s.AffectedClients = append(s.AffectedClients, clientID)
	}
}

// AuthorizationContext captures what the user authorized. Immutable once
// produced by the authorize endpoint.
type AuthorizationContext struct {
	ClientID string `json:"client_id"`

	Scopes    []string `json:"scopes,omitempty"`
	Resources []string `json:"resources,omitempty"`

	// RequestedClaims is the parsed claims request parameter.
	RequestedClaims map[string]any `json:"claims,omitempty"`

	Nonce string `json:"nonce,omitempty"`

	// RedirectURI is the redirect_uri the code was issued for; the token
	// endpoint requires an exact repeat.
	RedirectURI string `json:"redirect_uri,omitempty"`

	// CodeChallenge and CodeChallengeMethod carry the PKCE binding.
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

// HasScope reports whether the context grants the scope.
func (c *AuthorizationContext) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// TokenFingerprint identifies an issued token for later revocation.
type TokenFingerprint struct {
	JWTID     string    `json:"jti"`
	ExpiresAt time.Time `json:"exp"`
}

// AuthorizedGrant pairs a session with what it authorized, plus the
// fingerprints of tokens already minted from it. When an authorization code
// is replayed, every fingerprinted token gets revoked.
type AuthorizedGrant struct {
	Session *AuthSession          `json:"session"`
	Context *AuthorizationContext `json:"context"`

	IssuedTokens []TokenFingerprint `json:"issued_tokens,omitempty"`
}

// RecordIssuedToken appends a fingerprint for a freshly minted token.
func (g *AuthorizedGrant) RecordIssuedToken(jti string, expiresAt time.Time) {
	g.IssuedTokens = append(g.IssuedTokens, TokenFingerprint{JWTID: jti, ExpiresAt: expiresAt})
}

// UserSessionResolver reports the end-user session attached to the current
// transport request (typically via a session cookie). A nil session with a
// nil error means no user is signed in.
type UserSessionResolver interface {
	ResolveSession(ctx context.Context) (*AuthSession, error)
}

// ConsentDecision is the host's answer to a consent check.
type ConsentDecision int

// Consent outcomes.
const (
	ConsentGranted ConsentDecision = iota
	ConsentRequired
	ConsentDenied
)

// ConsentProvider decides whether the user already consented to the
// requested scopes for the client.
type ConsentProvider interface {
	CheckConsent(ctx context.Context, session *AuthSession, clientID string, scopes []string) (ConsentDecision, error)
}

// DeviceAuthenticator starts an out-of-band authentication on the user's
// device for CIBA. The session arrives later through the coordinator's
// Complete call, keyed by authReqID; Authenticate only initiates.
type DeviceAuthenticator interface {
	Authenticate(ctx context.Context, authReqID, loginHint, bindingMessage string, scopes []string) error
}
