// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the typed options record for the provider.
// Options are immutable once validated; every component receives the record
// (or a slice of it) by injection.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Endpoint is a bit in the enabled-endpoints set.
type Endpoint uint32

// Endpoints the provider can expose. The set controls both routing and what
// the discovery document advertises.
const (
	EndpointAuthorize Endpoint = 1 << iota
	EndpointPushedAuthorization
	EndpointToken
	EndpointUserInfo
	EndpointRevocation
	EndpointIntrospection
	EndpointEndSession
	EndpointCheckSession
	EndpointBackchannelAuthentication
	EndpointRegistration
)

// AllEndpoints enables every endpoint.
const AllEndpoints = EndpointAuthorize | EndpointPushedAuthorization |
	EndpointToken | EndpointUserInfo | EndpointRevocation |
	EndpointIntrospection | EndpointEndSession | EndpointCheckSession |
	EndpointBackchannelAuthentication | EndpointRegistration

// Has reports whether e contains the given endpoint bit.
func (e Endpoint) Has(bit Endpoint) bool { return e&bit != 0 }

// MinTokenLength is the minimum entropy, in bytes, for opaque tokens
// (authorization codes, request URNs, session ids, auth_req_ids).
const MinTokenLength = 16

// Defaults applied by Validate when the corresponding option is zero.
const (
	DefaultAuthorizationCodeLifetime = 5 * time.Minute
	DefaultPARLifetime               = 60 * time.Second
	DefaultCIBAPollingInterval       = 5 * time.Second
	DefaultCIBARequestLifetime       = 10 * time.Minute
	DefaultLongPollTimeout           = 30 * time.Second
	DefaultTokenEndpointTimeout      = 15 * time.Second
	DefaultOutboundHTTPTimeout       = 5 * time.Second
	DefaultAccessTokenLifetime       = time.Hour
	DefaultRefreshTokenLifetime      = 30 * 24 * time.Hour
	DefaultIDTokenLifetime           = time.Hour
)

// SecureHTTPOptions configures the SSRF-guarded outbound fetcher.
type SecureHTTPOptions struct {
	// BlockPrivateNetworks rejects hosts that resolve to private, loopback,
	// link-local, multicast or broadcast ranges. Disable only in development.
	BlockPrivateNetworks bool

	// AllowedSchemes is the URI scheme allow-list. Defaults to {"https"}.
	AllowedSchemes []string
}

// CIBAOptions configures the backchannel authentication coordinator.
type CIBAOptions struct {
	// RequestIDLength is the auth_req_id entropy in bytes (min 16).
	RequestIDLength int

	// PollingInterval is the interval, returned to clients, between polls.
	PollingInterval time.Duration

	// RequestLifetime is the default lifetime when the client sends no
	// requested_expiry.
	RequestLifetime time.Duration

	// MaxRequestLifetime clamps requested_expiry from above.
	MaxRequestLifetime time.Duration

	// MinRequestLifetime clamps requested_expiry from below.
	MinRequestLifetime time.Duration
}

// DiscoveryOptions configures the discovery document renderer.
type DiscoveryOptions struct {
	// AllowEndpointPathsDiscovery includes endpoint URLs in the document.
	// When false only issuer, JWKS and capability lists are advertised.
	AllowEndpointPathsDiscovery bool
}

// TrustedIssuer describes an external token issuer accepted by the
// jwt-bearer grant.
type TrustedIssuer struct {
	// Issuer is the exact iss value of assertions from this issuer.
	Issuer string

	// JWKSURI is where the issuer's signing keys are published.
	JWKSURI string

	// AllowedScopes caps the scopes a jwt-bearer grant from this issuer
	// may be exchanged for.
	AllowedScopes []string
}

// Options is the environment-level configuration record.
type Options struct {
	// Issuer is the absolute URL appearing in every token iss claim and in
	// the discovery document.
	Issuer string

	// Entropy, in bytes, of the opaque tokens the server mints.
	AuthorizationCodeLength int
	RequestURILength        int
	SessionIDLength         int

	// AuthorizationCodeLifetime is the fallback code TTL for clients
	// without a per-client value.
	AuthorizationCodeLifetime time.Duration

	// PARLifetime is the TTL of pushed authorization requests.
	PARLifetime time.Duration

	// RequirePushedAuthorizationRequests rejects authorization requests
	// that do not reference a pushed request URN.
	RequirePushedAuthorizationRequests bool

	// AllowPlainPKCE permits the "plain" code_challenge_method.
	// Disabled by default; S256 is always accepted.
	AllowPlainPKCE bool

	// RequirePKCEForAllClients demands a code_challenge on every code
	// flow, confidential clients included. Off by default: without it,
	// PKCE is enforced per client registration and for public clients.
	RequirePKCEForAllClients bool

	// PairwiseSalt is the server salt mixed into pairwise subjects.
	// Required when any client uses subject type pairwise.
	PairwiseSalt []byte

	// SupportedScopes lists every scope the server will grant.
	SupportedScopes []string

	// Lifetimes used when a client carries no per-client override.
	AccessTokenLifetime  time.Duration
	RefreshTokenLifetime time.Duration
	IDTokenLifetime      time.Duration

	// Timeouts per the concurrency contract.
	LongPollTimeout      time.Duration
	TokenEndpointTimeout time.Duration
	OutboundHTTPTimeout  time.Duration

	// TrustedIssuers is the issuer directory for the jwt-bearer grant,
	// keyed by iss value.
	TrustedIssuers map[string]TrustedIssuer

	// SessionCookieName is the cookie the check-session iframe watches for
	// session state changes.
	SessionCookieName string

	CIBA       CIBAOptions
	SecureHTTP SecureHTTPOptions
	Discovery  DiscoveryOptions

	// EnabledEndpoints controls routing and discovery advertisement.
	EnabledEndpoints Endpoint
}

// Default returns an Options record with every default applied.
func Default(issuer string) *Options {
	o := &Options{Issuer: issuer, EnabledEndpoints: AllEndpoints}
	o.applyDefaults()
	return o
}

func (o *Options) applyDefaults() {
	if o.AuthorizationCodeLength == 0 {
		o.AuthorizationCodeLength = 32
	}
	if o.RequestURILength == 0 {
		o.RequestURILength = 32
	}
	if o.SessionIDLength == 0 {
		o.SessionIDLength = 32
	}
	if o.AuthorizationCodeLifetime == 0 {
		o.AuthorizationCodeLifetime = DefaultAuthorizationCodeLifetime
	}
	if o.PARLifetime == 0 {
		o.PARLifetime = DefaultPARLifetime
	}
	if o.AccessTokenLifetime == 0 {
		o.AccessTokenLifetime = DefaultAccessTokenLifetime
	}
	if o.RefreshTokenLifetime == 0 {
		o.RefreshTokenLifetime = DefaultRefreshTokenLifetime
	}
	if o.IDTokenLifetime == 0 {
		o.IDTokenLifetime = DefaultIDTokenLifetime
	}
	if o.LongPollTimeout == 0 {
		o.LongPollTimeout = DefaultLongPollTimeout
	}
	if o.TokenEndpointTimeout == 0 {
		o.TokenEndpointTimeout = DefaultTokenEndpointTimeout
	}
	if o.OutboundHTTPTimeout == 0 {
		o.OutboundHTTPTimeout = DefaultOutboundHTTPTimeout
	}
	if o.CIBA.RequestIDLength == 0 {
		o.CIBA.RequestIDLength = 32
	}
	if o.CIBA.PollingInterval == 0 {
		o.CIBA.PollingInterval = DefaultCIBAPollingInterval
	}
	if o.CIBA.RequestLifetime == 0 {
		o.CIBA.RequestLifetime = DefaultCIBARequestLifetime
	}
	if o.CIBA.MaxRequestLifetime == 0 {
		o.CIBA.MaxRequestLifetime = 24 * time.Hour
	}
	if o.CIBA.MinRequestLifetime == 0 {
		o.CIBA.MinRequestLifetime = 30 * time.Second
	}
	if len(o.SecureHTTP.AllowedSchemes) == 0 {
		o.SecureHTTP.AllowedSchemes = []string{"https"}
		o.SecureHTTP.BlockPrivateNetworks = true
	}
	if o.SessionCookieName == "" {
		o.SessionCookieName = "signet_session_state"
	}
	if len(o.SupportedScopes) == 0 {
		o.SupportedScopes = []string{"openid", "profile", "email", "offline_access"}
	}
	if o.EnabledEndpoints == 0 {
		o.EnabledEndpoints = AllEndpoints
	}
}

// Validate applies defaults and checks the record for hard errors.
func (o *Options) Validate() error {
	o.applyDefaults()

	u, err := url.Parse(o.Issuer)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("issuer must be an absolute URL, got %q", o.Issuer)
	}
	if u.Fragment != "" || u.RawQuery != "" {
		return fmt.Errorf("issuer must not contain a query or fragment")
	}

	for name, n := range map[string]int{
		"authorizationCodeLength": o.AuthorizationCodeLength,
		"requestUriLength":        o.RequestURILength,
		"sessionIdLength":         o.SessionIDLength,
		"ciba.requestIdLength":    o.CIBA.RequestIDLength,
	} {
		if n < MinTokenLength {
			return fmt.Errorf("%s must be at least %d bytes, got %d", name, MinTokenLength, n)
		}
	}

	if o.CIBA.MinRequestLifetime > o.CIBA.MaxRequestLifetime {
		return fmt.Errorf("ciba request lifetime bounds are inverted")
	}
	return nil
}
