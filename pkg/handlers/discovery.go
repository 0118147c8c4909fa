// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"sort"

	"github.com/signet-dev/signet/pkg/config"
	"github.com/signet-dev/signet/pkg/keys"
)

// Canonical endpoint paths. The router and the discovery document share
// these so they can never drift apart.
const (
	PathAuthorize     = "/connect/authorize"
	PathPAR           = "/connect/par"
	PathToken         = "/connect/token"
	PathUserInfo      = "/connect/userinfo"
	PathRevocation    = "/connect/revocation"
	PathIntrospection = "/connect/introspect"
	PathEndSession    = "/connect/endsession"
	PathCheckSession  = "/connect/checksession"
	PathBackchannel   = "/connect/ciba"
	PathRegister      = "/connect/register"
	PathDiscovery     = "/.well-known/openid-configuration"
	PathJWKS          = "/.well-known/jwks"
)

// DiscoveryHandler renders the OpenID Provider configuration document.
type DiscoveryHandler struct {
	options    *config.Options
	grantTypes []string
}

// NewDiscoveryHandler creates the handler. grantTypes is what the token
// endpoint dispatches, straight from the grant dispatcher.
func NewDiscoveryHandler(options *config.Options, grantTypes []string) *DiscoveryHandler {
	sorted := append([]string(nil), grantTypes...)
	sort.Strings(sorted)
	return &DiscoveryHandler{options: options, grantTypes: sorted}
}

// ServeHTTP implements http.Handler.
func (h *DiscoveryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	o := h.options
	doc := map[string]any{
		"issuer":                                o.Issuer,
		"jwks_uri":                              o.Issuer + PathJWKS,
		"scopes_supported":                      o.SupportedScopes,
		"response_types_supported":              []string{"code", "id_token", "token", "code id_token", "code token", "id_token token", "code id_token token"},
		"response_modes_supported":              []string{"query", "fragment", "form_post"},
		"grant_types_supported":                 h.grantTypes,
		"subject_types_supported":               []string{"public", "pairwise"},
		"id_token_signing_alg_values_supported": []string{"RS256", "PS256", "ES256"},
		"token_endpoint_auth_methods_supported": []string{
			"none", "client_secret_basic", "client_secret_post",
			"client_secret_jwt", "private_key_jwt",
			"tls_client_auth", "self_signed_tls_client_auth",
		},
		"claims_parameter_supported":                true,
		"request_parameter_supported":               true,
		"request_uri_parameter_supported":           true,
		"require_pushed_authorization_requests":     o.RequirePushedAuthorizationRequests,
		"backchannel_token_delivery_modes_supported": []string{"poll", "ping", "push"},
	}

	methods := []string{"S256"}
	if o.AllowPlainPKCE {
		methods = append(methods, "plain")
	}
	doc["code_challenge_methods_supported"] = methods

	if o.Discovery.AllowEndpointPathsDiscovery {
		endpoints := map[config.Endpoint][2]string{
			config.EndpointAuthorize:                  {"authorization_endpoint", PathAuthorize},
			config.EndpointPushedAuthorization:        {"pushed_authorization_request_endpoint", PathPAR},
			config.EndpointToken:                      {"token_endpoint", PathToken},
			config.EndpointUserInfo:                   {"userinfo_endpoint", PathUserInfo},
			config.EndpointRevocation:                 {"revocation_endpoint", PathRevocation},
			config.EndpointIntrospection:              {"introspection_endpoint", PathIntrospection},
			config.EndpointEndSession:                 {"end_session_endpoint", PathEndSession},
			config.EndpointCheckSession:               {"check_session_iframe", PathCheckSession},
			config.EndpointBackchannelAuthentication:  {"backchannel_authentication_endpoint", PathBackchannel},
			config.EndpointRegistration:               {"registration_endpoint", PathRegister},
		}
		for bit, entry := range endpoints {
			if o.EnabledEndpoints.Has(bit) {
				doc[entry[0]] = o.Issuer + entry[1]
			}
		}
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, doc)
}

// JWKSHandler publishes the provider's public signing keys.
type JWKSHandler struct {
	keys keys.Provider
}

// NewJWKSHandler creates the handler.
func NewJWKSHandler(provider keys.Provider) *JWKSHandler {
	return &JWKSHandler{keys: provider}
}

// ServeHTTP implements http.Handler.
func (h *JWKSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	set, err := h.keys.PublicJWKS(r.Context())
	if err != nil {
		http.Error(w, "keys unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, set)
}
