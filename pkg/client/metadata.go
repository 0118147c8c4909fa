// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Validation limits to keep registration requests bounded.
const (
	// MaxRedirectURICount is the maximum number of redirect URIs per client.
	MaxRedirectURICount = 10

	// MaxClientNameLength is the maximum allowed length of a client name.
	MaxClientNameLength = 256
)

// Metadata is the client metadata document exchanged with the dynamic
// registration endpoints (RFC 7591/7592).
type Metadata struct {
	RedirectURIs                    []string        `json:"redirect_uris,omitempty"`
	ClientName                      string          `json:"client_name,omitempty"`
	TokenEndpointAuthMethod         string          `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes                      []string        `json:"grant_types,omitempty"`
	ResponseTypes                   []string        `json:"response_types,omitempty"`
	Scope                           string          `json:"scope,omitempty"`
	JWKS                            json.RawMessage `json:"jwks,omitempty"`
	JWKSURI                         string          `json:"jwks_uri,omitempty"`
	SubjectType                     string          `json:"subject_type,omitempty"`
	SectorIdentifierURI             string          `json:"sector_identifier_uri,omitempty"`
	IDTokenSignedResponseAlg        string          `json:"id_token_signed_response_alg,omitempty"`
	PostLogoutRedirectURIs          []string        `json:"post_logout_redirect_uris,omitempty"`
	BackchannelTokenDeliveryMode    string          `json:"backchannel_token_delivery_mode,omitempty"`
	BackchannelNotificationEndpoint string          `json:"backchannel_client_notification_endpoint,omitempty"`
}

var knownAuthMethods = []string{
	string(AuthMethodNone),
	string(AuthMethodBasic),
	string(AuthMethodPost),
	string(AuthMethodSecretJWT),
	string(AuthMethodPrivateKeyJWT),
	string(AuthMethodTLS),
	string(AuthMethodSelfSignedTLS),
}

var defaultGrantTypes = []string{"authorization_code", "refresh_token"}

var defaultResponseTypes = []string{"code"}

// Validate checks the metadata document and applies RFC 7591 defaults
// in place. The returned error message is safe to surface to the caller.
func (m *Metadata) Validate() error {
	if len(m.RedirectURIs) > MaxRedirectURICount {
		return fmt.Errorf("too many redirect URIs (max %d)", MaxRedirectURICount)
	}
	for _, raw := range m.RedirectURIs {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("redirect_uri %q is not an absolute URI", raw)
		}
		if u.Fragment != "" {
			return fmt.Errorf("redirect_uri %q must not contain a fragment", raw)
		}
		if strings.EqualFold(u.Scheme, "http") && !isLoopback(u.Hostname()) {
			return fmt.Errorf("redirect_uri %q must use https or target loopback", raw)
		}
	}

	if len(m.ClientName) > MaxClientNameLength {
		return fmt.Errorf("client_name exceeds %d characters", MaxClientNameLength)
	}

	if m.TokenEndpointAuthMethod == "" {
		m.TokenEndpointAuthMethod = string(AuthMethodBasic)
	}
	if !slices.Contains(knownAuthMethods, m.TokenEndpointAuthMethod) {
		return fmt.Errorf("unknown token_endpoint_auth_method %q", m.TokenEndpointAuthMethod)
	}

	if len(m.JWKS) > 0 && m.JWKSURI != "" {
		return fmt.Errorf("jwks and jwks_uri are mutually exclusive")
	}
	if m.TokenEndpointAuthMethod == string(AuthMethodPrivateKeyJWT) &&
		len(m.JWKS) == 0 && m.JWKSURI == "" {
		return fmt.Errorf("private_key_jwt requires jwks or jwks_uri")
	}

	if len(m.GrantTypes) == 0 {
		m.GrantTypes = slices.Clone(defaultGrantTypes)
	}
	if len(m.ResponseTypes) == 0 {
		m.ResponseTypes = slices.Clone(defaultResponseTypes)
	}

	if m.SubjectType != "" &&
		m.SubjectType != string(SubjectTypePublic) &&
		m.SubjectType != string(SubjectTypePairwise) {
		return fmt.Errorf("unknown subject_type %q", m.SubjectType)
	}

	switch m.BackchannelTokenDeliveryMode {
	case "", "poll":
	case "ping", "push":
		if m.BackchannelNotificationEndpoint == "" {
			return fmt.Errorf("%s delivery requires backchannel_client_notification_endpoint", m.BackchannelTokenDeliveryMode)
		}
	default:
		return fmt.Errorf("unknown backchannel_token_delivery_mode %q", m.BackchannelTokenDeliveryMode)
	}
	if m.BackchannelNotificationEndpoint != "" {
		u, err := url.Parse(m.BackchannelNotificationEndpoint)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("backchannel_client_notification_endpoint is not an absolute URI")
		}
	}

	// Public clients get no grant types requiring authentication.
	if m.TokenEndpointAuthMethod == string(AuthMethodNone) {
		for _, gt := range m.GrantTypes {
			if gt == "client_credentials" {
				return fmt.Errorf("public clients cannot use the client_credentials grant")
			}
		}
	}

	return nil
}

// ToInfo converts validated metadata into a client descriptor.
// The caller assigns the id, secrets and registration access token.
func (m *Metadata) ToInfo(clientID string) *Info {
	info := &Info{
		ID:                              clientID,
		Name:                            m.ClientName,
		AuthMethods:                     []AuthMethod{AuthMethod(m.TokenEndpointAuthMethod)},
		RedirectURIs:                    slices.Clone(m.RedirectURIs),
		PostLogoutRedirectURIs:          slices.Clone(m.PostLogoutRedirectURIs),
		GrantTypes:                      slices.Clone(m.GrantTypes),
		ResponseTypes:                   slices.Clone(m.ResponseTypes),
		JWKS:                            m.JWKS,
		JWKSURI:                         m.JWKSURI,
		SubjectType:                     SubjectType(m.SubjectType),
		SectorIdentifier:                m.SectorIdentifierURI,
		IDTokenSignedResponseAlg:        m.IDTokenSignedResponseAlg,
		BackchannelTokenDeliveryMode:    m.BackchannelTokenDeliveryMode,
		BackchannelNotificationEndpoint: m.BackchannelNotificationEndpoint,
	}
	if info.SubjectType == "" {
		info.SubjectType = SubjectTypePublic
	}
	if m.Scope != "" {
		info.AllowedScopes = strings.Fields(m.Scope)
	}
	return info
}

func isLoopback(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
