// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/clock"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/session"
)

// identityProviderClientCredentials labels sessions synthesized for
// machine-to-machine grants.
const identityProviderClientCredentials = "client_credentials"

// ClientCredentialsHandler authorizes the client itself, with no user.
type ClientCredentialsHandler struct {
	clock clock.Clock
}

// NewClientCredentialsHandler creates the handler.
func NewClientCredentialsHandler(c clock.Clock) *ClientCredentialsHandler {
	if c == nil {
		c = clock.System{}
	}
	return &ClientCredentialsHandler{clock: c}
}

// GrantType implements Handler.
func (*ClientCredentialsHandler) GrantType() string {
	return oidc.GrantTypeClientCredentials
}

// Authorize implements Handler.
func (h *ClientCredentialsHandler) Authorize(_ context.Context, req *TokenRequest, info *client.Info) oidc.Result[*Authorized] {
	if info.Public() {
		return oidc.Failure[*Authorized](
			oidc.ErrUnauthorizedClient.WithDescription("Public clients may not use client_credentials."))
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = info.AllowedScopes
	} else if !info.AllowsScopes(scopes) {
		return oidc.Failure[*Authorized](oidc.ErrInvalidScope)
	}
	if len(req.Resources) > 0 && !info.AllowsResources(req.Resources) {
		return oidc.Failure[*Authorized](oidc.ErrInvalidTarget)
	}

	grant := &session.AuthorizedGrant{
		Session: &session.AuthSession{
			Subject:            info.ID,
			AuthenticationTime: h.clock.Now(),
			IdentityProvider:   identityProviderClientCredentials,
		},
		Context: &session.AuthorizationContext{
			ClientID:  info.ID,
			Scopes:    scopes,
			Resources: req.Resources,
		},
	}
	return oidc.Success(&Authorized{Grant: grant})
}
