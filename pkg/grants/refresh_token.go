// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"log/slog"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/registry"
	"github.com/signet-dev/signet/pkg/tokens"
)

// RefreshTokenHandler validates a refresh token and rebuilds its grant.
type RefreshTokenHandler struct {
	tokens   *tokens.Service
	registry *registry.Registry
}

// NewRefreshTokenHandler creates the handler.
func NewRefreshTokenHandler(service *tokens.Service, reg *registry.Registry) *RefreshTokenHandler {
	return &RefreshTokenHandler{tokens: service, registry: reg}
}

// GrantType implements Handler.
func (*RefreshTokenHandler) GrantType() string {
	return oidc.GrantTypeRefreshToken
}

// Authorize implements Handler.
func (h *RefreshTokenHandler) Authorize(ctx context.Context, req *TokenRequest, info *client.Info) oidc.Result[*Authorized] {
	if req.RefreshToken == "" {
		return oidc.Failure[*Authorized](oidc.ErrInvalidRequest.WithDescription("refresh_token is required."))
	}

	claims, err := h.tokens.Parse(ctx, req.RefreshToken, tokens.TypeRefreshToken)
	if err != nil {
		slog.DebugContext(ctx, "refresh token rejected", "error", err)
		return oidc.Failure[*Authorized](oidc.ErrInvalidGrant.WithDescription("The refresh token is invalid or expired."))
	}
	if claims.ClientID != info.ID {
		return oidc.Failure[*Authorized](oidc.ErrInvalidGrant.WithDescription("The refresh token belongs to a different client."))
	}

	status, err := h.registry.Status(ctx, claims.JWTID)
	if err != nil {
		return oidc.Failure[*Authorized](oidc.ErrServerError.WithDescription("Failed to check the token status."))
	}
	if status != registry.StatusActive {
		return oidc.Failure[*Authorized](oidc.ErrInvalidGrant.WithDescription("The refresh token was revoked or already rotated."))
	}

	return oidc.Success(&Authorized{Grant: claims.Grant(), RefreshClaims: claims})
}
