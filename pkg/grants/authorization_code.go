// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/signet-dev/signet/pkg/authcode"
	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/registry"
)

// AuthorizationCodeHandler exchanges a single-use code for its grant.
// A replayed code revokes every token the first exchange issued.
type AuthorizationCodeHandler struct {
	codes    *authcode.Service
	registry *registry.Registry
}

// NewAuthorizationCodeHandler creates the handler.
func NewAuthorizationCodeHandler(codes *authcode.Service, reg *registry.Registry) *AuthorizationCodeHandler {
	return &AuthorizationCodeHandler{codes: codes, registry: reg}
}

// GrantType implements Handler.
func (*AuthorizationCodeHandler) GrantType() string {
	return oidc.GrantTypeAuthorizationCode
}

// Authorize implements Handler.
func (h *AuthorizationCodeHandler) Authorize(ctx context.Context, req *TokenRequest, info *client.Info) oidc.Result[*Authorized] {
	if req.Code == "" {
		return oidc.Failure[*Authorized](oidc.ErrInvalidRequest.WithDescription("code is required."))
	}

	grant, err := h.codes.Consume(ctx, req.Code)
	if errors.Is(err, authcode.ErrUnknownCode) {
		return oidc.Failure[*Authorized](oidc.ErrInvalidGrant.WithDescription("The authorization code is invalid or expired."))
	}
	if err != nil {
		return oidc.Failure[*Authorized](oidc.ErrServerError.WithDescription("Failed to resolve the authorization code."))
	}

	// Reuse detection: a consumed code was re-inserted with the tokens the
	// first exchange issued. Seeing those fingerprints now means replay.
	if len(grant.IssuedTokens) > 0 {
		for _, fp := range grant.IssuedTokens {
			if err := h.registry.MarkRevoked(ctx, fp.JWTID, fp.ExpiresAt); err != nil {
				slog.ErrorContext(ctx, "failed to revoke token after code replay",
					"jti", fp.JWTID, "error", err)
			}
		}
		slog.InfoContext(ctx, "authorization code replay detected",
			"client_id", info.ID, "revoked_tokens", len(grant.IssuedTokens))
		return oidc.Failure[*Authorized](
			oidc.ErrInvalidGrant.WithDescription("The authorization code was already used."))
	}

	if grant.Context.ClientID != info.ID {
		return oidc.Failure[*Authorized](oidc.ErrInvalidGrant.WithDescription("The code belongs to a different client."))
	}
	if grant.Context.RedirectURI != "" && grant.Context.RedirectURI != req.RedirectURI {
		return oidc.Failure[*Authorized](oidc.ErrInvalidGrant.WithDescription("redirect_uri does not match the authorization request."))
	}
	if protoErr := verifyPKCE(grant.Context.CodeChallenge, grant.Context.CodeChallengeMethod, req.CodeVerifier); protoErr != nil {
		return oidc.Failure[*Authorized](protoErr)
	}

	return oidc.Success(&Authorized{Grant: grant, Code: req.Code})
}

// verifyPKCE checks the verifier against the challenge stored with the
// grant. A grant without a challenge accepts no verifier.
func verifyPKCE(challenge, method, verifier string) *oidc.Error {
	if challenge == "" {
		return nil
	}
	if verifier == "" {
		return oidc.ErrInvalidGrant.WithDescription("A code_verifier is required.")
	}
	if len(verifier) < 43 || len(verifier) > 128 {
		return oidc.ErrInvalidGrant.WithDescription("The code_verifier length is out of range.")
	}

	var derived string
	switch method {
	case "plain":
		derived = verifier
	default: // S256
		derived = oauth2.S256ChallengeFromVerifier(verifier)
	}
	if subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) != 1 {
		return oidc.ErrInvalidGrant.WithDescription("The code_verifier does not match.")
	}
	return nil
}
