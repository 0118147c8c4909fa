// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/signet-dev/signet/pkg/authcode"
	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/grants"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/registry"
	"github.com/signet-dev/signet/pkg/session"
	"github.com/signet-dev/signet/pkg/tokens"
)

// Processor turns an authorized grant into the token response. It owns the
// cross-cutting finalization steps: issued-token fingerprinting, the
// authorization-code reuse window, and refresh token rotation.
type Processor struct {
	tokens   *tokens.Service
	codes    *authcode.Service
	registry *registry.Registry
	profiles ProfileProvider
}

// NewProcessor creates a Processor. profiles may be nil; without it the
// claims parameter yields no extra ID token claims.
func NewProcessor(service *tokens.Service, codes *authcode.Service, reg *registry.Registry, profiles ProfileProvider) *Processor {
	return &Processor{tokens: service, codes: codes, registry: reg, profiles: profiles}
}

// BuildTokenResponse mints the full token set for a grant. It also serves
// CIBA push delivery, which constructs the same response out-of-band.
func (p *Processor) BuildTokenResponse(ctx context.Context, grant *session.AuthorizedGrant, info *client.Info) (*oidc.TokenResponse, error) {
	return p.build(ctx, grant, info, true)
}

// Process finalizes a grant handler's outcome into the token response.
func (p *Processor) Process(ctx context.Context, req *grants.TokenRequest, authorized *grants.Authorized, info *client.Info) (*oidc.TokenResponse, *oidc.Error) {
	rotated := authorized.RefreshClaims != nil && !info.AllowRefreshTokenReuse
	withRefresh := authorized.RefreshClaims == nil || rotated

	resp, err := p.build(ctx, authorized.Grant, info, withRefresh)
	if err != nil {
		slog.ErrorContext(ctx, "token issuance failed", "client_id", info.ID, "error", err)
		return nil, oidc.ErrServerError
	}

	if authorized.Code != "" {
		// Put the consumed code back with its fingerprints: a replay within
		// the detection window finds them and revokes every issued token.
		if err := p.codes.Reinsert(ctx, authorized.Code, authorized.Grant); err != nil {
			slog.WarnContext(ctx, "failed to arm code reuse detection", "client_id", info.ID, "error", err)
		}
	}

	if rotated {
		old := authorized.RefreshClaims
		if err := p.registry.MarkRevoked(ctx, old.JWTID, old.ExpiresAt); err != nil {
			slog.ErrorContext(ctx, "failed to revoke the rotated refresh token", "jti", old.JWTID, "error", err)
			return nil, oidc.ErrServerError
		}
	} else if authorized.RefreshClaims != nil {
		// Reuse allowed: the presented token stays valid and is returned
		// unchanged.
		resp.RefreshToken = req.RefreshToken
	}

	return resp, nil
}

func (p *Processor) build(ctx context.Context, grant *session.AuthorizedGrant, info *client.Info, withRefresh bool) (*oidc.TokenResponse, error) {
	access, err := p.tokens.IssueAccessToken(ctx, grant, info)
	if err != nil {
		return nil, err
	}
	grant.RecordIssuedToken(access.JWTID, access.ExpiresAt)

	resp := &oidc.TokenResponse{
		AccessToken: access.Token,
		TokenType:   oidc.TokenTypeBearer,
		ExpiresIn:   int64(access.Lifetime.Seconds()),
		Scope:       strings.Join(grant.Context.Scopes, " "),
	}

	if withRefresh && grant.Context.HasScope(oidc.ScopeOfflineAccess) &&
		info.OfflineAccessAllowed && info.AllowsGrantType(oidc.GrantTypeRefreshToken) {
		refresh, err := p.tokens.IssueRefreshToken(ctx, grant, info)
		if err != nil {
			return nil, err
		}
		grant.RecordIssuedToken(refresh.JWTID, refresh.ExpiresAt)
		resp.RefreshToken = refresh.Token
	}

	if grant.Context.HasScope(oidc.ScopeOpenID) && grant.Session != nil {
		extra, err := p.requestedIDClaims(ctx, grant)
		if err != nil {
			return nil, err
		}
		id, err := p.tokens.IssueIDToken(ctx, grant, info, tokens.IDTokenInput{
			AccessToken: access.Token,
			ExtraClaims: extra,
		})
		if err != nil {
			return nil, err
		}
		resp.IDToken = id.Token
	}

	return resp, nil
}

// requestedIDClaims resolves the id_token branch of the claims parameter
// against the host's user directory. Requested claims the directory does
// not return are omitted, voluntary or essential alike.
func (p *Processor) requestedIDClaims(ctx context.Context, grant *session.AuthorizedGrant) (map[string]any, error) {
	branch, ok := grant.Context.RequestedClaims["id_token"].(map[string]any)
	if !ok || len(branch) == 0 || p.profiles == nil {
		return nil, nil
	}
	profile, err := p.profiles.UserClaims(ctx, grant.Session.Subject, grant.Context.Scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve requested claims: %w", err)
	}
	extra := make(map[string]any, len(branch))
	for name := range branch {
		if value, found := profile[name]; found {
			extra[name] = value
		}
	}
	return extra, nil
}
