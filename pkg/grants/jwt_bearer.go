// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"log/slog"
	"slices"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/clock"
	"github.com/signet-dev/signet/pkg/config"
	"github.com/signet-dev/signet/pkg/jwks"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/registry"
	"github.com/signet-dev/signet/pkg/session"
)

// JWTBearerHandler exchanges assertions from trusted external issuers for
// access tokens (RFC 7523 section 2.1).
type JWTBearerHandler struct {
	issuers  map[string]config.TrustedIssuer
	resolver *jwks.Resolver
	registry *registry.Registry
	clock    clock.Clock

	// audience is the value assertions must address: this server's issuer.
	audience string
}

// NewJWTBearerHandler creates the handler.
func NewJWTBearerHandler(issuers map[string]config.TrustedIssuer, resolver *jwks.Resolver, reg *registry.Registry, c clock.Clock, audience string) *JWTBearerHandler {
	if c == nil {
		c = clock.System{}
	}
	return &JWTBearerHandler{
		issuers:  issuers,
		resolver: resolver,
		registry: reg,
		clock:    c,
		audience: audience,
	}
}

// GrantType implements Handler.
func (*JWTBearerHandler) GrantType() string {
	return oidc.GrantTypeJWTBearer
}

// Authorize implements Handler.
func (h *JWTBearerHandler) Authorize(ctx context.Context, req *TokenRequest, info *client.Info) oidc.Result[*Authorized] {
	if req.Assertion == "" {
		return oidc.Failure[*Authorized](oidc.ErrInvalidRequest.WithDescription("assertion is required."))
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(req.Assertion, jwt.MapClaims{})
	if err != nil {
		return oidc.Failure[*Authorized](oidc.ErrInvalidGrant.WithDescription("The assertion is malformed."))
	}
	issuer, err := unverified.Claims.GetIssuer()
	if err != nil || issuer == "" {
		return oidc.Failure[*Authorized](oidc.ErrInvalidGrant.WithDescription("The assertion has no issuer."))
	}
	trusted, ok := h.issuers[issuer]
	if !ok {
		return oidc.Failure[*Authorized](oidc.ErrInvalidGrant.WithDescription("The assertion issuer is not trusted."))
	}

	claims, protoErr := h.verify(ctx, req.Assertion, trusted)
	if protoErr != nil {
		return oidc.Failure[*Authorized](protoErr)
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return oidc.Failure[*Authorized](oidc.ErrInvalidGrant.WithDescription("The assertion has no subject."))
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = trusted.AllowedScopes
	} else {
		for _, s := range scopes {
			if !slices.Contains(trusted.AllowedScopes, s) {
				return oidc.Failure[*Authorized](
					oidc.ErrInvalidScope.WithDescription("Scope %q exceeds what the issuer may grant.", s))
			}
		}
	}

	grant := &session.AuthorizedGrant{
		Session: &session.AuthSession{
			Subject:            subject,
			AuthenticationTime: h.clock.Now(),
			IdentityProvider:   issuer,
		},
		Context: &session.AuthorizationContext{
			ClientID:  info.ID,
			Scopes:    scopes,
			Resources: req.Resources,
		},
	}
	return oidc.Success(&Authorized{Grant: grant})
}

func (h *JWTBearerHandler) verify(ctx context.Context, assertion string, trusted config.TrustedIssuer) (jwt.MapClaims, *oidc.Error) {
	// The issuer's keys resolve through the same guarded JWKS path as
	// client keys.
	issuerKeys := &client.Info{ID: trusted.Issuer, JWKSURI: trusted.JWKSURI}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512"}),
		jwt.WithIssuer(trusted.Issuer),
		jwt.WithAudience(h.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(h.clock.Now),
	)
	_, err := parser.ParseWithClaims(assertion, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		key, err := h.resolver.VerificationKey(ctx, issuerKeys, kid)
		if err != nil {
			return nil, err
		}
		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		slog.DebugContext(ctx, "jwt-bearer assertion rejected", "issuer", trusted.Issuer, "error", err)
		return nil, oidc.ErrInvalidGrant.WithDescription("The assertion could not be verified.")
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil, oidc.ErrInvalidGrant.WithDescription("The assertion has no jti.")
	}
	expiresAt := h.clock.Now()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	replayed, err := h.registry.CheckReplay(ctx, jti, expiresAt)
	if err != nil {
		return nil, oidc.ErrServerError.WithDescription("Failed to check assertion replay.")
	}
	if replayed {
		return nil, oidc.ErrInvalidGrant.WithDescription("The assertion was already used.")
	}
	return claims, nil
}
