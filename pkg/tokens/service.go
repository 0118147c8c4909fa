// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package tokens mints and validates the three JWT kinds the provider
// issues: access tokens (RFC 9068), refresh tokens, and ID tokens.
package tokens

import (
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/clock"
	"github.com/signet-dev/signet/pkg/config"
	"github.com/signet-dev/signet/pkg/keys"
	"github.com/signet-dev/signet/pkg/session"
)

// Token types carried in the JWT typ header.
const (
	TypeAccessToken  = "at+jwt"
	TypeRefreshToken = "refresh_token"
	TypeIDToken      = "JWT"
)

// IssuedToken is a freshly minted JWT with its registry metadata.
type IssuedToken struct {
	Token     string
	JWTID     string
	ExpiresAt time.Time
	Lifetime  time.Duration
}

// Claims is a parsed and verified token. Extra holds the full claim set for
// callers that need more than the named fields.
type Claims struct {
	// TokenType is the JWT typ header.
	TokenType string

	JWTID    string
	Issuer   string
	Subject  string
	ClientID string
	Scopes   []string
	Audience []string

	SessionID          string
	IdentityProvider   string
	AuthenticationTime time.Time
	ACR                string
	AMR                []string
	Resources          []string

	IssuedAt  time.Time
	ExpiresAt time.Time

	Extra jwt.MapClaims
}

// Service builds and validates the provider's own tokens.
type Service struct {
	options *config.Options
	keys    keys.Provider
	clock   clock.Clock
}

// NewService creates a token Service.
func NewService(options *config.Options, provider keys.Provider, c clock.Clock) *Service {
	if c == nil {
		c = clock.System{}
	}
	return &Service{options: options, keys: provider, clock: c}
}

// IssueAccessToken mints an RFC 9068 access token for the grant.
func (s *Service) IssueAccessToken(ctx context.Context, grant *session.AuthorizedGrant, info *client.Info) (*IssuedToken, error) {
	lifetime := s.options.AccessTokenLifetime
	if info.AccessTokenLifetime > 0 {
		lifetime = info.AccessTokenLifetime
	}
	now := s.clock.Now()
	jti := uuid.NewString()

	subject, err := s.Subject(info, grant.Session.Subject)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{
		"iss":       s.options.Issuer,
		"sub":       subject,
		"aud":       audienceFor(grant.Context, info),
		"client_id": info.ID,
		"scope":     strings.Join(grant.Context.Scopes, " "),
		"jti":       jti,
		"iat":       now.Unix(),
		"exp":       now.Add(lifetime).Unix(),
	}
	if grant.Session.SessionID != "" {
		claims["sid"] = grant.Session.SessionID
	}

	token, err := s.sign(ctx, TypeAccessToken, claims)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Token: token, JWTID: jti, ExpiresAt: now.Add(lifetime), Lifetime: lifetime}, nil
}

// IssueRefreshToken mints a refresh token carrying the grant fingerprint,
// so the grant can be rebuilt on refresh without extra storage.
func (s *Service) IssueRefreshToken(ctx context.Context, grant *session.AuthorizedGrant, info *client.Info) (*IssuedToken, error) {
	lifetime := s.options.RefreshTokenLifetime
	if info.RefreshTokenLifetime > 0 {
		lifetime = info.RefreshTokenLifetime
	}
	now := s.clock.Now()
	jti := uuid.NewString()

	claims := jwt.MapClaims{
		"iss":       s.options.Issuer,
		"sub":       grant.Session.Subject,
		"aud":       s.options.Issuer,
		"client_id": info.ID,
		"scope":     strings.Join(grant.Context.Scopes, " "),
		"jti":       jti,
		"iat":       now.Unix(),
		"exp":       now.Add(lifetime).Unix(),
		"sid":       grant.Session.SessionID,
		"auth_time": grant.Session.AuthenticationTime.Unix(),
	}
	if grant.Session.IdentityProvider != "" {
		claims["idp"] = grant.Session.IdentityProvider
	}
	if grant.Session.ACR != "" {
		claims["acr"] = grant.Session.ACR
	}
	if len(grant.Session.AMR) > 0 {
		claims["amr"] = grant.Session.AMR
	}
	if len(grant.Context.Resources) > 0 {
		claims["resources"] = grant.Context.Resources
	}

	token, err := s.sign(ctx, TypeRefreshToken, claims)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Token: token, JWTID: jti, ExpiresAt: now.Add(lifetime), Lifetime: lifetime}, nil
}

// IDTokenInput carries the sibling artifacts an ID token must hash.
type IDTokenInput struct {
	// AccessToken, when set, produces an at_hash claim.
	AccessToken string

	// Code, when set, produces a c_hash claim.
	Code string

	// ExtraClaims are identity claims the client requested through the
	// claims parameter. Claims already in the token cannot be overridden.
	ExtraClaims map[string]any
}

// IssueIDToken mints an OpenID Connect ID token for the grant.
func (s *Service) IssueIDToken(ctx context.Context, grant *session.AuthorizedGrant, info *client.Info, input IDTokenInput) (*IssuedToken, error) {
	key, err := s.keys.SigningKey(ctx)
	if err != nil {
		return nil, err
	}

	lifetime := s.options.IDTokenLifetime
	now := s.clock.Now()
	jti := uuid.NewString()

	subject, err := s.Subject(info, grant.Session.Subject)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{
		"iss":       s.options.Issuer,
		"sub":       subject,
		"aud":       info.ID,
		"jti":       jti,
		"iat":       now.Unix(),
		"exp":       now.Add(lifetime).Unix(),
		"auth_time": grant.Session.AuthenticationTime.Unix(),
	}
	if grant.Context.Nonce != "" {
		claims["nonce"] = grant.Context.Nonce
	}
	if grant.Session.SessionID != "" {
		claims["sid"] = grant.Session.SessionID
	}
	if grant.Session.ACR != "" {
		claims["acr"] = grant.Session.ACR
	}
	if len(grant.Session.AMR) > 0 {
		claims["amr"] = grant.Session.AMR
	}
	if input.AccessToken != "" {
		claims["at_hash"] = halfHash(key.Algorithm, input.AccessToken)
	}
	if input.Code != "" {
		claims["c_hash"] = halfHash(key.Algorithm, input.Code)
	}
	for name, value := range input.ExtraClaims {
		if _, taken := claims[name]; taken {
			continue
		}
		claims[name] = value
	}

	token, err := s.sign(ctx, TypeIDToken, claims)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Token: token, JWTID: jti, ExpiresAt: now.Add(lifetime), Lifetime: lifetime}, nil
}

// Parse verifies a token against the provider's own keys and returns its
// claims. expectedType, when non-empty, must match the typ header.
func (s *Service) Parse(ctx context.Context, raw, expectedType string) (*Claims, error) {
	set, err := s.keys.PublicJWKS(ctx)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "PS256", "PS384", "PS512"}),
		jwt.WithIssuer(s.options.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		key, found := set.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}
		var pub any
		if err := jwk.Export(key, &pub); err != nil {
			return nil, err
		}
		return pub, nil
	})
	if err != nil {
		return nil, err
	}

	typ, _ := token.Header["typ"].(string)
	if expectedType != "" && typ != expectedType {
		return nil, fmt.Errorf("unexpected token type %q", typ)
	}
	return claimsFrom(typ, claims), nil
}

// Grant rebuilds the authorized grant a refresh token fingerprints.
func (c *Claims) Grant() *session.AuthorizedGrant {
	return &session.AuthorizedGrant{
		Session: &session.AuthSession{
			Subject:            c.Subject,
			SessionID:          c.SessionID,
			AuthenticationTime: c.AuthenticationTime,
			IdentityProvider:   c.IdentityProvider,
			ACR:                c.ACR,
			AMR:                c.AMR,
		},
		Context: &session.AuthorizationContext{
			ClientID:  c.ClientID,
			Scopes:    c.Scopes,
			Resources: c.Resources,
		},
	}
}

// Subject returns the subject identifier to emit for the client: the plain
// subject for public clients, a stable sector-scoped hash for pairwise ones.
func (s *Service) Subject(info *client.Info, subject string) (string, error) {
	if info.SubjectType != client.SubjectTypePairwise {
		return subject, nil
	}
	sector := info.SectorIdentifier
	if sector == "" {
		return "", fmt.Errorf("client %s is pairwise but has no sector identifier", info.ID)
	}
	if len(s.options.PairwiseSalt) == 0 {
		return "", fmt.Errorf("pairwise subjects require a configured salt")
	}
	mac := hmac.New(sha256.New, s.options.PairwiseSalt)
	mac.Write([]byte(sector))
	mac.Write([]byte{0})
	mac.Write([]byte(subject))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (s *Service) sign(ctx context.Context, typ string, claims jwt.MapClaims) (string, error) {
	key, err := s.keys.SigningKey(ctx)
	if err != nil {
		return "", err
	}
	method := jwt.GetSigningMethod(key.Algorithm)
	if method == nil {
		return "", fmt.Errorf("unsupported signing algorithm %q", key.Algorithm)
	}
	token := jwt.NewWithClaims(method, claims)
	token.Header["typ"] = typ
	token.Header["kid"] = key.KeyID

	signed, err := token.SignedString(key.Key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// audienceFor picks the aud claim: the resource indicators when present,
// otherwise the client itself.
func audienceFor(authCtx *session.AuthorizationContext, info *client.Info) any {
	if len(authCtx.Resources) == 1 {
		return authCtx.Resources[0]
	}
	if len(authCtx.Resources) > 1 {
		return authCtx.Resources
	}
	return info.ID
}

// halfHash computes the at_hash/c_hash value: base64url of the leftmost
// half of the SHA digest matching the signing algorithm's bit length.
func halfHash(algorithm, value string) string {
	var hash crypto.Hash
	switch {
	case strings.HasSuffix(algorithm, "384"):
		hash = crypto.SHA384
	case strings.HasSuffix(algorithm, "512"):
		hash = crypto.SHA512
	default:
		hash = crypto.SHA256
	}
	h := hash.New()
	h.Write([]byte(value))
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

func claimsFrom(typ string, m jwt.MapClaims) *Claims {
	c := &Claims{TokenType: typ, Extra: m}

	c.JWTID, _ = m["jti"].(string)
	c.Issuer, _ = m["iss"].(string)
	c.Subject, _ = m["sub"].(string)
	c.ClientID, _ = m["client_id"].(string)
	c.SessionID, _ = m["sid"].(string)
	c.IdentityProvider, _ = m["idp"].(string)
	c.ACR, _ = m["acr"].(string)

	if scope, ok := m["scope"].(string); ok && scope != "" {
		c.Scopes = strings.Fields(scope)
	}
	if aud, err := m.GetAudience(); err == nil {
		c.Audience = aud
	}
	if exp, err := m.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := m.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if authTime, ok := m["auth_time"].(float64); ok {
		c.AuthenticationTime = time.Unix(int64(authTime), 0)
	}
	c.AMR = stringSlice(m["amr"])
	c.Resources = stringSlice(m["resources"])
	return c
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
