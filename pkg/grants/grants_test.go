// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/signet-dev/signet/pkg/authcode"
	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/clock"
	"github.com/signet-dev/signet/pkg/config"
	"github.com/signet-dev/signet/pkg/jwks"
	"github.com/signet-dev/signet/pkg/keys"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/registry"
	"github.com/signet-dev/signet/pkg/securehttp"
	"github.com/signet-dev/signet/pkg/session"
	"github.com/signet-dev/signet/pkg/storage"
	"github.com/signet-dev/signet/pkg/tokens"
)

func codeGrant(clientID, verifier string) *session.AuthorizedGrant {
	grant := &session.AuthorizedGrant{
		Session: &session.AuthSession{Subject: "user-1", SessionID: "sess-1", AuthenticationTime: time.Now()},
		Context: &session.AuthorizationContext{
			ClientID:    clientID,
			Scopes:      []string{"openid", "offline_access"},
			RedirectURI: "https://rp.example.com/cb",
		},
	}
	if verifier != "" {
		grant.Context.CodeChallenge = oauth2.S256ChallengeFromVerifier(verifier)
		grant.Context.CodeChallengeMethod = "S256"
	}
	return grant
}

func TestAuthorizationCodeExchange(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	codes := authcode.NewService(store, 32)
	reg := registry.New(store, clock.System{})
	h := NewAuthorizationCodeHandler(codes, reg)

	verifier := strings.Repeat("v", 43)
	code, err := codes.Issue(context.Background(), codeGrant("app", verifier), time.Minute)
	require.NoError(t, err)

	info := &client.Info{ID: "app", GrantTypes: []string{oidc.GrantTypeAuthorizationCode}}
	result := h.Authorize(context.Background(), &TokenRequest{
		GrantType:    oidc.GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://rp.example.com/cb",
		CodeVerifier: verifier,
	}, info)
	require.True(t, result.IsSuccess(), "got %v", result.Err())
	assert.Equal(t, "user-1", result.Value().Grant.Session.Subject)
	assert.Equal(t, code, result.Value().Code)
}

func TestAuthorizationCodePKCEMismatch(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	codes := authcode.NewService(store, 32)
	h := NewAuthorizationCodeHandler(codes, registry.New(store, clock.System{}))

	code, err := codes.Issue(context.Background(), codeGrant("app", strings.Repeat("v", 43)), time.Minute)
	require.NoError(t, err)

	info := &client.Info{ID: "app"}
	result := h.Authorize(context.Background(), &TokenRequest{
		Code:         code,
		RedirectURI:  "https://rp.example.com/cb",
		CodeVerifier: strings.Repeat("w", 43),
	}, info)
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidGrant, result.Err().Code)
}

func TestAuthorizationCodeRedirectMismatch(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	codes := authcode.NewService(store, 32)
	h := NewAuthorizationCodeHandler(codes, registry.New(store, clock.System{}))

	code, err := codes.Issue(context.Background(), codeGrant("app", ""), time.Minute)
	require.NoError(t, err)

	result := h.Authorize(context.Background(), &TokenRequest{
		Code:        code,
		RedirectURI: "https://rp.example.com/other",
	}, &client.Info{ID: "app"})
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidGrant, result.Err().Code)
}

func TestAuthorizationCodeReplayRevokesIssuedTokens(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	codes := authcode.NewService(store, 32)
	reg := registry.New(store, clock.System{})
	h := NewAuthorizationCodeHandler(codes, reg)

	grant := codeGrant("app", "")
	code, err := codes.Issue(context.Background(), grant, time.Minute)
	require.NoError(t, err)

	info := &client.Info{ID: "app"}
	req := &TokenRequest{Code: code, RedirectURI: "https://rp.example.com/cb"}

	result := h.Authorize(context.Background(), req, info)
	require.True(t, result.IsSuccess())

	// The processor re-inserts the consumed code with its fingerprints.
	used := result.Value().Grant
	used.RecordIssuedToken("at-jti", time.Now().Add(time.Hour))
	used.RecordIssuedToken("rt-jti", time.Now().Add(time.Hour))
	require.NoError(t, codes.Reinsert(context.Background(), code, used))

	// Replay: denied, and both tokens are revoked.
	result = h.Authorize(context.Background(), req, info)
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidGrant, result.Err().Code)
	assert.Contains(t, result.Err().Description, "already used")

	for _, jti := range []string{"at-jti", "rt-jti"} {
		status, err := reg.Status(context.Background(), jti)
		require.NoError(t, err)
		assert.Equal(t, registry.StatusRevoked, status)
	}
}

func newRefreshFixture(t *testing.T) (*RefreshTokenHandler, *tokens.Service, *registry.Registry) {
	t.Helper()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	options := config.Default("https://op.example.com")
	require.NoError(t, options.Validate())
	service := tokens.NewService(options, keys.NewGeneratingProvider(""), clock.System{})
	reg := registry.New(store, clock.System{})
	return NewRefreshTokenHandler(service, reg), service, reg
}

func TestRefreshTokenGrant(t *testing.T) {
	t.Parallel()

	h, service, _ := newRefreshFixture(t)
	info := &client.Info{ID: "app", GrantTypes: []string{oidc.GrantTypeRefreshToken}}

	issued, err := service.IssueRefreshToken(context.Background(), codeGrant("app", ""), info)
	require.NoError(t, err)

	result := h.Authorize(context.Background(), &TokenRequest{RefreshToken: issued.Token}, info)
	require.True(t, result.IsSuccess(), "got %v", result.Err())
	assert.Equal(t, "user-1", result.Value().Grant.Session.Subject)
	require.NotNil(t, result.Value().RefreshClaims)
	assert.Equal(t, issued.JWTID, result.Value().RefreshClaims.JWTID)
}

func TestRefreshTokenWrongClient(t *testing.T) {
	t.Parallel()

	h, service, _ := newRefreshFixture(t)
	issued, err := service.IssueRefreshToken(context.Background(), codeGrant("app", ""), &client.Info{ID: "app"})
	require.NoError(t, err)

	result := h.Authorize(context.Background(), &TokenRequest{RefreshToken: issued.Token}, &client.Info{ID: "other"})
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidGrant, result.Err().Code)
}

func TestRefreshTokenRevokedAfterRotation(t *testing.T) {
	t.Parallel()

	h, service, reg := newRefreshFixture(t)
	info := &client.Info{ID: "app"}

	issued, err := service.IssueRefreshToken(context.Background(), codeGrant("app", ""), info)
	require.NoError(t, err)
	require.NoError(t, reg.MarkRevoked(context.Background(), issued.JWTID, issued.ExpiresAt))

	result := h.Authorize(context.Background(), &TokenRequest{RefreshToken: issued.Token}, info)
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidGrant, result.Err().Code)
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	t.Parallel()

	h, service, _ := newRefreshFixture(t)
	info := &client.Info{ID: "app"}

	issued, err := service.IssueAccessToken(context.Background(), codeGrant("app", ""), info)
	require.NoError(t, err)

	result := h.Authorize(context.Background(), &TokenRequest{RefreshToken: issued.Token}, info)
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidGrant, result.Err().Code)
}

func TestClientCredentials(t *testing.T) {
	t.Parallel()

	h := NewClientCredentialsHandler(clock.System{})
	info := &client.Info{
		ID:            "machine",
		AuthMethods:   []client.AuthMethod{client.AuthMethodBasic},
		AllowedScopes: []string{"api:read", "api:write"},
	}

	// No requested scopes: defaults to everything the client may have.
	result := h.Authorize(context.Background(), &TokenRequest{}, info)
	require.True(t, result.IsSuccess())
	grant := result.Value().Grant
	assert.Equal(t, "machine", grant.Session.Subject)
	assert.Equal(t, "client_credentials", grant.Session.IdentityProvider)
	assert.Equal(t, []string{"api:read", "api:write"}, grant.Context.Scopes)

	// Requested scopes are checked against the registration.
	result = h.Authorize(context.Background(), &TokenRequest{Scopes: []string{"api:read"}}, info)
	require.True(t, result.IsSuccess())
	assert.Equal(t, []string{"api:read"}, result.Value().Grant.Context.Scopes)

	result = h.Authorize(context.Background(), &TokenRequest{Scopes: []string{"admin"}}, info)
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidScope, result.Err().Code)
}

func TestClientCredentialsRejectsPublicClients(t *testing.T) {
	t.Parallel()

	h := NewClientCredentialsHandler(clock.System{})
	result := h.Authorize(context.Background(), &TokenRequest{}, &client.Info{
		ID:          "spa",
		AuthMethods: []client.AuthMethod{client.AuthMethodNone},
	})
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeUnauthorizedClient, result.Err().Code)
}

func TestJWTBearerUntrustedIssuer(t *testing.T) {
	t.Parallel()

	resolver := jwks.NewResolver(securehttp.NewClient(config.SecureHTTPOptions{
		BlockPrivateNetworks: true,
		AllowedSchemes:       []string{"https"},
	}))
	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	h := NewJWTBearerHandler(map[string]config.TrustedIssuer{}, resolver,
		registry.New(store, clock.System{}), clock.System{}, "https://op.example.com")

	// Any syntactically valid JWT from an unknown issuer is refused before
	// signature verification is even attempted.
	assertion := "eyJhbGciOiJub25lIn0." +
		base64.RawURLEncoding.EncodeToString([]byte(`{"iss":"https://unknown.example.com"}`)) + "."
	result := h.Authorize(context.Background(), &TokenRequest{Assertion: assertion}, &client.Info{ID: "app"})
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidGrant, result.Err().Code)
}

func TestDispatcher(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(NewClientCredentialsHandler(clock.System{}))
	info := &client.Info{
		ID:            "machine",
		AuthMethods:   []client.AuthMethod{client.AuthMethodBasic},
		GrantTypes:    []string{oidc.GrantTypeClientCredentials},
		AllowedScopes: []string{"api:read"},
	}

	result := d.Authorize(context.Background(), &TokenRequest{GrantType: oidc.GrantTypeClientCredentials}, info)
	assert.True(t, result.IsSuccess())

	result = d.Authorize(context.Background(), &TokenRequest{GrantType: "password"}, info)
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeUnsupportedGrantType, result.Err().Code)

	// A known grant type the client did not register.
	d = NewDispatcher(NewClientCredentialsHandler(clock.System{}))
	info.GrantTypes = nil
	result = d.Authorize(context.Background(), &TokenRequest{GrantType: oidc.GrantTypeClientCredentials}, info)
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeUnauthorizedClient, result.Err().Code)
}

func TestFromForm(t *testing.T) {
	t.Parallel()

	req := FromForm(url.Values{
		"grant_type": {"authorization_code"},
		"code":       {"abc"},
		"scope":      {"openid profile"},
		"resource":   {"https://api.example.com", "https://files.example.com"},
	})
	assert.Equal(t, "authorization_code", req.GrantType)
	assert.Equal(t, "abc", req.Code)
	assert.Equal(t, []string{"openid", "profile"}, req.Scopes)
	assert.Len(t, req.Resources, 2)
}
