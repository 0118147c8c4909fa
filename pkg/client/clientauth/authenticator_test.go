// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package clientauth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/clock"
	"github.com/signet-dev/signet/pkg/config"
	"github.com/signet-dev/signet/pkg/jwks"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/registry"
	"github.com/signet-dev/signet/pkg/securehttp"
	"github.com/signet-dev/signet/pkg/storage"
)

const testTokenEndpoint = "https://op.example.com/connect/token"

func newTestAuthenticator(t *testing.T, clients ...*client.Info) *Authenticator {
	t.Helper()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	clientStore := client.NewStore(store)
	for _, info := range clients {
		require.NoError(t, clientStore.Put(context.Background(), info))
	}

	resolver := jwks.NewResolver(securehttp.NewClient(config.SecureHTTPOptions{
		BlockPrivateNetworks: true,
		AllowedSchemes:       []string{"https"},
	}))
	return New(clientStore, resolver, registry.New(store, clock.System{}), clock.System{}, testTokenEndpoint)
}

func confidentialClient(id, secret string, methods ...client.AuthMethod) *client.Info {
	return &client.Info{
		ID:          id,
		AuthMethods: methods,
		Secrets:     []client.Secret{{Value: secret}},
		GrantTypes:  []string{oidc.GrantTypeAuthorizationCode},
	}
}

func TestAuthenticateBasic(t *testing.T) {
	t.Parallel()

	a := newTestAuthenticator(t, confidentialClient("app", "s3cret-value-long", client.AuthMethodBasic))

	result := a.Authenticate(context.Background(), Credentials{
		HasBasic: true, BasicID: "app", BasicSecret: "s3cret-value-long",
	})
	require.True(t, result.IsSuccess())
	assert.Equal(t, "app", result.Value().ID)

	result = a.Authenticate(context.Background(), Credentials{
		HasBasic: true, BasicID: "app", BasicSecret: "wrong",
	})
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidClient, result.Err().Code)
	assert.Equal(t, http.StatusUnauthorized, result.Err().StatusCode())
}

func TestAuthenticatePostRequiresRegisteredMethod(t *testing.T) {
	t.Parallel()

	a := newTestAuthenticator(t, confidentialClient("app", "s3cret-value-long", client.AuthMethodBasic))

	result := a.Authenticate(context.Background(), Credentials{
		ClientID: "app", FormSecret: "s3cret-value-long",
	})
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidClient, result.Err().Code)
}

func TestAuthenticateExpiredSecret(t *testing.T) {
	t.Parallel()

	info := confidentialClient("app", "s3cret-value-long", client.AuthMethodPost)
	info.Secrets[0].ExpiresAt = time.Now().Add(-time.Hour)
	a := newTestAuthenticator(t, info)

	result := a.Authenticate(context.Background(), Credentials{
		ClientID: "app", FormSecret: "s3cret-value-long",
	})
	assert.False(t, result.IsSuccess())
}

func TestAuthenticateMultipleMethodsRejected(t *testing.T) {
	t.Parallel()

	a := newTestAuthenticator(t, confidentialClient("app", "s3cret-value-long", client.AuthMethodBasic, client.AuthMethodPost))

	result := a.Authenticate(context.Background(), Credentials{
		HasBasic: true, BasicID: "app", BasicSecret: "s3cret-value-long",
		ClientID: "app", FormSecret: "s3cret-value-long",
	})
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidRequest, result.Err().Code)
}

func TestAuthenticatePublicClient(t *testing.T) {
	t.Parallel()

	a := newTestAuthenticator(t, &client.Info{
		ID:          "spa",
		AuthMethods: []client.AuthMethod{client.AuthMethodNone},
	})

	result := a.Authenticate(context.Background(), Credentials{ClientID: "spa"})
	require.True(t, result.IsSuccess())
	assert.True(t, result.Value().Public())

	result = a.Authenticate(context.Background(), Credentials{ClientID: "ghost"})
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidClient, result.Err().Code)
}

func hmacAssertion(t *testing.T, clientID, secret, jti string, exp time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": clientID,
		"sub": clientID,
		"aud": testTokenEndpoint,
		"exp": exp.Unix(),
		"jti": jti,
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthenticateClientSecretJWT(t *testing.T) {
	t.Parallel()

	const secret = "hmac-signing-secret-value"
	a := newTestAuthenticator(t, confidentialClient("app", secret, client.AuthMethodSecretJWT))

	assertion := hmacAssertion(t, "app", secret, uuid.NewString(), time.Now().Add(time.Minute))
	creds := Credentials{
		AssertionType: oidc.ClientAssertionTypeJWTBearer,
		Assertion:     assertion,
	}

	result := a.Authenticate(context.Background(), creds)
	require.True(t, result.IsSuccess(), "first use must succeed: %v", result.Err())

	// The same jti must be rejected on replay.
	result = a.Authenticate(context.Background(), creds)
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidClient, result.Err().Code)
}

func TestAuthenticateClientSecretJWTWrongAudience(t *testing.T) {
	t.Parallel()

	const secret = "hmac-signing-secret-value"
	a := newTestAuthenticator(t, confidentialClient("app", secret, client.AuthMethodSecretJWT))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "app", "sub": "app",
		"aud": "https://other.example.com/token",
		"exp": time.Now().Add(time.Minute).Unix(),
		"jti": uuid.NewString(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	result := a.Authenticate(context.Background(), Credentials{
		AssertionType: oidc.ClientAssertionTypeJWTBearer,
		Assertion:     signed,
	})
	assert.False(t, result.IsSuccess())
}

func TestAuthenticatePrivateKeyJWT(t *testing.T) {
	t.Parallel()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	pub, err := jwk.Import(priv.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "signer"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	setJSON, err := json.Marshal(set)
	require.NoError(t, err)

	a := newTestAuthenticator(t, &client.Info{
		ID:          "machine",
		AuthMethods: []client.AuthMethod{client.AuthMethodPrivateKeyJWT},
		JWKS:        setJSON,
	})

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": "machine", "sub": "machine",
		"aud": testTokenEndpoint,
		"exp": time.Now().Add(time.Minute).Unix(),
		"jti": uuid.NewString(),
	})
	token.Header["kid"] = "signer"
	signed, err := token.SignedString(priv)
	require.NoError(t, err)

	result := a.Authenticate(context.Background(), Credentials{
		AssertionType: oidc.ClientAssertionTypeJWTBearer,
		Assertion:     signed,
	})
	require.True(t, result.IsSuccess(), "got %v", result.Err())
	assert.Equal(t, "machine", result.Value().ID)

	// An assertion signed by a different key must fail.
	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	token = jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": "machine", "sub": "machine",
		"aud": testTokenEndpoint,
		"exp": time.Now().Add(time.Minute).Unix(),
		"jti": uuid.NewString(),
	})
	token.Header["kid"] = "signer"
	forged, err := token.SignedString(other)
	require.NoError(t, err)

	result = a.Authenticate(context.Background(), Credentials{
		AssertionType: oidc.ClientAssertionTypeJWTBearer,
		Assertion:     forged,
	})
	assert.False(t, result.IsSuccess())
}

func TestAssertionWithoutJTIRejected(t *testing.T) {
	t.Parallel()

	const secret = "hmac-signing-secret-value"
	a := newTestAuthenticator(t, confidentialClient("app", secret, client.AuthMethodSecretJWT))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "app", "sub": "app",
		"aud": testTokenEndpoint,
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	result := a.Authenticate(context.Background(), Credentials{
		AssertionType: oidc.ClientAssertionTypeJWTBearer,
		Assertion:     signed,
	})
	assert.False(t, result.IsSuccess())
}

func TestFromHTTPRequestDecodesBasicAuth(t *testing.T) {
	t.Parallel()

	form := url.Values{"grant_type": {"authorization_code"}}
	req, err := http.NewRequest(http.MethodPost, testTokenEndpoint, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// client id "my app" form-url-encoded per RFC 6749 section 2.3.1.
	req.SetBasicAuth("my%20app", "p%26ssword")

	creds := FromHTTPRequest(req)
	assert.True(t, creds.HasBasic)
	assert.Equal(t, "my app", creds.BasicID)
	assert.Equal(t, "p&ssword", creds.BasicSecret)
}
