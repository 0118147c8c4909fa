// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/config"
	"github.com/signet-dev/signet/pkg/jwks"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/par"
	"github.com/signet-dev/signet/pkg/securehttp"
	"github.com/signet-dev/signet/pkg/storage"
)

func TestCompositeShortCircuits(t *testing.T) {
	t.Parallel()

	failing := fetcherFunc(func(context.Context, *Request) oidc.Result[*Request] {
		return oidc.Failure[*Request](oidc.ErrInvalidRequest)
	})
	reached := false
	second := fetcherFunc(func(_ context.Context, req *Request) oidc.Result[*Request] {
		reached = true
		return oidc.Success(req)
	})

	result := NewComposite(failing, second).Fetch(context.Background(), FromValues(url.Values{}))
	require.False(t, result.IsSuccess())
	assert.False(t, reached, "failure must short-circuit the chain")
}

type fetcherFunc func(context.Context, *Request) oidc.Result[*Request]

func (f fetcherFunc) Fetch(ctx context.Context, req *Request) oidc.Result[*Request] {
	return f(ctx, req)
}

func TestPushedRequestFetcher(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	parStore := par.NewStore(store, time.Minute, 32)

	urn, _, err := parStore.Push(context.Background(), &par.StoredRequest{
		ClientID: "app",
		Params: url.Values{
			ParamClientID:     {"app"},
			ParamResponseType: {"code"},
			ParamScope:        {"openid"},
		},
	})
	require.NoError(t, err)

	f := NewPushedRequestFetcher(parStore, false)

	result := f.Fetch(context.Background(), FromValues(url.Values{
		ParamClientID:   {"app"},
		ParamRequestURI: {urn},
	}))
	require.True(t, result.IsSuccess())
	assert.Equal(t, "code", result.Value().Get(ParamResponseType))

	// Second use of the URN fails.
	result = f.Fetch(context.Background(), FromValues(url.Values{
		ParamClientID:   {"app"},
		ParamRequestURI: {urn},
	}))
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidRequestURI, result.Err().Code)
}

func TestPushedRequestFetcherClientMismatch(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	parStore := par.NewStore(store, time.Minute, 32)

	urn, _, err := parStore.Push(context.Background(), &par.StoredRequest{
		ClientID: "app",
		Params:   url.Values{ParamClientID: {"app"}},
	})
	require.NoError(t, err)

	f := NewPushedRequestFetcher(parStore, false)
	result := f.Fetch(context.Background(), FromValues(url.Values{
		ParamClientID:   {"other"},
		ParamRequestURI: {urn},
	}))
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidRequest, result.Err().Code)
}

func TestPushedRequestFetcherRequiresPAR(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	f := NewPushedRequestFetcher(par.NewStore(store, time.Minute, 32), true)
	result := f.Fetch(context.Background(), FromValues(url.Values{ParamClientID: {"app"}}))
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidRequest, result.Err().Code)
}

func TestRequestURIFetcherForbidsBothForms(t *testing.T) {
	t.Parallel()

	httpClient := securehttp.NewClient(config.SecureHTTPOptions{
		BlockPrivateNetworks: true,
		AllowedSchemes:       []string{"https"},
	})
	f := NewRequestURIFetcher(httpClient)

	result := f.Fetch(context.Background(), FromValues(url.Values{
		ParamRequest:    {"jwt"},
		ParamRequestURI: {"https://rp.example.com/request.jwt"},
	}))
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidRequest, result.Err().Code)
}

func TestRequestURIFetcherBlockedHost(t *testing.T) {
	t.Parallel()

	httpClient := securehttp.NewClient(config.SecureHTTPOptions{
		BlockPrivateNetworks: true,
		AllowedSchemes:       []string{"https"},
	})
	f := NewRequestURIFetcher(httpClient)

	result := f.Fetch(context.Background(), FromValues(url.Values{
		ParamRequestURI: {"https://169.254.169.254/request.jwt"},
	}))
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidRequestURI, result.Err().Code)
}

func newObjectFetcher(t *testing.T, info *client.Info) *RequestObjectFetcher {
	t.Helper()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	clients := client.NewStore(store)
	require.NoError(t, clients.Put(context.Background(), info))

	resolver := jwks.NewResolver(securehttp.NewClient(config.SecureHTTPOptions{
		BlockPrivateNetworks: true,
		AllowedSchemes:       []string{"https"},
	}))
	return NewRequestObjectFetcher(clients, resolver)
}

func signedRequestObject(t *testing.T, priv *ecdsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = "ro-key"
	signed, err := token.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func TestRequestObjectFetcherMergesWithPrecedence(t *testing.T) {
	t.Parallel()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pub, err := jwk.Import(priv.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "ro-key"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	setJSON, err := json.Marshal(set)
	require.NoError(t, err)

	f := newObjectFetcher(t, &client.Info{ID: "app", JWKS: setJSON})

	object := signedRequestObject(t, priv, jwt.MapClaims{
		"iss":             "app",
		ParamClientID:     "app",
		ParamScope:        "openid profile",
		ParamMaxAge:       float64(300),
		ParamResource:     []any{"https://api.example.com"},
		ParamResponseType: "code",
	})

	result := f.Fetch(context.Background(), FromValues(url.Values{
		ParamClientID: {"app"},
		ParamScope:    {"openid"},
		ParamRequest:  {object},
		ParamState:    {"abc"},
	}))
	require.True(t, result.IsSuccess(), "got %v", result.Err())

	merged := result.Value()
	assert.Equal(t, "openid profile", merged.Get(ParamScope), "JWT claims take precedence")
	assert.Equal(t, "abc", merged.Get(ParamState), "query-only parameters survive")
	assert.Equal(t, "300", merged.Get(ParamMaxAge))
	assert.Equal(t, []string{"https://api.example.com"}, merged.Resources())
	assert.Empty(t, merged.Get(ParamRequest), "the consumed object is removed")
}

func TestRequestObjectFetcherRejectsForgedSignature(t *testing.T) {
	t.Parallel()

	registered, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pub, err := jwk.Import(registered.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "ro-key"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	setJSON, err := json.Marshal(set)
	require.NoError(t, err)

	f := newObjectFetcher(t, &client.Info{ID: "app", JWKS: setJSON})

	attacker, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	object := signedRequestObject(t, attacker, jwt.MapClaims{ParamClientID: "app"})

	result := f.Fetch(context.Background(), FromValues(url.Values{
		ParamClientID: {"app"},
		ParamRequest:  {object},
	}))
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidRequestObject, result.Err().Code)
}

func TestRequestObjectFetcherClientIDMismatch(t *testing.T) {
	t.Parallel()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pub, err := jwk.Import(priv.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "ro-key"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	setJSON, err := json.Marshal(set)
	require.NoError(t, err)

	f := newObjectFetcher(t, &client.Info{ID: "app", JWKS: setJSON})
	object := signedRequestObject(t, priv, jwt.MapClaims{ParamClientID: "other"})

	result := f.Fetch(context.Background(), FromValues(url.Values{
		ParamClientID: {"app"},
		ParamRequest:  {object},
	}))
	require.False(t, result.IsSuccess())
	assert.Equal(t, oidc.CodeInvalidRequestObject, result.Err().Code)
}
