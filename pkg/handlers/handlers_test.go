// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signet-dev/signet/pkg/authcode"
	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/client/clientauth"
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

const testClientSecret = "s3cret-value-long"

type testEnv struct {
	options  *config.Options
	store    storage.Store
	clock    *clock.Frozen
	clients  *client.Store
	registry *registry.Registry
	tokens   *tokens.Service
	codes    *authcode.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	fc := clock.NewFrozen(time.Now())
	options := config.Default("https://op.example.com")
	return &testEnv{
		options:  options,
		store:    store,
		clock:    fc,
		clients:  client.NewStore(store),
		registry: registry.New(store, fc),
		tokens:   tokens.NewService(options, keys.NewGeneratingProvider(""), fc),
		codes:    authcode.NewService(store, options.AuthorizationCodeLength),
	}
}

func (e *testEnv) authenticator() *clientauth.Authenticator {
	resolver := jwks.NewResolver(securehttp.NewClient(config.SecureHTTPOptions{
		BlockPrivateNetworks: true,
		AllowedSchemes:       []string{"https"},
	}))
	return clientauth.New(e.clients, resolver, e.registry, e.clock, e.options.Issuer+PathToken)
}

func (e *testEnv) seed(t *testing.T, info *client.Info) {
	t.Helper()
	require.NoError(t, e.clients.Put(context.Background(), info))
}

func testClient(id string) *client.Info {
	return &client.Info{
		ID:                   id,
		AuthMethods:          []client.AuthMethod{client.AuthMethodBasic},
		Secrets:              []client.Secret{{Value: testClientSecret}},
		GrantTypes:           []string{oidc.GrantTypeAuthorizationCode, oidc.GrantTypeRefreshToken},
		AllowedScopes:        []string{"openid", "profile", "offline_access"},
		OfflineAccessAllowed: true,
	}
}

func userGrant(clientID string, scopes ...string) *session.AuthorizedGrant {
	return &session.AuthorizedGrant{
		Session: &session.AuthSession{
			Subject:            "alice",
			SessionID:          "sess-1",
			AuthenticationTime: time.Now(),
		},
		Context: &session.AuthorizationContext{
			ClientID: clientID,
			Scopes:   scopes,
		},
	}
}

// postForm drives a handler with a form-encoded POST, optionally carrying
// the shared test client's basic credentials.
func postForm(h http.Handler, clientID string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if clientID != "" {
		req.SetBasicAuth(clientID, testClientSecret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
