// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signet-dev/signet/pkg/storage"
)

func TestRedirectURIMatching(t *testing.T) {
	t.Parallel()

	c := &Info{RedirectURIs: []string{
		"https://client.example/cb",
		"https://Other.Example/CaseSensitivePath",
	}}

	tests := []struct {
		name      string
		requested string
		want      bool
	}{
		{"exact", "https://client.example/cb", true},
		{"scheme case-insensitive", "HTTPS://client.example/cb", true},
		{"host case-insensitive", "https://CLIENT.EXAMPLE/cb", true},
		{"path case-sensitive", "https://client.example/CB", false},
		{"no trailing slash relaxation", "https://client.example/cb/", false},
		{"fragment ignored", "https://client.example/cb#frag", true},
		{"query significant", "https://client.example/cb?x=1", false},
		{"different host", "https://evil.example/cb", false},
		{"relative", "/cb", false},
		{"registered host case folds too", "https://other.example/CaseSensitivePath", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, c.MatchRedirectURI(tc.requested))
		})
	}
}

func TestSecretValidityWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s := Secret{
		Value:     "s3cret",
		NotBefore: now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour),
	}
	assert.True(t, s.ActiveAt(now))
	assert.False(t, s.ActiveAt(now.Add(2*time.Hour)))
	assert.False(t, s.ActiveAt(now.Add(-2*time.Hour)))

	// Open-ended windows.
	assert.True(t, Secret{Value: "x"}.ActiveAt(now))
}

func TestSecretMatches(t *testing.T) {
	t.Parallel()

	s := Secret{Value: "s3cret"}
	assert.True(t, s.Matches("s3cret"))
	assert.False(t, s.Matches("wrong"))
	assert.False(t, s.Matches(""))
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	mem := storage.NewMemoryStore(storage.WithCleanupInterval(time.Hour))
	t.Cleanup(func() { _ = mem.Close() })
	store := NewStore(mem)
	ctx := context.Background()

	info := &Info{
		ID:          "c1",
		AuthMethods: []AuthMethod{AuthMethodBasic},
		Secrets:     []Secret{{Value: "s"}},
	}
	require.NoError(t, store.Put(ctx, info))

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
	assert.True(t, got.UsesAuthMethod(AuthMethodBasic))

	_, err = store.Get(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	// Client ids are case-sensitive.
	_, err = store.Get(ctx, "C1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, "c1"))
	_, err = store.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMetadataValidateDefaults(t *testing.T) {
	t.Parallel()

	m := &Metadata{RedirectURIs: []string{"https://client.example/cb"}}
	require.NoError(t, m.Validate())
	assert.Equal(t, string(AuthMethodBasic), m.TokenEndpointAuthMethod)
	assert.Equal(t, []string{"authorization_code", "refresh_token"}, m.GrantTypes)
	assert.Equal(t, []string{"code"}, m.ResponseTypes)
}

func TestMetadataValidateRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		m    Metadata
	}{
		{"relative redirect", Metadata{RedirectURIs: []string{"/cb"}}},
		{"fragment redirect", Metadata{RedirectURIs: []string{"https://c.example/cb#f"}}},
		{"plain http non-loopback", Metadata{RedirectURIs: []string{"http://c.example/cb"}}},
		{"unknown auth method", Metadata{TokenEndpointAuthMethod: "tls_magic"}},
		{"jwks and jwks_uri", Metadata{JWKS: []byte(`{"keys":[]}`), JWKSURI: "https://c.example/jwks"}},
		{"private_key_jwt without keys", Metadata{TokenEndpointAuthMethod: "private_key_jwt"}},
		{"ping without endpoint", Metadata{BackchannelTokenDeliveryMode: "ping"}},
		{"unknown delivery mode", Metadata{BackchannelTokenDeliveryMode: "carrier_pigeon"}},
		{"public client_credentials", Metadata{TokenEndpointAuthMethod: "none", GrantTypes: []string{"client_credentials"}}},
		{"bad subject type", Metadata{SubjectType: "ephemeral"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := tc.m
			assert.Error(t, m.Validate())
		})
	}
}

func TestMetadataLoopbackHTTPAllowed(t *testing.T) {
	t.Parallel()

	m := &Metadata{RedirectURIs: []string{"http://127.0.0.1:8765/cb", "http://localhost/cb"}}
	assert.NoError(t, m.Validate())
}

func TestMetadataToInfo(t *testing.T) {
	t.Parallel()

	m := &Metadata{
		RedirectURIs: []string{"https://client.example/cb"},
		ClientName:   "Example",
		Scope:        "openid profile",
	}
	require.NoError(t, m.Validate())

	info := m.ToInfo("generated-id")
	assert.Equal(t, "generated-id", info.ID)
	assert.Equal(t, SubjectTypePublic, info.SubjectType)
	assert.Equal(t, []string{"openid", "profile"}, info.AllowedScopes)
	assert.True(t, info.AllowsGrantType("authorization_code"))
}

func TestAllowsHelpers(t *testing.T) {
	t.Parallel()

	c := &Info{
		GrantTypes:       []string{"authorization_code"},
		ResponseTypes:    []string{"code"},
		AllowedScopes:    []string{"openid", "profile"},
		AllowedResources: []string{"https://api.example"},
	}
	assert.True(t, c.AllowsGrantType("authorization_code"))
	assert.False(t, c.AllowsGrantType("client_credentials"))
	assert.True(t, c.AllowsScopes([]string{"openid"}))
	assert.False(t, c.AllowsScopes([]string{"openid", "admin"}))
	assert.True(t, c.AllowsResources([]string{"https://api.example"}))
	assert.False(t, c.AllowsResources([]string{"https://other.example"}))
}
