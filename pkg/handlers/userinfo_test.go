// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProfiles map[string]any

func (p staticProfiles) UserClaims(context.Context, string, []string) (map[string]any, error) {
	return p, nil
}

func userinfoGet(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, PathUserInfo, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUserInfo(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	profiles := staticProfiles{"name": "Alice", "sub": "spoofed"}
	h := NewUserInfoHandler(e.tokens, e.registry, profiles)

	issued, err := e.tokens.IssueAccessToken(context.Background(), userGrant("app", "openid", "profile"), testClient("app"))
	require.NoError(t, err)

	rec := userinfoGet(h, issued.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "alice", out["sub"], "the token subject wins over profile claims")
	assert.Equal(t, "Alice", out["name"])
}

func TestUserInfoWithoutProfileProvider(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	h := NewUserInfoHandler(e.tokens, e.registry, nil)

	issued, err := e.tokens.IssueAccessToken(context.Background(), userGrant("app", "openid"), testClient("app"))
	require.NoError(t, err)

	rec := userinfoGet(h, issued.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, map[string]any{"sub": "alice"}, out)
}

func TestUserInfoRequiresOpenIDScope(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	h := NewUserInfoHandler(e.tokens, e.registry, nil)

	issued, err := e.tokens.IssueAccessToken(context.Background(), userGrant("app", "profile"), testClient("app"))
	require.NoError(t, err)

	rec := userinfoGet(h, issued.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestUserInfoRejectsRevokedToken(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	h := NewUserInfoHandler(e.tokens, e.registry, nil)

	issued, err := e.tokens.IssueAccessToken(context.Background(), userGrant("app", "openid"), testClient("app"))
	require.NoError(t, err)
	require.NoError(t, e.registry.MarkRevoked(context.Background(), issued.JWTID, issued.ExpiresAt))

	rec := userinfoGet(h, issued.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserInfoRequiresBearerToken(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	h := NewUserInfoHandler(e.tokens, e.registry, nil)

	rec := userinfoGet(h, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}
