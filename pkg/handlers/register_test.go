// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signet-dev/signet/pkg/oidc"
)

func registrationRouter(e *testEnv) chi.Router {
	h := NewRegistrationHandler(e.clients, e.options, e.clock)
	r := chi.NewRouter()
	r.Post(PathRegister, h.Register)
	r.Get(PathRegister+"/{client_id}", h.Get)
	r.Put(PathRegister+"/{client_id}", h.Update)
	r.Delete(PathRegister+"/{client_id}", h.Delete)
	return r
}

func registrationRequest(method, path, token, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

type registeredClient struct {
	ClientID                string `json:"client_id"`
	ClientSecret            string `json:"client_secret"`
	ClientName              string `json:"client_name"`
	RegistrationAccessToken string `json:"registration_access_token"`
	RegistrationClientURI   string `json:"registration_client_uri"`
}

func TestRegistrationLifecycle(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	router := registrationRouter(e)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, registrationRequest(http.MethodPost, PathRegister, "",
		`{"redirect_uris":["https://rp.example.com/cb"],"client_name":"Test RP","scope":"openid profile"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created registeredClient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ClientID)
	assert.NotEmpty(t, created.ClientSecret, "client_secret_basic is the default method")
	assert.NotEmpty(t, created.RegistrationAccessToken)
	assert.Equal(t, e.options.Issuer+PathRegister+"/"+created.ClientID, created.RegistrationClientURI)

	managePath := PathRegister + "/" + created.ClientID

	// Read it back with the registration access token.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, registrationRequest(http.MethodGet, managePath, created.RegistrationAccessToken, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched registeredClient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, "Test RP", fetched.ClientName)
	assert.Empty(t, fetched.ClientSecret, "secrets never travel back out")

	// Update keeps the stored secret intact.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, registrationRequest(http.MethodPut, managePath, created.RegistrationAccessToken,
		`{"redirect_uris":["https://rp.example.com/cb"],"client_name":"Renamed RP"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	info, err := e.clients.Get(context.Background(), created.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed RP", info.Name)
	require.Len(t, info.Secrets, 1)
	assert.True(t, info.Secrets[0].Matches(created.ClientSecret))

	// Delete, then the management resource is gone.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, registrationRequest(http.MethodDelete, managePath, created.RegistrationAccessToken, ""))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, registrationRequest(http.MethodGet, managePath, created.RegistrationAccessToken, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegistrationRejectsBadToken(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	router := registrationRouter(e)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, registrationRequest(http.MethodPost, PathRegister, "",
		`{"redirect_uris":["https://rp.example.com/cb"]}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created registeredClient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, registrationRequest(http.MethodGet, PathRegister+"/"+created.ClientID, "wrong-token", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegistrationRejectsInvalidMetadata(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	router := registrationRouter(e)

	tests := []struct {
		name string
		body string
	}{
		{name: "not JSON", body: `{"redirect_uris":`},
		{name: "fragment in redirect URI", body: `{"redirect_uris":["https://rp.example.com/cb#frag"]}`},
		{name: "plain http redirect URI", body: `{"redirect_uris":["http://rp.example.com/cb"]}`},
		{name: "unknown auth method", body: `{"token_endpoint_auth_method":"magic"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, registrationRequest(http.MethodPost, PathRegister, "", tt.body))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var body oidc.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, oidc.CodeInvalidClientMetadata, body.Error)
		})
	}
}
