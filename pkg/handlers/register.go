// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/clock"
	"github.com/signet-dev/signet/pkg/config"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/random"
)

// registrationTokenLength is the registration access token entropy in bytes.
const registrationTokenLength = 32

// RegistrationHandler serves dynamic client registration (RFC 7591) and the
// per-client management operations (RFC 7592).
type RegistrationHandler struct {
	clients *client.Store
	options *config.Options
	clock   clock.Clock
}

// NewRegistrationHandler creates the handler.
func NewRegistrationHandler(clients *client.Store, options *config.Options, c clock.Clock) *RegistrationHandler {
	if c == nil {
		c = clock.System{}
	}
	return &RegistrationHandler{clients: clients, options: options, clock: c}
}

type registrationResponse struct {
	client.Metadata

	ClientID                string `json:"client_id"`
	ClientSecret            string `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64  `json:"client_id_issued_at"`
	RegistrationAccessToken string `json:"registration_access_token,omitempty"`
	RegistrationClientURI   string `json:"registration_client_uri"`
}

// Register handles POST /connect/register.
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	var metadata client.Metadata
	if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
		writeOAuthError(w, oidc.ErrInvalidClientMetadata.WithDescription("The request body is not valid JSON."))
		return
	}
	if err := metadata.Validate(); err != nil {
		writeOAuthError(w, oidc.ErrInvalidClientMetadata.WithDescription("%s", err.Error()))
		return
	}
	ctx := r.Context()

	info := metadata.ToInfo(uuid.NewString())
	info.CreatedAt = h.clock.Now()

	accessToken, err := random.Token(registrationTokenLength)
	if err != nil {
		writeOAuthError(w, oidc.ErrServerError)
		return
	}
	info.RegistrationAccessToken = accessToken

	var clientSecret string
	if !info.Public() {
		clientSecret, err = random.Token(registrationTokenLength)
		if err != nil {
			writeOAuthError(w, oidc.ErrServerError)
			return
		}
		info.Secrets = []client.Secret{{Value: clientSecret}}
	}

	if err := h.clients.Put(ctx, info); err != nil {
		slog.ErrorContext(ctx, "failed to store the registered client", "error", err)
		writeOAuthError(w, oidc.ErrServerError)
		return
	}
	slog.InfoContext(ctx, "client registered", "client_id", info.ID, "name", info.Name)

	setNoStore(w)
	writeJSON(w, http.StatusCreated, registrationResponse{
		Metadata:                metadata,
		ClientID:                info.ID,
		ClientSecret:            clientSecret,
		ClientIDIssuedAt:        info.CreatedAt.Unix(),
		RegistrationAccessToken: accessToken,
		RegistrationClientURI:   h.clientURI(info.ID),
	})
}

// Get handles GET /connect/register/{client_id}.
func (h *RegistrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	info, ok := h.authorize(w, r)
	if !ok {
		return
	}
	setNoStore(w)
	writeJSON(w, http.StatusOK, registrationResponse{
		Metadata:              metadataFrom(info),
		ClientID:              info.ID,
		ClientIDIssuedAt:      info.CreatedAt.Unix(),
		RegistrationClientURI: h.clientURI(info.ID),
	})
}

// Update handles PUT /connect/register/{client_id}.
func (h *RegistrationHandler) Update(w http.ResponseWriter, r *http.Request) {
	info, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var metadata client.Metadata
	if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
		writeOAuthError(w, oidc.ErrInvalidClientMetadata.WithDescription("The request body is not valid JSON."))
		return
	}
	if err := metadata.Validate(); err != nil {
		writeOAuthError(w, oidc.ErrInvalidClientMetadata.WithDescription("%s", err.Error()))
		return
	}

	updated := metadata.ToInfo(info.ID)
	updated.CreatedAt = info.CreatedAt
	updated.RegistrationAccessToken = info.RegistrationAccessToken
	updated.Secrets = info.Secrets

	if err := h.clients.Put(r.Context(), updated); err != nil {
		writeOAuthError(w, oidc.ErrServerError)
		return
	}
	setNoStore(w)
	writeJSON(w, http.StatusOK, registrationResponse{
		Metadata:              metadata,
		ClientID:              updated.ID,
		ClientIDIssuedAt:      updated.CreatedAt.Unix(),
		RegistrationClientURI: h.clientURI(updated.ID),
	})
}

// Delete handles DELETE /connect/register/{client_id}.
func (h *RegistrationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	info, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if err := h.clients.Delete(r.Context(), info.ID); err != nil {
		writeOAuthError(w, oidc.ErrServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorize resolves the managed client and checks the registration access
// token. RFC 7592 prescribes 401 for bad tokens against existing clients.
func (h *RegistrationHandler) authorize(w http.ResponseWriter, r *http.Request) (*client.Info, bool) {
	clientID := chi.URLParam(r, "client_id")
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

	info, err := h.clients.Get(r.Context(), clientID)
	if errors.Is(err, client.ErrNotFound) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	if err != nil {
		writeOAuthError(w, oidc.ErrServerError)
		return nil, false
	}
	if token == "" || info.RegistrationAccessToken == "" || !tokenMatches(info.RegistrationAccessToken, token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return info, true
}

func tokenMatches(stored, presented string) bool {
	a := sha256.Sum256([]byte(stored))
	b := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

func (h *RegistrationHandler) clientURI(clientID string) string {
	return h.options.Issuer + PathRegister + "/" + clientID
}

// metadataFrom reverses ToInfo for management reads; secrets never travel
// back out.
func metadataFrom(info *client.Info) client.Metadata {
	m := client.Metadata{
		RedirectURIs:                    info.RedirectURIs,
		ClientName:                      info.Name,
		GrantTypes:                      info.GrantTypes,
		ResponseTypes:                   info.ResponseTypes,
		Scope:                           strings.Join(info.AllowedScopes, " "),
		JWKS:                            info.JWKS,
		JWKSURI:                         info.JWKSURI,
		SubjectType:                     string(info.SubjectType),
		SectorIdentifierURI:             info.SectorIdentifier,
		IDTokenSignedResponseAlg:        info.IDTokenSignedResponseAlg,
		PostLogoutRedirectURIs:          info.PostLogoutRedirectURIs,
		BackchannelTokenDeliveryMode:    info.BackchannelTokenDeliveryMode,
		BackchannelNotificationEndpoint: info.BackchannelNotificationEndpoint,
	}
	if len(info.AuthMethods) > 0 {
		m.TokenEndpointAuthMethod = string(info.AuthMethods[0])
	}
	return m
}
