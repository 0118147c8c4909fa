// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/signet-dev/signet/pkg/authcode"
	"github.com/signet-dev/signet/pkg/clock"
	"github.com/signet-dev/signet/pkg/config"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/request"
	"github.com/signet-dev/signet/pkg/session"
	"github.com/signet-dev/signet/pkg/tokens"
	"github.com/signet-dev/signet/pkg/validate"
)

// Interaction supplies the host application's login and consent pages.
// Both receive the URL the user should come back to once the interaction
// finished.
type Interaction interface {
	LoginURL(returnTo string) string
	ConsentURL(returnTo string) string
}

// AuthorizeHandler serves the authorization endpoint: request fetching,
// validation, end-user interaction and artifact issuance.
type AuthorizeHandler struct {
	fetcher  request.Fetcher
	chain    validate.Chain
	sessions session.UserSessionResolver
	consent  session.ConsentProvider
	interact Interaction

	codes   *authcode.Service
	tokens  *tokens.Service
	options *config.Options
	clock   clock.Clock
}

// NewAuthorizeHandler creates the handler.
func NewAuthorizeHandler(
	fetcher request.Fetcher,
	chain validate.Chain,
	sessions session.UserSessionResolver,
	consent session.ConsentProvider,
	interact Interaction,
	codes *authcode.Service,
	service *tokens.Service,
	options *config.Options,
	c clock.Clock,
) *AuthorizeHandler {
	if c == nil {
		c = clock.System{}
	}
	return &AuthorizeHandler{
		fetcher:  fetcher,
		chain:    chain,
		sessions: sessions,
		consent:  consent,
		interact: interact,
		codes:    codes,
		tokens:   service,
		options:  options,
		clock:    c,
	}
}

// ServeHTTP implements http.Handler.
func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var params url.Values
	switch r.Method {
	case http.MethodGet:
		params = r.URL.Query()
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, oidc.ErrInvalidRequest.WithDescription("The request body could not be parsed."))
			return
		}
		params = r.PostForm
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	req := request.FromValues(params)
	state := req.Get(request.ParamState)

	fetched := h.fetcher.Fetch(ctx, req)
	if !fetched.IsSuccess() {
		writeAuthorizeError(w, r, fetched.Err(), state)
		return
	}
	req = fetched.Value()
	// A pushed or object-carried request may bring its own state.
	if s := req.Get(request.ParamState); s != "" {
		state = s
	}

	validated := h.chain.Run(ctx, validate.NewContext(req))
	if !validated.IsSuccess() {
		writeAuthorizeError(w, r, validated.Err(), state)
		return
	}
	vc := validated.Value()

	userSession, err := h.sessions.ResolveSession(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve the user session", "error", err)
		writeAuthorizeError(w, r, vc.Fail(oidc.ErrServerError), state)
		return
	}

	promptNone := slices.Contains(vc.Prompts, oidc.PromptNone)

	if h.loginNeeded(userSession, vc) {
		if promptNone {
			writeAuthorizeError(w, r, vc.Fail(oidc.ErrLoginRequired), state)
			return
		}
		http.Redirect(w, r, h.interact.LoginURL(h.returnTo(r)), http.StatusFound)
		return
	}

	decision, err := h.consent.CheckConsent(ctx, userSession, vc.Client.ID, vc.Scopes)
	if err != nil {
		slog.ErrorContext(ctx, "consent check failed", "client_id", vc.Client.ID, "error", err)
		writeAuthorizeError(w, r, vc.Fail(oidc.ErrServerError), state)
		return
	}
	if slices.Contains(vc.Prompts, oidc.PromptConsent) && decision == session.ConsentGranted {
		decision = session.ConsentRequired
	}
	switch decision {
	case session.ConsentDenied:
		writeAuthorizeError(w, r, vc.Fail(oidc.ErrAccessDenied), state)
		return
	case session.ConsentRequired:
		if promptNone {
			writeAuthorizeError(w, r, vc.Fail(oidc.ErrConsentRequired), state)
			return
		}
		http.Redirect(w, r, h.interact.ConsentURL(h.returnTo(r)), http.StatusFound)
		return
	}

	h.issue(w, r, vc, userSession, state)
}

// loginNeeded decides whether the user must (re)authenticate: no session,
// an explicit prompt=login, or an auth_time older than max_age.
func (h *AuthorizeHandler) loginNeeded(userSession *session.AuthSession, vc *validate.Context) bool {
	if userSession == nil {
		return true
	}
	if slices.Contains(vc.Prompts, oidc.PromptLogin) || slices.Contains(vc.Prompts, oidc.PromptSelectAccount) {
		return true
	}
	if vc.HasMaxAge && h.clock.Now().Sub(userSession.AuthenticationTime) > vc.MaxAge {
		return true
	}
	return false
}

func (h *AuthorizeHandler) returnTo(r *http.Request) string {
	return h.options.Issuer + r.URL.RequestURI()
}

// issue is the terminal state: mint the artifacts the response type asks for
// and render them in the resolved response mode.
func (h *AuthorizeHandler) issue(w http.ResponseWriter, r *http.Request, vc *validate.Context, userSession *session.AuthSession, state string) {
	ctx := r.Context()
	userSession.AddAffectedClient(vc.Client.ID)

	grant := &session.AuthorizedGrant{
		Session: userSession,
		Context: &session.AuthorizationContext{
			ClientID:            vc.Client.ID,
			Scopes:              vc.Scopes,
			Resources:           vc.Resources,
			RequestedClaims:     vc.RequestedClaims,
			Nonce:               vc.Nonce,
			RedirectURI:         vc.RedirectURI,
			CodeChallenge:       vc.CodeChallenge,
			CodeChallengeMethod: vc.CodeChallengeMethod,
		},
	}

	out := url.Values{}
	if state != "" {
		out.Set("state", state)
	}

	var code string
	if vc.HasResponseType(oidc.ResponseTypeCode) {
		var err error
		code, err = h.codes.Issue(ctx, grant, vc.Client.CodeLifetime(h.options.AuthorizationCodeLifetime))
		if err != nil {
			slog.ErrorContext(ctx, "failed to issue an authorization code", "client_id", vc.Client.ID, "error", err)
			writeAuthorizeError(w, r, vc.Fail(oidc.ErrServerError), state)
			return
		}
		out.Set("code", code)
	}

	var accessToken string
	if vc.HasResponseType(oidc.ResponseTypeToken) {
		access, err := h.tokens.IssueAccessToken(ctx, grant, vc.Client)
		if err != nil {
			slog.ErrorContext(ctx, "failed to issue an access token", "client_id", vc.Client.ID, "error", err)
			writeAuthorizeError(w, r, vc.Fail(oidc.ErrServerError), state)
			return
		}
		accessToken = access.Token
		out.Set("access_token", access.Token)
		out.Set("token_type", oidc.TokenTypeBearer)
		out.Set("expires_in", strconv.FormatInt(int64(access.Lifetime.Seconds()), 10))
	}

	if vc.HasResponseType(oidc.ResponseTypeIDToken) {
		id, err := h.tokens.IssueIDToken(ctx, grant, vc.Client, tokens.IDTokenInput{
			AccessToken: accessToken,
			Code:        code,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to issue an id token", "client_id", vc.Client.ID, "error", err)
			writeAuthorizeError(w, r, vc.Fail(oidc.ErrServerError), state)
			return
		}
		out.Set("id_token", id.Token)
	}

	if userSession.SessionID != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     h.options.SessionCookieName,
			Value:    userSession.SessionID,
			Path:     "/",
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
		})
	}

	writeAuthorizeResponse(w, r, &oidc.AuthorizeResponse{
		RedirectURI: vc.RedirectURI,
		Mode:        vc.ResponseMode,
		Params:      out,
	})
}
