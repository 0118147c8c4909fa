// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/request"
)

// NewClientValidator resolves client_id into the client descriptor.
func NewClientValidator(clients *client.Store) Validator {
	return ValidatorFunc(func(ctx context.Context, vc *Context) *oidc.Error {
		clientID := vc.Request.ClientID()
		if clientID == "" {
			return oidc.ErrInvalidRequest.WithDescription("client_id is required.")
		}
		info, err := clients.Get(ctx, clientID)
		if errors.Is(err, client.ErrNotFound) {
			return oidc.ErrInvalidRequest.WithDescription("Unknown client.")
		}
		if err != nil {
			return oidc.ErrServerError.WithDescription("Failed to resolve the client.")
		}
		vc.Client = info
		return nil
	})
}

// NewRedirectURIValidator picks and verifies the effective redirect URI.
// Errors here never redirect: an unvalidated target must not receive them.
func NewRedirectURIValidator() Validator {
	return ValidatorFunc(func(_ context.Context, vc *Context) *oidc.Error {
		requested := vc.Request.Get(request.ParamRedirectURI)
		if requested == "" {
			if len(vc.Client.RedirectURIs) == 1 {
				vc.RedirectURI = vc.Client.RedirectURIs[0]
				return nil
			}
			return oidc.ErrInvalidRequest.WithDescription("redirect_uri is required.")
		}
		if !vc.Client.MatchRedirectURI(requested) {
			return oidc.ErrInvalidRequest.WithDescription("The redirect_uri is not registered for this client.")
		}
		vc.RedirectURI = requested
		return nil
	})
}

// validResponseTypes are the accepted response_type components.
var validResponseTypes = []string{
	oidc.ResponseTypeCode, oidc.ResponseTypeToken, oidc.ResponseTypeIDToken,
}

// NewResponseTypeValidator resolves response_type and the response mode.
// From here on the context carries a renderable redirect target.
func NewResponseTypeValidator() Validator {
	return ValidatorFunc(func(_ context.Context, vc *Context) *oidc.Error {
		parts := vc.Request.ResponseTypes()
		if len(parts) == 0 {
			return oidc.ErrInvalidRequest.WithDescription("response_type is required.")
		}
		for _, p := range parts {
			if !slices.Contains(validResponseTypes, p) {
				return oidc.ErrUnsupportedResponseType.WithDescription("Unknown response type %q.", p)
			}
		}
		normalized := strings.Join(parts, " ")
		if !vc.Client.AllowsResponseType(normalized) {
			return oidc.ErrUnauthorizedClient.WithDescription("The client may not use response type %q.", normalized)
		}
		vc.ResponseTypes = parts

		implicit := slices.Contains(parts, oidc.ResponseTypeToken) ||
			slices.Contains(parts, oidc.ResponseTypeIDToken)

		mode := oidc.ResponseMode(vc.Request.Get(request.ParamResponseMode))
		switch mode {
		case "":
			if implicit {
				mode = oidc.ResponseModeFragment
			} else {
				mode = oidc.ResponseModeQuery
			}
		case oidc.ResponseModeQuery:
			// Tokens must never travel in a query string.
			if implicit {
				return oidc.ErrInvalidRequest.WithDescription("response_mode=query cannot carry tokens.")
			}
		case oidc.ResponseModeFragment, oidc.ResponseModeFormPost:
		default:
			return oidc.ErrInvalidRequest.WithDescription("Unsupported response_mode %q.", mode)
		}
		vc.ResponseMode = mode
		return nil
	})
}

// NewScopeValidator checks the requested scopes against the client
// registration and the server's supported set.
func NewScopeValidator(supported []string) Validator {
	return ValidatorFunc(func(_ context.Context, vc *Context) *oidc.Error {
		scopes := vc.Request.Scopes()
		for _, s := range scopes {
			if !slices.Contains(supported, s) {
				return oidc.ErrInvalidScope.WithDescription("Scope %q is not supported.", s)
			}
		}
		if !vc.Client.AllowsScopes(scopes) {
			return oidc.ErrInvalidScope.WithDescription("The client may not request these scopes.")
		}
		if vc.HasResponseType(oidc.ResponseTypeIDToken) && !slices.Contains(scopes, oidc.ScopeOpenID) {
			return oidc.ErrInvalidScope.WithDescription("The openid scope is required for id_token responses.")
		}
		if slices.Contains(scopes, oidc.ScopeOfflineAccess) && !vc.Client.OfflineAccessAllowed {
			return oidc.ErrInvalidScope.WithDescription("The client may not request offline access.")
		}
		vc.Scopes = scopes
		return nil
	})
}

// NewResourceValidator checks RFC 8707 resource indicators.
func NewResourceValidator() Validator {
	return ValidatorFunc(func(_ context.Context, vc *Context) *oidc.Error {
		resources := vc.Request.Resources()
		for _, r := range resources {
			u, err := url.Parse(r)
			if err != nil || !u.IsAbs() || u.Fragment != "" {
				return oidc.ErrInvalidTarget.WithDescription("Resource %q must be an absolute URI without a fragment.", r)
			}
		}
		if !vc.Client.AllowsResources(resources) {
			return oidc.ErrInvalidTarget.WithDescription("The client may not request these resources.")
		}
		vc.Resources = resources
		return nil
	})
}

// NewPKCEValidator checks the code challenge. PKCE is mandatory when the
// client registration requires it, and for public clients on code flows;
// requireAlways extends the obligation to every code flow.
func NewPKCEValidator(allowPlain, requireAlways bool) Validator {
	return ValidatorFunc(func(_ context.Context, vc *Context) *oidc.Error {
		challenge := vc.Request.Get(request.ParamCodeChallenge)
		method := vc.Request.Get(request.ParamCodeChallengeMethod)

		required := vc.Client.RequirePKCE ||
			(vc.HasResponseType(oidc.ResponseTypeCode) && (requireAlways || vc.Client.Public()))
		if challenge == "" {
			if required {
				return oidc.ErrInvalidRequest.WithDescription("A code_challenge is required for this client.")
			}
			if method != "" {
				return oidc.ErrInvalidRequest.WithDescription("code_challenge_method without a code_challenge.")
			}
			return nil
		}

		if len(challenge) < 43 || len(challenge) > 128 {
			return oidc.ErrInvalidRequest.WithDescription("The code_challenge length is out of range.")
		}
		switch method {
		case "", "S256":
			method = "S256"
		case "plain":
			if !allowPlain {
				return oidc.ErrInvalidRequest.WithDescription("The plain code_challenge_method is not allowed.")
			}
		default:
			return oidc.ErrInvalidRequest.WithDescription("Unsupported code_challenge_method %q.", method)
		}
		vc.CodeChallenge = challenge
		vc.CodeChallengeMethod = method
		return nil
	})
}

// NewNoncePromptValidator checks nonce presence for implicit/hybrid flows
// and the prompt parameter values.
func NewNoncePromptValidator() Validator {
	return ValidatorFunc(func(_ context.Context, vc *Context) *oidc.Error {
		nonce := vc.Request.Get(request.ParamNonce)
		implicit := vc.HasResponseType(oidc.ResponseTypeToken) ||
			vc.HasResponseType(oidc.ResponseTypeIDToken)
		if implicit && nonce == "" {
			return oidc.ErrInvalidRequest.WithDescription("A nonce is required for implicit and hybrid flows.")
		}
		vc.Nonce = nonce

		prompts := vc.Request.Prompts()
		for _, p := range prompts {
			switch p {
			case oidc.PromptNone, oidc.PromptLogin, oidc.PromptConsent, oidc.PromptSelectAccount:
			default:
				return oidc.ErrInvalidRequest.WithDescription("Unknown prompt value %q.", p)
			}
		}
		if slices.Contains(prompts, oidc.PromptNone) && len(prompts) > 1 {
			return oidc.ErrInvalidRequest.WithDescription("prompt=none cannot be combined with other prompts.")
		}
		vc.Prompts = prompts
		return nil
	})
}

// claimsTopLevelKeys are the only keys allowed at the top of the claims
// request parameter.
var claimsTopLevelKeys = []string{"userinfo", "id_token"}

// NewClaimsValidator parses the claims parameter.
func NewClaimsValidator() Validator {
	return ValidatorFunc(func(_ context.Context, vc *Context) *oidc.Error {
		raw := vc.Request.Get(request.ParamClaims)
		if raw == "" {
			return nil
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return oidc.ErrInvalidRequest.WithDescription("The claims parameter is not valid JSON.")
		}
		for key := range parsed {
			if !slices.Contains(claimsTopLevelKeys, key) {
				return oidc.ErrInvalidRequest.WithDescription("Unknown top-level key %q in the claims parameter.", key)
			}
		}
		vc.RequestedClaims = parsed
		return nil
	})
}

// NewACRMaxAgeValidator checks acr_values and max_age sanity.
func NewACRMaxAgeValidator() Validator {
	return ValidatorFunc(func(_ context.Context, vc *Context) *oidc.Error {
		if acr := vc.Request.Get(request.ParamACRValues); acr != "" {
			vc.ACRValues = strings.Fields(acr)
		}
		raw := vc.Request.Get(request.ParamMaxAge)
		if raw == "" {
			return nil
		}
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seconds < 0 {
			return oidc.ErrInvalidRequest.WithDescription("max_age must be a non-negative integer.")
		}
		vc.MaxAge = time.Duration(seconds) * time.Second
		vc.HasMaxAge = true
		return nil
	})
}

// AuthorizeChain assembles the canonical validator ordering for the
// authorize and pushed-authorization endpoints.
func AuthorizeChain(clients *client.Store, supportedScopes []string, allowPlainPKCE, requirePKCE bool) Chain {
	return Chain{
		NewClientValidator(clients),
		NewRedirectURIValidator(),
		NewResponseTypeValidator(),
		NewScopeValidator(supportedScopes),
		NewResourceValidator(),
		NewPKCEValidator(allowPlainPKCE, requirePKCE),
		NewNoncePromptValidator(),
		NewClaimsValidator(),
		NewACRMaxAgeValidator(),
	}
}
