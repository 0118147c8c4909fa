// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package handlers is the HTTP surface of the provider: one handler per
// protocol endpoint, plus the shared response rendering. Handlers hold no
// request-scoped state and are safe for concurrent use.
package handlers

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/signet-dev/signet/pkg/oidc"
)

// setNoStore marks token-bearing responses uncacheable (RFC 6749 5.1).
func setNoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response body", "error", err)
	}
}

// writeOAuthError renders a protocol error on a JSON endpoint, following
// RFC 6749 section 5.2 for status codes and the WWW-Authenticate hint.
func writeOAuthError(w http.ResponseWriter, e *oidc.Error) {
	setNoStore(w)
	if e.Code == oidc.CodeInvalidClient && e.StatusCode() == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="token", error="invalid_client"`)
	}
	writeJSON(w, e.StatusCode(), oidc.ErrorResponse{
		Error:            e.Code,
		ErrorDescription: e.Description,
		ErrorURI:         e.URI,
	})
}

var formPostPage = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html>
<head><title>Submit This Form</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{- range $name, $values := .Params}}{{range $values}}
<input type="hidden" name="{{$name}}" value="{{.}}"/>
{{- end}}{{end}}
<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`))

// writeAuthorizeResponse renders the authorization outcome in the resolved
// response mode: a 302 with query or fragment parameters, or a
// self-submitting form_post page.
func writeAuthorizeResponse(w http.ResponseWriter, r *http.Request, resp *oidc.AuthorizeResponse) {
	setNoStore(w)

	switch resp.Mode {
	case oidc.ResponseModeFormPost:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		err := formPostPage.Execute(w, struct {
			Action string
			Params url.Values
		}{Action: resp.RedirectURI, Params: resp.Params})
		if err != nil {
			slog.Warn("failed to render form_post page", "error", err)
		}

	case oidc.ResponseModeFragment:
		u, err := url.Parse(resp.RedirectURI)
		if err != nil {
			writeOAuthError(w, oidc.ErrServerError)
			return
		}
		u.Fragment = ""
		u.RawFragment = ""
		http.Redirect(w, r, u.String()+"#"+resp.Params.Encode(), http.StatusFound)

	default: // query
		u, err := url.Parse(resp.RedirectURI)
		if err != nil {
			writeOAuthError(w, oidc.ErrServerError)
			return
		}
		q := u.Query()
		for name, values := range resp.Params {
			for _, v := range values {
				q.Add(name, v)
			}
		}
		u.RawQuery = q.Encode()
		http.Redirect(w, r, u.String(), http.StatusFound)
	}
}

// writeAuthorizeError renders a protocol error on the authorize endpoint.
// Errors bound to a validated redirect target travel back to the client in
// its response mode; anything earlier is a direct 400.
func writeAuthorizeError(w http.ResponseWriter, r *http.Request, e *oidc.Error, state string) {
	if !e.Redirectable() {
		writeOAuthError(w, e)
		return
	}
	params := url.Values{}
	params.Set("error", e.Code)
	if e.Description != "" {
		params.Set("error_description", e.Description)
	}
	if e.URI != "" {
		params.Set("error_uri", e.URI)
	}
	if state != "" {
		params.Set("state", state)
	}
	writeAuthorizeResponse(w, r, &oidc.AuthorizeResponse{
		RedirectURI: e.RedirectURI,
		Mode:        e.ResponseMode,
		Params:      params,
	})
}
