// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"html/template"
	"log/slog"
	"net/http"
)

// checkSessionPage is the OP iframe for OIDC session management: relying
// parties postMessage "<client_id> <session_state>" and get back "changed"
// or "unchanged" depending on the session-state cookie.
var checkSessionPage = template.Must(template.New("checksession").Parse(`<!DOCTYPE html>
<html>
<head><title>Check Session</title></head>
<body>
<script>
(function () {
	var cookieName = {{.CookieName}};

	function sessionState() {
		var prefix = cookieName + "=";
		var parts = document.cookie.split(";");
		for (var i = 0; i < parts.length; i++) {
			var c = parts[i].trim();
			if (c.indexOf(prefix) === 0) {
				return c.substring(prefix.length);
			}
		}
		return "";
	}

	window.addEventListener("message", function (e) {
		var idx = (e.data || "").lastIndexOf(" ");
		if (idx < 0) {
			e.source.postMessage("error", e.origin);
			return;
		}
		var state = e.data.substring(idx + 1);
		var reply = state === sessionState() ? "unchanged" : "changed";
		e.source.postMessage(reply, e.origin);
	}, false);
})();
</script>
</body>
</html>
`))

// CheckSessionHandler serves the session-management iframe.
type CheckSessionHandler struct {
	cookieName string
}

// NewCheckSessionHandler creates the handler.
func NewCheckSessionHandler(cookieName string) *CheckSessionHandler {
	return &CheckSessionHandler{cookieName: cookieName}
}

// ServeHTTP implements http.Handler.
func (h *CheckSessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if err := checkSessionPage.Execute(w, struct{ CookieName string }{CookieName: h.cookieName}); err != nil {
		slog.Warn("failed to render the check-session iframe", "error", err)
	}
}
