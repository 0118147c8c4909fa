// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"net/url"
	"strings"
)

// MatchRedirectURI checks the requested redirect URI against the client's
// registered ones. Matching is exact: scheme and host compare
// case-insensitively, path and query case-sensitively, fragments are
// ignored, and no trailing-slash relaxation applies.
func (c *Info) MatchRedirectURI(requested string) bool {
	normRequested, ok := normalizeRedirectURI(requested)
	if !ok {
		return false
	}
	for _, registered := range c.RedirectURIs {
		normRegistered, ok := normalizeRedirectURI(registered)
		if !ok {
			continue
		}
		if normRequested == normRegistered {
			return true
		}
	}
	return false
}

// MatchPostLogoutRedirectURI applies the same matching rules to the
// post-logout redirect URIs used by the end-session endpoint.
func (c *Info) MatchPostLogoutRedirectURI(requested string) bool {
	normRequested, ok := normalizeRedirectURI(requested)
	if !ok {
		return false
	}
	for _, registered := range c.PostLogoutRedirectURIs {
		normRegistered, ok := normalizeRedirectURI(registered)
		if !ok {
			continue
		}
		if normRequested == normRegistered {
			return true
		}
	}
	return false
}

func normalizeRedirectURI(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), true
}
