// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package securehttp is the single outbound HTTP path of the provider.
// Every fetch the core initiates (request_uri resolution, client JWKS,
// CIBA notifications) goes through the guarded client, which refuses
// URLs and resolved addresses that would reach internal networks.
package securehttp

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"slices"
	"strings"

	"github.com/signet-dev/signet/pkg/config"
)

// blockedHostnames are names that always denote internal hosts.
var blockedHostnames = map[string]struct{}{
	"localhost":     {},
	"loopback":      {},
	"broadcasthost": {},
	"local":         {},
	"internal":      {},
	"intranet":      {},
	"private":       {},
	"corp":          {},
	"home":          {},
	"lan":           {},
}

// blockedTLDs are suffixes reserved for internal name resolution.
var blockedTLDs = []string{
	".local", ".localhost", ".internal", ".intranet", ".corp", ".home", ".lan",
}

// Guard decides which URLs and dial targets the provider may reach.
type Guard struct {
	blockPrivateNetworks bool
	allowedSchemes       []string
}

// NewGuard builds a Guard from the secure-HTTP options.
func NewGuard(opts config.SecureHTTPOptions) *Guard {
	schemes := make([]string, 0, len(opts.AllowedSchemes))
	for _, s := range opts.AllowedSchemes {
		schemes = append(schemes, strings.ToLower(s))
	}
	if len(schemes) == 0 {
		schemes = []string{"https"}
	}
	return &Guard{
		blockPrivateNetworks: opts.BlockPrivateNetworks,
		allowedSchemes:       schemes,
	}
}

// CheckURL validates a URL before any DNS resolution happens. Blocked
// hostnames must be refused here so no resolver query is ever issued
// for them.
func (g *Guard) CheckURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if !slices.Contains(g.allowedSchemes, strings.ToLower(u.Scheme)) {
		return fmt.Errorf("scheme %q is not allowed", u.Scheme)
	}
	if !g.blockPrivateNetworks {
		return nil
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return fmt.Errorf("URL has no host")
	}

	// IP literals are checked against the blocked ranges directly.
	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		if blockedAddr(addr) {
			return fmt.Errorf("address %s is in a blocked range", addr)
		}
		return nil
	}

	if _, blocked := blockedHostnames[host]; blocked {
		return fmt.Errorf("hostname %q is blocked", host)
	}
	if !strings.Contains(host, ".") {
		return fmt.Errorf("single-label hostname %q is blocked", host)
	}
	for _, tld := range blockedTLDs {
		if strings.HasSuffix(host, tld) {
			return fmt.Errorf("hostname %q has a blocked suffix", host)
		}
	}
	return nil
}

// CheckAddress validates a dial target ("ip:port") after DNS resolution,
// from inside the dialer's Control hook.
func (g *Guard) CheckAddress(address string) error {
	if !g.blockPrivateNetworks {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("cannot parse dial address %q: %w", address, err)
	}
	if blockedAddr(addr) {
		return fmt.Errorf("address %s is in a blocked range", addr)
	}
	return nil
}

// blockedAddr reports whether the address falls into loopback, link-local,
// private, unique-local, multicast, broadcast or unspecified space.
func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsPrivate(),
		addr.IsMulticast(),
		addr.IsUnspecified():
		return true
	}
	if addr.Is4() && addr == netip.AddrFrom4([4]byte{255, 255, 255, 255}) {
		return true
	}
	// fc00::/7 unique-local.
	if addr.Is6() && (addr.As16()[0]&0xfe) == 0xfc {
		return true
	}
	return false
}
