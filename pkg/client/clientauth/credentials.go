// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package clientauth authenticates OAuth clients at the token, revocation,
// introspection, PAR and CIBA endpoints. The transport extracts credentials
// into a neutral record; the authenticator decides which registered method
// the request exercises and verifies it.
package clientauth

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"net/url"
	"strings"
)

// Credentials is everything a request presented that could authenticate a
// client. At most one authentication method may be populated.
type Credentials struct {
	// ClientID is the client_id form parameter, if any.
	ClientID string

	// FormSecret is the client_secret form parameter (client_secret_post).
	FormSecret string

	// HasBasic, BasicID and BasicSecret carry the HTTP Basic header
	// (client_secret_basic).
	HasBasic    bool
	BasicID     string
	BasicSecret string

	// AssertionType and Assertion carry client_assertion_type and
	// client_assertion (client_secret_jwt / private_key_jwt).
	AssertionType string
	Assertion     string

	// Certificate is the client certificate, either from the TLS socket or
	// forwarded by the edge (tls_client_auth / self_signed_tls_client_auth).
	Certificate *x509.Certificate
}

// FromHTTPRequest extracts credentials from an HTTP request. The form is
// parsed if it has not been already.
func FromHTTPRequest(r *http.Request) Credentials {
	_ = r.ParseForm()

	creds := Credentials{
		ClientID:      r.PostFormValue("client_id"),
		FormSecret:    r.PostFormValue("client_secret"),
		AssertionType: r.PostFormValue("client_assertion_type"),
		Assertion:     r.PostFormValue("client_assertion"),
	}

	if id, secret, ok := r.BasicAuth(); ok {
		// RFC 6749 section 2.3.1: both halves are form-url-encoded.
		if decoded, err := url.QueryUnescape(id); err == nil {
			id = decoded
		}
		if decoded, err := url.QueryUnescape(secret); err == nil {
			secret = decoded
		}
		creds.HasBasic = true
		creds.BasicID = id
		creds.BasicSecret = secret
	}

	creds.Certificate = peerCertificate(r)
	return creds
}

// peerCertificate returns the client certificate from the TLS connection,
// or from one of the headers a terminating proxy forwards it in.
func peerCertificate(r *http.Request) *x509.Certificate {
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		return r.TLS.PeerCertificates[0]
	}
	for _, header := range []string{"X-Forwarded-Client-Cert", "X-Client-Cert"} {
		if value := r.Header.Get(header); value != "" {
			if cert := parseForwardedCert(value); cert != nil {
				return cert
			}
		}
	}
	return nil
}

// parseForwardedCert accepts the three encodings proxies use: URL-encoded
// PEM, plain PEM, and base64 DER. Unparseable values are ignored so a
// malformed header degrades to "no certificate presented".
func parseForwardedCert(value string) *x509.Certificate {
	if decoded, err := url.QueryUnescape(value); err == nil {
		value = decoded
	}
	value = strings.TrimSpace(value)

	if strings.Contains(value, "-----BEGIN") {
		block, _ := pem.Decode([]byte(value))
		if block == nil {
			return nil
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil
		}
		return cert
	}

	der, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil
	}
	return cert
}
