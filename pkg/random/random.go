// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package random mints the opaque URL-safe tokens used for authorization
// codes, request URNs, auth_req_ids and session ids.
package random

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Token returns a URL-safe token carrying n bytes of entropy,
// base64url-encoded without padding. n must be at least 16.
func Token(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("token entropy too small: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
