// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSessionIframe(t *testing.T) {
	t.Parallel()

	h := NewCheckSessionHandler("signet_session_state")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathCheckSession, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "signet_session_state")
	assert.Contains(t, rec.Body.String(), "postMessage")
}

func TestCheckSessionRejectsPost(t *testing.T) {
	t.Parallel()

	h := NewCheckSessionHandler("signet_session_state")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, PathCheckSession, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
