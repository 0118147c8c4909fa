// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package oidc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultSuccess(t *testing.T) {
	t.Parallel()

	r := Success(42)
	assert.True(t, r.IsSuccess())
	assert.Equal(t, 42, r.Value())
	assert.Nil(t, r.Err())
}

func TestResultFailure(t *testing.T) {
	t.Parallel()

	r := Failure[int](ErrInvalidRequest.WithDescription("missing client_id"))
	assert.False(t, r.IsSuccess())
	assert.Zero(t, r.Value())
	require.NotNil(t, r.Err())
	assert.Equal(t, CodeInvalidRequest, r.Err().Code)
	assert.Equal(t, "missing client_id", r.Err().Description)
}

func TestResultFailureNilError(t *testing.T) {
	t.Parallel()

	r := Failure[int](nil)
	require.NotNil(t, r.Err())
	assert.Equal(t, CodeServerError, r.Err().Code)
}

func TestBindShortCircuits(t *testing.T) {
	t.Parallel()

	called := false
	r := Bind(Failure[int](ErrInvalidGrant), func(int) Result[string] {
		called = true
		return Success("x")
	})
	assert.False(t, called)
	assert.Equal(t, CodeInvalidGrant, r.Err().Code)
}

func TestBindChains(t *testing.T) {
	t.Parallel()

	r := Bind(Success(2), func(v int) Result[int] {
		return Success(v * 3)
	})
	require.True(t, r.IsSuccess())
	assert.Equal(t, 6, r.Value())
}

func TestMap(t *testing.T) {
	t.Parallel()

	r := Map(Success(2), func(v int) string {
		if v == 2 {
			return "two"
		}
		return "other"
	})
	assert.Equal(t, "two", r.Value())
}

func TestMatchSelectsBranch(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	err := Success("ok").Match(context.Background(),
		func(_ context.Context, v string) error {
			assert.Equal(t, "ok", v)
			return nil
		},
		func(context.Context, *Error) error { return boom },
	)
	assert.NoError(t, err)

	err = Failure[string](ErrAccessDenied).Match(context.Background(),
		func(context.Context, string) error { return nil },
		func(_ context.Context, e *Error) error {
			assert.Equal(t, CodeAccessDenied, e.Code)
			return boom
		},
	)
	assert.ErrorIs(t, err, boom)
}

func TestErrorRedirectCarriage(t *testing.T) {
	t.Parallel()

	e := ErrConsentRequired.WithRedirect("https://client.example/cb", ResponseModeQuery)
	assert.True(t, e.Redirectable())
	assert.Equal(t, "https://client.example/cb", e.RedirectURI)
	// The base error must stay untouched.
	assert.False(t, ErrConsentRequired.Redirectable())
}

func TestErrorStatusCodes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 400, ErrInvalidGrant.StatusCode())
	assert.Equal(t, 401, ErrInvalidClient.StatusCode())
	assert.Equal(t, 500, ErrServerError.StatusCode())
}
