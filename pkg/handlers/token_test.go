// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signet-dev/signet/pkg/grants"
	"github.com/signet-dev/signet/pkg/oidc"
)

func TestValidateResourceParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		resources []string
		wantErr   bool
	}{
		{name: "none", resources: nil},
		{name: "absolute URI", resources: []string{"https://api.example.com/v1"}},
		{name: "relative URI", resources: []string{"api/v1"}, wantErr: true},
		{name: "fragment", resources: []string{"https://api.example.com/v1#frag"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := validateResourceParams(tt.resources)
			if tt.wantErr {
				require.NotNil(t, e)
				assert.Equal(t, oidc.CodeInvalidTarget, e.Code)
			} else {
				assert.Nil(t, e)
			}
		})
	}
}

func TestReconcileGrantInheritsWhenUnspecified(t *testing.T) {
	t.Parallel()

	authorized := &grants.Authorized{Grant: userGrant("app", "openid", "profile")}
	require.Nil(t, reconcileGrant(&grants.TokenRequest{}, authorized))
	assert.Equal(t, []string{"openid", "profile"}, authorized.Grant.Context.Scopes)
}

func TestReconcileGrantNarrowsScopes(t *testing.T) {
	t.Parallel()

	authorized := &grants.Authorized{Grant: userGrant("app", "openid", "profile")}
	req := &grants.TokenRequest{Scopes: []string{"openid"}}
	require.Nil(t, reconcileGrant(req, authorized))
	assert.Equal(t, []string{"openid"}, authorized.Grant.Context.Scopes)
}

func TestReconcileGrantRejectsScopeEscalation(t *testing.T) {
	t.Parallel()

	authorized := &grants.Authorized{Grant: userGrant("app", "openid")}
	req := &grants.TokenRequest{Scopes: []string{"admin"}}
	e := reconcileGrant(req, authorized)
	require.NotNil(t, e)
	assert.Equal(t, oidc.CodeInvalidScope, e.Code)
}

func TestReconcileGrantRejectsResourceEscalation(t *testing.T) {
	t.Parallel()

	authorized := &grants.Authorized{Grant: userGrant("app", "openid")}
	authorized.Grant.Context.Resources = []string{"https://api.example.com"}
	req := &grants.TokenRequest{Resources: []string{"https://other.example.com"}}
	e := reconcileGrant(req, authorized)
	require.NotNil(t, e)
	assert.Equal(t, oidc.CodeInvalidTarget, e.Code)
}

func TestReconcileGrantNarrowsResources(t *testing.T) {
	t.Parallel()

	authorized := &grants.Authorized{Grant: userGrant("app", "openid")}
	authorized.Grant.Context.Resources = []string{"https://api.example.com", "https://files.example.com"}
	req := &grants.TokenRequest{Resources: []string{"https://api.example.com"}}
	require.Nil(t, reconcileGrant(req, authorized))
	assert.Equal(t, []string{"https://api.example.com"}, authorized.Grant.Context.Resources)
}
