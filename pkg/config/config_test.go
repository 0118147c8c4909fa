// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAppliesDefaults(t *testing.T) {
	t.Parallel()

	o := Default("https://op.example")
	require.NoError(t, o.Validate())

	assert.Equal(t, 32, o.AuthorizationCodeLength)
	assert.Equal(t, DefaultPARLifetime, o.PARLifetime)
	assert.Equal(t, DefaultCIBAPollingInterval, o.CIBA.PollingInterval)
	assert.Equal(t, []string{"https"}, o.SecureHTTP.AllowedSchemes)
	assert.True(t, o.SecureHTTP.BlockPrivateNetworks)
	assert.True(t, o.EnabledEndpoints.Has(EndpointToken))
	assert.True(t, o.EnabledEndpoints.Has(EndpointBackchannelAuthentication))
}

func TestValidateRejectsBadIssuer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		issuer string
	}{
		{"relative", "/connect"},
		{"empty", ""},
		{"no host", "https://"},
		{"with fragment", "https://op.example#frag"},
		{"with query", "https://op.example?x=1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			o := Default(tc.issuer)
			assert.Error(t, o.Validate())
		})
	}
}

func TestValidateEnforcesMinimumEntropy(t *testing.T) {
	t.Parallel()

	o := Default("https://op.example")
	o.AuthorizationCodeLength = 8
	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authorizationCodeLength")
}

func TestValidateRejectsInvertedCIBALifetimes(t *testing.T) {
	t.Parallel()

	o := Default("https://op.example")
	o.CIBA.MinRequestLifetime = 2 * time.Hour
	o.CIBA.MaxRequestLifetime = time.Hour
	assert.Error(t, o.Validate())
}

func TestEndpointBitset(t *testing.T) {
	t.Parallel()

	set := EndpointAuthorize | EndpointToken
	assert.True(t, set.Has(EndpointAuthorize))
	assert.False(t, set.Has(EndpointRevocation))
}
