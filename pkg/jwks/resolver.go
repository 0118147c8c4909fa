// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package jwks resolves client verification keys, from an inline key set
// or from a jwks_uri fetched over the guarded HTTP client.
package jwks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/sync/singleflight"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/securehttp"
)

// registerTimeout bounds the initial fetch when a jwks_uri is first seen.
const registerTimeout = 5 * time.Second

// Resolver produces the key set registered for a client. Remote sets are
// served from an auto-refreshing cache; the first fetch per URL is
// deduplicated across concurrent callers.
type Resolver struct {
	httpClient *securehttp.Client

	initOnce sync.Once
	initErr  error
	cache    *jwk.Cache

	group      singleflight.Group
	mu         sync.Mutex
	registered map[string]bool
}

// NewResolver builds a resolver over the guarded HTTP client.
func NewResolver(httpClient *securehttp.Client) *Resolver {
	return &Resolver{
		httpClient: httpClient,
		registered: make(map[string]bool),
	}
}

// Keys returns the client's key set. Inline jwks wins over jwks_uri.
func (r *Resolver) Keys(ctx context.Context, info *client.Info) (jwk.Set, error) {
	switch {
	case len(info.JWKS) > 0:
		set, err := jwk.Parse(info.JWKS)
		if err != nil {
			return nil, fmt.Errorf("client %s has an unparseable jwks: %w", info.ID, err)
		}
		return set, nil
	case info.JWKSURI != "":
		return r.remoteKeys(ctx, info.JWKSURI)
	default:
		return nil, fmt.Errorf("client %s has no registered keys", info.ID)
	}
}

// VerificationKey selects a key from the client's set. A key id narrows
// the choice; without one the set must contain exactly one key.
func (r *Resolver) VerificationKey(ctx context.Context, info *client.Info, kid string) (jwk.Key, error) {
	set, err := r.Keys(ctx, info)
	if err != nil {
		return nil, err
	}
	if kid != "" {
		key, found := set.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("no key with id %q in the client key set", kid)
		}
		return key, nil
	}
	if set.Len() != 1 {
		return nil, fmt.Errorf("assertion has no kid and the client key set holds %d keys", set.Len())
	}
	key, ok := set.Key(0)
	if !ok {
		return nil, fmt.Errorf("failed to read key 0 from the client key set")
	}
	return key, nil
}

func (r *Resolver) remoteKeys(ctx context.Context, jwksURL string) (jwk.Set, error) {
	// The cache fetches through httprc, so the URL must pass the guard
	// before it is ever registered.
	if err := r.httpClient.Guard().CheckURL(jwksURL); err != nil {
		return nil, fmt.Errorf("jwks_uri blocked: %w", err)
	}

	r.initOnce.Do(func() {
		httprcClient := httprc.NewClient(httprc.WithHTTPClient(r.httpClient.HTTPClient()))
		r.cache, r.initErr = jwk.NewCache(context.WithoutCancel(ctx), httprcClient)
	})
	if r.initErr != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", r.initErr)
	}

	if err := r.ensureRegistered(ctx, jwksURL); err != nil {
		return nil, err
	}
	set, err := r.cache.Lookup(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client key set: %w", err)
	}
	return set, nil
}

// ensureRegistered registers the URL with the cache once, collapsing
// concurrent first fetches for the same URL into a single registration.
func (r *Resolver) ensureRegistered(ctx context.Context, jwksURL string) error {
	r.mu.Lock()
	done := r.registered[jwksURL]
	r.mu.Unlock()
	if done {
		return nil
	}

	_, err, _ := r.group.Do(jwksURL, func() (any, error) {
		registerCtx, cancel := context.WithTimeout(ctx, registerTimeout)
		defer cancel()
		if err := r.cache.Register(registerCtx, jwksURL); err != nil {
			return nil, fmt.Errorf("failed to register jwks_uri: %w", err)
		}
		r.mu.Lock()
		r.registered[jwksURL] = true
		r.mu.Unlock()
		return nil, nil
	})
	return err
}
