// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package par stores pushed authorization requests (RFC 9126) under opaque
// request URNs. Each URN is single-use and short-lived.
package par

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/random"
	"github.com/signet-dev/signet/pkg/storage"
)

const keyPrefix = "par:"

// ErrUnknownURN is returned when the request URN does not exist, expired,
// or was already consumed.
var ErrUnknownURN = errors.New("par: unknown or consumed request_uri")

// StoredRequest is a validated authorization request held until the client
// arrives at the authorize endpoint.
type StoredRequest struct {
	ClientID string     `json:"client_id"`
	Params   url.Values `json:"params"`
}

// Store persists pushed authorization requests.
type Store struct {
	store     storage.Store
	lifetime  time.Duration
	urnLength int
}

// NewStore creates a PAR store. urnLength is the URN entropy in bytes.
func NewStore(s storage.Store, lifetime time.Duration, urnLength int) *Store {
	return &Store{store: s, lifetime: lifetime, urnLength: urnLength}
}

// Push stores the request under a fresh URN and returns it with the
// lifetime in seconds.
func (s *Store) Push(ctx context.Context, req *StoredRequest) (urn string, expiresIn int, err error) {
	token, err := random.Token(s.urnLength)
	if err != nil {
		return "", 0, err
	}
	urn = oidc.RequestURNPrefix + token
	if err := storage.PutJSON(ctx, s.store, keyPrefix+urn, req, s.lifetime); err != nil {
		return "", 0, err
	}
	return urn, int(s.lifetime.Seconds()), nil
}

// Consume atomically removes and returns the request behind the URN.
func (s *Store) Consume(ctx context.Context, urn string) (*StoredRequest, error) {
	if !IsRequestURN(urn) {
		return nil, ErrUnknownURN
	}
	req, err := storage.GetDelJSON[*StoredRequest](ctx, s.store, keyPrefix+urn)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownURN
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// IsRequestURN reports whether the value is a URN this store could have
// minted.
func IsRequestURN(value string) bool {
	return strings.HasPrefix(value, oidc.RequestURNPrefix)
}
