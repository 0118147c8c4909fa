// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/signet-dev/signet/pkg/storage"
)

// ErrNotFound is returned when no client is registered under an id.
var ErrNotFound = errors.New("client: unknown client_id")

const keyPrefix = "client:"

// Store resolves and persists client descriptors. Client ids are
// case-sensitive and records carry no TTL.
type Store struct {
	store storage.Store
}

// NewStore creates a client Store on the given storage backend.
func NewStore(s storage.Store) *Store {
	return &Store{store: s}
}

// Get resolves a client by id.
func (s *Store) Get(ctx context.Context, clientID string) (*Info, error) {
	if clientID == "" {
		return nil, ErrNotFound
	}
	info, err := storage.GetJSON[*Info](ctx, s.store, keyPrefix+clientID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client %q: %w", clientID, err)
	}
	return info, nil
}

// Put registers or replaces a client descriptor.
func (s *Store) Put(ctx context.Context, info *Info) error {
	if info.ID == "" {
		return fmt.Errorf("client id is required")
	}
	return storage.PutJSON(ctx, s.store, keyPrefix+info.ID, info, 0)
}

// Delete removes a client registration.
func (s *Store) Delete(ctx context.Context, clientID string) error {
	return s.store.Delete(ctx, keyPrefix+clientID)
}
