// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the entity storage abstraction shared by every
// stateful component: authorization codes, pushed requests, the token
// registry, CIBA records, sessions and registered clients.
//
// Values are opaque byte slices; typed access goes through the JSON helpers
// in codec.go. Entries are owned by the caller and destroyed by TTL or by an
// explicit consuming read.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("storage: entry not found")

// Store is a TTL-aware key/value store.
//
// GetDel is the atomic delete-and-return used for single-use entities
// (authorization codes, PAR URNs): two concurrent consumers of the same key
// must not both succeed.
type Store interface {
	// Put stores value under key. A zero ttl means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// PutIfAbsent stores value only when the key does not exist.
	// Returns true when the value was stored. Linearizable per key.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetDel atomically removes and returns the value for key,
	// or ErrNotFound.
	GetDel(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Removing an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}
