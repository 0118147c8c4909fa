// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry tracks the status of issued JWTs by jti. A jti is Active
// while no record exists; Used and Revoked are explicit records with a TTL
// matching the token's remaining lifetime. The store must be linearizable
// per key so a revoked token can never race back to life.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/signet-dev/signet/pkg/clock"
	"github.com/signet-dev/signet/pkg/storage"
)

// Status of a jti.
type Status string

// Token statuses. Active is implicit: no stored record.
const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusRevoked Status = "revoked"
)

const keyPrefix = "jti:"

// Registry records per-jti status with TTL.
type Registry struct {
	store storage.Store
	clock clock.Clock
}

// New creates a Registry on the given store.
func New(store storage.Store, c clock.Clock) *Registry {
	if c == nil {
		c = clock.System{}
	}
	return &Registry{store: store, clock: c}
}

// MarkRevoked records the jti as Revoked until expiresAt.
// Revocation wins over any earlier status.
func (r *Registry) MarkRevoked(ctx context.Context, jti string, expiresAt time.Time) error {
	return r.mark(ctx, jti, StatusRevoked, expiresAt)
}

// MarkUsed records the jti as Used until expiresAt. Used never downgrades a
// Revoked record.
func (r *Registry) MarkUsed(ctx context.Context, jti string, expiresAt time.Time) error {
	current, err := r.Status(ctx, jti)
	if err != nil {
		return err
	}
	if current == StatusRevoked {
		return nil
	}
	return r.mark(ctx, jti, StatusUsed, expiresAt)
}

func (r *Registry) mark(ctx context.Context, jti string, status Status, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.clock.Now())
	if ttl <= 0 {
		// Already past expiry; expiry itself invalidates the token.
		return nil
	}
	return r.store.Put(ctx, keyPrefix+jti, []byte(status), ttl)
}

// Status returns the current status of the jti.
func (r *Registry) Status(ctx context.Context, jti string) (Status, error) {
	value, err := r.store.Get(ctx, keyPrefix+jti)
	if errors.Is(err, storage.ErrNotFound) {
		return StatusActive, nil
	}
	if err != nil {
		return "", err
	}
	return Status(value), nil
}

// CheckReplay registers the jti as seen and reports whether it was already
// present. Used for client-assertion and jwt-bearer replay protection: the
// first caller wins, every replay is rejected.
func (r *Registry) CheckReplay(ctx context.Context, jti string, expiresAt time.Time) (replayed bool, err error) {
	ttl := expiresAt.Sub(r.clock.Now())
	if ttl <= 0 {
		ttl = time.Minute
	}
	stored, err := r.store.PutIfAbsent(ctx, keyPrefix+jti, []byte(StatusUsed), ttl)
	if err != nil {
		return false, err
	}
	return !stored, nil
}
