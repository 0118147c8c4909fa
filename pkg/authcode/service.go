// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package authcode issues and consumes single-use authorization codes bound
// to an authorized grant.
package authcode

import (
	"context"
	"errors"
	"time"

	"github.com/signet-dev/signet/pkg/random"
	"github.com/signet-dev/signet/pkg/session"
	"github.com/signet-dev/signet/pkg/storage"
)

const keyPrefix = "code:"

// reuseDetectionWindow is how long a consumed code stays re-inserted with
// its issued-token fingerprints, so a replay can be caught and every token
// minted from the first exchange revoked.
const reuseDetectionWindow = 60 * time.Second

// ErrUnknownCode is returned when the code does not exist or was consumed.
var ErrUnknownCode = errors.New("authcode: unknown or consumed code")

// Service mints and consumes authorization codes.
type Service struct {
	store  storage.Store
	length int
}

// NewService creates a code service. length is the code entropy in bytes.
func NewService(store storage.Store, length int) *Service {
	return &Service{store: store, length: length}
}

// Issue generates a fresh opaque code pointing at the grant.
func (s *Service) Issue(ctx context.Context, grant *session.AuthorizedGrant, lifetime time.Duration) (string, error) {
	code, err := random.Token(s.length)
	if err != nil {
		return "", err
	}
	if err := storage.PutJSON(ctx, s.store, keyPrefix+code, grant, lifetime); err != nil {
		return "", err
	}
	return code, nil
}

// Consume atomically removes and returns the grant behind the code. Two
// concurrent exchanges of the same code cannot both succeed.
func (s *Service) Consume(ctx context.Context, code string) (*session.AuthorizedGrant, error) {
	grant, err := storage.GetDelJSON[*session.AuthorizedGrant](ctx, s.store, keyPrefix+code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownCode
	}
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// Reinsert puts a consumed code back with its updated grant for a short
// window. The grant now lists issued-token fingerprints, so a second
// Consume identifies the replay instead of a plain miss.
func (s *Service) Reinsert(ctx context.Context, code string, grant *session.AuthorizedGrant) error {
	return storage.PutJSON(ctx, s.store, keyPrefix+code, grant, reuseDetectionWindow)
}

// Remove deletes a code outright.
func (s *Service) Remove(ctx context.Context, code string) error {
	return s.store.Delete(ctx, keyPrefix+code)
}
