// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signet-dev/signet/pkg/clock"
)

func newTestStore(t *testing.T) (*MemoryStore, *clock.Frozen) {
	t.Helper()
	frozen := clock.NewFrozen(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	s := NewMemoryStore(WithClock(frozen), WithCleanupInterval(time.Hour))
	t.Cleanup(func() { _ = s.Close() })
	return s, frozen
}

func TestMemoryPutGet(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestMemoryGetMissing(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	_, err := s.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTTLExpiry(t *testing.T) {
	t.Parallel()
	s, frozen := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))
	frozen.Advance(61 * time.Second)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	// GetDel must also refuse expired entries.
	_, err = s.GetDel(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()
	s, frozen := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v"), 0))
	frozen.Advance(1000 * time.Hour)

	_, err := s.Get(ctx, "k")
	assert.NoError(t, err)
}

func TestMemoryGetDelIsConsuming(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "code", []byte("grant"), time.Minute))

	got, err := s.GetDel(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, []byte("grant"), got)

	_, err = s.GetDel(ctx, "code")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryGetDelSingleWinner(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "code", []byte("grant"), time.Minute))

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.GetDel(ctx, "code"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1, "exactly one concurrent consumer may win")
}

func TestMemoryPutIfAbsent(t *testing.T) {
	t.Parallel()
	s, frozen := newTestStore(t)
	ctx := context.Background()

	stored, err := s.PutIfAbsent(ctx, "jti", []byte("revoked"), time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = s.PutIfAbsent(ctx, "jti", []byte("used"), time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)

	// After expiry the slot opens up again.
	frozen.Advance(2 * time.Minute)
	stored, err = s.PutIfAbsent(ctx, "jti", []byte("revoked"), time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestMemoryDeleteAbsentKey(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	assert.NoError(t, s.Delete(context.Background(), "absent"))
}

func TestMemoryCleanupReclaimsExpired(t *testing.T) {
	t.Parallel()
	frozen := clock.NewFrozen(time.Now())
	s := NewMemoryStore(WithClock(frozen), WithCleanupInterval(10*time.Millisecond))
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Second))
	frozen.Advance(2 * time.Second)

	assert.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		_, ok := s.entries["k"]
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestJSONCodecRoundTrip(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, PutJSON(ctx, s, "r", record{Name: "a", Count: 2}, time.Minute))

	got, err := GetJSON[record](ctx, s, "r")
	require.NoError(t, err)
	assert.Equal(t, record{Name: "a", Count: 2}, got)

	got, err = GetDelJSON[record](ctx, s, "r")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)

	_, err = GetJSON[record](ctx, s, "r")
	assert.ErrorIs(t, err, ErrNotFound)
}
