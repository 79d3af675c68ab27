// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package storetest provides Store fixtures for tests in other packages.
package storetest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/vodsession/internal/domain/session/store"
)

// NewRedis starts a miniredis server and returns a RedisStore bound to it.
// Both are closed when the test ends.
func NewRedis(t testing.TB) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisStore(client, zerolog.Nop())
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

// NewBadger opens an in-memory BadgerStore closed when the test ends.
func NewBadger(t testing.TB) *store.BadgerStore {
	t.Helper()

	s, err := store.OpenBadgerStore("")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
