// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store is the key-value persistence layer of the session core.
// Every backend supports per-key TTL, string sets and counters; a TTL of zero
// means the key never expires.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for absent or expired keys.
var ErrNotFound = errors.New("store: key not found")

// Store is the minimal KV contract the session core relies on.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// Incr atomically increments a counter and (re)applies ttl when ttl > 0.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// AddToSet adds member to the set at key and (re)applies ttl when ttl > 0.
	AddToSet(ctx context.Context, key, member string, ttl time.Duration) error
	RemoveFromSet(ctx context.Context, key, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}
