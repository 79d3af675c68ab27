// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Backend names accepted by Open.
const (
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	Redis      RedisConfig
	BadgerPath string // empty opens an in-memory badger instance
}

// Open creates a Store based on the backend configuration.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (Store, error) {
	switch opts.Backend {
	case BackendRedis, "":
		return OpenRedisStore(ctx, opts.Redis, logger)
	case BackendBadger:
		s, err := OpenBadgerStore(opts.BadgerPath)
		if err != nil {
			return nil, err
		}
		logger.Info().
			Str("path", opts.BadgerPath).
			Bool("in_memory", opts.BadgerPath == "").
			Msg("opened badger session store")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", opts.Backend)
	}
}
