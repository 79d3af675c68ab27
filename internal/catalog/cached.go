// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/vodsession/internal/cache"
	"github.com/ManuGH/vodsession/internal/domain/session/model"
	"github.com/ManuGH/vodsession/internal/domain/session/ports"
)

// Cached fronts a ManifestSource with a TTL cache. Concurrent misses for the
// same video share one upstream call. Absent videos are not cached.
type Cached struct {
	src   ports.ManifestSource
	ttl   time.Duration
	cache *cache.Cache[*model.Manifest]
	group singleflight.Group
}

var _ ports.ManifestSource = (*Cached)(nil)

// NewCached wraps src. Entries live for ttl.
func NewCached(src ports.ManifestSource, ttl time.Duration, opts ...cache.Option) *Cached {
	return &Cached{
		src:   src,
		ttl:   ttl,
		cache: cache.New[*model.Manifest]("manifest", opts...),
	}
}

// GetManifest returns the cached manifest or loads it from the source.
// Callers must not mutate the result.
func (c *Cached) GetManifest(ctx context.Context, videoID string) (*model.Manifest, error) {
	if mf, ok := c.cache.Get(videoID); ok {
		return mf, nil
	}
	v, err, _ := c.group.Do(videoID, func() (any, error) {
		mf, err := c.src.GetManifest(ctx, videoID)
		if err != nil {
			return nil, err
		}
		c.cache.Set(videoID, mf, c.ttl)
		return mf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Manifest), nil
}

// Invalidate drops every cached manifest.
func (c *Cached) Invalidate() { c.cache.Clear() }

// Stats exposes the cache counters.
func (c *Cached) Stats() cache.Stats { return c.cache.Stats() }

// Close stops the cache janitor.
func (c *Cached) Close() { c.cache.Close() }
