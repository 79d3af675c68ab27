// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalog serves video manifests and course entitlements from a YAML
// file. The file can be reloaded at runtime; a failed reload keeps the
// previous snapshot.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/vodsession/internal/domain/session/model"
	"github.com/ManuGH/vodsession/internal/domain/session/ports"
	"github.com/ManuGH/vodsession/internal/log"
)

// Video is one catalog entry. Videos without a course are open to every user.
type Video struct {
	model.Manifest `yaml:",inline"`
	CourseID       string `yaml:"course_id"`
}

// File is the on-disk layout.
type File struct {
	Videos []Video `yaml:"videos"`
	// Grants maps a user ID to the course IDs the user is enrolled in.
	Grants map[string][]string `yaml:"grants"`
}

// Validate rejects entries the session core cannot serve.
func (f *File) Validate() error {
	seen := make(map[string]struct{}, len(f.Videos))
	var errs []error
	for i, v := range f.Videos {
		if v.VideoID == "" {
			errs = append(errs, fmt.Errorf("videos[%d]: video_id is required", i))
			continue
		}
		if _, dup := seen[v.VideoID]; dup {
			errs = append(errs, fmt.Errorf("videos[%d]: duplicate video_id %q", i, v.VideoID))
		}
		seen[v.VideoID] = struct{}{}
		if v.Duration < 0 {
			errs = append(errs, fmt.Errorf("video %q: duration must be >= 0", v.VideoID))
		}
		for _, q := range v.Qualities {
			if !q.Quality.Valid() {
				errs = append(errs, fmt.Errorf("video %q: unknown quality %q", v.VideoID, q.Quality))
			}
		}
	}
	return errors.Join(errs...)
}

type snapshot struct {
	videos map[string]Video
	grants map[string][]string
}

// Catalog implements ports.ManifestSource and ports.Entitlement.
type Catalog struct {
	path   string
	logger zerolog.Logger

	mu   sync.RWMutex
	snap snapshot

	listenersMu sync.Mutex
	listeners   []func()
}

var (
	_ ports.ManifestSource = (*Catalog)(nil)
	_ ports.Entitlement    = (*Catalog)(nil)
)

// Load reads path and returns a catalog bound to it.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path, logger: log.WithComponent("catalog")}
	if err := c.Reload(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes a catalog document. Unknown fields are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &f, nil
}

// Reload rereads the file. On error the current snapshot stays in place.
func (c *Catalog) Reload(_ context.Context) error {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	f, err := Parse(bytes.NewReader(raw))
	if err != nil {
		return err
	}

	next := snapshot{videos: make(map[string]Video, len(f.Videos)), grants: f.Grants}
	for _, v := range f.Videos {
		next.videos[v.VideoID] = v
	}
	c.mu.Lock()
	c.snap = next
	c.mu.Unlock()

	c.logger.Info().
		Str(log.FieldEvent, "catalog.loaded").
		Str("path", c.path).
		Int("videos", len(next.videos)).
		Int("users", len(next.grants)).
		Msg("catalog loaded")
	c.notify()
	return nil
}

// OnReload registers fn to run after every successful reload.
func (c *Catalog) OnReload(fn func()) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Catalog) notify() {
	c.listenersMu.Lock()
	fns := slices.Clone(c.listeners)
	c.listenersMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Len returns the number of videos in the current snapshot.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snap.videos)
}

// GetManifest returns a copy of the manifest of videoID.
func (c *Catalog) GetManifest(_ context.Context, videoID string) (*model.Manifest, error) {
	c.mu.RLock()
	v, ok := c.snap.videos[videoID]
	c.mu.RUnlock()
	if !ok {
		return nil, ports.ErrManifestNotFound
	}
	mf := v.Manifest
	mf.Qualities = slices.Clone(mf.Qualities)
	mf.Thumbnails = slices.Clone(mf.Thumbnails)
	return &mf, nil
}

// HasAccess grants videos without a course to everyone, and course videos to
// users enrolled in that course. A courseID that does not match the video's
// course is refused.
func (c *Catalog) HasAccess(_ context.Context, userID, videoID, courseID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.snap.videos[videoID]
	if !ok {
		return false, nil
	}
	if courseID != "" && v.CourseID != "" && courseID != v.CourseID {
		return false, nil
	}
	if v.CourseID == "" {
		return true, nil
	}
	return slices.Contains(c.snap.grants[userID], v.CourseID), nil
}
