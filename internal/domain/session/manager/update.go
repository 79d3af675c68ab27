// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/vodsession/internal/domain/session/model"
	"github.com/ManuGH/vodsession/internal/domain/session/store"
	"github.com/ManuGH/vodsession/internal/telemetry"
)

// Update is a partial mutation. Nil fields are left untouched.
type Update struct {
	CurrentPosition *float64       `json:"currentPosition,omitempty"`
	Quality         *model.Quality `json:"quality,omitempty"`
	PlaybackSpeed   *float64       `json:"playbackSpeed,omitempty"`
	Volume          *float64       `json:"volume,omitempty"`
	IsFullscreen    *bool          `json:"isFullscreen,omitempty"`
}

// Validate checks the provided fields against their allowed ranges.
func (u Update) Validate() error {
	if u.CurrentPosition != nil && *u.CurrentPosition < 0 {
		return fmt.Errorf("%w: position must be >= 0", ErrInvalidArgument)
	}
	if u.Quality != nil && !u.Quality.Valid() {
		return fmt.Errorf("%w: unknown quality %q", ErrInvalidArgument, *u.Quality)
	}
	if u.PlaybackSpeed != nil && (*u.PlaybackSpeed < model.MinPlaybackSpeed || *u.PlaybackSpeed > model.MaxPlaybackSpeed) {
		return fmt.Errorf("%w: playback speed must be within [%v,%v]", ErrInvalidArgument, model.MinPlaybackSpeed, model.MaxPlaybackSpeed)
	}
	if u.Volume != nil && (*u.Volume < model.MinVolume || *u.Volume > model.MaxVolume) {
		return fmt.Errorf("%w: volume must be within [%v,%v]", ErrInvalidArgument, model.MinVolume, model.MaxVolume)
	}
	return nil
}

// UpdateSession applies the provided fields, refreshes LastActivity and
// rewrites the record with a fresh TTL.
func (m *Manager) UpdateSession(ctx context.Context, sessionID string, u Update) error {
	defer observeOp("update", time.Now())
	ctx, span := tracer.Start(ctx, "session.Update", trace.WithAttributes(telemetry.SessionAttributes(sessionID)...))
	defer span.End()

	if err := u.Validate(); err != nil {
		return fail(span, err)
	}

	s, err := m.load(ctx, sessionID)
	if store.IsNotFound(err) {
		return fail(span, fmt.Errorf("%w: session %s", ErrNotFound, sessionID))
	}
	if err != nil {
		return fail(span, fmt.Errorf("load session: %w", err))
	}

	if u.CurrentPosition != nil {
		s.CurrentPosition = *u.CurrentPosition
		refreshCompletion(s, m.lookup(ctx, s.VideoID))
	}
	if u.Quality != nil {
		s.Quality = *u.Quality
	}
	if u.PlaybackSpeed != nil {
		s.PlaybackSpeed = *u.PlaybackSpeed
	}
	if u.Volume != nil {
		s.Volume = *u.Volume
	}
	if u.IsFullscreen != nil {
		s.IsFullscreen = *u.IsFullscreen
	}
	s.LastActivity = m.now()

	if err := m.save(ctx, s); err != nil {
		return fail(span, fmt.Errorf("persist session: %w", err))
	}
	return nil
}
