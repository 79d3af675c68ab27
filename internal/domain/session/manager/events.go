// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/vodsession/internal/domain/session/model"
	"github.com/ManuGH/vodsession/internal/domain/session/ports"
	"github.com/ManuGH/vodsession/internal/domain/session/store"
	"github.com/ManuGH/vodsession/internal/log"
	"github.com/ManuGH/vodsession/internal/telemetry"
)

// MetadataCompleted flags an ended event as terminal regardless of position.
const MetadataCompleted = "completed"

// EventInput is a discrete playback event reported by the client.
type EventInput struct {
	Type     string            `json:"type"`
	Position float64           `json:"position"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TrackResult reports what TrackEvent did.
type TrackResult struct {
	Recorded       bool `json:"recorded"`
	VideoCompleted bool `json:"videoCompleted"`
}

// TrackEvent appends a playback event to the session log. It is best-effort:
// unknown sessions and store failures yield a zero result, never an error.
func (m *Manager) TrackEvent(ctx context.Context, sessionID string, in EventInput) TrackResult {
	defer observeOp("event", time.Now())
	ctx, span := tracer.Start(ctx, "session.TrackEvent", trace.WithAttributes(
		attribute.String(telemetry.SessionIDKey, sessionID),
		attribute.String(telemetry.EventTypeKey, in.Type),
	))
	defer span.End()
	logger := sessionLogger(ctx, sessionID)

	if in.Type == "" {
		return TrackResult{}
	}

	s, err := m.load(ctx, sessionID)
	if err != nil {
		if !store.IsNotFound(err) {
			span.RecordError(err)
			logger.Warn().Err(err).Str(log.FieldEvent, in.Type).Msg("event dropped: session read failed")
		}
		return TrackResult{}
	}

	now := m.now()
	s.Events = s.Events.Append(model.PlaybackEvent{
		Type:      in.Type,
		Position:  in.Position,
		Metadata:  in.Metadata,
		Timestamp: now,
	})
	s.LastActivity = now

	var res TrackResult
	if err := m.save(ctx, s); err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Str(log.FieldEvent, in.Type).Msg("event dropped: session write failed")
	} else {
		res.Recorded = true
	}

	if in.Type == model.EventEnded && m.completed(ctx, s.VideoID, in) {
		res.VideoCompleted = true
		videoCompletionsTotal.Inc()
		logger.Info().Float64(log.FieldPosition, in.Position).Msg("video completed")
	}

	data := map[string]any{ports.DataPosition: in.Position}
	if len(in.Metadata) > 0 {
		data[ports.DataMetadata] = in.Metadata
	}
	m.track(ports.AnalyticsEvent{
		Type:      in.Type,
		SessionID: s.SessionID,
		UserID:    s.UserID,
		VideoID:   s.VideoID,
		At:        now,
		Data:      data,
	})
	return res
}

// completed reports whether an ended event reached the end of the video.
func (m *Manager) completed(ctx context.Context, videoID string, in EventInput) bool {
	if in.Metadata[MetadataCompleted] == "true" {
		return true
	}
	mf := m.lookup(ctx, videoID)
	return mf.HasDuration() && in.Position >= mf.Duration-m.cfg.CompletionTolerance
}
