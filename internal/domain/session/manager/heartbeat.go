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
	"github.com/ManuGH/vodsession/internal/domain/session/ports"
	"github.com/ManuGH/vodsession/internal/domain/session/store"
	"github.com/ManuGH/vodsession/internal/log"
	"github.com/ManuGH/vodsession/internal/telemetry"
)

// HeartbeatStatus is the outcome of ProcessHeartbeat.
type HeartbeatStatus string

const (
	StatusOK      HeartbeatStatus = "ok"
	StatusInvalid HeartbeatStatus = "invalid"
	StatusExpired HeartbeatStatus = "expired"
)

// Heartbeat is the periodic client report.
type Heartbeat struct {
	Position       float64       `json:"position"`
	BufferHealth   float64       `json:"bufferHealth"`
	CurrentQuality model.Quality `json:"currentQuality"`
}

// HeartbeatResult carries the status and an optional quality hint.
type HeartbeatResult struct {
	Status             HeartbeatStatus `json:"status"`
	RecommendedQuality model.Quality   `json:"recommendedQuality,omitempty"`
}

// ProcessHeartbeat accrues watch time and returns an ABR hint. Unknown
// sessions report StatusInvalid and timed out sessions StatusExpired; neither
// is an error. Only store failures are returned.
func (m *Manager) ProcessHeartbeat(ctx context.Context, sessionID string, hb Heartbeat) (HeartbeatResult, error) {
	defer observeOp("heartbeat", time.Now())
	ctx, span := tracer.Start(ctx, "session.Heartbeat", trace.WithAttributes(telemetry.SessionAttributes(sessionID)...))
	defer span.End()

	s, err := m.load(ctx, sessionID)
	if store.IsNotFound(err) {
		heartbeatsTotal.WithLabelValues(string(StatusInvalid)).Inc()
		return HeartbeatResult{Status: StatusInvalid}, nil
	}
	if err != nil {
		heartbeatsTotal.WithLabelValues("error").Inc()
		return HeartbeatResult{}, fail(span, fmt.Errorf("load session: %w", err))
	}

	now := m.now()
	if m.expired(s, now) {
		heartbeatsTotal.WithLabelValues(string(StatusExpired)).Inc()
		logger := sessionLogger(ctx, sessionID)
		logger.Debug().
			Time("start_time", s.StartTime).
			Time("last_activity", s.LastActivity).
			Msg("heartbeat on expired session")
		return HeartbeatResult{Status: StatusExpired}, nil
	}

	if elapsed := now.Sub(s.LastActivity); elapsed > 0 {
		s.WatchTime += elapsed.Seconds()
	}
	s.LastActivity = now
	mf := m.lookup(ctx, s.VideoID)
	if hb.Position >= 0 {
		s.CurrentPosition = hb.Position
		refreshCompletion(s, mf)
	}
	current := s.Quality
	if hb.CurrentQuality.Valid() {
		current = hb.CurrentQuality
		s.Quality = current
	}

	if err := m.save(ctx, s); err != nil {
		heartbeatsTotal.WithLabelValues("error").Inc()
		return HeartbeatResult{}, fail(span, fmt.Errorf("persist session: %w", err))
	}

	res := HeartbeatResult{Status: StatusOK}
	if q, ok := m.abr.Recommend(hb.BufferHealth, current); ok && q != current && packaged(mf, q) {
		res.RecommendedQuality = q
		direction := "up"
		if q.Rank() < current.Rank() {
			direction = "down"
		}
		abrRecommendationsTotal.WithLabelValues(direction).Inc()
		logger := sessionLogger(ctx, sessionID)
		logger.Debug().
			Float64(log.FieldBufferHealth, hb.BufferHealth).
			Str(log.FieldQuality, string(current)).
			Str("recommended", string(q)).
			Msg("quality change recommended")
	}
	heartbeatsTotal.WithLabelValues(string(StatusOK)).Inc()

	m.track(ports.AnalyticsEvent{
		Type:      ports.AnalyticsHeartbeat,
		SessionID: s.SessionID,
		UserID:    s.UserID,
		VideoID:   s.VideoID,
		At:        now,
		Data: map[string]any{
			ports.DataQuality:      string(current),
			ports.DataPosition:     s.CurrentPosition,
			ports.DataWatchTime:    s.WatchTime,
			ports.DataBufferHealth: hb.BufferHealth,
		},
	})
	return res, nil
}

// expired applies the soft timeouts. Both fire before the store TTL.
func (m *Manager) expired(s *model.Session, now time.Time) bool {
	if now.Sub(s.StartTime) > m.cfg.SessionTimeout {
		return true
	}
	return m.cfg.IdleTimeout > 0 && now.Sub(s.LastActivity) > m.cfg.IdleTimeout
}
