// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/vodsession/internal/domain/session/model"
	"github.com/ManuGH/vodsession/internal/domain/session/ports"
	"github.com/ManuGH/vodsession/internal/domain/session/store"
	"github.com/ManuGH/vodsession/internal/log"
	"github.com/ManuGH/vodsession/internal/telemetry"
)

// Teardown steps of EndSession, used as log and metric labels.
const (
	stepHistory = "history"
	stepIndex   = "history_index"
	stepDelete  = "delete"
	stepRelease = "limiter_release"
)

// EndSession captures the watch history record and removes the live session.
// Unknown sessions are a no-op. Each teardown step runs even if an earlier
// one failed; failures are logged per step and not returned. Only a failed
// initial read is reported, since nothing has been done at that point.
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	defer observeOp("end", time.Now())
	ctx, span := tracer.Start(ctx, "session.End", trace.WithAttributes(telemetry.SessionAttributes(sessionID)...))
	defer span.End()

	s, err := m.load(ctx, sessionID)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fail(span, fmt.Errorf("load session: %w", err))
	}

	now := m.now()
	logger := sessionLogger(log.ContextWithUserID(ctx, s.UserID), sessionID)
	rec := model.NewWatchHistoryRecord(s, now)

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{stepHistory, func(ctx context.Context) error { return m.records.PutWatchHistory(ctx, rec) }},
		{stepIndex, func(ctx context.Context) error { return m.records.IndexWatchHistory(ctx, s.UserID, sessionID) }},
		{stepDelete, func(ctx context.Context) error { return m.records.DeleteSession(ctx, sessionID) }},
		{stepRelease, func(ctx context.Context) error { return m.limiter.Release(ctx, s.UserID, sessionID) }},
	}

	failed := 0
	for _, step := range steps {
		stepCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
		err := step.run(stepCtx)
		cancel()
		if err != nil {
			failed++
			span.RecordError(err)
			endStepFailuresTotal.WithLabelValues(step.name).Inc()
			logger.Error().Err(err).Str(log.FieldStep, step.name).Msg("session teardown step failed")
		}
	}

	result := "complete"
	if failed > 0 {
		result = "partial"
	}
	sessionsEndedTotal.WithLabelValues(result).Inc()
	logger.Info().
		Str(log.FieldVideoID, s.VideoID).
		Float64("watch_time", s.WatchTime).
		Int("completion", s.CompletionPercentage).
		Str("result", result).
		Msg("session ended")

	m.track(ports.AnalyticsEvent{
		Type:      ports.AnalyticsSessionEnded,
		SessionID: sessionID,
		UserID:    s.UserID,
		VideoID:   s.VideoID,
		At:        now,
		Data: map[string]any{
			ports.DataWatchTime:  s.WatchTime,
			ports.DataCompletion: s.CompletionPercentage,
			ports.DataPosition:   s.CurrentPosition,
		},
	})
	return nil
}

// WatchHistory returns the user's watch history records, newest first.
// Index entries whose record is missing are skipped.
func (m *Manager) WatchHistory(ctx context.Context, userID string) ([]model.WatchHistoryRecord, error) {
	defer observeOp("history", time.Now())
	ctx, span := tracer.Start(ctx, "session.WatchHistory", trace.WithAttributes(attribute.String(telemetry.UserIDKey, userID)))
	defer span.End()

	idxCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	ids, err := m.records.UserWatchHistory(idxCtx, userID)
	cancel()
	if err != nil {
		return nil, fail(span, fmt.Errorf("load watch history index: %w", err))
	}

	out := make([]model.WatchHistoryRecord, 0, len(ids))
	for _, id := range ids {
		recCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
		rec, err := m.records.GetWatchHistory(recCtx, id)
		cancel()
		if store.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fail(span, fmt.Errorf("load watch history %s: %w", id, err))
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	return out, nil
}
