// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package limiter caps simultaneous playback sessions per user.
//
// Enforcement is soft: the least recently active sessions are ended to make
// room, creation itself is never refused. Concurrent creators may briefly push a
// user over the cap; the next enforcement pass corrects it.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/vodsession/internal/domain/session/model"
	"github.com/ManuGH/vodsession/internal/domain/session/ports"
	"github.com/ManuGH/vodsession/internal/domain/session/store"
	"github.com/ManuGH/vodsession/internal/log"
)

// DefaultMaxConcurrent is the per-user session cap when none is configured.
const DefaultMaxConcurrent = 3

// evictParallelism bounds concurrent EndSession calls during one enforcement.
const evictParallelism = 4

var (
	enforcementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vodsession",
		Name:      "session_limit_enforcements_total",
		Help:      "Times a user exceeded the concurrent session cap.",
	})

	evictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vodsession",
			Name:      "session_evictions_total",
			Help:      "Sessions ended by the concurrency limiter, by result.",
		},
		[]string{"result"},
	)
)

// Ender terminates a session. The lifecycle manager satisfies it.
type Ender interface {
	EndSession(ctx context.Context, sessionID string) error
}

// EnderFunc adapts a function to Ender.
type EnderFunc func(ctx context.Context, sessionID string) error

func (f EnderFunc) EndSession(ctx context.Context, sessionID string) error { return f(ctx, sessionID) }

// Config tunes the limiter.
type Config struct {
	MaxConcurrent int
	IndexTTL      time.Duration // lifetime of the per-user index; refreshed on every Register
}

// Limiter tracks open sessions per user in a side index on the store.
type Limiter struct {
	kv      store.Store
	records store.Records
	cfg     Config
	ender   Ender
	sink    ports.SecuritySink
}

// New builds a limiter. sink may be nil.
func New(kv store.Store, cfg Config, ender Ender, sink ports.SecuritySink) (*Limiter, error) {
	if kv == nil {
		return nil, errors.New("limiter: store is required")
	}
	if ender == nil {
		return nil, errors.New("limiter: ender is required")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Limiter{
		kv:      kv,
		records: store.Records{KV: kv},
		cfg:     cfg,
		ender:   ender,
		sink:    sink,
	}, nil
}

// Max returns the configured cap.
func (l *Limiter) Max() int { return l.cfg.MaxConcurrent }

// Register records sessionID as open for userID.
func (l *Limiter) Register(ctx context.Context, userID, sessionID string) error {
	return l.kv.AddToSet(ctx, store.UserSessionsKey(userID), sessionID, l.cfg.IndexTTL)
}

// Release drops sessionID from the user's index.
func (l *Limiter) Release(ctx context.Context, userID, sessionID string) error {
	return l.kv.RemoveFromSet(ctx, store.UserSessionsKey(userID), sessionID)
}

// Open returns the user's live sessions, least recently active first. Index
// entries whose session record has expired are pruned.
func (l *Limiter) Open(ctx context.Context, userID string) ([]*model.Session, error) {
	ids, err := l.kv.SetMembers(ctx, store.UserSessionsKey(userID))
	if err != nil {
		return nil, fmt.Errorf("limiter: list sessions: %w", err)
	}
	logger := log.WithComponentFromContext(ctx, "limiter")

	open := make([]*model.Session, 0, len(ids))
	for _, id := range ids {
		s, err := l.records.GetSession(ctx, id)
		if store.IsNotFound(err) {
			if err := l.Release(ctx, userID, id); err != nil {
				logger.Warn().Err(err).Str(log.FieldSessionID, id).Msg("failed to prune stale index entry")
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("limiter: load session %s: %w", id, err)
		}
		open = append(open, s)
	}

	sort.Slice(open, func(i, j int) bool {
		if open[i].LastActivity.Equal(open[j].LastActivity) {
			return open[i].StartTime.Before(open[j].StartTime)
		}
		return open[i].LastActivity.Before(open[j].LastActivity)
	})
	return open, nil
}

// Enforce makes room for one more session of userID. It ends the least
// recently active sessions beyond the cap and emits one security signal per
// enforcement. It returns the IDs that were actually ended.
func (l *Limiter) Enforce(ctx context.Context, userID string) ([]string, error) {
	open, err := l.Open(ctx, userID)
	if err != nil {
		return nil, err
	}
	excess := len(open) - l.cfg.MaxConcurrent + 1
	if excess <= 0 {
		return nil, nil
	}
	enforcementsTotal.Inc()

	logger := log.WithComponentFromContext(ctx, "limiter")
	var (
		mu      sync.Mutex
		evicted []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evictParallelism)
	for _, s := range open[:excess] {
		id := s.SessionID
		g.Go(func() error {
			if err := l.ender.EndSession(gctx, id); err != nil {
				evictionsTotal.WithLabelValues("error").Inc()
				logger.Warn().Err(err).Str(log.FieldSessionID, id).Msg("failed to evict session")
				return nil
			}
			evictionsTotal.WithLabelValues("ok").Inc()
			mu.Lock()
			evicted = append(evicted, id)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	logger.Info().
		Str(log.FieldUserID, userID).
		Int("open", len(open)).
		Int("max", l.cfg.MaxConcurrent).
		Strs("evicted", evicted).
		Msg("session limit enforced")

	if l.sink != nil {
		l.sink.Emit(ctx, ports.Signal{
			Kind:     ports.SignalSessionLimitEnforced,
			Severity: ports.SeverityMedium,
			UserID:   userID,
			Context: map[string]any{
				"action":  ports.SignalSessionLimitEnforced,
				"open":    len(open),
				"max":     l.cfg.MaxConcurrent,
				"evicted": evicted,
			},
		})
	}
	return evicted, nil
}
