// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package analytics aggregates playback telemetry into per-video, per-day
// counters and event logs. Writes are best-effort: failures are logged and
// counted but never reach the playback path.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ManuGH/vodsession/internal/dispatch"
	"github.com/ManuGH/vodsession/internal/domain/session/ports"
	"github.com/ManuGH/vodsession/internal/domain/session/store"
	"github.com/ManuGH/vodsession/internal/log"
)

// DateLayout is the day bucket format used in keys.
const DateLayout = "2006-01-02"

var writesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vodsession",
		Name:      "analytics_writes_total",
		Help:      "Analytics event writes by result.",
	},
	[]string{"result"},
)

// Config tunes the aggregator.
type Config struct {
	Retention    time.Duration // TTL of counters and event logs
	WriteTimeout time.Duration
	QueueSize    int
	Workers      int
}

// DefaultConfig mirrors the stock deployment.
func DefaultConfig() Config {
	return Config{
		Retention:    24 * time.Hour,
		WriteTimeout: 2 * time.Second,
		QueueSize:    1024,
		Workers:      2,
	}
}

// Aggregator records analytics events and serves the rollup read path.
type Aggregator struct {
	kv    store.Store
	cfg   Config
	queue *dispatch.Queue
	now   func() time.Time
}

// New starts the write workers. Call Close to drain them.
func New(kv store.Store, cfg Config) *Aggregator {
	def := DefaultConfig()
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Aggregator{
		kv:    kv,
		cfg:   cfg,
		queue: dispatch.New("analytics", cfg.QueueSize, cfg.Workers),
		now:   time.Now,
	}
}

// Track enqueues e for recording. It never blocks.
func (a *Aggregator) Track(e ports.AnalyticsEvent) {
	if e.At.IsZero() {
		e.At = a.now()
	}
	a.queue.Submit(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.WriteTimeout)
		defer cancel()
		if err := a.Record(ctx, e); err != nil {
			logger := log.WithComponent("analytics")
			logger.Warn().
				Err(err).
				Str(log.FieldEvent, e.Type).
				Str(log.FieldVideoID, e.VideoID).
				Str(log.FieldSessionID, e.SessionID).
				Msg("analytics write failed")
		}
	})
}

// Record writes e synchronously: it bumps the day counter for the event type
// and appends the detailed record to the day log. Both keys share the
// rolling retention TTL.
func (a *Aggregator) Record(ctx context.Context, e ports.AnalyticsEvent) error {
	if e.VideoID == "" {
		writesTotal.WithLabelValues("invalid").Inc()
		return errors.New("analytics: event without video id")
	}
	date := e.At.UTC().Format(DateLayout)

	raw, err := json.Marshal(e)
	if err != nil {
		writesTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("analytics: encode event: %w", err)
	}

	var errs []error
	if _, err := a.kv.Incr(ctx, store.VideoCounterKey(e.VideoID, date, counterName(e.Type)), a.cfg.Retention); err != nil {
		errs = append(errs, fmt.Errorf("counter: %w", err))
	}
	if err := a.kv.AddToSet(ctx, store.VideoEventLogKey(e.VideoID, date), string(raw), a.cfg.Retention); err != nil {
		errs = append(errs, fmt.Errorf("event log: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		writesTotal.WithLabelValues("error").Inc()
		return err
	}
	writesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Close drains queued writes.
func (a *Aggregator) Close(ctx context.Context) error {
	return a.queue.CloseAndWait(ctx)
}

// counterName keeps client event types from colliding with the log key suffix.
func counterName(eventType string) string {
	switch eventType {
	case "":
		return "unknown"
	case "events":
		return "event_events"
	default:
		return eventType
	}
}
