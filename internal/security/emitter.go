// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package security delivers security/abuse signals without touching the
// playback path.
package security

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/vodsession/internal/dispatch"
	"github.com/ManuGH/vodsession/internal/domain/session/ports"
	"github.com/ManuGH/vodsession/internal/log"
)

var signalsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vodsession",
		Name:      "security_signals_total",
		Help:      "Security signals by kind and outcome (delivered, throttled, dropped).",
	},
	[]string{"kind", "outcome"},
)

// LogSink writes signals to the structured log.
type LogSink struct {
	Logger zerolog.Logger
}

// NewLogSink returns a sink logging under the "security" component.
func NewLogSink() *LogSink {
	return &LogSink{Logger: log.WithComponent("security")}
}

func (s *LogSink) Emit(ctx context.Context, sig ports.Signal) {
	evt := s.Logger.Warn()
	if sig.Severity == ports.SeverityHigh {
		evt = s.Logger.Error()
	}
	evt.
		Str(log.FieldEvent, sig.Kind).
		Str("severity", string(sig.Severity)).
		Str(log.FieldUserID, sig.UserID).
		Fields(sig.Context).
		Msg("security signal")
}

// Config bounds the emitter.
type Config struct {
	QueueSize     int
	Workers       int
	RatePerSecond float64 // sustained signals per second; <= 0 disables throttling
	Burst         int
	Timeout       time.Duration // per-delivery deadline
}

// Emitter forwards signals to a sink asynchronously. Low-severity signals are
// throttled per kind so that an abuse burst of one kind cannot flood the sink
// or starve another kind; medium and high signals are never throttled.
type Emitter struct {
	sink    ports.SecuritySink
	queue   *dispatch.Queue
	timeout time.Duration

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewEmitter starts the delivery workers.
func NewEmitter(sink ports.SecuritySink, cfg Config) *Emitter {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Emitter{
		sink:     sink,
		queue:    dispatch.New("security", cfg.QueueSize, cfg.Workers),
		timeout:  timeout,
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Emit never blocks and never fails; undeliverable signals are counted.
func (e *Emitter) Emit(_ context.Context, sig ports.Signal) {
	if throttled(sig.Severity) && !e.limiterFor(sig.Kind).Allow() {
		signalsTotal.WithLabelValues(sig.Kind, "throttled").Inc()
		return
	}
	ok := e.queue.Submit(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		e.sink.Emit(ctx, sig)
		signalsTotal.WithLabelValues(sig.Kind, "delivered").Inc()
	})
	if !ok {
		signalsTotal.WithLabelValues(sig.Kind, "dropped").Inc()
	}
}

func throttled(sev ports.Severity) bool {
	return sev != ports.SeverityMedium && sev != ports.SeverityHigh
}

func (e *Emitter) limiterFor(kind string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[kind]
	if !ok {
		l = rate.NewLimiter(e.limit, e.burst)
		e.limiters[kind] = l
	}
	return l
}

// Close drains pending signals.
func (e *Emitter) Close(ctx context.Context) error {
	return e.queue.CloseAndWait(ctx)
}
