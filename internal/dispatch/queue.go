// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dispatch runs best-effort side effects off the request path.
// Submission never blocks: when the buffer is full the task is dropped and counted.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/ManuGH/vodsession/internal/log"
)

var (
	droppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vodsession",
			Name:      "dispatch_dropped_total",
			Help:      "Best-effort tasks dropped because the queue was full or closed.",
		},
		[]string{"queue"},
	)

	panicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vodsession",
			Name:      "dispatch_panics_total",
			Help:      "Best-effort tasks that panicked.",
		},
		[]string{"queue"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vodsession",
			Name:      "dispatch_queue_depth",
			Help:      "Tasks waiting in a best-effort queue.",
		},
		[]string{"queue"},
	)
)

// Task is one unit of best-effort work. ctx is cancelled when the queue is
// abandoned during shutdown.
type Task func(ctx context.Context)

// Queue is a bounded FIFO drained by a fixed worker pool.
type Queue struct {
	name   string
	tasks  chan Task
	logger zerolog.Logger

	mu      sync.RWMutex
	closing bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New starts workers goroutines draining a buffer of size tasks.
func New(name string, size, workers int) *Queue {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		name:   name,
		tasks:  make(chan Task, size),
		logger: log.WithComponent("dispatch").With().Str("queue", name).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

// Submit enqueues t without blocking. It reports false when t was dropped.
func (q *Queue) Submit(t Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closing {
		droppedTotal.WithLabelValues(q.name).Inc()
		return false
	}
	select {
	case q.tasks <- t:
		queueDepth.WithLabelValues(q.name).Inc()
		return true
	default:
		droppedTotal.WithLabelValues(q.name).Inc()
		return false
	}
}

// CloseAndWait stops accepting tasks and drains what is queued. If ctx ends
// first, in-flight tasks see a cancelled context and the error is returned.
func (q *Queue) CloseAndWait(ctx context.Context) error {
	q.mu.Lock()
	if !q.closing {
		q.closing = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return fmt.Errorf("dispatch %s drain timeout: %w", q.name, ctx.Err())
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		queueDepth.WithLabelValues(q.name).Dec()
		if q.ctx.Err() != nil {
			droppedTotal.WithLabelValues(q.name).Inc()
			continue
		}
		q.run(t)
	}
}

func (q *Queue) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			panicsTotal.WithLabelValues(q.name).Inc()
			q.logger.Error().Interface("panic", r).Msg("best-effort task panicked")
		}
	}()
	t(q.ctx)
}
