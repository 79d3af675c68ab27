// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Golden Signal: Lifecycle
	sessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vodsession",
			Name:      "sessions_created_total",
			Help:      "Playback sessions created.",
		},
	)

	sessionsEndedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vodsession",
			Name:      "sessions_ended_total",
			Help:      "Playback sessions ended, by result (complete when every teardown step succeeded).",
		},
		[]string{"result"},
	)

	endStepFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vodsession",
			Name:      "session_end_step_failures_total",
			Help:      "Teardown step failures during EndSession.",
		},
		[]string{"step"},
	)

	heartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vodsession",
			Name:      "heartbeats_total",
			Help:      "Heartbeats processed, by status.",
		},
		[]string{"status"},
	)

	// Golden Signal: Quality of experience
	abrRecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vodsession",
			Name:      "abr_recommendations_total",
			Help:      "Quality recommendations returned with heartbeats.",
		},
		[]string{"direction"},
	)

	videoCompletionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vodsession",
			Name:      "video_completions_total",
			Help:      "Ended events that reached the end of the video.",
		},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vodsession",
			Name:      "session_operation_duration_seconds",
			Help:      "Latency of session lifecycle operations.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"op"},
	)
)

func observeOp(op string, start time.Time) {
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
