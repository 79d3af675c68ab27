// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import "time"

// Lifecycle analytics event types. Discrete playback events keep the client's type.
const (
	AnalyticsSessionCreated = "session_created"
	AnalyticsHeartbeat      = "heartbeat"
	AnalyticsSessionEnded   = "session_ended"
)

// Data keys of lifecycle analytics events.
const (
	DataDeviceType   = "deviceType"
	DataCourseID     = "courseId"
	DataQuality      = "quality"
	DataPosition     = "position"
	DataBufferHealth = "bufferHealth"
	DataWatchTime    = "watchTime"
	DataCompletion   = "completion"
	DataMetadata     = "metadata"
)

// AnalyticsEvent is one record handed to the analytics pipeline.
type AnalyticsEvent struct {
	Type      string         `json:"event"`
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId"`
	VideoID   string         `json:"videoId"`
	At        time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// AnalyticsSink accepts events without blocking and without failing the caller.
type AnalyticsSink interface {
	Track(e AnalyticsEvent)
}
