// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// EventLogCapacity bounds the per-session event log.
const EventLogCapacity = 100

// Well-known playback event types. Clients may send others; they are stored as-is.
const (
	EventPlay          = "play"
	EventPause         = "pause"
	EventSeek          = "seek"
	EventQualityChange = "quality_change"
	EventBuffering     = "buffering"
	EventEnded         = "ended"
	EventError         = "error"
)

// PlaybackEvent is one discrete client event.
type PlaybackEvent struct {
	Type      string            `json:"type"`
	Position  float64           `json:"position"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// EventLog is an insertion-ordered log that keeps the newest EventLogCapacity entries.
type EventLog []PlaybackEvent

// Append adds e and evicts the oldest entries beyond capacity.
func (l EventLog) Append(e PlaybackEvent) EventLog {
	l = append(l, e)
	if over := len(l) - EventLogCapacity; over > 0 {
		trimmed := make(EventLog, EventLogCapacity)
		copy(trimmed, l[over:])
		return trimmed
	}
	return l
}
