// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// WatchHistoryRecord is the durable snapshot written when a session ends.
type WatchHistoryRecord struct {
	SessionID            string     `json:"sessionId"`
	UserID               string     `json:"userId"`
	VideoID              string     `json:"videoId"`
	CourseID             string     `json:"courseId,omitempty"`
	WatchTime            float64    `json:"watchTime"`
	CompletionPercentage int        `json:"completionPercentage"`
	EventCount           int        `json:"eventCount"`
	DeviceInfo           DeviceInfo `json:"deviceInfo,omitempty"`
	EndedAt              time.Time  `json:"endedAt"`
}

// NewWatchHistoryRecord snapshots s at endedAt.
func NewWatchHistoryRecord(s *Session, endedAt time.Time) WatchHistoryRecord {
	return WatchHistoryRecord{
		SessionID:            s.SessionID,
		UserID:               s.UserID,
		VideoID:              s.VideoID,
		CourseID:             s.CourseID,
		WatchTime:            s.WatchTime,
		CompletionPercentage: s.CompletionPercentage,
		EventCount:           len(s.Events),
		DeviceInfo:           s.DeviceInfo,
		EndedAt:              endedAt,
	}
}
