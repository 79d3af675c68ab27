// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

// Logical key layout. Backends must treat these as opaque strings.

func SessionKey(sessionID string) string { return "session:" + sessionID }

func WatchHistoryKey(sessionID string) string { return "watchHistory:" + sessionID }

func UserWatchHistoryKey(userID string) string { return "userWatchHistory:" + userID }

// UserSessionsKey indexes the open sessions of a user for the concurrency limiter.
func UserSessionsKey(userID string) string { return "userSessions:" + userID }

// VideoCounterKey is the per-video, per-day, per-event counter.
func VideoCounterKey(videoID, date, event string) string {
	return "videoAnalytics:" + videoID + ":" + date + ":" + event
}

// VideoEventLogKey is the per-video, per-day detailed event set.
func VideoEventLogKey(videoID, date string) string {
	return "videoAnalytics:" + videoID + ":" + date + ":events"
}
