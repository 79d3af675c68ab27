// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"math"
	"time"
)

// Playback bounds accepted from clients.
const (
	MinPlaybackSpeed = 0.25
	MaxPlaybackSpeed = 2.0
	MinVolume        = 0.0
	MaxVolume        = 1.0
)

// DeviceInfo is opaque client metadata captured at creation.
type DeviceInfo map[string]string

// Restrictions are access-control flags fixed at creation.
type Restrictions struct {
	DownloadDisabled      bool `json:"downloadDisabled"`
	SeekingDisabled       bool `json:"seekingDisabled"`
	MaxConcurrentSessions int  `json:"maxConcurrentSessions"`
}

// Watermark describes a viewer-identifying overlay.
type Watermark struct {
	Text     string  `json:"text"`
	Position string  `json:"position"`
	Opacity  float64 `json:"opacity"`
}

// Session is one viewer's playback context for one video.
//
// Identity, StartTime, DeviceInfo, AccessToken, Restrictions and Watermark are
// fixed at creation. Everything else is rewritten by updates, heartbeats and events.
type Session struct {
	SessionID  string     `json:"sessionId"`
	UserID     string     `json:"userId"`
	VideoID    string     `json:"videoId"`
	CourseID   string     `json:"courseId,omitempty"`
	StartTime  time.Time  `json:"startTime"`
	DeviceInfo DeviceInfo `json:"deviceInfo,omitempty"`

	LastActivity         time.Time `json:"lastActivity"`
	CurrentPosition      float64   `json:"currentPosition"`
	Quality              Quality   `json:"quality"`
	PlaybackSpeed        float64   `json:"playbackSpeed"`
	Volume               float64   `json:"volume"`
	IsFullscreen         bool      `json:"isFullscreen"`
	WatchTime            float64   `json:"watchTime"`
	CompletionPercentage int       `json:"completionPercentage"`
	Events               EventLog  `json:"events"`

	AccessToken  string       `json:"accessToken"`
	Restrictions Restrictions `json:"restrictions"`
	Watermark    *Watermark   `json:"watermark,omitempty"`
}

// CompletionPercentage derives round(100*position/duration) clamped to [0,100].
// ok is false when the duration is unknown.
func CompletionPercentage(position, duration float64) (pct int, ok bool) {
	if duration <= 0 {
		return 0, false
	}
	p := math.Round(100 * position / duration)
	switch {
	case p < 0:
		p = 0
	case p > 100:
		p = 100
	}
	return int(p), true
}
