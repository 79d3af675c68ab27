// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldUserID    = "user_id"
	FieldVideoID   = "video_id"
	FieldCourseID  = "course_id"
	FieldRequestID = "request_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStep      = "step"
	FieldKey       = "key"

	// Playback fields
	FieldQuality      = "quality"
	FieldPosition     = "position"
	FieldBufferHealth = "buffer_health"
)
