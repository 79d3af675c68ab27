// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys shared by the session core and the HTTP shell.
const (
	SessionIDKey      = "session.id"
	SessionEvictedKey = "session.evicted"
	UserIDKey         = "user.id"
	VideoIDKey        = "video.id"
	EventTypeKey      = "event.type"
	ServiceNameKey    = "service.name"
)

// SessionAttributes tags a span with the session it operates on.
func SessionAttributes(sessionID string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(SessionIDKey, sessionID)}
}
