// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ports declares the contracts the session core consumes from its
// surroundings: manifest resolution, entitlement checks and the abuse signal sink.
package ports

import (
	"context"
	"errors"

	"github.com/ManuGH/vodsession/internal/domain/session/model"
)

// ErrManifestNotFound is returned by a ManifestSource for unknown videos.
var ErrManifestNotFound = errors.New("manifest not found")

// ManifestSource resolves the packaged manifest of a video.
type ManifestSource interface {
	GetManifest(ctx context.Context, videoID string) (*model.Manifest, error)
}

// Entitlement decides whether a user may watch a video.
type Entitlement interface {
	HasAccess(ctx context.Context, userID, videoID, courseID string) (bool, error)
}

// EntitlementFunc adapts a function to Entitlement.
type EntitlementFunc func(ctx context.Context, userID, videoID, courseID string) (bool, error)

func (f EntitlementFunc) HasAccess(ctx context.Context, userID, videoID, courseID string) (bool, error) {
	return f(ctx, userID, videoID, courseID)
}

// Severity grades a security signal.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Signal kinds emitted by the core and its HTTP shell.
const (
	SignalSessionLimitEnforced = "session_limit_enforced"
	SignalTokenRejected        = "token_rejected"
	SignalForeignSession       = "foreign_session_access"
)

// Signal is a fire-and-forget security/abuse notification.
type Signal struct {
	Kind     string         `json:"kind"`
	Severity Severity       `json:"severity"`
	UserID   string         `json:"userId,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// SecuritySink receives security signals. Implementations must not block the caller.
type SecuritySink interface {
	Emit(ctx context.Context, s Signal)
}
