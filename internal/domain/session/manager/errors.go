// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import "errors"

var (
	// ErrNotFound: the video manifest or the session does not exist (or expired).
	ErrNotFound = errors.New("session: not found")
	// ErrAccessDenied: the entitlement check refused playback.
	ErrAccessDenied = errors.New("session: access denied")
	// ErrInvalidArgument: a request field is outside its allowed range.
	ErrInvalidArgument = errors.New("session: invalid argument")
)
