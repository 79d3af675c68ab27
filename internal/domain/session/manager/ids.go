// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SessionIDPrefix starts every generated session ID.
const SessionIDPrefix = "sess_"

// newSessionID returns prefix + base36 unix millis + 128 random bits.
func newSessionID(now time.Time) string {
	u := uuid.New()
	return SessionIDPrefix + strconv.FormatInt(now.UnixMilli(), 36) + "_" + hex.EncodeToString(u[:])
}
