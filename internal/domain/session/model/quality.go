// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "fmt"

// Quality is a rendition label on the fixed playback ladder.
type Quality string

const (
	Quality240p  Quality = "240p"
	Quality360p  Quality = "360p"
	Quality480p  Quality = "480p"
	Quality720p  Quality = "720p"
	Quality1080p Quality = "1080p"
)

// Ladder lists every supported quality in ascending order.
var Ladder = []Quality{Quality240p, Quality360p, Quality480p, Quality720p, Quality1080p}

// Rank returns the ladder index of q, or -1 if q is not on the ladder.
func (q Quality) Rank() int {
	for i, l := range Ladder {
		if l == q {
			return i
		}
	}
	return -1
}

// Valid reports whether q is on the ladder.
func (q Quality) Valid() bool { return q.Rank() >= 0 }

// Step moves delta rungs along the ladder. ok is false when q is unknown or the
// move would leave the ladder.
func (q Quality) Step(delta int) (Quality, bool) {
	r := q.Rank()
	if r < 0 {
		return q, false
	}
	next := r + delta
	if next < 0 || next >= len(Ladder) {
		return q, false
	}
	return Ladder[next], true
}

// ParseQuality validates a client supplied quality label.
func ParseQuality(s string) (Quality, error) {
	q := Quality(s)
	if !q.Valid() {
		return "", fmt.Errorf("unsupported quality %q", s)
	}
	return q, nil
}
