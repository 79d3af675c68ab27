// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// QualityVariant is one rendition of a packaged video.
type QualityVariant struct {
	Quality   Quality `json:"quality" yaml:"quality"`
	Bandwidth int64   `json:"bandwidth" yaml:"bandwidth"`
	URL       string  `json:"url" yaml:"url"`
}

// Manifest references the packaged output of the encoding pipeline.
// It is read-only for the session core.
type Manifest struct {
	VideoID    string           `json:"videoId" yaml:"video_id"`
	Format     string           `json:"format" yaml:"format"`
	BaseURL    string           `json:"baseUrl" yaml:"base_url"`
	Qualities  []QualityVariant `json:"qualities" yaml:"qualities"`
	Duration   float64          `json:"duration" yaml:"duration"` // seconds; <= 0 means unknown
	Thumbnails []string         `json:"thumbnails,omitempty" yaml:"thumbnails"`
	Encrypted  bool             `json:"encrypted" yaml:"encrypted"`
}

// HasDuration reports whether completion can be derived from positions.
func (m *Manifest) HasDuration() bool {
	return m != nil && m.Duration > 0
}

// Variant returns the rendition for q, if packaged.
func (m *Manifest) Variant(q Quality) (QualityVariant, bool) {
	if m == nil {
		return QualityVariant{}, false
	}
	for _, v := range m.Qualities {
		if v.Quality == q {
			return v, true
		}
	}
	return QualityVariant{}, false
}
