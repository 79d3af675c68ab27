// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package abr maps client buffer health to one-step quality recommendations.
package abr

import (
	"fmt"

	"github.com/ManuGH/vodsession/internal/domain/session/model"
)

// Default buffer thresholds in seconds.
const (
	DefaultLowBuffer  = 5.0
	DefaultHighBuffer = 15.0
)

// Config holds the buffer thresholds.
type Config struct {
	LowBufferSeconds  float64
	HighBufferSeconds float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{LowBufferSeconds: DefaultLowBuffer, HighBufferSeconds: DefaultHighBuffer}
}

// Validate rejects threshold pairs that would leave no adequate band.
func (c Config) Validate() error {
	if c.LowBufferSeconds < 0 {
		return fmt.Errorf("abr: low buffer threshold must be >= 0, got %v", c.LowBufferSeconds)
	}
	if c.HighBufferSeconds <= c.LowBufferSeconds {
		return fmt.Errorf("abr: high buffer threshold (%v) must exceed low (%v)", c.HighBufferSeconds, c.LowBufferSeconds)
	}
	return nil
}

// Direction classifies a recommendation.
type Direction string

const (
	Down Direction = "down"
	Up   Direction = "up"
	Hold Direction = "hold"
)

// Controller is stateless; the caller supplies the current quality every time.
type Controller struct {
	cfg Config
}

// New builds a controller from a validated config.
func New(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{cfg: cfg}, nil
}

// Recommend returns the next rung when buffer health calls for a change.
// ok is false when the buffer is adequate, the ladder end is reached, or
// current is not a known quality.
func (c *Controller) Recommend(bufferHealthSeconds float64, current model.Quality) (model.Quality, bool) {
	switch c.Classify(bufferHealthSeconds) {
	case Down:
		return current.Step(-1)
	case Up:
		return current.Step(1)
	default:
		return "", false
	}
}

// Classify reports which way the buffer signal points.
func (c *Controller) Classify(bufferHealthSeconds float64) Direction {
	switch {
	case bufferHealthSeconds < c.cfg.LowBufferSeconds:
		return Down
	case bufferHealthSeconds > c.cfg.HighBufferSeconds:
		return Up
	default:
		return Hold
	}
}
