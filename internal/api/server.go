// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is the HTTP shell over the session core. Authentication is done
// upstream; the caller's identity arrives in trusted headers.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/vodsession/internal/analytics"
	"github.com/ManuGH/vodsession/internal/api/middleware"
	"github.com/ManuGH/vodsession/internal/domain/session/manager"
	"github.com/ManuGH/vodsession/internal/domain/session/model"
	"github.com/ManuGH/vodsession/internal/domain/session/ports"
	"github.com/ManuGH/vodsession/internal/domain/session/token"
)

// Sessions is the lifecycle surface the shell drives.
type Sessions interface {
	CreateSession(ctx context.Context, req manager.CreateRequest) (*model.Session, error)
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	UpdateSession(ctx context.Context, sessionID string, u manager.Update) error
	ProcessHeartbeat(ctx context.Context, sessionID string, hb manager.Heartbeat) (manager.HeartbeatResult, error)
	TrackEvent(ctx context.Context, sessionID string, in manager.EventInput) manager.TrackResult
	EndSession(ctx context.Context, sessionID string) error
	WatchHistory(ctx context.Context, userID string) ([]model.WatchHistoryRecord, error)
}

// Reports serves analytics rollups.
type Reports interface {
	GetVideoAnalytics(ctx context.Context, videoID string, rangeDays int) (*analytics.VideoAnalytics, error)
}

// TokenVerifier checks access tokens for the delivery layer.
type TokenVerifier interface {
	Verify(tok string) (token.Claims, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config tunes the shell.
type Config struct {
	RateLimitPerMinute int    // per user; 0 disables
	TracingService     string // empty disables tracing
	DefaultReportDays  int
}

// Deps are the collaborators of the shell. Security may be nil.
type Deps struct {
	Sessions Sessions
	Reports  Reports
	Tokens   TokenVerifier
	Health   Pinger
	Security ports.SecuritySink
}

// Server routes HTTP requests to the session core.
type Server struct {
	cfg  Config
	deps Deps
}

// New validates deps and returns a server.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Sessions == nil || deps.Reports == nil || deps.Tokens == nil || deps.Health == nil {
		return nil, errors.New("api: sessions, reports, tokens and health are required")
	}
	if cfg.DefaultReportDays <= 0 {
		cfg.DefaultReportDays = 7
	}
	return &Server{cfg: cfg, deps: deps}, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity)
		r.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestLimit: s.cfg.RateLimitPerMinute,
			WindowSize:   time.Minute,
		}))

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Patch("/", s.handleUpdateSession)
			r.Delete("/", s.handleEndSession)
			r.Post("/heartbeat", s.handleHeartbeat)
			r.Post("/events", s.handleTrackEvent)
		})
		r.Get("/me/history", s.handleHistory)
		r.Post("/tokens/verify", s.handleVerifyToken)

		r.With(middleware.RequireRole(middleware.RoleAdmin, middleware.RoleInstructor)).
			Get("/videos/{videoID}/analytics", s.handleVideoAnalytics)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if err := s.deps.Health.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "unavailable", "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) signal(ctx context.Context, sig ports.Signal) {
	if s.deps.Security != nil {
		s.deps.Security.Emit(ctx, sig)
	}
}
