// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package manager owns the playback session lifecycle: create, update,
// heartbeat, event tracking and termination.
//
// The store is the only shared state. Operations read, modify and write the
// session record without in-process locks, so concurrent writers to the same
// session resolve last-writer-wins.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/vodsession/internal/domain/session/limiter"
	"github.com/ManuGH/vodsession/internal/domain/session/model"
	"github.com/ManuGH/vodsession/internal/domain/session/ports"
	"github.com/ManuGH/vodsession/internal/domain/session/store"
	"github.com/ManuGH/vodsession/internal/log"
	"github.com/ManuGH/vodsession/internal/telemetry"
)

var tracer = otel.Tracer("github.com/ManuGH/vodsession/internal/domain/session/manager")

// TokenIssuer mints the access token bound to a new session.
type TokenIssuer interface {
	Issue(sessionID string, ttl time.Duration) (string, error)
}

// BitrateAdvisor recommends quality changes from buffer health.
type BitrateAdvisor interface {
	Recommend(bufferHealthSeconds float64, current model.Quality) (model.Quality, bool)
}

// WatermarkPolicy controls the viewer overlay.
type WatermarkPolicy struct {
	Enabled     bool
	PlatformTag string
	Position    string
	Opacity     float64
}

// Policy derives restrictions and watermark at creation.
type Policy struct {
	DisableDownload bool
	DisableSeeking  bool
	Watermark       WatermarkPolicy
}

// Config holds lifecycle timing and policy.
type Config struct {
	MaxSessionDuration  time.Duration // hard TTL of session records in the store
	SessionTimeout      time.Duration // soft cap measured from StartTime
	IdleTimeout         time.Duration // soft cap measured from LastActivity; 0 disables
	TokenExpiry         time.Duration
	StoreTimeout        time.Duration // bound for each store call
	CompletionTolerance float64       // seconds before the end that still count as completed
	DefaultQuality      model.Quality
	MaxConcurrent       int
	Policy              Policy
}

// DefaultConfig returns the stock lifecycle configuration.
func DefaultConfig() Config {
	return Config{
		MaxSessionDuration:  24 * time.Hour,
		SessionTimeout:      4 * time.Hour,
		IdleTimeout:         30 * time.Minute,
		TokenExpiry:         24 * time.Hour,
		StoreTimeout:        2 * time.Second,
		CompletionTolerance: 5,
		DefaultQuality:      model.Quality720p,
		MaxConcurrent:       limiter.DefaultMaxConcurrent,
		Policy: Policy{
			DisableDownload: true,
			Watermark: WatermarkPolicy{
				Enabled:     true,
				PlatformTag: "vodsession",
				Position:    "bottom-right",
				Opacity:     0.3,
			},
		},
	}
}

// Validate enforces that the soft expiry checks fire before the store TTL.
func (c Config) Validate() error {
	if c.MaxSessionDuration <= 0 {
		return fmt.Errorf("max session duration must be > 0, got %v", c.MaxSessionDuration)
	}
	if c.SessionTimeout <= 0 || c.SessionTimeout >= c.MaxSessionDuration {
		return fmt.Errorf("session timeout (%v) must be > 0 and below max session duration (%v)", c.SessionTimeout, c.MaxSessionDuration)
	}
	if c.IdleTimeout < 0 || c.IdleTimeout >= c.MaxSessionDuration {
		return fmt.Errorf("idle timeout (%v) must be >= 0 and below max session duration (%v)", c.IdleTimeout, c.MaxSessionDuration)
	}
	if c.TokenExpiry <= 0 {
		return fmt.Errorf("token expiry must be > 0, got %v", c.TokenExpiry)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be > 0, got %v", c.StoreTimeout)
	}
	if c.CompletionTolerance < 0 {
		return fmt.Errorf("completion tolerance must be >= 0, got %v", c.CompletionTolerance)
	}
	if !c.DefaultQuality.Valid() {
		return fmt.Errorf("default quality %q is not on the ladder", c.DefaultQuality)
	}
	if o := c.Policy.Watermark.Opacity; o < 0 || o > 1 {
		return fmt.Errorf("watermark opacity must be within [0,1], got %v", o)
	}
	return nil
}

// Deps are the collaborators of the manager. Entitlement, Analytics, Security
// and Now are optional.
type Deps struct {
	Store       store.Store
	Manifests   ports.ManifestSource
	Tokens      TokenIssuer
	ABR         BitrateAdvisor
	Entitlement ports.Entitlement
	Analytics   ports.AnalyticsSink
	Security    ports.SecuritySink
	Now         func() time.Time
}

// Manager implements the session lifecycle.
type Manager struct {
	cfg       Config
	records   store.Records
	manifests ports.ManifestSource
	tokens    TokenIssuer
	abr       BitrateAdvisor
	entitle   ports.Entitlement
	analytics ports.AnalyticsSink
	limiter   *limiter.Limiter
	now       func() time.Time
}

// New wires a manager. It fails fast on missing collaborators or an
// inconsistent configuration.
func New(cfg Config, deps Deps) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Store == nil:
		return nil, errors.New("manager: store is required")
	case deps.Manifests == nil:
		return nil, errors.New("manager: manifest source is required")
	case deps.Tokens == nil:
		return nil, errors.New("manager: token issuer is required")
	case deps.ABR == nil:
		return nil, errors.New("manager: abr controller is required")
	}

	m := &Manager{
		cfg:       cfg,
		records:   store.Records{KV: deps.Store},
		manifests: deps.Manifests,
		tokens:    deps.Tokens,
		abr:       deps.ABR,
		entitle:   deps.Entitlement,
		analytics: deps.Analytics,
		now:       deps.Now,
	}
	if m.now == nil {
		m.now = time.Now
	}

	lim, err := limiter.New(deps.Store, limiter.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		IndexTTL:      cfg.MaxSessionDuration,
	}, limiter.EnderFunc(m.EndSession), deps.Security)
	if err != nil {
		return nil, err
	}
	m.limiter = lim
	return m, nil
}

// Limiter exposes the concurrency limiter, mainly for inspection.
func (m *Manager) Limiter() *limiter.Limiter { return m.limiter }

// CreateRequest carries the inputs of CreateSession.
type CreateRequest struct {
	VideoID    string
	UserID     string
	CourseID   string
	DeviceInfo model.DeviceInfo
}

// CreateSession opens a new playback session. It never refuses because of the
// concurrency cap; instead the user's least recently active sessions are ended.
func (m *Manager) CreateSession(ctx context.Context, req CreateRequest) (*model.Session, error) {
	defer observeOp("create", time.Now())
	ctx, span := tracer.Start(ctx, "session.Create", trace.WithAttributes(
		attribute.String(telemetry.VideoIDKey, req.VideoID),
		attribute.String(telemetry.UserIDKey, req.UserID),
	))
	defer span.End()

	if req.VideoID == "" || req.UserID == "" {
		return nil, fail(span, fmt.Errorf("%w: video id and user id are required", ErrInvalidArgument))
	}
	ctx = log.ContextWithUserID(ctx, req.UserID)
	logger := log.WithComponentFromContext(ctx, "session")

	if _, err := m.manifest(ctx, req.VideoID); err != nil {
		return nil, fail(span, err)
	}

	if m.entitle != nil {
		ok, err := m.entitle.HasAccess(ctx, req.UserID, req.VideoID, req.CourseID)
		if err != nil {
			return nil, fail(span, fmt.Errorf("entitlement check: %w", err))
		}
		if !ok {
			return nil, fail(span, ErrAccessDenied)
		}
	}

	enfCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	evicted, err := m.limiter.Enforce(enfCtx, req.UserID)
	cancel()
	if err != nil {
		logger.Warn().Err(err).Msg("concurrency limit check failed, continuing")
	} else if len(evicted) > 0 {
		span.SetAttributes(attribute.Int(telemetry.SessionEvictedKey, len(evicted)))
	}

	now := m.now()
	id := newSessionID(now)
	tok, err := m.tokens.Issue(id, m.cfg.TokenExpiry)
	if err != nil {
		return nil, fail(span, fmt.Errorf("issue access token: %w", err))
	}

	s := &model.Session{
		SessionID:     id,
		UserID:        req.UserID,
		VideoID:       req.VideoID,
		CourseID:      req.CourseID,
		StartTime:     now,
		DeviceInfo:    req.DeviceInfo,
		LastActivity:  now,
		Quality:       m.cfg.DefaultQuality,
		PlaybackSpeed: 1,
		Volume:        1,
		Events:        model.EventLog{},
		AccessToken:   tok,
		Restrictions: model.Restrictions{
			DownloadDisabled:      m.cfg.Policy.DisableDownload,
			SeekingDisabled:       m.cfg.Policy.DisableSeeking,
			MaxConcurrentSessions: m.limiter.Max(),
		},
		Watermark: m.watermark(req.UserID),
	}
	if err := m.save(ctx, s); err != nil {
		return nil, fail(span, fmt.Errorf("persist session: %w", err))
	}

	regCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	if err := m.limiter.Register(regCtx, req.UserID, id); err != nil {
		logger.Warn().Err(err).Str(log.FieldSessionID, id).Msg("failed to index session for concurrency limiter")
	}
	cancel()

	sessionsCreatedTotal.Inc()
	span.SetAttributes(attribute.String(telemetry.SessionIDKey, id))
	logger.Info().
		Str(log.FieldSessionID, id).
		Str(log.FieldVideoID, req.VideoID).
		Str(log.FieldCourseID, req.CourseID).
		Msg("session created")

	m.track(ports.AnalyticsEvent{
		Type:      ports.AnalyticsSessionCreated,
		SessionID: id,
		UserID:    req.UserID,
		VideoID:   req.VideoID,
		At:        now,
		Data: map[string]any{
			ports.DataDeviceType: req.DeviceInfo["type"],
			ports.DataCourseID:   req.CourseID,
		},
	})
	return s, nil
}

// GetSession returns the live session or ErrNotFound.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	s, err := m.load(ctx, sessionID)
	if store.IsNotFound(err) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}

func (m *Manager) watermark(userID string) *model.Watermark {
	p := m.cfg.Policy.Watermark
	if !p.Enabled {
		return nil
	}
	return &model.Watermark{
		Text:     fmt.Sprintf("%s | %s", p.PlatformTag, userID),
		Position: p.Position,
		Opacity:  p.Opacity,
	}
}

// manifest resolves a video manifest, mapping absence to ErrNotFound.
func (m *Manager) manifest(ctx context.Context, videoID string) (*model.Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	mf, err := m.manifests.GetManifest(ctx, videoID)
	if errors.Is(err, ports.ErrManifestNotFound) {
		return nil, fmt.Errorf("%w: video %s", ErrNotFound, videoID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve manifest %s: %w", videoID, err)
	}
	return mf, nil
}

// lookup returns the manifest or nil when it cannot be resolved.
func (m *Manager) lookup(ctx context.Context, videoID string) *model.Manifest {
	mf, err := m.manifest(ctx, videoID)
	if err != nil {
		logger := log.WithComponentFromContext(ctx, "session")
		logger.Debug().Err(err).
			Str(log.FieldVideoID, videoID).Msg("manifest unavailable")
		return nil
	}
	return mf
}

func (m *Manager) load(ctx context.Context, sessionID string) (*model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	return m.records.GetSession(ctx, sessionID)
}

func (m *Manager) save(ctx context.Context, s *model.Session) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	return m.records.PutSession(ctx, s, m.cfg.MaxSessionDuration)
}

func (m *Manager) track(e ports.AnalyticsEvent) {
	if m.analytics != nil {
		m.analytics.Track(e)
	}
}

// refreshCompletion recomputes completion from the current position. An
// unknown duration leaves the previous value.
func refreshCompletion(s *model.Session, mf *model.Manifest) {
	if !mf.HasDuration() {
		return
	}
	if pct, ok := model.CompletionPercentage(s.CurrentPosition, mf.Duration); ok {
		s.CompletionPercentage = pct
	}
}

// packaged reports whether q can be served. Manifests without a variant list
// accept every ladder quality.
func packaged(mf *model.Manifest, q model.Quality) bool {
	if mf == nil || len(mf.Qualities) == 0 {
		return true
	}
	_, ok := mf.Variant(q)
	return ok
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func sessionLogger(ctx context.Context, sessionID string) zerolog.Logger {
	return log.WithComponentFromContext(log.ContextWithSessionID(ctx, sessionID), "session")
}
