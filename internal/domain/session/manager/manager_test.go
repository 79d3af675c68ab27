// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vodsession/internal/domain/session/abr"
	"github.com/ManuGH/vodsession/internal/domain/session/model"
	"github.com/ManuGH/vodsession/internal/domain/session/ports"
	"github.com/ManuGH/vodsession/internal/domain/session/store"
	"github.com/ManuGH/vodsession/internal/domain/session/store/storetest"
	"github.com/ManuGH/vodsession/internal/domain/session/token"
)

var baseTime = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type manifests map[string]*model.Manifest

func (m manifests) GetManifest(_ context.Context, videoID string) (*model.Manifest, error) {
	mf, ok := m[videoID]
	if !ok {
		return nil, ports.ErrManifestNotFound
	}
	return mf, nil
}

type analyticsRecorder struct {
	mu  sync.Mutex
	got []ports.AnalyticsEvent
}

func (r *analyticsRecorder) Track(e ports.AnalyticsEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
}

func (r *analyticsRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.got))
	for _, e := range r.got {
		out = append(out, e.Type)
	}
	return out
}

type signalRecorder struct {
	mu  sync.Mutex
	got []ports.Signal
}

func (r *signalRecorder) Emit(_ context.Context, s ports.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
}

func (r *signalRecorder) all() []ports.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.Signal(nil), r.got...)
}

var errStoreDown = errors.New("store down")

// flakyStore fails every call while down, and calls on keys with failPrefix always.
type flakyStore struct {
	store.Store
	down       atomic.Bool
	failPrefix string
}

func (f *flakyStore) check(key string) error {
	if f.down.Load() || (f.failPrefix != "" && strings.HasPrefix(key, f.failPrefix)) {
		return errStoreDown
	}
	return nil
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := f.check(key); err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := f.check(key); err != nil {
		return err
	}
	return f.Store.Set(ctx, key, value, ttl)
}

func (f *flakyStore) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if err := f.check(k); err != nil {
			return err
		}
	}
	return f.Store.Delete(ctx, keys...)
}

func (f *flakyStore) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	if err := f.check(key); err != nil {
		return err
	}
	return f.Store.AddToSet(ctx, key, member, ttl)
}

func (f *flakyStore) RemoveFromSet(ctx context.Context, key, member string) error {
	if err := f.check(key); err != nil {
		return err
	}
	return f.Store.RemoveFromSet(ctx, key, member)
}

func (f *flakyStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	if err := f.check(key); err != nil {
		return nil, err
	}
	return f.Store.SetMembers(ctx, key)
}

// stallingStore blocks SetMembers on keys with prefix until the caller gives up.
type stallingStore struct {
	store.Store
	prefix string
}

func (s *stallingStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	if strings.HasPrefix(key, s.prefix) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Store.SetMembers(ctx, key)
}

type harness struct {
	m         *Manager
	kv        store.Store
	mr        *miniredis.Miniredis
	clock     *fakeClock
	analytics *analyticsRecorder
	signals   *signalRecorder
}

func newHarness(t *testing.T, mutate ...func(*Config, *Deps)) *harness {
	t.Helper()

	kv, mr := storetest.NewRedis(t)
	clock := &fakeClock{now: baseTime}
	issuer, err := token.NewIssuer("test-secret")
	require.NoError(t, err)
	ctrl, err := abr.New(abr.DefaultConfig())
	require.NoError(t, err)

	h := &harness{kv: kv, mr: mr, clock: clock, analytics: &analyticsRecorder{}, signals: &signalRecorder{}}
	cfg := DefaultConfig()
	deps := Deps{
		Store: kv,
		Manifests: manifests{
			"v1":      {VideoID: "v1", Format: "hls", Duration: 1800},
			"no-dur":  {VideoID: "no-dur", Format: "hls"},
			"premium": {VideoID: "premium", Format: "hls", Duration: 600},
			"limited": {VideoID: "limited", Format: "hls", Duration: 600, Qualities: []model.QualityVariant{
				{Quality: model.Quality480p, Bandwidth: 1_400_000, URL: "480p.m3u8"},
				{Quality: model.Quality720p, Bandwidth: 2_800_000, URL: "720p.m3u8"},
			}},
		},
		Tokens:    issuer.WithClock(clock.Now),
		ABR:       ctrl,
		Analytics: h.analytics,
		Security:  h.signals,
		Now:       clock.Now,
	}
	for _, fn := range mutate {
		fn(&cfg, &deps)
	}
	h.m, err = New(cfg, deps)
	require.NoError(t, err)
	return h
}

func (h *harness) create(t *testing.T, videoID, userID string) *model.Session {
	t.Helper()
	s, err := h.m.CreateSession(context.Background(), CreateRequest{VideoID: videoID, UserID: userID})
	require.NoError(t, err)
	return s
}

func ptr[T any](v T) *T { return &v }

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cases := map[string]func(*Config){
		"timeout not below ttl": func(c *Config) { c.SessionTimeout = c.MaxSessionDuration },
		"idle not below ttl":    func(c *Config) { c.IdleTimeout = 25 * time.Hour },
		"zero token expiry":     func(c *Config) { c.TokenExpiry = 0 },
		"zero store timeout":    func(c *Config) { c.StoreTimeout = 0 },
		"off-ladder quality":    func(c *Config) { c.DefaultQuality = "4k" },
		"opacity out of range":  func(c *Config) { c.Policy.Watermark.Opacity = 1.5 },
		"negative tolerance":    func(c *Config) { c.CompletionTolerance = -1 },
		"zero session duration": func(c *Config) { c.MaxSessionDuration = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	require.Error(t, err)
}

func TestCreateSession_Defaults(t *testing.T) {
	h := newHarness(t)
	s, err := h.m.CreateSession(context.Background(), CreateRequest{
		VideoID:    "v1",
		UserID:     "u1",
		CourseID:   "c1",
		DeviceInfo: model.DeviceInfo{"type": "desktop"},
	})
	require.NoError(t, err)

	assert.Regexp(t, `^sess_[0-9a-z]+_[0-9a-f]{32}$`, s.SessionID)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "c1", s.CourseID)
	assert.Equal(t, baseTime, s.StartTime)
	assert.Equal(t, baseTime, s.LastActivity)
	assert.Equal(t, model.Quality720p, s.Quality)
	assert.Equal(t, 1.0, s.PlaybackSpeed)
	assert.Equal(t, 1.0, s.Volume)
	assert.Zero(t, s.CurrentPosition)
	assert.False(t, s.IsFullscreen)
	assert.Empty(t, s.Events)
	assert.Equal(t, model.Restrictions{DownloadDisabled: true, MaxConcurrentSessions: 3}, s.Restrictions)
	require.NotNil(t, s.Watermark)
	assert.Contains(t, s.Watermark.Text, "u1")
	assert.Contains(t, s.Watermark.Text, "vodsession")

	claims, err := token.Decode(s.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, s.SessionID, claims.SessionID)
	assert.Equal(t, baseTime.Add(24*time.Hour), claims.Expiry().UTC())

	assert.Equal(t, 24*time.Hour, h.mr.TTL(store.SessionKey(s.SessionID)))
	stored, err := h.m.GetSession(context.Background(), s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, s.SessionID, stored.SessionID)

	assert.Equal(t, []string{ports.AnalyticsSessionCreated}, h.analytics.types())
	assert.Empty(t, h.signals.all())
}

func TestCreateSession_TokensAreNeverShared(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, "v1", "u1")
	b := h.create(t, "v1", "u2")
	assert.NotEqual(t, a.AccessToken, b.AccessToken)
}

func TestCreateSession_WatermarkDisabled(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *Deps) { c.Policy.Watermark.Enabled = false })
	assert.Nil(t, h.create(t, "v1", "u1").Watermark)
}

func TestCreateSession_UnknownVideo(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.CreateSession(context.Background(), CreateRequest{VideoID: "missing", UserID: "u1"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateSession_RequiresIDs(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.CreateSession(context.Background(), CreateRequest{VideoID: "v1"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateSession_Entitlement(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) {
		d.Entitlement = ports.EntitlementFunc(func(_ context.Context, _, videoID, _ string) (bool, error) {
			switch videoID {
			case "premium":
				return false, nil
			case "no-dur":
				return false, errors.New("catalog down")
			}
			return true, nil
		})
	})

	_, err := h.m.CreateSession(context.Background(), CreateRequest{VideoID: "premium", UserID: "u1"})
	require.ErrorIs(t, err, ErrAccessDenied)

	_, err = h.m.CreateSession(context.Background(), CreateRequest{VideoID: "no-dur", UserID: "u1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAccessDenied)

	h.create(t, "v1", "u1")
}

func TestCreateSession_UniqueIDsUnderConcurrency(t *testing.T) {
	h := newHarness(t)
	const n = 20

	ids := make(chan string, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := h.m.CreateSession(context.Background(), CreateRequest{VideoID: "v1", UserID: "u1"})
			if assert.NoError(t, err) {
				ids <- s.SessionID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate session id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestCreateSession_EvictsLeastRecentlyActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var sessions []*model.Session
	for range 3 {
		sessions = append(sessions, h.create(t, "v1", "u1"))
		h.clock.Advance(time.Second)
	}
	// Touch the first session so the second becomes the least recently active.
	require.NoError(t, h.m.UpdateSession(ctx, sessions[0].SessionID, Update{IsFullscreen: ptr(true)}))
	h.clock.Advance(time.Second)

	fourth := h.create(t, "v1", "u1")

	open, err := h.m.Limiter().Open(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, open, 3)
	var openIDs []string
	for _, s := range open {
		openIDs = append(openIDs, s.SessionID)
	}
	assert.ElementsMatch(t, []string{sessions[0].SessionID, sessions[2].SessionID, fourth.SessionID}, openIDs)

	_, err = h.m.GetSession(ctx, sessions[1].SessionID)
	require.ErrorIs(t, err, ErrNotFound)

	history, err := h.m.WatchHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, sessions[1].SessionID, history[0].SessionID)

	signals := h.signals.all()
	require.Len(t, signals, 1)
	assert.Equal(t, ports.SignalSessionLimitEnforced, signals[0].Kind)
	assert.Equal(t, "u1", signals[0].UserID)
}

func TestCreateSession_StalledLimitCheckIsBounded(t *testing.T) {
	h := newHarness(t, func(c *Config, d *Deps) {
		c.StoreTimeout = 50 * time.Millisecond
		d.Store = &stallingStore{Store: d.Store, prefix: "userSessions:"}
	})

	start := time.Now()
	s, err := h.m.CreateSession(context.Background(), CreateRequest{VideoID: "v1", UserID: "u1"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, h.mr.Exists(store.SessionKey(s.SessionID)))
}

func TestCreateSession_LimitIsPerUser(t *testing.T) {
	h := newHarness(t)
	for range 3 {
		h.create(t, "v1", "u1")
	}
	h.create(t, "v1", "u2")
	assert.Empty(t, h.signals.all())
}

func TestUpdateSession_CompletionPercentage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.create(t, "v1", "u1")

	for _, tc := range []struct {
		position float64
		want     int
	}{
		{900, 50},
		{1800, 100},
		{0, 0},
		{2400, 100},
	} {
		require.NoError(t, h.m.UpdateSession(ctx, s.SessionID, Update{CurrentPosition: ptr(tc.position)}))
		got, err := h.m.GetSession(ctx, s.SessionID)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.CompletionPercentage, "position %v", tc.position)
	}
}

func TestUpdateSession_UnknownDurationKeepsCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.create(t, "no-dur", "u1")

	require.NoError(t, h.m.UpdateSession(ctx, s.SessionID, Update{CurrentPosition: ptr(300.0)}))
	got, err := h.m.GetSession(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, got.CurrentPosition)
	assert.Zero(t, got.CompletionPercentage)
}

func TestUpdateSession_AppliesOnlyProvidedFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.create(t, "v1", "u1")
	h.clock.Advance(time.Minute)
	h.mr.FastForward(time.Hour)

	require.NoError(t, h.m.UpdateSession(ctx, s.SessionID, Update{
		Quality:       ptr(model.Quality1080p),
		PlaybackSpeed: ptr(1.5),
	}))
	got, err := h.m.GetSession(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.Quality1080p, got.Quality)
	assert.Equal(t, 1.5, got.PlaybackSpeed)
	assert.Equal(t, 1.0, got.Volume)
	assert.Zero(t, got.CurrentPosition)
	assert.Equal(t, baseTime.Add(time.Minute), got.LastActivity)
	assert.Equal(t, 24*time.Hour, h.mr.TTL(store.SessionKey(s.SessionID)), "ttl refreshed")
}

func TestUpdateSession_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.create(t, "v1", "u1")

	require.ErrorIs(t, h.m.UpdateSession(ctx, "sess_missing", Update{Volume: ptr(0.5)}), ErrNotFound)

	for name, u := range map[string]Update{
		"quality":  {Quality: ptr(model.Quality("4k"))},
		"speed":    {PlaybackSpeed: ptr(3.0)},
		"volume":   {Volume: ptr(-0.1)},
		"position": {CurrentPosition: ptr(-1.0)},
	} {
		assert.ErrorIs(t, h.m.UpdateSession(ctx, s.SessionID, u), ErrInvalidArgument, name)
	}
}

func TestUpdateSession_ExpiredRecordIsNotFound(t *testing.T) {
	h := newHarness(t)
	s := h.create(t, "v1", "u1")
	h.mr.FastForward(24*time.Hour + time.Second)

	err := h.m.UpdateSession(context.Background(), s.SessionID, Update{Volume: ptr(0.5)})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestProcessHeartbeat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.create(t, "v1", "u1")

	h.clock.Advance(10 * time.Second)
	res, err := h.m.ProcessHeartbeat(ctx, s.SessionID, Heartbeat{Position: 10, BufferHealth: 10, CurrentQuality: model.Quality720p})
	require.NoError(t, err)
	assert.Equal(t, HeartbeatResult{Status: StatusOK}, res)

	h.clock.Advance(15 * time.Second)
	res, err = h.m.ProcessHeartbeat(ctx, s.SessionID, Heartbeat{Position: 25, BufferHealth: 3, CurrentQuality: model.Quality720p})
	require.NoError(t, err)
	assert.Equal(t, HeartbeatResult{Status: StatusOK, RecommendedQuality: model.Quality480p}, res)

	h.clock.Advance(5 * time.Second)
	res, err = h.m.ProcessHeartbeat(ctx, s.SessionID, Heartbeat{Position: 30, BufferHealth: 20, CurrentQuality: model.Quality720p})
	require.NoError(t, err)
	assert.Equal(t, model.Quality1080p, res.RecommendedQuality)

	got, err := h.m.GetSession(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, got.WatchTime)
	assert.Equal(t, 30.0, got.CurrentPosition)
	assert.Equal(t, 2, got.CompletionPercentage)
	assert.Equal(t, baseTime.Add(30*time.Second), got.LastActivity)
}

func TestProcessHeartbeat_FloorHasNoRecommendation(t *testing.T) {
	h := newHarness(t)
	s := h.create(t, "v1", "u1")

	res, err := h.m.ProcessHeartbeat(context.Background(), s.SessionID, Heartbeat{BufferHealth: 3, CurrentQuality: model.Quality240p})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.RecommendedQuality)
}

func TestProcessHeartbeat_OnlyRecommendsPackagedQualities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.create(t, "limited", "u1")

	res, err := h.m.ProcessHeartbeat(ctx, s.SessionID, Heartbeat{BufferHealth: 20, CurrentQuality: model.Quality720p})
	require.NoError(t, err)
	assert.Empty(t, res.RecommendedQuality)

	res, err = h.m.ProcessHeartbeat(ctx, s.SessionID, Heartbeat{BufferHealth: 2, CurrentQuality: model.Quality720p})
	require.NoError(t, err)
	assert.Equal(t, model.Quality480p, res.RecommendedQuality)
}

func TestProcessHeartbeat_UnknownSessionIsInvalid(t *testing.T) {
	h := newHarness(t)
	res, err := h.m.ProcessHeartbeat(context.Background(), "nonexistent", Heartbeat{Position: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, res.Status)
}

func TestProcessHeartbeat_ExpiredBySessionTimeout(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *Deps) { c.IdleTimeout = 0 })
	s := h.create(t, "v1", "u1")

	h.clock.Advance(4*time.Hour + time.Second)
	res, err := h.m.ProcessHeartbeat(context.Background(), s.SessionID, Heartbeat{Position: 1, BufferHealth: 10})
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, res.Status)

	// Left in place for TTL cleanup.
	assert.True(t, h.mr.Exists(store.SessionKey(s.SessionID)))
}

func TestProcessHeartbeat_ExpiredByIdleTimeout(t *testing.T) {
	h := newHarness(t)
	s := h.create(t, "v1", "u1")

	h.clock.Advance(31 * time.Minute)
	res, err := h.m.ProcessHeartbeat(context.Background(), s.SessionID, Heartbeat{BufferHealth: 10})
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, res.Status)
}

func TestTrackEvent_BoundedLog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.create(t, "v1", "u1")

	for i := range model.EventLogCapacity + 1 {
		res := h.m.TrackEvent(ctx, s.SessionID, EventInput{Type: model.EventSeek, Position: float64(i)})
		require.True(t, res.Recorded)
	}

	got, err := h.m.GetSession(ctx, s.SessionID)
	require.NoError(t, err)
	require.Len(t, got.Events, model.EventLogCapacity)
	for i, e := range got.Events {
		assert.Equal(t, float64(i+1), e.Position)
	}
}

func TestTrackEvent_Completion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.create(t, "v1", "u1")

	assert.True(t, h.m.TrackEvent(ctx, s.SessionID, EventInput{Type: model.EventEnded, Position: 1800}).VideoCompleted)
	assert.True(t, h.m.TrackEvent(ctx, s.SessionID, EventInput{Type: model.EventEnded, Position: 1796}).VideoCompleted)
	assert.False(t, h.m.TrackEvent(ctx, s.SessionID, EventInput{Type: model.EventEnded, Position: 100}).VideoCompleted)
	assert.False(t, h.m.TrackEvent(ctx, s.SessionID, EventInput{Type: model.EventPause, Position: 1800}).VideoCompleted)
	assert.True(t, h.m.TrackEvent(ctx, s.SessionID, EventInput{
		Type:     model.EventEnded,
		Position: 100,
		Metadata: map[string]string{MetadataCompleted: "true"},
	}).VideoCompleted)
}

func TestTrackEvent_UnknownSessionIsNoop(t *testing.T) {
	h := newHarness(t)
	res := h.m.TrackEvent(context.Background(), "sess_missing", EventInput{Type: model.EventPlay})
	assert.Equal(t, TrackResult{}, res)
	assert.Empty(t, h.analytics.types())
}

func TestTrackEvent_ForwardsToAnalytics(t *testing.T) {
	h := newHarness(t)
	s := h.create(t, "v1", "u1")
	h.m.TrackEvent(context.Background(), s.SessionID, EventInput{Type: model.EventPlay, Position: 12})
	assert.Equal(t, []string{ports.AnalyticsSessionCreated, model.EventPlay}, h.analytics.types())
}

func TestEndSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.create(t, "v1", "u1")
	require.NoError(t, h.m.UpdateSession(ctx, s.SessionID, Update{CurrentPosition: ptr(450.0)}))
	h.clock.Advance(time.Minute)

	require.NoError(t, h.m.EndSession(ctx, s.SessionID))

	_, err := h.m.GetSession(ctx, s.SessionID)
	require.ErrorIs(t, err, ErrNotFound)

	rec, err := store.Records{KV: h.kv}.GetWatchHistory(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 25, rec.CompletionPercentage)
	assert.Equal(t, baseTime.Add(time.Minute), rec.EndedAt)
	assert.Zero(t, h.mr.TTL(store.WatchHistoryKey(s.SessionID)), "history has no ttl")

	members, err := h.mr.SMembers(store.UserWatchHistoryKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{s.SessionID}, members)

	open, err := h.m.Limiter().Open(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, open)

	types := h.analytics.types()
	assert.Equal(t, ports.AnalyticsSessionEnded, types[len(types)-1])
}

func TestEndSession_UnknownIsNoop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.EndSession(context.Background(), "sess_missing"))
}

func TestWatchHistory_NewestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var ids []string
	for range 3 {
		s := h.create(t, "v1", "u1")
		h.clock.Advance(time.Minute)
		require.NoError(t, h.m.EndSession(ctx, s.SessionID))
		ids = append(ids, s.SessionID)
	}

	history, err := h.m.WatchHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{history[0].SessionID, history[1].SessionID, history[2].SessionID})

	empty, err := h.m.WatchHistory(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStoreOutage(t *testing.T) {
	var flaky *flakyStore
	h := newHarness(t, func(_ *Config, d *Deps) {
		flaky = &flakyStore{Store: d.Store}
		d.Store = flaky
	})
	ctx := context.Background()
	s := h.create(t, "v1", "u1")
	flaky.down.Store(true)

	_, err := h.m.CreateSession(ctx, CreateRequest{VideoID: "v1", UserID: "u2"})
	require.ErrorIs(t, err, errStoreDown)

	_, err = h.m.ProcessHeartbeat(ctx, s.SessionID, Heartbeat{BufferHealth: 10})
	require.ErrorIs(t, err, errStoreDown)

	require.ErrorIs(t, h.m.UpdateSession(ctx, s.SessionID, Update{Volume: ptr(0.5)}), errStoreDown)
	assert.Equal(t, TrackResult{}, h.m.TrackEvent(ctx, s.SessionID, EventInput{Type: model.EventPlay}))
	require.ErrorIs(t, h.m.EndSession(ctx, s.SessionID), errStoreDown)

	flaky.down.Store(false)
	_, err = h.m.GetSession(ctx, s.SessionID)
	require.NoError(t, err)
}

func TestEndSession_StepFailuresDoNotAbortTeardown(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) {
		d.Store = &flakyStore{Store: d.Store, failPrefix: "watchHistory:"}
	})
	ctx := context.Background()
	s := h.create(t, "v1", "u1")

	require.NoError(t, h.m.EndSession(ctx, s.SessionID))

	assert.False(t, h.mr.Exists(store.SessionKey(s.SessionID)), "live record removed")
	assert.False(t, h.mr.Exists(store.WatchHistoryKey(s.SessionID)), "history write failed")
	members, err := h.mr.SMembers(store.UserWatchHistoryKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{s.SessionID}, members)
}

func TestEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.m.CreateSession(ctx, CreateRequest{VideoID: "v1", UserID: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, s.SessionID)
	require.NotEmpty(t, s.AccessToken)
	require.Equal(t, 3, s.Restrictions.MaxConcurrentSessions)

	h.clock.Advance(5 * time.Second)
	require.NoError(t, h.m.UpdateSession(ctx, s.SessionID, Update{CurrentPosition: ptr(300.0)}))

	h.clock.Advance(5 * time.Second)
	res, err := h.m.ProcessHeartbeat(ctx, s.SessionID, Heartbeat{Position: 300, BufferHealth: 15, CurrentQuality: model.Quality720p})
	require.NoError(t, err)
	assert.Equal(t, HeartbeatResult{Status: StatusOK}, res)

	tr := h.m.TrackEvent(ctx, s.SessionID, EventInput{Type: model.EventEnded, Position: 1800})
	assert.True(t, tr.VideoCompleted)

	require.NoError(t, h.m.EndSession(ctx, s.SessionID))

	_, err = h.m.GetSession(ctx, s.SessionID)
	require.ErrorIs(t, err, ErrNotFound)
	rec, err := store.Records{KV: h.kv}.GetWatchHistory(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, s.SessionID, rec.SessionID)
	assert.Equal(t, 1, rec.EventCount)
	assert.Equal(t, ports.AnalyticsSessionCreated, h.analytics.types()[0])
}
