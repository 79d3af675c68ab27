// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store_test

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vodsession/internal/domain/session/model"
	"github.com/ManuGH/vodsession/internal/domain/session/store"
	"github.com/ManuGH/vodsession/internal/domain/session/store/storetest"
)

func backends(t *testing.T) map[string]store.Store {
	redisStore, _ := storetest.NewRedis(t)
	return map[string]store.Store{
		"redis":  redisStore,
		"badger": storetest.NewBadger(t),
	}
}

func TestStoreContract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, store.ErrNotFound)

			require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Hour))
			got, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), got)

			require.NoError(t, s.Delete(ctx, "k"))
			_, err = s.Get(ctx, "k")
			assert.ErrorIs(t, err, store.ErrNotFound)

			n, err := s.Incr(ctx, "c", time.Hour)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
			n, err = s.Incr(ctx, "c", time.Hour)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			require.NoError(t, s.AddToSet(ctx, "set", "a", 0))
			require.NoError(t, s.AddToSet(ctx, "set", "b", time.Hour))
			require.NoError(t, s.AddToSet(ctx, "set", "a", 0))
			members, err := s.SetMembers(ctx, "set")
			require.NoError(t, err)
			sort.Strings(members)
			assert.Equal(t, []string{"a", "b"}, members)

			require.NoError(t, s.RemoveFromSet(ctx, "set", "a"))
			members, err = s.SetMembers(ctx, "set")
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, members)

			require.NoError(t, s.Delete(ctx, "set"))
			members, err = s.SetMembers(ctx, "set")
			require.NoError(t, err)
			assert.Empty(t, members)

			assert.NoError(t, s.Ping(ctx))
		})
	}
}

func TestStoreContract_LargeSet(t *testing.T) {
	const size = 3000
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < size; i++ {
				require.NoError(t, s.AddToSet(ctx, "big", fmt.Sprintf("m%05d", i), time.Hour))
			}
			members, err := s.SetMembers(ctx, "big")
			require.NoError(t, err)
			assert.Len(t, members, size)

			require.NoError(t, s.Delete(ctx, "big"))
			members, err = s.SetMembers(ctx, "big")
			require.NoError(t, err)
			assert.Empty(t, members)
		})
	}
}

func TestBadgerStore_SetTTLRefreshesWholeSet(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on badger second-granularity expiry")
	}
	s := storetest.NewBadger(t)
	ctx := context.Background()

	require.NoError(t, s.AddToSet(ctx, "set", "a", 4*time.Second))
	time.Sleep(2500 * time.Millisecond)
	require.NoError(t, s.AddToSet(ctx, "set", "b", 4*time.Second))
	time.Sleep(2500 * time.Millisecond)

	// "a" is older than the ttl but the second add refreshed the set.
	members, err := s.SetMembers(ctx, "set")
	require.NoError(t, err)
	sort.Strings(members)
	assert.Equal(t, []string{"a", "b"}, members)

	time.Sleep(2500 * time.Millisecond)
	members, err = s.SetMembers(ctx, "set")
	require.NoError(t, err)
	assert.Empty(t, members)

	// A set recreated after expiry does not resurrect old members.
	require.NoError(t, s.AddToSet(ctx, "set", "c", time.Hour))
	members, err = s.SetMembers(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, members)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	s, mr := storetest.NewRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ttl-key", []byte("x"), 100*time.Millisecond))
	require.NoError(t, s.Set(ctx, "forever", []byte("y"), 0))

	mr.FastForward(200 * time.Millisecond)

	_, err := s.Get(ctx, "ttl-key")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestRedisStore_CounterTTLRefreshes(t *testing.T) {
	s, mr := storetest.NewRedis(t)
	ctx := context.Background()

	_, err := s.Incr(ctx, "counter", time.Minute)
	require.NoError(t, err)
	mr.FastForward(45 * time.Second)
	_, err = s.Incr(ctx, "counter", time.Minute)
	require.NoError(t, err)
	mr.FastForward(45 * time.Second)

	assert.True(t, mr.Exists("counter"), "second incr must refresh the rolling window")
	assert.Equal(t, time.Minute-45*time.Second, mr.TTL("counter"))
}

func TestRedisStore_GetAfterServerClosed(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	s := store.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), zerolog.Nop())
	defer s.Close()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := s.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}

func TestRecords_SessionRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			recs := store.Records{KV: s}

			sess := &model.Session{
				SessionID: "sess_1",
				UserID:    "u1",
				VideoID:   "v1",
				Quality:   model.Quality720p,
				Events:    model.EventLog{{Type: model.EventPlay, Position: 3}},
			}
			require.NoError(t, recs.PutSession(ctx, sess, time.Hour))

			got, err := recs.GetSession(ctx, "sess_1")
			require.NoError(t, err)
			assert.Equal(t, "u1", got.UserID)
			assert.Equal(t, model.Quality720p, got.Quality)
			require.Len(t, got.Events, 1)

			require.NoError(t, recs.DeleteSession(ctx, "sess_1"))
			_, err = recs.GetSession(ctx, "sess_1")
			assert.True(t, store.IsNotFound(err))
		})
	}
}

func TestRecords_WatchHistory(t *testing.T) {
	s, mr := storetest.NewRedis(t)
	ctx := context.Background()
	recs := store.Records{KV: s}

	rec := model.WatchHistoryRecord{SessionID: "sess_1", UserID: "u1", VideoID: "v1", WatchTime: 12}
	require.NoError(t, recs.PutWatchHistory(ctx, rec))
	require.NoError(t, recs.IndexWatchHistory(ctx, "u1", "sess_1"))

	mr.FastForward(365 * 24 * time.Hour)

	got, err := recs.GetWatchHistory(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, float64(12), got.WatchTime)

	ids, err := recs.UserWatchHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sess_1"}, ids)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := store.Open(context.Background(), store.Options{Backend: "etcd"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestOpen_BadgerInMemory(t *testing.T) {
	s, err := store.Open(context.Background(), store.Options{Backend: store.BackendBadger}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Ping(context.Background()))
}
