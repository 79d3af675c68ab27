// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClocked(t *testing.T) (*Cache[string], *manualClock) {
	t.Helper()
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New[string]("test", WithClock(clock.Now)), clock
}

func TestCache_GetSet(t *testing.T) {
	c, _ := newClocked(t)

	c.Set("key1", "value1", 5*time.Minute)

	val, ok := c.Get("key1")
	require.True(t, ok)
	assert.Equal(t, "value1", val)

	_, ok = c.Get("nonexistent")
	assert.False(t, ok)
}

func TestCache_Expiration(t *testing.T) {
	c, clock := newClocked(t)
	c.Set("shortlived", "value", time.Minute)

	_, ok := c.Get("shortlived")
	require.True(t, ok)

	clock.Advance(time.Minute + time.Second)
	_, ok = c.Get("shortlived")
	assert.False(t, ok)
}

func TestCache_NonPositiveTTLIsIgnored(t *testing.T) {
	c, _ := newClocked(t)
	c.Set("key", "value", 0)
	_, ok := c.Get("key")
	assert.False(t, ok)
	assert.Zero(t, c.Stats().Sets)
}

func TestCache_DeleteAndClear(t *testing.T) {
	c, _ := newClocked(t)
	c.Set("key1", "value1", time.Minute)
	c.Set("key2", "value2", time.Minute)
	c.Set("key3", "value3", time.Minute)

	c.Delete("key1")
	_, ok := c.Get("key1")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Stats().CurrentSize)

	c.Clear()
	assert.Equal(t, 0, c.Stats().CurrentSize)
}

func TestCache_Stats(t *testing.T) {
	c, _ := newClocked(t)
	c.Set("key1", "value1", time.Minute)
	c.Set("key2", "value2", time.Minute)

	c.Get("key1")        // Hit
	c.Get("key1")        // Hit
	c.Get("nonexistent") // Miss

	assert.Equal(t, Stats{Hits: 2, Misses: 1, Sets: 2, CurrentSize: 2}, c.Stats())
}

func TestCache_DeleteExpired(t *testing.T) {
	c, clock := newClocked(t)
	c.Set("key1", "value1", time.Second)
	c.Set("key2", "value2", time.Second)
	c.Set("longLived", "value3", time.Hour)

	clock.Advance(time.Minute)
	assert.Equal(t, 2, c.deleteExpired())

	stats := c.Stats()
	assert.Equal(t, 1, stats.CurrentSize)
	assert.Equal(t, int64(2), stats.Evictions)
}

func TestCache_JanitorStopsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New[int]("janitor", WithCleanup(10*time.Millisecond))
	c.Set("key", 1, 5*time.Millisecond)
	require.Eventually(t, func() bool { return c.Stats().CurrentSize == 0 }, time.Second, 10*time.Millisecond)

	c.Close()
	c.Close()
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int]("concurrent")
	defer c.Close()

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := range 100 {
				c.Set("key", w*100+i, time.Minute)
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				c.Get("key")
			}
		}()
	}
	wg.Wait()

	_, ok := c.Get("key")
	assert.True(t, ok)
}

func BenchmarkCache_Get(b *testing.B) {
	c := New[string]("bench")
	c.Set("key", "value", 5*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key")
	}
}
