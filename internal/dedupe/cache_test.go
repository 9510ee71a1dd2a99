// ABOUTME: Tests for the dedupe TTL cache
// ABOUTME: Validates expiry, size limits, eviction order, cleanup, and concurrency safety

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock is a settable time source.
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

func newTestCache(t *testing.T, ttl time.Duration, maxSize int) (*Cache[string], *manualClock) {
	t.Helper()
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	c := New[string](ttl, maxSize, 0)
	c.now = clock.Now
	t.Cleanup(c.Close)
	return c, clock
}

func TestCache_GetMissing(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	_, ok := c.Get("never-seen")
	assert.False(t, ok)
}

func TestCache_PutAndGet(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	c.Put("k", "v")
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	c.Put("k", "v")
	clock.Advance(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestCache_PutIfAbsent(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	got, loaded := c.PutIfAbsent("k", "first")
	assert.False(t, loaded)
	assert.Equal(t, "first", got)

	got, loaded = c.PutIfAbsent("k", "second")
	assert.True(t, loaded)
	assert.Equal(t, "first", got)

	// an expired entry is replaced
	clock.Advance(time.Minute)
	got, loaded = c.PutIfAbsent("k", "third")
	assert.False(t, loaded)
	assert.Equal(t, "third", got)
}

func TestCache_PutRefreshesTimestamp(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	c.Put("k", "v1")
	clock.Advance(45 * time.Second)
	c.Put("k", "v2")
	clock.Advance(45 * time.Second)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", got)
}

func TestCache_Delete(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	c.Put("k", "v")
	c.Delete("k")
	c.Delete("missing")

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictionOrder(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 3)

	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("c", "3")
	// touching a moves it behind b and c
	c.Put("a", "1")
	c.Put("d", "4")

	_, ok := c.Get("b")
	assert.False(t, ok, "oldest key should be evicted")
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, 3, c.Len())
}

func TestCache_RemoveExpired(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	c.Put("old", "v")
	clock.Advance(30 * time.Second)
	c.Put("new", "v")
	clock.Advance(30 * time.Second)

	c.removeExpired()
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("new")
	assert.True(t, ok)
}

func TestCache_BackgroundCleanup(t *testing.T) {
	c := New[int](5*time.Millisecond, 10, 5*time.Millisecond)
	defer c.Close()

	c.Put("k", 1)
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCache_CloseTwice(t *testing.T) {
	c := New[int](time.Minute, 10, time.Minute)
	c.Close()
	c.Close()
}

func TestCache_PutIfAbsentIsAtomic(t *testing.T) {
	c := New[int](time.Minute, 1000, 0)
	defer c.Close()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, loaded := c.PutIfAbsent("shared", i); !loaded {
				winners.Add(1)
			}
			c.Put(fmt.Sprintf("own-%d", i), i)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, 51, c.Len())
}
