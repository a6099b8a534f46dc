package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type countingRecorder struct {
	hits, misses, evicted int
}

func (r *countingRecorder) CacheHit()          { r.hits++ }
func (r *countingRecorder) CacheMiss()         { r.misses++ }
func (r *countingRecorder) CacheEvicted(n int) { r.evicted += n }

func TestKey(t *testing.T) {
	assert.Equal(t, "summary:u1:2024-01-01:2024-01-31", Key("summary", "u1", "2024-01-01", "2024-01-31"))
	assert.Equal(t, "summary:u1", Key("summary", "u1"))
}

func TestResultCache_GetSet(t *testing.T) {
	c := New()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", 42, time.Minute)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	c.Set("k", "overwritten", time.Minute)
	v, _ = c.Get("k")
	assert.Equal(t, "overwritten", v)
}

func TestResultCache_LazyExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(WithClock(clock.Now))

	c.Set("short", 1, 5*time.Minute)
	c.Set("forever", 2, 0)

	clock.Advance(5 * time.Minute)
	_, ok := c.Get("short")
	assert.True(t, ok, "entry is valid up to and including its expiry instant")

	clock.Advance(time.Second)
	assert.Equal(t, 2, c.Len(), "nothing is evicted until read")

	_, ok = c.Get("short")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(), "expired entry is deleted on read")

	clock.Advance(24 * time.Hour)
	v, ok := c.Get("forever")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestResultCache_InvalidateScope(t *testing.T) {
	c := New()

	c.Set(Key("expenses-by-category", "owner-a", "2024-01-01", "2024-01-31"), "a1", time.Minute)
	c.Set(Key("summary", "owner-a", "2024-01-01", "2024-01-31"), "a2", time.Minute)
	c.Set(Key("summary", "owner-b", "2024-01-01", "2024-01-31"), "b1", time.Minute)
	c.Set(Key("expenses-by-date", "owner-b", "day", "", ""), "b2", time.Minute)

	removed := c.Invalidate("owner-a")
	assert.Equal(t, 2, removed)

	_, ok := c.Get(Key("expenses-by-category", "owner-a", "2024-01-01", "2024-01-31"))
	assert.False(t, ok)
	_, ok = c.Get(Key("summary", "owner-a", "2024-01-01", "2024-01-31"))
	assert.False(t, ok)

	v, ok := c.Get(Key("summary", "owner-b", "2024-01-01", "2024-01-31"))
	require.True(t, ok)
	assert.Equal(t, "b1", v)
	_, ok = c.Get(Key("expenses-by-date", "owner-b", "day", "", ""))
	assert.True(t, ok)
}

func TestResultCache_InvalidateEdges(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		removed bool
	}{
		{"infix", "summary:u1:x:y", true},
		{"suffix", "summary:u1", true},
		{"prefix", "u1:summary", true},
		{"other owner with shared prefix", "summary:u10:x:y", false},
		{"owner as substring of range", "summary:u2:u1x:y", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			c.Set(tt.key, true, 0)
			c.Invalidate("u1")
			_, ok := c.Get(tt.key)
			assert.Equal(t, !tt.removed, ok)
		})
	}
}

func TestResultCache_InvalidateAll(t *testing.T) {
	c := New()
	c.Set("a:1:x", 1, 0)
	c.Set("b:2:x", 2, 0)

	assert.Equal(t, 2, c.Invalidate(""))
	assert.Equal(t, 0, c.Len())
}

func TestResultCache_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	rec := &countingRecorder{}
	c := New(WithClock(clock.Now), WithRecorder(rec))

	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Hour)
	c.Set("c", 3, 0)

	clock.Advance(time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 1, rec.evicted)
}

func TestResultCache_Recorder(t *testing.T) {
	rec := &countingRecorder{}
	c := New(WithRecorder(rec))

	c.Get("nope")
	c.Set("yes", 1, time.Minute)
	c.Get("yes")
	c.Get("yes")

	assert.Equal(t, 2, rec.hits)
	assert.Equal(t, 1, rec.misses)
}

func TestResultCache_ConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := "owner"
			if i%2 == 0 {
				owner = "other"
			}
			for j := 0; j < 100; j++ {
				key := Key("summary", owner, "x", "y")
				c.Set(key, j, time.Minute)
				c.Get(key)
				if j%10 == 0 {
					c.Invalidate(owner)
				}
			}
		}(i)
	}
	wg.Wait()
}
