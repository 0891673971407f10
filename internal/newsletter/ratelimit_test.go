package newsletter

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

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
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

func TestSlidingWindowAdmitsUpToLimit(t *testing.T) {
	clock := newFakeClock()
	limiter := NewSlidingWindow(RateLimit{RequestsPerWindow: 2, WindowDuration: 60 * time.Second}, clock.Now)

	allowed, _ := limiter.Allow("1.1.1.1")
	require.True(t, allowed)
	allowed, _ = limiter.Allow("1.1.1.1")
	require.True(t, allowed)

	allowed, retryAfter := limiter.Allow("1.1.1.1")
	require.False(t, allowed)
	assert.Equal(t, 60, retryAfter)
}

func TestSlidingWindowRetryAfterShrinks(t *testing.T) {
	clock := newFakeClock()
	limiter := NewSlidingWindow(RateLimit{RequestsPerWindow: 1, WindowDuration: 60 * time.Second}, clock.Now)

	allowed, _ := limiter.Allow("k")
	require.True(t, allowed)

	clock.Advance(45 * time.Second)
	allowed, retryAfter := limiter.Allow("k")
	require.False(t, allowed)
	assert.Equal(t, 15, retryAfter)
}

func TestSlidingWindowRetryAfterAtLeastOne(t *testing.T) {
	clock := newFakeClock()
	limiter := NewSlidingWindow(RateLimit{RequestsPerWindow: 1, WindowDuration: time.Second}, clock.Now)

	allowed, _ := limiter.Allow("k")
	require.True(t, allowed)
	allowed, retryAfter := limiter.Allow("k")
	require.False(t, allowed)
	assert.Equal(t, 1, retryAfter)
}

func TestSlidingWindowExpiresOldEntries(t *testing.T) {
	clock := newFakeClock()
	limiter := NewSlidingWindow(RateLimit{RequestsPerWindow: 1, WindowDuration: 60 * time.Second}, clock.Now)

	allowed, _ := limiter.Allow("k")
	require.True(t, allowed)

	// An entry exactly window seconds old is outside the window.
	clock.Advance(60 * time.Second)
	allowed, _ = limiter.Allow("k")
	assert.True(t, allowed)
}

func TestSlidingWindowRecordsDeniedRequests(t *testing.T) {
	clock := newFakeClock()
	limiter := NewSlidingWindow(RateLimit{RequestsPerWindow: 1, WindowDuration: 60 * time.Second}, clock.Now)

	allowed, _ := limiter.Allow("k")
	require.True(t, allowed)

	clock.Advance(30 * time.Second)
	allowed, _ = limiter.Allow("k")
	require.False(t, allowed)

	// The first entry has left the window but the denied one has not.
	clock.Advance(31 * time.Second)
	allowed, retryAfter := limiter.Allow("k")
	require.False(t, allowed)
	assert.Equal(t, 29, retryAfter)
}

func TestSlidingWindowKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	limiter := NewSlidingWindow(RateLimit{RequestsPerWindow: 1, WindowDuration: time.Minute}, clock.Now)

	allowed, _ := limiter.Allow("a")
	require.True(t, allowed)
	allowed, _ = limiter.Allow("b")
	require.True(t, allowed)
	allowed, _ = limiter.Allow("a")
	require.False(t, allowed)

	allowed, _ = limiter.Allow("")
	require.True(t, allowed)
	allowed, _ = limiter.Allow(FallbackClientKey)
	require.False(t, allowed, "empty key shares the fallback bucket")

	assert.Equal(t, 3, limiter.Keys())
}

func TestSlidingWindowConcurrentChecksNeverOverAdmit(t *testing.T) {
	clock := newFakeClock()
	limiter := NewSlidingWindow(RateLimit{RequestsPerWindow: 10, WindowDuration: time.Minute}, clock.Now)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := limiter.Allow("shared"); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, granted)
}

func TestNewSlidingWindowDefaults(t *testing.T) {
	limiter := NewSlidingWindow(RateLimit{}, nil)
	assert.Equal(t, DefaultRateLimit, limiter.Limit)

	var nilLimiter *SlidingWindow
	allowed, _ := nilLimiter.Allow("k")
	assert.True(t, allowed)
}
