package newsletter

import (
	"sync"
	"time"
)

// DefaultRateLimit is the admission budget used when none is configured.
var DefaultRateLimit = RateLimit{RequestsPerWindow: 10, WindowDuration: time.Minute}

// FallbackClientKey is shared by all callers whose address cannot be determined.
const FallbackClientKey = "0.0.0.0"

// RateLimit represents a sliding admission window.
type RateLimit struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// SlidingWindow admits at most RequestsPerWindow checks per client key within
// any trailing WindowDuration. State is in-memory and owned by one instance.
type SlidingWindow struct {
	Limit RateLimit
	Clock func() time.Time

	mu     sync.Mutex
	recent map[string][]int64
}

// NewSlidingWindow builds a limiter; non-positive values fall back to DefaultRateLimit.
func NewSlidingWindow(limit RateLimit, clock func() time.Time) *SlidingWindow {
	if limit.RequestsPerWindow <= 0 {
		limit.RequestsPerWindow = DefaultRateLimit.RequestsPerWindow
	}
	if limit.WindowDuration < time.Second {
		limit.WindowDuration = DefaultRateLimit.WindowDuration
	}
	return &SlidingWindow{Limit: limit, Clock: clock}
}

// Allow records a request for key and reports whether it is admitted. When
// denied, retryAfter is the whole number of seconds (at least 1) until the
// oldest recorded request leaves the window. The request is recorded either way.
func (s *SlidingWindow) Allow(key string) (allowed bool, retryAfter int) {
	if s == nil {
		return true, 0
	}
	if key == "" {
		key = FallbackClientKey
	}

	window := int64(s.Limit.WindowDuration / time.Second)
	if window < 1 {
		window = 1
	}
	limit := s.Limit.RequestsPerWindow
	if limit < 1 {
		limit = 1
	}

	now := s.now().Unix()
	cutoff := now - window

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recent == nil {
		s.recent = make(map[string][]int64)
	}

	stamps := s.recent[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	s.recent[key] = kept

	if len(kept) <= limit {
		return true, 0
	}

	retryAfter = int(window - (now - kept[0]))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}

// Keys returns the number of client keys currently tracked.
func (s *SlidingWindow) Keys() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recent)
}

func (s *SlidingWindow) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}
