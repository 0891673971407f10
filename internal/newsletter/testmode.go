package newsletter

import "sync"

// seenSet records normalized emails observed in test mode.
type seenSet struct {
	mu     sync.Mutex
	emails map[string]struct{}
}

// observe adds email and reports whether it had been seen before.
func (s *seenSet) observe(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emails == nil {
		s.emails = make(map[string]struct{})
	}
	if _, ok := s.emails[email]; ok {
		return true
	}
	s.emails[email] = struct{}{}
	return false
}

func testModeOutcome(sub Submission, seen bool) Outcome {
	if seen {
		return Outcome{Status: StatusAlreadySubscribed, Provider: ProviderTest, Idempotent: true}
	}
	status := StatusSubscribed
	if sub.WantsDoubleOptIn() {
		status = StatusPending
	}
	return Outcome{Status: status, Provider: ProviderTest, Idempotent: false}
}
