package fake

import (
	"sync"
	"time"
)

// Sleeper records retry delays instead of sleeping.
type Sleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

// Sleep satisfies the lifecycle manager's injectable sleep function.
func (s *Sleeper) Sleep(d time.Duration) {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
}

// Slept returns every recorded delay, in order.
func (s *Sleeper) Slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}
