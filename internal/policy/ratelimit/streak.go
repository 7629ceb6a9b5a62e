package ratelimit

import (
	"context"
	"sync"
	"time"
)

// failureStreaks counts consecutive failures per host and trips hosts on excess.
type failureStreaks struct {
	mu        sync.Mutex
	threshold int
	counts    map[string]int
	tripped   map[string]struct{}
}

func newFailureStreaks(threshold int) *failureStreaks {
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	return &failureStreaks{
		threshold: threshold,
		counts:    make(map[string]int),
		tripped:   make(map[string]struct{}),
	}
}

func (s *failureStreaks) Tripped(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tripped[host]
	return ok
}

// Fail increments the streak for host and returns true once tripped.
func (s *failureStreaks) Fail(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, tripped := s.tripped[host]; tripped {
		return true
	}
	s.counts[host]++
	if s.counts[host] >= s.threshold {
		s.tripped[host] = struct{}{}
		return true
	}
	return false
}

func (s *failureStreaks) Succeed(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, tripped := s.tripped[host]; tripped {
		return
	}
	delete(s.counts, host)
}

func (s *failureStreaks) Reset(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, host)
	delete(s.tripped, host)
}

// pauseController abstracts how the controller sleeps between requests.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
