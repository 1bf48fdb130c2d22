// Package testutil provides deterministic helpers for harness tests.
package testutil

import (
	"context"
	"sync"
	"time"
)

// CountingSleeper records barrier sleeps without actually sleeping.
//
// Barrier timeout bounds are specified in polls, not wall time, so tests
// substitute this fake to make timeout behavior deterministic and instant.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type CountingSleeper struct {
	mu    sync.Mutex
	calls int

	// AfterSleep, if non-nil, runs after each recorded sleep with the
	// 1-based sleep count. Tests use it to flip the awaited condition
	// after a chosen number of polls.
	AfterSleep func(n int)
}

// NewCountingSleeper creates a sleeper with zero recorded calls.
func NewCountingSleeper() *CountingSleeper {
	return &CountingSleeper{}
}

// Sleep records one call and returns immediately.
// Returns ctx.Err() if the context is already cancelled, matching the
// contract of a real context-aware sleep.
func (s *CountingSleeper) Sleep(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.calls++
	n := s.calls
	hook := s.AfterSleep
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

// Calls returns the number of sleeps recorded so far.
func (s *CountingSleeper) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Reset clears the recorded call count for test reuse.
func (s *CountingSleeper) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = 0
}
