// Package barrier provides a polling rendezvous primitive for workers that
// share nothing but a filesystem.
//
// Parallel harness workers run as independent OS processes with no socket or
// shared-memory channel between them, so synchronization is expressed as
// "wait until a predicate over shared filesystem state holds". The wait is a
// coarse-grained poll loop with a fixed interval and a hard ceiling: exceeding
// the ceiling signals a hung or crashed peer and must abort the session, never
// be silently skipped.
package barrier

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default polling parameters. 180 polls at one second apiece bound the
// worst-case wait at three minutes without busy-looping.
const (
	DefaultInterval = 1 * time.Second
	DefaultMaxPolls = 180
)

// Predicate reports whether the awaited condition holds.
// A non-nil error aborts the wait immediately.
type Predicate func() (bool, error)

// Options configures a single Await call.
type Options struct {
	// Interval is the sleep between predicate evaluations.
	// Zero means DefaultInterval.
	Interval time.Duration

	// MaxPolls is the number of predicate evaluations before timing out.
	// Zero means DefaultMaxPolls.
	MaxPolls int

	// Sleep overrides the sleep implementation. Tests inject a counting
	// fake so timeout behavior is deterministic and fast. Nil means a
	// context-aware real sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// TimeoutError indicates the polling ceiling was exceeded without the
// predicate ever holding.
type TimeoutError struct {
	// Polls is the number of predicate evaluations performed.
	Polls int

	// Interval is the sleep used between evaluations.
	Interval time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("barrier: condition not met after %d polls (interval %v): peer worker hung or crashed", e.Polls, e.Interval)
}

// IsTimeout reports whether err is a barrier timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Await blocks until pred holds, polling with the configured interval.
//
// The predicate is evaluated up to opts.MaxPolls times with one sleep after
// each failed evaluation. Await returns nil the instant the predicate holds,
// the predicate's error if one occurs, ctx.Err() if the context is cancelled
// during a sleep, and a *TimeoutError once all evaluations are exhausted.
func Await(ctx context.Context, pred Predicate, opts Options) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = ctxSleep
	}

	for poll := 0; poll < maxPolls; poll++ {
		ok, err := pred()
		if err != nil {
			return fmt.Errorf("barrier: predicate failed on poll %d: %w", poll+1, err)
		}
		if ok {
			return nil
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
	return &TimeoutError{Polls: maxPolls, Interval: interval}
}

// ctxSleep sleeps for d or until ctx is cancelled, whichever comes first.
func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
