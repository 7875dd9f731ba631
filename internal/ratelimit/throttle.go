package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum interval between consecutive calls.
//
// It holds one "last call" timestamp behind a mutex. Wait sleeps for whatever
// remains of the interval while holding the lock, then stamps the new call
// time, so concurrent callers are serialized and every pair of consecutive
// stamps is at least Interval apart. Create one per external credential and
// share it by reference.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewThrottle creates a throttle with the given minimum interval.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Interval returns the configured floor.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// Wait blocks until at least Interval has passed since the previous call
// returned. If ctx ends first the call is not stamped and ctx.Err() is returned.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.last.IsZero() {
		if remaining := t.interval - t.now().Sub(t.last); remaining > 0 {
			if err := t.sleep(ctx, remaining); err != nil {
				return err
			}
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	t.last = t.now()
	return nil
}

// Last returns the time of the most recent successful Wait.
func (t *Throttle) Last() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
