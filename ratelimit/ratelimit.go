// Package ratelimit bounds the outbound call rate against the shared
// terminal account. The account quota is a sliding window, not a fixed
// bucket: a burst of maxRequests calls blocks the next call until the
// oldest one ages out of the window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// epsilon keeps a re-evaluated Acquire from waking just before the
// oldest timestamp expires.
const epsilon = 100 * time.Millisecond

// Limiter blocks callers instead of failing them. All state mutation
// happens under the mutex; the mutex is never held across a sleep.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	stamps      []time.Time

	// pacer enforces a minimum spacing between consecutive calls on
	// top of the window quota, mirroring the per-call delay the
	// terminal tolerates best.
	pacer *rate.Limiter

	now func() time.Time
}

// New creates a limiter allowing maxRequests per sliding window. A
// non-zero interCallDelay additionally spaces out consecutive calls.
func New(maxRequests int, window, interCallDelay time.Duration) *Limiter {
	l := &Limiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
	if interCallDelay > 0 {
		l.pacer = rate.NewLimiter(rate.Every(interCallDelay), 1)
	}
	return l
}

// Acquire blocks until a slot is available, then records the call and
// returns. It returns early only when ctx is cancelled. The wait loop
// re-evaluates after every sleep, which keeps the limiter correct when
// woken early or racing other callers for the freed slot.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		for len(l.stamps) > 0 && now.Sub(l.stamps[0]) > l.window {
			l.stamps = l.stamps[1:]
		}
		if len(l.stamps) < l.maxRequests {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			if l.pacer != nil {
				return l.pacer.Wait(ctx)
			}
			return nil
		}
		wait := l.window - now.Sub(l.stamps[0]) + epsilon
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Pending reports how many calls are currently recorded inside the
// window. Used by tests and the runtime report.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for _, s := range l.stamps {
		if now.Sub(s) <= l.window {
			n++
		}
	}
	return n
}
