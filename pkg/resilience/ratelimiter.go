package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterOpts configures a Limiter.
type LimiterOpts struct {
	// Rate is calls per second. Zero disables limiting.
	Rate float64
	// Burst is how many calls may run back to back.
	Burst int
}

// Every returns LimiterOpts that allow one call per interval.
func Every(interval time.Duration) LimiterOpts {
	if interval <= 0 {
		return LimiterOpts{}
	}
	return LimiterOpts{Rate: float64(time.Second) / float64(interval), Burst: 1}
}

// Limiter paces calls to a remote API. On top of the token bucket it can be
// paused, which is how a Retry-After from the server is honoured.
type Limiter struct {
	rl  *rate.Limiter
	now func() time.Time

	mu    sync.Mutex
	until time.Time
}

// NewLimiter creates a Limiter.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	return &Limiter{rl: rate.NewLimiter(limit, opts.Burst), now: time.Now}
}

// Allow takes a token if one is available and the limiter is not paused.
func (l *Limiter) Allow() bool {
	now := l.now()
	if l.pausedFor(now) > 0 {
		return false
	}
	return l.rl.AllowN(now, 1)
}

// Wait blocks until a call may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := l.now()
	r := l.rl.ReserveN(now, 1)
	delay := max(r.DelayFrom(now), l.pausedFor(now))
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.CancelAt(l.now())
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pause holds every caller for at least d. Overlapping pauses keep the later
// deadline.
func (l *Limiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	until := l.now().Add(d)
	l.mu.Lock()
	if until.After(l.until) {
		l.until = until
	}
	l.mu.Unlock()
}

func (l *Limiter) pausedFor(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.until.Sub(now)
}
