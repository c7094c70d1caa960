// Package resilience guards outbound calls with a circuit breaker and a
// token bucket limiter.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/WessleyAI/pulse/pkg/fn"
)

// State is the breaker state.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are rejected
	StateHalfOpen              // a limited number of probes pass
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling through while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures the circuit breaker.
type BreakerOpts struct {
	// FailThreshold is how many consecutive failures trip the breaker.
	FailThreshold int
	// Timeout is how long the breaker stays open before entering half-open.
	Timeout time.Duration
	// HalfOpenMax is the number of probe calls allowed in half-open state.
	HalfOpenMax int
	// OnStateChange, if set, is called with the lock released after every
	// transition.
	OnStateChange func(from, to State)
}

// DefaultBreakerOpts provides sensible defaults.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

// Breaker implements a circuit breaker with closed/open/half-open states.
type Breaker struct {
	mu            sync.Mutex
	opts          BreakerOpts
	state         State
	failures      int
	openedAt      time.Time
	halfOpenCount int
	now           func() time.Time
}

// NewBreaker creates a circuit breaker with the given options.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	st, from := b.tick()
	b.mu.Unlock()
	b.notify(from, st)
	return st
}

// tick moves open to half-open once the timeout has elapsed. It returns the
// current state and the previous one. Must hold mu.
func (b *Breaker) tick() (State, State) {
	from := b.state
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		b.state = StateHalfOpen
		b.halfOpenCount = 0
	}
	return b.state, from
}

// acquire reports whether a call may proceed.
func (b *Breaker) acquire() bool {
	b.mu.Lock()
	st, from := b.tick()
	ok := true
	switch st {
	case StateOpen:
		ok = false
	case StateHalfOpen:
		if b.halfOpenCount >= b.opts.HalfOpenMax {
			ok = false
		} else {
			b.halfOpenCount++
		}
	}
	b.mu.Unlock()
	b.notify(from, st)
	return ok
}

// release records the outcome of a call that acquire let through.
func (b *Breaker) release(failed bool) {
	b.mu.Lock()
	from := b.state
	if failed {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.failures = 0
			b.halfOpenCount = 0
		}
	} else {
		if b.state == StateHalfOpen {
			b.state = StateClosed
		}
		b.failures = 0
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.opts.OnStateChange != nil {
		b.opts.OnStateChange(from, to)
	}
}

// Call executes f through the circuit breaker.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	if !b.acquire() {
		return ErrCircuitOpen
	}
	err := f(ctx)
	b.release(err != nil)
	return err
}

// CallResult is Call for functions returning an fn.Result.
func CallResult[T any](b *Breaker, ctx context.Context, f func(context.Context) fn.Result[T]) fn.Result[T] {
	if !b.acquire() {
		return fn.Err[T](ErrCircuitOpen)
	}
	result := f(ctx)
	b.release(result.IsErr())
	return result
}
