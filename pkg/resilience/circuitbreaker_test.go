package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WessleyAI/pulse/pkg/fn"
)

var errFail = errors.New("fail")

func failing(context.Context) error { return errFail }
func passing(context.Context) error { return nil }

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Second})
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Second})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Call(ctx, failing)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	called := false
	err := b.Call(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("open breaker must not call through")
	}
}

func TestBreakerResetsOnSuccess(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Second})
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, passing)
	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, failing)
	if b.State() != StateClosed {
		t.Fatalf("expected still closed, got %v", b.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Now()
	var transitions []string
	b := NewBreaker(BreakerOpts{
		FailThreshold: 1,
		Timeout:       10 * time.Second,
		OnStateChange: func(from, to State) { transitions = append(transitions, from.String()+">"+to.String()) },
	})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	now = now.Add(11 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}

	// A failing probe reopens immediately.
	_ = b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Fatalf("expected open after failed probe, got %v", b.State())
	}

	now = now.Add(11 * time.Second)
	if err := b.Call(ctx, passing); err != nil {
		t.Fatalf("expected probe to pass, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %v", b.State())
	}

	want := []string{"closed>open", "open>half-open", "half-open>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, transitions)
		}
	}
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Second, HalfOpenMax: 1})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	now = now.Add(2 * time.Second)

	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- b.Call(ctx, func(context.Context) error { <-release; return nil })
	}()
	// Wait for the probe to be admitted.
	for i := 0; i < 100; i++ {
		b.mu.Lock()
		admitted := b.halfOpenCount == 1
		b.mu.Unlock()
		if admitted {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err := b.Call(ctx, passing); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected second probe rejected, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe failed: %v", err)
	}
}

func TestCallResult(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	r := CallResult(b, ctx, func(context.Context) fn.Result[int] { return fn.Ok(7) })
	if v, err := r.Unwrap(); err != nil || v != 7 {
		t.Fatalf("expected 7, got %d %v", v, err)
	}

	for i := 0; i < 2; i++ {
		CallResult(b, ctx, func(context.Context) fn.Result[int] { return fn.Err[int](errFail) })
	}
	r = CallResult(b, ctx, func(context.Context) fn.Result[int] { return fn.Ok(1) })
	if _, err := r.Unwrap(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestNewBreakerDefaults(t *testing.T) {
	b := NewBreaker(BreakerOpts{})
	if b.opts.FailThreshold != DefaultBreakerOpts.FailThreshold ||
		b.opts.Timeout != DefaultBreakerOpts.Timeout ||
		b.opts.HalfOpenMax != DefaultBreakerOpts.HalfOpenMax {
		t.Fatalf("expected defaults, got %+v", b.opts)
	}
	if State(9).String() != "unknown" {
		t.Fatal("expected unknown state string")
	}
}
