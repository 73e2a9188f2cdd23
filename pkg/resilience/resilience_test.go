package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/errors"
)

var errBoom = errors.New("boom")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := NewBreaker("test", BreakerConfig{FailureThreshold: threshold, ResetTimeout: time.Minute})
	b.now = clock.now
	return b, clock
}

func TestBreakerTripsAndRecovers(t *testing.T) {
	b, clock := newTestBreaker(2)
	fail := func() error { return errBoom }

	b.Do(fail)
	if b.State() != StateClosed {
		t.Fatalf("state after one failure = %s", b.State())
	}
	b.Do(fail)
	if b.State() != StateOpen {
		t.Fatalf("state after threshold = %s", b.State())
	}

	called := false
	if err := b.Do(func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker ran fn (%v) or returned %v", called, err)
	}

	clock.t = clock.t.Add(time.Minute)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state after successful probe = %s", b.State())
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(1)
	b.Do(func() error { return errBoom })
	clock.t = clock.t.Add(2 * time.Minute)

	b.Do(func() error { return errBoom })
	if b.State() != StateOpen {
		t.Fatalf("state after failed probe = %s", b.State())
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("re-opened breaker allowed a call: %v", err)
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b, _ := newTestBreaker(1)
	b.Do(func() error { return context.Canceled })
	if b.State() != StateClosed {
		t.Fatalf("cancellation tripped the breaker")
	}
	v, err := Call(b, func() (int, error) { return 7, nil })
	if v != 7 || err != nil {
		t.Fatalf("Call = %d, %v", v, err)
	}
}

func TestRetry(t *testing.T) {
	fast := RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	calls := 0
	err := Retry(context.Background(), "flaky", fast, func(context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("Retry = %v after %d calls", err, calls)
	}

	calls = 0
	err = Retry(context.Background(), "broken", fast, func(context.Context) error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) || calls != 4 {
		t.Fatalf("Retry = %v after %d calls", err, calls)
	}

	calls = 0
	err = Retry(context.Background(), "open", fast, func(context.Context) error {
		calls++
		return ErrCircuitOpen
	})
	if !errors.Is(err, ErrCircuitOpen) || calls != 1 {
		t.Fatalf("open circuit retried: %v after %d calls", err, calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, "cancelled", RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errBoom
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("Retry = %v after %d calls", err, calls)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10}.withDefaults()
	cfg.JitterFraction = 0
	if d := backoff(1, cfg); d != time.Second {
		t.Fatalf("first delay = %v", d)
	}
	if d := backoff(4, cfg); d != 3*time.Second {
		t.Fatalf("capped delay = %v", d)
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return ctx.Err()
	})
	if !errors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("WithTimeout = %v", err)
	}
	if err := WithTimeout(context.Background(), time.Second, "fast", func(context.Context) error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("fast failure = %v", err)
	}
	if err := WithTimeout(context.Background(), 0, "direct", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("no timeout = %v", err)
	}
}
