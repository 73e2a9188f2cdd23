// Package resilience guards calls to the optional backing services (the
// Redis scan cache, Kafka, PostgreSQL) with a circuit breaker, retry with
// exponential backoff, and a per-call timeout.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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

// BreakerConfig controls failure thresholds and recovery timing.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	// HalfOpenProbes is how many calls may run while half-open.
	HalfOpenProbes int
}

func defaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenProbes:   1,
	}
}

// Breaker trips open after FailureThreshold consecutive failures and rejects
// calls until ResetTimeout has passed; then it lets probes through and
// closes on the first success. Context cancellation by the caller is not
// counted as a failure.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probesInUse int
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	defaults := defaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaults.ResetTimeout
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = defaults.HalfOpenProbes
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger.WithComponent("circuit-breaker").With("name", name),
		now:    time.Now,
	}
}

// Do runs fn if the breaker allows it and records the outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// Call is Do for functions returning a value.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var out T
	err := b.Do(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		wait := b.cfg.ResetTimeout - b.now().Sub(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, b.name, wait.Round(time.Millisecond))
		}
		b.state = StateHalfOpen
		b.probesInUse = 0
		b.logger.Info("circuit half-open")
		fallthrough
	case StateHalfOpen:
		if b.probesInUse >= b.cfg.HalfOpenProbes {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, b.name)
		}
		b.probesInUse++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.probesInUse--
	}
	if err == nil || errors.Is(err, context.Canceled) {
		if b.state == StateHalfOpen && err == nil {
			b.logger.Info("circuit closed")
			b.state = StateClosed
		}
		if err == nil {
			b.failures = 0
		}
		return
	}

	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.trip("probe failed")
	case b.state == StateClosed && b.failures >= b.cfg.FailureThreshold:
		b.trip("failure threshold reached")
	}
}

func (b *Breaker) trip(reason string) {
	b.state = StateOpen
	b.openedAt = b.now()
	b.logger.Warn("circuit opened", "reason", reason, "consecutive_failures", b.failures)
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probesInUse = 0
}
