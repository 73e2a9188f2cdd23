package cache

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/resilience"
)

// guardedStore bounds every store call by a timeout and stops calling a
// failing store until the breaker lets a probe through. A rejected lookup
// reads as an error, which the cache treats as a miss.
type guardedStore struct {
	store   Store
	breaker *resilience.Breaker
	timeout time.Duration
}

// Guard wraps store with a circuit breaker and a per-call timeout.
func Guard(store Store, breaker *resilience.Breaker, timeout time.Duration) Store {
	return &guardedStore{store: store, breaker: breaker, timeout: timeout}
}

type lookupResult struct {
	value string
	found bool
}

func (g *guardedStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	res, err := resilience.Call(g.breaker, func() (lookupResult, error) {
		out := make(chan lookupResult, 1)
		err := resilience.WithTimeout(ctx, g.timeout, "cache lookup", func(ctx context.Context) error {
			v, found, err := g.store.Lookup(ctx, key)
			out <- lookupResult{value: v, found: found}
			return err
		})
		if err != nil {
			return lookupResult{}, err
		}
		return <-out, nil
	})
	return res.value, res.found, err
}

func (g *guardedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.breaker.Do(func() error {
		return resilience.WithTimeout(ctx, g.timeout, "cache set", func(ctx context.Context) error {
			return g.store.Set(ctx, key, value, ttl)
		})
	})
}

// FlushByPattern bypasses the breaker: invalidation is an explicit operator
// request and should report the real store error.
func (g *guardedStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	return g.store.FlushByPattern(ctx, pattern)
}
