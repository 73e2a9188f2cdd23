// Package cache memoises full-document scans in Redis. Identical scans that
// run concurrently collapse into one through singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/metrics"
)

const keyPrefix = "scan:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type entry struct {
	Length int   `json:"l"`
	Starts []int `json:"s"`
}

// ScanCache is a scheduler.Scanner that consults the store before delegating
// to the wrapped scanner. Store failures degrade to an uncached scan.
type ScanCache struct {
	store   Store
	next    scheduler.Scanner
	ttl     time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps next. m may be nil.
func New(store Store, next scheduler.Scanner, ttl time.Duration, m *metrics.Metrics) *ScanCache {
	if next == nil {
		next = scheduler.MatcherScanner{}
	}
	return &ScanCache{
		store:   store,
		next:    next,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "scan-cache"),
	}
}

func (c *ScanCache) Scan(ctx context.Context, text []rune, job scheduler.Job) ([]matcher.Occurrence, error) {
	key := buildKey(text, job)
	if occs, ok := c.get(ctx, key); ok {
		c.hit()
		return occs, nil
	}
	val, err, shared := c.group.Do(key, func() (any, error) {
		if occs, ok := c.get(ctx, key); ok {
			return occs, nil
		}
		occs, err := c.next.Scan(ctx, text, job)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, occs)
		return occs, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.hit()
	} else {
		c.miss()
	}
	return val.([]matcher.Occurrence), nil
}

func (c *ScanCache) get(ctx context.Context, key string) ([]matcher.Occurrence, bool) {
	data, found, err := c.store.Lookup(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var e entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	occs := make([]matcher.Occurrence, len(e.Starts))
	for i, s := range e.Starts {
		occs[i] = matcher.Occurrence{Start: s, Length: e.Length}
	}
	return occs, true
}

func (c *ScanCache) set(ctx context.Context, key string, occs []matcher.Occurrence) {
	e := entry{Starts: make([]int, len(occs))}
	for i, o := range occs {
		e.Starts[i] = o.Start
		e.Length = o.Length
	}
	data, err := json.Marshal(e)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Invalidate drops every cached scan.
func (c *ScanCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating scan cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *ScanCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ScanCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ScanCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// buildKey hashes everything the scan result depends on: the pattern, the
// options, the resolved range and the text itself.
func buildKey(text []rune, job scheduler.Job) string {
	start, end := job.Bounds(len(text))
	h := sha256.New()
	fmt.Fprintf(h, "%q|cs=%t|ww=%t|%d:%d|", job.Pattern, job.Options.CaseSensitive, job.Options.WholeWordOnly, start, end)
	h.Write([]byte(string(text)))
	return fmt.Sprintf("%s%x", keyPrefix, h.Sum(nil)[:16])
}
