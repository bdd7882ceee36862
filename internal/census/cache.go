package census

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"retailsales/internal/infrastructure"
	"retailsales/pkg/contracts/domain"
)

// defaultFlightTimeout bounds a shared upstream fetch once no caller's
// context governs it
const defaultFlightTimeout = 2 * time.Minute

// CacheStats reports cache effectiveness
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// CachedFetcher memoizes successful fetches per (key, from, to).
// Concurrent identical queries share a single upstream call. Failures
// are never stored.
type CachedFetcher struct {
	next          Fetcher
	logger        *slog.Logger
	ttl           time.Duration
	flightTimeout time.Duration
	now           func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]cacheEntry

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	raw    *domain.RawTable
	stored time.Time
}

// NewCachedFetcher wraps next. A ttl of zero keeps entries for the life of
// the process.
func NewCachedFetcher(next Fetcher, ttl time.Duration, logger *slog.Logger) *CachedFetcher {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &CachedFetcher{
		next:          next,
		logger:        infrastructure.WithComponent(logger, "census_cache"),
		ttl:           ttl,
		flightTimeout: defaultFlightTimeout,
		now:           time.Now,
		entries:       make(map[string]cacheEntry),
	}
}

// Fetch returns a cached table or delegates to the wrapped fetcher.
// Returned tables are shared and must not be modified.
func (c *CachedFetcher) Fetch(ctx context.Context, q Query) (*domain.RawTable, error) {
	key := cacheKey(q)

	if raw, ok := c.lookup(key); ok {
		c.hits.Add(1)
		c.logger.DebugContext(ctx, "census cache hit", slog.Int("from", q.From), slog.Int("to", q.To))
		return raw, nil
	}
	c.misses.Add(1)

	// The flight outlives any one caller: it runs detached from ctx's
	// cancellation and each caller stops waiting on its own ctx.
	flight := c.group.DoChan(key, func() (interface{}, error) {
		// a caller that missed just before another flight finished
		if raw, ok := c.lookup(key); ok {
			return raw, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()

		raw, err := c.next.Fetch(fctx, q)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{raw: raw, stored: c.now()}
		c.mu.Unlock()
		return raw, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.DebugContext(ctx, "census fetch shared with concurrent caller")
		}
		return res.Val.(*domain.RawTable), nil
	}
}

// Stats returns a snapshot of cache counters
func (c *CachedFetcher) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{Entries: n, Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func (c *CachedFetcher) lookup(key string) (*domain.RawTable, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(entry.stored) > c.ttl {
		c.evict(key, entry.stored)
		return nil, false
	}
	return entry.raw, true
}

// evict removes key only if it still holds the entry stored at stored; a
// flight may have refreshed it since the caller's read.
func (c *CachedFetcher) evict(key string, stored time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[key]; ok && cur.stored.Equal(stored) {
		delete(c.entries, key)
	}
}

// cacheKey hashes the API key so it never sits in memory as a map key
func cacheKey(q Query) string {
	sum := sha256.Sum256([]byte(q.APIKey))
	return fmt.Sprintf("%s:%d:%d", hex.EncodeToString(sum[:]), q.From, q.To)
}
