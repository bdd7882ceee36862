package census

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailsales/internal/shared/testutil"
	"retailsales/pkg/contracts/domain"
)

type countingFetcher struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
}

func (f *countingFetcher) Fetch(ctx context.Context, q Query) (*domain.RawTable, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return testutil.NewRawTable(testutil.MARTSRow("SM", "yes", "441", "2024-01", "1")), nil
}

func newTestCache(t *testing.T, next Fetcher, ttl time.Duration) *CachedFetcher {
	logger, _ := testutil.NewTestLogger(t)
	return NewCachedFetcher(next, ttl, logger)
}

func TestCachedFetcher_HitsAndMisses(t *testing.T) {
	next := &countingFetcher{}
	cache := newTestCache(t, next, 0)
	ctx := context.Background()

	q := Query{APIKey: "k", From: 2020, To: 2024}
	first, err := cache.Fetch(ctx, q)
	require.NoError(t, err)
	second, err := cache.Fetch(ctx, q)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), next.calls.Load())

	_, err = cache.Fetch(ctx, Query{APIKey: "other", From: 2020, To: 2024})
	require.NoError(t, err)
	_, err = cache.Fetch(ctx, Query{APIKey: "k", From: 2021, To: 2024})
	require.NoError(t, err)
	assert.Equal(t, int32(3), next.calls.Load())

	assert.Equal(t, CacheStats{Entries: 3, Hits: 1, Misses: 3}, cache.Stats())
}

func TestCachedFetcher_ErrorsNotCached(t *testing.T) {
	next := &countingFetcher{err: errors.New("upstream down")}
	cache := newTestCache(t, next, 0)
	q := Query{APIKey: "k", From: 2020, To: 2024}

	_, err := cache.Fetch(context.Background(), q)
	require.Error(t, err)
	_, err = cache.Fetch(context.Background(), q)
	require.Error(t, err)

	assert.Equal(t, int32(2), next.calls.Load())
	assert.Zero(t, cache.Stats().Entries)
}

func TestCachedFetcher_SharesConcurrentFlights(t *testing.T) {
	next := &countingFetcher{release: make(chan struct{})}
	cache := newTestCache(t, next, 0)
	q := Query{APIKey: "k", From: 2020, To: 2024}

	var wg sync.WaitGroup
	results := make([]*domain.RawTable, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, err := cache.Fetch(context.Background(), q)
			assert.NoError(t, err)
			results[i] = raw
		}(i)
	}

	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(next.release)
	wg.Wait()

	assert.Equal(t, int32(1), next.calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

type blockingFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (f *blockingFetcher) Fetch(ctx context.Context, q Query) (*domain.RawTable, error) {
	if f.calls.Add(1) == 1 {
		close(f.started)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.release:
	}
	return testutil.NewRawTable(testutil.MARTSRow("SM", "yes", "441", "2024-01", "1")), nil
}

func TestCachedFetcher_CallerCancelDoesNotFailOthers(t *testing.T) {
	next := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	cache := newTestCache(t, next, 0)
	q := Query{APIKey: "k", From: 2020, To: 2024}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Fetch(firstCtx, q)
		firstErr <- err
	}()
	<-next.started

	type result struct {
		raw *domain.RawTable
		err error
	}
	second := make(chan result, 1)
	go func() {
		raw, err := cache.Fetch(context.Background(), q)
		second <- result{raw, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(next.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.raw.Len())
	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, 1, cache.Stats().Entries)
}

func TestCachedFetcher_TTL(t *testing.T) {
	next := &countingFetcher{}
	cache := newTestCache(t, next, time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	q := Query{APIKey: "k", From: 2020, To: 2024}

	_, err := cache.Fetch(context.Background(), q)
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	_, err = cache.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int32(1), next.calls.Load())

	now = now.Add(time.Hour)
	_, err = cache.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
	assert.Equal(t, 1, cache.Stats().Entries)
}

func TestCachedFetcher_EvictKeepsRefreshedEntry(t *testing.T) {
	cache := newTestCache(t, &countingFetcher{}, time.Hour)
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := old.Add(2 * time.Hour)
	raw := testutil.NewRawTable(testutil.MARTSRow("SM", "yes", "441", "2024-01", "1"))

	cache.entries["k"] = cacheEntry{raw: raw, stored: fresh}
	cache.evict("k", old)
	assert.Equal(t, 1, cache.Stats().Entries, "refreshed entry must survive a stale eviction")

	cache.evict("k", fresh)
	assert.Zero(t, cache.Stats().Entries)
}

func TestCacheKey_HidesAPIKey(t *testing.T) {
	key := cacheKey(Query{APIKey: "super-secret", From: 2000, To: 2024})
	assert.NotContains(t, key, "super-secret")
	assert.NotEqual(t, key, cacheKey(Query{APIKey: "other", From: 2000, To: 2024}))
}
