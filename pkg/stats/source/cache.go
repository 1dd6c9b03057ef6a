package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/marzstat/marzstat/internal/common"
	"github.com/marzstat/marzstat/pkg/stats/models"
	"golang.org/x/sync/singleflight"
)

// Cache stores row sets by query.
type Cache interface {
	Get(key string) (models.RowSet, bool)
	Set(key string, value models.RowSet)
}

// TTLCache is a Cache whose entries expire a fixed time after insertion.
type TTLCache struct {
	cache *ttlcache.Cache[string, models.RowSet]
}

// NewTTLCache returns a TTLCache and starts its expiry loop. A zero capacity
// means unbounded.
func NewTTLCache(ttl time.Duration, capacity uint64) *TTLCache {
	opts := []ttlcache.Option[string, models.RowSet]{
		ttlcache.WithTTL[string, models.RowSet](ttl),
		ttlcache.WithDisableTouchOnHit[string, models.RowSet](),
	}

	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, models.RowSet](capacity))
	}

	c := ttlcache.New(opts...)
	go c.Start()

	return &TTLCache{cache: c}
}

// Get returns the unexpired value of key.
func (c *TTLCache) Get(key string) (models.RowSet, bool) {
	item := c.cache.Get(key)
	if item == nil || item.IsExpired() {
		return models.RowSet{}, false
	}

	return item.Value(), true
}

// Set stores value with the default TTL.
func (c *TTLCache) Set(key string, value models.RowSet) {
	c.cache.Set(key, value, ttlcache.DefaultTTL)
}

// Len returns number of cached entries.
func (c *TTLCache) Len() int {
	return c.cache.Len()
}

// Stop stops the expiry loop.
func (c *TTLCache) Stop() {
	c.cache.Stop()
}

// CachedFetcher serves repeated queries from a Cache. Concurrent misses of
// the same query share one fetch. Errors are never cached.
type CachedFetcher struct {
	logger  *slog.Logger
	fetcher Fetcher
	cache   Cache
	metrics *Metrics
	group   singleflight.Group
}

// NewCachedFetcher returns a new CachedFetcher.
func NewCachedFetcher(logger *slog.Logger, fetcher Fetcher, cache Cache, metrics *Metrics) *CachedFetcher {
	return &CachedFetcher{
		logger:  logger,
		fetcher: fetcher,
		cache:   cache,
		metrics: metrics,
	}
}

// Fetch returns cached rows of query or fetches them. The shared fetch is
// not canceled when one of its callers gives up, it is bounded by the query
// timeout of the underlying fetcher instead.
func (f *CachedFetcher) Fetch(ctx context.Context, query string) (models.RowSet, error) {
	fingerprint := common.Fingerprint(query)

	if rs, ok := f.cache.Get(query); ok {
		f.metrics.observeCache(true)
		f.logger.Debug("Query served from cache", "query", fingerprint, "rows", rs.Len())

		return rs, nil
	}

	f.metrics.observeCache(false)

	fetchCtx := context.WithoutCancel(ctx)

	ch := f.group.DoChan(query, func() (any, error) {
		// Another flight may have filled the cache meanwhile
		if rs, ok := f.cache.Get(query); ok {
			return rs, nil
		}

		rs, err := f.fetcher.Fetch(fetchCtx, query)
		if err != nil {
			f.logger.Error("Failed to fetch rows", "query", fingerprint, "err", err)

			return models.RowSet{}, err
		}

		f.cache.Set(query, rs)
		f.logger.Debug("Query result cached", "query", fingerprint, "rows", rs.Len())

		return rs, nil
	})

	select {
	case <-ctx.Done():
		return models.RowSet{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.RowSet{}, res.Err
		}

		if res.Shared {
			f.logger.Debug("Query fetch shared", "query", fingerprint)
		}

		rs, _ := res.Val.(models.RowSet)

		return rs, nil
	}
}
