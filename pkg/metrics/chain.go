package metrics

import (
	"context"

	"go.opencensus.io/tag"
)

// CacheName is the tag distinguishing the chain caches.
var CacheName, _ = tag.NewKey("cache")

var (
	cacheHits   = NewInt64Counter("chain/cache_hits", "Number of chain cache lookups that hit", CacheName)
	cacheMisses = NewInt64Counter("chain/cache_misses", "Number of chain cache lookups that missed", CacheName)

	// HeadChangeDropped counts head change notifications dropped for a slow subscriber.
	HeadChangeDropped = NewInt64Counter("chain/head_change_dropped", "Number of head change notifications dropped for slow subscribers")
	// HeadHeight is the height of the current heaviest tipset.
	HeadHeight = NewInt64Gauge("chain/head_height", "Height of the heaviest tipset")
	// ReorgCount counts head changes that reverted at least one tipset.
	ReorgCount = NewInt64Counter("chain/reorg_count", "The number of reorgs that have occurred.")
	// SkipLookupTimer times skip list lookups.
	SkipLookupTimer = NewTimerMs("chain/skip_lookup", "Duration of a tipset lookup by height in milliseconds")
)

// CacheRecorder reports cache hits and misses to opencensus.
type CacheRecorder struct{}

// CacheHit records a hit on the named cache.
func (CacheRecorder) CacheHit(cache string) {
	record(cacheHits, cache)
}

// CacheMiss records a miss on the named cache.
func (CacheRecorder) CacheMiss(cache string) {
	record(cacheMisses, cache)
}

func record(c *Int64Counter, cache string) {
	ctx, err := tag.New(context.Background(), tag.Upsert(CacheName, cache))
	if err != nil {
		log.Warnf("failed to tag cache metric: %s", err)
		return
	}
	c.Inc(ctx, 1)
}
