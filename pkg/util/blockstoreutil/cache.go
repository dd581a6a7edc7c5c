package blockstoreutil

import (
	"time"

	"github.com/bluele/gcache"
	"github.com/patrickmn/go-cache"
)

// IBlockCache caches decoded blocks by key.
type IBlockCache interface {
	Get(key string) (value interface{}, ok bool)
	Remove(key string)
	Add(key string, value interface{})
}

var _ IBlockCache = (*LruCache)(nil)

// LruCache evicts the least recently used block once full.
type LruCache struct {
	cache gcache.Cache
}

func NewLruCache(size int) *LruCache {
	return &LruCache{cache: gcache.New(size).LRU().Build()}
}

func (l *LruCache) Get(key string) (interface{}, bool) {
	val, err := l.cache.Get(key)
	if err != nil {
		return nil, false
	}
	return val, true
}

func (l *LruCache) Remove(key string) {
	l.cache.Remove(key)
}

func (l *LruCache) Add(key string, value interface{}) {
	_ = l.cache.Set(key, value)
}

var _ IBlockCache = (*TimeCache)(nil)

// TimeCache expires blocks a fixed time after they were added.
type TimeCache struct {
	cache *cache.Cache
}

func NewTimeCache(expiration, cleanupInterval time.Duration) *TimeCache {
	return &TimeCache{cache: cache.New(expiration, cleanupInterval)}
}

func (t *TimeCache) Get(key string) (interface{}, bool) {
	return t.cache.Get(key)
}

func (t *TimeCache) Remove(key string) {
	t.cache.Delete(key)
}

func (t *TimeCache) Add(key string, value interface{}) {
	t.cache.Set(key, value, cache.DefaultExpiration)
}
