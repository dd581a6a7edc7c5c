package chain

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/filecoin-project/venus-chain/pkg/types"
)

// DefaultMsgsInTipsetCacheSize is the number of tipsets whose messages are kept.
const DefaultMsgsInTipsetCacheSize = 100

// MsgsInTipsetCache memoizes the selected messages of recent tipsets.
type MsgsInTipsetCache struct {
	cache    *lru.Cache
	observer CacheObserver
}

// NewMsgsInTipsetCache creates a cache holding up to size tipsets. A nil
// observer disables hit/miss reporting.
func NewMsgsInTipsetCache(size int, observer CacheObserver) (*MsgsInTipsetCache, error) {
	if size <= 0 {
		size = DefaultMsgsInTipsetCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &MsgsInTipsetCache{cache: cache, observer: observer}, nil
}

// Get returns the messages cached for key.
func (c *MsgsInTipsetCache) Get(key types.TipSetKey) ([]types.ChainMsg, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		c.observer.CacheMiss(MsgsInTipSetCacheName)
		return nil, false
	}
	c.observer.CacheHit(MsgsInTipSetCacheName)
	return v.([]types.ChainMsg), true
}

// Insert stores a copy of msgs trimmed to its length.
func (c *MsgsInTipsetCache) Insert(key types.TipSetKey, msgs []types.ChainMsg) {
	trimmed := make([]types.ChainMsg, len(msgs))
	copy(trimmed, msgs)
	c.cache.Add(key, trimmed)
}

// GetOrInsertWith returns the cached messages of key, computing and caching
// them on a miss. Concurrent misses on one key may both run compute; the
// later insert wins.
func (c *MsgsInTipsetCache) GetOrInsertWith(key types.TipSetKey, compute func() ([]types.ChainMsg, error)) ([]types.ChainMsg, error) {
	if msgs, ok := c.Get(key); ok {
		return msgs, nil
	}

	msgs, err := compute()
	if err != nil {
		return nil, err
	}
	c.Insert(key, msgs)
	return msgs, nil
}

// Len is the number of tipsets cached.
func (c *MsgsInTipsetCache) Len() int {
	return c.cache.Len()
}
