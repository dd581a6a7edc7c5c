package blockstoreutil

import (
	"context"
	"time"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
)

// DefaultBlockCacheSize is the number of blocks kept by the lru flavour of CacheBlockStore.
const DefaultBlockCacheSize = 100_000

var _ Blockstore = (*CacheBlockStore)(nil)

// NewCacheBlockStore puts a read cache in front of bsstore, either an lru or
// one expiring entries after a day.
func NewCacheBlockStore(bsstore Blockstore, useLru bool, size int) *CacheBlockStore {
	var c IBlockCache
	if useLru {
		if size <= 0 {
			size = DefaultBlockCacheSize
		}
		c = NewLruCache(size)
	} else {
		c = NewTimeCache(time.Hour*24, time.Hour*24)
	}
	return &CacheBlockStore{bsstore: bsstore, cache: c}
}

// CacheBlockStore is a Blockstore with an in-memory read cache.
type CacheBlockStore struct {
	bsstore Blockstore
	cache   IBlockCache
}

func (c *CacheBlockStore) DeleteBlock(ctx context.Context, bid cid.Cid) error {
	c.cache.Remove(bid.KeyString())
	return c.bsstore.DeleteBlock(ctx, bid)
}

func (c *CacheBlockStore) Has(ctx context.Context, bid cid.Cid) (bool, error) {
	if _, ok := c.cache.Get(bid.KeyString()); ok {
		return true, nil
	}
	return c.bsstore.Has(ctx, bid)
}

func (c *CacheBlockStore) Get(ctx context.Context, bid cid.Cid) (blocks.Block, error) {
	if val, ok := c.cache.Get(bid.KeyString()); ok {
		return val.(blocks.Block), nil
	}

	val, err := c.bsstore.Get(ctx, bid)
	if err != nil {
		return nil, err
	}

	c.cache.Add(bid.KeyString(), val)
	return val, nil
}

func (c *CacheBlockStore) GetSize(ctx context.Context, bid cid.Cid) (int, error) {
	if val, ok := c.cache.Get(bid.KeyString()); ok {
		return len(val.(blocks.Block).RawData()), nil
	}
	return c.bsstore.GetSize(ctx, bid)
}

// Put caches block only once the backing store accepted it.
func (c *CacheBlockStore) Put(ctx context.Context, block blocks.Block) error {
	if err := c.bsstore.Put(ctx, block); err != nil {
		return err
	}
	c.cache.Add(block.Cid().KeyString(), block)
	return nil
}

func (c *CacheBlockStore) PutMany(ctx context.Context, blks []blocks.Block) error {
	if err := c.bsstore.PutMany(ctx, blks); err != nil {
		return err
	}
	for _, blk := range blks {
		c.cache.Add(blk.Cid().KeyString(), blk)
	}
	return nil
}

func (c *CacheBlockStore) AllKeysChan(ctx context.Context) (<-chan cid.Cid, error) {
	return c.bsstore.AllKeysChan(ctx)
}

func (c *CacheBlockStore) HashOnRead(enabled bool) {
	c.bsstore.HashOnRead(enabled)
}
