package chain

import (
	"context"
	"os"
	"strconv"

	"github.com/filecoin-project/go-state-types/abi"
	lru "github.com/hashicorp/golang-lru"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-chain/pkg/constants"
	"github.com/filecoin-project/venus-chain/pkg/types"
	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

const (
	// DefaultSkipLength is the epoch granularity of the skip list.
	DefaultSkipLength = abi.ChainEpoch(20)
	// DefaultSkipCacheSize bounds the number of skip list entries kept.
	DefaultSkipCacheSize = 32768
)

// DefaultTipSetCacheSize bounds the number of tipsets the index keeps loaded.
var DefaultTipSetCacheSize = 8192

func init() {
	if s := os.Getenv(constants.ChainIndexCacheEnv); s != "" {
		lcic, err := strconv.Atoi(s)
		if err != nil {
			log.Errorf("failed to parse '%s' env var: %s", constants.ChainIndexCacheEnv, err)
			return
		}
		DefaultTipSetCacheSize = lcic
	}
}

// Cache names reported to a CacheObserver.
const (
	TipSetCacheName       = "tipset"
	SkipCacheName         = "skip"
	MsgsInTipSetCacheName = "msgs_in_tipset"
)

// CacheObserver is told about cache hits and misses.
type CacheObserver interface {
	CacheHit(cache string)
	CacheMiss(cache string)
}

type noopObserver struct{}

func (noopObserver) CacheHit(string)  {}
func (noopObserver) CacheMiss(string) {}

// ChainIndex tipset height index, used to getting tipset by height quickly
type ChainIndex struct { //nolint:revive
	bs blockstoreutil.Blockstore

	// both caches are internally locked
	tsCache   *lru.Cache
	skipCache *lru.Cache

	observer CacheObserver

	skipLength abi.ChainEpoch
}

// ChainIndexOption configures a ChainIndex.
type ChainIndexOption func(*ChainIndex) error //nolint:revive

// WithCacheSizes overrides the tipset and skip cache capacities.
func WithCacheSizes(tipsets, skips int) ChainIndexOption {
	return func(ci *ChainIndex) error {
		tsCache, err := lru.New(tipsets)
		if err != nil {
			return xerrors.Errorf("tipset cache: %w", err)
		}
		skipCache, err := lru.New(skips)
		if err != nil {
			return xerrors.Errorf("skip cache: %w", err)
		}
		ci.tsCache, ci.skipCache = tsCache, skipCache
		return nil
	}
}

// WithCacheObserver reports hits and misses of both caches to o.
func WithCacheObserver(o CacheObserver) ChainIndexOption {
	return func(ci *ChainIndex) error {
		if o != nil {
			ci.observer = o
		}
		return nil
	}
}

// NewChainIndex return a new chain index reading headers from bs.
func NewChainIndex(bs blockstoreutil.Blockstore, opts ...ChainIndexOption) (*ChainIndex, error) {
	ci := &ChainIndex{
		bs:         bs,
		observer:   noopObserver{},
		skipLength: DefaultSkipLength,
	}
	if err := WithCacheSizes(DefaultTipSetCacheSize, DefaultSkipCacheSize)(ci); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(ci); err != nil {
			return nil, err
		}
	}
	return ci, nil
}

type lbEntry struct {
	ts           *types.TipSet
	parentHeight abi.ChainEpoch
	targetHeight abi.ChainEpoch
	target       types.TipSetKey
}

// LoadTipSet returns the tipset named by key, reading its headers from the
// blockstore on a cache miss.
func (ci *ChainIndex) LoadTipSet(ctx context.Context, key types.TipSetKey) (*types.TipSet, error) {
	if v, ok := ci.tsCache.Get(key); ok {
		ci.observer.CacheHit(TipSetCacheName)
		return v.(*types.TipSet), nil
	}
	ci.observer.CacheMiss(TipSetCacheName)

	cids := key.Cids()
	if len(cids) == 0 {
		return nil, xerrors.Errorf("cannot load tipset of empty key")
	}

	blks := make([]*types.BlockHeader, len(cids))
	for i, c := range cids {
		blk, err := LoadBlockHeader(ctx, ci.bs, c)
		if err != nil {
			return nil, err
		}
		blks[i] = blk
	}

	ts, err := types.NewTipSet(blks)
	if err != nil {
		return nil, xerrors.Errorf("building tipset %s: %w", key, err)
	}

	ci.tsCache.Add(key, ts)
	return ts, nil
}

// LoadBlockHeader reads and decodes the header with cid c.
func LoadBlockHeader(ctx context.Context, bs blockstoreutil.Blockstore, c cid.Cid) (*types.BlockHeader, error) {
	raw, err := bs.Get(ctx, c)
	if err != nil {
		if blockstoreutil.IsNotFound(err) {
			return nil, xerrors.Errorf("block header %s: %w", c, ErrNotFound)
		}
		return nil, xerrors.Errorf("get block header %s: %w", c, err)
	}

	blk, err := types.DecodeBlock(raw.RawData())
	if err != nil {
		return nil, xerrors.Errorf("decode block header %s: %w", c, err)
	}
	return blk, nil
}

// GetTipSetByHeight get tipset at specify height from specify tipset
// the tipset within the skiplength is directly obtained by walking parents.
// if the height difference exceeds the skiplength, the skip list is used and
// entries missing from it are computed and cached.
// When no tipset exists at `to` the closest tipset above it is returned.
func (ci *ChainIndex) GetTipSetByHeight(ctx context.Context, from *types.TipSet, to abi.ChainEpoch) (*types.TipSet, error) {
	if to < 0 {
		return nil, xerrors.Errorf("looking for tipset with negative height %d", to)
	}
	if from.Height()-to <= ci.skipLength {
		return ci.walkBack(ctx, from, to)
	}

	rounded, err := ci.roundDown(ctx, from)
	if err != nil {
		return nil, xerrors.Errorf("failed to round down: %w", err)
	}

	cur := rounded.Key()
	for {
		lbe, err := ci.skipEntry(ctx, cur)
		if err != nil {
			return nil, err
		}

		if lbe.ts.Height() == to || lbe.parentHeight < to {
			return lbe.ts, nil
		}
		if to > lbe.targetHeight {
			return ci.walkBack(ctx, lbe.ts, to)
		}

		cur = lbe.target
	}
}

// GetTipsetByHeightWithoutCache get the tipset of specific height by walking parents only
func (ci *ChainIndex) GetTipsetByHeightWithoutCache(ctx context.Context, from *types.TipSet, to abi.ChainEpoch) (*types.TipSet, error) {
	return ci.walkBack(ctx, from, to)
}

// SkipCacheLen is the number of skip list entries held.
func (ci *ChainIndex) SkipCacheLen() int {
	return ci.skipCache.Len()
}

// TipSetCacheLen is the number of tipsets held.
func (ci *ChainIndex) TipSetCacheLen() int {
	return ci.tsCache.Len()
}

func (ci *ChainIndex) skipEntry(ctx context.Context, key types.TipSetKey) (*lbEntry, error) {
	if v, ok := ci.skipCache.Get(key); ok {
		ci.observer.CacheHit(SkipCacheName)
		return v.(*lbEntry), nil
	}
	ci.observer.CacheMiss(SkipCacheName)

	// concurrent misses on the same key compute equal entries, the last add wins
	lbe, err := ci.fillCache(ctx, key)
	if err != nil {
		return nil, xerrors.Errorf("failed to fill cache: %w", err)
	}
	ci.skipCache.Add(key, lbe)
	return lbe, nil
}

func (ci *ChainIndex) fillCache(ctx context.Context, tsk types.TipSetKey) (*lbEntry, error) {
	ts, err := ci.LoadTipSet(ctx, tsk)
	if err != nil {
		return nil, xerrors.Errorf("failed to load tipset: %w", err)
	}

	if ts.Height() == 0 {
		return &lbEntry{
			ts:           ts,
			parentHeight: 0,
			targetHeight: 0,
			target:       types.EmptyTSK,
		}, nil
	}

	// will either be equal to ts.Height, or at least > ts.Parent.Height()
	rheight := ci.roundHeight(ts.Height())

	parent, err := ci.LoadTipSet(ctx, ts.Parents())
	if err != nil {
		return nil, err
	}

	rheight -= ci.skipLength
	if rheight < 0 {
		rheight = 0
	}

	var skipTarget *types.TipSet
	if parent.Height() < rheight {
		skipTarget = parent
	} else {
		skipTarget, err = ci.walkBack(ctx, parent, rheight)
		if err != nil {
			return nil, xerrors.Errorf("fillCache walkback: %w", err)
		}
	}

	return &lbEntry{
		ts:           ts,
		parentHeight: parent.Height(),
		targetHeight: skipTarget.Height(),
		target:       skipTarget.Key(),
	}, nil
}

// floors to nearest skipLength multiple
func (ci *ChainIndex) roundHeight(h abi.ChainEpoch) abi.ChainEpoch {
	return (h / ci.skipLength) * ci.skipLength
}

func (ci *ChainIndex) roundDown(ctx context.Context, ts *types.TipSet) (*types.TipSet, error) {
	target := ci.roundHeight(ts.Height())

	rounded, err := ci.walkBack(ctx, ts, target)
	if err != nil {
		return nil, xerrors.Errorf("failed to walk back: %w", err)
	}

	return rounded, nil
}

func (ci *ChainIndex) walkBack(ctx context.Context, from *types.TipSet, to abi.ChainEpoch) (*types.TipSet, error) {
	if to > from.Height() {
		return nil, xerrors.Errorf("looking for tipset with height %d greater than start point %d", to, from.Height())
	}

	if to == from.Height() {
		return from, nil
	}

	ts := from

	for {
		if ts.Height() == 0 {
			return nil, xerrors.Errorf("walked past genesis looking for height %d", to)
		}
		pts, err := ci.LoadTipSet(ctx, ts.Parents())
		if err != nil {
			return nil, xerrors.Errorf("failed to load tipset: %w", err)
		}
		if pts.Height() >= ts.Height() {
			return nil, xerrors.Errorf("broken ancestry: parent %s at %d is not below %s at %d", pts.Key(), pts.Height(), ts.Key(), ts.Height())
		}

		if to > pts.Height() {
			// in case pts is lower than the epoch we're looking for (null blocks)
			// return a tipset above that height
			return ts, nil
		}
		if to == pts.Height() {
			return pts, nil
		}

		ts = pts
	}
}
