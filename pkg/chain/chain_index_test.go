package chain_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-chain/pkg/chain"
	"github.com/filecoin-project/venus-chain/pkg/testhelpers"
	tf "github.com/filecoin-project/venus-chain/pkg/testhelpers/testflags"
	"github.com/filecoin-project/venus-chain/pkg/types"
)

type countingObserver struct {
	lk     sync.Mutex
	hits   map[string]int
	misses map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{hits: map[string]int{}, misses: map[string]int{}}
}

func (o *countingObserver) CacheHit(name string) {
	o.lk.Lock()
	defer o.lk.Unlock()
	o.hits[name]++
}

func (o *countingObserver) CacheMiss(name string) {
	o.lk.Lock()
	defer o.lk.Unlock()
	o.misses[name]++
}

func (o *countingObserver) counts(name string) (int, int) {
	o.lk.Lock()
	defer o.lk.Unlock()
	return o.hits[name], o.misses[name]
}

func TestChainIndexMatchesLinearWalk(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	tss := builder.BuildChain(120, 15, 40, 41, 42, 43, 44, 45, 77, 100)
	head := tss[len(tss)-1]

	ci, err := chain.NewChainIndex(builder.Blockstore())
	require.NoError(t, err)

	for to := abi.ChainEpoch(0); to <= head.Height(); to++ {
		fast, err := ci.GetTipSetByHeight(ctx, head, to)
		require.NoError(t, err)
		slow, err := ci.GetTipsetByHeightWithoutCache(ctx, head, to)
		require.NoError(t, err)

		assert.True(t, fast.Equals(slow), "height %d: skip list found %d, walk found %d", to, fast.Height(), slow.Height())
		assert.True(t, fast.Height() >= to)
	}

	// every lookup from a tipset to its own height is the tipset itself
	for _, ts := range tss {
		got, err := ci.GetTipSetByHeight(ctx, head, ts.Height())
		require.NoError(t, err)
		assert.True(t, got.Equals(ts))
	}
}

func TestChainIndexNullRounds(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	tss := builder.BuildChain(40, 15, 30, 31)
	head := tss[len(tss)-1]

	ci, err := chain.NewChainIndex(builder.Blockstore())
	require.NoError(t, err)

	ts, err := ci.GetTipSetByHeight(ctx, head, 15)
	require.NoError(t, err)
	assert.Equal(t, abi.ChainEpoch(16), ts.Height())

	ts, err = ci.GetTipSetByHeight(ctx, head, 30)
	require.NoError(t, err)
	assert.Equal(t, abi.ChainEpoch(32), ts.Height())

	ts, err = ci.GetTipSetByHeight(ctx, head, 0)
	require.NoError(t, err)
	assert.True(t, ts.Equals(builder.Genesis()))
}

func TestChainIndexSkipCacheFill(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	tss := builder.BuildChain(24)
	head := tss[len(tss)-1]
	require.Equal(t, abi.ChainEpoch(24), head.Height())

	ci, err := chain.NewChainIndex(builder.Blockstore())
	require.NoError(t, err)

	ts, err := ci.GetTipSetByHeight(ctx, head, 3)
	require.NoError(t, err)
	assert.Equal(t, abi.ChainEpoch(3), ts.Height())
	assert.Equal(t, 1, ci.SkipCacheLen())

	// within the skip length the index only walks parents
	ci, err = chain.NewChainIndex(builder.Blockstore())
	require.NoError(t, err)
	_, err = ci.GetTipSetByHeight(ctx, head, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, ci.SkipCacheLen())
}

func TestChainIndexErrors(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	head := builder.AppendManyOn(50, builder.Genesis())

	ci, err := chain.NewChainIndex(builder.Blockstore())
	require.NoError(t, err)

	_, err = ci.GetTipSetByHeight(ctx, head, -1)
	assert.Error(t, err)

	_, err = ci.GetTipSetByHeight(ctx, head, head.Height()+1)
	assert.Error(t, err)

	_, err = ci.GetTipsetByHeightWithoutCache(ctx, head, head.Height()+5)
	assert.Error(t, err)

	// a tipset whose ancestry is not in the blockstore
	orphanBuilder := chain.NewBuilder(t)
	orphan := orphanBuilder.AppendManyOn(30, orphanBuilder.AppendOn(orphanBuilder.Genesis(), 2))
	_, err = ci.GetTipSetByHeight(ctx, orphan, 2)
	assert.Error(t, err)

	_, err = ci.LoadTipSet(ctx, types.EmptyTSK)
	assert.Error(t, err)
}

func TestChainIndexLoadTipSetCaches(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	head := builder.AppendOn(builder.AppendOn(builder.Genesis(), 2), 3)

	obs := newCountingObserver()
	ci, err := chain.NewChainIndex(builder.Blockstore(), chain.WithCacheObserver(obs))
	require.NoError(t, err)

	first, err := ci.LoadTipSet(ctx, head.Key())
	require.NoError(t, err)
	second, err := ci.LoadTipSet(ctx, head.Key())
	require.NoError(t, err)

	assert.True(t, first.Equals(head))
	assert.True(t, second.Equals(first))
	assert.Equal(t, 3, second.Len())
	assert.Equal(t, 1, ci.TipSetCacheLen())

	hits, misses := obs.counts(chain.TipSetCacheName)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestChainIndexCacheSizes(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	tss := builder.BuildChain(10)

	ci, err := chain.NewChainIndex(builder.Blockstore(), chain.WithCacheSizes(4, 4))
	require.NoError(t, err)
	for _, ts := range tss {
		_, err := ci.LoadTipSet(ctx, ts.Key())
		require.NoError(t, err)
	}
	assert.Equal(t, 4, ci.TipSetCacheLen())

	_, err = chain.NewChainIndex(builder.Blockstore(), chain.WithCacheSizes(0, 4))
	assert.Error(t, err)
}

func TestChainIndexConcurrentLookups(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	tss := builder.BuildChain(200, 55, 56, 133)
	head := tss[len(tss)-1]

	ci, err := chain.NewChainIndex(builder.Blockstore())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(offset abi.ChainEpoch) {
			defer wg.Done()
			for to := offset; to < head.Height(); to += 8 {
				fast, err := ci.GetTipSetByHeight(ctx, head, to)
				assert.NoError(t, err)
				slow, err := ci.GetTipsetByHeightWithoutCache(ctx, head, to)
				assert.NoError(t, err)
				assert.True(t, fast.Equals(slow))
			}
		}(abi.ChainEpoch(i))
	}
	require.False(t, testhelpers.WaitTimeout(&wg, time.Minute), "lookups did not finish")
}
