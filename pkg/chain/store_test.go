package chain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/golang/mock/gomock"
	"github.com/hashicorp/go-multierror"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-chain/pkg/chain"
	"github.com/filecoin-project/venus-chain/pkg/testhelpers"
	"github.com/filecoin-project/venus-chain/pkg/testhelpers/mocks"
	tf "github.com/filecoin-project/venus-chain/pkg/testhelpers/testflags"
	"github.com/filecoin-project/venus-chain/pkg/types"
	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

// newChainStore creates a loaded store over the builder's blockstore.
func newChainStore(t *testing.T, builder *chain.Builder, provider chain.HeaviestTipSetKeyProvider, opts ...chain.StoreOption) *chain.Store {
	if provider == nil {
		provider = chain.NewMemHeadProvider()
	}
	cs, err := chain.NewStore(builder.Blockstore(), builder.Genesis().At(0), provider, chain.TestWeight, opts...)
	require.NoError(t, err)
	require.NoError(t, cs.Load(context.Background()))
	t.Cleanup(cs.Stop)
	return cs
}

func requireHead(ctx context.Context, t *testing.T, cs *chain.Store) *types.TipSet {
	head, err := cs.GetHeaviestTipSet(ctx)
	require.NoError(t, err)
	return head
}

func requireNextChange(t *testing.T, ch <-chan []*types.HeadChange) []*types.HeadChange {
	select {
	case hc, ok := <-ch:
		require.True(t, ok, "head change channel closed")
		return hc
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for head change")
	}
	return nil
}

func TestLoadDefaultsToGenesis(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	cs := newChainStore(t, builder, nil)

	assert.True(t, requireHead(ctx, t, cs).Equals(builder.Genesis()))

	gen, err := cs.GetGenesisBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, builder.Genesis().At(0).Cid(), gen.Cid())
}

func TestUpdateHeaviestForkChoice(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	cs := newChainStore(t, builder, nil)

	a := builder.AppendOn(builder.Genesis(), 1)
	require.NoError(t, cs.UpdateHeaviest(ctx, a))
	assert.True(t, requireHead(ctx, t, cs).Equals(a))

	heavier := builder.AppendOn(a, 1)
	require.NoError(t, cs.UpdateHeaviest(ctx, heavier))
	assert.True(t, requireHead(ctx, t, cs).Equals(heavier))

	// equal weight keeps the current head
	tie := builder.AppendOn(a, 1)
	require.NoError(t, cs.UpdateHeaviest(ctx, tie))
	assert.True(t, requireHead(ctx, t, cs).Equals(heavier))

	lighter := builder.AppendOn(builder.Genesis(), 1)
	require.NoError(t, cs.UpdateHeaviest(ctx, lighter))
	assert.True(t, requireHead(ctx, t, cs).Equals(heavier))

	// a wider fork at the same height outweighs it
	wide := builder.AppendOn(a, 3)
	require.NoError(t, cs.UpdateHeaviest(ctx, wide))
	assert.True(t, requireHead(ctx, t, cs).Equals(wide))
}

func TestPutTipSetExpandsSiblings(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	cs := newChainStore(t, builder, nil)

	full := builder.AppendOn(builder.Genesis(), 2)
	first, err := types.NewTipSet([]*types.BlockHeader{full.At(0)})
	require.NoError(t, err)
	second, err := types.NewTipSet([]*types.BlockHeader{full.At(1)})
	require.NoError(t, err)

	require.NoError(t, cs.PutTipSet(ctx, first))
	assert.True(t, requireHead(ctx, t, cs).Equals(first))

	require.NoError(t, cs.PutTipSet(ctx, second))
	assert.True(t, requireHead(ctx, t, cs).Equals(full))

	got, err := cs.GetTipSet(ctx, full.Key())
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
}

func TestHeadPersistsAcrossRestart(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	ds := dssync.MutexWrap(datastore.NewMapDatastore())

	cs := newChainStore(t, builder, chain.NewDatastoreHeadProvider(ds))
	head := builder.AppendManyOn(5, builder.AppendOn(builder.Genesis(), 2))
	require.NoError(t, cs.SetHeaviestTipSet(ctx, head))
	cs.Stop()

	rebooted := newChainStore(t, builder, chain.NewDatastoreHeadProvider(ds))
	got := requireHead(ctx, t, rebooted)
	assert.True(t, got.Equals(head))
	assert.Equal(t, head.Height(), got.Height())
}

func TestSetHeaviestTipSetWriteFailure(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	provider := mocks.NewMockHeaviestTipSetKeyProvider(ctrl)
	provider.EXPECT().HeaviestTipSetKey(gomock.Any()).Return(types.EmptyTSK, false, nil)
	provider.EXPECT().SetHeaviestTipSetKey(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	builder := chain.NewBuilder(t)
	cs := newChainStore(t, builder, provider)

	next := builder.AppendOn(builder.Genesis(), 1)
	assert.Error(t, cs.SetHeaviestTipSet(ctx, next))
	assert.True(t, requireHead(ctx, t, cs).Equals(builder.Genesis()))
}

func TestSubHeadChanges(t *testing.T) {
	tf.UnitTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	builder := chain.NewBuilder(t)
	cs := newChainStore(t, builder, nil)

	ch, err := cs.SubHeadChanges(ctx)
	require.NoError(t, err)

	current := requireNextChange(t, ch)
	require.Len(t, current, 1)
	assert.Equal(t, types.HCCurrent, current[0].Type)
	assert.True(t, current[0].Val.Equals(builder.Genesis()))

	next := builder.AppendOn(builder.Genesis(), 1)
	require.NoError(t, cs.SetHeaviestTipSet(ctx, next))

	applied := requireNextChange(t, ch)
	require.Len(t, applied, 1)
	assert.Equal(t, types.HCApply, applied[0].Type)
	assert.True(t, applied[0].Val.Equals(next))
}

func TestSubHeadChangesDropsForSlowReaders(t *testing.T) {
	tf.UnitTest(t)
	ctx, cancel := context.WithCancel(context.Background())

	builder := chain.NewBuilder(t)
	cs := newChainStore(t, builder, nil)

	ch, err := cs.SubHeadChanges(ctx)
	require.NoError(t, err)

	a := builder.AppendOn(builder.Genesis(), 1)
	b := builder.AppendOn(builder.Genesis(), 1)
	const published = 1000

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < published; i++ {
			next := a
			if i%2 == 1 {
				next = b
			}
			assert.NoError(t, cs.SetHeaviestTipSet(ctx, next))
		}
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("publishing blocked on a subscriber that does not read")
	}

	cancel()
	received := 0
	timeout := time.After(10 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				assert.Less(t, received, published+1)
				return
			}
			received++
		case <-timeout:
			t.Fatal("subscription was not closed after cancel")
		}
	}
}

func TestStopClosesSubscriptions(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	cs := newChainStore(t, builder, nil)

	ch, err := cs.SubHeadChanges(ctx)
	require.NoError(t, err)
	requireNextChange(t, ch)

	cs.Stop()
	cs.Stop()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not closed by stop")
	}

	// the head still moves, nothing is published
	next := builder.AppendOn(builder.Genesis(), 1)
	require.NoError(t, cs.SetHeaviestTipSet(ctx, next))
	assert.True(t, requireHead(ctx, t, cs).Equals(next))

	_, err = cs.SubHeadChanges(ctx)
	assert.Error(t, err)
}

func TestStopWhilePublishing(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	cs := newChainStore(t, builder, nil)

	a := builder.AppendOn(builder.Genesis(), 1)
	b := builder.AppendOn(builder.Genesis(), 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3*chain.HeadChangeCapacity; i++ {
			next := a
			if i%2 == 1 {
				next = b
			}
			assert.NoError(t, cs.SetHeaviestTipSet(ctx, next))
		}
	}()
	cs.Stop()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("head updates blocked after stop")
	}
}

// batchCountingStore records the size of every PutMany and fails the calls
// listed in failAt.
type batchCountingStore struct {
	blockstoreutil.Blockstore
	batches []int
	failAt  map[int]bool
}

func (s *batchCountingStore) PutMany(ctx context.Context, blks []blocks.Block) error {
	call := len(s.batches)
	s.batches = append(s.batches, len(blks))
	if s.failAt[call] {
		return errors.New("batch rejected")
	}
	return s.Blockstore.PutMany(ctx, blks)
}

func TestPersistBlockHeadersBatches(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	headers := make([]*types.BlockHeader, 600)
	for i := range headers {
		headers[i] = testhelpers.NewTestBlockHeader(t, abi.ChainEpoch(i+1), byte(i))
	}

	t.Run("splits into batches", func(t *testing.T) {
		bs := &batchCountingStore{Blockstore: blockstoreutil.NewTemporary()}
		require.NoError(t, chain.PersistBlockHeaders(ctx, bs, headers))
		assert.Equal(t, []int{chain.PersistBatchSize, chain.PersistBatchSize, 88}, bs.batches)

		has, err := bs.Has(ctx, headers[599].Cid())
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("keeps going and reports every failed batch", func(t *testing.T) {
		bs := &batchCountingStore{
			Blockstore: blockstoreutil.NewTemporary(),
			failAt:     map[int]bool{0: true, 2: true},
		}
		err := chain.PersistBlockHeaders(ctx, bs, headers)
		require.Error(t, err)
		assert.Len(t, bs.batches, 3)

		var merr *multierror.Error
		require.ErrorAs(t, err, &merr)
		assert.Len(t, merr.Errors, 2)

		// the middle batch still landed
		has, err := bs.Has(ctx, headers[chain.PersistBatchSize].Cid())
		require.NoError(t, err)
		assert.True(t, has)
		has, err = bs.Has(ctx, headers[0].Cid())
		require.NoError(t, err)
		assert.False(t, has)
	})
}

func TestValidatedBlocks(t *testing.T) {
	tf.UnitTest(t)

	builder := chain.NewBuilder(t)
	cs := newChainStore(t, builder, nil)

	c := builder.AppendOn(builder.Genesis(), 1).At(0).Cid()
	assert.False(t, cs.IsBlockValidated(c))

	cs.MarkBlockAsValidated(c)
	assert.True(t, cs.IsBlockValidated(c))
	cs.MarkBlockAsValidated(c)
	assert.True(t, cs.IsBlockValidated(c))

	cs.UnmarkBlockAsValidated(c)
	assert.False(t, cs.IsBlockValidated(c))
	cs.UnmarkBlockAsValidated(c)
	assert.False(t, cs.IsBlockValidated(c))
}

func TestStoreGetTipSetByHeight(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	cs := newChainStore(t, builder, nil)

	tss := builder.BuildChain(60, 5, 33, 34)
	head := tss[len(tss)-1]
	require.NoError(t, cs.SetHeaviestTipSet(ctx, head))

	ts, err := cs.GetTipSetByHeight(ctx, head, 5, false)
	require.NoError(t, err)
	assert.Equal(t, abi.ChainEpoch(6), ts.Height())

	ts, err = cs.GetTipSetByHeight(ctx, head, 5, true)
	require.NoError(t, err)
	assert.Equal(t, abi.ChainEpoch(4), ts.Height())

	// nil start means the heaviest tipset
	ts, err = cs.GetTipSetByHeight(ctx, nil, 33, true)
	require.NoError(t, err)
	assert.Equal(t, abi.ChainEpoch(32), ts.Height())

	ts, err = cs.GetTipSetByHeight(ctx, nil, head.Height(), false)
	require.NoError(t, err)
	assert.True(t, ts.Equals(head))

	_, err = cs.GetTipSetByHeight(ctx, head, head.Height()+1, false)
	assert.Error(t, err)
}

func TestGetTipSetEmptyKeyIsHead(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	cs := newChainStore(t, builder, nil)

	head := builder.AppendManyOn(3, builder.Genesis())
	require.NoError(t, cs.SetHeaviestTipSet(ctx, head))

	got, err := cs.GetTipSet(ctx, types.EmptyTSK)
	require.NoError(t, err)
	assert.True(t, got.Equals(head))

	_, err = cs.GetTipSet(ctx, types.NewTipSetKey(builder.AppendOn(head, 1).At(0).Cid(), head.At(0).Cid()))
	assert.Error(t, err)
}
