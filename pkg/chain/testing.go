package chain

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-chain/pkg/state"
	"github.com/filecoin-project/venus-chain/pkg/types"
	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

// TestWeight weighs a tipset as its parent weight plus its block count.
func TestWeight(_ context.Context, _ blockstoreutil.Blockstore, ts *types.TipSet) (big.Int, error) {
	return big.Add(ts.ParentWeight(), big.NewInt(int64(ts.Len()))), nil
}

// Builder builds fake chains into a blockstore for tests.
type Builder struct {
	t  *testing.T
	bs blockstoreutil.Blockstore
	ms *MessageStore

	genesis   *types.TipSet
	stateRoot cid.Cid
	emptyMeta cid.Cid
	seq       uint64
}

// NewBuilder creates a builder with an in-memory blockstore, an empty state
// tree and a single block genesis tipset.
func NewBuilder(t *testing.T) *Builder {
	ctx := context.Background()
	bs := blockstoreutil.NewTemporary()

	st, err := state.NewState(cbor.NewCborStore(bs))
	require.NoError(t, err)
	root, err := st.Flush(ctx)
	require.NoError(t, err)

	ms := NewMessageStore(bs)
	emptyMeta, err := ms.StoreMessages(ctx, nil, nil)
	require.NoError(t, err)

	f := &Builder{
		t:         t,
		bs:        bs,
		ms:        ms,
		stateRoot: root,
		emptyMeta: emptyMeta,
	}
	f.genesis = f.BuildOn(nil, 1, nil)
	return f
}

// Blockstore is where the built headers and messages live.
func (f *Builder) Blockstore() blockstoreutil.Blockstore {
	return f.bs
}

// Genesis returns the genesis tipset.
func (f *Builder) Genesis() *types.TipSet {
	return f.genesis
}

// StateRoot is the parent state of built blocks unless overridden.
func (f *Builder) StateRoot() cid.Cid {
	return f.stateRoot
}

// SetStateRoot changes the parent state of subsequently built blocks.
func (f *Builder) SetStateRoot(root cid.Cid) {
	f.stateRoot = root
}

// BlockBuilder mutates a block under construction.
type BlockBuilder struct {
	t     *testing.T
	ms    *MessageStore
	block *types.BlockHeader
}

// SetHeight sets the height of the block, leaving null rounds below it.
func (bb *BlockBuilder) SetHeight(h abi.ChainEpoch) {
	bb.block.Height = h
}

// SetTimestamp sets the block timestamp.
func (bb *BlockBuilder) SetTimestamp(ts uint64) {
	bb.block.Timestamp = ts
}

// SetMiner sets the block miner.
func (bb *BlockBuilder) SetMiner(miner address.Address) {
	bb.block.Miner = miner
}

// SetStateRoot sets the parent state root.
func (bb *BlockBuilder) SetStateRoot(root cid.Cid) {
	bb.block.ParentStateRoot = root
}

// AddMessages stores the messages and points the block at them.
func (bb *BlockBuilder) AddMessages(secpmsgs []*types.SignedMessage, blsMsgs []*types.Message) {
	meta, err := bb.ms.StoreMessages(context.Background(), secpmsgs, blsMsgs)
	require.NoError(bb.t, err)
	bb.block.Messages = meta
}

// BuildOn creates and stores a tipset of width blocks on top of parent, or a
// genesis tipset when parent is nil. build may adjust each block.
func (f *Builder) BuildOn(parent *types.TipSet, width int, build func(bb *BlockBuilder, i int)) *types.TipSet {
	height := abi.ChainEpoch(0)
	parentKey := types.EmptyTSK
	parentWeight := big.Zero()
	if parent != nil {
		height = parent.Height() + 1
		parentKey = parent.Key()
		w, err := TestWeight(context.Background(), f.bs, parent)
		require.NoError(f.t, err)
		parentWeight = w
	}

	blks := make([]*types.BlockHeader, width)
	for i := 0; i < width; i++ {
		f.seq++
		miner, err := address.NewIDAddress(1000 + f.seq)
		require.NoError(f.t, err)
		ticket := []byte{byte(f.seq >> 8), byte(f.seq), byte(i)}

		blk := &types.BlockHeader{
			Miner:                 miner,
			Ticket:                &types.Ticket{VRFProof: ticket},
			ElectionProof:         &types.ElectionProof{WinCount: 1, VRFProof: ticket},
			Parents:               parentKey.Cids(),
			ParentWeight:          parentWeight,
			Height:                height,
			ParentStateRoot:       f.stateRoot,
			ParentMessageReceipts: f.emptyMeta,
			Messages:              f.emptyMeta,
			Timestamp:             uint64(height) * 30,
			ParentBaseFee:         big.NewInt(100),
		}
		if build != nil {
			build(&BlockBuilder{t: f.t, ms: f.ms, block: blk}, i)
		}
		blks[i] = blk
	}

	ts, err := types.NewTipSet(blks)
	require.NoError(f.t, err)
	require.NoError(f.t, PersistBlockHeaders(context.Background(), f.bs, ts.Blocks()))
	return ts
}

// AppendOn creates a tipset of width blocks at the height after parent.
func (f *Builder) AppendOn(parent *types.TipSet, width int) *types.TipSet {
	return f.BuildOn(parent, width, nil)
}

// AppendManyOn appends a linear chain of n single block tipsets to parent,
// returning the last one.
func (f *Builder) AppendManyOn(n int, parent *types.TipSet) *types.TipSet {
	for i := 0; i < n; i++ {
		parent = f.AppendOn(parent, 1)
	}
	return parent
}

// AppendAt creates a single block tipset at height h on top of parent,
// leaving null rounds between them.
func (f *Builder) AppendAt(parent *types.TipSet, h abi.ChainEpoch) *types.TipSet {
	return f.BuildOn(parent, 1, func(bb *BlockBuilder, _ int) {
		bb.SetHeight(h)
	})
}

// BuildChain builds a linear chain from genesis with a tipset at every height
// up to and including head, except the null heights.
func (f *Builder) BuildChain(head abi.ChainEpoch, nulls ...abi.ChainEpoch) []*types.TipSet {
	isNull := make(map[abi.ChainEpoch]bool, len(nulls))
	for _, n := range nulls {
		isNull[n] = true
	}

	chain := []*types.TipSet{f.genesis}
	cur := f.genesis
	for h := abi.ChainEpoch(1); h <= head; h++ {
		if isNull[h] {
			continue
		}
		cur = f.AppendAt(cur, h)
		chain = append(chain, cur)
	}
	return chain
}
