package chain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-chain/pkg/chain"
	tf "github.com/filecoin-project/venus-chain/pkg/testhelpers/testflags"
	"github.com/filecoin-project/venus-chain/pkg/types"
)

func TestTipSetTrackerExpand(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	full := builder.AppendOn(builder.AppendOn(builder.Genesis(), 1), 3)
	// same height as full, different parents
	other := builder.AppendOn(builder.AppendOn(builder.Genesis(), 1), 1)
	require.Equal(t, full.Height(), other.Height())

	tracker := chain.NewTipSetTracker(builder.Blockstore(), 0)
	for _, blk := range full.Blocks() {
		tracker.Add(ctx, blk)
		tracker.Add(ctx, blk)
	}
	tracker.Add(ctx, other.At(0))

	got, err := tracker.Expand(ctx, full.At(1))
	require.NoError(t, err)
	assert.True(t, got.Equals(full))

	got, err = tracker.Expand(ctx, other.At(0))
	require.NoError(t, err)
	assert.True(t, got.Equals(other))
}

func TestTipSetTrackerSkipsDuplicateMiners(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	honest := builder.AppendOn(builder.Genesis(), 1)
	equivocation := builder.BuildOn(builder.Genesis(), 1, func(bb *chain.BlockBuilder, _ int) {
		bb.SetMiner(honest.At(0).Miner)
	})
	require.False(t, honest.Equals(equivocation))

	tracker := chain.NewTipSetTracker(builder.Blockstore(), 0)
	tracker.Add(ctx, honest.At(0))
	tracker.Add(ctx, equivocation.At(0))

	got, err := tracker.Expand(ctx, honest.At(0))
	require.NoError(t, err)
	assert.True(t, got.Equals(honest))
}

func TestTipSetTrackerPrunes(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	full := builder.AppendOn(builder.Genesis(), 2)
	head := builder.AppendManyOn(10, full)

	tracker := chain.NewTipSetTracker(builder.Blockstore(), 5)
	for _, blk := range full.Blocks() {
		tracker.Add(ctx, blk)
	}
	tracker.Add(ctx, head.At(0))

	single, err := types.NewTipSet([]*types.BlockHeader{full.At(0)})
	require.NoError(t, err)
	got, err := tracker.Expand(ctx, full.At(0))
	require.NoError(t, err)
	assert.True(t, got.Equals(single))
}

func TestTipSetTrackerIgnoresStaleHeaders(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	builder := chain.NewBuilder(t)
	full := builder.AppendOn(builder.Genesis(), 2)
	head := builder.AppendManyOn(10, full)

	tracker := chain.NewTipSetTracker(builder.Blockstore(), 5)
	tracker.Add(ctx, head.At(0))
	// both siblings arrive after the head moved past the window
	for _, blk := range full.Blocks() {
		tracker.Add(ctx, blk)
	}

	single, err := types.NewTipSet([]*types.BlockHeader{full.At(1)})
	require.NoError(t, err)
	got, err := tracker.Expand(ctx, full.At(1))
	require.NoError(t, err)
	assert.True(t, got.Equals(single))
}
