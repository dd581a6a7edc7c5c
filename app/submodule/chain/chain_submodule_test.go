package chain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainmod "github.com/filecoin-project/venus-chain/app/submodule/chain"
	"github.com/filecoin-project/venus-chain/pkg/chain"
	"github.com/filecoin-project/venus-chain/pkg/repo"
	tf "github.com/filecoin-project/venus-chain/pkg/testhelpers/testflags"
	"github.com/filecoin-project/venus-chain/pkg/types"
)

func TestChainSubmoduleRequiresGenesis(t *testing.T) {
	tf.UnitTest(t)

	_, err := chainmod.NewChainSubmodule(context.Background(), repo.NewMemRepo())
	assert.Error(t, err)
}

func TestChainSubmoduleLifecycle(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	r := repo.NewMemRepo()
	r.Config().Eth.EthTxHashMappingLifetimeDays = 1

	genesis, err := chainmod.MakeDevnetGenesis(ctx, r.Blockstore(), 1000)
	require.NoError(t, err)
	genCid, err := chainmod.ImportGenesis(ctx, r.Blockstore(), r.ChainDatastore(), genesis)
	require.NoError(t, err)

	got, err := chainmod.ReadGenesisCid(ctx, r.ChainDatastore())
	require.NoError(t, err)
	assert.Equal(t, genCid, got)

	sub, err := chainmod.NewChainSubmodule(ctx, r)
	require.NoError(t, err)
	require.NoError(t, sub.Start(ctx))

	head, err := sub.ChainReader.GetHeaviestTipSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, genCid, head.At(0).Cid())

	// a child of genesis outweighs it under the EC weight
	child := &types.BlockHeader{
		Miner:                 genesis.Miner,
		Ticket:                &types.Ticket{VRFProof: []byte("child")},
		ElectionProof:         &types.ElectionProof{WinCount: 1},
		Parents:               head.Cids(),
		ParentWeight:          genesis.ParentWeight,
		Height:                1,
		ParentStateRoot:       genesis.ParentStateRoot,
		ParentMessageReceipts: genesis.ParentMessageReceipts,
		Messages:              genesis.Messages,
		Timestamp:             1030,
		ParentBaseFee:         genesis.ParentBaseFee,
	}
	childWeight, err := sub.Selector.Weight(ctx, r.Blockstore(), head)
	require.NoError(t, err)
	child.ParentWeight = childWeight

	ts, err := types.NewTipSet([]*types.BlockHeader{child})
	require.NoError(t, err)
	require.NoError(t, sub.ChainReader.PutTipSet(ctx, ts))

	head, err = sub.ChainReader.GetHeaviestTipSet(ctx)
	require.NoError(t, err)
	assert.True(t, head.Equals(ts))

	msgs, err := sub.MessageStore.MessagesForTipSet(ctx, ts)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	sub.Stop(ctx)

	// the head survives reopening the repo
	reopened, err := chainmod.NewChainSubmodule(ctx, r, chain.WithTipSetTracker(chain.NewTipSetTracker(r.Blockstore(), 10)))
	require.NoError(t, err)
	defer reopened.Stop(ctx)
	head, err = reopened.ChainReader.GetHeaviestTipSet(ctx)
	require.NoError(t, err)
	assert.True(t, head.Equals(ts))
}
