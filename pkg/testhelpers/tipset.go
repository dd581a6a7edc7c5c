package testhelpers

import (
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-chain/pkg/types"
)

// RequireNewTipSet instantiates and returns a new tipset of the given blocks
// and requires that the setup validation succeed.
func RequireNewTipSet(t *testing.T, blks ...*types.BlockHeader) *types.TipSet {
	ts, err := types.NewTipSet(blks)
	require.NoError(t, err)
	return ts
}

// NewTestBlockHeader returns a header with every cid field set, so it encodes.
func NewTestBlockHeader(t *testing.T, height abi.ChainEpoch, ticket byte) *types.BlockHeader {
	return &types.BlockHeader{
		Miner:                 RequireIDAddress(t, 1000+int(ticket)),
		Ticket:                &types.Ticket{VRFProof: []byte{ticket}},
		ElectionProof:         &types.ElectionProof{WinCount: 1, VRFProof: []byte{ticket}},
		ParentWeight:          big.NewInt(int64(height)),
		Height:                height,
		ParentStateRoot:       FakeStateRoot,
		ParentMessageReceipts: EmptyReceiptsCID,
		Messages:              EmptyMessagesCID,
		ParentBaseFee:         big.NewInt(100),
	}
}
