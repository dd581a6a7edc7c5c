package testhelpers

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-chain/pkg/state"
	"github.com/filecoin-project/venus-chain/pkg/types"
)

// RequireMakeStateTree writes acts into a fresh state tree in cst and returns
// the flushed root along with the tree.
func RequireMakeStateTree(t *testing.T, cst cbor.IpldStore, acts map[address.Address]*types.Actor) (cid.Cid, *state.State) {
	ctx := context.Background()
	tree, err := state.NewState(cst)
	require.NoError(t, err)

	for addr, act := range acts {
		require.NoError(t, tree.SetActor(ctx, addr, act), "setting actor %s", addr)
	}

	root, err := tree.Flush(ctx)
	require.NoError(t, err)
	return root, tree
}
