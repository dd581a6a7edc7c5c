package chain

import (
	"context"
	"encoding/json"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/pkg/errors"

	"github.com/filecoin-project/venus-chain/pkg/chain"
	"github.com/filecoin-project/venus-chain/pkg/state"
	"github.com/filecoin-project/venus-chain/pkg/types"
	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

// GenesisKey is the key at which the genesis Cid is written in the datastore.
var GenesisKey = datastore.NewKey("/consensus/genesisCid")

// MakeDevnetGenesis writes an empty state tree and message list to bs and
// returns a genesis header on top of them.
func MakeDevnetGenesis(ctx context.Context, bs blockstoreutil.Blockstore, timestamp uint64) (*types.BlockHeader, error) {
	st, err := state.NewState(cbor.NewCborStore(bs))
	if err != nil {
		return nil, err
	}
	root, err := st.Flush(ctx)
	if err != nil {
		return nil, err
	}

	emptyMeta, err := chain.NewMessageStore(bs).StoreMessages(ctx, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to store empty message list")
	}

	miner, err := address.NewIDAddress(0)
	if err != nil {
		return nil, err
	}

	return &types.BlockHeader{
		Miner:                 miner,
		Ticket:                &types.Ticket{VRFProof: []byte("genesis")},
		ElectionProof:         &types.ElectionProof{WinCount: 1},
		ParentWeight:          big.Zero(),
		Height:                abi.ChainEpoch(0),
		ParentStateRoot:       root,
		ParentMessageReceipts: emptyMeta,
		Messages:              emptyMeta,
		Timestamp:             timestamp,
		ParentBaseFee:         big.NewInt(100),
	}, nil
}

// ImportGenesis stores the genesis header and records its cid in ds.
func ImportGenesis(ctx context.Context, bs blockstoreutil.Blockstore, ds datastore.Datastore, genesis *types.BlockHeader) (cid.Cid, error) {
	if genesis.Height != 0 {
		return cid.Undef, errors.Errorf("genesis must be at height 0, got %d", genesis.Height)
	}
	if err := chain.PersistBlockHeaders(ctx, bs, []*types.BlockHeader{genesis}); err != nil {
		return cid.Undef, errors.Wrap(err, "failed to write genesis block")
	}

	c := genesis.Cid()
	val, err := json.Marshal(c)
	if err != nil {
		return cid.Undef, err
	}
	if err := ds.Put(ctx, GenesisKey, val); err != nil {
		return cid.Undef, errors.Wrap(err, "failed to write genesis key")
	}
	return c, nil
}

// ReadGenesisCid is a helper function that queries the provided datastore for
// an entry with the genesisKey cid, returning if found.
func ReadGenesisCid(ctx context.Context, ds datastore.Datastore) (cid.Cid, error) {
	bb, err := ds.Get(ctx, GenesisKey)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "failed to read genesisKey")
	}

	var c cid.Cid
	err = json.Unmarshal(bb, &c)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "failed to cast genesisCid")
	}
	return c, nil
}
