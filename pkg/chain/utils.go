package chain

import (
	"context"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

// PutMessage stores anything that knows its own block form, usually a
// message or a TxMeta, and returns the stored cid.
func PutMessage(ctx context.Context, bs blockstoreutil.Blockstore, m interface {
	ToStorageBlock() (blocks.Block, error)
}) (cid.Cid, error) {
	blk, err := m.ToStorageBlock()
	if err != nil {
		return cid.Undef, err
	}
	return blk.Cid(), bs.Put(ctx, blk)
}

func putRaw(ctx context.Context, bs blockstoreutil.Blockstore, c cid.Cid, raw []byte) error {
	blk, err := blocks.NewBlockWithCid(raw, c)
	if err != nil {
		return err
	}
	return bs.Put(ctx, blk)
}
