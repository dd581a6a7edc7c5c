package chain

import (
	"context"

	"github.com/filecoin-project/venus-chain/pkg/types"
)

type tipSetLoader func(context.Context, types.TipSetKey) (*types.TipSet, error)

// IsReorg reports whether moving the head from old to new drops old from the
// chain. Growing old into a bigger tipset at the same height is not a reorg.
func IsReorg(old, new, commonAncestor *types.TipSet) bool {
	if new.Key().ContainsAll(old.Key()) {
		return false
	}
	return !commonAncestor.Equals(old)
}

// ReorgOps walks a and b back to their common ancestor. It returns the tipsets
// only on a's side and only on b's side, newest first, and the ancestor.
func ReorgOps(ctx context.Context, load tipSetLoader, a, b *types.TipSet) (dropped, added []*types.TipSet, common *types.TipSet, err error) {
	left, right := a, b
	for !left.Equals(right) {
		// step back whichever side is higher; on a tie step back b
		if left.Height() > right.Height() {
			dropped = append(dropped, left)
			if left, err = load(ctx, left.Parents()); err != nil {
				return nil, nil, nil, err
			}
			continue
		}
		added = append(added, right)
		parent, perr := load(ctx, right.Parents())
		if perr != nil {
			log.Infof("loading parents of %s: %s", right, perr)
			return nil, nil, nil, perr
		}
		right = parent
	}
	return dropped, added, left, nil
}
