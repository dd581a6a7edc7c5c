package chain

import (
	"context"
	"sync"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-chain/pkg/constants"
	"github.com/filecoin-project/venus-chain/pkg/types"
	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

// TipSetTracker remembers received headers so a single header can be grown
// into the largest tipset known for its epoch and parents.
type TipSetTracker interface {
	Add(ctx context.Context, header *types.BlockHeader)
	Expand(ctx context.Context, header *types.BlockHeader) (*types.TipSet, error)
}

type tipSetTracker struct {
	lk sync.Mutex

	bs       blockstoreutil.Blockstore
	byHeight map[abi.ChainEpoch][]cid.Cid
	newest   abi.ChainEpoch
	window   abi.ChainEpoch
}

var _ TipSetTracker = (*tipSetTracker)(nil)

// NewTipSetTracker tracks headers, dropping those more than window epochs
// below the newest one seen. A window of zero means constants.Finality.
func NewTipSetTracker(bs blockstoreutil.Blockstore, window abi.ChainEpoch) TipSetTracker {
	if window <= 0 {
		window = constants.Finality
	}
	return &tipSetTracker{
		bs:       bs,
		byHeight: make(map[abi.ChainEpoch][]cid.Cid),
		window:   window,
	}
}

// Add records header. Headers must already be in the blockstore. Headers
// already outside the window are not kept.
func (tt *tipSetTracker) Add(_ context.Context, header *types.BlockHeader) {
	tt.lk.Lock()
	defer tt.lk.Unlock()

	if header.Height < tt.newest-tt.window {
		return
	}

	c := header.Cid()
	others := tt.byHeight[header.Height]
	for _, oc := range others {
		if oc == c {
			return
		}
	}
	tt.byHeight[header.Height] = append(others, c)

	if header.Height > tt.newest {
		tt.newest = header.Height
		for h := range tt.byHeight {
			if h < tt.newest-tt.window {
				delete(tt.byHeight, h)
			}
		}
	}
}

// Expand returns the tipset of header and every tracked header at the same
// height with the same parents. Only the first header of each miner is used.
func (tt *tipSetTracker) Expand(ctx context.Context, header *types.BlockHeader) (*types.TipSet, error) {
	tt.lk.Lock()
	tracked := append([]cid.Cid(nil), tt.byHeight[header.Height]...)
	tt.lk.Unlock()

	self := header.Cid()
	miners := map[address.Address]struct{}{header.Miner: {}}
	all := []*types.BlockHeader{header}
	for _, c := range tracked {
		if c == self {
			continue
		}

		h, err := LoadBlockHeader(ctx, tt.bs, c)
		if err != nil {
			return nil, xerrors.Errorf("expanding tipset of %s: %w", self, err)
		}
		if _, dup := miners[h.Miner]; dup {
			continue
		}
		if !types.NewTipSetKey(h.Parents...).Equals(types.NewTipSetKey(header.Parents...)) {
			continue
		}

		miners[h.Miner] = struct{}{}
		all = append(all, h)
	}

	return types.NewTipSet(all)
}
