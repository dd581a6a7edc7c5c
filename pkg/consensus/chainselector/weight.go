// Package chainselector weighs tipsets under expected consensus.
package chainselector

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/filecoin-project/go-state-types/abi"
	fbig "github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/venus-chain/pkg/constants"
	"github.com/filecoin-project/venus-chain/pkg/types"
	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

// NetworkPower is the total power of the network at some state.
type NetworkPower struct {
	RawBytePower         abi.StoragePower
	QualityAdjustedPower abi.StoragePower
}

// PowerStateView reads the network power out of a parent state.
type PowerStateView interface {
	PowerNetworkTotal(ctx context.Context) (*NetworkPower, error)
}

// PowerStateViewer opens a PowerStateView over the state at root.
type PowerStateViewer interface {
	PowerStateView(bs blockstoreutil.Blockstore, root cid.Cid) PowerStateView
}

// ChainSelector weighs tipsets.
type ChainSelector struct {
	viewer PowerStateViewer
}

// NewChainSelector is the constructor for chain selection module.
func NewChainSelector(viewer PowerStateViewer) *ChainSelector {
	return &ChainSelector{viewer: viewer}
}

// Weight is the EC weight of ts, computed from its parent weight and the
// network power recorded in its parent state.
func (c *ChainSelector) Weight(ctx context.Context, bs blockstoreutil.Blockstore, ts *types.TipSet) (fbig.Int, error) {
	root := ts.At(0).ParentStateRoot
	if !root.Defined() {
		return fbig.Zero(), errors.New("tipset has no parent state to weigh against")
	}
	return weight(ctx, c.viewer.PowerStateView(bs, root), ts)
}

// IsHeavier reports whether a outweighs b. Equal weights go to the tipset
// holding the smaller ticket.
func (c *ChainSelector) IsHeavier(ctx context.Context, bs blockstoreutil.Blockstore, a, b *types.TipSet) (bool, error) {
	wa, err := c.Weight(ctx, bs, a)
	if err != nil {
		return false, err
	}
	wb, err := c.Weight(ctx, bs, b)
	if err != nil {
		return false, err
	}

	if cmp := wa.Cmp(wb.Int); cmp != 0 || a.Equals(b) {
		return cmp > 0, nil
	}
	return a.MinTicketBlock().Ticket.Less(b.MinTicketBlock().Ticket), nil
}

// weight computes
//
//	parentWeight + log2(P)<<8 + log2(P) * wins * wRatioNum<<8 / (e * wRatioDen)
//
// where P is the quality adjusted network power and wins sums the win counts
// of the tipset's election proofs.
func weight(ctx context.Context, view PowerStateView, ts *types.TipSet) (fbig.Int, error) {
	total, err := view.PowerNetworkTotal(ctx)
	if err != nil {
		return fbig.Zero(), err
	}
	power := total.QualityAdjustedPower
	if power.Int == nil || power.Sign() <= 0 {
		return fbig.Zero(), fmt.Errorf("network power is %s, cannot weigh %s", power, ts.Key())
	}
	log2P := int64(power.BitLen() - 1)

	var wins int64
	for _, blk := range ts.Blocks() {
		if blk.ElectionProof != nil {
			wins += blk.ElectionProof.WinCount
		}
	}

	out := new(big.Int).Set(ts.ParentWeight().Int)
	out.Add(out, big.NewInt(log2P<<8))

	bonus := big.NewInt(log2P * constants.WRatioNum)
	bonus.Lsh(bonus, 8)
	bonus.Mul(bonus, big.NewInt(wins))
	bonus.Div(bonus, big.NewInt(int64(uint64(constants.ExpectedLeadersPerEpoch)*constants.WRatioDen)))

	return fbig.Int{Int: out.Add(out, bonus)}, nil
}

// FixedPowerViewer reports the same network power for every state.
// Devnets and tests use it in place of reading the power actor.
type FixedPowerViewer struct {
	Power abi.StoragePower
}

// PowerStateView implements PowerStateViewer.
func (f FixedPowerViewer) PowerStateView(_ blockstoreutil.Blockstore, _ cid.Cid) PowerStateView {
	return f
}

// PowerNetworkTotal implements PowerStateView.
func (f FixedPowerViewer) PowerNetworkTotal(_ context.Context) (*NetworkPower, error) {
	return &NetworkPower{RawBytePower: f.Power, QualityAdjustedPower: f.Power}, nil
}
