package chain

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/network"
	"github.com/ipfs/go-cid"
	"go.opencensus.io/trace"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-chain/pkg/config"
	"github.com/filecoin-project/venus-chain/pkg/constants"
	"github.com/filecoin-project/venus-chain/pkg/metrics/tracing"
	"github.com/filecoin-project/venus-chain/pkg/types"
)

//go:generate go run github.com/golang/mock/mockgen@v1.6.0 -destination=../testhelpers/mocks/mock_chain.go -package=mocks . StateComputer,HeaviestTipSetKeyProvider

// StateComputer executes every message from genesis up to ts and returns the
// resulting state root.
type StateComputer interface {
	ComputeStateRoot(ctx context.Context, ts *types.TipSet) (cid.Cid, error)
}

// LookbackDistance is the winning PoSt sector set lookback at round.
func LookbackDistance(netParams *config.NetworkParamsConfig, round abi.ChainEpoch) abi.ChainEpoch {
	if netParams.NetworkVersion(round) <= network.Version3 {
		return constants.WinningPoStSectorSetLookbackV3
	}
	if netParams.ChainFinality > 0 {
		return netParams.ChainFinality
	}
	return constants.Finality
}

// GetLookbackTipSetForRound returns the tipset and state root that blocks mined
// at round are validated against, looking back from ts.
func GetLookbackTipSetForRound(ctx context.Context,
	ci *ChainIndex,
	netParams *config.NetworkParamsConfig,
	sc StateComputer,
	ts *types.TipSet,
	round abi.ChainEpoch,
) (_ *types.TipSet, _ cid.Cid, err error) {
	ctx, span := trace.StartSpan(ctx, "Chain.GetLookbackTipSetForRound")
	span.AddAttributes(trace.Int64Attribute("round", int64(round)))
	defer tracing.AddErrorEndSpan(ctx, span, &err)

	var lbr abi.ChainEpoch

	lb := LookbackDistance(netParams, round)
	if round > lb {
		lbr = round - lb
	}

	// more null blocks than our lookback
	h := ts.Height()
	if lbr >= h {
		// This should never happen at this point, but may happen before
		// network version 3 (where the lookback was only 10 blocks).
		if sc == nil {
			return nil, cid.Undef, xerrors.Errorf("lookback round %d at or above head %d and no state computer", lbr, h)
		}
		st, err := sc.ComputeStateRoot(ctx, ts)
		if err != nil {
			return nil, cid.Undef, xerrors.Errorf("computing state root of %s: %w", ts.Key(), err)
		}
		return ts, st, nil
	}

	// Get the tipset after the lookback tipset, or the next non-null one.
	nextTS, err := ci.GetTipSetByHeight(ctx, ts, lbr+1)
	if err != nil {
		return nil, cid.Undef, xerrors.Errorf("failed to get lookback tipset+1: %w", err)
	}

	nextTh := nextTS.Height()
	if lbr > nextTh {
		return nil, cid.Undef, xerrors.Errorf("failed to find non-null tipset %s (%d) which is known to exist, found %s (%d)", ts.Key(), h, nextTS.Key(), nextTh)
	}

	lbts, err := ci.LoadTipSet(ctx, nextTS.Parents())
	if err != nil {
		return nil, cid.Undef, xerrors.Errorf("failed to resolve lookback tipset: %w", err)
	}

	return lbts, nextTS.ParentState(), nil
}

// GetLookbackTipSetForRound get loop back tipset and state root
func (store *Store) GetLookbackTipSetForRound(ctx context.Context, ts *types.TipSet, round abi.ChainEpoch) (*types.TipSet, cid.Cid, error) {
	return GetLookbackTipSetForRound(ctx, store.chainIndex, store.netParams, store.stateComputer, ts, round)
}
