package constants

import (
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// DefaultCidBuilder is the builder used for headers, messages and tx metas.
var DefaultCidBuilder = cid.V1Builder{Codec: cid.DagCBOR, MhType: multihash.BLAKE2B_MIN + 31}

// constants for Weight calculation
// The ratio of weight contributed by short-term vs long-term factors in a given round
const (
	WRatioNum = int64(1)
	WRatioDen = uint64(2)
)

// ExpectedLeadersPerEpoch is the mean number of winners per epoch.
const ExpectedLeadersPerEpoch = int64(5)

// Epochs
const (
	Finality = abi.ChainEpoch(900)

	// WinningPoStSectorSetLookbackV3 is the lookback used by consensus while the
	// network version is at most network.Version3.
	WinningPoStSectorSetLookbackV3 = abi.ChainEpoch(10)
)

// BlockMessageLimit bounds the number of messages read out of a single block meta.
const BlockMessageLimit = 10000
