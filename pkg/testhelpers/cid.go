package testhelpers

import (
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
)

// CidFromString generates a cid from an arbitrary string.
func CidFromString(t *testing.T, input string) cid.Cid {
	c, err := abi.CidBuilder.Sum([]byte(input))
	require.NoError(t, err)
	return c
}

// EmptyMessagesCID stands in for the TxMeta of a block that is never loaded.
var EmptyMessagesCID = mustSum("empty messages")

// EmptyReceiptsCID stands in for the receipts root of a block.
var EmptyReceiptsCID = mustSum("empty receipts")

// FakeStateRoot stands in for a state root that is never loaded.
var FakeStateRoot = mustSum("fake state root")

func mustSum(s string) cid.Cid {
	c, err := abi.CidBuilder.Sum([]byte(s))
	if err != nil {
		panic(err)
	}
	return c
}
