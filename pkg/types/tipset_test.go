package types_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-chain/pkg/testhelpers"
	tf "github.com/filecoin-project/venus-chain/pkg/testhelpers/testflags"
	"github.com/filecoin-project/venus-chain/pkg/types"
)

func TestTipSetConstruction(t *testing.T) {
	tf.UnitTest(t)

	parent := testhelpers.CidFromString(t, "parent")
	b1 := testhelpers.NewTestBlockHeader(t, 5, 1)
	b2 := testhelpers.NewTestBlockHeader(t, 5, 2)
	b3 := testhelpers.NewTestBlockHeader(t, 5, 3)
	for _, b := range []*types.BlockHeader{b1, b2, b3} {
		b.Parents = []cid.Cid{parent}
		b.ParentWeight = big.NewInt(10)
	}

	t.Run("blocks are ordered by ticket regardless of input order", func(t *testing.T) {
		ts1 := testhelpers.RequireNewTipSet(t, b1, b2, b3)
		ts2 := testhelpers.RequireNewTipSet(t, b3, b1, b2)
		assert.True(t, ts1.Equals(ts2))
		assert.Equal(t, ts1.Key(), ts2.Key())
		assert.Equal(t, 3, ts1.Len())
		assert.Equal(t, types.NewTipSetKey(parent), ts1.Parents())
		assert.Equal(t, b1.ParentStateRoot, ts1.ParentState())
		assert.True(t, ts1.MinTicketBlock().Equals(ts1.At(0)))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := types.NewTipSet(nil)
		assert.Error(t, err)
	})

	t.Run("mismatched height", func(t *testing.T) {
		other := testhelpers.NewTestBlockHeader(t, 6, 4)
		other.Parents = []cid.Cid{parent}
		other.ParentWeight = big.NewInt(10)
		_, err := types.NewTipSet([]*types.BlockHeader{b1, other})
		assert.Error(t, err)
	})

	t.Run("mismatched parents", func(t *testing.T) {
		other := testhelpers.NewTestBlockHeader(t, 5, 4)
		other.Parents = []cid.Cid{testhelpers.CidFromString(t, "other parent")}
		other.ParentWeight = big.NewInt(10)
		_, err := types.NewTipSet([]*types.BlockHeader{b1, other})
		assert.Error(t, err)
	})

	t.Run("mismatched parent weight", func(t *testing.T) {
		other := testhelpers.NewTestBlockHeader(t, 5, 4)
		other.Parents = []cid.Cid{parent}
		other.ParentWeight = big.NewInt(11)
		_, err := types.NewTipSet([]*types.BlockHeader{b1, other})
		assert.Error(t, err)
	})

	t.Run("duplicate block", func(t *testing.T) {
		_, err := types.NewTipSet([]*types.BlockHeader{b1, b1})
		assert.Error(t, err)
	})
}

func TestTipSetKey(t *testing.T) {
	tf.UnitTest(t)

	c1 := testhelpers.CidFromString(t, "a")
	c2 := testhelpers.CidFromString(t, "b")
	c3 := testhelpers.CidFromString(t, "c")

	t.Run("empty", func(t *testing.T) {
		assert.True(t, types.NewTipSetKey().IsEmpty())
		assert.True(t, types.EmptyTSK.IsEmpty())
		assert.Equal(t, types.EmptyTSK, types.NewTipSetKey())
	})

	t.Run("order matters", func(t *testing.T) {
		k1 := types.NewTipSetKey(c1, c2)
		k2 := types.NewTipSetKey(c2, c1)
		assert.False(t, k1.Equals(k2))
		assert.Equal(t, []cid.Cid{c1, c2}, k1.Cids())
	})

	t.Run("contains", func(t *testing.T) {
		k := types.NewTipSetKey(c1, c2, c3)
		assert.True(t, k.Has(c2))
		assert.True(t, k.ContainsAll(types.NewTipSetKey(c1, c3)))
		assert.False(t, types.NewTipSetKey(c1).ContainsAll(k))
	})

	t.Run("usable as map key", func(t *testing.T) {
		m := map[types.TipSetKey]int{types.NewTipSetKey(c1, c2): 1}
		assert.Equal(t, 1, m[types.NewTipSetKey(c1, c2)])
	})

	t.Run("cbor and json", func(t *testing.T) {
		k := types.NewTipSetKey(c1, c2, c3)

		buf := new(bytes.Buffer)
		require.NoError(t, k.MarshalCBOR(buf))
		var out types.TipSetKey
		require.NoError(t, out.UnmarshalCBOR(buf))
		assert.Equal(t, k, out)

		js, err := json.Marshal(k)
		require.NoError(t, err)
		var jout types.TipSetKey
		require.NoError(t, json.Unmarshal(js, &jout))
		assert.Equal(t, k, jout)
	})

	t.Run("from bytes", func(t *testing.T) {
		k := types.NewTipSetKey(c1, c2)
		out, err := types.TipSetKeyFromBytes(k.Bytes())
		require.NoError(t, err)
		assert.Equal(t, k, out)

		_, err = types.TipSetKeyFromBytes([]byte{0xff, 0x01})
		assert.Error(t, err)
	})
}
