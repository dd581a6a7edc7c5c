package types_test

import (
	"testing"

	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-chain/pkg/testhelpers"
	tf "github.com/filecoin-project/venus-chain/pkg/testhelpers/testflags"
	"github.com/filecoin-project/venus-chain/pkg/types"
)

func newMessage(t *testing.T, nonce uint64) *types.Message {
	return &types.Message{
		To:         testhelpers.RequireIDAddress(t, 200),
		From:       testhelpers.RequireIDAddress(t, 100),
		Nonce:      nonce,
		Value:      big.NewInt(7),
		GasLimit:   10,
		GasFeeCap:  big.NewInt(3),
		GasPremium: big.NewInt(1),
	}
}

func TestRequiredFunds(t *testing.T) {
	tf.UnitTest(t)

	// value + fee cap * gas limit
	assert.Equal(t, big.NewInt(37), newMessage(t, 0).RequiredFunds())
}

func TestMessageDecode(t *testing.T) {
	tf.UnitTest(t)

	msg := newMessage(t, 3)
	data, err := msg.Serialize()
	require.NoError(t, err)

	decoded, err := types.DecodeMessage(data)
	require.NoError(t, err)
	assert.True(t, msg.Equals(decoded))
	assert.Equal(t, len(data), msg.ChainLength())
}

func TestSignedMessageCid(t *testing.T) {
	tf.UnitTest(t)

	msg := newMessage(t, 0)

	t.Run("bls messages are stored unsigned", func(t *testing.T) {
		smsg := &types.SignedMessage{Message: *msg, Signature: crypto.Signature{Type: crypto.SigTypeBLS, Data: []byte{1}}}
		assert.Equal(t, msg.Cid(), smsg.Cid())

		blk, err := smsg.ToStorageBlock()
		require.NoError(t, err)
		assert.Equal(t, msg.Cid(), blk.Cid())
	})

	t.Run("secp messages commit to the signature", func(t *testing.T) {
		a := &types.SignedMessage{Message: *msg, Signature: crypto.Signature{Type: crypto.SigTypeSecp256k1, Data: []byte{1}}}
		b := &types.SignedMessage{Message: *msg, Signature: crypto.Signature{Type: crypto.SigTypeSecp256k1, Data: []byte{2}}}
		assert.NotEqual(t, msg.Cid(), a.Cid())
		assert.NotEqual(t, a.Cid(), b.Cid())
		assert.Equal(t, msg, a.VMMessage())

		data, err := a.Serialize()
		require.NoError(t, err)
		decoded, err := types.DecodeSignedMessage(data)
		require.NoError(t, err)
		assert.Equal(t, a.Cid(), decoded.Cid())
	})
}
