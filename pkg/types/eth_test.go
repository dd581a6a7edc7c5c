package types_test

import (
	"bytes"
	gobig "math/big"
	"testing"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/filecoin-project/venus-chain/pkg/testhelpers"
	tf "github.com/filecoin-project/venus-chain/pkg/testhelpers/testflags"
	"github.com/filecoin-project/venus-chain/pkg/types"
)

func newDelegatedMessage(t *testing.T, nonce uint64, sigByte byte) *types.SignedMessage {
	params := new(bytes.Buffer)
	require.NoError(t, cbg.WriteByteArray(params, []byte{0xca, 0xfe}))

	sig := make([]byte, types.EthSignatureLength)
	for i := range sig[:64] {
		sig[i] = sigByte
	}
	sig[64] = 1

	return &types.SignedMessage{
		Message: types.Message{
			To:         testhelpers.RequireDelegatedAddress(t, 1),
			From:       testhelpers.RequireDelegatedAddress(t, 2),
			Nonce:      nonce,
			Value:      big.NewInt(10),
			GasLimit:   1000,
			GasFeeCap:  big.NewInt(3),
			GasPremium: big.NewInt(2),
			Method:     types.MethodEvmInvokeContract,
			Params:     params.Bytes(),
		},
		Signature: crypto.Signature{Type: crypto.SigTypeDelegated, Data: sig},
	}
}

func TestEthHashFromSignedMessage(t *testing.T) {
	tf.UnitTest(t)

	t.Run("deterministic and sensitive to content", func(t *testing.T) {
		h1, err := types.EthHashFromSignedMessage(newDelegatedMessage(t, 1, 7), types.DefaultEthChainID)
		require.NoError(t, err)
		h2, err := types.EthHashFromSignedMessage(newDelegatedMessage(t, 1, 7), types.DefaultEthChainID)
		require.NoError(t, err)
		assert.Equal(t, h1, h2)
		assert.NotEqual(t, types.EmptyEthHash, h1)

		h3, err := types.EthHashFromSignedMessage(newDelegatedMessage(t, 2, 7), types.DefaultEthChainID)
		require.NoError(t, err)
		assert.NotEqual(t, h1, h3)

		h4, err := types.EthHashFromSignedMessage(newDelegatedMessage(t, 1, 8), types.DefaultEthChainID)
		require.NoError(t, err)
		assert.NotEqual(t, h1, h4)

		h5, err := types.EthHashFromSignedMessage(newDelegatedMessage(t, 1, 7), 31415926)
		require.NoError(t, err)
		assert.NotEqual(t, h1, h5)
	})

	t.Run("transaction fields", func(t *testing.T) {
		tx, err := types.EthTxFromSignedMessage(newDelegatedMessage(t, 4, 7), types.DefaultEthChainID)
		require.NoError(t, err)
		assert.EqualValues(t, 4, tx.Nonce())
		assert.EqualValues(t, 1000, tx.Gas())
		assert.Equal(t, []byte{0xca, 0xfe}, tx.Data())
		assert.EqualValues(t, 10, tx.Value().Int64())
		require.NotNil(t, tx.To())
		assert.EqualValues(t, 1, tx.To().Bytes()[19])
	})

	t.Run("non delegated signatures are rejected", func(t *testing.T) {
		msg := newDelegatedMessage(t, 1, 7)
		msg.Signature.Type = crypto.SigTypeSecp256k1
		_, err := types.EthHashFromSignedMessage(msg, types.DefaultEthChainID)
		assert.Error(t, err)
	})

	t.Run("short signature is rejected", func(t *testing.T) {
		msg := newDelegatedMessage(t, 1, 7)
		msg.Signature.Data = msg.Signature.Data[:64]
		_, err := types.EthHashFromSignedMessage(msg, types.DefaultEthChainID)
		assert.Error(t, err)
	})

	t.Run("unknown method is rejected", func(t *testing.T) {
		msg := newDelegatedMessage(t, 1, 7)
		msg.Message.Method = 2
		_, err := types.EthHashFromSignedMessage(msg, types.DefaultEthChainID)
		assert.Error(t, err)
	})
}

// legacySignature prefixes r || s with prefix and appends v big endian.
func legacySignature(prefix byte, v uint64) []byte {
	sig := append([]byte{prefix}, bytes.Repeat([]byte{7}, 64)...)
	return append(sig, gobig.NewInt(0).SetUint64(v).Bytes()...)
}

func TestEthLegacyTransactions(t *testing.T) {
	tf.UnitTest(t)

	legacy := func(sig []byte) *types.SignedMessage {
		msg := newDelegatedMessage(t, 1, 7)
		msg.Message.GasPremium = msg.Message.GasFeeCap
		msg.Signature.Data = sig
		return msg
	}

	t.Run("homestead", func(t *testing.T) {
		tx, err := types.EthTxFromSignedMessage(legacy(legacySignature(0x01, 27)), types.DefaultEthChainID)
		require.NoError(t, err)
		assert.Equal(t, uint8(ethtypes.LegacyTxType), tx.Type())
		assert.EqualValues(t, 3, tx.GasPrice().Int64())

		_, err = types.EthTxFromSignedMessage(legacy(legacySignature(0x01, 29)), types.DefaultEthChainID)
		assert.Error(t, err)
	})

	t.Run("eip-155 with two and three byte v", func(t *testing.T) {
		sig := legacySignature(0x02, types.DefaultEthChainID*2+35)
		require.Len(t, sig, types.EthSignatureLength+2)
		tx, err := types.EthTxFromSignedMessage(legacy(sig), types.DefaultEthChainID)
		require.NoError(t, err)
		assert.Equal(t, uint8(ethtypes.LegacyTxType), tx.Type())

		const calibnet = 314159
		sig = legacySignature(0x02, calibnet*2+36)
		require.Len(t, sig, types.EthSignatureLength+3)
		_, err = types.EthTxFromSignedMessage(legacy(sig), calibnet)
		require.NoError(t, err)

		// v signed for another chain
		_, err = types.EthTxFromSignedMessage(legacy(sig), types.DefaultEthChainID)
		assert.Error(t, err)
	})

	t.Run("hash differs from the eip-1559 form", func(t *testing.T) {
		h1559, err := types.EthHashFromSignedMessage(newDelegatedMessage(t, 1, 7), types.DefaultEthChainID)
		require.NoError(t, err)
		hLegacy, err := types.EthHashFromSignedMessage(legacy(legacySignature(0x01, 27)), types.DefaultEthChainID)
		require.NoError(t, err)
		assert.NotEqual(t, h1559, hLegacy)
	})

	t.Run("fee cap must equal premium", func(t *testing.T) {
		msg := legacy(legacySignature(0x01, 28))
		msg.Message.GasPremium = big.NewInt(1)
		_, err := types.EthTxFromSignedMessage(msg, types.DefaultEthChainID)
		assert.Error(t, err)
	})

	t.Run("unknown prefix", func(t *testing.T) {
		_, err := types.EthTxFromSignedMessage(legacy(legacySignature(0x03, 27)), types.DefaultEthChainID)
		assert.Error(t, err)
	})
}

func TestEthAddressFromFilecoinAddress(t *testing.T) {
	tf.UnitTest(t)

	ethAddr, err := types.EthAddressFromFilecoinAddress(testhelpers.RequireIDAddress(t, 0x0102))
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), ethAddr[0])
	assert.Equal(t, byte(0x01), ethAddr[18])
	assert.Equal(t, byte(0x02), ethAddr[19])

	_, err = types.EthAddressFromFilecoinAddress(testhelpers.NewForTestGetter()())
	assert.Error(t, err)
}

func TestEthHashParse(t *testing.T) {
	tf.UnitTest(t)

	h, err := types.EthHashFromSignedMessage(newDelegatedMessage(t, 1, 7), types.DefaultEthChainID)
	require.NoError(t, err)

	parsed, err := types.ParseEthHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = types.ParseEthHash("0x0102")
	assert.Error(t, err)
}

func TestEthTxMappingEncoding(t *testing.T) {
	tf.UnitTest(t)

	m := types.EthTxMapping{Cid: testhelpers.CidFromString(t, "msg"), Timestamp: 42}
	buf := new(bytes.Buffer)
	require.NoError(t, m.MarshalCBOR(buf))

	var out types.EthTxMapping
	require.NoError(t, out.UnmarshalCBOR(buf))
	assert.Equal(t, m, out)
}
