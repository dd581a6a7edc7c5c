package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	fbig "github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/crypto"
	fcbor "github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"
)

const (
	EthHashLength    = 32
	EthAddressLength = 20

	// EthSignatureLength is r || s || v as carried by a delegated signature.
	EthSignatureLength = 65

	ethLegacyHomesteadPrefix byte = 0x01
	ethLegacy155Prefix       byte = 0x02

	// EamActorID is the actor id of the Ethereum address manager, which is also
	// the namespace of f410 addresses.
	EamActorID = abi.ActorID(10)

	MethodSend                   = abi.MethodNum(0)
	MethodEamCreateExternal      = abi.MethodNum(4)
	MethodEvmInvokeContract      = abi.MethodNum(3844450837)
	DefaultEthChainID            = 314
	maskedIDPrefixLength         = EthAddressLength - 8
	maskedIDPrefixByte      byte = 0xff
)

// EthHash is the keccak hash of an Ethereum transaction.
type EthHash [EthHashLength]byte

var EmptyEthHash = EthHash{}

func (h EthHash) String() string {
	return common.Hash(h).Hex()
}

// Key is the datastore friendly form of the hash.
func (h EthHash) Key() string {
	return h.String()
}

func ParseEthHash(s string) (EthHash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return EmptyEthHash, err
	}
	if len(b) != EthHashLength {
		return EmptyEthHash, xerrors.Errorf("eth hash must be %d bytes, got %d", EthHashLength, len(b))
	}
	var h EthHash
	copy(h[:], b)
	return h, nil
}

// EthTxMapping points an eth transaction hash at the filecoin message it was derived from.
type EthTxMapping struct {
	Cid       cid.Cid
	Timestamp uint64
}

type ethTxMappingTuple struct {
	_         struct{} `cbor:",toarray"`
	Cid       []byte
	Timestamp uint64
}

func (m *EthTxMapping) MarshalCBOR(w io.Writer) error {
	data, err := fcbor.Marshal(ethTxMappingTuple{Cid: m.Cid.Bytes(), Timestamp: m.Timestamp})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (m *EthTxMapping) UnmarshalCBOR(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var tuple ethTxMappingTuple
	if err := fcbor.Unmarshal(data, &tuple); err != nil {
		return err
	}

	c, err := cid.Cast(tuple.Cid)
	if err != nil {
		return xerrors.Errorf("decoding mapped cid: %w", err)
	}
	m.Cid = c
	m.Timestamp = tuple.Timestamp
	return nil
}

// EthHashFromSignedMessage rebuilds the Ethereum transaction a delegated
// message was signed as and returns its hash. Messages that are not Ethereum
// shaped return an error.
func EthHashFromSignedMessage(smsg *SignedMessage, chainID uint64) (EthHash, error) {
	tx, err := EthTxFromSignedMessage(smsg, chainID)
	if err != nil {
		return EmptyEthHash, err
	}
	return EthHash(tx.Hash()), nil
}

// EthTxFromSignedMessage converts a delegated signed message into a
// go-ethereum transaction. The signature layout picks the transaction type:
//
//	65 bytes                  r || s || v, EIP-1559
//	0x01 || r || s || v       legacy homestead, v is 27 or 28
//	0x02 || r || s || v       legacy EIP-155, v is chainID*2+35 or +36 in 2 or 3 bytes
//
// Legacy transactions have a single gas price, so the fee cap and premium
// must match.
func EthTxFromSignedMessage(smsg *SignedMessage, chainID uint64) (*ethtypes.Transaction, error) {
	if smsg.Signature.Type != crypto.SigTypeDelegated {
		return nil, xerrors.Errorf("signature is not delegated type, is %d", smsg.Signature.Type)
	}
	if smsg.Message.Version != 0 {
		return nil, xerrors.Errorf("unsupported message version %d", smsg.Message.Version)
	}

	msg := &smsg.Message
	to, data, err := ethCallOf(msg)
	if err != nil {
		return nil, err
	}

	sig := smsg.Signature.Data
	if len(sig) == EthSignatureLength {
		return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:    new(big.Int).SetUint64(chainID),
			Nonce:      msg.Nonce,
			GasTipCap:  bigOrZero(msg.GasPremium),
			GasFeeCap:  bigOrZero(msg.GasFeeCap),
			Gas:        uint64(msg.GasLimit),
			To:         to,
			Value:      bigOrZero(msg.Value),
			Data:       data,
			AccessList: ethtypes.AccessList{},
			R:          new(big.Int).SetBytes(sig[0:32]),
			S:          new(big.Int).SetBytes(sig[32:64]),
			V:          new(big.Int).SetBytes(sig[64:]),
		}), nil
	}

	v, err := legacyV(sig, chainID)
	if err != nil {
		return nil, err
	}
	if bigOrZero(msg.GasFeeCap).Cmp(bigOrZero(msg.GasPremium)) != 0 {
		return nil, xerrors.Errorf("legacy transaction needs equal fee cap and premium, got %s and %s", msg.GasFeeCap, msg.GasPremium)
	}
	return ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    msg.Nonce,
		GasPrice: bigOrZero(msg.GasFeeCap),
		Gas:      uint64(msg.GasLimit),
		To:       to,
		Value:    bigOrZero(msg.Value),
		Data:     data,
		R:        new(big.Int).SetBytes(sig[1:33]),
		S:        new(big.Int).SetBytes(sig[33:65]),
		V:        v,
	}), nil
}

// legacyV validates a prefixed legacy signature and returns its v value.
func legacyV(sig []byte, chainID uint64) (*big.Int, error) {
	if len(sig) < EthSignatureLength+1 {
		return nil, xerrors.Errorf("signature should be %d bytes long, got %d", EthSignatureLength, len(sig))
	}
	v := new(big.Int).SetBytes(sig[65:])

	switch sig[0] {
	case ethLegacyHomesteadPrefix:
		if len(sig) != EthSignatureLength+1 {
			return nil, xerrors.Errorf("homestead signature should be %d bytes long, got %d", EthSignatureLength+1, len(sig))
		}
		if n := v.Uint64(); n != 27 && n != 28 {
			return nil, xerrors.Errorf("homestead signature has invalid v %d", n)
		}
	case ethLegacy155Prefix:
		if len(sig) != EthSignatureLength+2 && len(sig) != EthSignatureLength+3 {
			return nil, xerrors.Errorf("eip-155 signature should be %d or %d bytes long, got %d", EthSignatureLength+2, EthSignatureLength+3, len(sig))
		}
		base := new(big.Int).SetUint64(chainID*2 + 35)
		if v.Cmp(base) != 0 && v.Cmp(new(big.Int).Add(base, big.NewInt(1))) != 0 {
			return nil, xerrors.Errorf("eip-155 signature v %s does not match chain id %d", v, chainID)
		}
	default:
		return nil, xerrors.Errorf("unknown legacy signature prefix %#x", sig[0])
	}
	return v, nil
}

// ethCallOf returns the recipient and input of the Ethereum call msg encodes.
// A nil recipient means contract creation.
func ethCallOf(msg *Message) (*common.Address, []byte, error) {
	switch {
	case msg.Method == MethodEamCreateExternal && isEamAddress(msg.To):
		// contract creation: the init code is the input
		input, err := decodeParamsBytes(msg.Params)
		return nil, input, err
	case msg.Method == MethodEvmInvokeContract || msg.Method == MethodSend:
		addr, err := EthAddressFromFilecoinAddress(msg.To)
		if err != nil {
			return nil, nil, err
		}
		if msg.Method == MethodSend {
			if len(msg.Params) > 0 {
				return nil, nil, xerrors.Errorf("send message cannot carry params")
			}
			return &addr, nil, nil
		}
		input, err := decodeParamsBytes(msg.Params)
		return &addr, input, err
	default:
		return nil, nil, xerrors.Errorf("method %d has no ethereum equivalent", msg.Method)
	}
}

// EthAddressFromFilecoinAddress maps f410 addresses to their 20 byte sub-address
// and ID addresses to the masked ID form.
func EthAddressFromFilecoinAddress(addr address.Address) (common.Address, error) {
	switch addr.Protocol() {
	case address.ID:
		id, err := address.IDFromAddress(addr)
		if err != nil {
			return common.Address{}, err
		}
		var out common.Address
		out[0] = maskedIDPrefixByte
		binary.BigEndian.PutUint64(out[maskedIDPrefixLength:], id)
		return out, nil
	case address.Delegated:
		payload := addr.Payload()
		// namespace 10 is a single leb128 byte
		if len(payload) != EthAddressLength+1 || payload[0] != byte(EamActorID) {
			return common.Address{}, xerrors.Errorf("address %s is not an eth address", addr)
		}
		return common.BytesToAddress(payload[1:]), nil
	default:
		return common.Address{}, xerrors.Errorf("address protocol %d has no eth equivalent", addr.Protocol())
	}
}

func isEamAddress(addr address.Address) bool {
	if addr.Protocol() != address.ID {
		return false
	}
	id, err := address.IDFromAddress(addr)
	return err == nil && id == uint64(EamActorID)
}

func decodeParamsBytes(params []byte) ([]byte, error) {
	if len(params) == 0 {
		return nil, nil
	}
	out, err := cbg.ReadByteArray(bytes.NewReader(params), uint64(len(params)))
	if err != nil {
		return nil, fmt.Errorf("decoding params as cbor bytes: %w", err)
	}
	return out, nil
}

func bigOrZero(v fbig.Int) *big.Int {
	if v.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.Int)
}
