package types

import (
	"bytes"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
)

// ChainMsg is a message as included in a block: either a bare BLS message or a signed one.
type ChainMsg interface {
	Cid() cid.Cid
	VMMessage() *Message
	ToStorageBlock() (blocks.Block, error)
	// ChainLength returns the size of the message as it appears on chain.
	ChainLength() int
}

// Message is an exchange of information between two actors modeled
// as a function call.
type Message struct {
	Version uint64

	To   address.Address
	From address.Address
	// When receiving a message from a user account the nonce in
	// the message must match the expected nonce in the from actor.
	Nonce uint64

	Value abi.TokenAmount

	GasLimit   int64
	GasFeeCap  abi.TokenAmount
	GasPremium abi.TokenAmount

	Method abi.MethodNum
	Params []byte
}

var _ ChainMsg = (*Message)(nil)

// DecodeMessage decodes raw cbor bytes into a Message.
func DecodeMessage(b []byte) (*Message, error) {
	var msg Message
	if err := msg.UnmarshalCBOR(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return &msg, nil
}

// RequiredFunds is the value carried by the message plus the most it can spend on gas.
func (msg *Message) RequiredFunds() abi.TokenAmount {
	return big.Add(msg.Value, big.Mul(msg.GasFeeCap, big.NewInt(msg.GasLimit)))
}

// Serialize returns the cbor encoding of the message.
func (msg *Message) Serialize() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := msg.MarshalCBOR(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msg *Message) ToStorageBlock() (blocks.Block, error) {
	data, err := msg.Serialize()
	if err != nil {
		return nil, err
	}

	c, err := abi.CidBuilder.Sum(data)
	if err != nil {
		return nil, err
	}

	return blocks.NewBlockWithCid(data, c)
}

func (msg *Message) Cid() cid.Cid {
	b, err := msg.ToStorageBlock()
	if err != nil {
		panic(fmt.Sprintf("failed to marshal message: %s", err))
	}
	return b.Cid()
}

func (msg *Message) String() string {
	return fmt.Sprintf("Message cid=[%v] from=%s to=%s nonce=%d", msg.Cid(), msg.From, msg.To, msg.Nonce)
}

func (msg *Message) ChainLength() int {
	ser, err := msg.Serialize()
	if err != nil {
		panic(err)
	}
	return len(ser)
}

func (msg *Message) VMMessage() *Message {
	return msg
}

// Equals tests whether two messages are equal
func (msg *Message) Equals(other *Message) bool {
	return msg.Cid().Equals(other.Cid())
}
