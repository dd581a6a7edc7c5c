package types

import (
	"bytes"
	"fmt"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/crypto"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
)

// SignedMessage is a message with the sender's signature. BLS signed
// messages are stored and identified without their signature since blocks
// carry one aggregate for all of them.
type SignedMessage struct {
	Message   Message          `json:"message"`
	Signature crypto.Signature `json:"signature"`
}

var _ ChainMsg = (*SignedMessage)(nil)

func DecodeSignedMessage(raw []byte) (*SignedMessage, error) {
	smsg := new(SignedMessage)
	if err := smsg.UnmarshalCBOR(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return smsg, nil
}

func (smsg *SignedMessage) isBLS() bool {
	return smsg.Signature.Type == crypto.SigTypeBLS
}

func (smsg *SignedMessage) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := smsg.MarshalCBOR(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// storedBytes is the encoding that ends up in the blockstore.
func (smsg *SignedMessage) storedBytes() ([]byte, error) {
	if smsg.isBLS() {
		return smsg.Message.Serialize()
	}
	return smsg.Serialize()
}

func (smsg *SignedMessage) ToStorageBlock() (blocks.Block, error) {
	if smsg.isBLS() {
		return smsg.Message.ToStorageBlock()
	}
	raw, err := smsg.Serialize()
	if err != nil {
		return nil, err
	}
	c, err := abi.CidBuilder.Sum(raw)
	if err != nil {
		return nil, err
	}
	return blocks.NewBlockWithCid(raw, c)
}

func (smsg *SignedMessage) Cid() cid.Cid {
	if smsg.isBLS() {
		return smsg.Message.Cid()
	}
	blk, err := smsg.ToStorageBlock()
	if err != nil {
		panic(fmt.Sprintf("failed to encode signed message: %s", err))
	}
	return blk.Cid()
}

func (smsg *SignedMessage) VMMessage() *Message {
	return &smsg.Message
}

// ChainLength is the size the message takes up on chain.
func (smsg *SignedMessage) ChainLength() int {
	raw, err := smsg.storedBytes()
	if err != nil {
		panic(err)
	}
	return len(raw)
}

func (smsg *SignedMessage) String() string {
	return fmt.Sprintf("signed %s (%s)", smsg.Message.String(), smsg.Cid())
}
