package types

import (
	"bytes"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/crypto"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
)

// BlockHeader is the signed header a miner produces for one epoch. The
// messages it carries live behind Messages as a TxMeta.
type BlockHeader struct {
	Miner         address.Address
	Ticket        *Ticket
	ElectionProof *ElectionProof

	// Parents is the key of the tipset this block extends.
	Parents      []cid.Cid
	ParentWeight big.Int
	Height       abi.ChainEpoch

	// ParentStateRoot and ParentMessageReceipts are the results of executing
	// the parent tipset.
	ParentStateRoot       cid.Cid
	ParentMessageReceipts cid.Cid

	Messages     cid.Cid
	BLSAggregate *crypto.Signature

	// Timestamp is in unix seconds.
	Timestamp     uint64
	BlockSig      *crypto.Signature
	ForkSignaling uint64

	// ParentBaseFee is shared by all blocks of a tipset.
	ParentBaseFee abi.TokenAmount

	// set by DecodeBlock only; decoded headers are read only
	cachedCid   cid.Cid
	cachedBytes []byte
}

// DecodeBlock parses a cbor encoded header and remembers its cid and bytes.
func DecodeBlock(raw []byte) (*BlockHeader, error) {
	bh := new(BlockHeader)
	if err := bh.UnmarshalCBOR(bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	c, err := abi.CidBuilder.Sum(raw)
	if err != nil {
		return nil, err
	}
	bh.cachedCid, bh.cachedBytes = c, raw
	return bh, nil
}

// Cid panics if the header cannot be encoded, e.g. when a required cid is undefined.
func (b *BlockHeader) Cid() cid.Cid {
	if b.cachedCid.Defined() {
		return b.cachedCid
	}
	c, _, err := b.SerializeWithCid()
	if err != nil {
		panic(err)
	}
	return c
}

func (b *BlockHeader) Serialize() ([]byte, error) {
	if b.cachedBytes != nil {
		return b.cachedBytes, nil
	}
	var buf bytes.Buffer
	if err := b.MarshalCBOR(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *BlockHeader) SerializeWithCid() (cid.Cid, []byte, error) {
	raw, err := b.Serialize()
	if err != nil {
		return cid.Undef, nil, err
	}
	c, err := abi.CidBuilder.Sum(raw)
	if err != nil {
		return cid.Undef, nil, err
	}
	return c, raw, nil
}

// ToStorageBlock wraps the header encoding for a blockstore.
func (b *BlockHeader) ToStorageBlock() (blocks.Block, error) {
	c, raw, err := b.SerializeWithCid()
	if err != nil {
		return nil, err
	}
	return blocks.NewBlockWithCid(raw, c)
}

func (b *BlockHeader) Equals(other *BlockHeader) bool {
	return b.Cid().Equals(other.Cid())
}

// LastTicket is the ticket used for tie breaks between blocks.
func (b *BlockHeader) LastTicket() *Ticket {
	return b.Ticket
}

func (b *BlockHeader) String() string {
	return fmt.Sprintf("block %s at %d by %s", b.Cid(), b.Height, b.Miner)
}
