package types

import (
	"fmt"

	"github.com/ipfs/go-cid"
)

// TxMeta tracks the merkleroots of both secp and bls messages separately
type TxMeta struct {
	BLSRoot  cid.Cid `json:"blsRoot"`
	SecpRoot cid.Cid `json:"secpRoot"`
}

// String returns a readable printing string of TxMeta
func (m TxMeta) String() string {
	return fmt.Sprintf("secp: %s, bls: %s", m.SecpRoot.String(), m.BLSRoot.String())
}

// BlockMessages is a block header together with the messages it includes.
type BlockMessages struct {
	Block         *BlockHeader
	BlsMessages   []*Message
	SecpkMessages []*SignedMessage
}

// ChainMessages lists the block's messages in execution order, bls first.
func (bm *BlockMessages) ChainMessages() []ChainMsg {
	out := make([]ChainMsg, 0, len(bm.BlsMessages)+len(bm.SecpkMessages))
	for _, m := range bm.BlsMessages {
		out = append(out, m)
	}
	for _, m := range bm.SecpkMessages {
		out = append(out, m)
	}
	return out
}
