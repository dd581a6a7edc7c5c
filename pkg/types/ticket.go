package types

import (
	"bytes"
	"fmt"

	"github.com/minio/blake2b-simd"
)

// A Ticket is a marker of a tick of the blockchain's clock. It is generated
// by the miner of a block using a VRF and orders the blocks of a tipset.
type Ticket struct {
	VRFProof []byte
}

// Compare orders tickets by the blake2b digest of their VRF proof.
func (t *Ticket) Compare(o *Ticket) int {
	tDigest := blake2b.Sum256(t.proof())
	oDigest := blake2b.Sum256(o.proof())
	return bytes.Compare(tDigest[:], oDigest[:])
}

// Less reports whether t sorts before o.
func (t *Ticket) Less(o *Ticket) bool {
	return t.Compare(o) < 0
}

func (t *Ticket) proof() []byte {
	if t == nil {
		return nil
	}
	return t.VRFProof
}

func (t Ticket) String() string {
	return fmt.Sprintf("%x", t.VRFProof)
}

// ElectionProof proves a miner won the right to produce a block.
type ElectionProof struct {
	WinCount int64
	VRFProof []byte
}
