package types

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
)

// TipSet is an immutable, non-empty group of sibling blocks: same height, same
// parents, same parent weight and state. Blocks are kept sorted by ticket,
// with the block cid as tie breaker, so equal sets always yield equal keys.
type TipSet struct {
	blocks []*BlockHeader
	cids   []cid.Cid
	key    TipSetKey

	height  abi.ChainEpoch
	parents TipSetKey
}

// NewTipSet groups bhs into a tipset, rejecting empty input, duplicates and
// blocks that are not siblings of the first one.
func NewTipSet(bhs []*BlockHeader) (*TipSet, error) {
	if len(bhs) == 0 {
		return nil, fmt.Errorf("no blocks for tipset")
	}

	type keyed struct {
		c cid.Cid
		b *BlockHeader
	}
	entries := make([]keyed, 0, len(bhs))
	seen := make(map[cid.Cid]struct{}, len(bhs))
	for _, blk := range bhs {
		if err := checkSibling(bhs[0], blk); err != nil {
			return nil, err
		}
		c := blk.Cid()
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("duplicate block %s", c)
		}
		seen[c] = struct{}{}
		entries = append(entries, keyed{c: c, b: blk})
	}

	sort.Slice(entries, func(i, j int) bool {
		if cmp := entries[i].b.Ticket.Compare(entries[j].b.Ticket); cmp != 0 {
			return cmp < 0
		}
		return bytes.Compare(entries[i].c.Bytes(), entries[j].c.Bytes()) < 0
	})

	ts := &TipSet{
		blocks:  make([]*BlockHeader, len(entries)),
		cids:    make([]cid.Cid, len(entries)),
		height:  bhs[0].Height,
		parents: NewTipSetKey(bhs[0].Parents...),
	}
	for i, e := range entries {
		ts.blocks[i], ts.cids[i] = e.b, e.c
	}
	ts.key = NewTipSetKey(ts.cids...)
	return ts, nil
}

func checkSibling(first, blk *BlockHeader) error {
	switch {
	case blk.Height != first.Height:
		return fmt.Errorf("inconsistent block heights %d and %d", first.Height, blk.Height)
	case !NewTipSetKey(blk.Parents...).Equals(NewTipSetKey(first.Parents...)):
		return fmt.Errorf("inconsistent block parents %s and %s", NewTipSetKey(first.Parents...), NewTipSetKey(blk.Parents...))
	case !blk.ParentWeight.Equals(first.ParentWeight):
		return fmt.Errorf("inconsistent block parent weights %d and %d", first.ParentWeight, blk.ParentWeight)
	case !blk.ParentStateRoot.Equals(first.ParentStateRoot):
		return fmt.Errorf("inconsistent block parent state %s and %s", first.ParentStateRoot, blk.ParentStateRoot)
	}
	return nil
}

// Defined is false for nil and zero value tipsets. Other accessors assume a
// defined tipset unless they say otherwise.
func (ts *TipSet) Defined() bool {
	return ts != nil && len(ts.blocks) > 0
}

// Equals compares tipsets by key. Two nil tipsets are equal.
func (ts *TipSet) Equals(other *TipSet) bool {
	if ts == nil || other == nil {
		return ts == other
	}
	return ts.height == other.height && ts.key == other.key
}

// Len is zero for a nil tipset.
func (ts *TipSet) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.blocks)
}

func (ts *TipSet) Blocks() []*BlockHeader {
	return ts.blocks
}

func (ts *TipSet) At(i int) *BlockHeader {
	return ts.blocks[i]
}

// Key is EmptyTSK for a nil tipset.
func (ts *TipSet) Key() TipSetKey {
	if ts == nil {
		return EmptyTSK
	}
	return ts.key
}

// Cids returns a copy of the block cids in tipset order.
func (ts *TipSet) Cids() []cid.Cid {
	if !ts.Defined() {
		return []cid.Cid{}
	}
	return append([]cid.Cid(nil), ts.cids...)
}

func (ts *TipSet) Height() abi.ChainEpoch {
	if !ts.Defined() {
		return 0
	}
	return ts.height
}

func (ts *TipSet) Parents() TipSetKey {
	if !ts.Defined() {
		return EmptyTSK
	}
	return ts.parents
}

// ParentState is the state root this tipset's messages execute on.
func (ts *TipSet) ParentState() cid.Cid {
	if !ts.Defined() {
		return cid.Undef
	}
	return ts.blocks[0].ParentStateRoot
}

func (ts *TipSet) ParentWeight() big.Int {
	if !ts.Defined() {
		return big.Zero()
	}
	return ts.blocks[0].ParentWeight
}

func (ts *TipSet) String() string {
	return ts.Key().String()
}

// IsChildOf reports whether parent's key is ts's parent set and ts is higher.
func (ts *TipSet) IsChildOf(parent *TipSet) bool {
	return ts.Parents().Equals(parent.Key()) && ts.Height() > parent.Height()
}

// MinTicketBlock returns the block with the smallest ticket.
func (ts *TipSet) MinTicketBlock() *BlockHeader {
	best := ts.blocks[0]
	for _, b := range ts.blocks[1:] {
		if b.LastTicket().Less(best.LastTicket()) {
			best = b
		}
	}
	return best
}
