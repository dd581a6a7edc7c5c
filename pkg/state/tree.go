package state

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-hamt-ipld/v3"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/pkg/errors"

	"github.com/filecoin-project/venus-chain/pkg/types"
)

// DefaultHamtBitwidth is the bitwidth of the actor HAMT.
const DefaultHamtBitwidth = 5

// Tree maps addresses to actors.
type Tree interface {
	Flush(ctx context.Context) (cid.Cid, error)

	GetActor(ctx context.Context, a address.Address) (*types.Actor, bool, error)
	SetActor(ctx context.Context, a address.Address, act *types.Actor) error
}

var _ Tree = (*State)(nil)

// State is a state tree backed by a HAMT keyed on address bytes.
type State struct {
	root  *hamt.Node
	store cbor.IpldStore
}

// NewState instantiates a new state tree with no data in it.
func NewState(store cbor.IpldStore) (*State, error) {
	root, err := hamt.NewNode(store, hamt.UseTreeBitWidth(DefaultHamtBitwidth))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create empty state tree")
	}
	return &State{root: root, store: store}, nil
}

// LoadState loads the state tree referenced by the given cid.
func LoadState(ctx context.Context, store cbor.IpldStore, c cid.Cid) (*State, error) {
	root, err := hamt.LoadNode(ctx, store, c, hamt.UseTreeBitWidth(DefaultHamtBitwidth))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load state tree %s", c)
	}
	return &State{root: root, store: store}, nil
}

// Flush serializes the state tree and flushes unflushed changes to the backing
// store. The cid of the state tree is returned.
func (st *State) Flush(ctx context.Context) (cid.Cid, error) {
	if err := st.root.Flush(ctx); err != nil {
		return cid.Undef, errors.Wrap(err, "failed to flush state tree")
	}
	return st.store.Put(ctx, st.root)
}

// GetActor retrieves an actor by their address. The boolean is false when no
// actor exists at the address.
func (st *State) GetActor(ctx context.Context, a address.Address) (*types.Actor, bool, error) {
	var act types.Actor
	found, err := st.root.Find(ctx, string(a.Bytes()), &act)
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to find actor %s", a)
	}
	if !found {
		return nil, false, nil
	}
	return &act, true, nil
}

// SetActor sets the slot at address 'a' to the given actor, overwriting any existing actor.
func (st *State) SetActor(ctx context.Context, a address.Address, act *types.Actor) error {
	if err := st.root.Set(ctx, string(a.Bytes()), act); err != nil {
		return errors.Wrap(err, "setting actor in state tree failed")
	}
	return nil
}
