package blockstoreutil

import (
	"errors"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
)

// Blockstore is the content addressed store chain data lives in. It is shared
// by every component and safe for concurrent use.
type Blockstore = blockstore.Blockstore

// ErrNotFound is returned when a block is not in the store.
var ErrNotFound = blockstore.ErrNotFound

// NewBlockstore wraps a datastore as a blockstore.
func NewBlockstore(ds datastore.Batching) Blockstore {
	return blockstore.NewBlockstore(ds)
}

// NewTemporary returns an in-memory blockstore.
func NewTemporary() Blockstore {
	return blockstore.NewBlockstore(dssync.MutexWrap(datastore.NewMapDatastore()))
}

// IsNotFound reports whether err means a block was missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, datastore.ErrNotFound)
}
