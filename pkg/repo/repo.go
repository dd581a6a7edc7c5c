package repo

import (
	"github.com/ipfs/go-datastore"

	"github.com/filecoin-project/venus-chain/pkg/config"
	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

// LatestVersion is the repo version this package reads and writes.
const LatestVersion uint = 1

// Datastore is a batching key value store owned by a repo.
type Datastore interface {
	datastore.Batching
}

// Repo is everything the chain subsystem persists.
type Repo interface {
	Config() *config.Config
	ReplaceConfig(cfg *config.Config) error

	// Blockstore holds headers, messages and state.
	Blockstore() blockstoreutil.Blockstore
	// ChainDatastore holds chain metadata such as the heaviest tipset key and the genesis cid.
	ChainDatastore() Datastore
	// MetaDatastore holds the eth tx hash mappings.
	MetaDatastore() Datastore

	Version() uint
	Path() (string, error)
	Close() error
}
