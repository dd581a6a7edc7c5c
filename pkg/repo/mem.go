package repo

import (
	"sync"

	"github.com/ipfs/go-datastore"
	dss "github.com/ipfs/go-datastore/sync"

	"github.com/filecoin-project/venus-chain/pkg/config"
	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

// MemRepo keeps every store in memory. Used by tests and throwaway nodes.
type MemRepo struct {
	cfgLk sync.RWMutex
	cfg   *config.Config

	bs    blockstoreutil.Blockstore
	chain Datastore
	meta  Datastore
}

var _ Repo = (*MemRepo)(nil)

// NewMemRepo returns an empty repo with the default config.
func NewMemRepo() *MemRepo {
	return &MemRepo{
		cfg:   config.NewDefaultConfig(),
		bs:    blockstoreutil.NewTemporary(),
		chain: dss.MutexWrap(datastore.NewMapDatastore()),
		meta:  dss.MutexWrap(datastore.NewMapDatastore()),
	}
}

func (mr *MemRepo) Config() *config.Config {
	mr.cfgLk.RLock()
	defer mr.cfgLk.RUnlock()
	return mr.cfg
}

func (mr *MemRepo) ReplaceConfig(cfg *config.Config) error {
	mr.cfgLk.Lock()
	mr.cfg = cfg
	mr.cfgLk.Unlock()
	return nil
}

func (mr *MemRepo) Blockstore() blockstoreutil.Blockstore { return mr.bs }

func (mr *MemRepo) ChainDatastore() Datastore { return mr.chain }

func (mr *MemRepo) MetaDatastore() Datastore { return mr.meta }

func (mr *MemRepo) Version() uint { return LatestVersion }

// Path is empty, nothing is on disk.
func (mr *MemRepo) Path() (string, error) { return "", nil }

func (mr *MemRepo) Close() error { return nil }
