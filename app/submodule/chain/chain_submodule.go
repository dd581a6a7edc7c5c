package chain

import (
	"context"
	"time"

	"github.com/filecoin-project/go-state-types/big"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"github.com/raulk/clock"

	"github.com/filecoin-project/venus-chain/pkg/chain"
	"github.com/filecoin-project/venus-chain/pkg/config"
	"github.com/filecoin-project/venus-chain/pkg/consensus/chainselector"
	"github.com/filecoin-project/venus-chain/pkg/metrics"
	"github.com/filecoin-project/venus-chain/pkg/repo"
	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

var log = logging.Logger("chain.submodule")

// ethMappingGCInterval is how often expired eth tx hash mappings are collected.
const ethMappingGCInterval = time.Hour

// ChainSubmodule wires the chain store to a repo.
type ChainSubmodule struct { //nolint
	ChainReader  *chain.Store
	MessageStore *chain.MessageStore
	Selector     *chainselector.ChainSelector
	EthMappings  *chain.DatastoreEthMappings

	cfg    *config.Config
	cancel context.CancelFunc
}

type chainRepo interface {
	Config() *config.Config
	Blockstore() blockstoreutil.Blockstore
	ChainDatastore() repo.Datastore
	MetaDatastore() repo.Datastore
}

// NewChainSubmodule opens the chain store of r and loads its head. The
// genesis header must have been imported.
func NewChainSubmodule(ctx context.Context, r chainRepo, opts ...chain.StoreOption) (*ChainSubmodule, error) {
	cfg := r.Config()
	bs := r.Blockstore()

	genCid, err := ReadGenesisCid(ctx, r.ChainDatastore())
	if err != nil {
		return nil, err
	}
	genesis, err := chain.LoadBlockHeader(ctx, bs, genCid)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load genesis block")
	}

	selector := chainselector.NewChainSelector(chainselector.FixedPowerViewer{
		Power: big.NewInt(cfg.NetworkParams.FixedNetworkPower),
	})
	ethMappings := chain.NewDatastoreEthMappings(r.MetaDatastore(), clock.New())

	storeOpts := append([]chain.StoreOption{
		chain.WithConfig(cfg),
		chain.WithEthMappings(ethMappings),
		chain.WithStoreCacheObserver(metrics.CacheRecorder{}),
	}, opts...)
	store, err := chain.NewStore(bs, genesis, chain.NewDatastoreHeadProvider(r.ChainDatastore()), selector.Weight, storeOpts...)
	if err != nil {
		return nil, err
	}
	if err := store.Load(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to load chain head")
	}

	return &ChainSubmodule{
		ChainReader:  store,
		MessageStore: store.MessageStore(),
		Selector:     selector,
		EthMappings:  ethMappings,
		cfg:          cfg,
	}, nil
}

// Start serves metrics and collects expired eth mappings until Stop.
func (chain *ChainSubmodule) Start(ctx context.Context) error {
	ctx, chain.cancel = context.WithCancel(ctx)

	if err := metrics.RegisterPrometheusEndpoint(ctx, chain.cfg.Metrics); err != nil {
		return errors.Wrap(err, "failed to start metrics endpoint")
	}

	if days := chain.cfg.Eth.EthTxHashMappingLifetimeDays; days > 0 {
		retention := time.Duration(days) * 24 * time.Hour
		log.Infof("collecting eth tx hash mappings older than %s", retention)
		go chain.EthMappings.RunGC(ctx, ethMappingGCInterval, retention)
	}
	return nil
}

// Stop stops the background work and closes head change subscriptions.
func (chain *ChainSubmodule) Stop(_ context.Context) {
	if chain.cancel != nil {
		chain.cancel()
	}
	chain.ChainReader.Stop()
}
