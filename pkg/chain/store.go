package chain

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/pubsub"
	"github.com/hashicorp/go-multierror"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/trace"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-chain/pkg/config"
	"github.com/filecoin-project/venus-chain/pkg/constants"
	"github.com/filecoin-project/venus-chain/pkg/metrics"
	"github.com/filecoin-project/venus-chain/pkg/metrics/tracing"
	"github.com/filecoin-project/venus-chain/pkg/types"
	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

var log = logging.Logger("chain.store")

const (
	// HeadChangeTopic is the pubsub topic head changes are published on.
	HeadChangeTopic = "headchange"
	// HeadChangeCapacity is how many head change events a subscriber may lag behind.
	HeadChangeCapacity = 200
	// PersistBatchSize is the number of headers written per blockstore batch.
	PersistBatchSize = 256
)

// WeightFunc computes the fork choice weight of a tipset.
type WeightFunc func(ctx context.Context, bs blockstoreutil.Blockstore, ts *types.TipSet) (big.Int, error)

// Store tracks the heaviest tipset and answers history queries about the
// chain leading to it.
type Store struct {
	bs         blockstoreutil.Blockstore
	chainIndex *ChainIndex
	msgStore   *MessageStore
	msgsCache  *MsgsInTipsetCache

	genesis      *types.BlockHeader
	headProvider HeaviestTipSetKeyProvider
	weight       WeightFunc
	tracker      TipSetTracker

	// heaviestLk protects heaviest only.
	heaviestLk sync.RWMutex
	heaviest   *types.TipSet

	// headEvents is a pubsub channel that publishes an event every time the head changes.
	// Subscribers that fall behind miss events, the current head can always be queried.
	headEvents *pubsub.PubSub
	// pubLk orders Pub calls against Shutdown; a Pub after Shutdown never returns.
	pubLk   sync.Mutex
	stopped atomic.Bool

	validatedLk sync.RWMutex
	validated   map[cid.Cid]struct{}

	ethMappings EthMappingsStore
	ethChainID  uint64

	stateComputer StateComputer
	netParams     *config.NetworkParamsConfig
	cfg           *config.Config
	observer      CacheObserver
}

// StoreOption configures a Store.
type StoreOption func(*Store) error

// WithConfig sizes caches and sets network and eth parameters from cfg.
func WithConfig(cfg *config.Config) StoreOption {
	return func(s *Store) error {
		if cfg == nil {
			return xerrors.New("nil config")
		}
		s.cfg = cfg
		return nil
	}
}

// WithEthMappings enables the eth tx hash index backed by m.
func WithEthMappings(m EthMappingsStore) StoreOption {
	return func(s *Store) error {
		s.ethMappings = m
		return nil
	}
}

// WithStateComputer sets the executor used when a lookback reaches past the head.
func WithStateComputer(sc StateComputer) StoreOption {
	return func(s *Store) error {
		s.stateComputer = sc
		return nil
	}
}

// WithTipSetTracker replaces the default tipset tracker.
func WithTipSetTracker(t TipSetTracker) StoreOption {
	return func(s *Store) error {
		s.tracker = t
		return nil
	}
}

// WithStoreCacheObserver reports hits and misses of the store caches to o.
func WithStoreCacheObserver(o CacheObserver) StoreOption {
	return func(s *Store) error {
		s.observer = o
		return nil
	}
}

// NewStore constructs a new default store. The genesis header is written to bs.
func NewStore(bs blockstoreutil.Blockstore,
	genesis *types.BlockHeader,
	headProvider HeaviestTipSetKeyProvider,
	weight WeightFunc,
	opts ...StoreOption,
) (*Store, error) {
	store := &Store{
		bs:           bs,
		msgStore:     NewMessageStore(bs),
		genesis:      genesis,
		headProvider: headProvider,
		weight:       weight,
		headEvents:   pubsub.New(HeadChangeCapacity),
		validated:    make(map[cid.Cid]struct{}),
		cfg:          config.NewDefaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(store); err != nil {
			return nil, err
		}
	}

	store.netParams = store.cfg.NetworkParams
	store.ethChainID = store.cfg.Eth.ChainID
	if !store.cfg.Eth.EnableEthHashToFilecoinCidMapping && !constants.FevmEnableEthRPC {
		store.ethMappings = nil
	}
	if store.tracker == nil {
		store.tracker = NewTipSetTracker(bs, store.netParams.ChainFinality)
	}

	var err error
	store.chainIndex, err = NewChainIndex(bs,
		WithCacheSizes(store.cfg.Cache.TipSetCacheSize, store.cfg.Cache.SkipCacheSize),
		WithCacheObserver(store.observer),
	)
	if err != nil {
		return nil, err
	}
	store.msgsCache, err = NewMsgsInTipsetCache(store.cfg.Cache.MsgsInTipsetCacheSize, store.observer)
	if err != nil {
		return nil, err
	}

	if err := PersistBlockHeaders(context.TODO(), bs, []*types.BlockHeader{genesis}); err != nil {
		return nil, xerrors.Errorf("writing genesis block: %w", err)
	}
	return store, nil
}

// Load reads the heaviest tipset recorded by the head provider, falling back
// to genesis, and makes it the in-memory head without publishing.
func (store *Store) Load(ctx context.Context) (err error) {
	ctx, span := trace.StartSpan(ctx, "Store.Load")
	defer tracing.AddErrorEndSpan(ctx, span, &err)

	headTS, err := store.loadHeaviest(ctx)
	if err != nil {
		return err
	}
	log.Infof("loaded heaviest tipset: %s, height: %d", headTS.Key(), headTS.Height())

	store.heaviestLk.Lock()
	store.heaviest = headTS
	store.heaviestLk.Unlock()
	metrics.HeadHeight.Set(ctx, int64(headTS.Height()))
	return nil
}

func (store *Store) loadHeaviest(ctx context.Context) (*types.TipSet, error) {
	key, found, err := store.headProvider.HeaviestTipSetKey(ctx)
	if err != nil {
		return nil, xerrors.Errorf("reading heaviest tipset key: %w", err)
	}
	if !found {
		key = types.NewTipSetKey(store.genesis.Cid())
	}
	return store.chainIndex.LoadTipSet(ctx, key)
}

// Blockstore returns the blockstore chain data is read from.
func (store *Store) Blockstore() blockstoreutil.Blockstore {
	return store.bs
}

// ChainIndex returns the skip list index of the store.
func (store *Store) ChainIndex() *ChainIndex {
	return store.chainIndex
}

// MessageStore returns the message store over the same blockstore.
func (store *Store) MessageStore() *MessageStore {
	return store.msgStore
}

// GetGenesisBlock returns the genesis block held by the chain store.
func (store *Store) GetGenesisBlock(_ context.Context) (*types.BlockHeader, error) {
	return store.genesis, nil
}

// GetHeaviestTipSet returns the current heaviest tipset.
func (store *Store) GetHeaviestTipSet(ctx context.Context) (*types.TipSet, error) {
	store.heaviestLk.RLock()
	head := store.heaviest
	store.heaviestLk.RUnlock()
	if head != nil {
		return head, nil
	}

	head, err := store.loadHeaviest(ctx)
	if err != nil {
		return nil, err
	}

	store.heaviestLk.Lock()
	if store.heaviest == nil {
		store.heaviest = head
	}
	head = store.heaviest
	store.heaviestLk.Unlock()
	return head, nil
}

// SetHeaviestTipSet persists ts as the heaviest tipset and announces it.
func (store *Store) SetHeaviestTipSet(ctx context.Context, ts *types.TipSet) error {
	if !ts.Defined() {
		return xerrors.New("cannot set undefined tipset as heaviest")
	}
	log.Infof("SetHeaviestTipSet %s %d", ts.String(), ts.Height())

	if err := store.headProvider.SetHeaviestTipSetKey(ctx, ts.Key()); err != nil {
		return xerrors.Errorf("failed to write new heaviest tipset key: %w", err)
	}

	store.heaviestLk.Lock()
	prev := store.heaviest
	store.heaviest = ts
	store.heaviestLk.Unlock()

	metrics.HeadHeight.Set(ctx, int64(ts.Height()))
	if prev != nil && !ts.IsChildOf(prev) && !ts.Equals(prev) {
		store.recordReorg(ctx, prev, ts)
	}

	store.publish([]*types.HeadChange{{Type: types.HCApply, Val: ts}})
	return nil
}

func (store *Store) recordReorg(ctx context.Context, prev, next *types.TipSet) {
	_, _, common, err := ReorgOps(ctx, store.chainIndex.LoadTipSet, prev, next)
	if err != nil {
		log.Warnf("failed to find common ancestor of %s and %s: %s", prev.Key(), next.Key(), err)
		return
	}
	if IsReorg(prev, next, common) {
		metrics.ReorgCount.Inc(ctx, 1)
	}
}

func (store *Store) publish(notif []*types.HeadChange) {
	store.pubLk.Lock()
	defer store.pubLk.Unlock()
	if store.stopped.Load() {
		return
	}
	store.headEvents.Pub(notif, HeadChangeTopic)
}

// PutTipSet persists the headers of ts, expands it with known siblings and
// makes the result the heaviest tipset if it outweighs the current one.
func (store *Store) PutTipSet(ctx context.Context, ts *types.TipSet) (err error) {
	ctx, span := trace.StartSpan(ctx, "Store.PutTipSet")
	span.AddAttributes(trace.Int64Attribute("height", int64(ts.Height())))
	defer tracing.AddErrorEndSpan(ctx, span, &err)

	if err := PersistBlockHeaders(ctx, store.bs, ts.Blocks()); err != nil {
		return xerrors.Errorf("failed to persist tipset %s: %w", ts.Key(), err)
	}

	for _, blk := range ts.Blocks() {
		store.tracker.Add(ctx, blk)
	}

	expanded, err := store.tracker.Expand(ctx, ts.At(0))
	if err != nil {
		return xerrors.Errorf("errored while expanding tipset: %w", err)
	}
	if expanded.Len() > ts.Len() {
		log.Debugf("expanded %s into %s", ts.Key(), expanded.Key())
	}

	return store.UpdateHeaviest(ctx, expanded)
}

// PersistBlockHeaders writes headers to bs in batches.
func PersistBlockHeaders(ctx context.Context, bs blockstoreutil.Blockstore, headers []*types.BlockHeader) error {
	var merr *multierror.Error
	for start := 0; start < len(headers); start += PersistBatchSize {
		end := start + PersistBatchSize
		if end > len(headers) {
			end = len(headers)
		}

		batch := make([]blocks.Block, 0, end-start)
		for _, h := range headers[start:end] {
			sb, err := h.ToStorageBlock()
			if err != nil {
				merr = multierror.Append(merr, xerrors.Errorf("encoding header %d: %w", h.Height, err))
				continue
			}
			batch = append(batch, sb)
		}

		if err := bs.PutMany(ctx, batch); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// UpdateHeaviest makes ts the heaviest tipset if its weight is strictly
// greater than the current heaviest one's.
func (store *Store) UpdateHeaviest(ctx context.Context, ts *types.TipSet) error {
	heaviest, err := store.GetHeaviestTipSet(ctx)
	if err != nil {
		return err
	}

	heaviestWeight, err := store.weight(ctx, store.bs, heaviest)
	if err != nil {
		return xerrors.Errorf("computing weight of heaviest %s: %w", heaviest.Key(), err)
	}
	newWeight, err := store.weight(ctx, store.bs, ts)
	if err != nil {
		return xerrors.Errorf("computing weight of %s: %w", ts.Key(), err)
	}

	if newWeight.GreaterThan(heaviestWeight) {
		return store.SetHeaviestTipSet(ctx, ts)
	}
	return nil
}

// GetTipSet returns the tipset identified by `key`. The empty key names the heaviest tipset.
func (store *Store) GetTipSet(ctx context.Context, key types.TipSetKey) (*types.TipSet, error) {
	if key.IsEmpty() {
		return store.GetHeaviestTipSet(ctx)
	}
	return store.chainIndex.LoadTipSet(ctx, key)
}

// GetTipSetByHeight looks back for a tipset at the specified epoch.
// If there are no blocks at the specified epoch, the tipset above it is
// returned, or the one below it when prev is set.
func (store *Store) GetTipSetByHeight(ctx context.Context, ts *types.TipSet, h abi.ChainEpoch, prev bool) (*types.TipSet, error) {
	if ts == nil {
		var err error
		ts, err = store.GetHeaviestTipSet(ctx)
		if err != nil {
			return nil, err
		}
	}

	if h > ts.Height() {
		return nil, xerrors.Errorf("looking for tipset with height greater than start point")
	}

	if h == ts.Height() {
		return ts, nil
	}

	sw := metrics.SkipLookupTimer.Start(ctx)
	lbts, err := store.chainIndex.GetTipSetByHeight(ctx, ts, h)
	sw.Stop(ctx)
	if err != nil {
		return nil, err
	}

	if lbts.Height() < h {
		log.Warnf("chain index returned the wrong tipset at height %d, using slow retrieval", h)
		lbts, err = store.chainIndex.GetTipsetByHeightWithoutCache(ctx, ts, h)
		if err != nil {
			return nil, err
		}
	}

	if lbts.Height() == h || !prev {
		return lbts, nil
	}

	return store.GetTipSet(ctx, lbts.Parents())
}

// SubHeadChanges returns channel with chain head updates.
// First message is guaranteed to be of len == 1, and type == 'current'.
// Events a slow reader cannot take are dropped.
func (store *Store) SubHeadChanges(ctx context.Context) (<-chan []*types.HeadChange, error) {
	head, err := store.GetHeaviestTipSet(ctx)
	if err != nil {
		return nil, err
	}

	store.pubLk.Lock()
	if store.stopped.Load() {
		store.pubLk.Unlock()
		return nil, xerrors.New("chain store is stopped")
	}
	subCh := store.headEvents.Sub(HeadChangeTopic)
	store.pubLk.Unlock()

	out := make(chan []*types.HeadChange, HeadChangeCapacity)
	out <- []*types.HeadChange{{
		Type: types.HCCurrent,
		Val:  head,
	}}

	go func() {
		defer close(out)
		done := ctx.Done()

		for {
			select {
			case val, ok := <-subCh:
				if !ok {
					log.Debug("chain head sub exit loop")
					return
				}
				if ctx.Err() != nil {
					continue
				}

				select {
				case out <- val.([]*types.HeadChange):
				default:
					log.Warnf("head change subscriber is slow, dropping event")
					metrics.HeadChangeDropped.Inc(ctx, 1)
				}
			case <-done:
				// keep draining subCh until Unsub closes it
				done = nil
				go store.unsub(subCh)
			}
		}
	}()
	return out, nil
}

// unsub detaches ch unless Stop already closed every subscription.
func (store *Store) unsub(ch chan interface{}) {
	store.pubLk.Lock()
	defer store.pubLk.Unlock()
	if !store.stopped.Load() {
		store.headEvents.Unsub(ch)
	}
}

// IsBlockValidated reports whether the block with cid c passed validation.
func (store *Store) IsBlockValidated(c cid.Cid) bool {
	store.validatedLk.RLock()
	defer store.validatedLk.RUnlock()
	_, ok := store.validated[c]
	return ok
}

// MarkBlockAsValidated records that the block with cid c passed validation.
func (store *Store) MarkBlockAsValidated(c cid.Cid) {
	store.validatedLk.Lock()
	defer store.validatedLk.Unlock()
	store.validated[c] = struct{}{}
}

// UnmarkBlockAsValidated forgets that the block with cid c passed validation.
func (store *Store) UnmarkBlockAsValidated(c cid.Cid) {
	store.validatedLk.Lock()
	defer store.validatedLk.Unlock()
	delete(store.validated, c)
}

// MessagesForTipSet returns the messages execution of ts will apply.
func (store *Store) MessagesForTipSet(ctx context.Context, ts *types.TipSet) ([]types.ChainMsg, error) {
	return store.msgStore.MessagesForTipSet(ctx, ts)
}

// MessagesForTipSetWithCache is MessagesForTipSet memoized in cache, or in
// the store's own cache when cache is nil.
func (store *Store) MessagesForTipSetWithCache(ctx context.Context, ts *types.TipSet, cache *MsgsInTipsetCache) ([]types.ChainMsg, error) {
	if cache == nil {
		cache = store.msgsCache
	}
	return store.msgStore.MessagesForTipSetWithCache(ctx, ts, cache)
}

// BlockMessagesForTipSet returns the per block messages of ts with repeated
// (sender, nonce) pairs removed.
func (store *Store) BlockMessagesForTipSet(ctx context.Context, ts *types.TipSet) ([]types.BlockMessages, error) {
	return store.msgStore.BlockMessagesForTipSet(ctx, ts)
}

// Stop shuts down head change publication. Open subscriptions are closed.
func (store *Store) Stop() {
	store.pubLk.Lock()
	defer store.pubLk.Unlock()
	if store.stopped.CompareAndSwap(false, true) {
		store.headEvents.Shutdown()
	}
}
