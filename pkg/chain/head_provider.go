package chain

import (
	"bytes"
	"context"
	"sync"

	"github.com/ipfs/go-datastore"
	"github.com/pkg/errors"

	"github.com/filecoin-project/venus-chain/pkg/types"
)

// HeadKey is the key at which the head tipset cid's are written in the datastore.
var HeadKey = datastore.NewKey("/chain/heaviestTipSet")

// HeaviestTipSetKeyProvider durably records the key of the heaviest tipset.
type HeaviestTipSetKeyProvider interface {
	// HeaviestTipSetKey returns false when no key was ever written.
	HeaviestTipSetKey(ctx context.Context) (types.TipSetKey, bool, error)
	SetHeaviestTipSetKey(ctx context.Context, key types.TipSetKey) error
}

// DatastoreHeadProvider keeps the heaviest tipset key in a datastore.
type DatastoreHeadProvider struct {
	ds datastore.Datastore
}

var _ HeaviestTipSetKeyProvider = (*DatastoreHeadProvider)(nil)

// NewDatastoreHeadProvider returns a provider writing under HeadKey in ds.
func NewDatastoreHeadProvider(ds datastore.Datastore) *DatastoreHeadProvider {
	return &DatastoreHeadProvider{ds: ds}
}

// HeaviestTipSetKey loads the latest known head key from disk.
func (p *DatastoreHeadProvider) HeaviestTipSetKey(ctx context.Context) (types.TipSetKey, bool, error) {
	tskBytes, err := p.ds.Get(ctx, HeadKey)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return types.EmptyTSK, false, nil
		}
		return types.EmptyTSK, false, errors.Wrap(err, "failed to read HeadKey")
	}

	var tsk types.TipSetKey
	if err := tsk.UnmarshalCBOR(bytes.NewReader(tskBytes)); err != nil {
		return types.EmptyTSK, false, errors.Wrap(err, "failed to cast headCids")
	}
	return tsk, true, nil
}

// SetHeaviestTipSetKey writes the given key as head to disk.
func (p *DatastoreHeadProvider) SetHeaviestTipSetKey(ctx context.Context, key types.TipSetKey) error {
	log.Debugf("WriteHead %s", key.String())
	buf := new(bytes.Buffer)
	if err := key.MarshalCBOR(buf); err != nil {
		return err
	}
	return p.ds.Put(ctx, HeadKey, buf.Bytes())
}

// MemHeadProvider keeps the heaviest tipset key in memory.
type MemHeadProvider struct {
	lk  sync.RWMutex
	key types.TipSetKey
	set bool
}

var _ HeaviestTipSetKeyProvider = (*MemHeadProvider)(nil)

// NewMemHeadProvider returns an empty in-memory provider.
func NewMemHeadProvider() *MemHeadProvider {
	return &MemHeadProvider{}
}

func (p *MemHeadProvider) HeaviestTipSetKey(_ context.Context) (types.TipSetKey, bool, error) {
	p.lk.RLock()
	defer p.lk.RUnlock()
	return p.key, p.set, nil
}

func (p *MemHeadProvider) SetHeaviestTipSetKey(_ context.Context, key types.TipSetKey) error {
	p.lk.Lock()
	defer p.lk.Unlock()
	p.key, p.set = key, true
	return nil
}
