package chain

import (
	"bytes"
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"github.com/raulk/clock"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-chain/pkg/types"
)

var ethTxHashPrefix = datastore.NewKey("/eth/txhash")

// EthMappingsStore durably indexes objects by eth transaction hash.
type EthMappingsStore interface {
	// ReadObj decodes the object stored for hash into out, reporting false when absent.
	ReadObj(ctx context.Context, hash types.EthHash, out cbg.CBORUnmarshaler) (bool, error)
	WriteObj(ctx context.Context, hash types.EthHash, obj cbg.CBORMarshaler) error
}

// DatastoreEthMappings keeps eth tx hash mappings in a datastore.
type DatastoreEthMappings struct {
	ds    datastore.Batching
	clock clock.Clock
}

var _ EthMappingsStore = (*DatastoreEthMappings)(nil)

// NewDatastoreEthMappings returns a mapping store over ds, timed by clk.
func NewDatastoreEthMappings(ds datastore.Batching, clk clock.Clock) *DatastoreEthMappings {
	if clk == nil {
		clk = clock.New()
	}
	return &DatastoreEthMappings{ds: ds, clock: clk}
}

func ethHashKey(hash types.EthHash) datastore.Key {
	return ethTxHashPrefix.ChildString(hash.String())
}

func (m *DatastoreEthMappings) ReadObj(ctx context.Context, hash types.EthHash, out cbg.CBORUnmarshaler) (bool, error) {
	data, err := m.ds.Get(ctx, ethHashKey(hash))
	if err != nil {
		if xerrors.Is(err, datastore.ErrNotFound) {
			return false, nil
		}
		return false, xerrors.Errorf("reading eth mapping %s: %w", hash, err)
	}
	if err := out.UnmarshalCBOR(bytes.NewReader(data)); err != nil {
		return false, xerrors.Errorf("decoding eth mapping %s: %w", hash, err)
	}
	return true, nil
}

func (m *DatastoreEthMappings) WriteObj(ctx context.Context, hash types.EthHash, obj cbg.CBORMarshaler) error {
	buf := new(bytes.Buffer)
	if err := obj.MarshalCBOR(buf); err != nil {
		return xerrors.Errorf("encoding eth mapping %s: %w", hash, err)
	}
	return m.ds.Put(ctx, ethHashKey(hash), buf.Bytes())
}

// DeleteOlderThan removes mappings whose timestamp is more than retention in
// the past and returns how many were removed.
func (m *DatastoreEthMappings) DeleteOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := m.clock.Now().Add(-retention).Unix()
	if cutoff < 0 {
		return 0, nil
	}

	res, err := m.ds.Query(ctx, query.Query{Prefix: ethTxHashPrefix.String()})
	if err != nil {
		return 0, xerrors.Errorf("querying eth mappings: %w", err)
	}
	defer res.Close() // nolint: errcheck

	batch, err := m.ds.Batch(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for r := range res.Next() {
		if r.Error != nil {
			return removed, xerrors.Errorf("iterating eth mappings: %w", r.Error)
		}
		var mapping types.EthTxMapping
		if err := mapping.UnmarshalCBOR(bytes.NewReader(r.Value)); err != nil {
			log.Warnf("skipping undecodable eth mapping %s: %s", r.Key, err)
			continue
		}
		if int64(mapping.Timestamp) >= cutoff {
			continue
		}
		if err := batch.Delete(ctx, datastore.NewKey(r.Key)); err != nil {
			return removed, err
		}
		removed++
	}

	if err := batch.Commit(ctx); err != nil {
		return 0, xerrors.Errorf("committing eth mapping gc: %w", err)
	}
	return removed, nil
}

// RunGC calls DeleteOlderThan every interval until ctx is done.
func (m *DatastoreEthMappings) RunGC(ctx context.Context, interval, retention time.Duration) {
	ticker := m.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := m.DeleteOlderThan(ctx, retention)
			if err != nil {
				log.Errorf("eth mapping gc failed: %s", err)
				continue
			}
			log.Debugf("eth mapping gc removed %d entries", n)
		case <-ctx.Done():
			return
		}
	}
}

// SignedMessageWithTimestamp is a signed message and the time its block was seen.
type SignedMessageWithTimestamp struct {
	Message   *types.SignedMessage
	Timestamp uint64
}

// ProcessSignedMessages indexes the eth hash of every eth-shaped message.
// When several messages share a hash the one with the lowest index is kept.
func (store *Store) ProcessSignedMessages(ctx context.Context, msgs []SignedMessageWithTimestamp) error {
	if store.ethMappings == nil {
		return nil
	}

	type indexed struct {
		idx int
		cid cid.Cid
		ts  uint64
	}
	byHash := make(map[types.EthHash]indexed)
	order := make([]types.EthHash, 0, len(msgs))
	for i, m := range msgs {
		hash, err := types.EthHashFromSignedMessage(m.Message, store.ethChainID)
		if err != nil {
			log.Debugf("skipping message %s: %s", m.Message.Cid(), err)
			continue
		}
		if _, ok := byHash[hash]; ok {
			continue
		}
		byHash[hash] = indexed{idx: i, cid: m.Message.Cid(), ts: m.Timestamp}
		order = append(order, hash)
	}

	for _, hash := range order {
		e := byHash[hash]
		if err := store.PutMapping(ctx, hash, e.cid, e.ts); err != nil {
			return err
		}
	}
	return nil
}

// PutMapping records that hash refers to message c seen at timestamp.
func (store *Store) PutMapping(ctx context.Context, hash types.EthHash, c cid.Cid, timestamp uint64) error {
	if store.ethMappings == nil {
		return xerrors.New("eth tx hash mapping is disabled")
	}
	return store.ethMappings.WriteObj(ctx, hash, &types.EthTxMapping{Cid: c, Timestamp: timestamp})
}

// GetMapping returns the message cid recorded for hash.
func (store *Store) GetMapping(ctx context.Context, hash types.EthHash) (cid.Cid, bool, error) {
	if store.ethMappings == nil {
		return cid.Undef, false, xerrors.New("eth tx hash mapping is disabled")
	}
	var mapping types.EthTxMapping
	found, err := store.ethMappings.ReadObj(ctx, hash, &mapping)
	if err != nil || !found {
		return cid.Undef, found, err
	}
	return mapping.Cid, true, nil
}
