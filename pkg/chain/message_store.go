package chain

import (
	"bytes"
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-amt-ipld/v2"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/pkg/errors"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-chain/pkg/constants"
	"github.com/filecoin-project/venus-chain/pkg/state"
	"github.com/filecoin-project/venus-chain/pkg/types"
	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

// MessageProvider is an interface exposing the load methods of the
// MessageStore.
type MessageProvider interface {
	LoadMetaMessages(context.Context, cid.Cid) ([]*types.SignedMessage, []*types.Message, error)
	ReadMsgMetaCids(ctx context.Context, mmc cid.Cid) ([]cid.Cid, []cid.Cid, error)
	LoadTxMeta(context.Context, cid.Cid) (types.TxMeta, error)
	MessagesForTipSet(ctx context.Context, ts *types.TipSet) ([]types.ChainMsg, error)
	BlockMessagesForTipSet(ctx context.Context, ts *types.TipSet) ([]types.BlockMessages, error)
}

// MessageWriter is an interface exposing the write methods of the
// MessageStore.
type MessageWriter interface {
	StoreMessages(ctx context.Context, secpMessages []*types.SignedMessage, blsMessages []*types.Message) (cid.Cid, error)
	StoreTxMeta(context.Context, types.TxMeta) (cid.Cid, error)
}

var (
	_ MessageProvider = (*MessageStore)(nil)
	_ MessageWriter   = (*MessageStore)(nil)
)

// MessageStore stores and loads collections of messages.
type MessageStore struct {
	bs blockstoreutil.Blockstore
}

// NewMessageStore creates and returns a new store
func NewMessageStore(bs blockstoreutil.Blockstore) *MessageStore {
	return &MessageStore{bs: bs}
}

// LoadMetaMessages loads the messages of the collection with cid metaCid.
func (ms *MessageStore) LoadMetaMessages(ctx context.Context, metaCid cid.Cid) ([]*types.SignedMessage, []*types.Message, error) {
	blsCids, secpCids, err := ms.ReadMsgMetaCids(ctx, metaCid)
	if err != nil {
		return nil, nil, err
	}

	secpMsgs, err := ms.LoadSignedMessagesFromCids(ctx, secpCids)
	if err != nil {
		return nil, nil, err
	}

	blsMsgs, err := ms.LoadUnsignedMessagesFromCids(ctx, blsCids)
	if err != nil {
		return nil, nil, err
	}

	return secpMsgs, blsMsgs, nil
}

// ReadMsgMetaCids returns the bls and secp message cids of a TxMeta.
func (ms *MessageStore) ReadMsgMetaCids(ctx context.Context, mmc cid.Cid) ([]cid.Cid, []cid.Cid, error) {
	meta, err := ms.LoadTxMeta(ctx, mmc)
	if err != nil {
		return nil, nil, err
	}

	secpCids, err := ms.loadAMTCids(ctx, meta.SecpRoot)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading secp message cids")
	}
	blsCids, err := ms.loadAMTCids(ctx, meta.BLSRoot)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading bls message cids")
	}
	return blsCids, secpCids, nil
}

// LoadUnsignedMessagesFromCids loads bls messages.
func (ms *MessageStore) LoadUnsignedMessagesFromCids(ctx context.Context, blsCids []cid.Cid) ([]*types.Message, error) {
	blsMsgs := make([]*types.Message, len(blsCids))
	for i, c := range blsCids {
		blk, err := ms.bs.Get(ctx, c)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get bls message %s", c)
		}
		msg, err := types.DecodeMessage(blk.RawData())
		if err != nil {
			return nil, errors.Wrapf(err, "could not decode bls message %s", c)
		}
		blsMsgs[i] = msg
	}
	return blsMsgs, nil
}

// LoadSignedMessagesFromCids loads secp messages.
func (ms *MessageStore) LoadSignedMessagesFromCids(ctx context.Context, secpCids []cid.Cid) ([]*types.SignedMessage, error) {
	secpMsgs := make([]*types.SignedMessage, len(secpCids))
	for i, c := range secpCids {
		blk, err := ms.bs.Get(ctx, c)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get secp message %s", c)
		}
		msg, err := types.DecodeSignedMessage(blk.RawData())
		if err != nil {
			return nil, errors.Wrapf(err, "could not decode secp message %s", c)
		}
		secpMsgs[i] = msg
	}
	return secpMsgs, nil
}

// StoreMessages puts the input messages to a collection and then writes
// this collection to ipld storage. The cid of the TxMeta is returned.
func (ms *MessageStore) StoreMessages(ctx context.Context, secpMessages []*types.SignedMessage, blsMessages []*types.Message) (cid.Cid, error) {
	var ret types.TxMeta

	secpCids := make([]cid.Cid, len(secpMessages))
	for i, msg := range secpMessages {
		c, err := PutMessage(ctx, ms.bs, msg)
		if err != nil {
			return cid.Undef, errors.Wrap(err, "could not store secp messages")
		}
		secpCids[i] = c
	}
	secpRaw, err := ms.storeAMTCids(ctx, secpCids)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "could not store secp cids as AMT")
	}
	ret.SecpRoot = secpRaw

	blsCids := make([]cid.Cid, len(blsMessages))
	for i, msg := range blsMessages {
		c, err := PutMessage(ctx, ms.bs, msg)
		if err != nil {
			return cid.Undef, errors.Wrap(err, "could not store bls messages")
		}
		blsCids[i] = c
	}
	blsRaw, err := ms.storeAMTCids(ctx, blsCids)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "could not store bls cids as AMT")
	}
	ret.BLSRoot = blsRaw

	return ms.StoreTxMeta(ctx, ret)
}

// LoadTxMeta loads the secproot, blsroot data from the message store
func (ms *MessageStore) LoadTxMeta(ctx context.Context, c cid.Cid) (types.TxMeta, error) {
	metaBlock, err := ms.bs.Get(ctx, c)
	if err != nil {
		if blockstoreutil.IsNotFound(err) {
			return types.TxMeta{}, xerrors.Errorf("tx meta %s: %w", c, ErrNotFound)
		}
		return types.TxMeta{}, errors.Wrapf(err, "failed to get tx meta %s", c)
	}

	var meta types.TxMeta
	if err := meta.UnmarshalCBOR(bytes.NewReader(metaBlock.RawData())); err != nil {
		return types.TxMeta{}, errors.Wrapf(err, "could not decode tx meta %s", c)
	}
	return meta, nil
}

// StoreTxMeta writes the secproot, blsroot block to the message store
func (ms *MessageStore) StoreTxMeta(ctx context.Context, meta types.TxMeta) (cid.Cid, error) {
	buf := new(bytes.Buffer)
	if err := meta.MarshalCBOR(buf); err != nil {
		return cid.Undef, err
	}
	c, err := constants.DefaultCidBuilder.Sum(buf.Bytes())
	if err != nil {
		return cid.Undef, err
	}
	if err := putRaw(ctx, ms.bs, c, buf.Bytes()); err != nil {
		return cid.Undef, err
	}
	return c, nil
}

// loadBlockMessages reads the messages of every block of ts. Blocks are
// fetched concurrently, the result keeps the tipset's block order.
func (ms *MessageStore) loadBlockMessages(ctx context.Context, ts *types.TipSet) ([]types.BlockMessages, error) {
	out := make([]types.BlockMessages, ts.Len())
	g, gctx := errgroup.WithContext(ctx)
	for i, blk := range ts.Blocks() {
		i, blk := i, blk
		g.Go(func() error {
			secpMsgs, blsMsgs, err := ms.LoadMetaMessages(gctx, blk.Messages)
			if err != nil {
				return xerrors.Errorf("failed loading message list %s for block %s: %w", blk.Messages, blk.Cid(), err)
			}
			out[i] = types.BlockMessages{
				Block:         blk,
				BlsMessages:   blsMsgs,
				SecpkMessages: secpMsgs,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type senderState struct {
	nonce   uint64
	balance abi.TokenAmount
	missing bool
}

// MessagesForTipSet returns the messages of ts that execution will apply: for
// every sender, only messages continuing its nonce sequence and covered by its
// remaining balance survive. Senders are seeded from the parent state.
func (ms *MessageStore) MessagesForTipSet(ctx context.Context, ts *types.TipSet) ([]types.ChainMsg, error) {
	bmsgs, err := ms.loadBlockMessages(ctx, ts)
	if err != nil {
		return nil, err
	}

	st, err := state.LoadState(ctx, cbor.NewCborStore(ms.bs), ts.ParentState())
	if err != nil {
		return nil, xerrors.Errorf("loading parent state of %s: %w", ts.Key(), err)
	}

	senders := make(map[address.Address]*senderState)
	selectMsg := func(m *types.Message) (bool, error) {
		s, ok := senders[m.From]
		if !ok {
			act, found, err := st.GetActor(ctx, m.From)
			if err != nil {
				return false, err
			}
			if found {
				s = &senderState{nonce: act.Nonce, balance: act.Balance}
			} else {
				log.Debugf("sender %s of message %s not in parent state", m.From, m.Cid())
				s = &senderState{missing: true}
			}
			senders[m.From] = s
		}

		if s.missing {
			return false, nil
		}
		if s.nonce != m.Nonce {
			return false, nil
		}
		s.nonce++

		required := m.RequiredFunds()
		if s.balance.LessThan(required) {
			return false, nil
		}
		s.balance = big.Sub(s.balance, required)
		return true, nil
	}

	var out []types.ChainMsg
	for _, bm := range bmsgs {
		for _, msg := range bm.ChainMessages() {
			b, err := selectMsg(msg.VMMessage())
			if err != nil {
				return nil, xerrors.Errorf("failed to decide whether to select message for block: %w", err)
			}
			if b {
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

// BlockMessagesForTipSet returns the messages of each block of ts, keeping
// only the first occurrence of every (sender, nonce) pair across the tipset.
// Nonce continuity and balances are not checked.
func (ms *MessageStore) BlockMessagesForTipSet(ctx context.Context, ts *types.TipSet) ([]types.BlockMessages, error) {
	bmsgs, err := ms.loadBlockMessages(ctx, ts)
	if err != nil {
		return nil, err
	}

	type senderNonce struct {
		from  address.Address
		nonce uint64
	}
	seen := make(map[senderNonce]struct{})
	first := func(m *types.Message) bool {
		k := senderNonce{from: m.From, nonce: m.Nonce}
		if _, ok := seen[k]; ok {
			return false
		}
		seen[k] = struct{}{}
		return true
	}

	out := make([]types.BlockMessages, 0, len(bmsgs))
	for _, bm := range bmsgs {
		filtered := types.BlockMessages{Block: bm.Block}
		for _, msg := range bm.BlsMessages {
			if first(msg) {
				filtered.BlsMessages = append(filtered.BlsMessages, msg)
			}
		}
		for _, msg := range bm.SecpkMessages {
			if first(&msg.Message) {
				filtered.SecpkMessages = append(filtered.SecpkMessages, msg)
			}
		}
		out = append(out, filtered)
	}
	return out, nil
}

// MessagesForTipSetWithCache is MessagesForTipSet memoized in cache.
func (ms *MessageStore) MessagesForTipSetWithCache(ctx context.Context, ts *types.TipSet, cache *MsgsInTipsetCache) ([]types.ChainMsg, error) {
	return cache.GetOrInsertWith(ts.Key(), func() ([]types.ChainMsg, error) {
		return ms.MessagesForTipSet(ctx, ts)
	})
}

func (ms *MessageStore) loadAMTCids(ctx context.Context, c cid.Cid) ([]cid.Cid, error) {
	as := cbor.NewCborStore(ms.bs)
	a, err := amt.LoadAMT(ctx, as, c)
	if err != nil {
		return []cid.Cid{}, err
	}
	if a.Count > constants.BlockMessageLimit {
		return nil, xerrors.Errorf("message list %s holds %d entries, limit is %d", c, a.Count, constants.BlockMessageLimit)
	}

	cids := make([]cid.Cid, a.Count)
	for i := uint64(0); i < a.Count; i++ {
		var c cbg.CborCid
		if err := a.Get(ctx, i, &c); err != nil {
			return nil, errors.Wrapf(err, "could not retrieve %d cid from AMT", i)
		}

		cids[i] = cid.Cid(c)
	}

	return cids, nil
}

func (ms *MessageStore) storeAMTCids(ctx context.Context, cids []cid.Cid) (cid.Cid, error) {
	as := cbor.NewCborStore(ms.bs)

	cidMarshallers := make([]cbg.CBORMarshaler, len(cids))
	for i, c := range cids {
		cidMarshaller := cbg.CborCid(c)
		cidMarshallers[i] = &cidMarshaller
	}
	return amt.FromArray(ctx, as, cidMarshallers)
}
