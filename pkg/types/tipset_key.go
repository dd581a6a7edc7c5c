package types

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// EmptyTSK is the key of no tipset.
var EmptyTSK = TipSetKey{}

// TipSetKey identifies a tipset by its block cids in tipset order. Keys with
// the same cids in another order differ. The value is comparable with == and
// usable as a map key.
type TipSetKey struct {
	// raw cid bytes back to back; "" for the empty key
	value string
}

// NewTipSetKey assumes cids are already in tipset order.
func NewTipSetKey(cids ...cid.Cid) TipSetKey {
	var sb strings.Builder
	for _, c := range cids {
		sb.Write(c.Bytes())
	}
	return TipSetKey{value: sb.String()}
}

// TipSetKeyFromBytes wraps raw key bytes after checking they decode.
func TipSetKeyFromBytes(encoded []byte) (TipSetKey, error) {
	if _, err := splitCids(encoded); err != nil {
		return EmptyTSK, err
	}
	return TipSetKey{value: string(encoded)}, nil
}

func splitCids(raw []byte) ([]cid.Cid, error) {
	var out []cid.Cid
	for len(raw) > 0 {
		n, c, err := cid.CidFromBytes(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		raw = raw[n:]
	}
	return out, nil
}

// Cids panics if the key was not built by this package.
func (tsk TipSetKey) Cids() []cid.Cid {
	cids, err := splitCids([]byte(tsk.value))
	if err != nil {
		panic("invalid tipset key: " + err.Error())
	}
	return cids
}

// String renders the key as "{ <cid1> <cid2> }".
func (tsk TipSetKey) String() string {
	parts := []string{"{"}
	for _, c := range tsk.Cids() {
		parts = append(parts, c.String())
	}
	return strings.Join(append(parts, "}"), " ")
}

func (tsk TipSetKey) Bytes() []byte {
	return []byte(tsk.value)
}

func (tsk TipSetKey) IsEmpty() bool {
	return tsk.value == ""
}

func (tsk TipSetKey) Equals(other TipSetKey) bool {
	return tsk == other
}

// ContainsAll reports whether every cid of other appears in tsk. Both keys
// share the tipset order, so a single forward scan is enough.
func (tsk TipSetKey) ContainsAll(other TipSetKey) bool {
	want := other.Cids()
	for _, c := range tsk.Cids() {
		if len(want) == 0 {
			break
		}
		if c.Equals(want[0]) {
			want = want[1:]
		}
	}
	return len(want) == 0
}

func (tsk TipSetKey) Has(id cid.Cid) bool {
	for _, c := range tsk.Cids() {
		if c.Equals(id) {
			return true
		}
	}
	return false
}

func (tsk TipSetKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(tsk.Cids())
}

func (tsk *TipSetKey) UnmarshalJSON(b []byte) error {
	var cids []cid.Cid
	if err := json.Unmarshal(b, &cids); err != nil {
		return err
	}
	*tsk = NewTipSetKey(cids...)
	return nil
}

// MarshalCBOR writes the key as a cbor array of cids, the form block headers
// use for their parents.
func (tsk TipSetKey) MarshalCBOR(w io.Writer) error {
	cids := tsk.Cids()
	if len(cids) > cbg.MaxLength {
		return errors.Errorf("tipset key has too many cids (%d)", len(cids))
	}
	cw := cbg.NewCborWriter(w)
	if err := cw.WriteMajorTypeHeader(cbg.MajArray, uint64(len(cids))); err != nil {
		return err
	}
	for _, c := range cids {
		if err := cbg.WriteCid(cw, c); err != nil {
			return errors.Wrap(err, "writing tipset key cid")
		}
	}
	return nil
}

func (tsk *TipSetKey) UnmarshalCBOR(r io.Reader) error {
	cr := cbg.NewCborReader(r)
	maj, n, err := cr.ReadHeader()
	if err != nil {
		return err
	}
	if maj != cbg.MajArray {
		return fmt.Errorf("tipset key: expected cbor array, got major type %d", maj)
	}
	if n > cbg.MaxLength {
		return fmt.Errorf("tipset key: array too large (%d)", n)
	}

	cids := make([]cid.Cid, n)
	for i := range cids {
		if cids[i], err = cbg.ReadCid(cr); err != nil {
			return errors.Wrap(err, "reading tipset key cid")
		}
	}
	*tsk = NewTipSetKey(cids...)
	return nil
}
