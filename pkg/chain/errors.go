package chain

import (
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

// ErrNotFound is returned when a header, tipset or state root the caller
// asked for is absent from the blockstore.
var ErrNotFound = xerrors.Errorf("chain: %w", blockstoreutil.ErrNotFound)
