package testhelpers

import (
	"fmt"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/stretchr/testify/require"
)

// RequireIDAddress returns the ID address f0<i>.
func RequireIDAddress(t *testing.T, i int) address.Address {
	a, err := address.NewIDAddress(uint64(i))
	require.NoError(t, err)
	return a
}

// RequireDelegatedAddress returns an f410 address whose eth sub-address ends in i.
func RequireDelegatedAddress(t *testing.T, i int) address.Address {
	var sub [20]byte
	sub[18], sub[19] = byte(i>>8), byte(i)
	a, err := address.NewDelegatedAddress(10, sub[:])
	require.NoError(t, err)
	return a
}

// NewForTestGetter hands out a new secp256k1 address on every call. Addresses
// only differ within one getter.
func NewForTestGetter() func() address.Address {
	var n int
	return func() address.Address {
		a, err := address.NewSecp256k1Address([]byte(fmt.Sprintf("address%d", n)))
		if err != nil {
			panic(err)
		}
		n++
		return a
	}
}
