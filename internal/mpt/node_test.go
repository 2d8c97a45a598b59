package mpt

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestEmptyTrieHash(t *testing.T) {
	require.Equal(t, emptyRootHash, NewEmpty().Hash())
}

func TestInsertGetDelete(t *testing.T) {
	n := NewEmpty()

	addrs := []common.Address{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}

	for i, a := range addrs {
		acc := &StateAccount{Nonce: uint64(i), Balance: uint256.NewInt(uint64(i * 100)), Root: EmptyRootHash(), CodeHash: EmptyCodeHash.Bytes()}
		var err error
		n, err = n.PutAccount(a, acc)
		require.NoError(t, err)
	}

	for i, a := range addrs {
		got, found, err := n.GetAccount(a)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, uint64(i), got.Nonce)
	}

	missing := common.HexToAddress("0x9999999999999999999999999999999999999999")
	_, found, err := n.GetAccount(missing)
	require.NoError(t, err)
	require.False(t, found)

	var err2 error
	n, err2 = n.DeleteAccount(addrs[0])
	require.NoError(t, err2)
	_, found, err = n.GetAccount(addrs[0])
	require.NoError(t, err)
	require.False(t, found)

	// the other two accounts must survive the deletion untouched.
	got, found, err := n.GetAccount(addrs[1])
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(1), got.Nonce)
	got, found, err = n.GetAccount(addrs[2])
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(2), got.Nonce)
}

func TestHashDeterministicOverInsertOrder(t *testing.T) {
	a := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	accA := &StateAccount{Nonce: 1, Balance: uint256.NewInt(1), Root: EmptyRootHash(), CodeHash: EmptyCodeHash.Bytes()}
	accB := &StateAccount{Nonce: 2, Balance: uint256.NewInt(2), Root: EmptyRootHash(), CodeHash: EmptyCodeHash.Bytes()}

	t1 := NewEmpty()
	t1, err := t1.PutAccount(a, accA)
	require.NoError(t, err)
	t1, err = t1.PutAccount(b, accB)
	require.NoError(t, err)

	t2 := NewEmpty()
	t2, err = t2.PutAccount(b, accB)
	require.NoError(t, err)
	t2, err = t2.PutAccount(a, accA)
	require.NoError(t, err)

	require.Equal(t, t1.Hash(), t2.Hash())
}

func TestDigestNodeErrorsOnResolve(t *testing.T) {
	d := NewDigest(common.HexToHash("0xdead"))
	_, _, err := d.get(toNibbles([]byte("anything")))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = d.insert(toNibbles([]byte("anything")), []byte("value"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStorageZeroSlotUsesDelete(t *testing.T) {
	n := NewEmpty()
	slot := uint256.NewInt(7)
	val := uint256.NewInt(42)

	n, err := n.PutStorage(slot, val)
	require.NoError(t, err)
	got, found, err := n.GetStorage(slot)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, val, got)

	n, err = n.DeleteStorage(slot)
	require.NoError(t, err)
	_, found, err = n.GetStorage(slot)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, emptyRootHash, n.Hash())
}
