package mpt

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestNodesFromNodesRoundTrip(t *testing.T) {
	n := NewEmpty()
	for i := 0; i < 40; i++ {
		addr := common.BigToAddress(uint256.NewInt(uint64(i + 1)).ToBig())
		acc := &StateAccount{Nonce: uint64(i), Balance: uint256.NewInt(uint64(i)), Root: EmptyRootHash(), CodeHash: EmptyCodeHash.Bytes()}
		var err error
		n, err = n.PutAccount(addr, acc)
		require.NoError(t, err)
	}

	wantHash := n.Hash()
	nodes := n.Nodes()
	require.NotEmpty(t, nodes)

	rebuilt, err := FromNodes(nodes)
	require.NoError(t, err)
	require.Equal(t, wantHash, rebuilt.Hash())

	for i := 0; i < 40; i++ {
		addr := common.BigToAddress(uint256.NewInt(uint64(i + 1)).ToBig())
		got, found, err := rebuilt.GetAccount(addr)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, uint64(i), got.Nonce)
	}
}

func TestFromNodesPartialWitnessYieldsDigest(t *testing.T) {
	n := NewEmpty()
	for i := 0; i < 10; i++ {
		addr := common.BigToAddress(uint256.NewInt(uint64(i + 1)).ToBig())
		acc := &StateAccount{Nonce: uint64(i), Balance: uint256.NewInt(uint64(i)), Root: EmptyRootHash(), CodeHash: EmptyCodeHash.Bytes()}
		var err error
		n, err = n.PutAccount(addr, acc)
		require.NoError(t, err)
	}
	fullNodes := n.Nodes()
	require.True(t, len(fullNodes) > 1)

	// Drop every node but the root: the witness only proved the top of
	// the trie, so resolving any account path below it must fail with
	// ErrNotFound (an incomplete witness), not silently return not-found.
	partial, err := FromNodes(fullNodes[:1])
	require.NoError(t, err)

	addr := common.BigToAddress(uint256.NewInt(1).ToBig())
	_, _, err = partial.GetAccount(addr)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFromNodesEmpty(t *testing.T) {
	n, err := FromNodes(nil)
	require.NoError(t, err)
	require.True(t, n.IsEmpty())
	require.Equal(t, emptyRootHash, n.Hash())
}
