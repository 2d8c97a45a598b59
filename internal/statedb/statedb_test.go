package statedb

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/uniprover/internal/mpt"
)

var addr1 = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestSnapshotRevertRestoresBalanceAndNonce(t *testing.T) {
	s := New(mpt.NewEmpty(), nil, nil, nil)

	id := s.Snapshot()
	s.AddBalance(addr1, uint256.NewInt(100), tracing.BalanceChangeUnspecified)
	s.SetNonce(addr1, 5, tracing.NonceChangeUnspecified)
	require.Equal(t, uint256.NewInt(100), s.GetBalance(addr1))
	require.Equal(t, uint64(5), s.GetNonce(addr1))

	s.RevertToSnapshot(id)
	require.True(t, s.GetBalance(addr1).IsZero())
	require.Equal(t, uint64(0), s.GetNonce(addr1))
}

func TestSetStateRevert(t *testing.T) {
	s := New(mpt.NewEmpty(), nil, nil, nil)
	key := common.HexToHash("0x01")

	id := s.Snapshot()
	s.SetState(addr1, key, common.HexToHash("0xaa"))
	require.Equal(t, common.HexToHash("0xaa"), s.GetState(addr1, key))
	s.RevertToSnapshot(id)
	require.Equal(t, common.Hash{}, s.GetState(addr1, key))
}

func TestSelfDestructZeroesBalance(t *testing.T) {
	s := New(mpt.NewEmpty(), nil, nil, nil)
	s.AddBalance(addr1, uint256.NewInt(50), tracing.BalanceChangeUnspecified)
	s.SelfDestruct(addr1)
	require.True(t, s.GetBalance(addr1).IsZero())
	require.True(t, s.HasSelfDestructed(addr1))
}

func TestSelfdestruct6780OnlyAppliesToSameTxCreation(t *testing.T) {
	s := New(mpt.NewEmpty(), nil, nil, nil)
	s.AddBalance(addr1, uint256.NewInt(50), tracing.BalanceChangeUnspecified)

	// Not created this tx: the account keeps its balance and is not
	// marked self-destructed (EIP-6780).
	_, destroyed := s.Selfdestruct6780(addr1)
	require.False(t, destroyed)
	require.False(t, s.HasSelfDestructed(addr1))

	s.CreateAccount(addr1)
	_, destroyed = s.Selfdestruct6780(addr1)
	require.True(t, destroyed)
	require.True(t, s.HasSelfDestructed(addr1))
}

func TestEmptyAccountSemantics(t *testing.T) {
	s := New(mpt.NewEmpty(), nil, nil, nil)
	require.True(t, s.Empty(addr1))

	s.AddBalance(addr1, uint256.NewInt(1), tracing.BalanceChangeUnspecified)
	require.False(t, s.Empty(addr1))
}

func TestAccessListTracking(t *testing.T) {
	s := New(mpt.NewEmpty(), nil, nil, nil)
	require.False(t, s.AddressInAccessList(addr1))

	s.AddAddressToAccessList(addr1)
	require.True(t, s.AddressInAccessList(addr1))

	slot := common.HexToHash("0x02")
	s.AddSlotToAccessList(addr1, slot)
	addrOK, slotOK := s.SlotInAccessList(addr1, slot)
	require.True(t, addrOK)
	require.True(t, slotOK)
}
