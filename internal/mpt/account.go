package mpt

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
)

// StateAccount is the RLP shape stored at each account leaf in the state
// trie, matching go-ethereum's types.StateAccount / the original Rust
// source's raiko_lib::primitives::mpt::StateAccount field order exactly
// (nonce, balance, storage root, code hash) since the trie's hash is only
// canonical if the encoding matches consensus byte-for-byte.
type StateAccount struct {
	Nonce    uint64
	Balance  *uint256.Int
	Root     common.Hash
	CodeHash []byte
}

// EmptyCodeHash is keccak256 of the empty byte string, the CodeHash value
// for every externally-owned account.
var EmptyCodeHash = crypto.Keccak256Hash(nil)

// StorageKey derives the trie key for a storage slot, keccak256 of the
// slot index as a big-endian 32-byte word, per spec.md §4.1 ("storage slot
// keys are keccak256(slot_be32), matching go-ethereum's secure trie").
func StorageKey(slot *uint256.Int) common.Hash {
	var buf [32]byte
	slot.WriteToSlice(buf[:])
	return crypto.Keccak256Hash(buf[:])
}

// AccountKey derives the trie key for an address, keccak256 of the 20-byte
// address ("secure trie" addressing, as used by every Ethereum client).
func AccountKey(addr common.Address) common.Hash {
	return crypto.Keccak256Hash(addr.Bytes())
}

// GetAccount looks up addr in the state trie, returning found=false for an
// account that does not exist (as opposed to one that exists with all-zero
// fields).
func (n *Node) GetAccount(addr common.Address) (*StateAccount, bool, error) {
	var acc StateAccount
	found, err := n.Get(AccountKey(addr).Bytes(), &acc)
	if err != nil || !found {
		return nil, found, err
	}
	return &acc, true, nil
}

// PutAccount inserts or replaces addr's account leaf.
func (n *Node) PutAccount(addr common.Address, acc *StateAccount) (*Node, error) {
	return n.InsertRLP(AccountKey(addr).Bytes(), acc)
}

// DeleteAccount removes addr's account leaf, used when an account
// self-destructs.
func (n *Node) DeleteAccount(addr common.Address) (*Node, error) {
	return n.Delete(AccountKey(addr).Bytes())
}

// GetStorage looks up a single storage slot, decoding the RLP-encoded
// trimmed big-endian value go-ethereum stores (zero is represented by
// absence, never by an explicit zero-value leaf).
func (n *Node) GetStorage(slot *uint256.Int) (*uint256.Int, bool, error) {
	var raw []byte
	found, err := n.Get(StorageKey(slot).Bytes(), &raw)
	if err != nil || !found {
		return nil, found, err
	}
	val := new(uint256.Int).SetBytes(raw)
	return val, true, nil
}

// PutStorage sets a storage slot to a nonzero value. Callers must route a
// zero value to DeleteStorage instead: an explicit zero leaf would make
// the trie non-canonical relative to every other Ethereum client.
func (n *Node) PutStorage(slot, value *uint256.Int) (*Node, error) {
	return n.InsertRLP(StorageKey(slot).Bytes(), value.Bytes())
}

// DeleteStorage removes a storage slot, used for explicit zero writes. A
// self-destructed account's storage is not cleared slot by slot: its whole
// storage trie is dropped.
func (n *Node) DeleteStorage(slot *uint256.Int) (*Node, error) {
	return n.Delete(StorageKey(slot).Bytes())
}
