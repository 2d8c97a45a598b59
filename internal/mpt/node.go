// Package mpt implements the sparse, witness-reconstructible
// Merkle-Patricia Trie the State DB and PoB are built on. Unlike
// go-ethereum's trie.Trie, which expects a full backing node database, this
// type is a direct Go port of the shape the original Rust source's
// raiko_lib::primitives::mpt::MptNode uses: a trie whose unvisited subtries
// are kept as opaque "digest" nodes (just their hash), so a witness that
// only proves the paths a block actually touches can still be hashed and
// structurally mutated without the rest of global state being present.
package mpt

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/geth/rlp"
)

// ErrNotFound is returned (wrapped) by Get, InsertRLP and Delete when the
// walk reaches a digest node whose subtrie was never supplied by the
// witness. A key that is simply absent is not an error: Get yields
// (false, nil) for it.
var ErrNotFound = errors.New("mpt: key not present in witness")

type kind uint8

const (
	kindNull kind = iota
	kindBranch
	kindLeaf
	kindExtension
	kindDigest
)

// Node is one element of the trie, tagged by kind. Only the fields for the
// active kind are meaningful, matching raiko_lib's Data enum.
type Node struct {
	k kind

	// kindBranch
	children [16]*Node
	value    []byte // branch's own value slot (rare; Ethereum tries rarely use it)

	// kindLeaf / kindExtension
	keyNibbles []byte
	leafValue  []byte // kindLeaf only
	child      *Node  // kindExtension only

	// kindDigest
	digest common.Hash

	// memoized RLP hash; cleared by any mutation reachable from here
	hashCache *common.Hash
}

// NewEmpty returns the trie representing the empty state (hash ==
// types.EmptyRootHash).
func NewEmpty() *Node {
	return &Node{k: kindNull}
}

// NewDigest returns an opaque placeholder standing in for a subtrie whose
// contents the witness did not include. Resolving through it is an error:
// spec.md §4.1 treats a missing witness node as fatal ("incomplete
// witness").
func NewDigest(h common.Hash) *Node {
	return &Node{k: kindDigest, digest: h}
}

// IsEmpty reports whether this node represents the canonical empty trie.
func (n *Node) IsEmpty() bool {
	return n == nil || n.k == kindNull
}

// Clone performs a shallow structural copy sufficient for copy-on-write
// mutation: children slices are copied but grandchildren are shared until
// touched, mirroring the teacher's "clone the pre-state MPT" step in
// spec.md §4.1.
func (n *Node) Clone() *Node {
	if n == nil {
		return NewEmpty()
	}
	c := *n
	c.hashCache = nil
	return &c
}

// Clear resets the node in place to the empty trie, used when a
// self-destructed account's storage must restart from scratch (spec.md
// §4.1 step 2: "for cleared accounts always start from the empty trie").
func (n *Node) Clear() {
	*n = Node{k: kindNull}
}

// Hash returns the 32-byte Merkle root of the trie. It is deterministic
// over contents regardless of internal node sharing (spec.md §3 MPT
// invariant).
func (n *Node) Hash() common.Hash {
	if n == nil || n.k == kindNull {
		return emptyRootHash
	}
	if n.k == kindDigest {
		return n.digest
	}
	if n.hashCache != nil {
		return *n.hashCache
	}
	enc := n.encode()
	h := crypto.Keccak256Hash(enc)
	n.hashCache = &h
	return h
}

var emptyRootHash = crypto.Keccak256Hash(rlpEmptyString)

// EmptyRootHash is the canonical root hash of the empty trie, used as the
// storage root of an account with no storage slots.
func EmptyRootHash() common.Hash {
	return emptyRootHash
}

var rlpEmptyString = []byte{0x80}

// reference returns either the raw RLP encoding (if < 32 bytes, "embedded
// in parent") or the 32-byte hash, per the standard Ethereum MPT encoding
// rule used when a node is referenced from its parent.
func (n *Node) reference() []byte {
	if n == nil || n.k == kindNull {
		return rlpEmptyString
	}
	enc := n.encode()
	if len(enc) < 32 {
		return enc
	}
	h := n.Hash()
	out, _ := rlp.EncodeToBytes(h.Bytes())
	return out
}

func (n *Node) encode() []byte {
	switch n.k {
	case kindNull:
		return rlpEmptyString
	case kindDigest:
		out, _ := rlp.EncodeToBytes(n.digest.Bytes())
		return out
	case kindLeaf:
		path := hexPrefix(n.keyNibbles, true)
		b, _ := rlp.EncodeToBytes([]interface{}{path, n.leafValue})
		return b
	case kindExtension:
		path := hexPrefix(n.keyNibbles, false)
		b, _ := rlp.EncodeToBytes([]interface{}{path, rawList(n.child.reference())})
		return b
	case kindBranch:
		items := make([]interface{}, 17)
		for i := 0; i < 16; i++ {
			items[i] = rawList(n.children[i].reference())
		}
		if n.value != nil {
			items[16] = n.value
		} else {
			items[16] = []byte{}
		}
		b, _ := rlp.EncodeToBytes(items)
		return b
	default:
		panic("mpt: unknown node kind")
	}
}

// rawList lets an already-RLP-encoded child reference be spliced into the
// parent's list encoding without re-wrapping it as a string.
type rawList []byte

func (r rawList) EncodeRLP(w io.Writer) error {
	_, err := w.Write(r)
	return err
}

// Get resolves key (already hashed/nibble-ready raw bytes, e.g.
// keccak256(address)) and RLP-decodes the stored value into out. It
// returns found=false for an absent key, and an error only when traversal
// reaches a digest node — an incomplete witness (spec.md §4.1).
func (n *Node) Get(key []byte, out interface{}) (found bool, err error) {
	raw, found, err := n.get(toNibbles(key))
	if err != nil || !found {
		return found, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("mpt: decode value: %w", err)
	}
	return true, nil
}

func (n *Node) get(nibbles []byte) ([]byte, bool, error) {
	if n == nil || n.k == kindNull {
		return nil, false, nil
	}
	switch n.k {
	case kindDigest:
		return nil, false, fmt.Errorf("%w: digest %s", ErrNotFound, n.digest)
	case kindLeaf:
		if bytes.Equal(n.keyNibbles, nibbles) {
			return n.leafValue, true, nil
		}
		return nil, false, nil
	case kindExtension:
		if len(nibbles) < len(n.keyNibbles) || !bytes.Equal(n.keyNibbles, nibbles[:len(n.keyNibbles)]) {
			return nil, false, nil
		}
		return n.child.get(nibbles[len(n.keyNibbles):])
	case kindBranch:
		if len(nibbles) == 0 {
			if n.value == nil {
				return nil, false, nil
			}
			return n.value, true, nil
		}
		return n.children[nibbles[0]].get(nibbles[1:])
	}
	return nil, false, nil
}

// InsertRLP RLP-encodes value and inserts it at key, growing/splitting
// nodes as needed. Any digest node on the insertion path is an error: we
// cannot merge into a subtrie we were never given.
func (n *Node) InsertRLP(key []byte, value interface{}) (*Node, error) {
	enc, err := rlp.EncodeToBytes(value)
	if err != nil {
		return nil, fmt.Errorf("mpt: encode value: %w", err)
	}
	return n.insert(toNibbles(key), enc)
}

func (n *Node) insert(nibbles []byte, value []byte) (*Node, error) {
	if n == nil || n.k == kindNull {
		return &Node{k: kindLeaf, keyNibbles: nibbles, leafValue: value}, nil
	}
	switch n.k {
	case kindDigest:
		return nil, fmt.Errorf("%w: digest %s", ErrNotFound, n.digest)
	case kindLeaf:
		return n.insertAtLeafOrExt(nibbles, value, true)
	case kindExtension:
		return n.insertAtLeafOrExt(nibbles, value, false)
	case kindBranch:
		out := n.Clone()
		if len(nibbles) == 0 {
			out.value = value
			return out, nil
		}
		child, err := out.children[nibbles[0]].insert(nibbles[1:], value)
		if err != nil {
			return nil, err
		}
		out.children[nibbles[0]] = child
		return out, nil
	}
	panic("unreachable")
}

// insertAtLeafOrExt handles both leaf and extension insertion by diffing
// the existing prefix against the new key and building the minimal
// branch/extension structure needed to represent both, the textbook MPT
// insertion algorithm.
func (n *Node) insertAtLeafOrExt(nibbles []byte, value []byte, isLeaf bool) (*Node, error) {
	existing := n.keyNibbles
	common := commonPrefixLen(existing, nibbles)

	if common == len(existing) && common == len(nibbles) {
		if isLeaf {
			return &Node{k: kindLeaf, keyNibbles: existing, leafValue: value}, nil
		}
		child, err := n.child.insert(nil, value)
		if err != nil {
			return nil, err
		}
		return &Node{k: kindExtension, keyNibbles: existing, child: child}, nil
	}

	// An extension whose full key is a strict prefix of the new key is not
	// a branch point at all: the insertion simply continues further down
	// the same child, unchanged at this node.
	if !isLeaf && common == len(existing) {
		child, err := n.child.insert(nibbles[common:], value)
		if err != nil {
			return nil, err
		}
		return &Node{k: kindExtension, keyNibbles: existing, child: child}, nil
	}

	branch := &Node{k: kindBranch}

	// Place the remainder of the existing path into the branch.
	if common == len(existing) {
		// isLeaf && common == len(existing) && common < len(nibbles): the
		// leaf's own key terminates exactly at the branch.
		branch.value = n.leafValue
	} else {
		nib := existing[common]
		rest := existing[common+1:]
		var sub *Node
		if isLeaf {
			sub = &Node{k: kindLeaf, keyNibbles: rest, leafValue: n.leafValue}
		} else if len(rest) == 0 {
			sub = n.child
		} else {
			sub = &Node{k: kindExtension, keyNibbles: rest, child: n.child}
		}
		branch.children[nib] = sub
	}

	// Place the remainder of the new path into the branch.
	if common == len(nibbles) {
		branch.value = value
	} else {
		nib := nibbles[common]
		rest := nibbles[common+1:]
		branch.children[nib] = &Node{k: kindLeaf, keyNibbles: rest, leafValue: value}
	}

	if common == 0 {
		return branch, nil
	}
	return &Node{k: kindExtension, keyNibbles: nibbles[:common], child: branch}, nil
}

// Delete removes key if present; deleting an absent key is a no-op, not an
// error (callers distinguish "slot already zero" from "insert failure").
func (n *Node) Delete(key []byte) (*Node, error) {
	out, _, err := n.delete(toNibbles(key))
	if err != nil {
		return nil, err
	}
	if out == nil {
		return NewEmpty(), nil
	}
	return out, nil
}

func (n *Node) delete(nibbles []byte) (*Node, bool, error) {
	if n == nil || n.k == kindNull {
		return nil, false, nil
	}
	switch n.k {
	case kindDigest:
		return nil, false, fmt.Errorf("%w: digest %s", ErrNotFound, n.digest)
	case kindLeaf:
		if bytes.Equal(n.keyNibbles, nibbles) {
			return nil, true, nil
		}
		return n, false, nil
	case kindExtension:
		if len(nibbles) < len(n.keyNibbles) || !bytes.Equal(n.keyNibbles, nibbles[:len(n.keyNibbles)]) {
			return n, false, nil
		}
		child, changed, err := n.child.delete(nibbles[len(n.keyNibbles):])
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return n, false, nil
		}
		if child == nil {
			return nil, true, nil
		}
		merged := mergeExtension(n.keyNibbles, child)
		return merged, true, nil
	case kindBranch:
		out := n.Clone()
		if len(nibbles) == 0 {
			if out.value == nil {
				return n, false, nil
			}
			out.value = nil
		} else {
			child, changed, err := out.children[nibbles[0]].delete(nibbles[1:])
			if err != nil {
				return nil, false, err
			}
			if !changed {
				return n, false, nil
			}
			out.children[nibbles[0]] = child
		}
		return collapseBranch(out), true, nil
	}
	return n, false, nil
}

// mergeExtension re-collapses an extension node whose child shrank,
// merging adjacent extension/leaf nibbles so the trie stays canonical.
func mergeExtension(prefix []byte, child *Node) *Node {
	if child == nil || child.k == kindNull {
		return nil
	}
	switch child.k {
	case kindExtension:
		return &Node{k: kindExtension, keyNibbles: append(append([]byte{}, prefix...), child.keyNibbles...), child: child.child}
	case kindLeaf:
		return &Node{k: kindLeaf, keyNibbles: append(append([]byte{}, prefix...), child.keyNibbles...), leafValue: child.leafValue}
	default:
		return &Node{k: kindExtension, keyNibbles: prefix, child: child}
	}
}

// collapseBranch reduces a branch with only one remaining child (and no
// own value) down to a leaf/extension, keeping the trie in canonical form
// after a deletion the way real Ethereum tries do.
func collapseBranch(b *Node) *Node {
	count := 0
	idx := -1
	for i, c := range b.children {
		if c != nil && c.k != kindNull {
			count++
			idx = i
		}
	}
	if count == 0 && b.value != nil {
		return &Node{k: kindLeaf, keyNibbles: nil, leafValue: b.value}
	}
	if count == 1 && b.value == nil {
		child := b.children[idx]
		switch child.k {
		case kindLeaf:
			return &Node{k: kindLeaf, keyNibbles: append([]byte{byte(idx)}, child.keyNibbles...), leafValue: child.leafValue}
		case kindExtension:
			return &Node{k: kindExtension, keyNibbles: append([]byte{byte(idx)}, child.keyNibbles...), child: child.child}
		default:
			return &Node{k: kindExtension, keyNibbles: []byte{byte(idx)}, child: child}
		}
	}
	return b
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func toNibbles(key []byte) []byte {
	out := make([]byte, len(key)*2)
	for i, b := range key {
		out[i*2] = b >> 4
		out[i*2+1] = b & 0x0f
	}
	return out
}

// hexPrefix implements Ethereum's hex-prefix (compact) encoding used when a
// leaf/extension's nibble path is serialized into its RLP string.
func hexPrefix(nibbles []byte, isLeaf bool) []byte {
	odd := len(nibbles) % 2
	var prefix byte
	if isLeaf {
		prefix = 2
	}
	prefix += byte(odd)

	var out []byte
	if odd == 1 {
		out = append(out, prefix<<4|nibbles[0])
		nibbles = nibbles[1:]
	} else {
		out = append(out, prefix<<4)
	}
	for i := 0; i < len(nibbles); i += 2 {
		out = append(out, nibbles[i]<<4|nibbles[i+1])
	}
	return out
}
