package mpt

import (
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/geth/rlp"
)

// Nodes flattens the trie into the wire witness form: the RLP encoding of
// every node whose reference is a 32-byte hash (nodes small enough to be
// embedded in their parent never get their own entry, matching standard
// Ethereum trie-node proof semantics). By convention used throughout this
// module, element 0 is always the root node.
func (n *Node) Nodes() [][]byte {
	seen := make(map[common.Hash]bool)
	var out [][]byte
	var root []byte
	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil || n.k == kindNull || n.k == kindDigest {
			return
		}
		enc := n.encode()
		if len(enc) >= 32 {
			h := crypto.Keccak256Hash(enc)
			if !seen[h] {
				seen[h] = true
				if root == nil {
					root = enc
				} else {
					out = append(out, enc)
				}
			}
		}
		switch n.k {
		case kindExtension:
			walk(n.child)
		case kindBranch:
			for _, c := range n.children {
				walk(c)
			}
		}
	}
	walk(n)
	if root == nil {
		return out
	}
	return append([][]byte{root}, out...)
}

// FromNodes reconstructs a trie from its flattened witness form, the
// inverse of Nodes. raws[0] is taken as the root node; every other entry
// is indexed by its own hash, and every reference is resolved while the
// trie is decoded.
// A hash reference with no matching entry becomes a Digest placeholder
// (spec.md §4.1: "a witness that proves only the touched paths").
func FromNodes(raws [][]byte) (*Node, error) {
	if len(raws) == 0 {
		return NewEmpty(), nil
	}
	lookup := make(map[common.Hash][]byte, len(raws))
	for _, r := range raws {
		lookup[crypto.Keccak256Hash(r)] = r
	}
	return decodeNode(raws[0], lookup)
}

func decodeNode(data []byte, lookup map[common.Hash][]byte) (*Node, error) {
	if len(data) == 1 && data[0] == 0x80 {
		return NewEmpty(), nil
	}
	var list []rlp.RawValue
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, fmt.Errorf("mpt: decode node: %w", err)
	}
	switch len(list) {
	case 2:
		var path []byte
		if err := rlp.DecodeBytes(list[0], &path); err != nil {
			return nil, fmt.Errorf("mpt: decode node path: %w", err)
		}
		nibbles, isLeaf := decodeHexPrefix(path)
		if isLeaf {
			var val []byte
			if err := rlp.DecodeBytes(list[1], &val); err != nil {
				return nil, fmt.Errorf("mpt: decode leaf value: %w", err)
			}
			return &Node{k: kindLeaf, keyNibbles: nibbles, leafValue: val}, nil
		}
		child, err := resolveRef(list[1], lookup)
		if err != nil {
			return nil, err
		}
		return &Node{k: kindExtension, keyNibbles: nibbles, child: child}, nil
	case 17:
		b := &Node{k: kindBranch}
		for i := 0; i < 16; i++ {
			child, err := resolveRef(list[i], lookup)
			if err != nil {
				return nil, err
			}
			b.children[i] = child
		}
		var val []byte
		if err := rlp.DecodeBytes(list[16], &val); err == nil && len(val) > 0 {
			b.value = val
		}
		return b, nil
	default:
		return nil, fmt.Errorf("mpt: invalid node with %d list items", len(list))
	}
}

// resolveRef decodes a child reference: either an embedded node (the raw
// bytes are themselves a full RLP list, used when the child's encoding is
// under 32 bytes) or a 32-byte hash resolved through lookup.
func resolveRef(raw rlp.RawValue, lookup map[common.Hash][]byte) (*Node, error) {
	if len(raw) == 0 {
		return NewEmpty(), nil
	}
	if raw[0] == 0x80 {
		return NewEmpty(), nil
	}
	if raw[0] >= 0xc0 {
		return decodeNode(raw, lookup)
	}
	var hashBytes []byte
	if err := rlp.DecodeBytes(raw, &hashBytes); err != nil {
		return nil, fmt.Errorf("mpt: decode child ref: %w", err)
	}
	h := common.BytesToHash(hashBytes)
	if content, ok := lookup[h]; ok {
		return decodeNode(content, lookup)
	}
	return NewDigest(h), nil
}

// decodeHexPrefix is the inverse of hexPrefix: it recovers the nibble
// path and leaf/extension flag from a node's compact-encoded key.
func decodeHexPrefix(path []byte) (nibbles []byte, isLeaf bool) {
	if len(path) == 0 {
		return nil, false
	}
	first := path[0]
	isLeaf = first&0x20 != 0
	odd := first&0x10 != 0
	if odd {
		nibbles = append(nibbles, first&0x0f)
	}
	for _, b := range path[1:] {
		nibbles = append(nibbles, b>>4, b&0x0f)
	}
	return nibbles, isLeaf
}
