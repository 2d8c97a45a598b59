// Package pob defines the Proof-of-Block container: a self-contained
// witness bundle sufficient to re-execute one block with no external
// state access, mirroring the original Rust source's
// crates/prover/src/pob.rs Pob/PobData and the ProofInput it projects
// from, adapted into JSON-tagged Go structs the way the teacher's
// core/types mirrors go-ethereum's wire structs.
package pob

import (
	"encoding/json"
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"

	"github.com/luxfi/uniprover/internal/mpt"
)

// Data is the witness payload carried alongside the block itself: the
// pre-state trie, every per-account storage trie the block touches,
// contract code preimages, and the ancestor block hashes BLOCKHASH may
// reference (spec.md §3's "last 256 block hashes" window, reproduced here
// as a sparse map since only touched ancestors are supplied).
type Data struct {
	ChainID uint64 `json:"chain_id"`

	// PrevStateRoot is the state root asserted by the parent header; the
	// reconstructed StateTrie's hash must equal this before execution
	// begins (spec.md §4.1 precondition).
	PrevStateRoot common.Hash `json:"prev_state_root"`

	// BlockHashes maps block number to hash for every ancestor block the
	// witness proves, keyed sparsely rather than as a fixed 256-slot ring
	// buffer since only the numbers a BLOCKHASH opcode actually read need
	// to be present.
	BlockHashes map[uint64]common.Hash `json:"block_hashes"`

	// StateTrie is the pre-state account trie, reconstructed from the
	// flattened witness node list in the wire encoding (see
	// UnmarshalJSON).
	StateTrie *mpt.Node `json:"-"`

	// StorageTries holds one storage trie per account the block's
	// execution touches; an account with no entry here is assumed to
	// have empty storage.
	StorageTries map[common.Address]*mpt.Node `json:"-"`

	// Codes lists every contract code preimage the block's execution may
	// need, keyed implicitly by keccak256(code) when loaded into a
	// statedb.
	Codes [][]byte `json:"codes"`

	L2Contract     *common.Address `json:"l2_contract,omitempty"`
	L1Contract     *common.Address `json:"l1_contract,omitempty"`
	L1Header       *types.Header   `json:"l1_header,omitempty"`
	L2ParentHeader *types.Header   `json:"l2_parent_header"`

	// Graffiti is the 32-byte operator tag carried verbatim into the Poe
	// (spec.md §3's PoB invariant list).
	Graffiti common.Hash `json:"graffiti"`

	// ProverAddress is the address the block's metadata names as the
	// prover of record, signed into the Poe alongside NewInstance (the
	// TEE-attested signing key) so the registry can check both (spec.md
	// §4.3's "prover: address" field).
	ProverAddress common.Address `json:"prover_address"`

	// BaseFeeConfig is the L2 base-fee adjustment parameters the executor's
	// ExtData needs for fork-aware gas pricing, passed through verbatim
	// (spec.md §4.2 "supply the external TEE-specific execution extension
	// ... base-fee config").
	BaseFeeConfig BaseFeeConfig `json:"base_fee_config"`

	// BlockMetadata is the already ABI-encoded, fork-tagged block metadata
	// struct (BlockMetadata/BlockMetadataV2, selected by the chain spec's
	// MetadataFork) that meta_hash is the keccak256 of (spec.md §4.3). The
	// witness producer — the external guest-input projector, out of this
	// module's scope per spec.md §1 — is responsible for ABI-encoding the
	// fork-correct struct; this module only hashes the bytes it is given
	// (see internal/poe.MetaHashForFork).
	BlockMetadata []byte `json:"block_metadata,omitempty"`

	// wireNodes/wireStorageNodes hold the flattened RLP node lists the
	// trie is rebuilt from; kept after decode so re-marshaling round-trips
	// byte-identically.
	wireNodes        [][]byte
	wireStorageNodes map[common.Address][][]byte
}

// BaseFeeConfig mirrors Taiko's L2 base-fee-adjustment parameters, passed
// from the witness straight through to the executor's block context.
type BaseFeeConfig struct {
	AdjustmentQuotient     uint8  `json:"adjustment_quotient"`
	SharingPctg            uint8  `json:"sharing_pctg"`
	GasIssuancePerSecond   uint32 `json:"gas_issuance_per_second"`
	MinGasExcess           uint64 `json:"min_gas_excess"`
	MaxGasIssuancePerBlock uint32 `json:"max_gas_issuance_per_block"`
}

// Pob pairs the block itself with the witness Data needed to re-execute
// it, matching the Rust original's top-level Pob struct exactly.
type Pob struct {
	Block *types.Block `json:"block"`
	Data  Data         `json:"data"`
}

// pobDataWire is the JSON wire shape: tries are transmitted as flat
// base64-encoded RLP node lists (the actual witness) rather than as the
// reconstructed in-memory structure, matching how the original Rust
// source serializes MptNode (its Data enum derives Serialize directly,
// but the flattened-node-list form is what every real witness producer
// emits, and what internal/mpt.Node.Nodes()/FromNodes() round-trip).
type pobDataWire struct {
	ChainID         uint64                       `json:"chain_id"`
	PrevStateRoot   common.Hash                  `json:"prev_state_root"`
	BlockHashes     map[uint64]common.Hash       `json:"block_hashes"`
	MptNodes        [][]byte                     `json:"mpt_nodes"`
	StorageMptNodes map[common.Address][][]byte  `json:"storage_mpt_nodes"`
	Codes           [][]byte                     `json:"codes"`
	L2Contract      *common.Address              `json:"l2_contract,omitempty"`
	L1Contract      *common.Address              `json:"l1_contract,omitempty"`
	L1Header        *types.Header                `json:"l1_header,omitempty"`
	L2ParentHeader  *types.Header                `json:"l2_parent_header"`
	Graffiti        common.Hash                  `json:"graffiti"`
	ProverAddress   common.Address               `json:"prover_address"`
	BaseFeeConfig   BaseFeeConfig                `json:"base_fee_config"`
	BlockMetadata   []byte                       `json:"block_metadata,omitempty"`
}

func (d *Data) UnmarshalJSON(raw []byte) error {
	var w pobDataWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return err
	}
	trie, err := mpt.FromNodes(w.MptNodes)
	if err != nil {
		return fmt.Errorf("pob: rebuild state trie: %w", err)
	}
	storageTries := make(map[common.Address]*mpt.Node, len(w.StorageMptNodes))
	for addr, nodes := range w.StorageMptNodes {
		t, err := mpt.FromNodes(nodes)
		if err != nil {
			return fmt.Errorf("pob: rebuild storage trie for %s: %w", addr, err)
		}
		storageTries[addr] = t
	}
	*d = Data{
		ChainID:          w.ChainID,
		PrevStateRoot:    w.PrevStateRoot,
		BlockHashes:      w.BlockHashes,
		StateTrie:        trie,
		StorageTries:     storageTries,
		Codes:            w.Codes,
		L2Contract:       w.L2Contract,
		L1Contract:       w.L1Contract,
		L1Header:         w.L1Header,
		L2ParentHeader:   w.L2ParentHeader,
		Graffiti:         w.Graffiti,
		ProverAddress:    w.ProverAddress,
		BaseFeeConfig:    w.BaseFeeConfig,
		BlockMetadata:    w.BlockMetadata,
		wireNodes:        w.MptNodes,
		wireStorageNodes: w.StorageMptNodes,
	}
	return nil
}

func (d Data) MarshalJSON() ([]byte, error) {
	storageNodes := d.wireStorageNodes
	if storageNodes == nil {
		storageNodes = make(map[common.Address][][]byte, len(d.StorageTries))
		for addr, t := range d.StorageTries {
			storageNodes[addr] = t.Nodes()
		}
	}
	nodes := d.wireNodes
	if nodes == nil && d.StateTrie != nil {
		nodes = d.StateTrie.Nodes()
	}
	return json.Marshal(pobDataWire{
		ChainID:         d.ChainID,
		PrevStateRoot:   d.PrevStateRoot,
		BlockHashes:     d.BlockHashes,
		MptNodes:        nodes,
		StorageMptNodes: storageNodes,
		Codes:           d.Codes,
		L2Contract:      d.L2Contract,
		L1Contract:      d.L1Contract,
		L1Header:        d.L1Header,
		L2ParentHeader:  d.L2ParentHeader,
		Graffiti:        d.Graffiti,
		ProverAddress:   d.ProverAddress,
		BaseFeeConfig:   d.BaseFeeConfig,
		BlockMetadata:   d.BlockMetadata,
	})
}

// BlockHash returns the hash recorded for an ancestor block number, or the
// zero hash if the witness does not cover it — mirroring the Rust
// original's block_hash() which defaults rather than errors, since a
// BLOCKHASH query outside the 256-block window is defined to return zero
// (spec.md §4.1 edge case).
func (d *Data) BlockHash(number uint64) common.Hash {
	return d.BlockHashes[number]
}

// ContractCode returns the preimage for codeHash, or nil if the witness
// did not include it.
func (d *Data) ContractCode(codeHash common.Hash, index map[common.Hash][]byte) ([]byte, bool) {
	code, ok := index[codeHash]
	return code, ok
}

// BuildCodeIndex hashes every supplied code preimage once, matching
// MemDB::init's contracts map built from provider.contract_codes().
func BuildCodeIndex(codes [][]byte, hashFn func([]byte) common.Hash) map[common.Hash][]byte {
	idx := make(map[common.Hash][]byte, len(codes))
	for _, code := range codes {
		idx[hashFn(code)] = code
	}
	return idx
}
