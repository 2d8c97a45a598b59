// Package poe builds and signs the Proof-of-Execution the registry
// contract verifies, grounded on the Solidity ABI embedded in the
// original Rust source's crates/base/src/prover_registry.rs
// (IProverRegistry.SignedPoe / IVerifier.Context / TaikoData.Transition)
// and the signing call in crates/prover/src/poe.rs (Poe::sign). The
// signed digest is produced with github.com/luxfi/geth/accounts/abi the
// same way the contract itself computes it: abi.encode(message) passed
// as a single dynamic-tuple argument, which Solidity always prefixes
// with a 32-byte offset word before the tuple's own tail encoding — a
// word the verifier strips in the same way before hashing, so the
// signer must strip it too (spec.md §4.4).
package poe

import (
	"fmt"
	"math/big"

	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"

	"github.com/luxfi/uniprover/internal/chainspec"
	"github.com/luxfi/uniprover/internal/errs"
	"github.com/luxfi/uniprover/internal/keypair"
	"github.com/luxfi/uniprover/internal/pob"
)

// Transition mirrors TaikoData.Transition exactly (field order matters:
// it is part of the ABI-encoded, signed tuple).
type Transition struct {
	ParentHash common.Hash
	BlockHash  common.Hash
	StateRoot  common.Hash
	Graffiti   common.Hash
}

// Poe is the unsigned proof produced by one block's execution: a
// transition plus the chain-specific addressing the registry needs to
// place it (spec.md §4.4). MetaHash is the fork-tagged block-metadata
// hash (see MetaHashForFork) — computed by the caller from the block's
// metadata variant (None/Hekla/Ontake) before Sign is called.
type Poe struct {
	ChainID        uint64
	ProverRegistry common.Address
	Transition     Transition
	MetaHash       common.Hash
	NewInstance    common.Address
	// Prover is the address named as prover-of-record in the block's
	// metadata (pob.Data.ProverAddress) — distinct from NewInstance, the
	// TEE-attested key that actually produces the signature, per spec.md
	// §4.3's signed-message tuple ("new_instance: address, prover:
	// address").
	Prover  common.Address
	TeeType *big.Int
}

// SignedPoe is the wire/on-chain form: Poe plus the registered instance
// id and the 65-byte recoverable signature over Poe's canonical digest.
type SignedPoe struct {
	Poe       Poe
	ID        *big.Int
	Signature [65]byte
}

// signMessage is the exact tuple shape that gets ABI-encoded and signed:
// spec.md §4.3's canonical tuple ("VERIFY_PROOF", chain_id,
// prover_registry, poe, new_instance, prover, meta_hash). Tag is always
// the literal "VERIFY_PROOF" domain separator; Poe is the nested
// transition tuple, not the full internal Poe struct — this must encode
// to exactly the bytes the registry contract's getSignedMsg view
// function produces, since getSignedMsg receives only (transition,
// newInstance, prover, metaHash) and prepends the tag, chain id and its
// own address internally.
type signMessage struct {
	Tag            string
	ChainId        *big.Int
	ProverRegistry common.Address
	Poe            Transition
	NewInstance    common.Address
	Prover         common.Address
	MetaHash       common.Hash
}

var messageArgs = mustMessageArgs()

func mustMessageArgs() abi.Arguments {
	tupleType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "tag", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "proverRegistry", Type: "address"},
		{Name: "poe", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "parentHash", Type: "bytes32"},
			{Name: "blockHash", Type: "bytes32"},
			{Name: "stateRoot", Type: "bytes32"},
			{Name: "graffiti", Type: "bytes32"},
		}},
		{Name: "newInstance", Type: "address"},
		{Name: "prover", Type: "address"},
		{Name: "metaHash", Type: "bytes32"},
	})
	if err != nil {
		panic(fmt.Sprintf("poe: build message type: %v", err))
	}
	return abi.Arguments{{Type: tupleType}}
}

// Digest computes the 32-byte signing digest for p: ABI-encode the
// message tuple, drop the leading 32-byte dynamic-tuple offset word
// Solidity's abi.encode(struct) always prepends, then keccak256 the rest.
// This must cross-check bytewise against the registry contract's
// getSignedMsg(transition, newInstance, prover, metaHash) view (spec.md
// §9).
func (p Poe) Digest() (common.Hash, error) {
	msg := signMessage{
		Tag:            "VERIFY_PROOF",
		ChainId:        new(big.Int).SetUint64(p.ChainID),
		ProverRegistry: p.ProverRegistry,
		Poe:            p.Transition,
		NewInstance:    p.NewInstance,
		Prover:         p.Prover,
		MetaHash:       p.MetaHash,
	}
	packed, err := messageArgs.Pack(msg)
	if err != nil {
		return common.Hash{}, fmt.Errorf("poe: pack message: %w", err)
	}
	if len(packed) < 32 {
		return common.Hash{}, fmt.Errorf("poe: packed message too short: %d bytes", len(packed))
	}
	return crypto.Keccak256Hash(packed[32:]), nil
}

// Sign signs p with id (the registered instance id) and kp, producing the
// wire SignedPoe the registry's verifyProofs expects.
func Sign(p Poe, id *big.Int, kp *keypair.Keypair) (*SignedPoe, error) {
	digest, err := p.Digest()
	if err != nil {
		return nil, err
	}
	sig, err := kp.SignDigestECDSA(digest)
	if err != nil {
		return nil, errs.Atf(err, "sign poe digest")
	}
	return &SignedPoe{Poe: p, ID: id, Signature: sig}, nil
}

// RecoverSigner recovers the address that produced sp's signature,
// independent of sp.Poe.NewInstance — callers compare the two to detect
// a forged or mismatched signature (the PROVER_ADDR_MISMATCH revert case
// in internal/registry).
func RecoverSigner(sp *SignedPoe) (common.Address, error) {
	digest, err := sp.Poe.Digest()
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(digest[:], sp.Signature[:])
	if err != nil {
		return common.Address{}, fmt.Errorf("poe: recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// MetaHashForFork computes block_metadata's hash for the fork variant the
// chain spec selects, per spec.md §4.3 ("block_metadata is a fork-tagged
// variant"). Each variant ABI-encodes a different BlockMetadata shape
// before hashing; only the fork tag and the raw already-encoded metadata
// bytes are needed here since the caller (internal/executor's consumer)
// is responsible for producing the fork-correct encoding.
func MetaHashForFork(fork chainspec.MetadataFork, encodedMetadata []byte) common.Hash {
	// The fork tag does not change the hash function itself (both forks
	// hash their own ABI-encoded struct with keccak256); it only changes
	// which struct shape the caller encoded into encodedMetadata. Keeping
	// the switch here (rather than collapsing to a single line) documents
	// that this is a deliberate per-fork hook, not an oversight.
	switch fork {
	case chainspec.MetadataForkHekla, chainspec.MetadataForkOntake, chainspec.MetadataForkNone:
		return crypto.Keccak256Hash(encodedMetadata)
	default:
		return crypto.Keccak256Hash(encodedMetadata)
	}
}

// DefaultMetaHash computes meta_hash for p straight from its witness:
// the caller that built the PoB (the external guest-input projector) is
// responsible for placing the fork-correct ABI-encoded block metadata
// bytes in p.Data.BlockMetadata; this only selects the hashing rule for
// spec's chain's fork (spec.md §4.3).
func DefaultMetaHash(spec *chainspec.Spec, p *pob.Pob) (common.Hash, error) {
	return MetaHashForFork(spec.MetadataFork, p.Data.BlockMetadata), nil
}

// ChainCheck validates that a run of per-block Poe values forms one
// unbroken chain: each successive transition's parent hash must equal
// the previous transition's block hash. This is spec.md §9's corrected
// (non-off-by-one) aggregation check — see DESIGN.md for why the
// original Rust source's off-by-one is not reproduced.
func ChainCheck(poes []Poe) error {
	for i := 1; i < len(poes); i++ {
		if poes[i].Transition.ParentHash != poes[i-1].Transition.BlockHash {
			return fmt.Errorf("%w: block %d parent_hash %s != block %d block_hash %s",
				errs.ErrChainContinuity, i, poes[i].Transition.ParentHash, i-1, poes[i-1].Transition.BlockHash)
		}
	}
	return nil
}
