package poe

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
)

// signedPoeTuple mirrors IProverRegistry.SignedPoe's on-chain layout
// exactly: transition, id, newInstance, signature, teeType — the shape
// /v1/gen_proof's "data" field ABI-encodes (spec.md §6). This is
// deliberately narrower than the internal Poe struct: ChainID,
// ProverRegistry, MetaHash and Prover are signing context the contract
// never stores on SignedPoe itself, so they do not round-trip through
// Encode/Decode.
type signedPoeTuple struct {
	Transition  Transition
	Id          *big.Int
	NewInstance common.Address
	Signature   []byte
	TeeType     *big.Int
}

var signedPoeArgs = mustSignedPoeArgs()

func mustSignedPoeArgs() abi.Arguments {
	tupleType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "transition", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "parentHash", Type: "bytes32"},
			{Name: "blockHash", Type: "bytes32"},
			{Name: "stateRoot", Type: "bytes32"},
			{Name: "graffiti", Type: "bytes32"},
		}},
		{Name: "id", Type: "uint256"},
		{Name: "newInstance", Type: "address"},
		{Name: "signature", Type: "bytes"},
		{Name: "teeType", Type: "uint256"},
	})
	if err != nil {
		panic(fmt.Sprintf("poe: build signed poe type: %v", err))
	}
	return abi.Arguments{{Type: tupleType}}
}

// Encode ABI-encodes sp as the on-chain SignedPoe struct, the bytes
// /v1/gen_proof returns in ProofResponse.Data (spec.md §6).
func Encode(sp *SignedPoe) ([]byte, error) {
	tuple := signedPoeTuple{
		Transition:  sp.Poe.Transition,
		Id:          sp.ID,
		NewInstance: sp.Poe.NewInstance,
		Signature:   sp.Signature[:],
		TeeType:     sp.Poe.TeeType,
	}
	packed, err := signedPoeArgs.Pack(tuple)
	if err != nil {
		return nil, fmt.Errorf("poe: encode signed poe: %w", err)
	}
	return packed, nil
}

// Decode reverses Encode, reconstructing a SignedPoe from its on-chain
// ABI-encoded form (spec.md §6). Only the fields SignedPoe actually
// carries on-chain survive the round-trip; Poe.ChainID, ProverRegistry,
// MetaHash and Prover come back zero-valued since the wire format never
// carried them — callers that need those fields must supply them
// separately (they are chain/registry context, not part of SignedPoe).
func Decode(data []byte) (*SignedPoe, error) {
	values, err := signedPoeArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("poe: decode signed poe: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("poe: decode signed poe: expected 1 tuple, got %d", len(values))
	}

	// abi.Unpack builds the tuple's Go value as a struct type generated on
	// the fly via reflection (abi.ToCamelCase(argName)), so it is never
	// identical to signedPoeTuple's type; read its fields by
	// case-insensitive name instead of asserting a concrete type.
	rv := reflect.ValueOf(values[0])
	field := func(name string) reflect.Value {
		return rv.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) })
	}
	transitionField := func(tv reflect.Value, name string) reflect.Value {
		return tv.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) })
	}

	transitionValue := field("transition")
	sp := &SignedPoe{
		Poe: Poe{
			Transition: Transition{
				ParentHash: transitionField(transitionValue, "parentHash").Interface().(common.Hash),
				BlockHash:  transitionField(transitionValue, "blockHash").Interface().(common.Hash),
				StateRoot:  transitionField(transitionValue, "stateRoot").Interface().(common.Hash),
				Graffiti:   transitionField(transitionValue, "graffiti").Interface().(common.Hash),
			},
			NewInstance: field("newInstance").Interface().(common.Address),
			TeeType:     field("teeType").Interface().(*big.Int),
		},
		ID: field("id").Interface().(*big.Int),
	}
	copy(sp.Signature[:], field("signature").Interface().([]byte))
	return sp, nil
}

// EncodePacked produces the 89-byte packed form /v1/get_proof and
// /v1/get_proofs return: id_be[28:32] ‖ new_instance ‖ signature (spec.md
// §6, invariant 7).
func EncodePacked(sp *SignedPoe) [89]byte {
	var out [89]byte
	if sp.ID != nil {
		idBytes := sp.ID.Bytes()
		if len(idBytes) > 4 {
			idBytes = idBytes[len(idBytes)-4:]
		}
		copy(out[4-len(idBytes):4], idBytes)
	}
	copy(out[4:24], sp.Poe.NewInstance[:])
	copy(out[24:89], sp.Signature[:])
	return out
}
