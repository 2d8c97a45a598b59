// Package registry wraps the on-chain ProverRegistry contract: register,
// verifyProofs, and the read-only view functions, plus typed revert
// decoding. Grounded on the original Rust source's
// crates/base/src/prover_registry.rs (ProverRegistry) and crates/base/
// src/eth.rs (Eth's transact/call + revert_data), adapted to
// github.com/luxfi/geth/ethclient + accounts/abi/bind the way the
// teacher's accounts/abi/bind/backends/simulated.go exercises the same
// bind.ContractBackend surface for tests.
package registry

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/accounts/abi/bind"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/geth/ethclient"

	"github.com/luxfi/uniprover/internal/errs"
	"github.com/luxfi/uniprover/internal/poe"
)

// ReportData is the attestation payload the register() call submits
// on-chain, matching IProverRegistry.ReportData's field order exactly.
type ReportData struct {
	Addr                  common.Address
	TeeType               *big.Int
	ReferenceBlockNumber  *big.Int
	ReferenceBlockHash    common.Hash
	BinHash               common.Hash
	Ext                   []byte
}

// Registration is what register() returns once the InstanceAdded event
// has been observed in the transaction's receipt.
type Registration struct {
	Address    common.Address
	InstanceID *big.Int
	ValidUntil uint64
}

// Client talks to one deployed ProverRegistry contract over JSON-RPC.
type Client struct {
	eth      *ethclient.Client
	contract common.Address
	abi      abi.ABI
	signer   func(*types.Transaction) (*types.Transaction, error)
	from     common.Address
}

// New dials rpcURL and binds to contract, signing outgoing transactions
// with signTx (typically bind.NewKeyedTransactorWithChainID's Signer).
func New(ctx context.Context, rpcURL string, contract common.Address, from common.Address, signTx func(*types.Transaction) (*types.Transaction, error)) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("registry: dial %s: %w", rpcURL, err)
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("registry: parse abi: %w", err)
	}
	return &Client{eth: eth, contract: contract, abi: parsed, signer: signTx, from: from}, nil
}

func (c *Client) boundContract() *bind.BoundContract {
	return bind.NewBoundContract(c.contract, c.abi, c.eth, c.eth, c.eth)
}

// ChainID returns the registry's configured uniFiChainId view value.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var out []interface{}
	err := c.boundContract().Call(&bind.CallOpts{Context: ctx}, &out, "uniFiChainId")
	if err != nil {
		return 0, wrapRevert(err)
	}
	return out[0].(uint64), nil
}

// LatestBlock returns the L1 chain's current head number and hash, the
// freshness anchor internal/attestation binds a quote to (spec.md §4.5).
func (c *Client) LatestBlock(ctx context.Context) (*big.Int, common.Hash, error) {
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("registry: fetch latest header: %w", err)
	}
	return header.Number, header.Hash(), nil
}

// AttestValiditySeconds returns how long a freshly registered attestation
// stays valid. internal/attestloop does not call it: it sleeps until the
// validUntil carried by the registration event.
func (c *Client) AttestValiditySeconds(ctx context.Context) (uint64, error) {
	var out []interface{}
	err := c.boundContract().Call(&bind.CallOpts{Context: ctx}, &out, "attestValiditySeconds")
	if err != nil {
		return 0, wrapRevert(err)
	}
	return out[0].(*big.Int).Uint64(), nil
}

// GetSignedMsg calls the registry's getSignedMsg view function, the
// cross-check target spec.md §9 names for validating this module's own
// signing digest byte-for-byte against the contract's own encoding.
func (c *Client) GetSignedMsg(ctx context.Context, transition poe.Transition, newInstance, prover common.Address, metaHash common.Hash) ([]byte, error) {
	var out []interface{}
	wireTransition := struct {
		ParentHash common.Hash
		BlockHash  common.Hash
		StateRoot  common.Hash
		Graffiti   common.Hash
	}{transition.ParentHash, transition.BlockHash, transition.StateRoot, transition.Graffiti}
	err := c.boundContract().Call(&bind.CallOpts{Context: ctx}, &out, "getSignedMsg", wireTransition, newInstance, prover, metaHash)
	if err != nil {
		return nil, wrapRevert(err)
	}
	return out[0].([]byte), nil
}

// Register submits a TEE report and its ReportData, waits for the
// transaction to be mined, and extracts the InstanceAdded event the
// contract emits — there is no other way to learn the assigned instance
// id, matching ProverRegistry::register's get_event::<InstanceAdded>
// lookup.
func (c *Client) Register(ctx context.Context, report []byte, data ReportData) (*Registration, error) {
	contractCall := c.boundContract()
	auth := &bind.TransactOpts{Context: ctx, From: c.from, Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
		return c.signer(tx)
	}, NoSend: false}

	tx, err := contractCall.Transact(auth, "register", report, data)
	if err != nil {
		return nil, wrapRevert(err)
	}
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("registry: wait for register receipt: %w", err)
	}
	for _, log := range receipt.Logs {
		if len(log.Topics) == 0 || log.Topics[0] != instanceAddedTopic {
			continue
		}
		var unpacked struct {
			Replaced   common.Address
			ValidUntil *big.Int
		}
		if err := c.abi.UnpackIntoInterface(&unpacked, "InstanceAdded", log.Data); err != nil {
			continue
		}
		return &Registration{
			Address:    common.BytesToAddress(log.Topics[2].Bytes()),
			InstanceID: new(big.Int).SetBytes(log.Topics[1].Bytes()),
			ValidUntil: unpacked.ValidUntil.Uint64(),
		}, nil
	}
	return nil, errs.At("register", fmt.Errorf("%w: no InstanceAdded event in receipt", errs.ErrProverNotRegistered))
}

// proofPoeWire mirrors IProverRegistry.SignedPoe's on-chain layout —
// transition, id, newInstance, signature, teeType — matching
// poe.Encode/Decode's wire shape exactly, so a single ABI struct shape
// is shared between the byte encoding and the contract call.
type proofPoeWire struct {
	Transition  poe.Transition
	Id          *big.Int
	NewInstance common.Address
	Signature   []byte
	TeeType     *big.Int
}

// proofContextWire mirrors IVerifier.Context's on-chain layout exactly,
// in ABI component order.
type proofContextWire struct {
	MetaHash     common.Hash
	BlobHash     common.Hash
	Prover       common.Address
	BlockId      uint64
	IsContesting bool
	BlobUsed     bool
	MsgSender    common.Address
}

// proofWire mirrors verifyProofs' Proof{poe, ctx} argument: two nested
// tuples, not a flattened struct.
type proofWire struct {
	Poe proofPoeWire
	Ctx proofContextWire
}

// Proof is one element of the verifyProofs batch call, pairing a signed
// PoE with the verification Context the on-chain verifier needs
// (IProverRegistry.verifyProofs' Proof{poe: SignedPoe, ctx: Context}).
type Proof struct {
	SignedPoe    *poe.SignedPoe
	MetaHash     common.Hash
	BlobHash     common.Hash
	Prover       common.Address
	BlockID      uint64
	IsContesting bool
	BlobUsed     bool
	MsgSender    common.Address
}

// VerifyProofs submits a batch of proofs to the registry's verifyProofs
// entrypoint.
func (c *Client) VerifyProofs(ctx context.Context, proofs []Proof) error {
	contractCall := c.boundContract()
	auth := &bind.TransactOpts{Context: ctx, From: c.from, Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
		return c.signer(tx)
	}}
	wire := make([]proofWire, len(proofs))
	for i, p := range proofs {
		wire[i] = proofWire{
			Poe: proofPoeWire{
				Transition:  p.SignedPoe.Poe.Transition,
				Id:          p.SignedPoe.ID,
				NewInstance: p.SignedPoe.Poe.NewInstance,
				Signature:   p.SignedPoe.Signature[:],
				TeeType:     p.SignedPoe.Poe.TeeType,
			},
			Ctx: proofContextWire{
				MetaHash:     p.MetaHash,
				BlobHash:     p.BlobHash,
				Prover:       p.Prover,
				BlockId:      p.BlockID,
				IsContesting: p.IsContesting,
				BlobUsed:     p.BlobUsed,
				MsgSender:    p.MsgSender,
			},
		}
	}
	tx, err := contractCall.Transact(auth, "verifyProofs", wire)
	if err != nil {
		return wrapRevert(err)
	}
	if _, err := bind.WaitMined(ctx, c.eth, tx); err != nil {
		return fmt.Errorf("registry: wait for verifyProofs receipt: %w", err)
	}
	return nil
}

// instanceAddedTopic is keccak256("InstanceAdded(uint256,address,address,uint256)"),
// used to pick the right log out of a receipt that may carry several.
var instanceAddedTopic = crypto.Keccak256Hash([]byte("InstanceAdded(uint256,address,address,uint256)"))
