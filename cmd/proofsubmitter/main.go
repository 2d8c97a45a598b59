// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// proofsubmitter posts a stored ProofRequest to a running prover's
// /v1/gen_proof, decodes the returned SignedPoe, cross-checks its signed
// message against the registry's own getSignedMsg view (spec.md §9's
// correctness test: "bytewise equality with the registry's view
// function"), and submits it via verifyProofs — mirroring the original
// Rust source's bin/proof-submitter/src/main.rs. It exercises the
// registry client's read path independently of the attestation loop's
// write path.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/luxfi/geth/accounts/abi/bind"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/geth/ethclient"

	"github.com/luxfi/uniprover/internal/chainspec"
	"github.com/luxfi/uniprover/internal/httpapi"
	"github.com/luxfi/uniprover/internal/poe"
	"github.com/luxfi/uniprover/internal/registry"
)

func main() {
	proverURL := flag.String("prover-url", "http://127.0.0.1:20300", "base URL of a running uniprover instance")
	requestPath := flag.String("request", "", "path to a ProofRequest JSON file (see cmd/guestinput2req)")
	l1Endpoint := flag.String("l1-endpoint", "", "JSON-RPC endpoint the ProverRegistry contract lives behind")
	registryAddrHex := flag.String("prover-registry", "", "ProverRegistry contract address")
	privateKeyHex := flag.String("private-key", "", "hex-encoded key paying for the verifyProofs transaction")
	blockID := flag.Uint64("block-id", 0, "L2 block id the proof verifies")
	flag.Parse()

	if err := run(*proverURL, *requestPath, *l1Endpoint, *registryAddrHex, *privateKeyHex, *blockID); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(proverURL, requestPath, l1Endpoint, registryAddrHex, privateKeyHex string, blockID uint64) error {
	ctx := context.Background()

	raw, err := os.ReadFile(requestPath)
	if err != nil {
		return fmt.Errorf("proofsubmitter: read %s: %w", requestPath, err)
	}
	var req httpapi.ProofRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("proofsubmitter: decode proof request: %w", err)
	}

	httpResp, err := http.Post(proverURL+"/v1/gen_proof", "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("proofsubmitter: call gen_proof: %w", err)
	}
	defer httpResp.Body.Close()
	var genProofResp httpapi.ProofResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&genProofResp); err != nil {
		return fmt.Errorf("proofsubmitter: decode gen_proof response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("proofsubmitter: gen_proof returned %d", httpResp.StatusCode)
	}

	signed, err := poe.Decode(genProofResp.Data)
	if err != nil {
		return err
	}

	privKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return fmt.Errorf("proofsubmitter: parse private-key: %w", err)
	}
	from := crypto.PubkeyToAddress(privKey.PublicKey)
	registryAddr := common.HexToAddress(registryAddrHex)

	// Decode leaves the signing context zero-valued; refill it from the
	// request and the registry address before the cross-check.
	signed.Poe.ProverRegistry = registryAddr
	if req.Input != nil {
		spec, err := chainspec.Default.Get(req.Input.Data.ChainID)
		if err != nil {
			return err
		}
		if signed.Poe.MetaHash, err = poe.DefaultMetaHash(spec, req.Input); err != nil {
			return err
		}
		signed.Poe.ChainID = req.Input.Data.ChainID
		signed.Poe.Prover = req.Input.Data.ProverAddress
	}

	l1, err := ethclient.DialContext(ctx, l1Endpoint)
	if err != nil {
		return fmt.Errorf("proofsubmitter: dial %s: %w", l1Endpoint, err)
	}
	chainID, err := l1.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("proofsubmitter: fetch chain id: %w", err)
	}
	l1.Close()
	signer, err := bind.NewKeyedTransactorWithChainID(privKey, chainID)
	if err != nil {
		return fmt.Errorf("proofsubmitter: build transactor: %w", err)
	}

	client, err := registry.New(ctx, l1Endpoint, registryAddr, from, func(tx *types.Transaction) (*types.Transaction, error) {
		return signer.Signer(from, tx)
	})
	if err != nil {
		return err
	}

	onchainMsg, err := client.GetSignedMsg(ctx, signed.Poe.Transition, signed.Poe.NewInstance, signed.Poe.Prover, signed.Poe.MetaHash)
	if err != nil {
		return fmt.Errorf("proofsubmitter: getSignedMsg: %w", err)
	}
	localDigest, err := signed.Poe.Digest()
	if err != nil {
		return err
	}
	onchainDigest := crypto.Keccak256Hash(onchainMsg)
	if onchainDigest != localDigest {
		return fmt.Errorf("proofsubmitter: signed message mismatch: local %s, on-chain %s", localDigest, onchainDigest)
	}
	fmt.Println("signed message cross-check passed")

	err = client.VerifyProofs(ctx, []registry.Proof{{
		SignedPoe: signed,
		MetaHash:  signed.Poe.MetaHash,
		Prover:    signed.Poe.Prover,
		BlockID:   blockID,
		MsgSender: from,
	}})
	if err != nil {
		return fmt.Errorf("proofsubmitter: verifyProofs: %w", err)
	}
	fmt.Println("verifyProofs submitted")
	return nil
}
