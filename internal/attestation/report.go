// Package attestation builds the TEE attestation report the prover
// submits to the registry on rotation, grounded on the original Rust
// source's crates/tee package (attestation_report.rs, mock_builder.rs,
// tdx_builder.rs, agent_service.rs). ReportBuilder is the capability
// abstraction every backend implements, the Go analogue of the Rust
// trait of the same name — mirroring how the teacher splits a small
// capability interface (consensus.Engine) from its concrete backends.
package attestation

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"

	"github.com/luxfi/uniprover/internal/keypair"
	"github.com/luxfi/uniprover/internal/registry"
)

// ReportBuilder produces a TEE quote binding to the supplied ReportData,
// the one capability every attestation backend (mock, TDX local agent,
// TDX subprocess) must implement.
type ReportBuilder interface {
	GenerateQuote(ctx context.Context, data registry.ReportData) ([]byte, error)
	TeeType() *big.Int
}

// ReferenceBlockSource supplies the recent L1 block the attestation
// report binds to, decoupling attestation construction from a concrete
// RPC client so tests can supply a fixed block.
type ReferenceBlockSource interface {
	SelectReferenceBlock(ctx context.Context) (number *big.Int, hash common.Hash, err error)
}

// Report is the assembled attestation, ready to submit via
// registry.Client.Register, matching the original Rust source's
// AttestationReport exactly field-for-field.
type Report struct {
	Quote                []byte
	Address              common.Address
	ReferenceBlockHash   common.Hash
	ReferenceBlockNumber *big.Int
	BinHash              common.Hash
	TeeType              *big.Int
}

// Build assembles a fresh attestation report for rotation's candidate
// identity: it selects a recent L1 block to anchor freshness, hashes the
// running binary (so the report proves which build produced it), and
// asks builder for a quote over that ReportData — the four steps
// AttestationReport::build performs in sequence.
func Build(ctx context.Context, builder ReportBuilder, ref ReferenceBlockSource, rotation *keypair.Rotation) (*Report, error) {
	number, hash, err := ref.SelectReferenceBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("attestation: select reference block: %w", err)
	}

	binData, err := os.ReadFile(os.Args[0])
	if err != nil {
		return nil, fmt.Errorf("attestation: read own binary %s: %w", os.Args[0], err)
	}
	binHash := crypto.Keccak256Hash(binData)

	report := &Report{
		Address:              rotation.Address(),
		ReferenceBlockHash:   hash,
		ReferenceBlockNumber: number,
		TeeType:              builder.TeeType(),
		BinHash:              binHash,
	}

	data := registry.ReportData{
		Addr:                 report.Address,
		TeeType:              report.TeeType,
		ReferenceBlockNumber: report.ReferenceBlockNumber,
		ReferenceBlockHash:   report.ReferenceBlockHash,
		BinHash:              report.BinHash,
		Ext:                  nil,
	}
	quote, err := builder.GenerateQuote(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("attestation: generate quote: %w", err)
	}
	report.Quote = quote
	return report, nil
}

// AsReportData converts an assembled report into the wire ReportData the
// registry's register() call submits alongside the quote.
func (r *Report) AsReportData() registry.ReportData {
	return registry.ReportData{
		Addr:                 r.Address,
		TeeType:              r.TeeType,
		ReferenceBlockNumber: r.ReferenceBlockNumber,
		ReferenceBlockHash:   r.ReferenceBlockHash,
		BinHash:              r.BinHash,
		Ext:                  nil,
	}
}

// randomBytes is shared by MockBuilder's quote generation and tests that
// want deterministic-looking filler without importing math/rand directly
// (crypto/rand is what the teacher's localsigner.go reaches for too).
func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
