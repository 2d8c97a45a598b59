package attestation

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"os/exec"

	"github.com/luxfi/geth/accounts/abi"

	"github.com/luxfi/uniprover/internal/registry"
)

// tdxQuoteSize is the fixed TDX quote length produced by the reference
// quote-generation binary, matching tdx_builder.rs's 4936-byte slice.
const tdxQuoteSize = 4936

// SubprocessBuilder shells out to a local TDX quote-generation binary
// (e.g. the Intel DCAP quote generation tool), the Go port of
// tdx_builder.rs's TdxQuoteBuilder: it passes the 64-byte ReportData
// digest hex-encoded via -in/-inform hex and reads a raw binary quote
// back via -outform bin.
type SubprocessBuilder struct {
	binPath string
}

func NewSubprocessBuilder(binPath string) *SubprocessBuilder {
	return &SubprocessBuilder{binPath: binPath}
}

func (b *SubprocessBuilder) TeeType() *big.Int { return big.NewInt(1) }

func (b *SubprocessBuilder) GenerateQuote(ctx context.Context, data registry.ReportData) ([]byte, error) {
	reportData, err := reportDataDigest(data)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, b.binPath,
		"-in", hex.EncodeToString(reportData[:]),
		"-inform", "hex",
		"-outform", "bin",
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("tdx subprocess: run %s: %w", b.binPath, err)
	}

	start := 0
	if idx := bytes.IndexByte(out, '\n'); idx >= 0 {
		start = idx + 1
	}
	if start+tdxQuoteSize > len(out) {
		return nil, fmt.Errorf("tdx subprocess: output too short: got %d bytes after offset %d, want %d", len(out)-start, start, tdxQuoteSize)
	}
	return out[start : start+tdxQuoteSize], nil
}

// packReportData ABI-encodes data's fixed fields the same way the
// original Rust source's ReportData::abi_encode does, so both TEE
// backends bind their quote to an identical digest regardless of which
// one produced it.
func packReportData(data registry.ReportData) ([]byte, error) {
	tupleType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "addr", Type: "address"},
		{Name: "teeType", Type: "uint256"},
		{Name: "referenceBlockNumber", Type: "uint256"},
		{Name: "referenceBlockHash", Type: "bytes32"},
		{Name: "binHash", Type: "bytes32"},
		{Name: "ext", Type: "bytes"},
	})
	if err != nil {
		return nil, fmt.Errorf("attestation: build report data type: %w", err)
	}
	args := abi.Arguments{{Type: tupleType}}
	packed, err := args.Pack(data)
	if err != nil {
		return nil, fmt.Errorf("attestation: pack report data: %w", err)
	}
	if len(packed) < 32 {
		return nil, fmt.Errorf("attestation: packed report data too short")
	}
	return packed[32:], nil
}
