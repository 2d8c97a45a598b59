package attestation

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/luxfi/geth/crypto"

	"github.com/luxfi/uniprover/internal/registry"
)

// AgentServiceBuilder asks a local TDX host agent (assumed listening on
// 127.0.0.1:8000, the fixed address the Rust original's AgentService
// dials) to produce a quote over the report data's ABI-encoded hash, the
// architecture real confidential-VM TEE nodes use since quote generation
// needs a host-side ioctl the guest process cannot issue itself.
type AgentServiceBuilder struct {
	httpClient *http.Client
}

func NewAgentServiceBuilder() *AgentServiceBuilder {
	return &AgentServiceBuilder{httpClient: &http.Client{Timeout: 60 * time.Second}}
}

func (b *AgentServiceBuilder) TeeType() *big.Int { return big.NewInt(1) }

// TdxContents carries the base64-encoded TDX attestation report the
// agent returns, matching agent_service.rs's TdxContents.
type TdxContents struct {
	AttestationReport []byte `json:"attestation_report"`
}

func (t *TdxContents) UnmarshalJSON(raw []byte) error {
	var wire struct {
		AttestationReport string `json:"attestation_report"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	decoded, err := base64.StdEncoding.DecodeString(wire.AttestationReport)
	if err != nil {
		return fmt.Errorf("tdx contents: decode attestation_report: %w", err)
	}
	t.AttestationReport = decoded
	return nil
}

// TpmContents carries the optional TPM PCR-10 quote, decoded but never
// forwarded to the registry today (SPEC_FULL.md §4.4: TPM augmentation
// is an optional, unused extension field).
type TpmContents struct {
	Quote     []byte          `json:"quote"`
	RawSig    []byte          `json:"raw_sig"`
	Pcrs      json.RawMessage `json:"pcrs"`
	AkCert    []byte          `json:"ak_cert"`
	EkCert    []byte          `json:"ek_cert"`
}

// AgentServiceResponse is the full local-agent response shape, matching
// agent_service.rs's AgentServiceResponse.
type AgentServiceResponse struct {
	Tdx           TdxContents  `json:"tdx"`
	Tpm           *TpmContents `json:"tpm,omitempty"`
	ImaMeasurement []byte      `json:"ima_measurement,omitempty"`
	Nonce         []byte       `json:"nonce,omitempty"`
}

func (b *AgentServiceBuilder) GenerateQuote(ctx context.Context, data registry.ReportData) ([]byte, error) {
	reportData, err := reportDataDigest(data)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("http://127.0.0.1:8000/tdx-report-with-tpm-extension/%s", hex.EncodeToString(reportData[:]))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("tdx agent: build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tdx agent: request %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tdx agent: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tdx agent: %s returned %d: %s", url, resp.StatusCode, body)
	}

	var parsed AgentServiceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("tdx agent: decode response: %w", err)
	}
	return parsed.Tdx.AttestationReport, nil
}

// reportDataDigest produces the 64-byte ReportData binding the agent
// expects: the low 32 bytes carry keccak256 of the ABI-encoded
// registration data, the high 32 bytes are left zero, matching
// tdx_builder.rs's report_data[32..].copy_from_slice(...) layout.
func reportDataDigest(data registry.ReportData) ([64]byte, error) {
	packed, err := packReportData(data)
	if err != nil {
		return [64]byte{}, err
	}
	var out [64]byte
	h := crypto.Keccak256Hash(packed)
	copy(out[32:], h.Bytes())
	return out, nil
}
