package attestation

import (
	"context"
	"math/big"

	"github.com/luxfi/uniprover/internal/registry"
)

// MockBuilder produces a random, unverifiable "quote" for local
// development and testing, matching mock_builder.rs's MockBuilder
// exactly (tee type 201, 1024 random bytes).
type MockBuilder struct{}

func NewMockBuilder() *MockBuilder { return &MockBuilder{} }

func (b *MockBuilder) TeeType() *big.Int { return big.NewInt(201) }

func (b *MockBuilder) GenerateQuote(ctx context.Context, _ registry.ReportData) ([]byte, error) {
	return randomBytes(1024)
}
