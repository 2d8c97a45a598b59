package attestation_test

// Hand-authored in the shape go.uber.org/mock/mockgen generates for
// attestation.ReportBuilder (mockgen is not runnable in this environment,
// so this mirrors its generated output directly rather than being
// produced by the tool).

import (
	"context"
	"math/big"
	"reflect"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/uniprover/internal/attestation"
	"github.com/luxfi/uniprover/internal/keypair"
	"github.com/luxfi/uniprover/internal/registry"
)

type MockReportBuilder struct {
	ctrl     *gomock.Controller
	recorder *MockReportBuilderMockRecorder
}

type MockReportBuilderMockRecorder struct {
	mock *MockReportBuilder
}

func NewMockReportBuilder(ctrl *gomock.Controller) *MockReportBuilder {
	m := &MockReportBuilder{ctrl: ctrl}
	m.recorder = &MockReportBuilderMockRecorder{m}
	return m
}

func (m *MockReportBuilder) EXPECT() *MockReportBuilderMockRecorder {
	return m.recorder
}

func (m *MockReportBuilder) GenerateQuote(ctx context.Context, data registry.ReportData) ([]byte, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GenerateQuote", ctx, data)
	ret0, _ := ret[0].([]byte)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockReportBuilderMockRecorder) GenerateQuote(ctx, data interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GenerateQuote", reflect.TypeOf((*MockReportBuilder)(nil).GenerateQuote), ctx, data)
}

func (m *MockReportBuilder) TeeType() *big.Int {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "TeeType")
	ret0, _ := ret[0].(*big.Int)
	return ret0
}

func (mr *MockReportBuilderMockRecorder) TeeType() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "TeeType", reflect.TypeOf((*MockReportBuilder)(nil).TeeType))
}

var _ attestation.ReportBuilder = (*MockReportBuilder)(nil)

func TestBuildReportUsesBuilderQuoteAndTeeType(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := NewMockReportBuilder(ctrl)

	builder.EXPECT().TeeType().Return(big.NewInt(1)).AnyTimes()
	builder.EXPECT().GenerateQuote(gomock.Any(), gomock.Any()).Return([]byte("quote-bytes"), nil)

	kp, err := keypair.New()
	if err != nil {
		t.Fatalf("keypair.New: %v", err)
	}
	rotation, err := kp.Rotate()
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	ref := fixedRef{number: big.NewInt(42)}
	report, err := attestation.Build(context.Background(), builder, ref, rotation)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if string(report.Quote) != "quote-bytes" {
		t.Fatalf("unexpected quote: %q", report.Quote)
	}
	if report.TeeType.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("unexpected tee type: %v", report.TeeType)
	}
	if report.Address != rotation.Address() {
		t.Fatalf("report address %v does not match rotation candidate %v", report.Address, rotation.Address())
	}
}

type fixedRef struct{ number *big.Int }

func (f fixedRef) SelectReferenceBlock(ctx context.Context) (*big.Int, common.Hash, error) {
	return f.number, common.Hash{}, nil
}
