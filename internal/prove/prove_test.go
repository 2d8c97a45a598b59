package prove

import (
	"context"
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/uniprover/internal/chainspec"
	"github.com/luxfi/uniprover/internal/errs"
	"github.com/luxfi/uniprover/internal/keypair"
	"github.com/luxfi/uniprover/internal/metrics"
	"github.com/luxfi/uniprover/internal/mpt"
	"github.com/luxfi/uniprover/internal/pob"
	"github.com/luxfi/uniprover/internal/poe"
)

func emptyPob(number int64, parent *types.Header) *pob.Pob {
	header := &types.Header{
		Number:     big.NewInt(number),
		Time:       uint64(number) * 1000,
		GasLimit:   30_000_000,
		Difficulty: big.NewInt(0),
		BaseFee:    big.NewInt(0),
		Root:       mpt.EmptyRootHash(),
		ParentHash: parent.Hash(),
	}
	return &pob.Pob{
		Block: types.NewBlockWithHeader(header),
		Data: pob.Data{
			ChainID:        167000,
			PrevStateRoot:  mpt.EmptyRootHash(),
			StateTrie:      mpt.NewEmpty(),
			StorageTries:   map[common.Address]*mpt.Node{},
			BlockHashes:    map[uint64]common.Hash{},
			L2ParentHeader: parent,
			ProverAddress:  common.HexToAddress("0x9000000000000000000000000000000000000009"),
		},
	}
}

func committedDeps(t *testing.T) Deps {
	t.Helper()
	kp, err := keypair.New()
	require.NoError(t, err)
	rot, err := kp.Rotate()
	require.NoError(t, err)
	rot.Commit(big.NewInt(1))
	return Deps{
		Config: Config{
			ProverRegistry: common.HexToAddress("0x1000000000000000000000000000000000000001"),
			TeeType:        big.NewInt(1),
			ChainSpecs:     chainspec.Default,
		},
		Keypair: kp,
	}
}

func noopMetaHash(spec *chainspec.Spec, p *pob.Pob) (common.Hash, error) {
	return common.HexToHash("0x1111"), nil
}

func TestBlockProducesSignedPoe(t *testing.T) {
	d := committedDeps(t)
	parent := &types.Header{Number: big.NewInt(9), Root: mpt.EmptyRootHash()}
	p := emptyPob(10, parent)

	signed, err := Block(context.Background(), d, p, noopMetaHash)
	require.NoError(t, err)
	require.Equal(t, parent.Hash(), signed.Poe.Transition.ParentHash)
	require.Equal(t, p.Block.Hash(), signed.Poe.Transition.BlockHash)

	addr, err := poe.RecoverSigner(signed)
	require.NoError(t, err)
	_, kpAddr, _, ok := d.Keypair.Info()
	require.True(t, ok)
	require.Equal(t, kpAddr, addr)
}

func TestRangeChainChecksAcrossBlocks(t *testing.T) {
	d := committedDeps(t)
	parent := &types.Header{Number: big.NewInt(9), Root: mpt.EmptyRootHash()}
	p0 := emptyPob(10, parent)
	p1 := emptyPob(11, p0.Block.Header())

	signed, err := Range(context.Background(), d, []*pob.Pob{p0, p1}, noopMetaHash)
	require.NoError(t, err)
	require.Equal(t, parent.Hash(), signed.Poe.Transition.ParentHash)
	require.Equal(t, p1.Block.Hash(), signed.Poe.Transition.BlockHash)
}

func TestRangeBrokenChainFails(t *testing.T) {
	d := committedDeps(t)
	parent := &types.Header{Number: big.NewInt(9), Root: mpt.EmptyRootHash()}
	p0 := emptyPob(10, parent)
	unrelatedParent := &types.Header{Number: big.NewInt(50), Root: mpt.EmptyRootHash()}
	p1 := emptyPob(11, unrelatedParent)

	_, err := Range(context.Background(), d, []*pob.Pob{p0, p1}, noopMetaHash)
	require.ErrorIs(t, err, errs.ErrChainContinuity)
}

func TestBlockFailsWhenKeypairNotRegistered(t *testing.T) {
	kp, err := keypair.New()
	require.NoError(t, err)
	d := Deps{
		Config: Config{
			ProverRegistry: common.HexToAddress("0x1000000000000000000000000000000000000001"),
			TeeType:        big.NewInt(1),
			ChainSpecs:     chainspec.Default,
		},
		Keypair: kp,
	}
	parent := &types.Header{Number: big.NewInt(9), Root: mpt.EmptyRootHash()}
	p := emptyPob(10, parent)

	_, err = Block(context.Background(), d, p, noopMetaHash)
	require.ErrorIs(t, err, errs.ErrProverNotRegistered)
}

func TestRangeEmptyRejected(t *testing.T) {
	d := committedDeps(t)
	_, err := Range(context.Background(), d, nil, noopMetaHash)
	require.Error(t, err)
}

func TestRangeRecordsBlocksExecutedMetric(t *testing.T) {
	d := committedDeps(t)
	d.Metrics = metrics.New()
	parent := &types.Header{Number: big.NewInt(9), Root: mpt.EmptyRootHash()}
	p := emptyPob(10, parent)

	_, err := Block(context.Background(), d, p, noopMetaHash)
	require.NoError(t, err)

	mfs, err := d.Metrics.Registry.Gather()
	require.NoError(t, err)
	var value float64
	for _, mf := range mfs {
		if mf.GetName() == "uniprover_blocks_executed_total" {
			value = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(1), value)
}

func TestRangeRecordsExecutionErrorMetric(t *testing.T) {
	d := committedDeps(t)
	d.Metrics = metrics.New()
	parent := &types.Header{Number: big.NewInt(9), Root: mpt.EmptyRootHash()}
	p := emptyPob(10, parent)
	p.Data.PrevStateRoot = common.HexToHash("0xdeadbeef")

	_, err := Block(context.Background(), d, p, noopMetaHash)
	require.Error(t, err)

	mfs, err := d.Metrics.Registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range mfs {
		if mf.GetName() != "uniprover_execution_errors_total" {
			continue
		}
		for _, mm := range mf.GetMetric() {
			if mm.GetCounter().GetValue() > 0 {
				found = true
			}
		}
	}
	require.True(t, found)
}
