package poe

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/uniprover/internal/errs"
	"github.com/luxfi/uniprover/internal/keypair"
)

func samplePoe() Poe {
	return Poe{
		ChainID:        167000,
		ProverRegistry: common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Transition: Transition{
			ParentHash: common.HexToHash("0xaa"),
			BlockHash:  common.HexToHash("0xbb"),
			StateRoot:  common.HexToHash("0xcc"),
			Graffiti:   common.HexToHash("0xdd"),
		},
		MetaHash:    common.HexToHash("0xee"),
		NewInstance: common.HexToAddress("0x2000000000000000000000000000000000000002"),
		Prover:      common.HexToAddress("0x3000000000000000000000000000000000000003"),
		TeeType:     big.NewInt(1),
	}
}

func TestDigestDeterministic(t *testing.T) {
	p := samplePoe()
	d1, err := p.Digest()
	require.NoError(t, err)
	d2, err := p.Digest()
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}

func TestDigestChangesWithFields(t *testing.T) {
	p := samplePoe()
	d1, err := p.Digest()
	require.NoError(t, err)

	p2 := samplePoe()
	p2.Transition.BlockHash = common.HexToHash("0xff")
	d2, err := p2.Digest()
	require.NoError(t, err)

	require.NotEqual(t, d1, d2)
}

func TestSignAndRecoverSigner(t *testing.T) {
	kp, err := keypair.New()
	require.NoError(t, err)
	rot, err := kp.Rotate()
	require.NoError(t, err)
	rot.Commit(big.NewInt(7))

	p := samplePoe()
	p.NewInstance = kp.Address()

	signed, err := Sign(p, big.NewInt(7), kp)
	require.NoError(t, err)

	recovered, err := RecoverSigner(signed)
	require.NoError(t, err)
	require.Equal(t, kp.Address(), recovered)
}

func TestRecoverSignerMismatchDetectsForgery(t *testing.T) {
	kpReal, err := keypair.New()
	require.NoError(t, err)
	rot, err := kpReal.Rotate()
	require.NoError(t, err)
	rot.Commit(big.NewInt(1))

	p := samplePoe()
	p.NewInstance = common.HexToAddress("0x4000000000000000000000000000000000000004")

	signed, err := Sign(p, big.NewInt(1), kpReal)
	require.NoError(t, err)

	recovered, err := RecoverSigner(signed)
	require.NoError(t, err)
	require.NotEqual(t, signed.Poe.NewInstance, recovered)
}

func TestChainCheckUnbrokenChain(t *testing.T) {
	p0 := samplePoe()
	p1 := samplePoe()
	p1.Transition.ParentHash = p0.Transition.BlockHash
	p1.Transition.BlockHash = common.HexToHash("0x123456")

	require.NoError(t, ChainCheck([]Poe{p0, p1}))
}

func TestChainCheckSingleBlockAlwaysPasses(t *testing.T) {
	require.NoError(t, ChainCheck([]Poe{samplePoe()}))
	require.NoError(t, ChainCheck(nil))
}

func TestChainCheckBrokenChain(t *testing.T) {
	p0 := samplePoe()
	p1 := samplePoe()
	p1.Transition.ParentHash = common.HexToHash("0xdeadbeef")

	err := ChainCheck([]Poe{p0, p1})
	require.ErrorIs(t, err, errs.ErrChainContinuity)
}
