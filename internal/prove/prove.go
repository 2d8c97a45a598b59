// Package prove wires a PoB through the Block Executor into a signed PoE,
// the single entry point every request handler in cmd/uniprover calls —
// the direct analogue of the original Rust source's crates/prover/src/
// prove.rs (prove_one_block / aggregate_proofs), generalized so the same
// path serves both the single-block and multi-block endpoints spec.md §6
// describes.
package prove

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/uniprover/internal/chainspec"
	"github.com/luxfi/uniprover/internal/errs"
	"github.com/luxfi/uniprover/internal/executor"
	"github.com/luxfi/uniprover/internal/keypair"
	"github.com/luxfi/uniprover/internal/metrics"
	"github.com/luxfi/uniprover/internal/parallel"
	"github.com/luxfi/uniprover/internal/pob"
	"github.com/luxfi/uniprover/internal/poe"
)

// blockResult pairs one block's executed PoB with its unsigned Poe, the
// unit Range fans out per block before the aggregation/chain-check
// barrier.
type blockResult struct {
	pob *pob.Pob
	poe poe.Poe
}

// Config carries the addressing every signed PoE is bound to: the
// registry contract address and the TEE type tag the active keypair was
// attested under, both constant for the process lifetime.
type Config struct {
	ProverRegistry common.Address
	TeeType        *big.Int
	ChainSpecs     *chainspec.Registry

	// WorkerNum bounds concurrent per-block execution in Range (the CLI
	// surface's --worker-num, default 8); zero means use 8.
	WorkerNum int
}

// Deps is everything prove.Block/prove.Range need at call time beyond the
// PoB(s) themselves.
type Deps struct {
	Config
	Keypair *keypair.Keypair
	Metrics *metrics.Metrics
}

// executionErrorReason maps an executor failure to the label
// ExecutionErrors is recorded under, falling back to "other" for
// anything that doesn't match the known sentinel taxonomy.
func executionErrorReason(err error) string {
	switch {
	case errors.Is(err, errs.ErrWitnessIncomplete):
		return "witness_incomplete"
	case errors.Is(err, errs.ErrExecutionDivergence):
		return "execution_divergence"
	case errors.Is(err, errs.ErrMptOperationFailed):
		return "mpt_operation_failed"
	case errors.Is(err, errs.ErrUnsupportedChainID):
		return "unsupported_chain_id"
	default:
		return "other"
	}
}

// MetaHashFn computes meta_hash for one block's metadata, injected so
// callers control the fork-specific ABI encoding (internal/poe only
// knows how to hash already-encoded bytes, per spec.md §4.3).
type MetaHashFn func(spec *chainspec.Spec, p *pob.Pob) (common.Hash, error)

// Block executes and signs a single PoB, the path behind /v1/gen_proof
// and /v1/get_proof's single-block case.
func Block(ctx context.Context, d Deps, p *pob.Pob, metaHash MetaHashFn) (*poe.SignedPoe, error) {
	signed, err := Range(ctx, d, []*pob.Pob{p}, metaHash)
	if err != nil {
		return nil, err
	}
	return signed, nil
}

// Range executes every PoB in pobs (in parallel, bounded by workerNum;
// order-preserving), chain-checks the resulting Poe sequence, aggregates
// it per spec.md §4.3, and signs the aggregate with the last block's
// chain id, prover and meta hash. N=1 degenerates to the single-block
// signed PoE (spec.md §8 boundary property).
func Range(ctx context.Context, d Deps, pobs []*pob.Pob, metaHash MetaHashFn) (*poe.SignedPoe, error) {
	if len(pobs) == 0 {
		return nil, fmt.Errorf("prove: empty block range")
	}

	workerNum := d.WorkerNum
	if workerNum <= 0 {
		workerNum = 8
	}
	results, err := parallel.Run(ctx, workerNum, pobs, func(ctx context.Context, p *pob.Pob) (blockResult, error) {
		spec, err := d.ChainSpecs.Get(p.Data.ChainID)
		if err != nil {
			return blockResult{}, errs.Atf(err, "resolve chain spec")
		}
		res, err := executor.Execute(p, d.ChainSpecs)
		if err != nil {
			if d.Metrics != nil {
				d.Metrics.ExecutionErrors.WithLabelValues(executionErrorReason(err)).Inc()
			}
			return blockResult{}, err
		}
		if d.Metrics != nil {
			d.Metrics.BlocksExecuted.Inc()
		}
		mh, err := metaHash(spec, p)
		if err != nil {
			return blockResult{}, errs.Atf(err, "compute meta hash")
		}
		return blockResult{
			pob: p,
			poe: poe.Poe{
				ChainID:        p.Data.ChainID,
				ProverRegistry: d.ProverRegistry,
				Transition: poe.Transition{
					ParentHash: p.Data.L2ParentHeader.Hash(),
					BlockHash:  res.Block.Hash(),
					StateRoot:  res.NewStateRoot,
					Graffiti:   p.Data.Graffiti,
				},
				MetaHash: mh,
				Prover:   p.Data.ProverAddress,
				TeeType:  d.TeeType,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	poes := make([]poe.Poe, len(results))
	for i, r := range results {
		poes[i] = r.poe
	}
	if err := poe.ChainCheck(poes); err != nil {
		return nil, err
	}

	last := results[len(results)-1]
	aggregated := last.poe
	aggregated.Transition.ParentHash = poes[0].Transition.ParentHash
	aggregated.NewInstance = common.Address{}

	id, addr, _, ok := d.Keypair.Info()
	if !ok {
		return nil, errs.At("sign poe", errs.ErrProverNotRegistered)
	}
	aggregated.NewInstance = addr

	signed, err := poe.Sign(aggregated, id, d.Keypair)
	if err != nil {
		return nil, errs.Atf(err, "sign aggregated poe")
	}
	signed.Poe.TeeType = d.TeeType
	return signed, nil
}
