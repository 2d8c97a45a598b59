// Package errs implements the locus-chained error style used throughout
// this module, the Go analogue of the original Rust source's stack_error!
// macro (crates/base, crates/executor/src/types.rs): a root cause plus an
// ordered list of call-site loci, so a multi-layer failure stays
// diagnosable without losing its origin.
package errs

import (
	"errors"
	"fmt"
)

// Locus wraps err with a single call-site description. Loci compose by
// repeated wrapping: errs.At("ApplyChanges", errs.At("SetAccount(0xabc..)", err)).
type Locus struct {
	where string
	err   error
}

func At(where string, err error) error {
	if err == nil {
		return nil
	}
	return &Locus{where: where, err: err}
}

func Atf(err error, format string, args ...any) error {
	return At(fmt.Sprintf(format, args...), err)
}

func (l *Locus) Error() string {
	return fmt.Sprintf("%s: %s", l.where, l.err)
}

func (l *Locus) Unwrap() error {
	return l.err
}

// Stack renders the full chain of loci from outermost to the root cause,
// e.g. ["ApplyChanges", "SetAccount(0xabc..)", "<root cause>"].
func Stack(err error) []string {
	var out []string
	for err != nil {
		if l, ok := err.(*Locus); ok {
			out = append(out, l.where)
			err = l.err
			continue
		}
		out = append(out, err.Error())
		break
	}
	return out
}

// Sentinel errors for the taxonomy in spec.md §7. Components wrap these
// with errors.Is-discriminable root causes; callers distinguish fatal
// request errors from process invariants with errors.Is.
var (
	ErrWitnessIncomplete    = errors.New("witness incomplete")
	ErrExecutionDivergence  = errors.New("execution divergence")
	ErrMptOperationFailed   = errors.New("mpt operation failed")
	ErrChainContinuity      = errors.New("chain continuity broken")
	ErrProverNotRegistered  = errors.New("prover not registered")
	ErrUnsupportedChainID   = errors.New("unsupported chain id")
)
