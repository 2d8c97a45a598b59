// Package attestloop runs the long-lived rotate-attest-register cycle
// that keeps the prover's signing identity registered with the on-chain
// ProverRegistry, a direct port of the original Rust source's
// bin/multi-prover/src/main.rs (attestation_loop / sleep_until): rotate
// to a fresh candidate key, build a TEE attestation report for it, submit
// it to the registry, commit the rotation only once the registry confirms
// the candidate's own address, then sleep until shortly before the
// registration expires and repeat.
package attestloop

import (
	"context"
	"fmt"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/uniprover/internal/attestation"
	"github.com/luxfi/uniprover/internal/clock"
	"github.com/luxfi/uniprover/internal/keypair"
	"github.com/luxfi/uniprover/internal/metrics"
	"github.com/luxfi/uniprover/internal/registry"
)

// retryInterval is how long the loop waits between failed attestation
// builds or registry submissions before trying again, matching main.rs's
// fixed 5-second retry sleep.
const retryInterval = 5 * time.Second

// preExpire is how far ahead of a registration's valid_until the loop
// wakes to rotate again, matching main.rs's `valid_until - 60`.
const preExpire = 60 * time.Second

// Registrar is the subset of registry.Client the loop depends on,
// narrowed to an interface so tests can substitute a fake without dialing
// a real chain.
type Registrar interface {
	Register(ctx context.Context, report []byte, data registry.ReportData) (*registry.Registration, error)
}

// Loop drives the rotate-attest-register cycle against kp, builder,
// ref, and registrar until ctx is cancelled. The committed instance id
// lives on Keypair itself (Keypair.Info), not on the Loop, so every
// reader — including an HTTP handler signing a proof concurrently with a
// rotation in flight — observes the same atomic snapshot.
type Loop struct {
	Keypair   *keypair.Keypair
	Builder   attestation.ReportBuilder
	Ref       attestation.ReferenceBlockSource
	Registrar Registrar
	Clock     *clock.Clock

	// PreExpire overrides how far ahead of validUntil the loop wakes to
	// rotate again (the CLI surface's --attestation-pre-expire-secs,
	// default 1800s); zero means use preExpire's 60-second default.
	PreExpire time.Duration

	// Metrics is optional; a nil Metrics disables recording rather than
	// panicking, so tests and cmd/guestinput2req-style one-shot callers
	// that never construct a registry can still drive Loop.
	Metrics *metrics.Metrics
}

// Run executes one rotate-attest-register-sleep cycle per iteration,
// forever, until ctx is done. It returns only on ctx cancellation or a
// fatal invariant violation (the registry confirming an address other
// than the one just submitted, which should never happen and indicates
// the registry or the transport between here and it cannot be trusted).
func (l *Loop) Run(ctx context.Context) error {
	if l.Clock == nil {
		l.Clock = clock.New()
	}
	preExpire := preExpire
	if l.PreExpire > 0 {
		preExpire = l.PreExpire
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rotation, err := l.Keypair.Rotate()
		if err != nil {
			return fmt.Errorf("attestloop: rotate: %w", err)
		}

		report := l.buildReportWithRetry(ctx, rotation)
		if report == nil {
			return ctx.Err()
		}

		registration := l.registerWithRetry(ctx, report)
		if registration == nil {
			return ctx.Err()
		}

		if registration.Address != rotation.Address() {
			if l.Metrics != nil {
				l.Metrics.AttestRotations.WithLabelValues("address_mismatch").Inc()
			}
			return fmt.Errorf("attestloop: registry confirmed address %s, expected %s",
				registration.Address, rotation.Address())
		}

		rotation.Commit(registration.InstanceID)
		if l.Metrics != nil {
			l.Metrics.AttestRotations.WithLabelValues("committed").Inc()
			l.Metrics.AttestValidUntil.Set(float64(registration.ValidUntil))
		}
		log.Info("prover identity registered", "address", registration.Address,
			"instanceID", registration.InstanceID, "validUntil", registration.ValidUntil)

		sleepFor := l.Clock.Until(subSaturating(registration.ValidUntil, uint64(preExpire.Seconds())))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
	}
}

// buildReportWithRetry keeps attempting to build an attestation report
// for rotation every retryInterval until it succeeds or ctx is done,
// matching main.rs's retry-forever loop around AttestationReport::build.
func (l *Loop) buildReportWithRetry(ctx context.Context, rotation *keypair.Rotation) *attestation.Report {
	for {
		report, err := attestation.Build(ctx, l.Builder, l.Ref, rotation)
		if err == nil {
			return report
		}
		if l.Metrics != nil {
			l.Metrics.AttestRotations.WithLabelValues("build_failed").Inc()
		}
		log.Warn("attestation report build failed, retrying", "err", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryInterval):
		}
	}
}

// registerWithRetry keeps submitting report to the registry every
// retryInterval until it succeeds or ctx is done.
func (l *Loop) registerWithRetry(ctx context.Context, report *attestation.Report) *registry.Registration {
	for {
		registration, err := l.Registrar.Register(ctx, report.Quote, report.AsReportData())
		if err == nil {
			return registration
		}
		if l.Metrics != nil {
			l.Metrics.RegistryCallErrors.WithLabelValues("register").Inc()
		}
		log.Warn("registry registration failed, retrying", "err", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryInterval):
		}
	}
}

func subSaturating(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
