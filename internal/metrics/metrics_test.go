package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectorsWithoutPanicking(t *testing.T) {
	require.NotPanics(t, func() {
		m := New()
		require.NotNil(t, m.Registry)
	})
}

func TestHandlerServesExpositionFormat(t *testing.T) {
	m := New()
	m.ProofsGenerated.WithLabelValues("ok").Inc()
	m.ProofDuration.WithLabelValues("gen_proof").Observe(0.25)
	m.BlocksExecuted.Inc()
	m.ExecutionErrors.WithLabelValues("witness_incomplete").Inc()
	m.AttestRotations.WithLabelValues("success").Inc()
	m.AttestValidUntil.Set(1_700_000_000)
	m.RegistryCallErrors.WithLabelValues("register").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	body := w.Body.String()
	for _, name := range []string{
		"uniprover_proofs_generated_total",
		"uniprover_proof_duration_seconds",
		"uniprover_blocks_executed_total",
		"uniprover_execution_errors_total",
		"uniprover_attest_rotations_total",
		"uniprover_attest_valid_until_unix",
		"uniprover_registry_call_errors_total",
	} {
		require.Contains(t, body, name)
	}
	require.Contains(t, body, `outcome="ok"`)
	require.Contains(t, body, `reason="witness_incomplete"`)
	require.Contains(t, body, `method="register"`)
}

func TestTwoRegistriesAreIndependent(t *testing.T) {
	a := New()
	b := New()
	a.BlocksExecuted.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	b.Handler().ServeHTTP(w, req)

	require.Contains(t, w.Body.String(), "uniprover_blocks_executed_total 0")
}
