// Package httpapi implements the JSON/HTTP surface described by spec.md
// §6, the external glue binding net/http requests to internal/prove — the
// direct analogue of the original Rust source's bin/multi-prover/src's
// axum router, adapted to net/http + encoding/json the way the teacher's
// own HTTP-facing binaries (plugin/evm) lean on the standard library for
// transport rather than a web framework.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/uniprover/internal/errs"
	"github.com/luxfi/uniprover/internal/metrics"
	"github.com/luxfi/uniprover/internal/pob"
	"github.com/luxfi/uniprover/internal/poe"
	"github.com/luxfi/uniprover/internal/prove"
)

// protocolVersion is the ProofResponse.Version every response carries
// today (spec.md §6).
const protocolVersion = 1

// ProofRequest is gen_proof's request body: a self-contained ProofInput,
// represented here directly as the Pob the witness already projects to
// (projecting a raiko-style GuestInput into one is this module's
// "external collaborator" concern per spec.md §1; no route here does
// that projection).
type ProofRequest struct {
	Input *pob.Pob `json:"input"`
}

// ProofResponse is the uniform response shape across all four proving
// routes; Data's encoding (full ABI-encoded SignedPoe vs the 89-byte
// packed form) depends on which route produced it.
type ProofResponse struct {
	Version uint64 `json:"version"`
	Data    []byte `json:"data"`
}

// BlockRangeRequest is get_proofs' request body: an inclusive block
// range, each block's ProofInput supplied directly (fetching the range
// from a live node is the out-of-scope remote RPC provider's job).
type BlockRangeRequest struct {
	Inputs []*pob.Pob `json:"inputs"`
}

// Server wires HTTP requests into the prove pipeline.
type Server struct {
	Deps    prove.Deps
	Metrics *metrics.Metrics
}

// Routes returns the mux every cmd/uniprover process serves.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/gen_proof", s.handleGenProof)
	mux.HandleFunc("/v1/get_proof", s.handleGetProof)
	mux.HandleFunc("/v1/get_proofs", s.handleGetProofs)
	mux.HandleFunc("/debug/gen_proof_by_guest_input", s.handleDebugGuestInput)
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}
	return mux
}

func (s *Server) handleGenProof(w http.ResponseWriter, r *http.Request) {
	s.timed("gen_proof", func() error {
		var req ProofRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return err
		}
		if req.Input == nil {
			err := errors.New("httpapi: missing input")
			writeError(w, http.StatusBadRequest, err)
			return err
		}

		signed, err := prove.Block(r.Context(), s.Deps, req.Input, poe.DefaultMetaHash)
		if err != nil {
			s.writeProveError(w, err)
			return err
		}
		data, err := poe.Encode(signed)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return err
		}
		writeJSON(w, http.StatusOK, ProofResponse{Version: protocolVersion, Data: data})
		return nil
	})
}

func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	s.timed("get_proof", func() error {
		var req ProofRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return err
		}
		if req.Input == nil {
			err := errors.New("httpapi: missing input")
			writeError(w, http.StatusBadRequest, err)
			return err
		}
		signed, err := prove.Block(r.Context(), s.Deps, req.Input, poe.DefaultMetaHash)
		if err != nil {
			s.writeProveError(w, err)
			return err
		}
		packed := poe.EncodePacked(signed)
		writeJSON(w, http.StatusOK, ProofResponse{Version: protocolVersion, Data: packed[:]})
		return nil
	})
}

func (s *Server) handleGetProofs(w http.ResponseWriter, r *http.Request) {
	s.timed("get_proofs", func() error {
		var req BlockRangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return err
		}
		if len(req.Inputs) == 0 {
			err := errors.New("httpapi: empty block range")
			writeError(w, http.StatusBadRequest, err)
			return err
		}
		signed, err := prove.Range(r.Context(), s.Deps, req.Inputs, poe.DefaultMetaHash)
		if err != nil {
			s.writeProveError(w, err)
			return err
		}
		packed := poe.EncodePacked(signed)
		writeJSON(w, http.StatusOK, ProofResponse{Version: protocolVersion, Data: packed[:]})
		return nil
	})
}

// handleDebugGuestInput accepts a raw witness-producer Pob directly in
// place of the raiko-style GuestInput the production route projects from
// an upstream provider — that projection step lives with the external
// guest-input tooling (spec.md §1), so this path exercises the same
// prove.Block call gen_proof does, useful for local testing against a
// hand-built witness file.
func (s *Server) handleDebugGuestInput(w http.ResponseWriter, r *http.Request) {
	s.timed("debug_gen_proof_by_guest_input", func() error {
		var p pob.Pob
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return err
		}
		signed, err := prove.Block(r.Context(), s.Deps, &p, poe.DefaultMetaHash)
		if err != nil {
			s.writeProveError(w, err)
			return err
		}
		data, err := poe.Encode(signed)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return err
		}
		writeJSON(w, http.StatusOK, ProofResponse{Version: protocolVersion, Data: data})
		return nil
	})
}

// writeProveError maps the sentinel errors prove.Block/Range can return to
// HTTP status codes, matching spec.md §8's "ProverNotRegistered surfaced
// as HTTP 400" test case and the natural extension to the other domain
// sentinels in internal/errs.
func (s *Server) writeProveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrProverNotRegistered):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, errs.ErrWitnessIncomplete),
		errors.Is(err, errs.ErrExecutionDivergence),
		errors.Is(err, errs.ErrChainContinuity),
		errors.Is(err, errs.ErrUnsupportedChainID):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) timed(endpoint string, fn func() error) {
	start := time.Now()
	err := fn()
	if s.Metrics != nil {
		s.Metrics.ProofDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.Metrics.ProofsGenerated.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		log.Warn("request failed", "endpoint", endpoint, "err", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
