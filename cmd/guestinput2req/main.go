// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// guestinput2req projects a raiko-style guest-input witness file into a
// pretty-printed ProofRequest file, mirroring the original Rust source's
// bin/guest-input-to-proof-request. The guest-input schema itself is an
// external, out-of-scope concern (spec.md §1); the witness fields this
// module's core actually consumes are exactly pob.Data's, so the "guest
// input" this tool accepts is that same shape, letting it serve as a
// format-conversion utility (JSON-in, pretty-printed base64-field JSON
// out) rather than a real schema projector.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/luxfi/uniprover/internal/httpapi"
	"github.com/luxfi/uniprover/internal/pob"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <guest-input.json> <proof-request.json>\n", os.Args[0])
		os.Exit(2)
	}
	if err := run(os.Args[1], os.Args[2]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(inPath, outPath string) error {
	raw, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("guestinput2req: read %s: %w", inPath, err)
	}

	var p pob.Pob
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("guestinput2req: decode guest input: %w", err)
	}

	req := httpapi.ProofRequest{Input: &p}
	out, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("guestinput2req: encode proof request: %w", err)
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return fmt.Errorf("guestinput2req: write %s: %w", outPath, err)
	}
	return nil
}
