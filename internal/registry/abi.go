package registry

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	ethabi "github.com/luxfi/geth/accounts/abi"
)

// contractABI is the subset of IProverRegistry's ABI this client calls or
// decodes reverts against, trimmed from the full JSON embedded in the
// original Rust source's crates/base/src/prover_registry.rs alloy::sol!
// block to the functions, the one event, and every custom error the
// contract can revert with.
const contractABI = `[
{"type":"function","name":"uniFiChainId","inputs":[],"outputs":[{"name":"","type":"uint64"}],"stateMutability":"view"},
{"type":"function","name":"attestValiditySeconds","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"attestedProvers","inputs":[{"name":"proverInstanceID","type":"uint256"}],"outputs":[{"name":"addr","type":"address"},{"name":"validUntil","type":"uint256"},{"name":"teeType","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"register","inputs":[{"name":"_report","type":"bytes"},{"name":"_data","type":"tuple","components":[{"name":"addr","type":"address"},{"name":"teeType","type":"uint256"},{"name":"referenceBlockNumber","type":"uint256"},{"name":"referenceBlockHash","type":"bytes32"},{"name":"binHash","type":"bytes32"},{"name":"ext","type":"bytes"}]}],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"getSignedMsg","inputs":[{"name":"_transition","type":"tuple","components":[{"name":"parentHash","type":"bytes32"},{"name":"blockHash","type":"bytes32"},{"name":"stateRoot","type":"bytes32"},{"name":"graffiti","type":"bytes32"}]},{"name":"_newInstance","type":"address"},{"name":"_prover","type":"address"},{"name":"_metaHash","type":"bytes32"}],"outputs":[{"name":"","type":"bytes"}],"stateMutability":"view"},
{"type":"function","name":"verifyProofs","inputs":[{"name":"_proofs","type":"tuple[]","components":[{"name":"poe","type":"tuple","components":[{"name":"transition","type":"tuple","components":[{"name":"parentHash","type":"bytes32"},{"name":"blockHash","type":"bytes32"},{"name":"stateRoot","type":"bytes32"},{"name":"graffiti","type":"bytes32"}]},{"name":"id","type":"uint256"},{"name":"newInstance","type":"address"},{"name":"signature","type":"bytes"},{"name":"teeType","type":"uint256"}]},{"name":"ctx","type":"tuple","components":[{"name":"metaHash","type":"bytes32"},{"name":"blobHash","type":"bytes32"},{"name":"prover","type":"address"},{"name":"blockId","type":"uint64"},{"name":"isContesting","type":"bool"},{"name":"blobUsed","type":"bool"},{"name":"msgSender","type":"address"}]}]}],"outputs":[],"stateMutability":"nonpayable"},
{"type":"event","name":"InstanceAdded","inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"instance","type":"address","indexed":true},{"name":"replaced","type":"address","indexed":false},{"name":"validUntil","type":"uint256","indexed":false}],"anonymous":false},
{"type":"error","name":"BLOCK_NUMBER_MISMATCH","inputs":[]},
{"type":"error","name":"BLOCK_NUMBER_OUT_OF_DATE","inputs":[]},
{"type":"error","name":"FUNC_NOT_IMPLEMENTED","inputs":[]},
{"type":"error","name":"INVALID_BLOCK_NUMBER","inputs":[]},
{"type":"error","name":"INVALID_PAUSE_STATUS","inputs":[]},
{"type":"error","name":"INVALID_PRC10","inputs":[{"name":"pcr10","type":"bytes32"}]},
{"type":"error","name":"INVALID_PROVER_INSTANCE","inputs":[]},
{"type":"error","name":"INVALID_REPORT","inputs":[]},
{"type":"error","name":"INVALID_REPORT_DATA","inputs":[]},
{"type":"error","name":"PROVER_ADDR_MISMATCH","inputs":[{"name":"","type":"address"},{"name":"","type":"address"}]},
{"type":"error","name":"PROVER_INVALID_ADDR","inputs":[{"name":"","type":"address"}]},
{"type":"error","name":"PROVER_INVALID_INSTANCE_ID","inputs":[{"name":"","type":"uint256"}]},
{"type":"error","name":"PROVER_INVALID_PROOF","inputs":[]},
{"type":"error","name":"PROVER_OUT_OF_DATE","inputs":[{"name":"","type":"uint256"}]},
{"type":"error","name":"PROVER_TYPE_MISMATCH","inputs":[]},
{"type":"error","name":"REENTRANT_CALL","inputs":[]},
{"type":"error","name":"REPORT_DATA_MISMATCH","inputs":[{"name":"want","type":"bytes32"},{"name":"got","type":"bytes32"}]},
{"type":"error","name":"REPORT_USED","inputs":[]},
{"type":"error","name":"RESOLVER_DENIED","inputs":[]},
{"type":"error","name":"RESOLVER_INVALID_MANAGER","inputs":[]},
{"type":"error","name":"RESOLVER_UNEXPECTED_CHAINID","inputs":[]},
{"type":"error","name":"RESOLVER_ZERO_ADDR","inputs":[{"name":"chainId","type":"uint64"},{"name":"name","type":"bytes32"}]},
{"type":"error","name":"ZERO_ADDRESS","inputs":[]},
{"type":"error","name":"ZERO_VALUE","inputs":[]}
]`

// RevertError is a decoded typed contract revert: Name is the Solidity
// error identifier and Args holds its unpacked arguments (empty for a
// no-argument error like REPORT_USED), reproducing
// ProverRegistryStubErrors decoding in the Rust original's
// EthError::revert_data.
type RevertError struct {
	Name string
	Args []interface{}
}

func (r *RevertError) Error() string {
	if len(r.Args) == 0 {
		return r.Name
	}
	return fmt.Sprintf("%s%v", r.Name, r.Args)
}

// wrapRevert inspects err for go-ethereum JSON-RPC revert data and, if
// present, decodes it against the registry's custom-error ABI, returning
// a *RevertError callers can switch on; any other error (network
// failure, nonce error, ...) passes through unwrapped except for a
// fmt.Errorf text annotation.
func wrapRevert(err error) error {
	if err == nil {
		return nil
	}
	var dataErr interface{ ErrorData() interface{} }
	if !errors.As(err, &dataErr) {
		return fmt.Errorf("registry: call failed: %w", err)
	}
	raw, ok := dataErr.ErrorData().(string)
	if !ok {
		return fmt.Errorf("registry: call failed: %w", err)
	}
	data, decodeErr := hexDecode(raw)
	if decodeErr != nil || len(data) < 4 {
		return fmt.Errorf("registry: call failed: %w", err)
	}
	parsed, parseErr := ethabi.JSON(strings.NewReader(contractABI))
	if parseErr != nil {
		return fmt.Errorf("registry: call failed: %w", err)
	}
	for name, abiErr := range parsed.Errors {
		if len(data) < 4 || !bytes.Equal(abiErr.ID[:4], data[:4]) {
			continue
		}
		args, unpackErr := abiErr.Inputs.Unpack(data[4:])
		if unpackErr != nil {
			return &RevertError{Name: name}
		}
		return &RevertError{Name: name, Args: args}
	}
	return fmt.Errorf("registry: unrecognized revert: %w", err)
}

func hexDecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}
