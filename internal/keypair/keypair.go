// Package keypair implements the prover's signing identity: a
// mutex-guarded secp256k1 keypair with staged rotation, a direct port of
// the original Rust source's crates/prover/src/keypair.rs (Keypair /
// KeypairRotate). Go has no Mutex<Arc<T>> snapshot idiom, so the teacher's
// RWMutex-over-a-snapshot pattern (common/forks/registry.go) is used
// instead: readers take a read lock over an immutable snapshot struct,
// writers swap the whole snapshot under a write lock.
package keypair

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

// snapshot is the consistent (secret, public, id) triple spec.md §4.4
// requires readers never observe partially: id is nil until the identity
// has been acknowledged on-chain by a successful registration.
type snapshot struct {
	priv *ecdsa.PrivateKey
	id   *big.Int
}

// Keypair is the prover's current signing identity. The zero value is not
// usable; construct with New.
type Keypair struct {
	mu   sync.RWMutex
	snap snapshot
}

// New generates a fresh random keypair, matching Keypair::new()'s use of
// secp256k1::generate_keypair(&mut thread_rng()). The identity starts
// uncommitted (Info returns ok=false) until a rotation registers and
// commits.
func New() (*Keypair, error) {
	priv, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keypair: generate: %w", err)
	}
	return &Keypair{snap: snapshot{priv: priv}}, nil
}

// Info returns the active (id, address, secret) snapshot, and ok=false if
// no rotation has ever been committed — spec.md §4.4: "info() -> Option
// <(id, address, secret)>: returns None until committed." Readers see
// either the entirely-old or entirely-new triple, never a mix (invariant
// 5 in spec.md §8), since Commit replaces snap as a single assignment
// under the write lock.
func (k *Keypair) Info() (id *big.Int, address common.Address, priv *ecdsa.PrivateKey, ok bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.snap.id == nil {
		return nil, common.Address{}, nil, false
	}
	return k.snap.id, crypto.PubkeyToAddress(k.snap.priv.PublicKey), k.snap.priv, true
}

// Address derives the Ethereum address from the public key: keccak256 of
// the uncompressed public key with its leading 0x04 prefix byte dropped,
// taking the low 20 bytes — identical to keypair.rs's address().
func (k *Keypair) Address() common.Address {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return crypto.PubkeyToAddress(k.snap.priv.PublicKey)
}

// PrivateKey returns the current signing key. Callers must not retain it
// past a Commit: the pointer identity changes on rotation, but the value
// behind an already-read pointer remains valid for any in-flight sign.
func (k *Keypair) PrivateKey() *ecdsa.PrivateKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.snap.priv
}

// SignDigestECDSA produces a 65-byte recoverable signature (r || s || v)
// over a 32-byte digest, matching sign_digest_ecdsa's wire layout exactly
// — the byte order the registry's ABI and verifyProofs expect.
func (k *Keypair) SignDigestECDSA(digest [32]byte) ([65]byte, error) {
	priv := k.PrivateKey()
	sig, err := crypto.Sign(digest[:], priv)
	if err != nil {
		return [65]byte{}, fmt.Errorf("keypair: sign: %w", err)
	}
	var out [65]byte
	copy(out[:], sig)
	return out, nil
}

// Rotation is an uncommitted, freshly generated keypair pending on-chain
// registration. The Go analogue of KeypairRotate: it holds its own key
// material and only overwrites the parent Keypair's snapshot on Commit,
// so a failed registration attempt never disturbs the currently-active
// identity (spec.md §4.6 staged-rotation invariant).
type Rotation struct {
	parent *Keypair
	priv   *ecdsa.PrivateKey
}

// Rotate generates a new candidate keypair without touching the current
// one, matching Keypair::rotate().
func (k *Keypair) Rotate() (*Rotation, error) {
	priv, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keypair: rotate generate: %w", err)
	}
	return &Rotation{parent: k, priv: priv}, nil
}

// Address returns the candidate rotation's address, for use in building
// the attestation report and registry call before committing.
func (r *Rotation) Address() common.Address {
	return crypto.PubkeyToAddress(r.priv.PublicKey)
}

// PrivateKey returns the candidate rotation's signing key.
func (r *Rotation) PrivateKey() *ecdsa.PrivateKey {
	return r.priv
}

// SignDigestECDSA signs with the candidate key, producing the same
// 65-byte recoverable layout as Keypair.SignDigestECDSA.
func (r *Rotation) SignDigestECDSA(digest [32]byte) ([65]byte, error) {
	sig, err := crypto.Sign(digest[:], r.priv)
	if err != nil {
		return [65]byte{}, fmt.Errorf("rotation: sign: %w", err)
	}
	var out [65]byte
	copy(out[:], sig)
	return out, nil
}

// Commit atomically makes the rotation the parent Keypair's active
// identity, stamped with id, the instance id the registry just assigned
// it. Call only after the registry has confirmed registration of this
// rotation's address; committing an unregistered rotation would let the
// prover sign proofs no on-chain verifier will accept.
func (r *Rotation) Commit(id *big.Int) {
	r.parent.mu.Lock()
	defer r.parent.mu.Unlock()
	r.parent.snap = snapshot{priv: r.priv, id: id}
}
