package keypair

import (
	"math/big"
	"sync"
	"testing"

	gethcrypto "github.com/luxfi/geth/crypto"
	"github.com/stretchr/testify/require"
)

func TestInfoFalseBeforeFirstCommit(t *testing.T) {
	kp, err := New()
	require.NoError(t, err)

	_, _, _, ok := kp.Info()
	require.False(t, ok)
}

func TestRotateDoesNotDisturbCurrentIdentity(t *testing.T) {
	kp, err := New()
	require.NoError(t, err)
	rot, err := kp.Rotate()
	require.NoError(t, err)
	rot.Commit(big.NewInt(1))

	beforeID, beforeAddr, _, ok := kp.Info()
	require.True(t, ok)

	rot2, err := kp.Rotate()
	require.NoError(t, err)
	require.NotEqual(t, beforeAddr, rot2.Address())

	// Until rot2 is committed, readers must still see the old identity.
	id, addr, _, ok := kp.Info()
	require.True(t, ok)
	require.Equal(t, beforeID, id)
	require.Equal(t, beforeAddr, addr)
}

func TestCommitSwapsIdentityAtomically(t *testing.T) {
	kp, err := New()
	require.NoError(t, err)
	rot, err := kp.Rotate()
	require.NoError(t, err)
	rot.Commit(big.NewInt(42))

	id, addr, _, ok := kp.Info()
	require.True(t, ok)
	require.Equal(t, 0, id.Cmp(big.NewInt(42)))
	require.Equal(t, rot.Address(), addr)
}

// TestConcurrentReadersNeverObserveMixedSnapshot exercises the invariant
// that a reader calling Info mid-rotation always gets a (id, address)
// pair that was actually committed together, never address A paired
// with a different rotation's id.
func TestConcurrentReadersNeverObserveMixedSnapshot(t *testing.T) {
	kp, err := New()
	require.NoError(t, err)
	rot0, err := kp.Rotate()
	require.NoError(t, err)
	rot0.Commit(big.NewInt(1))

	rot1, err := kp.Rotate()
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			id, addr, _, ok := kp.Info()
			if !ok {
				continue
			}
			if addr == rot0.Address() {
				require.Equal(t, 0, id.Cmp(big.NewInt(1)))
			} else if addr == rot1.Address() {
				require.Equal(t, 0, id.Cmp(big.NewInt(2)))
			} else {
				t.Errorf("observed address %s belongs to neither rotation", addr)
			}
		}
	}()

	rot1.Commit(big.NewInt(2))
	close(stop)
	wg.Wait()
}

func TestSignDigestRecoverable(t *testing.T) {
	kp, err := New()
	require.NoError(t, err)
	var digest [32]byte
	for i := range digest {
		digest[i] = byte(i)
	}
	sig, err := kp.SignDigestECDSA(digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	pub, err := gethcrypto.SigToPub(digest[:], sig[:])
	require.NoError(t, err)
	require.Equal(t, kp.Address(), gethcrypto.PubkeyToAddress(*pub))
}
