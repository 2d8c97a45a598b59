package chainspec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetKnownChainID(t *testing.T) {
	spec, err := Default.Get(167000)
	require.NoError(t, err)
	require.Equal(t, "taiko_mainnet", spec.Name)
	require.Equal(t, MetadataForkOntake, spec.MetadataFork)
}

func TestGetUnknownChainIDListsKnownIDs(t *testing.T) {
	_, err := Default.Get(424242)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported chain id 424242")
	require.Contains(t, err.Error(), "167000")
}

func TestRegisterOverridesExisting(t *testing.T) {
	r := &Registry{specs: make(map[uint64]*Spec)}
	r.Register(&Spec{ChainID: 1, Name: "first"})
	r.Register(&Spec{ChainID: 1, Name: "second"})

	spec, err := r.Get(1)
	require.NoError(t, err)
	require.Equal(t, "second", spec.Name)
}

func TestMergeFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain_spec_list.json")
	const body = `[{"chain_id": 555, "name": "custom", "metadata_fork": "hekla", "l1_chain_id": 1}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	r := &Registry{specs: make(map[uint64]*Spec)}
	require.NoError(t, r.MergeFromFile(path))

	spec, err := r.Get(555)
	require.NoError(t, err)
	require.Equal(t, "custom", spec.Name)
	require.Equal(t, MetadataForkHekla, spec.MetadataFork)
	require.Equal(t, uint64(1), spec.L1ChainID)
}

func TestMergeFromFileMissingPath(t *testing.T) {
	r := &Registry{specs: make(map[uint64]*Spec)}
	err := r.MergeFromFile(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, err)
}
