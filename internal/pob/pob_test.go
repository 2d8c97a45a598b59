package pob

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/uniprover/internal/mpt"
)

func sampleData(t *testing.T) Data {
	t.Helper()
	trie := mpt.NewEmpty()
	addr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	acc := &mpt.StateAccount{
		Nonce:    1,
		Balance:  uint256.NewInt(100),
		Root:     mpt.EmptyRootHash(),
		CodeHash: mpt.EmptyCodeHash.Bytes(),
	}
	trie, err := trie.PutAccount(addr, acc)
	require.NoError(t, err)

	storage := mpt.NewEmpty()

	header := &types.Header{Number: big.NewInt(1)}

	return Data{
		ChainID:        167000,
		PrevStateRoot:  trie.Hash(),
		BlockHashes:    map[uint64]common.Hash{0: common.HexToHash("0xdeadbeef")},
		StateTrie:      trie,
		StorageTries:   map[common.Address]*mpt.Node{addr: storage},
		Codes:          [][]byte{[]byte("code-a"), []byte("code-b")},
		L2ParentHeader: header,
		Graffiti:       common.HexToHash("0x1234567890"),
		ProverAddress:  addr,
		BaseFeeConfig: BaseFeeConfig{
			AdjustmentQuotient:     8,
			SharingPctg:            75,
			GasIssuancePerSecond:   5_000_000,
			MinGasExcess:           1,
			MaxGasIssuancePerBlock: 600_000_000,
		},
	}
}

func TestDataMarshalUnmarshalRoundTrip(t *testing.T) {
	d := sampleData(t)
	raw, err := json.Marshal(d)
	require.NoError(t, err)

	var out Data
	require.NoError(t, json.Unmarshal(raw, &out))

	require.Equal(t, d.ChainID, out.ChainID)
	require.Equal(t, d.PrevStateRoot, out.PrevStateRoot)
	require.Equal(t, d.StateTrie.Hash(), out.StateTrie.Hash())
	require.Equal(t, d.BaseFeeConfig, out.BaseFeeConfig)
	require.Equal(t, d.Graffiti, out.Graffiti)
	require.Equal(t, d.ProverAddress, out.ProverAddress)
	require.Len(t, out.StorageTries, 1)
}

func TestPobMarshalUnmarshalRoundTrip(t *testing.T) {
	d := sampleData(t)
	header := &types.Header{Number: big.NewInt(1), Root: d.StateTrie.Hash()}
	p := Pob{Block: types.NewBlockWithHeader(header), Data: d}

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var out Pob
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, p.Block.Hash(), out.Block.Hash())
	require.Equal(t, d.StateTrie.Hash(), out.Data.StateTrie.Hash())
}

func TestBlockHashDefaultsToZero(t *testing.T) {
	d := sampleData(t)
	require.Equal(t, common.HexToHash("0xdeadbeef"), d.BlockHash(0))
	require.Equal(t, common.Hash{}, d.BlockHash(999))
}

func TestBuildCodeIndexHashesEveryEntry(t *testing.T) {
	codes := [][]byte{[]byte("alpha"), []byte("beta")}
	calls := 0
	idx := BuildCodeIndex(codes, func(b []byte) common.Hash {
		calls++
		return common.BytesToHash(b)
	})
	require.Equal(t, 2, calls)
	require.Len(t, idx, 2)
	got, ok := idx[common.BytesToHash([]byte("alpha"))]
	require.True(t, ok)
	require.Equal(t, []byte("alpha"), got)
}

func TestContractCodeLooksUpByHash(t *testing.T) {
	d := sampleData(t)
	h := common.BytesToHash([]byte("payload"))
	index := map[common.Hash][]byte{h: []byte("payload")}
	code, ok := d.ContractCode(h, index)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), code)

	_, ok = d.ContractCode(common.HexToHash("0x99999999"), index)
	require.False(t, ok)
}
