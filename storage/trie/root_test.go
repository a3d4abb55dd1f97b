package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"claimlink/storage"
)

func TestRootOfEmptyDatabase(t *testing.T) {
	root, err := Root(storage.NewMemDB(), nil)
	require.NoError(t, err)
	require.Equal(t, types.EmptyRootHash, root)
}

func TestRootTracksContent(t *testing.T) {
	db := storage.NewMemDB()
	a := crypto.Keccak256([]byte("a"))
	b := crypto.Keccak256([]byte("b"))
	require.NoError(t, db.Put(a, []byte{0x01}))
	require.NoError(t, db.Put(b, []byte{0x02}))

	first, err := Root(db, nil)
	require.NoError(t, err)
	require.NotEqual(t, types.EmptyRootHash, first)

	again, err := Root(db, nil)
	require.NoError(t, err)
	require.Equal(t, first, again)

	require.NoError(t, db.Put(b, []byte{0x03}))
	changed, err := Root(db, nil)
	require.NoError(t, err)
	require.NotEqual(t, first, changed)

	require.NoError(t, db.Put(b, []byte{0x02}))
	restored, err := Root(db, nil)
	require.NoError(t, err)
	require.Equal(t, first, restored)
}

func TestRootIsIndependentOfBackend(t *testing.T) {
	mem := storage.NewMemDB()
	disk, err := storage.NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer disk.Close()

	for i := byte(0); i < 16; i++ {
		key := crypto.Keccak256([]byte{i})
		require.NoError(t, mem.Put(key, []byte{i + 1}))
		require.NoError(t, disk.Put(key, []byte{i + 1}))
	}
	memRoot, err := Root(mem, nil)
	require.NoError(t, err)
	diskRoot, err := Root(disk, nil)
	require.NoError(t, err)
	require.Equal(t, memRoot, diskRoot)
}
