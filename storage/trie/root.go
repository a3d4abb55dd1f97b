// Package trie derives Merkle-Patricia commitments over the flat escrow state.
package trie

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtrie "github.com/ethereum/go-ethereum/trie"

	"claimlink/storage"
)

// Root streams every key under prefix into a stack trie and returns its root
// hash. Keys are visited in lexical order, which the stack trie requires; the
// escrow state only stores fixed-width keccak keys so no key is a prefix of
// another. An empty range yields the canonical empty root.
func Root(db storage.Database, prefix []byte) (common.Hash, error) {
	if db == nil {
		return common.Hash{}, fmt.Errorf("trie: database required")
	}
	keys, err := db.Keys(prefix)
	if err != nil {
		return common.Hash{}, fmt.Errorf("trie: list keys: %w", err)
	}
	st := gethtrie.NewStackTrie(nil)
	for _, key := range keys {
		value, err := db.Get(key)
		if err != nil {
			return common.Hash{}, fmt.Errorf("trie: read %x: %w", key, err)
		}
		if len(value) == 0 {
			continue
		}
		if err := st.Update(key, value); err != nil {
			return common.Hash{}, fmt.Errorf("trie: insert %x: %w", key, err)
		}
	}
	return st.Hash(), nil
}
