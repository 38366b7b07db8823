package config

import (
	"encoding/hex"
	"fmt"

	"github.com/dkuehr/tezedge/chain"
)

// GenesisLevel is the level of the chain's first block. Every bootstrap
// interval chain terminates here rather than at a predecessor lookup.
const GenesisLevel chain.Level = 0

// IsGenesisLevel reports whether level is the chain's genesis level.
func IsGenesisLevel(level chain.Level) bool {
	return level == GenesisLevel
}

// IsGenesisPredecessor reports whether hash is the all-zero predecessor
// placeholder a genesis header carries in place of a real predecessor.
func IsGenesisPredecessor(hash chain.BlockHash) bool {
	var zero chain.BlockHash
	return hash == zero
}

// ParseChainID decodes the config file's hex chain_id string into the
// 4-byte identifier carried on wire messages and actions. Tezos chain IDs
// are derived from the genesis block hash; this node treats the
// configured value as already-derived rather than recomputing it.
func ParseChainID(s string) (chain.ChainID, error) {
	var id chain.ChainID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("chain_id: invalid hex: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("chain_id: want %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}
