// Package storage provides the generic key-value DB interface plus the
// shell's own typed key schema for block headers, per-validation-pass
// operation lists, and the mempool operation index.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/dkuehr/tezedge/chain"
)

// Key prefixes for the shell's data: a block's header, its operations by
// validation pass, the canonical hash at a level, and a mempool operation's
// last-known content (kept for re-broadcast after a restart).
const (
	prefixHeader    = "hdr:"
	prefixOps       = "ops:"
	prefixLevelHash = "lvl:"
	prefixTip       = "tip"
	prefixMempoolOp = "mop:"
)

func headerKey(hash chain.BlockHash) []byte {
	return []byte(prefixHeader + hash.String())
}

func opsKey(hash chain.BlockHash, pass chain.ValidationPass) []byte {
	return []byte(fmt.Sprintf("%s%s:%d", prefixOps, hash.String(), pass))
}

func levelHashKey(level chain.Level) []byte {
	return []byte(fmt.Sprintf("%s%d", prefixLevelHash, level))
}

func mempoolOpKey(hash chain.OperationHash) []byte {
	return []byte(prefixMempoolOp + hash.String())
}

// BlockStore persists block headers, their per-pass operation lists, and
// the canonical level->hash index on top of a generic DB.
type BlockStore struct {
	db DB
}

// NewBlockStore wraps db with the shell's block schema.
func NewBlockStore(db DB) *BlockStore {
	return &BlockStore{db: db}
}

// PutHeader stores header, keyed by its own hash, and indexes it as the
// canonical hash for its level.
func (s *BlockStore) PutHeader(hash chain.BlockHash, header chain.BlockHeader) error {
	data, err := json.Marshal(header)
	if err != nil {
		return err
	}
	if err := s.db.Set(headerKey(hash), data); err != nil {
		return err
	}
	return s.db.Set(levelHashKey(header.Level), []byte(hash.String()))
}

// GetHeader retrieves a previously stored header by hash.
func (s *BlockStore) GetHeader(hash chain.BlockHash) (chain.BlockHeader, error) {
	data, err := s.db.Get(headerKey(hash))
	if err != nil {
		return chain.BlockHeader{}, err
	}
	var h chain.BlockHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return chain.BlockHeader{}, err
	}
	return h, nil
}

// HashAtLevel returns the canonical block hash stored for level.
func (s *BlockStore) HashAtLevel(level chain.Level) (chain.BlockHash, error) {
	data, err := s.db.Get(levelHashKey(level))
	if err != nil {
		return chain.BlockHash{}, err
	}
	return chain.BlockHashFromHex(string(data))
}

// PutOperations stores the operations belonging to one validation pass of a
// block.
func (s *BlockStore) PutOperations(hash chain.BlockHash, pass chain.ValidationPass, ops []chain.Operation) error {
	data, err := json.Marshal(ops)
	if err != nil {
		return err
	}
	return s.db.Set(opsKey(hash, pass), data)
}

// GetOperations retrieves the operations for one validation pass of a
// block.
func (s *BlockStore) GetOperations(hash chain.BlockHash, pass chain.ValidationPass) ([]chain.Operation, error) {
	data, err := s.db.Get(opsKey(hash, pass))
	if err != nil {
		return nil, err
	}
	var ops []chain.Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

// GetTip returns the locally applied chain tip, or the zero hash if none
// has been set yet.
func (s *BlockStore) GetTip() (chain.BlockHash, error) {
	data, err := s.db.Get([]byte(prefixTip))
	if err == ErrNotFound {
		return chain.BlockHash{}, nil
	}
	if err != nil {
		return chain.BlockHash{}, err
	}
	return chain.BlockHashFromHex(string(data))
}

// SetTip records hash as the locally applied chain tip.
func (s *BlockStore) SetTip(hash chain.BlockHash) error {
	return s.db.Set([]byte(prefixTip), []byte(hash.String()))
}

// PutMempoolOperation persists an applied/branch-delayed operation so it
// can be re-broadcast after a restart without waiting for a peer resend.
func (s *BlockStore) PutMempoolOperation(hash chain.OperationHash, op chain.Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}
	return s.db.Set(mempoolOpKey(hash), data)
}

// DeleteMempoolOperation removes a mempool operation once it is no longer
// worth re-broadcasting (refused, or included in an applied block).
func (s *BlockStore) DeleteMempoolOperation(hash chain.OperationHash) error {
	return s.db.Delete(mempoolOpKey(hash))
}
