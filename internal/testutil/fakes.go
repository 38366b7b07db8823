package testutil

import (
	"github.com/dkuehr/tezedge/protocol"
	"github.com/dkuehr/tezedge/rights"
	"github.com/dkuehr/tezedge/storage"
)

// NewBlockStore returns a storage.BlockStore backed by a fresh in-memory DB,
// for tests that need header/operations persistence without LevelDB.
func NewBlockStore() *storage.BlockStore {
	return storage.NewBlockStore(NewMemDB())
}

// NewFakeRunner returns a protocol.Runner test double. Re-exported here so
// callers only need one testutil import for the node's two I/O boundaries.
func NewFakeRunner() *protocol.FakeRunner {
	return protocol.NewFakeRunner()
}

// NewFakeRightsSource returns a rights.Source test double.
func NewFakeRightsSource() *rights.FakeSource {
	return rights.NewFakeSource()
}
