package rights

import (
	"context"

	"github.com/dkuehr/tezedge/chain"
)

// FakeSource is a scripted Source for tests.
type FakeSource struct {
	Rights map[chain.Level]map[string][]byte
	Err    error
	Calls  []chain.Level
}

// NewFakeSource creates an empty scripted source.
func NewFakeSource() *FakeSource {
	return &FakeSource{Rights: make(map[chain.Level]map[string][]byte)}
}

func (f *FakeSource) EndorsingRights(ctx context.Context, block chain.BlockHash, level chain.Level) (map[string][]byte, error) {
	f.Calls = append(f.Calls, level)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Rights[level], nil
}
