package protocol

import (
	"context"
	"sync"

	"github.com/dkuehr/tezedge/chain"
)

// FakeRunner is an in-memory Runner for tests, scripted by the caller
// instead of talking to a real protocol-runner process.
type FakeRunner struct {
	mu sync.Mutex

	ApplyFunc      func(header chain.BlockHeader, ops map[chain.ValidationPass][]chain.Operation) (ApplyResult, error)
	ValidateFunc   func(head chain.BlockHash, op chain.Operation) (ValidateResult, error)
	BeginCalls     []chain.BlockHash
	ApplyCalls     []chain.BlockHeader
	ValidateCalls  []chain.Operation
	Closed         bool
}

// NewFakeRunner creates a FakeRunner that applies and validates everything
// by default; set ApplyFunc/ValidateFunc to script specific outcomes.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

func (f *FakeRunner) ApplyBlock(ctx context.Context, header chain.BlockHeader, ops map[chain.ValidationPass][]chain.Operation) (ApplyResult, error) {
	f.mu.Lock()
	f.ApplyCalls = append(f.ApplyCalls, header)
	fn := f.ApplyFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(header, ops)
	}
	return ApplyResult{Level: header.Level}, nil
}

func (f *FakeRunner) ValidateOperation(ctx context.Context, head chain.BlockHash, op chain.Operation) (ValidateResult, error) {
	f.mu.Lock()
	f.ValidateCalls = append(f.ValidateCalls, op)
	fn := f.ValidateFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(head, op)
	}
	return ValidateResult{Hash: op.Hash(), Verdict: ValidateApplied}, nil
}

func (f *FakeRunner) BeginConstruction(ctx context.Context, predecessor chain.BlockHash) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BeginCalls = append(f.BeginCalls, predecessor)
	return nil
}

func (f *FakeRunner) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
