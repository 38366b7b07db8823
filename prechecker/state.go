// Package prechecker implements the fast endorsement-validation path: an
// operation that is a simple endorsement can be accepted or refused using a
// cached endorsing-rights lookup and a signature check, without invoking
// the full protocol runner. Anything else is handed off as ProtocolNeeded.
package prechecker

import (
	"github.com/dkuehr/tezedge/chain"
)

// Phase tags where a pending check sits in the fast-path pipeline.
type Phase int

const (
	PhasePendingRights Phase = iota
	PhaseReady
	PhaseDecided
)

// PendingCheck tracks one operation working its way through the fast path.
type PendingCheck struct {
	Hash      chain.OperationHash
	Operation chain.Operation
	Phase     Phase
	Block     chain.BlockHash
	Level     chain.Level
}

// rightsKey identifies the endorsing rights a pending endorsement waits on;
// every pending endorsement for the same (block, level) is resolved
// together by one PrecheckerEndorsingRightsReady for that key (the
// "endorsing rights request fan-in" behavior of SPEC_FULL.md §3).
type rightsKey struct {
	Block chain.BlockHash
	Level chain.Level
}

// State is the prechecker's complete state.
type State struct {
	Pending map[chain.OperationHash]*PendingCheck
	// Waiters groups pending operation hashes by the rights request they
	// are blocked on.
	Waiters map[rightsKey][]chain.OperationHash
	// InFlight marks which keys have a rights lookup outstanding; it is
	// cleared when the rights arrive. The effect layer looks rights up once
	// per arriving endorsement, so InFlight does not prevent a second cache
	// lookup for the same key.
	InFlight map[rightsKey]struct{}
}

// NewState returns an empty prechecker state.
func NewState() *State {
	return &State{
		Pending:  make(map[chain.OperationHash]*PendingCheck),
		Waiters:  make(map[rightsKey][]chain.OperationHash),
		InFlight: make(map[rightsKey]struct{}),
	}
}
