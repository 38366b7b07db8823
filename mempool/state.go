// Package mempool implements the per-operation lifecycle state machine:
// received, decoded, prechecked/validated, applied/refused, broadcast. Like
// bootstrap, it owns State and Reduce only; effects perform the actual wire
// sends and protocol-runner calls.
package mempool

import (
	"time"

	"github.com/dkuehr/tezedge/chain"
)

// Status tags an operation's position in the mempool lifecycle.
type Status int

const (
	StatusReceived Status = iota
	StatusDecoded
	StatusPrechecked
	StatusPrecheckRefused
	StatusProtocolNeeded
	StatusApplied
	StatusBranchDelayed
	StatusBranchRefused
	StatusRefused
	StatusBroadcast
)

func (s Status) String() string {
	switch s {
	case StatusReceived:
		return "received"
	case StatusDecoded:
		return "decoded"
	case StatusPrechecked:
		return "prechecked"
	case StatusPrecheckRefused:
		return "precheck_refused"
	case StatusProtocolNeeded:
		return "protocol_needed"
	case StatusApplied:
		return "applied"
	case StatusBranchDelayed:
		return "branch_delayed"
	case StatusBranchRefused:
		return "branch_refused"
	case StatusRefused:
		return "refused"
	case StatusBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// PendingOperation tracks one operation's progress through the lifecycle,
// including a timestamp per status transition for observability.
type PendingOperation struct {
	Hash      chain.OperationHash
	Operation chain.Operation
	Status    Status
	FromPeer  chain.PeerID // zero value if injected via RPC
	Times     map[Status]time.Time
	ErrorMsg  string
}

func newPending(hash chain.OperationHash, from chain.PeerID, now time.Time) *PendingOperation {
	return &PendingOperation{
		Hash:     hash,
		FromPeer: from,
		Status:   StatusReceived,
		Times:    map[Status]time.Time{StatusReceived: now},
	}
}

func (p *PendingOperation) transition(to Status, now time.Time) {
	p.Status = to
	p.Times[to] = now
}

// HeadState is the node's notion of the chain head mempool validation runs
// against: which chain, which block, and that block's hash (cached so
// re-deriving it from the header is not needed on every comparison).
type HeadState struct {
	ChainID   chain.ChainID
	Block     chain.BlockHeader
	BlockHash chain.BlockHash
}

// CurrentHeadEntry tracks, for one block hash, every peer that reported it
// as their current head and when it was first seen (see SPEC_FULL.md §3).
type CurrentHeadEntry struct {
	Block chain.BlockHeader
	Peers map[chain.PeerID]struct{}
	Stamp time.Time
}

// PeerMempoolState tracks what a connected peer is known to have, and what
// full operation content is still outstanding from them.
type PeerMempoolState struct {
	KnownOperations        map[chain.OperationHash]struct{}
	RequestingFullContent  map[chain.OperationHash]struct{}
	Head                   *HeadState
}

func newPeerState() *PeerMempoolState {
	return &PeerMempoolState{
		KnownOperations:       make(map[chain.OperationHash]struct{}),
		RequestingFullContent: make(map[chain.OperationHash]struct{}),
	}
}

// State is the mempool engine's complete state.
type State struct {
	Pending        map[chain.OperationHash]*PendingOperation
	Applied        map[chain.OperationHash]chain.Operation
	BranchDelayed  map[chain.OperationHash]chain.Operation
	BranchRefused  map[chain.OperationHash]chain.Operation
	Refused        map[chain.OperationHash]chain.Operation

	PeerState map[chain.PeerID]*PeerMempoolState

	CurrentHeads       map[chain.BlockHash]*CurrentHeadEntry
	LatestCurrentHead  chain.BlockHash
	LatestCurrentLevel chain.Level

	LocalHeadState *HeadState

	// InjectingRPCIDs / InjectedRPCIDs are mutually exclusive: an operation
	// hash is in exactly one of them, never both, while its RPC injection
	// response is outstanding vs. already sent.
	InjectingRPCIDs map[chain.OperationHash]uint64
	InjectedRPCIDs  map[uint64]chain.OperationHash
}

// NewState returns an empty mempool state.
func NewState() *State {
	return &State{
		Pending:         make(map[chain.OperationHash]*PendingOperation),
		Applied:         make(map[chain.OperationHash]chain.Operation),
		BranchDelayed:   make(map[chain.OperationHash]chain.Operation),
		BranchRefused:   make(map[chain.OperationHash]chain.Operation),
		Refused:         make(map[chain.OperationHash]chain.Operation),
		PeerState:       make(map[chain.PeerID]*PeerMempoolState),
		CurrentHeads:    make(map[chain.BlockHash]*CurrentHeadEntry),
		InjectingRPCIDs: make(map[chain.OperationHash]uint64),
		InjectedRPCIDs:  make(map[uint64]chain.OperationHash),
	}
}

func (s *State) peer(id chain.PeerID) *PeerMempoolState {
	ps, ok := s.PeerState[id]
	if !ok {
		ps = newPeerState()
		s.PeerState[id] = ps
	}
	return ps
}

// KnownValidHashes returns the hashes of every operation considered valid
// against the current head (applied, branch-delayed or branch-refused —
// i.e. everything except outright refused), used to build CurrentHead
// broadcast messages.
func (s *State) KnownValidHashes() []chain.OperationHash {
	out := make([]chain.OperationHash, 0, len(s.Applied)+len(s.BranchDelayed)+len(s.BranchRefused))
	for h := range s.Applied {
		out = append(out, h)
	}
	for h := range s.BranchDelayed {
		out = append(out, h)
	}
	for h := range s.BranchRefused {
		out = append(out, h)
	}
	return out
}

// PendingHashes returns the hashes of every still-pending operation.
func (s *State) PendingHashes() []chain.OperationHash {
	out := make([]chain.OperationHash, 0, len(s.Pending))
	for h := range s.Pending {
		out = append(out, h)
	}
	return out
}
