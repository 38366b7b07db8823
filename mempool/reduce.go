package mempool

import (
	"fmt"

	"github.com/dkuehr/tezedge/action"
	"github.com/dkuehr/tezedge/chain"
)

// Reduce applies act to s, mutating it in place, and returns any follow-up
// actions the effect layer should act on.
func Reduce(s *State, act action.Action, meta action.Meta) ([]action.Action, error) {
	switch a := act.(type) {
	case action.MempoolOperationReceived:
		// Hashing/decoding happens in the effect layer, keeping byte-level
		// parsing out of the reducer; this only records that something
		// arrived.
		s.peer(a.Peer)
		return nil, nil

	case action.MempoolOperationDecoded:
		return reduceDecoded(s, a, meta)

	case action.PrecheckerOperationDecided:
		return reducePrecheckerDecided(s, a, meta)

	case action.MempoolOperationValidated:
		return reduceValidated(s, a, meta)

	case action.MempoolOperationInject:
		return reduceInject(s, a, meta)

	case action.MempoolBroadcast:
		return reduceBroadcast(s, a)

	case action.MempoolBroadcastDone:
		reduceBroadcastDone(s, a)
		return nil, nil

	case action.MempoolCurrentHeadReceived:
		return reduceCurrentHeadReceived(s, a, meta)

	case action.BlockApplied:
		reduceBlockApplied(s, a)
		return nil, nil

	case action.PeerDisconnected:
		delete(s.PeerState, a.Peer)
		return nil, nil

	default:
		return nil, nil
	}
}

func reduceDecoded(s *State, a action.MempoolOperationDecoded, meta action.Meta) ([]action.Action, error) {
	if _, exists := s.Applied[a.Hash]; exists {
		return nil, nil
	}
	if _, exists := s.Refused[a.Hash]; exists {
		return nil, nil
	}
	if _, exists := s.Pending[a.Hash]; exists {
		return nil, nil
	}

	pending := newPending(a.Hash, a.Peer, meta.Time)
	if a.Err != nil {
		pending.transition(StatusRefused, meta.Time)
		pending.ErrorMsg = a.Err.Error()
		s.Refused[a.Hash] = a.Operation
		return nil, nil
	}

	pending.Operation = a.Operation
	pending.transition(StatusDecoded, meta.Time)
	s.Pending[a.Hash] = pending

	return []action.Action{action.PrecheckerOperationArrived{Hash: a.Hash, Operation: a.Operation}}, nil
}

func reducePrecheckerDecided(s *State, a action.PrecheckerOperationDecided, meta action.Meta) ([]action.Action, error) {
	p, ok := s.Pending[a.Hash]
	if !ok {
		return nil, nil
	}
	switch a.Decision {
	case action.DecisionPrecheckedApplied:
		p.transition(StatusPrechecked, meta.Time)
		return reduceValidated(s, action.MempoolOperationValidated{Hash: a.Hash, Verdict: action.VerdictApplied}, meta)
	case action.DecisionPrecheckRefused:
		p.transition(StatusPrecheckRefused, meta.Time)
		if a.Err != nil {
			p.ErrorMsg = a.Err.Error()
		}
		return reduceValidated(s, action.MempoolOperationValidated{Hash: a.Hash, Verdict: action.VerdictRefused}, meta)
	case action.DecisionProtocolNeeded:
		p.transition(StatusProtocolNeeded, meta.Time)
		// Stays pending; the protocol runner will eventually dispatch
		// MempoolOperationValidated for this hash.
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown precheck decision %d", a.Decision)
	}
}

func reduceValidated(s *State, a action.MempoolOperationValidated, meta action.Meta) ([]action.Action, error) {
	p, ok := s.Pending[a.Hash]
	if !ok {
		return nil, nil
	}
	delete(s.Pending, a.Hash)

	switch a.Verdict {
	case action.VerdictApplied:
		p.transition(StatusApplied, meta.Time)
		s.Applied[a.Hash] = p.Operation
	case action.VerdictBranchDelayed:
		p.transition(StatusBranchDelayed, meta.Time)
		s.BranchDelayed[a.Hash] = p.Operation
	case action.VerdictBranchRefused:
		p.transition(StatusBranchRefused, meta.Time)
		p.ErrorMsg = a.ErrorMsg
		s.BranchRefused[a.Hash] = p.Operation
	case action.VerdictRefused:
		p.transition(StatusRefused, meta.Time)
		p.ErrorMsg = a.ErrorMsg
		s.Refused[a.Hash] = p.Operation
	}

	var followups []action.Action
	// An RPC-injected operation that just resolved gets its response sent
	// exactly once: InjectingRPCIDs and InjectedRPCIDs are mutually
	// exclusive for a given hash.
	if rpcID, waiting := s.InjectingRPCIDs[a.Hash]; waiting {
		delete(s.InjectingRPCIDs, a.Hash)
		s.InjectedRPCIDs[rpcID] = a.Hash
		followups = append(followups, action.MempoolInjectionResolved{
			RPCID: rpcID, Hash: a.Hash, Verdict: a.Verdict, ErrorMsg: a.ErrorMsg,
		})
	}

	if a.Verdict != action.VerdictRefused {
		followups = append(followups, action.MempoolBroadcast{})
	}
	return followups, nil
}

func reduceInject(s *State, a action.MempoolOperationInject, meta action.Meta) ([]action.Action, error) {
	hash := a.Operation.Hash()

	if s.LocalHeadState == nil {
		// Effect layer replies "head is not ready" directly; nothing to
		// track in state since the operation was never accepted.
		return nil, nil
	}

	if _, exists := s.Pending[hash]; !exists {
		if _, applied := s.Applied[hash]; !applied {
			p := newPending(hash, "", meta.Time)
			p.Operation = a.Operation
			p.transition(StatusDecoded, meta.Time)
			s.Pending[hash] = p
		}
	}
	s.InjectingRPCIDs[hash] = a.RPCID

	return []action.Action{action.PrecheckerOperationArrived{Hash: hash, Operation: a.Operation}}, nil
}

func reduceBroadcast(s *State, a action.MempoolBroadcast) ([]action.Action, error) {
	// Marking broadcast status is informational only; the effect layer
	// performs the actual per-peer dedup send, filtering KnownValidHashes/
	// PendingHashes against each PeerMempoolState.KnownOperations set, and
	// reports what it sent back via MempoolBroadcastDone.
	for _, p := range s.Pending {
		if p.Status == StatusApplied || p.Status == StatusBranchDelayed {
			p.Status = StatusBroadcast
		}
	}
	return nil, nil
}

// reduceBroadcastDone records that a.Peer now knows about every hash in
// a.Hashes, so the next MempoolBroadcast won't resend them (property:
// broadcast is idempotent per peer).
func reduceBroadcastDone(s *State, a action.MempoolBroadcastDone) {
	ps := s.peer(a.Peer)
	for _, h := range a.Hashes {
		ps.KnownOperations[h] = struct{}{}
	}
}

func reduceCurrentHeadReceived(s *State, a action.MempoolCurrentHeadReceived, meta action.Meta) ([]action.Action, error) {
	ps := s.peer(a.Peer)
	ps.Head = &HeadState{ChainID: a.ChainID, Block: a.Block, BlockHash: a.BlockHash}

	entry, ok := s.CurrentHeads[a.BlockHash]
	if !ok {
		entry = &CurrentHeadEntry{Block: a.Block, Peers: make(map[chain.PeerID]struct{}), Stamp: meta.Time}
		s.CurrentHeads[a.BlockHash] = entry
	}
	entry.Peers[a.Peer] = struct{}{}

	if s.LatestCurrentHead.IsZero() || a.Block.Level > s.LatestCurrentLevel {
		s.LatestCurrentHead = a.BlockHash
		s.LatestCurrentLevel = a.Block.Level
	}
	// A same-level fork or a level gap relative to the latest known head is
	// neither rejected nor logged — the reducer still records the peer's
	// report so broadcast dedup stays accurate.

	for _, h := range a.KnownValid {
		ps.KnownOperations[h] = struct{}{}
	}
	for _, h := range a.Pending {
		ps.KnownOperations[h] = struct{}{}
		if _, have := s.Pending[h]; !have {
			ps.RequestingFullContent[h] = struct{}{}
		}
	}

	if len(ps.RequestingFullContent) == 0 {
		return nil, nil
	}
	// The reducer only flags that this peer has outstanding content to
	// fetch; no GetOperations wire message is sent for these hashes, since
	// the effect layer has no case for this action.
	return nil, nil
}

func reduceBlockApplied(s *State, a action.BlockApplied) {
	if s.LocalHeadState != nil && s.LocalHeadState.BlockHash == a.Block {
		return
	}
	// The effect layer is responsible for re-requesting BeginConstruction
	// from the protocol runner when the local head moves; the reducer just
	// clears the stale head so mempool validation is understood to be
	// pending a fresh one.
	s.LocalHeadState = nil
}
