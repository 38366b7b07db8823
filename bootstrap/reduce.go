package bootstrap

import (
	"fmt"

	"github.com/dkuehr/tezedge/action"
	"github.com/dkuehr/tezedge/chain"
	"github.com/dkuehr/tezedge/cryptoutil"
)

// OwnIdentity is passed into Reduce so interval seeds can be derived without
// threading a config object through every action variant.
type OwnIdentity struct {
	PublicKeyHash cryptoutil.PublicKeyHash
}

// Reduce applies act to s, mutating it in place. It returns the follow-up
// actions for the reducer and effect layer (main-block checks, interval
// extension, graylist notifications, block-apply scheduling) — Reduce
// itself never performs I/O.
func Reduce(s *State, own OwnIdentity, act action.Action, meta action.Meta) ([]action.Action, error) {
	switch a := act.(type) {
	case action.PeerCurrentBranchReceived:
		return reducePeerCurrentBranch(s, own, a)
	case action.BootstrapCheckMainBlock:
		return reduceCheckMainBlock(s)
	case action.BootstrapIntervalsExtend:
		return reduceIntervalsExtend(s)
	case action.BlockHeaderReceived:
		return reduceBlockHeaderReceived(s, a)
	case action.OperationsForBlockReceived:
		return reduceOperationsForBlockReceived(s, a)
	case action.BlockApplied:
		reduceBlockApplied(s, a)
		return nil, nil
	default:
		return nil, nil
	}
}

func reducePeerCurrentBranch(s *State, own OwnIdentity, a action.PeerCurrentBranchReceived) ([]action.Action, error) {
	// Q2: once a main block has been agreed on, a late-arriving branch can
	// no longer influence that choice — accepting it would let a slow peer
	// retroactively reopen a decision the interval plan already committed
	// to. Reject as out-of-phase.
	if s.MainChainFound {
		return nil, nil
	}

	s.PeerBranches[a.Peer] = PeerBranch{
		ChainID:     a.ChainID,
		Tip:         a.Tip,
		TipHash:     a.TipHash,
		Predecessor: a.Predecessor,
	}

	s.addSupporter(a.TipHash, a.Tip.Level, a.Peer)
	if !a.Predecessor.IsZero() {
		s.addSupporter(a.Predecessor, a.Tip.Level-1, a.Peer)
	}

	// Seed an interval for this peer if it doesn't have one yet.
	for _, iv := range s.Intervals {
		if iv.Peer == a.Peer {
			return []action.Action{action.BootstrapCheckMainBlock{}}, nil
		}
	}
	seed := NewSeed(peerPKH(a.Peer), own.PublicKeyHash)
	s.Intervals = append(s.Intervals, &Interval{
		Peer:       a.Peer,
		Phase:      PhaseExpecting,
		HighLevel:  a.Tip.Level,
		HighHash:   a.TipHash,
		Downloaded: make(map[chain.Level]chain.BlockHeader),
		step:       InitStep(seed, a.TipHash),
	})

	return []action.Action{action.BootstrapCheckMainBlock{}}, nil
}

func (s *State) addSupporter(h chain.BlockHash, level chain.Level, peer chain.PeerID) {
	set, ok := s.BlockSupporters[h]
	if !ok {
		set = make(map[chain.PeerID]struct{})
		s.BlockSupporters[h] = set
	}
	set[peer] = struct{}{}
	s.BlockLevels[h] = level
}

func reduceCheckMainBlock(s *State) ([]action.Action, error) {
	if s.MainChainFound {
		return nil, nil
	}
	hash, level, ok := s.MainBlock()
	if !ok {
		return nil, nil
	}
	s.MainChainFound = true
	s.MainBlockHash = hash
	s.MainBlockLevel = level
	s.MainChain = []chain.BlockHash{hash}
	return []action.Action{action.BootstrapIntervalsExtend{}}, nil
}

// reduceIntervalsExtend advances every interval still in PhaseExpecting to
// PhaseAdvancing by picking its next candidate level via Step, and attempts
// to stitch any interval whose Downloaded map has reached its neighbour.
func reduceIntervalsExtend(s *State) ([]action.Action, error) {
	var followups []action.Action

	for _, iv := range s.Intervals {
		if iv.Phase != PhaseExpecting {
			continue
		}
		step := iv.step.Next()
		next := iv.HighLevel - step
		if next < 0 {
			next = 0
		}
		iv.Current = next
		iv.Phase = PhaseAdvancing
	}

	stitched, err := attemptStitch(s)
	if err != nil {
		return followups, err
	}
	followups = append(followups, stitched...)
	return followups, nil
}

// attemptStitch looks for adjacent intervals where the lower interval's high
// hash matches a hash the higher interval downloaded at the expected
// predecessor level, and merges them into s.MainChain. It implements the Q1
// resolution: when the hashes at the stitch point disagree, both intervals
// are dropped and both peers are graylisted, per DESIGN.md.
func attemptStitch(s *State) ([]action.Action, error) {
	var followups []action.Action
	var remaining []*Interval
	dropped := make(map[*Interval]bool)

	for i := 0; i < len(s.Intervals); i++ {
		iv := s.Intervals[i]
		if dropped[iv] {
			continue
		}
		if iv.Phase != PhaseAdvancing || len(iv.Downloaded) == 0 {
			remaining = append(remaining, iv)
			continue
		}
		hdr, ok := iv.Downloaded[iv.Current]
		if !ok {
			remaining = append(remaining, iv)
			continue
		}

		predecessorLevel := iv.Current - 1
		// Find a neighbour interval whose HighLevel matches predecessorLevel.
		var neighbour *Interval
		for j := range s.Intervals {
			if s.Intervals[j] == iv || dropped[s.Intervals[j]] {
				continue
			}
			if s.Intervals[j].HighLevel == predecessorLevel {
				neighbour = s.Intervals[j]
				break
			}
		}
		if neighbour == nil {
			// Nothing to stitch against yet; keep expecting.
			remaining = append(remaining, iv)
			continue
		}

		if neighbour.HighHash != hdr.Predecessor {
			// Q1: mismatch at the stitch point. Drop both intervals and
			// graylist both peers; never silently pick one side.
			followups = append(followups,
				action.PeerGraylisted{Peer: iv.Peer, Reason: "predecessor hash mismatch at stitch point"},
				action.PeerGraylisted{Peer: neighbour.Peer, Reason: "predecessor hash mismatch at stitch point"},
			)
			s.Graylist[iv.Peer] = struct{}{}
			s.Graylist[neighbour.Peer] = struct{}{}
			// Skip re-adding iv and neighbour: both are removed. neighbour
			// is filtered out of remaining by identity comparison if it was
			// already kept, and skipped by the loop if it comes later.
			dropped[neighbour] = true
			for k, other := range remaining {
				if other == neighbour {
					remaining = append(remaining[:k], remaining[k+1:]...)
					break
				}
			}
			continue
		}

		iv.Phase = PhaseStitched
		s.MainChain = append(s.MainChain, hdr.Predecessor)
		remaining = append(remaining, iv)
	}

	s.Intervals = remaining
	return followups, nil
}

func reduceBlockHeaderReceived(s *State, a action.BlockHeaderReceived) ([]action.Action, error) {
	for _, iv := range s.Intervals {
		if iv.Peer != a.Peer {
			continue
		}
		if iv.Phase != PhaseAdvancing || a.Header.Level != iv.Current {
			continue
		}
		iv.Downloaded[iv.Current] = a.Header

		// "Should not happen" hazard: the predecessor interval has neither a
		// downloaded header nor any current candidate — remove it and keep
		// going rather than stall the whole pipeline (see SPEC_FULL.md §3).
		predLevel := iv.Current - 1
		if predLevel >= 0 {
			if pred := findIntervalAt(s, predLevel); pred != nil && len(pred.Downloaded) == 0 && pred.Phase != PhaseAdvancing {
				removeInterval(s, pred)
			}
		}

		slot := s.BlocksToApply[a.Hash]
		if slot == nil {
			slot = &downloadSlot{Operations: make(map[chain.ValidationPass][]chain.Operation)}
			s.BlocksToApply[a.Hash] = slot
		}
		slot.Header = a.Header
		slot.NumPasses = a.Header.ValidationPass

		return attemptStitch(s)
	}
	return nil, nil
}

func findIntervalAt(s *State, level chain.Level) *Interval {
	for _, iv := range s.Intervals {
		if iv.HighLevel == level {
			return iv
		}
	}
	return nil
}

func removeInterval(s *State, target *Interval) {
	out := s.Intervals[:0]
	for _, iv := range s.Intervals {
		if iv != target {
			out = append(out, iv)
		}
	}
	s.Intervals = out
}

func reduceOperationsForBlockReceived(s *State, a action.OperationsForBlockReceived) ([]action.Action, error) {
	slot, ok := s.BlocksToApply[a.Block]
	if !ok {
		return nil, fmt.Errorf("operations received for unknown block %s", a.Block)
	}
	slot.Operations[a.ValidationPass] = a.Operations
	if slot.complete() {
		return []action.Action{action.BootstrapScheduleBlockForApply{Block: a.Block}}, nil
	}
	return nil, nil
}

func reduceBlockApplied(s *State, a action.BlockApplied) {
	delete(s.BlocksToApply, a.Block)
}

func peerPKH(p chain.PeerID) cryptoutil.PublicKeyHash {
	sum := cryptoutil.Hash256([]byte(p))
	var out cryptoutil.PublicKeyHash
	copy(out[:], sum[:len(out)])
	return out
}
