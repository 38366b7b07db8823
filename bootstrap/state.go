// Package bootstrap implements the peer-branch discovery, main-chain
// agreement and interval-based header/operations download engine described
// in the shell's bootstrap pipeline. It owns State and Reduce; all I/O
// (sending GetBlockHeaders/GetOperations, calling the protocol runner) is
// driven by the effects package off of the actions Reduce returns or leaves
// pending in state, never performed here.
package bootstrap

import (
	"sort"

	"github.com/dkuehr/tezedge/chain"
)

// PeerBranch is the most recently advertised current branch from a peer.
type PeerBranch struct {
	ChainID     chain.ChainID
	Tip         chain.BlockHeader
	TipHash     chain.BlockHash
	Predecessor chain.BlockHash // zero if undeliverable from Tip alone
}

// IntervalPhase tags an interval's position in its state machine.
type IntervalPhase int

const (
	// PhaseExpecting: the interval's lower bound is set but no header has
	// been requested yet.
	PhaseExpecting IntervalPhase = iota
	// PhaseAdvancing: a header request is outstanding for the interval's
	// current candidate level.
	PhaseAdvancing
	// PhaseStitched: the interval's lowest downloaded header matches the
	// next interval's highest known hash — the two intervals can be merged
	// into a contiguous run.
	PhaseStitched
	// PhaseOrphan: the interval could not be stitched to its neighbour
	// (predecessor hash mismatch) and was cut loose; see Q1 in DESIGN.md.
	PhaseOrphan
)

// Interval tracks one peer's contribution to the chain being downloaded: a
// contiguous span of levels, decreasing from a known high point towards a
// (possibly still unknown) lower bound, using Step to pick the next level to
// request.
type Interval struct {
	Peer      chain.PeerID
	Phase     IntervalPhase
	HighLevel chain.Level
	HighHash  chain.BlockHash
	// Current is the level currently being requested/awaited while
	// Phase == PhaseAdvancing.
	Current chain.Level
	// Downloaded holds headers received for this interval, keyed by level,
	// so greedy chain assembly can walk them in order once two intervals
	// stitch.
	Downloaded map[chain.Level]chain.BlockHeader
	step       *Step
}

// downloadSlot tracks one block's header plus its per-validation-pass
// operation lists while it is being assembled for application.
type downloadSlot struct {
	Header      chain.BlockHeader
	Operations  map[chain.ValidationPass][]chain.Operation
	NumPasses   chain.ValidationPass
}

func (d *downloadSlot) complete() bool {
	if d.NumPasses == 0 {
		return false
	}
	return chain.ValidationPass(len(d.Operations)) >= d.NumPasses
}

// State is the bootstrap engine's complete state.
type State struct {
	PeersBootstrappedMin int

	PeerBranches map[chain.PeerID]PeerBranch

	// BlockSupporters maps a candidate block hash to the set of peers whose
	// current branch supports it. Each branch records its tip and, when the
	// predecessor hash is non-zero, the predecessor one level below — both
	// are recorded, per SPEC_FULL.md §3's supplemented behavior.
	BlockSupporters map[chain.BlockHash]map[chain.PeerID]struct{}
	BlockLevels     map[chain.BlockHash]chain.Level

	MainChainFound bool
	MainBlockHash  chain.BlockHash
	MainBlockLevel chain.Level

	// Intervals holds at most one entry per peer, in the order the peers'
	// branches arrived; it is not sorted by level.
	Intervals []*Interval

	// MainChain is the greedily-assembled contiguous run of agreed levels,
	// highest level first, built by merging stitched intervals.
	MainChain []chain.BlockHash

	BlocksToApply map[chain.BlockHash]*downloadSlot

	Graylist map[chain.PeerID]struct{}
}

// NewState returns an empty bootstrap state requiring at least
// peersBootstrappedMin peers to agree on a block before it becomes main.
func NewState(peersBootstrappedMin int) *State {
	return &State{
		PeersBootstrappedMin: peersBootstrappedMin,
		PeerBranches:         make(map[chain.PeerID]PeerBranch),
		BlockSupporters:      make(map[chain.BlockHash]map[chain.PeerID]struct{}),
		BlockLevels:          make(map[chain.BlockHash]chain.Level),
		BlocksToApply:        make(map[chain.BlockHash]*downloadSlot),
		Graylist:             make(map[chain.PeerID]struct{}),
	}
}

// IsGraylisted reports whether peer has been graylisted.
func (s *State) IsGraylisted(peer chain.PeerID) bool {
	_, ok := s.Graylist[peer]
	return ok
}

// MainBlock computes the current best candidate for the main chain's tip:
// the highest-level block among those with at least PeersBootstrappedMin
// distinct supporters, breaking ties on the lexicographically smallest
// hash. Returns false if no candidate yet meets the threshold.
func (s *State) MainBlock() (chain.BlockHash, chain.Level, bool) {
	var best chain.BlockHash
	var bestLevel chain.Level
	found := false

	// Deterministic iteration order: sort candidate hashes first so that,
	// for equal levels, the lexicographic tie-break is the only thing
	// deciding the winner (map iteration order must never matter).
	hashes := make([]chain.BlockHash, 0, len(s.BlockSupporters))
	for h := range s.BlockSupporters {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Less(hashes[j]) })

	for _, h := range hashes {
		supporters := s.BlockSupporters[h]
		if len(supporters) < s.PeersBootstrappedMin {
			continue
		}
		level := s.BlockLevels[h]
		switch {
		case !found || level > bestLevel:
			best, bestLevel, found = h, level, true
		case level == bestLevel && h.Less(best):
			best = h
		}
	}
	return best, bestLevel, found
}
