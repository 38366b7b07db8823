package bootstrap

import (
	"encoding/binary"

	"github.com/dkuehr/tezedge/chain"
	"github.com/dkuehr/tezedge/cryptoutil"
)

// Seed is a per-(peer, local-identity) deterministic value that seeds the
// step sequence used to pick interval boundaries while downloading a peer's
// branch. Using both identities as input means two local nodes talking to
// the same peer derive different, uncorrelated interval boundaries, which
// spreads header requests across the peer set instead of every node asking
// for the same levels at the same time.
type Seed [cryptoutil.HashSize]byte

// NewSeed derives a Seed from a peer's and the local node's public key hash.
func NewSeed(peer, own cryptoutil.PublicKeyHash) Seed {
	buf := make([]byte, 0, len(peer)+len(own))
	buf = append(buf, peer[:]...)
	buf = append(buf, own[:]...)
	return Seed(cryptoutil.Hash256(buf))
}

// Step is a deterministic, peer-specific generator of decreasing interval
// sizes: large steps far from the known chain (coarse binary-search-like
// narrowing), shrinking to 1 as the interval approaches a stitch point.
type Step struct {
	seed    Seed
	tip     chain.BlockHash
	counter uint32
}

// InitStep creates a Step generator anchored to seed and a branch's tip
// hash, so that restarting bootstrap against the same peer/tip reproduces
// the same sequence of interval boundaries.
func InitStep(seed Seed, tip chain.BlockHash) *Step {
	return &Step{seed: seed, tip: tip}
}

// Next returns the next step size (always >= 1) and advances the generator.
// The size is derived from hash(seed || tip || counter) so it is
// reproducible without any mutable shared state beyond this struct, and
// shrinks towards 1 as counter grows so intervals narrow down near a stitch
// point instead of repeatedly overshooting it.
func (s *Step) Next() chain.Level {
	buf := make([]byte, 0, len(s.seed)+len(s.tip)+4)
	buf = append(buf, s.seed[:]...)
	buf = append(buf, s.tip[:]...)
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], s.counter)
	buf = append(buf, cb[:]...)
	s.counter++

	h := cryptoutil.Hash256(buf)
	raw := binary.BigEndian.Uint32(h[:4])

	// Base step shrinks geometrically with counter so later requests (closer
	// to the stitch point) ask for smaller spans; bounded to [1, 32], since
	// counter is already at least 1 here.
	maxSpan := uint32(64)
	if s.counter < 8 {
		maxSpan = 64 >> s.counter
		if maxSpan == 0 {
			maxSpan = 1
		}
	} else {
		maxSpan = 1
	}
	step := chain.Level(raw%maxSpan) + 1
	return step
}
