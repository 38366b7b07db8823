// Package statem composes the three engine states — bootstrap, mempool,
// prechecker — plus the connection-level peer registry into the single
// State value the top-level reducer closes over. Nothing here decides
// anything; it only holds the pieces reducer.Reduce dispatches into.
package statem

import (
	"github.com/dkuehr/tezedge/bootstrap"
	"github.com/dkuehr/tezedge/chain"
	"github.com/dkuehr/tezedge/mempool"
	"github.com/dkuehr/tezedge/prechecker"
)

// PeerInfo tracks connection-level metadata not owned by any single engine.
type PeerInfo struct {
	Connected  bool
	Graylisted bool
}

// State is the shell's complete, reducible state.
type State struct {
	Bootstrap  *bootstrap.State
	Mempool    *mempool.State
	Prechecker *prechecker.State

	Peers map[chain.PeerID]*PeerInfo
}

// Config carries the values State needs at construction time that come
// from outside any single engine (the bootstrap threshold is a deployment
// parameter, not something any one engine can default sensibly).
type Config struct {
	PeersBootstrappedMin int
}

// New builds an empty State ready to receive actions.
func New(cfg Config) *State {
	return &State{
		Bootstrap:  bootstrap.NewState(cfg.PeersBootstrappedMin),
		Mempool:    mempool.NewState(),
		Prechecker: prechecker.NewState(),
		Peers:      make(map[chain.PeerID]*PeerInfo),
	}
}

func (s *State) peer(id chain.PeerID) *PeerInfo {
	p, ok := s.Peers[id]
	if !ok {
		p = &PeerInfo{}
		s.Peers[id] = p
	}
	return p
}

// IsGraylisted reports whether id has been graylisted, either at the
// connection level or by the bootstrap engine's stitch-mismatch handling.
func (s *State) IsGraylisted(id chain.PeerID) bool {
	if p, ok := s.Peers[id]; ok && p.Graylisted {
		return true
	}
	return s.Bootstrap.IsGraylisted(id)
}

// SetConnected records a peer's connection state.
func (s *State) SetConnected(id chain.PeerID, connected bool) {
	s.peer(id).Connected = connected
}

// SetGraylisted marks a peer as graylisted at the connection level.
func (s *State) SetGraylisted(id chain.PeerID, graylisted bool) {
	s.peer(id).Graylisted = graylisted
}
