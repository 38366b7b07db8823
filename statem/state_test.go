package statem

import "testing"

func TestNewStateIsEmpty(t *testing.T) {
	s := New(Config{PeersBootstrappedMin: 3})
	if s.Bootstrap == nil || s.Mempool == nil || s.Prechecker == nil {
		t.Fatal("expected all three engine states to be initialized")
	}
	if len(s.Peers) != 0 {
		t.Error("expected no peers at construction")
	}
}

func TestSetConnectedCreatesPeerEntry(t *testing.T) {
	s := New(Config{PeersBootstrappedMin: 1})
	s.SetConnected("peer1", true)
	p, ok := s.Peers["peer1"]
	if !ok {
		t.Fatal("expected peer entry to be created")
	}
	if !p.Connected {
		t.Error("expected peer to be marked connected")
	}
}

func TestSetGraylistedIsGraylisted(t *testing.T) {
	s := New(Config{PeersBootstrappedMin: 1})
	if s.IsGraylisted("peer1") {
		t.Error("unknown peer should not be graylisted")
	}
	s.SetGraylisted("peer1", true)
	if !s.IsGraylisted("peer1") {
		t.Error("expected peer to be graylisted")
	}
	s.SetGraylisted("peer1", false)
	if s.IsGraylisted("peer1") {
		t.Error("expected graylist to clear")
	}
}
