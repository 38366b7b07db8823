package bootstrap

import (
	"testing"

	"github.com/dkuehr/tezedge/action"
	"github.com/dkuehr/tezedge/chain"
	"github.com/dkuehr/tezedge/cryptoutil"
)

func testOwn(t *testing.T) OwnIdentity {
	t.Helper()
	_, pub, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return OwnIdentity{PublicKeyHash: pub.Hash()}
}

func TestMainBlockRequiresThreshold(t *testing.T) {
	s := NewState(2)
	own := testOwn(t)

	tipHash := chain.BlockHash{0xaa}
	tip := chain.BlockHeader{Level: 100}

	followups, err := Reduce(s, own, action.PeerCurrentBranchReceived{
		Peer: "peer1", Tip: tip, TipHash: tipHash,
	}, action.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if len(followups) != 1 {
		t.Fatalf("expected one followup (CheckMainBlock), got %d", len(followups))
	}

	if _, _, ok := s.MainBlock(); ok {
		t.Error("main block should not be found with only one supporter below threshold")
	}

	if _, err := Reduce(s, own, action.PeerCurrentBranchReceived{
		Peer: "peer2", Tip: tip, TipHash: tipHash,
	}, action.Meta{}); err != nil {
		t.Fatal(err)
	}

	hash, level, ok := s.MainBlock()
	if !ok {
		t.Fatal("expected main block to be found once threshold is met")
	}
	if hash != tipHash || level != tip.Level {
		t.Errorf("main block = (%s, %d), want (%s, %d)", hash, level, tipHash, tip.Level)
	}
}

func TestCheckMainBlockSetsState(t *testing.T) {
	s := NewState(1)
	own := testOwn(t)

	tipHash := chain.BlockHash{0xbb}
	if _, err := Reduce(s, own, action.PeerCurrentBranchReceived{
		Peer: "peer1", Tip: chain.BlockHeader{Level: 5}, TipHash: tipHash,
	}, action.Meta{}); err != nil {
		t.Fatal(err)
	}

	followups, err := Reduce(s, own, action.BootstrapCheckMainBlock{}, action.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if !s.MainChainFound {
		t.Fatal("expected MainChainFound to be set")
	}
	if s.MainBlockHash != tipHash {
		t.Errorf("MainBlockHash = %s, want %s", s.MainBlockHash, tipHash)
	}
	if len(followups) != 1 {
		t.Fatalf("expected IntervalsExtend followup, got %d", len(followups))
	}

	// A second call once already found is a no-op.
	followups, err = Reduce(s, own, action.BootstrapCheckMainBlock{}, action.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if followups != nil {
		t.Error("expected no followups once main chain is already found")
	}
}

func TestMainBlockTieBreakIsLexicographic(t *testing.T) {
	s := NewState(1)
	low := chain.BlockHash{0x01}
	high := chain.BlockHash{0x02}
	s.BlockSupporters[high] = map[chain.PeerID]struct{}{"p1": {}}
	s.BlockLevels[high] = 10
	s.BlockSupporters[low] = map[chain.PeerID]struct{}{"p2": {}}
	s.BlockLevels[low] = 10

	hash, _, ok := s.MainBlock()
	if !ok {
		t.Fatal("expected a main block candidate")
	}
	if hash != low {
		t.Errorf("expected lexicographically smaller hash to win a tie, got %s", hash)
	}
}

func TestMainBlockPicksHighestLevelOverSupporterCount(t *testing.T) {
	s := NewState(1)
	lowLevelManySupporters := chain.BlockHash{0x01}
	highLevelFewSupporters := chain.BlockHash{0x02}

	s.BlockSupporters[lowLevelManySupporters] = map[chain.PeerID]struct{}{"p1": {}, "p2": {}, "p3": {}}
	s.BlockLevels[lowLevelManySupporters] = 5

	s.BlockSupporters[highLevelFewSupporters] = map[chain.PeerID]struct{}{"p4": {}}
	s.BlockLevels[highLevelFewSupporters] = 10

	hash, level, ok := s.MainBlock()
	if !ok {
		t.Fatal("expected a main block candidate")
	}
	if hash != highLevelFewSupporters || level != 10 {
		t.Errorf("expected the higher-level block to win regardless of supporter count, got %s at level %d", hash, level)
	}
}

func TestPeerCurrentBranchRejectedAfterMainChainFound(t *testing.T) {
	s := NewState(1)
	own := testOwn(t)
	s.MainChainFound = true

	followups, err := Reduce(s, own, action.PeerCurrentBranchReceived{
		Peer: "late-peer", Tip: chain.BlockHeader{Level: 1}, TipHash: chain.BlockHash{0x09},
	}, action.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if followups != nil {
		t.Error("expected no followups for a late branch once main chain is decided")
	}
	if len(s.Intervals) != 0 {
		t.Error("expected no interval to be seeded for a rejected branch")
	}
}

func TestOperationsCompleteTriggersScheduleForApply(t *testing.T) {
	s := NewState(1)
	block := chain.BlockHash{0xcc}
	s.BlocksToApply[block] = &downloadSlot{
		Header:     chain.BlockHeader{ValidationPass: 2},
		Operations: make(map[chain.ValidationPass][]chain.Operation),
		NumPasses:  2,
	}

	own := testOwn(t)
	followups, err := Reduce(s, own, action.OperationsForBlockReceived{
		Block: block, ValidationPass: 0, Operations: nil,
	}, action.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if followups != nil {
		t.Error("expected no followup until every pass has arrived")
	}

	followups, err = Reduce(s, own, action.OperationsForBlockReceived{
		Block: block, ValidationPass: 1, Operations: nil,
	}, action.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if len(followups) != 1 {
		t.Fatalf("expected one ScheduleBlockForApply, got %d", len(followups))
	}
	if sched, ok := followups[0].(action.BootstrapScheduleBlockForApply); !ok || sched.Block != block {
		t.Errorf("unexpected followup: %#v", followups[0])
	}
}

func TestOperationsForUnknownBlockErrors(t *testing.T) {
	s := NewState(1)
	own := testOwn(t)
	_, err := Reduce(s, own, action.OperationsForBlockReceived{
		Block: chain.BlockHash{0xee},
	}, action.Meta{})
	if err == nil {
		t.Error("expected error for operations referencing an unknown block")
	}
}

func TestBlockAppliedClearsSlot(t *testing.T) {
	s := NewState(1)
	block := chain.BlockHash{0xdd}
	s.BlocksToApply[block] = &downloadSlot{NumPasses: 1}
	own := testOwn(t)

	if _, err := Reduce(s, own, action.BlockApplied{Block: block}, action.Meta{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.BlocksToApply[block]; ok {
		t.Error("expected block to be removed from BlocksToApply once applied")
	}
}

func TestSeedDeterministicAndStepBounded(t *testing.T) {
	_, pub1, _ := cryptoutil.GenerateKeyPair()
	_, pub2, _ := cryptoutil.GenerateKeyPair()
	peerPKH := pub1.Hash()
	ownPKH := pub2.Hash()

	seedA := NewSeed(peerPKH, ownPKH)
	seedB := NewSeed(peerPKH, ownPKH)
	if seedA != seedB {
		t.Error("NewSeed should be deterministic for the same inputs")
	}

	tip := chain.BlockHash{0x42}
	step := InitStep(seedA, tip)
	for i := 0; i < 20; i++ {
		v := step.Next()
		if v < 1 {
			t.Fatalf("step %d returned non-positive value %d", i, v)
		}
	}
}
