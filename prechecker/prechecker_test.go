package prechecker

import (
	"testing"

	"github.com/dkuehr/tezedge/action"
	"github.com/dkuehr/tezedge/chain"
	"github.com/dkuehr/tezedge/cryptoutil"
)

func TestNonEndorsementGoesStraightToProtocolNeeded(t *testing.T) {
	s := NewState()
	op := chain.Operation{Kind: chain.OpManager}

	followups, err := Reduce(s, action.PrecheckerOperationArrived{Hash: chain.OperationHash{0x01}, Operation: op}, action.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if len(followups) != 1 {
		t.Fatalf("expected one followup, got %d", len(followups))
	}
	decided, ok := followups[0].(action.PrecheckerOperationDecided)
	if !ok || decided.Decision != action.DecisionProtocolNeeded {
		t.Errorf("unexpected followup: %#v", followups[0])
	}
	if len(s.Pending) != 0 {
		t.Error("non-endorsements should never enter the fast-path Pending map")
	}
}

func TestEndorsementFanInSharesOneRightsRequest(t *testing.T) {
	s := NewState()
	branch := chain.BlockHash{0x01}
	level := chain.Level(5)

	op1 := chain.Operation{Kind: chain.OpEndorsement, Branch: branch, Level: level}
	op2 := chain.Operation{Kind: chain.OpEndorsement, Branch: branch, Level: level}
	hash1, hash2 := chain.OperationHash{0x01}, chain.OperationHash{0x02}

	if _, err := Reduce(s, action.PrecheckerOperationArrived{Hash: hash1, Operation: op1}, action.Meta{}); err != nil {
		t.Fatal(err)
	}
	if _, err := Reduce(s, action.PrecheckerOperationArrived{Hash: hash2, Operation: op2}, action.Meta{}); err != nil {
		t.Fatal(err)
	}

	key := rightsKey{Block: branch, Level: level}
	if len(s.Waiters[key]) != 2 {
		t.Fatalf("expected both operations to wait on the same key, got %d waiters", len(s.Waiters[key]))
	}
	if len(s.InFlight) != 1 {
		t.Errorf("expected exactly one in-flight rights request, got %d", len(s.InFlight))
	}
}

func TestRightsReadyVerifiesSignature(t *testing.T) {
	s := NewState()
	priv, pub, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	delegate := pub.Hash()
	branch := chain.BlockHash{0x02}
	level := chain.Level(7)

	op := chain.Operation{Kind: chain.OpEndorsement, Branch: branch, Level: level, Delegate: delegate}
	op.Sign(priv)
	hash := chain.OperationHash{0x09}

	if _, err := Reduce(s, action.PrecheckerOperationArrived{Hash: hash, Operation: op}, action.Meta{}); err != nil {
		t.Fatal(err)
	}

	followups, err := Reduce(s, action.PrecheckerEndorsingRightsReady{
		Block:  branch,
		Level:  level,
		Rights: map[string][]byte{delegate.String(): pub},
	}, action.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if len(followups) != 1 {
		t.Fatalf("expected one decision, got %d", len(followups))
	}
	decided, ok := followups[0].(action.PrecheckerOperationDecided)
	if !ok || decided.Decision != action.DecisionPrecheckedApplied {
		t.Errorf("expected PrecheckedApplied, got %#v", followups[0])
	}

	key := rightsKey{Block: branch, Level: level}
	if _, stillWaiting := s.Waiters[key]; stillWaiting {
		t.Error("expected waiters to be cleared after resolution")
	}
	if _, stillInFlight := s.InFlight[key]; stillInFlight {
		t.Error("expected in-flight marker to be cleared after resolution")
	}
}

func TestRightsReadyRefusesBadSignature(t *testing.T) {
	s := NewState()
	priv, pub, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	_, otherPub, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	delegate := pub.Hash()
	branch := chain.BlockHash{0x03}
	level := chain.Level(9)

	op := chain.Operation{Kind: chain.OpEndorsement, Branch: branch, Level: level, Delegate: delegate}
	op.Sign(priv)
	hash := chain.OperationHash{0x0a}

	if _, err := Reduce(s, action.PrecheckerOperationArrived{Hash: hash, Operation: op}, action.Meta{}); err != nil {
		t.Fatal(err)
	}

	// Rights map carries a different public key for this delegate than the
	// one that actually signed — simulates a corrupted/forged signature.
	followups, err := Reduce(s, action.PrecheckerEndorsingRightsReady{
		Block:  branch,
		Level:  level,
		Rights: map[string][]byte{delegate.String(): otherPub},
	}, action.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if len(followups) != 1 {
		t.Fatalf("expected one decision, got %d", len(followups))
	}
	decided, ok := followups[0].(action.PrecheckerOperationDecided)
	if !ok || decided.Decision != action.DecisionPrecheckRefused {
		t.Errorf("expected PrecheckRefused, got %#v", followups[0])
	}
}

func TestRightsReadyDegradesUnsupportedKeyToProtocolNeeded(t *testing.T) {
	s := NewState()
	priv, _, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	delegate := cryptoutil.PublicKeyHash{0x05}
	branch := chain.BlockHash{0x05}
	level := chain.Level(13)

	op := chain.Operation{Kind: chain.OpEndorsement, Branch: branch, Level: level, Delegate: delegate}
	op.Sign(priv)
	hash := chain.OperationHash{0x0c}

	if _, err := Reduce(s, action.PrecheckerOperationArrived{Hash: hash, Operation: op}, action.Meta{}); err != nil {
		t.Fatal(err)
	}

	// A key of the wrong size can't be verified at all; this should defer
	// to the protocol runner rather than refuse the operation outright.
	followups, err := Reduce(s, action.PrecheckerEndorsingRightsReady{
		Block:  branch,
		Level:  level,
		Rights: map[string][]byte{delegate.String(): {0x01, 0x02, 0x03}},
	}, action.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if len(followups) != 1 {
		t.Fatalf("expected one decision, got %d", len(followups))
	}
	decided, ok := followups[0].(action.PrecheckerOperationDecided)
	if !ok || decided.Decision != action.DecisionProtocolNeeded {
		t.Errorf("expected ProtocolNeeded for an unsupported key, got %#v", followups[0])
	}
}

func TestRightsReadyMissingDelegateDefersToProtocol(t *testing.T) {
	s := NewState()
	branch := chain.BlockHash{0x04}
	level := chain.Level(11)
	op := chain.Operation{Kind: chain.OpEndorsement, Branch: branch, Level: level}
	hash := chain.OperationHash{0x0b}

	if _, err := Reduce(s, action.PrecheckerOperationArrived{Hash: hash, Operation: op}, action.Meta{}); err != nil {
		t.Fatal(err)
	}

	followups, err := Reduce(s, action.PrecheckerEndorsingRightsReady{
		Block: branch, Level: level, Rights: map[string][]byte{},
	}, action.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	decided, ok := followups[0].(action.PrecheckerOperationDecided)
	if !ok || decided.Decision != action.DecisionProtocolNeeded {
		t.Errorf("expected ProtocolNeeded for an absent delegate, got %#v", followups[0])
	}
}
