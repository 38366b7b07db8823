package protocol

import (
	"testing"

	"github.com/dkuehr/tezedge/chain"
)

func TestDefaultRegistryClassifiesByPass(t *testing.T) {
	r := NewDefaultRegistry()

	kind, err := r.Classify(PassConsensus, []byte{0x01})
	if err != nil {
		t.Fatal(err)
	}
	if kind != chain.OpEndorsement {
		t.Errorf("pass 0 classified as %v, want endorsement", kind)
	}

	if _, err := r.Classify(PassConsensus, nil); err == nil {
		t.Error("expected error for empty payload")
	}

	if _, err := r.Classify(99, []byte{0x01}); err == nil {
		t.Error("expected error for an unregistered validation pass")
	}
}

func TestRegisterPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	r := NewOperationKindRegistry()
	r.Register(PassConsensus, func(raw []byte) (chain.OperationKind, error) { return chain.OpEndorsement, nil })
	r.Register(PassConsensus, func(raw []byte) (chain.OperationKind, error) { return chain.OpEndorsement, nil })
}

func TestFakeRunnerDefaultsApplyAndValidate(t *testing.T) {
	f := NewFakeRunner()
	res, err := f.ApplyBlock(nil, chain.BlockHeader{Level: 3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Level != 3 {
		t.Errorf("ApplyResult.Level = %d, want 3", res.Level)
	}

	op := chain.Operation{Kind: chain.OpManager}
	vres, err := f.ValidateOperation(nil, chain.BlockHash{0x01}, op)
	if err != nil {
		t.Fatal(err)
	}
	if vres.Verdict != ValidateApplied {
		t.Errorf("ValidateResult.Verdict = %v, want ValidateApplied", vres.Verdict)
	}
	if len(f.ApplyCalls) != 1 || len(f.ValidateCalls) != 1 {
		t.Errorf("expected one recorded call each, got apply=%d validate=%d", len(f.ApplyCalls), len(f.ValidateCalls))
	}
}
