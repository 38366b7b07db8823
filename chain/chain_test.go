package chain

import (
	"testing"

	"github.com/dkuehr/tezedge/cryptoutil"
)

func TestBlockHeaderHashAndSign(t *testing.T) {
	priv, pub, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	h := &BlockHeader{Level: 10, Timestamp: 1000, ValidationPass: 0}
	h.Sign(priv)
	if err := h.VerifySignature(pub); err != nil {
		t.Errorf("valid header signature failed: %v", err)
	}

	h2 := *h
	h2.Level = 11
	if err := h2.VerifySignature(pub); err == nil {
		t.Error("tampered header should fail verification")
	}

	if h.Hash() != h.Hash() {
		t.Error("hash should be deterministic")
	}
	if h.Hash() == h2.Hash() {
		t.Error("different headers should hash differently")
	}
}

func TestOperationHashAndSign(t *testing.T) {
	priv, pub, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	op := &Operation{Kind: OpEndorsement, Data: []byte("payload")}
	op.Sign(priv)
	if err := op.VerifySignature(pub); err != nil {
		t.Errorf("valid operation signature failed: %v", err)
	}

	tampered := *op
	tampered.Data = []byte("different")
	if err := tampered.VerifySignature(pub); err == nil {
		t.Error("tampered operation should fail verification")
	}
}

func TestBlockHashRoundtripAndOrder(t *testing.T) {
	h := BlockHash{0x01, 0x02}
	s := h.String()
	parsed, err := BlockHashFromHex(s)
	if err != nil {
		t.Fatalf("BlockHashFromHex: %v", err)
	}
	if parsed != h {
		t.Error("roundtrip mismatch")
	}

	var zero BlockHash
	if !zero.IsZero() {
		t.Error("zero value should report IsZero")
	}
	if h.IsZero() {
		t.Error("non-zero hash should not report IsZero")
	}

	low := BlockHash{0x01}
	high := BlockHash{0x02}
	if !low.Less(high) {
		t.Error("expected low < high")
	}
	if low.Less(low) {
		t.Error("a hash should not be less than itself")
	}
}

func TestBlockHashFromHexInvalid(t *testing.T) {
	if _, err := BlockHashFromHex("zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := BlockHashFromHex("ab"); err == nil {
		t.Error("expected error for wrong length")
	}
}
