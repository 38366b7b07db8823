package storage_test

import (
	"testing"

	"github.com/dkuehr/tezedge/chain"
	"github.com/dkuehr/tezedge/internal/testutil"
	"github.com/dkuehr/tezedge/storage"
)

func TestPutGetHeaderIndexesLevel(t *testing.T) {
	bs := testutil.NewBlockStore()
	hash := chain.BlockHash{0x01}
	header := chain.BlockHeader{Level: 42, Timestamp: 1000}

	if err := bs.PutHeader(hash, header); err != nil {
		t.Fatal(err)
	}
	got, err := bs.GetHeader(hash)
	if err != nil {
		t.Fatal(err)
	}
	if got.Level != header.Level || got.Timestamp != header.Timestamp {
		t.Errorf("got %#v, want %#v", got, header)
	}

	atLevel, err := bs.HashAtLevel(42)
	if err != nil {
		t.Fatal(err)
	}
	if atLevel != hash {
		t.Errorf("HashAtLevel = %s, want %s", atLevel, hash)
	}
}

func TestGetHeaderMissingReturnsErrNotFound(t *testing.T) {
	bs := testutil.NewBlockStore()
	if _, err := bs.GetHeader(chain.BlockHash{0x09}); err != storage.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPutGetOperationsByPass(t *testing.T) {
	bs := testutil.NewBlockStore()
	hash := chain.BlockHash{0x02}
	ops := []chain.Operation{{Kind: chain.OpEndorsement}, {Kind: chain.OpManager}}

	if err := bs.PutOperations(hash, 1, ops); err != nil {
		t.Fatal(err)
	}
	got, err := bs.GetOperations(hash, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(got))
	}

	if _, err := bs.GetOperations(hash, 0); err != storage.ErrNotFound {
		t.Errorf("expected ErrNotFound for an untouched pass, got %v", err)
	}
}

func TestTipDefaultsToZeroHash(t *testing.T) {
	bs := testutil.NewBlockStore()
	tip, err := bs.GetTip()
	if err != nil {
		t.Fatal(err)
	}
	if !tip.IsZero() {
		t.Errorf("expected zero tip before any SetTip, got %s", tip)
	}

	hash := chain.BlockHash{0x03}
	if err := bs.SetTip(hash); err != nil {
		t.Fatal(err)
	}
	got, err := bs.GetTip()
	if err != nil {
		t.Fatal(err)
	}
	if got != hash {
		t.Errorf("GetTip = %s, want %s", got, hash)
	}
}

func TestMempoolOperationPutAndDelete(t *testing.T) {
	bs := testutil.NewBlockStore()
	hash := chain.OperationHash{0x04}
	op := chain.Operation{Kind: chain.OpManager}

	if err := bs.PutMempoolOperation(hash, op); err != nil {
		t.Fatal(err)
	}
	if err := bs.DeleteMempoolOperation(hash); err != nil {
		t.Fatal(err)
	}
}
