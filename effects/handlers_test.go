package effects

import (
	"context"
	"testing"
	"time"

	"github.com/dkuehr/tezedge/action"
	"github.com/dkuehr/tezedge/chain"
	"github.com/dkuehr/tezedge/mempool"
	"github.com/dkuehr/tezedge/p2p"
	"github.com/dkuehr/tezedge/protocol"
	"github.com/dkuehr/tezedge/rights"
	"github.com/dkuehr/tezedge/statem"
)

type recordingDispatcher struct {
	actions chan action.Action
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{actions: make(chan action.Action, 16)}
}

func (d *recordingDispatcher) Dispatch(act action.Action) {
	d.actions <- act
}

func TestInjectOperationResolvesOnMatchingRPCID(t *testing.T) {
	h := NewHandlers(nil, protocol.NewFakeRunner(), rights.NewCache(rights.NewFakeSource()), protocol.NewDefaultRegistry(), chain.ChainID{}, nil)
	d := newRecordingDispatcher()

	resultCh := make(chan InjectResult, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := h.InjectOperation(context.Background(), d, chain.Operation{Kind: chain.OpManager})
		resultCh <- res
		errCh <- err
	}()

	var injectAct action.MempoolOperationInject
	select {
	case act := <-d.actions:
		var ok bool
		injectAct, ok = act.(action.MempoolOperationInject)
		if !ok {
			t.Fatalf("expected MempoolOperationInject, got %#v", act)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inject dispatch")
	}

	h.Handle(context.Background(), d, nil, action.MempoolInjectionResolved{
		RPCID: injectAct.RPCID, Hash: chain.OperationHash{0x01}, Verdict: action.VerdictApplied,
	})

	select {
	case res := <-resultCh:
		if res.Verdict != action.VerdictApplied {
			t.Errorf("Verdict = %v, want VerdictApplied", res.Verdict)
		}
		if err := <-errCh; err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for InjectOperation to resolve")
	}
}

func TestInjectOperationTimesOutWithoutResolution(t *testing.T) {
	h := NewHandlers(nil, protocol.NewFakeRunner(), rights.NewCache(rights.NewFakeSource()), protocol.NewDefaultRegistry(), chain.ChainID{}, nil)
	d := newRecordingDispatcher()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := h.InjectOperation(ctx, d, chain.Operation{Kind: chain.OpManager}); err == nil {
		t.Error("expected a context-deadline error when nothing resolves the injection")
	}
}

func TestRequestRightsIfNeededSkipsNonEndorsements(t *testing.T) {
	h := NewHandlers(nil, protocol.NewFakeRunner(), rights.NewCache(rights.NewFakeSource()), protocol.NewDefaultRegistry(), chain.ChainID{}, nil)
	d := newRecordingDispatcher()

	h.requestRightsIfNeeded(context.Background(), d, nil, action.PrecheckerOperationArrived{
		Operation: chain.Operation{Kind: chain.OpManager},
	})

	select {
	case act := <-d.actions:
		t.Fatalf("expected no dispatch for a non-endorsement, got %#v", act)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRequestRightsIfNeededDispatchesLookupResult(t *testing.T) {
	src := rights.NewFakeSource()
	src.Rights[7] = map[string][]byte{"aa": {0x01}}
	h := NewHandlers(nil, protocol.NewFakeRunner(), rights.NewCache(src), protocol.NewDefaultRegistry(), chain.ChainID{}, nil)
	d := newRecordingDispatcher()

	h.requestRightsIfNeeded(context.Background(), d, nil, action.PrecheckerOperationArrived{
		Operation: chain.Operation{Kind: chain.OpEndorsement, Branch: chain.BlockHash{0x01}, Level: 7},
	})

	select {
	case act := <-d.actions:
		ready, ok := act.(action.PrecheckerEndorsingRightsReady)
		if !ok {
			t.Fatalf("expected PrecheckerEndorsingRightsReady, got %#v", act)
		}
		if ready.Level != 7 || len(ready.Rights) != 1 {
			t.Errorf("unexpected rights-ready action: %#v", ready)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for rights lookup dispatch")
	}
}

func TestBroadcastMempoolFiltersPerPeerKnownOperations(t *testing.T) {
	server := p2p.NewNode("server", "127.0.0.1:0", nil)
	connected := make(chan string, 2)
	server.OnConnect = func(peerID string) { connected <- peerID }
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	defer server.Stop()

	received1 := make(chan p2p.Message, 1)
	client1 := p2p.NewNode("c1", "127.0.0.1:0", nil)
	client1.Handle(p2p.TagCurrentHead, func(_ *p2p.Conn, msg p2p.Message) { received1 <- msg })
	conn1, err := client1.AddPeer("server", server.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn1.Close()
	var peer1ID string
	select {
	case peer1ID = <-connected:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first peer to connect")
	}

	received2 := make(chan p2p.Message, 1)
	client2 := p2p.NewNode("c2", "127.0.0.1:0", nil)
	client2.Handle(p2p.TagCurrentHead, func(_ *p2p.Conn, msg p2p.Message) { received2 <- msg })
	conn2, err := client2.AddPeer("server", server.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn2.Close()
	var peer2ID string
	select {
	case peer2ID = <-connected:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second peer to connect")
	}

	hash1 := chain.OperationHash{0x01}
	hash2 := chain.OperationHash{0x02}

	s := statem.New(statem.Config{PeersBootstrappedMin: 1})
	s.Mempool.LocalHeadState = &mempool.HeadState{}
	s.Mempool.Applied[hash1] = chain.Operation{Kind: chain.OpManager}
	s.Mempool.Pending[hash2] = &mempool.PendingOperation{
		Hash: hash2, Operation: chain.Operation{Kind: chain.OpManager}, Times: map[mempool.Status]time.Time{},
	}
	// peer1 already knows about hash1 (e.g. from an earlier broadcast);
	// peer2 is brand new and knows nothing yet.
	s.Mempool.PeerState[chain.PeerID(peer1ID)] = &mempool.PeerMempoolState{
		KnownOperations:       map[chain.OperationHash]struct{}{hash1: {}},
		RequestingFullContent: map[chain.OperationHash]struct{}{},
	}

	h := NewHandlers(server, protocol.NewFakeRunner(), rights.NewCache(rights.NewFakeSource()), protocol.NewDefaultRegistry(), chain.ChainID{}, nil)
	d := newRecordingDispatcher()

	h.Handle(context.Background(), d, s, action.MempoolBroadcast{})

	var msg1, msg2 p2p.Message
	select {
	case msg1 = <-received1:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for peer1's current_head")
	}
	select {
	case msg2 = <-received2:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for peer2's current_head")
	}

	act1, err := p2p.Decode("server", msg1)
	if err != nil {
		t.Fatal(err)
	}
	head1, ok := act1.(action.MempoolCurrentHeadReceived)
	if !ok {
		t.Fatalf("expected MempoolCurrentHeadReceived, got %#v", act1)
	}
	if len(head1.KnownValid) != 0 {
		t.Errorf("peer1 already knew hash1, expected it filtered out of KnownValid, got %v", head1.KnownValid)
	}
	if len(head1.Pending) != 1 || head1.Pending[0] != hash2 {
		t.Errorf("expected peer1 to receive pending hash2, got %v", head1.Pending)
	}

	act2, err := p2p.Decode("server", msg2)
	if err != nil {
		t.Fatal(err)
	}
	head2, ok := act2.(action.MempoolCurrentHeadReceived)
	if !ok {
		t.Fatalf("expected MempoolCurrentHeadReceived, got %#v", act2)
	}
	if len(head2.KnownValid) != 1 || head2.KnownValid[0] != hash1 {
		t.Errorf("expected peer2 (unknown state) to receive hash1 in KnownValid, got %v", head2.KnownValid)
	}
	if len(head2.Pending) != 1 || head2.Pending[0] != hash2 {
		t.Errorf("expected peer2 to receive pending hash2, got %v", head2.Pending)
	}

	done := make(map[chain.PeerID]action.MempoolBroadcastDone)
	for len(done) < 2 {
		select {
		case act := <-d.actions:
			bd, ok := act.(action.MempoolBroadcastDone)
			if !ok {
				t.Fatalf("expected MempoolBroadcastDone, got %#v", act)
			}
			done[bd.Peer] = bd
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for MempoolBroadcastDone dispatches, got %d so far", len(done))
		}
	}
	if d1, ok := done[chain.PeerID(peer1ID)]; !ok || len(d1.Hashes) != 1 || d1.Hashes[0] != hash2 {
		t.Errorf("expected peer1's done report to record only hash2, got %#v", d1)
	}
	if d2, ok := done[chain.PeerID(peer2ID)]; !ok || len(d2.Hashes) != 2 {
		t.Errorf("expected peer2's done report to record both hashes, got %#v", d2)
	}
}
