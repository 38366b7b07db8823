// Package effects is the shell's only I/O boundary: every wire send,
// protocol-runner call, rights lookup, storage write and RPC response
// happens here, driven by the actions reducer.Reduce returns. Nothing in
// action/, bootstrap/, mempool/, prechecker/ or reducer/ ever imports this
// package — the dependency only runs one way, from cmd/node down into
// effects, never back up into the pure core.
package effects

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/dkuehr/tezedge/action"
	"github.com/dkuehr/tezedge/bootstrap"
	"github.com/dkuehr/tezedge/chain"
	"github.com/dkuehr/tezedge/mempool"
	"github.com/dkuehr/tezedge/p2p"
	"github.com/dkuehr/tezedge/protocol"
	"github.com/dkuehr/tezedge/rights"
	"github.com/dkuehr/tezedge/statem"
	"github.com/dkuehr/tezedge/storage"
)

// Dispatcher is satisfied by the action loop: effect handlers that need to
// feed a new action back in (a decoded operation, a rights response, a
// protocol-runner verdict) call Dispatch rather than mutating state
// themselves.
type Dispatcher interface {
	Dispatch(act action.Action)
}

// InjectResult is delivered to an RPC caller once its injected operation
// resolves.
type InjectResult struct {
	Hash     chain.OperationHash
	Verdict  action.Verdict
	ErrorMsg string
}

// Handlers holds every external dependency the shell's effect layer needs
// and implements the per-action-kind dispatch table: every wire send,
// protocol-runner call and RPC response the node performs, made explicit
// and independently testable instead of inlined into cmd/node/main.go.
type Handlers struct {
	Node      *p2p.Node
	Runner    protocol.Runner
	Rights    *rights.Cache
	Registry  *protocol.OperationKindRegistry
	ChainID   chain.ChainID
	// Store persists applied headers, their per-pass operations and the
	// local tip. Nil is valid (used by tests that don't care about
	// persistence) and makes applyBlock skip the write.
	Store *storage.BlockStore

	mu            sync.Mutex
	injectWaiters map[uint64]chan InjectResult
	nextRPCID     uint64
}

// NewHandlers wires the effect layer against its concrete dependencies.
func NewHandlers(node *p2p.Node, runner protocol.Runner, rightsCache *rights.Cache, registry *protocol.OperationKindRegistry, chainID chain.ChainID, store *storage.BlockStore) *Handlers {
	return &Handlers{
		Node:          node,
		Runner:        runner,
		Rights:        rightsCache,
		Registry:      registry,
		ChainID:       chainID,
		Store:         store,
		injectWaiters: make(map[uint64]chan InjectResult),
	}
}

// Handle performs whatever I/O act demands, dispatching further actions
// back into d as needed. It is called by the action loop for every action
// reducer.Reduce produced, in order.
func (h *Handlers) Handle(ctx context.Context, d Dispatcher, s *statem.State, act action.Action) {
	switch a := act.(type) {

	case action.BootstrapScheduleBlockForApply:
		h.applyBlock(ctx, d, s, a)

	case action.PeerGraylisted:
		log.Printf("[effects] graylisting peer %s: %s", a.Peer, a.Reason)
		if conn := h.Node.Peer(string(a.Peer)); conn != nil {
			conn.Close()
		}

	case action.MempoolOperationDecoded:
		// Nothing to do here directly; this action is produced by
		// DecodeOperation below. The P2P read path in cmd/node does not call
		// DecodeOperation: it dispatches MempoolOperationReceived with the
		// raw bytes, which the mempool reducer only records. Kept as a
		// no-op case so the switch documents every action kind this layer
		// is aware of.

	case action.PrecheckerOperationArrived:
		h.requestRightsIfNeeded(ctx, d, s, a)

	case action.MempoolBroadcast:
		h.broadcastMempool(d, s, a)

	case action.MempoolInjectionResolved:
		h.resolveInjection(a)

	case action.BlockApplied:
		if err := h.Runner.BeginConstruction(ctx, a.Block); err != nil {
			log.Printf("[effects] begin_construction for %s: %v", a.Block, err)
		}

	case action.PeerCurrentBranchReceived:
		// Requesting headers for newly-seeded intervals is driven off
		// BootstrapIntervalsExtend, dispatched by the reducer right after
		// this action — nothing to do here.

	case action.BootstrapIntervalsExtend:
		h.requestNextHeaders(s)
	}
}

// DecodeOperation turns a raw wire payload into a chain.Operation, then
// dispatches both the mempool decode result and the prechecker arrival in
// one step. It does not consult the registry. Byte-level parsing
// stays in the effect/handler layer, never in the reducer.
func (h *Handlers) DecodeOperation(d Dispatcher, peer chain.PeerID, raw []byte) {
	op, err := p2p.DecodeOperation(raw)
	hash := op.Hash()
	d.Dispatch(action.MempoolOperationDecoded{Hash: hash, Peer: peer, Operation: op, Err: err})
	if err == nil {
		d.Dispatch(action.PrecheckerOperationArrived{Hash: hash, Operation: op})
	}
}

func (h *Handlers) applyBlock(ctx context.Context, d Dispatcher, s *statem.State, a action.BootstrapScheduleBlockForApply) {
	slot, ok := s.Bootstrap.BlocksToApply[a.Block]
	if !ok {
		return
	}
	result, err := h.Runner.ApplyBlock(ctx, slot.Header, slot.Operations)
	if err != nil {
		log.Printf("[effects] apply_block %s: %v", a.Block, err)
		return
	}
	if result.Refused {
		log.Printf("[effects] apply_block %s refused by protocol runner", a.Block)
		return
	}
	// This is the only point in the action loop where a full block's
	// contents (header plus every validation pass) are known at once —
	// headers and operations arrive individually off the wire and never
	// reach Handle on their own, only the bootstrap-assembled slot does.
	if h.Store != nil {
		if err := h.Store.PutHeader(a.Block, slot.Header); err != nil {
			log.Printf("[effects] persist header %s: %v", a.Block, err)
		} else {
			for pass, ops := range slot.Operations {
				if err := h.Store.PutOperations(a.Block, pass, ops); err != nil {
					log.Printf("[effects] persist operations %s/%d: %v", a.Block, pass, err)
				}
			}
			if err := h.Store.SetTip(a.Block); err != nil {
				log.Printf("[effects] set tip %s: %v", a.Block, err)
			}
		}
	}
	d.Dispatch(action.BlockApplied{ChainID: h.ChainID, Block: a.Block, Level: slot.Header.Level})
	// The action loop hands Handle only follow-ups, never the BlockApplied
	// dispatched above, so construction is re-requested here.
	if err := h.Runner.BeginConstruction(ctx, a.Block); err != nil {
		log.Printf("[effects] begin_construction for %s: %v", a.Block, err)
	}
}

func (h *Handlers) requestRightsIfNeeded(ctx context.Context, d Dispatcher, s *statem.State, a action.PrecheckerOperationArrived) {
	if a.Operation.Kind != chain.OpEndorsement {
		return
	}
	go func() {
		rightsMap, err := h.Rights.Lookup(ctx, a.Operation.Branch, a.Operation.Level)
		d.Dispatch(action.PrecheckerEndorsingRightsReady{
			Block: a.Operation.Branch, Level: a.Operation.Level, Rights: rightsMap, Err: err,
		})
	}()
}

// broadcastMempool sends each connected peer a CurrentHead message
// advertising only the hashes that peer isn't already known to have,
// per peer, so repeated MempoolBroadcast rounds don't resend the same
// operations (idempotent broadcast). What was actually sent is reported
// back via MempoolBroadcastDone so the reducer can record it.
func (h *Handlers) broadcastMempool(d Dispatcher, s *statem.State, a action.MempoolBroadcast) {
	if s.Mempool.LocalHeadState == nil {
		return
	}
	head := s.Mempool.LocalHeadState
	known := s.Mempool.KnownValidHashes()
	pending := s.Mempool.PendingHashes()

	exceptions := make(map[chain.PeerID]struct{}, len(a.Exceptions))
	for _, p := range a.Exceptions {
		exceptions[p] = struct{}{}
	}

	for _, peerID := range h.Node.Peers() {
		peer := chain.PeerID(peerID)
		if _, skip := exceptions[peer]; skip {
			continue
		}

		ps := s.Mempool.PeerState[peer]
		newKnown := filterKnown(known, ps)
		newPending := filterKnown(pending, ps)
		if len(newKnown) == 0 && len(newPending) == 0 {
			continue
		}

		msg, err := p2p.EncodeCurrentHead(head.ChainID, head.Block, head.BlockHash, newKnown, newPending)
		if err != nil {
			log.Printf("[effects] encode current_head for %s: %v", peer, err)
			continue
		}
		if err := h.Node.Send(peerID, msg); err != nil {
			log.Printf("[effects] broadcast to %s: %v", peer, err)
			continue
		}

		sent := make([]chain.OperationHash, 0, len(newKnown)+len(newPending))
		sent = append(sent, newKnown...)
		sent = append(sent, newPending...)
		d.Dispatch(action.MempoolBroadcastDone{Peer: peer, Hashes: sent})
	}
}

// filterKnown returns the hashes in all that ps doesn't already know about.
// A nil ps (peer never reported a CurrentHead of its own) knows nothing yet.
func filterKnown(all []chain.OperationHash, ps *mempool.PeerMempoolState) []chain.OperationHash {
	out := make([]chain.OperationHash, 0, len(all))
	for _, h := range all {
		if ps != nil {
			if _, known := ps.KnownOperations[h]; known {
				continue
			}
		}
		out = append(out, h)
	}
	return out
}

func (h *Handlers) requestNextHeaders(s *statem.State) {
	for _, iv := range s.Bootstrap.Intervals {
		if iv.Phase != bootstrap.PhaseAdvancing {
			continue
		}
		payload, err := json.Marshal(struct {
			Level chain.Level `json:"level"`
		}{Level: iv.Current})
		if err != nil {
			continue
		}
		// The effect layer only needs the peer ID and the level the
		// reducer already picked (iv.Current) to build the GetBlockHeaders
		// request; it never re-derives bootstrap's own sequencing logic.
		msg := p2p.Message{Tag: p2p.TagGetBlockHeaders, Payload: payload}
		if err := h.Node.Send(string(iv.Peer), msg); err != nil {
			log.Printf("[effects] request header at level %d from %s: %v", iv.Current, iv.Peer, err)
		}
	}
}

// InjectOperation hands op to the mempool via the action loop and blocks
// (bounded by ctx) until it resolves, for the RPC layer's injection
// endpoint. rpcID correlation relies on the hash living in exactly one of
// InjectingRPCIDs/InjectedRPCIDs at any time.
func (h *Handlers) InjectOperation(ctx context.Context, d Dispatcher, op chain.Operation) (InjectResult, error) {
	h.mu.Lock()
	h.nextRPCID++
	rpcID := h.nextRPCID
	waiter := make(chan InjectResult, 1)
	h.injectWaiters[rpcID] = waiter
	h.mu.Unlock()

	d.Dispatch(action.MempoolOperationInject{RPCID: rpcID, Operation: op})

	select {
	case result := <-waiter:
		return result, nil
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.injectWaiters, rpcID)
		h.mu.Unlock()
		return InjectResult{}, ctx.Err()
	}
}

func (h *Handlers) resolveInjection(a action.MempoolInjectionResolved) {
	h.mu.Lock()
	waiter, ok := h.injectWaiters[a.RPCID]
	delete(h.injectWaiters, a.RPCID)
	h.mu.Unlock()
	if !ok {
		return
	}
	waiter <- InjectResult{Hash: a.Hash, Verdict: a.Verdict, ErrorMsg: a.ErrorMsg}
}

// defaultInjectTimeout bounds how long an RPC injection call waits for the
// mempool to resolve before giving up.
const defaultInjectTimeout = 10 * time.Second
