// Package action defines the closed sum of actions that drive the shell's
// state machine. Every state transition in the system happens because one
// of these actions was dispatched and passed to reducer.Reduce; nothing
// outside an effect handler calls into the network, storage or protocol
// runner directly (see the effects package).
package action

import (
	"time"

	"github.com/dkuehr/tezedge/chain"
)

// Kind discriminates the concrete type of an Action without a type switch
// needing to enumerate every variant at every call site.
type Kind int

const (
	KindUnknown Kind = iota

	// Bootstrap
	KindPeerCurrentBranchReceived
	KindBootstrapCheckMainBlock
	KindBootstrapIntervalsExtend
	KindBlockHeaderReceived
	KindBootstrapScheduleBlockForApply
	KindOperationsForBlockReceived
	KindBlockApplied

	// Mempool
	KindMempoolOperationReceived
	KindMempoolOperationDecoded
	KindMempoolOperationValidated
	KindMempoolOperationInject
	KindMempoolBroadcast
	KindMempoolBroadcastDone
	KindMempoolCurrentHeadReceived
	KindMempoolInjectionResolved

	// Prechecker
	KindPrecheckerOperationArrived
	KindPrecheckerEndorsingRightsReady
	KindPrecheckerOperationDecided

	// P2P / transport
	KindPeerConnected
	KindPeerDisconnected
	KindPeerMessageRead
	KindPeerGraylisted

	// Timers
	KindTimerTick
)

// Meta carries the information about an action's dispatch that is not part
// of its payload: when it happened (so reducers stay pure functions of
// (State, Action, Meta) rather than calling time.Now themselves) and which
// peer, if any, caused it.
type Meta struct {
	Time time.Time
	From chain.PeerID // empty for locally-originated actions
}

// Action is the sealed interface implemented by every action variant. The
// unexported method prevents types outside this package from satisfying it,
// keeping the sum closed the way a Rust enum would be.
type Action interface {
	Kind() Kind
	sealed()
}

type base struct{}

func (base) sealed() {}

// ---- Bootstrap actions ----

// PeerCurrentBranchReceived carries a peer-advertised current branch: a tip
// header plus the chain of predecessor hashes back to (at most) the last
// locally-known checkpoint.
type PeerCurrentBranchReceived struct {
	base
	Peer        chain.PeerID
	ChainID     chain.ChainID
	Tip         chain.BlockHeader
	TipHash     chain.BlockHash
	Predecessor chain.BlockHash // zero if the tip's own hash could not be derived
}

func (PeerCurrentBranchReceived) Kind() Kind { return KindPeerCurrentBranchReceived }

// BootstrapCheckMainBlock asks the reducer to recompute main_block from the
// current set of peer branches; dispatched on a timer and after every
// PeerCurrentBranchReceived.
type BootstrapCheckMainBlock struct {
	base
}

func (BootstrapCheckMainBlock) Kind() Kind { return KindBootstrapCheckMainBlock }

// BootstrapIntervalsExtend asks the reducer to extend any interval whose
// current step has been exhausted, deriving the next seeded step.
type BootstrapIntervalsExtend struct {
	base
}

func (BootstrapIntervalsExtend) Kind() Kind { return KindBootstrapIntervalsExtend }

// BlockHeaderReceived carries a header downloaded for a pending interval.
type BlockHeaderReceived struct {
	base
	Peer   chain.PeerID
	Header chain.BlockHeader
	Hash   chain.BlockHash
}

func (BlockHeaderReceived) Kind() Kind { return KindBlockHeaderReceived }

// BootstrapScheduleBlockForApply fires once a block's header and all of its
// validation-pass operation lists have been downloaded.
type BootstrapScheduleBlockForApply struct {
	base
	Block chain.BlockHash
}

func (BootstrapScheduleBlockForApply) Kind() Kind { return KindBootstrapScheduleBlockForApply }

// OperationsForBlockReceived carries one validation pass worth of operations
// for a block that is being downloaded.
type OperationsForBlockReceived struct {
	base
	Peer           chain.PeerID
	Block          chain.BlockHash
	ValidationPass chain.ValidationPass
	Operations     []chain.Operation
}

func (OperationsForBlockReceived) Kind() Kind { return KindOperationsForBlockReceived }

// BlockApplied is dispatched by the effect handler once the protocol runner
// confirms a block was applied; it advances bootstrap's applied marker and
// clears mempool's stale head, while the same effect handler re-requests
// begin-construction from the protocol runner.
type BlockApplied struct {
	base
	ChainID chain.ChainID
	Block   chain.BlockHash
	Level   chain.Level
}

func (BlockApplied) Kind() Kind { return KindBlockApplied }

// ---- Mempool actions ----

// MempoolOperationReceived is dispatched by the P2P reader when an Operation
// wire message arrives.
type MempoolOperationReceived struct {
	base
	Peer chain.PeerID
	Raw  []byte // undecoded wire bytes, so the hash can be cached on first touch
}

func (MempoolOperationReceived) Kind() Kind { return KindMempoolOperationReceived }

// MempoolOperationDecoded carries the result of decoding a received
// operation's raw bytes.
type MempoolOperationDecoded struct {
	base
	Hash      chain.OperationHash
	Peer      chain.PeerID
	Operation chain.Operation
	Err       error // non-nil on malformed payload
}

func (MempoolOperationDecoded) Kind() Kind { return KindMempoolOperationDecoded }

// MempoolOperationValidated carries the protocol runner's or prechecker's
// verdict on a pending operation.
type MempoolOperationValidated struct {
	base
	Hash     chain.OperationHash
	Verdict  Verdict
	ErrorMsg string // populated when Verdict is Refused/BranchRefused
}

func (MempoolOperationValidated) Kind() Kind { return KindMempoolOperationValidated }

// Verdict is the outcome of validating a mempool operation.
type Verdict int

const (
	VerdictApplied Verdict = iota
	VerdictBranchDelayed
	VerdictBranchRefused
	VerdictRefused
)

// MempoolOperationInject is dispatched when an operation arrives via the RPC
// injection endpoint rather than from a peer.
type MempoolOperationInject struct {
	base
	RPCID     uint64
	Operation chain.Operation
}

func (MempoolOperationInject) Kind() Kind { return KindMempoolOperationInject }

// MempoolBroadcast asks the effect handler to advertise the current mempool
// contents to every connected peer except those in Exceptions.
type MempoolBroadcast struct {
	base
	Exceptions []chain.PeerID
}

func (MempoolBroadcast) Kind() Kind { return KindMempoolBroadcast }

// MempoolBroadcastDone reports that peer was sent a CurrentHead message
// advertising hashes, so the reducer can record them as known to that peer
// and avoid re-sending the same operations on the next broadcast.
type MempoolBroadcastDone struct {
	base
	Peer   chain.PeerID
	Hashes []chain.OperationHash
}

func (MempoolBroadcastDone) Kind() Kind { return KindMempoolBroadcastDone }

// MempoolCurrentHeadReceived carries a peer's CurrentHead message: their
// notion of the chain tip plus the mempool contents they think are pending
// against it.
type MempoolCurrentHeadReceived struct {
	base
	Peer        chain.PeerID
	ChainID     chain.ChainID
	Block       chain.BlockHeader
	BlockHash   chain.BlockHash
	KnownValid  []chain.OperationHash
	Pending     []chain.OperationHash
}

func (MempoolCurrentHeadReceived) Kind() Kind { return KindMempoolCurrentHeadReceived }

// MempoolInjectionResolved fires once an RPC-injected operation reaches a
// final verdict, carrying the correlation ID the RPC layer is waiting on.
// Fires exactly once per RPCID, matching the InjectingRPCIDs/InjectedRPCIDs
// handoff in mempool.State.
type MempoolInjectionResolved struct {
	base
	RPCID    uint64
	Hash     chain.OperationHash
	Verdict  Verdict
	ErrorMsg string
}

func (MempoolInjectionResolved) Kind() Kind { return KindMempoolInjectionResolved }

// ---- Prechecker actions ----

// PrecheckerOperationArrived is dispatched alongside MempoolOperationDecoded
// for any operation so the prechecker can attempt its fast path before the
// protocol runner is invoked.
type PrecheckerOperationArrived struct {
	base
	Hash      chain.OperationHash
	Operation chain.Operation
}

func (PrecheckerOperationArrived) Kind() Kind { return KindPrecheckerOperationArrived }

// PrecheckerEndorsingRightsReady carries the endorsing-rights cache's
// response for a (block, level) pair, fanned out to every waiting operation.
// Rights maps a delegate's public-key-hash hex string to its public key
// bytes, letting the reducer perform the actual signature check as a pure
// function of this action instead of calling back out to the cache.
type PrecheckerEndorsingRightsReady struct {
	base
	Block  chain.BlockHash
	Level  chain.Level
	Rights map[string][]byte
	Err    error
}

func (PrecheckerEndorsingRightsReady) Kind() Kind { return KindPrecheckerEndorsingRightsReady }

// PrecheckerOperationDecided carries the prechecker's own verdict, separate
// from MempoolOperationValidated because a ProtocolNeeded decision does not
// resolve the mempool lifecycle — it only hands the operation to the
// protocol runner.
type PrecheckerOperationDecided struct {
	base
	Hash     chain.OperationHash
	Decision PrecheckDecision
	Err      error
}

func (PrecheckerOperationDecided) Kind() Kind { return KindPrecheckerOperationDecided }

// PrecheckDecision is the prechecker's fast-path verdict.
type PrecheckDecision int

const (
	DecisionPrecheckedApplied PrecheckDecision = iota
	DecisionPrecheckRefused
	DecisionProtocolNeeded
)

// ---- P2P / transport actions ----

// PeerConnected is dispatched once a handshake with a remote peer completes.
type PeerConnected struct {
	base
	Peer chain.PeerID
}

func (PeerConnected) Kind() Kind { return KindPeerConnected }

// PeerDisconnected is dispatched when a peer connection is torn down, for
// any reason.
type PeerDisconnected struct {
	base
	Peer chain.PeerID
	Err  error
}

func (PeerDisconnected) Kind() Kind { return KindPeerDisconnected }

// PeerMessageRead carries a single decoded wire message from the P2P
// reader; the reducer fans it out to the bootstrap/mempool/prechecker
// sub-reducers based on the message's tag.
type PeerMessageRead struct {
	base
	Peer    chain.PeerID
	Message any // one of the chain.* message payload types
}

func (PeerMessageRead) Kind() Kind { return KindPeerMessageRead }

// PeerGraylisted marks a peer as graylisted (its messages are ignored and it
// is scheduled for disconnection) following a protocol violation.
type PeerGraylisted struct {
	base
	Peer   chain.PeerID
	Reason string
}

func (PeerGraylisted) Kind() Kind { return KindPeerGraylisted }

// ---- Timer ----

// TimerTick is dispatched periodically by the action loop to drive
// time-based re-checks (main_block recomputation, interval extension)
// without reducers calling time.Now.
type TimerTick struct {
	base
}

func (TimerTick) Kind() Kind { return KindTimerTick }
