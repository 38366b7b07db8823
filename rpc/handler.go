package rpc

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/dkuehr/tezedge/action"
	"github.com/dkuehr/tezedge/chain"
	"github.com/dkuehr/tezedge/effects"
	"github.com/dkuehr/tezedge/rights"
	"github.com/dkuehr/tezedge/statem"
)

// dispatcherAdapter lets the RPC layer feed an injected operation into the
// action loop without holding a reference to the loop's concrete type.
type dispatcherAdapter struct {
	dispatch func(action.Action)
}

func (d dispatcherAdapter) Dispatch(act action.Action) { d.dispatch(act) }

// Handler holds all dependencies needed to serve RPC requests. State reads
// take mu for reading; the action loop holds mu for writing while it
// applies a batch of actions, so RPC responses always reflect a
// consistent snapshot.
type Handler struct {
	mu       *sync.RWMutex
	state    *statem.State
	effects  *effects.Handlers
	dispatch func(action.Action)
	rights   rights.Source
	chainID  chain.ChainID
}

// NewHandler creates an RPC Handler. dispatch feeds an action into the
// running action loop (typically a buffered channel send).
func NewHandler(mu *sync.RWMutex, state *statem.State, eff *effects.Handlers, dispatch func(action.Action), rightsSrc rights.Source, chainID chain.ChainID) *Handler {
	return &Handler{mu: mu, state: state, effects: eff, dispatch: dispatch, rights: rightsSrc, chainID: chainID}
}

// Version serves GET /version.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, VersionInfo{Version: "shell/0.1", ChainID: h.chainID.String()})
}

// MonitorBootstrapped serves GET /monitor/bootstrapped.
func (h *Handler) MonitorBootstrapped(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := BootstrapStatus{Bootstrapped: h.state.Bootstrap.MainChainFound}
	if status.Bootstrapped {
		status.Block = h.state.Bootstrap.MainBlockHash.String()
		status.Level = int32(h.state.Bootstrap.MainBlockLevel)
	}
	writeJSON(w, status)
}

// ChainRoute dispatches the /chains/:id/... family by suffix, the way the
// real node's many chain-scoped endpoints share one prefix.
func (h *Handler) ChainRoute(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/mempool/pending_operations"):
		h.pendingOperations(w, r)
	case strings.HasSuffix(r.URL.Path, "/blocks/head"):
		h.currentHead(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) pendingOperations(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := MempoolOperations{}
	for hash := range h.state.Mempool.Applied {
		out.Applied = append(out.Applied, hash.String())
	}
	for hash := range h.state.Mempool.BranchDelayed {
		out.BranchDelayed = append(out.BranchDelayed, hash.String())
	}
	for hash := range h.state.Mempool.BranchRefused {
		out.BranchRefused = append(out.BranchRefused, hash.String())
	}
	for hash := range h.state.Mempool.Refused {
		out.Refused = append(out.Refused, hash.String())
	}
	writeJSON(w, out)
}

func (h *Handler) currentHead(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.state.Mempool.LocalHeadState == nil {
		writeJSON(w, errBody("head not known yet"))
		return
	}
	writeJSON(w, h.state.Mempool.LocalHeadState.Block)
}

// InjectOperation serves POST /injection/operation: decode the raw
// operation, hand it to the mempool via the action loop, and block for the
// final verdict.
func (h *Handler) InjectOperation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var op chain.Operation
	if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, errBody(err.Error()))
		return
	}

	result, err := h.effects.InjectOperation(r.Context(), dispatcherAdapter{dispatch: h.dispatch}, op)
	if err != nil {
		w.WriteHeader(http.StatusGatewayTimeout)
		writeJSON(w, errBody(err.Error()))
		return
	}
	if result.Verdict == action.VerdictRefused {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, errBody(result.ErrorMsg))
		return
	}
	writeJSON(w, InjectionResponse{OperationHash: result.Hash.String()})
}

// BakingRights serves GET /helpers/baking_rights?level=N. Priority
// assignment is a protocol-runner computation this boundary does not
// reproduce; it surfaces delegate eligibility only.
func (h *Handler) BakingRights(w http.ResponseWriter, r *http.Request) {
	h.rightsAt(w, r)
}

// EndorsingRights serves GET /helpers/endorsing_rights?level=N.
func (h *Handler) EndorsingRights(w http.ResponseWriter, r *http.Request) {
	h.rightsAt(w, r)
}

func (h *Handler) rightsAt(w http.ResponseWriter, r *http.Request) {
	levelStr := r.URL.Query().Get("level")
	level, err := strconv.Atoi(levelStr)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, errBody("level must be an integer"))
		return
	}

	h.mu.RLock()
	block := h.state.Bootstrap.MainBlockHash
	h.mu.RUnlock()

	rightsMap, err := h.rights.EndorsingRights(r.Context(), block, chain.Level(level))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, errBody(err.Error()))
		return
	}

	entries := make([]RightsEntry, 0, len(rightsMap))
	for delegate := range rightsMap {
		entries = append(entries, RightsEntry{Delegate: delegate, Level: int32(level)})
	}
	writeJSON(w, entries)
}
