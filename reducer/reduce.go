// Package reducer implements the single entry point every action passes
// through: Reduce(State, Action, Meta). It owns no domain logic of its
// own — it only dispatches each action to the sub-reducer that owns the
// relevant slice of state and merges the follow-up actions they return.
package reducer

import (
	"github.com/dkuehr/tezedge/action"
	"github.com/dkuehr/tezedge/bootstrap"
	"github.com/dkuehr/tezedge/mempool"
	"github.com/dkuehr/tezedge/prechecker"
	"github.com/dkuehr/tezedge/statem"
)

// Reduce applies act to s, mutating it in place, and returns every
// follow-up action the sub-reducers produced, in the order they were
// produced. own identifies this node for bootstrap's per-peer interval
// seeding.
func Reduce(s *statem.State, own bootstrap.OwnIdentity, act action.Action, meta action.Meta) ([]action.Action, error) {
	var followups []action.Action

	switch a := act.(type) {
	case action.PeerConnected:
		s.SetConnected(a.Peer, true)
		return nil, nil

	case action.PeerDisconnected:
		s.SetConnected(a.Peer, false)
		mFollow, err := mempool.Reduce(s.Mempool, act, meta)
		if err != nil {
			return nil, err
		}
		return mFollow, nil

	case action.PeerGraylisted:
		s.SetGraylisted(a.Peer, true)
		return nil, nil

	case action.TimerTick:
		bFollow, err := bootstrap.Reduce(s.Bootstrap, own, action.BootstrapCheckMainBlock{}, meta)
		if err != nil {
			return nil, err
		}
		followups = append(followups, bFollow...)
		eFollow, err := bootstrap.Reduce(s.Bootstrap, own, action.BootstrapIntervalsExtend{}, meta)
		if err != nil {
			return nil, err
		}
		followups = append(followups, eFollow...)
		return dispatchAll(s, own, followups, meta)
	}

	switch act.(type) {
	case action.PeerCurrentBranchReceived, action.BootstrapCheckMainBlock, action.BootstrapIntervalsExtend,
		action.BlockHeaderReceived, action.OperationsForBlockReceived, action.BlockApplied:
		bFollow, err := bootstrap.Reduce(s.Bootstrap, own, act, meta)
		if err != nil {
			return nil, err
		}
		followups = append(followups, bFollow...)
	}

	switch act.(type) {
	case action.MempoolOperationReceived, action.MempoolOperationDecoded, action.PrecheckerOperationDecided,
		action.MempoolOperationValidated, action.MempoolOperationInject, action.MempoolBroadcast,
		action.MempoolBroadcastDone, action.MempoolCurrentHeadReceived, action.BlockApplied:
		mFollow, err := mempool.Reduce(s.Mempool, act, meta)
		if err != nil {
			return nil, err
		}
		followups = append(followups, mFollow...)
	}

	switch act.(type) {
	case action.PrecheckerOperationArrived, action.PrecheckerEndorsingRightsReady:
		pFollow, err := prechecker.Reduce(s.Prechecker, act, meta)
		if err != nil {
			return nil, err
		}
		followups = append(followups, pFollow...)
	}

	return dispatchAll(s, own, followups, meta)
}

// dispatchAll recursively feeds every follow-up action produced this round
// back through Reduce so multi-hop chains (e.g. PrecheckerEndorsingRightsReady
// -> PrecheckerOperationDecided -> MempoolBroadcast) resolve to a flat list
// of externally-visible actions for the effect layer, without the caller
// having to re-drive the loop itself.
func dispatchAll(s *statem.State, own bootstrap.OwnIdentity, pending []action.Action, meta action.Meta) ([]action.Action, error) {
	var out []action.Action
	for _, a := range pending {
		out = append(out, a)
		more, err := Reduce(s, own, a, meta)
		if err != nil {
			return out, err
		}
		out = append(out, more...)
	}
	return out, nil
}
