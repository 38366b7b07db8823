package prechecker

import (
	"errors"

	"github.com/dkuehr/tezedge/action"
	"github.com/dkuehr/tezedge/chain"
	"github.com/dkuehr/tezedge/cryptoutil"
)

// Reduce applies act to s, mutating it in place, and returns follow-up
// actions (decisions to hand back to mempool).
func Reduce(s *State, act action.Action, meta action.Meta) ([]action.Action, error) {
	switch a := act.(type) {
	case action.PrecheckerOperationArrived:
		return reduceArrived(s, a)
	case action.PrecheckerEndorsingRightsReady:
		return reduceRightsReady(s, a)
	default:
		return nil, nil
	}
}

func reduceArrived(s *State, a action.PrecheckerOperationArrived) ([]action.Action, error) {
	if a.Operation.Kind != chain.OpEndorsement {
		// Only endorsements have a fast path; everything else defers to the
		// protocol runner immediately.
		return []action.Action{action.PrecheckerOperationDecided{
			Hash:     a.Hash,
			Decision: action.DecisionProtocolNeeded,
		}}, nil
	}

	key := rightsKey{Block: a.Operation.Branch, Level: a.Operation.Level}
	s.Pending[a.Hash] = &PendingCheck{
		Hash:      a.Hash,
		Operation: a.Operation,
		Phase:     PhasePendingRights,
		Block:     key.Block,
		Level:     key.Level,
	}
	s.Waiters[key] = append(s.Waiters[key], a.Hash)

	if _, inFlight := s.InFlight[key]; inFlight {
		return nil, nil
	}
	s.InFlight[key] = struct{}{}
	// The effect layer turns this into an actual rights-cache lookup and
	// eventually dispatches PrecheckerEndorsingRightsReady for this key;
	// Reduce itself does not call out.
	return nil, nil
}

func reduceRightsReady(s *State, a action.PrecheckerEndorsingRightsReady) ([]action.Action, error) {
	key := rightsKey{Block: a.Block, Level: a.Level}
	waiters := s.Waiters[key]
	delete(s.Waiters, key)
	delete(s.InFlight, key)

	var followups []action.Action
	for _, hash := range waiters {
		pc, ok := s.Pending[hash]
		if !ok {
			continue
		}
		pc.Phase = PhaseReady
		delete(s.Pending, hash)

		if a.Err != nil {
			// No rights found or lookup failed outright: defer to the
			// protocol runner rather than guessing.
			followups = append(followups, action.PrecheckerOperationDecided{
				Hash: hash, Decision: action.DecisionProtocolNeeded, Err: a.Err,
			})
			continue
		}

		pub, ok := a.Rights[pc.Operation.Delegate.String()]
		if !ok {
			// The delegate has no right at this level — not our call to
			// reject; let the protocol runner decide.
			followups = append(followups, action.PrecheckerOperationDecided{
				Hash: hash, Decision: action.DecisionProtocolNeeded,
			})
			continue
		}

		if err := cryptoutil.Verify(cryptoutil.PublicKey(pub), pc.Operation.EncodeForHash(), pc.Operation.Signature); err != nil {
			if errors.Is(err, cryptoutil.ErrUnsupportedPublicKey) {
				// Can't verify this key at all; defer to the protocol
				// runner instead of refusing outright.
				followups = append(followups, action.PrecheckerOperationDecided{
					Hash: hash, Decision: action.DecisionProtocolNeeded, Err: err,
				})
				continue
			}
			followups = append(followups, action.PrecheckerOperationDecided{
				Hash: hash, Decision: action.DecisionPrecheckRefused, Err: err,
			})
			continue
		}
		followups = append(followups, action.PrecheckerOperationDecided{
			Hash: hash, Decision: action.DecisionPrecheckedApplied,
		})
	}
	return followups, nil
}
