// Package protocol defines the boundary contract with the protocol runner:
// the external process that actually knows how to validate and apply
// operations and blocks. Nothing in reducer/ calls through this package
// directly — only effects/ does, keeping non-determinism confined to the
// effect layer.
package protocol

import (
	"fmt"
	"sync"

	"github.com/dkuehr/tezedge/chain"
)

// Classifier inspects an operation's raw content and reports which kind it
// is, so the validation-pass it belongs to can be picked without decoding
// the full protocol payload.
type Classifier func(raw []byte) (chain.OperationKind, error)

// OperationKindRegistry maps validation passes to the classifier
// responsible for recognizing operations that belong to them: a narrow,
// self-registering dispatch table keyed on ValidationPass, returning a
// classification rather than running a handler.
type OperationKindRegistry struct {
	mu          sync.RWMutex
	classifiers map[chain.ValidationPass]Classifier
}

// NewOperationKindRegistry creates an empty registry.
func NewOperationKindRegistry() *OperationKindRegistry {
	return &OperationKindRegistry{classifiers: make(map[chain.ValidationPass]Classifier)}
}

// Register associates pass with a classifier. Panics on duplicate
// registration; this only happens at init time, so a panic surfaces a
// programming error immediately rather than masking it.
func (r *OperationKindRegistry) Register(pass chain.ValidationPass, c Classifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.classifiers[pass]; exists {
		panic(fmt.Sprintf("protocol: classifier already registered for validation pass %d", pass))
	}
	r.classifiers[pass] = c
}

// Classify dispatches raw to the classifier registered for pass.
func (r *OperationKindRegistry) Classify(pass chain.ValidationPass, raw []byte) (chain.OperationKind, error) {
	r.mu.RLock()
	c, ok := r.classifiers[pass]
	r.mu.RUnlock()
	if !ok {
		return chain.OpUnknown, fmt.Errorf("protocol: no classifier registered for validation pass %d", pass)
	}
	return c(raw)
}

// Default validation passes: consensus, voting, anonymous, manager.
const (
	PassConsensus  chain.ValidationPass = 0
	PassVoting     chain.ValidationPass = 1
	PassAnonymous  chain.ValidationPass = 2
	PassManager    chain.ValidationPass = 3
)

// NewDefaultRegistry builds the registry the shell ships with: one
// classifier per validation pass, each returning that pass's fixed
// operation kind for any non-empty payload; the payload bytes themselves
// are not inspected.
func NewDefaultRegistry() *OperationKindRegistry {
	r := NewOperationKindRegistry()
	r.Register(PassConsensus, classifyFixedKind(chain.OpEndorsement))
	r.Register(PassVoting, classifyFixedKind(chain.OpVote))
	r.Register(PassAnonymous, classifyFixedKind(chain.OpAnonymous))
	r.Register(PassManager, classifyFixedKind(chain.OpManager))
	return r
}

func classifyFixedKind(kind chain.OperationKind) Classifier {
	return func(raw []byte) (chain.OperationKind, error) {
		if len(raw) == 0 {
			return chain.OpUnknown, fmt.Errorf("protocol: empty operation payload")
		}
		return kind, nil
	}
}
