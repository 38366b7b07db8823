package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/dkuehr/tezedge/action"
	"github.com/dkuehr/tezedge/chain"
)

// The wire payloads below are JSON-encoded; only the outer framing (tag +
// length prefix, message.go) is a binary layer.

type currentBranchPayload struct {
	ChainID     chain.ChainID     `json:"chain_id"`
	Tip         chain.BlockHeader `json:"tip"`
	TipHash     chain.BlockHash   `json:"tip_hash"`
	Predecessor chain.BlockHash   `json:"predecessor"`
}

type blockHeaderPayload struct {
	Header chain.BlockHeader `json:"header"`
	Hash   chain.BlockHash   `json:"hash"`
}

type operationPayload struct {
	Operation chain.Operation `json:"operation"`
}

type operationsForBlocksPayload struct {
	Block          chain.BlockHash    `json:"block"`
	ValidationPass chain.ValidationPass `json:"validation_pass"`
	Operations     []chain.Operation  `json:"operations"`
}

type currentHeadPayload struct {
	ChainID    chain.ChainID          `json:"chain_id"`
	Block      chain.BlockHeader      `json:"block"`
	BlockHash  chain.BlockHash        `json:"block_hash"`
	KnownValid []chain.OperationHash  `json:"known_valid"`
	Pending    []chain.OperationHash  `json:"pending"`
}

// Decode turns a wire message into the action the reducer should process.
// It returns (nil, err) for a malformed payload on a known tag — the
// caller is expected to graylist the peer in that case (Q3 resolution);
// unsupported tags never reach here because Node.readLoop filters them
// first.
func Decode(peer chain.PeerID, msg Message) (action.Action, error) {
	switch msg.Tag {
	case TagCurrentBranch:
		var p currentBranchPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode current_branch: %w", err)
		}
		return action.PeerCurrentBranchReceived{
			Peer: peer, ChainID: p.ChainID, Tip: p.Tip, TipHash: p.TipHash, Predecessor: p.Predecessor,
		}, nil

	case TagBlockHeader:
		var p blockHeaderPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode block_header: %w", err)
		}
		return action.BlockHeaderReceived{Peer: peer, Header: p.Header, Hash: p.Hash}, nil

	case TagOperation:
		return action.MempoolOperationReceived{Peer: peer, Raw: msg.Payload}, nil

	case TagOperationsForBlocks:
		var p operationsForBlocksPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode operations_for_blocks: %w", err)
		}
		return action.OperationsForBlockReceived{
			Peer: peer, Block: p.Block, ValidationPass: p.ValidationPass, Operations: p.Operations,
		}, nil

	case TagCurrentHead:
		var p currentHeadPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode current_head: %w", err)
		}
		return action.MempoolCurrentHeadReceived{
			Peer: peer, ChainID: p.ChainID, Block: p.Block, BlockHash: p.BlockHash,
			KnownValid: p.KnownValid, Pending: p.Pending,
		}, nil

	case TagDisconnect:
		return action.PeerDisconnected{Peer: peer}, nil

	default:
		// Known tag this shell doesn't act on (handshake/protocol-negotiation
		// tags) — decoded as a no-op PeerMessageRead so callers can still
		// observe it without a dedicated action variant.
		return action.PeerMessageRead{Peer: peer, Message: msg}, nil
	}
}

// DecodeOperation parses a raw Operation wire payload. It is separate from
// Decode, which passes an Operation payload on undecoded inside
// MempoolOperationReceived; the operation hash is computed from the
// decoded chain.Operation.
func DecodeOperation(raw []byte) (chain.Operation, error) {
	var p operationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return chain.Operation{}, fmt.Errorf("decode operation: %w", err)
	}
	return p.Operation, nil
}

// EncodeCurrentHead builds the wire payload for a CurrentHead broadcast.
func EncodeCurrentHead(chainID chain.ChainID, block chain.BlockHeader, blockHash chain.BlockHash, knownValid, pending []chain.OperationHash) (Message, error) {
	payload, err := json.Marshal(currentHeadPayload{
		ChainID: chainID, Block: block, BlockHash: blockHash, KnownValid: knownValid, Pending: pending,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{Tag: TagCurrentHead, Payload: payload}, nil
}

// EncodeOperation builds the wire payload for a single Operation message.
func EncodeOperation(op chain.Operation) (Message, error) {
	payload, err := json.Marshal(operationPayload{Operation: op})
	if err != nil {
		return Message{}, err
	}
	return Message{Tag: TagOperation, Payload: payload}, nil
}

// EncodeGetOperations builds the wire payload requesting a set of operation
// hashes from a peer.
func EncodeGetOperations(hashes []chain.OperationHash) (Message, error) {
	payload, err := json.Marshal(hashes)
	if err != nil {
		return Message{}, err
	}
	return Message{Tag: TagGetOperations, Payload: payload}, nil
}
