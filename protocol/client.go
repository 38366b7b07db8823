package protocol

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dkuehr/tezedge/chain"
)

// ApplyResult carries the protocol runner's verdict for one block.
type ApplyResult struct {
	Block   chain.BlockHash
	Level   chain.Level
	Err     error
	Refused bool // true if the block itself was rejected, as opposed to an IO error
}

// ValidateResult carries the protocol runner's verdict for one operation.
type ValidateResult struct {
	Hash     chain.OperationHash
	Verdict  ValidateVerdict
	ErrorMsg string
}

// ValidateVerdict mirrors action.Verdict without introducing an import
// cycle (effects/ translates between the two).
type ValidateVerdict int

const (
	ValidateApplied ValidateVerdict = iota
	ValidateBranchDelayed
	ValidateBranchRefused
	ValidateRefused
)

// Runner is the narrow interface the effect layer uses to talk to the
// external protocol-runner process. It is deliberately small: apply a
// block, validate an operation against the current head, begin a fresh
// mempool construction context. Everything else about protocol semantics
// (scripts, gas, storage) lives entirely on the other side of this
// boundary.
type Runner interface {
	ApplyBlock(ctx context.Context, header chain.BlockHeader, ops map[chain.ValidationPass][]chain.Operation) (ApplyResult, error)
	ValidateOperation(ctx context.Context, head chain.BlockHash, op chain.Operation) (ValidateResult, error)
	BeginConstruction(ctx context.Context, predecessor chain.BlockHash) error
	Close() error
}

// IPCClient is a Runner backed by a unix domain socket, using the same
// length-prefixed framing convention as the p2p transport: a 4-byte
// big-endian length, then a JSON request/response body. The protocol
// runner is a separate process; this client never executes protocol code
// in this one.
type IPCClient struct {
	mu   sync.Mutex
	conn net.Conn
}

// DialIPC connects to the protocol runner listening on a unix socket at
// path.
func DialIPC(path string) (*IPCClient, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial protocol runner at %s: %w", path, err)
	}
	return &IPCClient{conn: conn}, nil
}

type request struct {
	Method string          `json:"method"`
	Body   interface{}     `json:"body"`
}

type response struct {
	Body  interface{} `json:"body"`
	Error string      `json:"error,omitempty"`
}

func (c *IPCClient) call(method string, body, out interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(request{Method: method, Body: body})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	if err := writeFrame(c.conn, payload); err != nil {
		return fmt.Errorf("send %s request: %w", method, err)
	}
	frame, err := readFrame(c.conn)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	resp := response{Body: out}
	if err := json.Unmarshal(frame, &resp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("protocol runner: %s", resp.Error)
	}
	return nil
}

// ApplyBlock sends the block and its per-pass operations to the runner and
// waits for the apply verdict.
func (c *IPCClient) ApplyBlock(ctx context.Context, header chain.BlockHeader, ops map[chain.ValidationPass][]chain.Operation) (ApplyResult, error) {
	var out ApplyResult
	err := c.call("apply_block", struct {
		Header chain.BlockHeader                    `json:"header"`
		Ops    map[chain.ValidationPass][]chain.Operation `json:"ops"`
	}{Header: header, Ops: ops}, &out)
	return out, err
}

// ValidateOperation asks the runner to validate op against head.
func (c *IPCClient) ValidateOperation(ctx context.Context, head chain.BlockHash, op chain.Operation) (ValidateResult, error) {
	var out ValidateResult
	err := c.call("validate_operation", struct {
		Head chain.BlockHash `json:"head"`
		Op   chain.Operation `json:"op"`
	}{Head: head, Op: op}, &out)
	return out, err
}

// BeginConstruction tells the runner to start a fresh mempool construction
// context against predecessor.
func (c *IPCClient) BeginConstruction(ctx context.Context, predecessor chain.BlockHash) error {
	return c.call("begin_construction", struct {
		Predecessor chain.BlockHash `json:"predecessor"`
	}{Predecessor: predecessor}, nil)
}

// Close terminates the connection to the protocol runner.
func (c *IPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

func writeFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
