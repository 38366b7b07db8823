// Package p2p implements the wire-level peer connections: framing, the tag
// dispatch table ("the P2P reader"), and the Peer/Node connection registry.
// Decoding a message here never mutates shell state directly — the reader
// only turns wire bytes into an action.Action for the reducer to process.
package p2p

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"crypto/tls"
)

// Tag identifies a wire message's type: peer-management messages
// (disconnect, bootstrap, advertise, swap), then the chain-sync and mempool
// message family.
type Tag byte

const (
	TagDisconnect      Tag = 0x01
	TagBootstrap       Tag = 0x02
	TagAdvertise       Tag = 0x03
	TagSwapRequest     Tag = 0x04
	TagSwapAck         Tag = 0x05
	TagGetCurrentBranch Tag = 0x10
	TagCurrentBranch   Tag = 0x11
	TagGetBlockHeaders Tag = 0x20
	TagBlockHeader     Tag = 0x21
	TagGetOperations   Tag = 0x30
	TagOperation       Tag = 0x31
	TagGetProtocols    Tag = 0x40
	TagProtocol        Tag = 0x41
	TagGetOperationsForBlocks Tag = 0x60
	TagOperationsForBlocks    Tag = 0x61
	TagGetCurrentHead  Tag = 0x13
	TagCurrentHead     Tag = 0x14
)

// supportedTags lists every tag this shell knows how to decode. A tag
// outside this set is not malformed — it may belong to a newer protocol
// version — so the reader ignores it instead of graylisting the peer.
var supportedTags = map[Tag]struct{}{
	TagDisconnect: {}, TagBootstrap: {}, TagAdvertise: {}, TagSwapRequest: {}, TagSwapAck: {},
	TagGetCurrentBranch: {}, TagCurrentBranch: {},
	TagGetBlockHeaders: {}, TagBlockHeader: {},
	TagGetOperations: {}, TagOperation: {},
	TagGetProtocols: {}, TagProtocol: {},
	TagGetOperationsForBlocks: {}, TagOperationsForBlocks: {},
	TagGetCurrentHead: {}, TagCurrentHead: {},
}

// IsSupported reports whether tag is part of the known wire protocol.
func IsSupported(tag Tag) bool {
	_, ok := supportedTags[tag]
	return ok
}

// SupportedTags returns every tag this shell knows how to decode, for
// callers that need to register a handler per tag up front.
func SupportedTags() []Tag {
	out := make([]Tag, 0, len(supportedTags))
	for t := range supportedTags {
		out = append(out, t)
	}
	return out
}

// Message is a single length-prefixed wire message: a 1-byte tag and an
// opaque payload whose structure is tag-specific.
type Message struct {
	Tag     Tag
	Payload []byte
}

const maxMessageSize = 32 * 1024 * 1024 // 32 MiB safety limit

// WriteMessage writes a length-prefixed message: 4-byte big-endian length
// (tag + payload), then the tag byte, then the payload.
func WriteMessage(w io.Writer, msg Message) error {
	body := make([]byte, 1+len(msg.Payload))
	body[0] = byte(msg.Tag)
	copy(body[1:], msg.Payload)

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadMessage reads the next length-prefixed message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return Message{}, fmt.Errorf("empty message")
	}
	if length > maxMessageSize {
		return Message{}, fmt.Errorf("message too large: %d bytes", length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, err
	}
	return Message{Tag: Tag(body[0]), Payload: body[1:]}, nil
}

// Conn wraps a net.Conn with read-deadline and close-once semantics, shared
// by both the listener and dialer paths.
type Conn struct {
	id   string
	addr string

	conn   net.Conn
	mu     sync.Mutex
	closed bool
}

// NewConn wraps an established connection.
func NewConn(id, addr string, conn net.Conn) *Conn {
	return &Conn{id: id, addr: addr, conn: conn}
}

// Dial connects to addr, optionally over TLS.
func Dial(id, addr string, tlsCfg *tls.Config) (*Conn, error) {
	var conn net.Conn
	var err error
	if tlsCfg != nil {
		conn, err = tls.Dial("tcp", addr, tlsCfg)
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return NewConn(id, addr, conn), nil
}

// Send writes msg to the peer.
func (c *Conn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection %s closed", c.id)
	}
	return WriteMessage(c.conn, msg)
}

// Receive reads the next message, with a 30s read deadline so a stalled
// peer cannot block the reader loop indefinitely.
func (c *Conn) Receive() (Message, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	return ReadMessage(c.conn)
}

// Close terminates the connection, idempotently.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.conn.Close()
	}
}

// ID returns the connection's peer identifier.
func (c *Conn) ID() string { return c.id }
