package p2p

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// Handler is called for each received message, with the tag already parsed.
type Handler func(peer *Conn, msg Message)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// Node listens for incoming peers and manages outgoing connections. It
// knows nothing about bootstrap/mempool/prechecker semantics — cmd/node
// wires those handlers on top of it.
type Node struct {
	nodeID     string
	listenAddr string
	tlsConfig  *tls.Config // nil → plain TCP
	maxPeers   int

	mu       sync.RWMutex
	peers    map[string]*Conn
	handlers map[Tag]Handler

	// OnConnect/OnDisconnect, when set, are called whenever a peer
	// connection is established or torn down (either direction). The
	// action loop wires these to PeerConnected/PeerDisconnected.
	OnConnect    func(peerID string)
	OnDisconnect func(peerID string)

	listener net.Listener
	stopCh   chan struct{}
}

// NewNode creates a Node that will listen on listenAddr.
func NewNode(nodeID, listenAddr string, tlsCfg *tls.Config) *Node {
	return &Node{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		peers:      make(map[string]*Conn),
		handlers:   make(map[Tag]Handler),
		stopCh:     make(chan struct{}),
	}
}

// Handle registers a handler for a wire tag.
func (n *Node) Handle(tag Tag, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[tag] = h
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Addr returns the listener's bound address. Useful when started on a
// ":0" port. Returns nil if Start has not been called yet.
func (n *Node) Addr() net.Addr {
	if n.listener != nil {
		return n.listener.Addr()
	}
	return nil
}

// Stop shuts down the node and every peer connection.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// AddPeer dials addr and registers the connection.
func (n *Node) AddPeer(id, addr string) (*Conn, error) {
	conn, err := Dial(id, addr, n.tlsConfig)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.peers[id] = conn
	n.mu.Unlock()
	if n.OnConnect != nil {
		n.OnConnect(id)
	}
	go n.readLoop(conn)
	return conn, nil
}

// Peer returns the connection for id, or nil if not connected.
func (n *Node) Peer(id string) *Conn {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// Peers returns the IDs of every currently connected peer.
func (n *Node) Peers() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.peers))
	for id := range n.peers {
		out = append(out, id)
	}
	return out
}

// Send delivers msg to a single peer by ID, returning an error if not
// connected.
func (n *Node) Send(id string, msg Message) error {
	peer := n.Peer(id)
	if peer == nil {
		return fmt.Errorf("peer %s not connected", id)
	}
	return peer.Send(msg)
}

// Broadcast sends msg to every connected peer except those in exceptions.
func (n *Node) Broadcast(msg Message, exceptions map[string]struct{}) {
	n.mu.RLock()
	peers := make([]*Conn, 0, len(n.peers))
	for id, p := range n.peers {
		if _, skip := exceptions[id]; skip {
			continue
		}
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			log.Printf("[p2p] broadcast to %s: %v", p.ID(), err)
		}
	}
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Printf("[p2p] accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			log.Printf("[p2p] max peers (%d) reached, rejecting %s", n.maxPeers, conn.RemoteAddr())
			conn.Close()
			continue
		}
		addr := conn.RemoteAddr().String()
		peer := NewConn(addr, addr, conn)
		n.mu.Lock()
		n.peers[peer.ID()] = peer
		n.mu.Unlock()
		if n.OnConnect != nil {
			n.OnConnect(peer.ID())
		}
		go n.readLoop(peer)
	}
}

func (n *Node) readLoop(peer *Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[p2p] readLoop panic from %s: %v", peer.ID(), r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID())
		n.mu.Unlock()
		if n.OnDisconnect != nil {
			n.OnDisconnect(peer.ID())
		}
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		if !IsSupported(msg.Tag) {
			// Forward-compatibility: unknown tags are ignored, not
			// graylisted (Q3 resolution).
			continue
		}
		n.mu.RLock()
		h, ok := n.handlers[msg.Tag]
		n.mu.RUnlock()
		if ok {
			h(peer, msg)
		}
	}
}
