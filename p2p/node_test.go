package p2p

import (
	"sync"
	"testing"
	"time"
)

func TestNodeConnectSendAndHandle(t *testing.T) {
	server := NewNode("server", "127.0.0.1:0", nil)

	received := make(chan Message, 1)
	server.Handle(TagOperation, func(peer *Conn, msg Message) {
		received <- msg
	})

	var mu sync.Mutex
	var serverConnects []string
	server.OnConnect = func(peerID string) {
		mu.Lock()
		serverConnects = append(serverConnects, peerID)
		mu.Unlock()
	}

	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	defer server.Stop()

	client := NewNode("client", "127.0.0.1:0", nil)
	clientConnected := make(chan string, 1)
	client.OnConnect = func(peerID string) { clientConnected <- peerID }

	conn, err := client.AddPeer("server", server.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	select {
	case <-clientConnected:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client OnConnect")
	}

	if err := conn.Send(Message{Tag: TagOperation, Payload: []byte("hello")}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-received:
		if string(msg.Payload) != "hello" {
			t.Errorf("payload = %q, want %q", msg.Payload, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server to receive message")
	}

	mu.Lock()
	gotConnects := len(serverConnects)
	mu.Unlock()
	if gotConnects != 1 {
		t.Errorf("expected one server-side OnConnect, got %d", gotConnects)
	}
}

func TestNodeSendToUnknownPeerErrors(t *testing.T) {
	n := NewNode("solo", "127.0.0.1:0", nil)
	if err := n.Send("nobody", Message{Tag: TagOperation}); err == nil {
		t.Error("expected an error sending to an unconnected peer")
	}
}

func TestNodeDisconnectFiresOnDisconnect(t *testing.T) {
	server := NewNode("server", "127.0.0.1:0", nil)
	disconnected := make(chan string, 1)
	server.OnDisconnect = func(peerID string) { disconnected <- peerID }

	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	defer server.Stop()

	client := NewNode("client", "127.0.0.1:0", nil)
	conn, err := client.AddPeer("server", server.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server OnDisconnect after client closed")
	}
}
