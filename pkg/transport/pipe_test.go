package transport

import (
	"sync"
	"testing"
	"time"
)

func TestPipeManagerPairDelivery(t *testing.T) {
	var mu sync.Mutex
	received := make(map[int][][]byte)

	handlerFor := func(id int) DatagramHandler {
		return func(dg *Datagram) {
			mu.Lock()
			received[id] = append(received[id], dg.Data)
			mu.Unlock()
		}
	}

	pair, err := NewPipeManagerPair(PipeManagerConfig{
		Handlers: [2]DatagramHandler{handlerFor(0), handlerFor(1)},
	})
	if err != nil {
		t.Fatalf("NewPipeManagerPair failed: %v", err)
	}
	defer pair.Close()

	if err := pair.Manager(0).Send([]byte("hello"), pair.PeerAddress(1)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := pair.Manager(1).Send([]byte("world"), pair.PeerAddress(0)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		done := len(received[0]) == 1 && len(received[1]) == 1
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for delivery")
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if string(received[1][0]) != "hello" {
		t.Errorf("manager 1 received %q, want hello", received[1][0])
	}
	if string(received[0][0]) != "world" {
		t.Errorf("manager 0 received %q, want world", received[0][0])
	}
}

func TestPipeDropsPackets(t *testing.T) {
	var mu sync.Mutex
	count := 0

	pair, err := NewPipeManagerPair(PipeManagerConfig{
		Handlers: [2]DatagramHandler{
			func(dg *Datagram) {},
			func(dg *Datagram) {
				mu.Lock()
				count++
				mu.Unlock()
			},
		},
	})
	if err != nil {
		t.Fatalf("NewPipeManagerPair failed: %v", err)
	}
	defer pair.Close()

	pair.Pipe().SetCondition(NetworkCondition{DropRate: 1.0})

	for i := 0; i < 10; i++ {
		if err := pair.Manager(0).Send([]byte("x"), pair.PeerAddress(1)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("received %d datagrams, want 0 (all dropped)", count)
	}
}

func TestManagerRejectsInvalidAddress(t *testing.T) {
	pair, err := NewPipeManagerPair(PipeManagerConfig{
		Handlers: [2]DatagramHandler{func(*Datagram) {}, func(*Datagram) {}},
	})
	if err != nil {
		t.Fatalf("NewPipeManagerPair failed: %v", err)
	}
	defer pair.Close()

	if err := pair.Manager(0).Send([]byte("x"), PeerAddress{}); err != ErrInvalidAddress {
		t.Errorf("Send error = %v, want ErrInvalidAddress", err)
	}
}

func TestManagerRequiresHandler(t *testing.T) {
	if _, err := NewManager(ManagerConfig{}); err != ErrNoHandler {
		t.Errorf("NewManager error = %v, want ErrNoHandler", err)
	}
}

func TestManagerRejectsOversizedDatagram(t *testing.T) {
	pair, err := NewPipeManagerPair(PipeManagerConfig{
		Handlers: [2]DatagramHandler{func(*Datagram) {}, func(*Datagram) {}},
	})
	if err != nil {
		t.Fatalf("NewPipeManagerPair failed: %v", err)
	}
	defer pair.Close()

	big := make([]byte, MaxDatagramSize+1)
	if err := pair.Manager(0).Send(big, pair.PeerAddress(1)); err != ErrDatagramTooLarge {
		t.Errorf("Send error = %v, want ErrDatagramTooLarge", err)
	}
}

func TestPeerAddressKey(t *testing.T) {
	a := NewPeerAddress(PipeAddr{ID: 0, Port: 5683})
	b := NewPeerAddress(PipeAddr{ID: 1, Port: 5683})
	if a.Key() == b.Key() {
		t.Error("distinct peers should have distinct keys")
	}
	if (PeerAddress{}).Key() != "" {
		t.Error("nil address key should be empty")
	}
}
