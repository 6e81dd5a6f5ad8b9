package exchange

import (
	"bytes"
	"testing"
	"time"
)

func TestDedupRegister(t *testing.T) {
	d := NewDeduplicator(time.Minute, nil)
	peer := testPeer(t, "127.0.0.1:5683")

	cached, isNew := d.Register(42, peer)
	if !isNew || cached != nil {
		t.Fatalf("first Register = (%v, %v), want (nil, true)", cached, isNew)
	}

	// Duplicate before the response is cached: drop marker.
	cached, isNew = d.Register(42, peer)
	if isNew {
		t.Error("duplicate Register reported new")
	}
	if cached != nil {
		t.Errorf("duplicate Register cached = %v, want nil while in progress", cached)
	}

	d.CacheResponse(42, peer, []byte{0x60, 0x45, 0x00, 0x2a})
	cached, isNew = d.Register(42, peer)
	if isNew {
		t.Error("duplicate Register after caching reported new")
	}
	if !bytes.Equal(cached, []byte{0x60, 0x45, 0x00, 0x2a}) {
		t.Errorf("duplicate Register cached = %x, want the cached response", cached)
	}
}

func TestDedupScopedToPeer(t *testing.T) {
	d := NewDeduplicator(time.Minute, nil)
	peerA := testPeer(t, "127.0.0.1:5683")
	peerB := testPeer(t, "127.0.0.2:5683")

	d.Register(42, peerA)
	if _, isNew := d.Register(42, peerB); !isNew {
		t.Error("same message ID from a different peer treated as duplicate")
	}
}

func TestDedupExpiry(t *testing.T) {
	d := NewDeduplicator(50*time.Millisecond, nil)
	peer := testPeer(t, "127.0.0.1:5683")

	d.Register(42, peer)
	d.sweep(time.Now().Add(time.Second))

	if d.Count() != 0 {
		t.Errorf("Count() after sweep = %d, want 0", d.Count())
	}
	if _, isNew := d.Register(42, peer); !isNew {
		t.Error("Register after expiry treated as duplicate")
	}
}

func TestDedupCacheResponseUnknownKey(t *testing.T) {
	d := NewDeduplicator(time.Minute, nil)
	peer := testPeer(t, "127.0.0.1:5683")

	// Caching for an unregistered key must not create an entry.
	d.CacheResponse(42, peer, []byte{1})
	if d.Count() != 0 {
		t.Errorf("Count() = %d, want 0", d.Count())
	}
}
