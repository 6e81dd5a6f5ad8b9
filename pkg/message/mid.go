package message

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
)

// MIDAllocator hands out 16-bit message IDs scoped to a peer address.
// Each peer's sequence starts at a random value and increments by one,
// wrapping at 65536. Message IDs must not be reused within the exchange
// lifetime window; the random start plus the 16-bit space makes collisions
// with recently used IDs unlikely for realistic message rates.
type MIDAllocator struct {
	mu   sync.Mutex
	next map[string]uint16
}

// NewMIDAllocator creates an empty allocator.
func NewMIDAllocator() *MIDAllocator {
	return &MIDAllocator{
		next: make(map[string]uint16),
	}
}

// Next returns the next message ID for the given peer.
func (a *MIDAllocator) Next(peer string) uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()

	mid, ok := a.next[peer]
	if !ok {
		mid = randomMID()
	}
	a.next[peer] = mid + 1
	return mid
}

// randomMID picks a random starting message ID.
func randomMID() uint16 {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return binary.LittleEndian.Uint16(buf[:])
}
