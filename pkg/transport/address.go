// Package transport provides datagram plumbing for the CoAP engine.
//
// The reliability layer above only needs two capabilities: send a datagram
// to a peer and receive datagrams with their source address. Real network
// I/O uses UDP; tests use an in-memory Pipe with network condition
// simulation. Security (DTLS) is an external concern: whatever hands
// authenticated datagrams to the Manager is out of scope here.
package transport

import (
	"fmt"
	"net"
)

// PeerAddress identifies a remote endpoint (address and port).
type PeerAddress struct {
	// Addr is the network address of the peer.
	Addr net.Addr
}

// NewPeerAddress creates a PeerAddress for the given network address.
func NewPeerAddress(addr net.Addr) PeerAddress {
	return PeerAddress{Addr: addr}
}

// AddrFromString parses a UDP address string into a PeerAddress.
func AddrFromString(addr string) (PeerAddress, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return PeerAddress{}, err
	}
	return NewPeerAddress(udpAddr), nil
}

// String returns a human-readable representation of the peer address.
func (p PeerAddress) String() string {
	if p.Addr == nil {
		return "<nil>"
	}
	return p.Addr.String()
}

// Key returns a string suitable for map keys. Exchanges, deduplication
// entries and observe relations are all scoped by this key.
func (p PeerAddress) Key() string {
	if p.Addr == nil {
		return ""
	}
	return fmt.Sprintf("%s/%s", p.Addr.Network(), p.Addr.String())
}

// IsValid returns true if the peer address is usable.
func (p PeerAddress) IsValid() bool {
	return p.Addr != nil
}
