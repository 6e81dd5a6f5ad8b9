package transport

// MaxDatagramSize is the largest datagram the transport will send or
// receive. CoAP messages are sized to fit a single datagram without IP
// fragmentation (RFC 7252 Section 4.6).
const MaxDatagramSize = 1152

// Datagram represents an incoming datagram from the network.
// The Data field contains the raw bytes as received from the wire; the
// reliability layer is responsible for parsing them.
type Datagram struct {
	// Data contains the raw message bytes.
	Data []byte
	// Peer identifies the source of the datagram.
	Peer PeerAddress
}

// DatagramHandler is called for each received datagram.
// Implementations should process datagrams quickly or dispatch to a
// goroutine to avoid blocking the transport's read loop.
type DatagramHandler func(dg *Datagram)
