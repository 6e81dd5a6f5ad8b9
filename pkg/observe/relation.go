// Package observe implements server-side observe relations (RFC 7641).
//
// A Relation records one client's interest in one resource, keyed by the
// (peer, token) pair from the registration request. The Manager keeps the
// registry and drives notifications through the exchange layer; reliability
// outcomes feed back as relation state transitions, including the
// whole-peer eviction sweep when a peer stops acknowledging.
package observe

import (
	"fmt"
	"sync"

	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/transport"
)

// State tracks the lifecycle of an observe relation.
type State int

const (
	// StateEstablished means the relation is active with no notification
	// in flight.
	StateEstablished State = iota

	// StateNotifying means a Confirmable notification is awaiting
	// acknowledgement.
	StateNotifying

	// StateCancelled means the relation has ended: deregistered, rejected
	// by the peer, or evicted after retransmission exhaustion.
	StateCancelled
)

// String returns a human-readable name for the relation state.
func (s State) String() string {
	switch s {
	case StateEstablished:
		return "Established"
	case StateNotifying:
		return "Notifying"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Relation is one observer registration: a (peer, token) pair bound to a
// resource path. Notification sequence numbers are per-relation and wrap
// at 2^24.
type Relation struct {
	mu sync.Mutex

	path  string
	peer  transport.PeerAddress
	token string

	state State
	seq   uint32
}

func newRelation(path string, peer transport.PeerAddress, token []byte) *Relation {
	return &Relation{
		path:  path,
		peer:  peer,
		token: string(token),
		state: StateEstablished,
	}
}

// Path returns the observed resource path.
func (r *Relation) Path() string {
	return r.path
}

// Peer returns the observing peer.
func (r *Relation) Peer() transport.PeerAddress {
	return r.peer
}

// Token returns the registration token.
func (r *Relation) Token() []byte {
	return []byte(r.token)
}

// State returns the current relation state.
func (r *Relation) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// NextSeq returns the next notification sequence number. Sequence numbers
// start at 1 (0 marks a registration request) and wrap at 2^24.
func (r *Relation) NextSeq() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq = (r.seq + 1) % message.ObserveModulus
	if r.seq == 0 {
		r.seq = 1
	}
	return r.seq
}

// markNotifying moves the relation to NOTIFYING. Returns false if the
// relation is cancelled.
func (r *Relation) markNotifying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateCancelled {
		return false
	}
	r.state = StateNotifying
	return true
}

// markEstablished returns the relation to ESTABLISHED after a successful
// notification round. A cancelled relation stays cancelled.
func (r *Relation) markEstablished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateCancelled {
		r.state = StateEstablished
	}
}

// markCancelled moves the relation to its terminal state. Returns false
// if it was already cancelled.
func (r *Relation) markCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateCancelled {
		return false
	}
	r.state = StateCancelled
	return true
}

// String returns a compact description for logging.
func (r *Relation) String() string {
	return fmt.Sprintf("relation %s tkn=%x peer=%s (%s)", r.path, r.token, r.peer, r.State())
}
