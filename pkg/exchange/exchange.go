package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/transport"
)

// Key uniquely identifies an in-flight exchange. Message IDs are 16-bit
// and scoped to the peer address, so the pair is unique within the
// exchange lifetime window.
type Key struct {
	MessageID uint16
	Peer      string
}

// ResolveFunc is invoked exactly once when an exchange reaches a terminal
// state through acknowledgement, rejection or retransmission exhaustion.
// It is NOT invoked when the exchange is cancelled locally (supersession,
// explicit cancel): cancellation is a withdrawal, not a resolution.
type ResolveFunc func(ex *Exchange, outcome Outcome)

// Exchange tracks one Confirmable message awaiting acknowledgement.
//
// The encoded message bytes are retransmitted verbatim on every attempt:
// the payload is never regenerated from current resource state. If the
// state changes mid-retransmission, only supersession produces a new
// notification; this is what keeps the failure counter meaningful.
//
// All mutable fields are guarded by mu. Timer firings carry the
// generation they were scheduled under; a firing whose generation no
// longer matches is stale and must be ignored.
type Exchange struct {
	mu sync.Mutex

	key   Key
	token string
	msg   *message.Message
	data  []byte
	peer  transport.PeerAddress

	state               State
	failedTransmissions int
	currentTimeout      time.Duration
	generation          uint64
	timer               *time.Timer

	resolved ResolveFunc

	// Result for request issuers.
	response *message.Message
	err      error
	done     chan struct{}
}

// newExchange creates a pending exchange for the given encoded message.
func newExchange(msg *message.Message, data []byte, peer transport.PeerAddress) *Exchange {
	return &Exchange{
		key:   Key{MessageID: msg.MessageID, Peer: peer.Key()},
		token: string(msg.Token),
		msg:   msg,
		data:  data,
		peer:  peer,
		state: StatePending,
		done:  make(chan struct{}),
	}
}

// Key returns the (message ID, peer) key.
func (e *Exchange) Key() Key {
	return e.key
}

// Token returns the message token.
func (e *Exchange) Token() []byte {
	return []byte(e.token)
}

// Message returns the tracked message.
func (e *Exchange) Message() *message.Message {
	return e.msg
}

// Peer returns the peer endpoint.
func (e *Exchange) Peer() transport.PeerAddress {
	return e.peer
}

// State returns the current lifecycle state.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// FailedTransmissions returns the current retransmission count.
func (e *Exchange) FailedTransmissions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failedTransmissions
}

// CurrentTimeout returns the timeout in effect for the next retransmission.
func (e *Exchange) CurrentTimeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTimeout
}

// Done returns a channel closed when the exchange reaches a terminal state.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// WaitResponse blocks until the exchange resolves or the context expires.
// It returns the response message on acknowledgement, ErrRetransmitTimeout
// on retransmission exhaustion and ErrRejected on a Reset from the peer.
func (e *Exchange) WaitResponse(ctx context.Context) (*message.Message, error) {
	select {
	case <-e.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.response, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetResolveFunc installs the resolution callback. Must be set before the
// exchange can resolve; the observe layer installs it at send time.
func (e *Exchange) SetResolveFunc(fn ResolveFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolved = fn
}

// transition moves the exchange to a terminal state if it is still
// pending. Returns false if the exchange was already terminal. The timer
// is stopped and the generation bumped so in-flight firings become stale.
// Caller must not hold e.mu.
func (e *Exchange) transition(to State, resp *message.Message, err error) bool {
	e.mu.Lock()
	if e.state.IsTerminal() {
		e.mu.Unlock()
		return false
	}
	e.state = to
	e.generation++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.response = resp
	e.err = err
	e.mu.Unlock()

	close(e.done)
	return true
}

// resolve invokes the resolution callback, if any.
// Caller must not hold e.mu.
func (e *Exchange) resolve(outcome Outcome) {
	e.mu.Lock()
	fn := e.resolved
	e.mu.Unlock()

	if fn != nil {
		fn(e, outcome)
	}
}
