// Package exchange implements the CoAP reliable message exchange layer.
//
// The exchange layer sits between the datagram transport (pkg/transport)
// and the request/observe layers above. It provides:
//
//   - Exchange tracking: every in-flight Confirmable message is recorded
//     in a Store, keyed by (message ID, peer address) and by token
//   - Retransmission: per-exchange timers with randomized exponential
//     backoff drive retransmissions until acknowledged or exhausted
//   - Deduplication: retransmitted inbound requests are answered from a
//     response cache instead of re-executing application logic
//   - Interceptors: a side-channel observation point for every message
//     sent and received, used for testing and monitoring
//
// An Exchange represents one Confirmable message awaiting acknowledgement.
// Notifications for observe relations are exchanges too; a superseding
// notification inherits the retransmission state of the notification it
// replaces (see Manager.SendNotification).
//
// Spec References:
//   - RFC 7252 Section 4: Message Transmission
//   - RFC 7641 Section 4.5: Server-Side Requirements
package exchange

// State tracks the lifecycle of an exchange.
type State int

const (
	// StateUnknown indicates an uninitialized state.
	StateUnknown State = iota

	// StatePending indicates the message is awaiting acknowledgement.
	// Retransmissions may still occur.
	StatePending

	// StateAcknowledged indicates the peer acknowledged the message.
	StateAcknowledged

	// StateRejected indicates the peer answered with a Reset.
	StateRejected

	// StateFailed indicates the retransmission limit was reached without
	// acknowledgement.
	StateFailed

	// StateCancelled indicates the exchange was withdrawn locally,
	// either by supersession or by explicit cancellation. Not a failure.
	StateCancelled
)

// String returns a human-readable name for the exchange state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateAcknowledged:
		return "Acknowledged"
	case StateRejected:
		return "Rejected"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// IsTerminal returns true once the exchange has resolved; terminal
// exchanges ignore further completion attempts and stale timer firings.
func (s State) IsTerminal() bool {
	switch s {
	case StateAcknowledged, StateRejected, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Outcome describes how an exchange resolved, as reported to the
// per-exchange resolution callback.
type Outcome int

const (
	// OutcomeAcknowledged means the peer acknowledged the message.
	OutcomeAcknowledged Outcome = iota

	// OutcomeRejected means the peer answered with a Reset.
	OutcomeRejected

	// OutcomeTimeout means the retransmission limit was reached.
	OutcomeTimeout
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAcknowledged:
		return "Acknowledged"
	case OutcomeRejected:
		return "Rejected"
	case OutcomeTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}
