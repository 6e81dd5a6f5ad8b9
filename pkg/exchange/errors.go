package exchange

import "errors"

// Errors returned by the exchange package.
var (
	// ErrInvalidParams is returned for out-of-range transmission parameters.
	ErrInvalidParams = errors.New("exchange: invalid transmission parameters")

	// ErrExchangeExists is returned when registering an exchange whose
	// (message ID, peer) key is already in flight.
	ErrExchangeExists = errors.New("exchange: exchange already exists")

	// ErrRetransmitTimeout is returned to request issuers when the
	// retransmission limit is reached without acknowledgement.
	ErrRetransmitTimeout = errors.New("exchange: retransmission limit reached")

	// ErrRejected is returned to request issuers when the peer answers
	// with a Reset.
	ErrRejected = errors.New("exchange: rejected by peer")

	// ErrCancelled is returned to request issuers when the exchange is
	// withdrawn locally before resolving.
	ErrCancelled = errors.New("exchange: cancelled")

	// ErrClosed is returned when an operation is attempted on a closed manager.
	ErrClosed = errors.New("exchange: manager closed")

	// ErrInvalidMessage is returned for messages the reliability layer
	// cannot process.
	ErrInvalidMessage = errors.New("exchange: invalid message")

	// ErrNotConfirmable is returned when a reliability operation is
	// attempted on a message that is not Confirmable.
	ErrNotConfirmable = errors.New("exchange: message is not confirmable")
)
